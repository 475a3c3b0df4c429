package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ghola/internal/models"
)

func TestPrompt(t *testing.T) {
	var got PromptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/prompt", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"A tall knight"}`))
	}))
	defer srv.Close()

	text, err := New(Options{BaseURL: srv.URL + "/"}).Prompt(context.Background(), PromptRequest{Prompt: "Knight", Style: "lego", AspectRatio: "square"})
	require.NoError(t, err)
	assert.Equal(t, "A tall knight", text)
	assert.Equal(t, PromptRequest{Prompt: "Knight", Style: "lego", AspectRatio: "square"}, got)
}

func TestPromptMissingResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Prompt(context.Background(), PromptRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrNoPrompt)
}

func TestImageParsesRefs(t *testing.T) {
	var got ImageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/image", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":["https://x/1.jpg","data:image/png;base64,iVBO"]}`))
	}))
	defer srv.Close()

	refs, err := New(Options{BaseURL: srv.URL}).Image(context.Background(), ImageRequest{Prompt: "p", Premium: true, Style: "pixar"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, models.URLImage("https://x/1.jpg"), refs[0])
	assert.True(t, refs[1].IsInline())
	assert.Equal(t, "image/png", refs[1].MimeType)
	assert.True(t, got.Premium)
}

func TestImageEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Image(context.Background(), ImageRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestServerErrorStringSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"OpenAI API Key not configured"}`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Prompt(context.Background(), PromptRequest{Prompt: "x"})
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusInternalServerError, respErr.StatusCode)
	assert.Equal(t, "OpenAI API Key not configured", err.Error())
}

func TestServerErrorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Image(context.Background(), ImageRequest{Prompt: "x"})
	assert.EqualError(t, err, "Error generating character image")
}
