package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ghola/internal/apperr"
	"github.com/digkill/ghola/internal/models"
	"github.com/digkill/ghola/internal/service"
)

type fakePrompts struct {
	readyErr error
	got      service.PromptInput
	text     string
	err      error
}

func (f *fakePrompts) Ready() error { return f.readyErr }

func (f *fakePrompts) Enrich(_ context.Context, in service.PromptInput) (models.EnrichedPrompt, error) {
	f.got = in
	if f.err != nil {
		return models.EnrichedPrompt{}, f.err
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return models.EnrichedPrompt{}, apperr.Validation(service.MissingPromptMessage)
	}
	return models.EnrichedPrompt{Text: f.text}, nil
}

type fakeImages struct {
	readyErr error
	got      service.ImageInput
	images   []models.ImageRef
	err      error
}

func (f *fakeImages) Ready() error { return f.readyErr }

func (f *fakeImages) Generate(_ context.Context, in service.ImageInput) (*models.GenerationResult, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.GenerationResult{Images: f.images}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func newTestServer(p *fakePrompts, i *fakeImages) http.Handler {
	return NewServer(Options{}, nil, p, i).Handler()
}

func TestPreflight(t *testing.T) {
	h := newTestServer(&fakePrompts{}, &fakeImages{})
	for _, path := range []string{PromptPath, ImagePath, "/.netlify/functions/charPrompt", "/.netlify/functions/characterSD"} {
		rec := do(t, h, http.MethodOptions, path, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(&fakePrompts{}, &fakeImages{}), http.MethodGet, PromptPath, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Allow"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, map[string]any{"error": "Method Not Allowed"}, decodeBody(t, rec))
}

func TestPromptSuccess(t *testing.T) {
	prompts := &fakePrompts{text: "A weathered space smuggler"}
	rec := do(t, newTestServer(prompts, &fakeImages{}), http.MethodPost, "/.netlify/functions/charPrompt", `{"prompt":"Han Solo","style":"pixar","aspect_ratio":"square"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"response": "A weathered space smuggler"}, decodeBody(t, rec))
	assert.Equal(t, service.PromptInput{Prompt: "Han Solo", Style: "pixar", AspectRatio: "square"}, prompts.got)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPromptInvalidJSON(t *testing.T) {
	rec := do(t, newTestServer(&fakePrompts{}, &fakeImages{}), http.MethodPost, PromptPath, `{"prompt":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"error": "Invalid JSON in request body"}, decodeBody(t, rec))
}

func TestPromptEmptyBodyIsInvalidJSON(t *testing.T) {
	rec := do(t, newTestServer(&fakePrompts{}, &fakeImages{}), http.MethodPost, PromptPath, ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON in request body", decodeBody(t, rec)["error"])
}

func TestPromptMissingPrompt(t *testing.T) {
	rec := do(t, newTestServer(&fakePrompts{}, &fakeImages{}), http.MethodPost, PromptPath, `{"style":"lego"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"error": "Please provide a prompt in the request body"}, decodeBody(t, rec))
}

func TestMissingCredentialCheckedBeforeBody(t *testing.T) {
	prompts := &fakePrompts{readyErr: apperr.Configuration("OpenAI")}
	rec := do(t, newTestServer(prompts, &fakeImages{}), http.MethodPost, PromptPath, `not json`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "OpenAI API Key not configured"}, decodeBody(t, rec))

	images := &fakeImages{readyErr: apperr.Configuration("Replicate")}
	rec = do(t, newTestServer(&fakePrompts{}, images), http.MethodPost, ImagePath, `{"prompt":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Replicate API Key not configured", decodeBody(t, rec)["error"])
}

func TestProviderErrorCarriesDetails(t *testing.T) {
	prompts := &fakePrompts{err: apperr.Classify("OpenAI", errors.New("bad header"))}
	rec := do(t, newTestServer(prompts, &fakeImages{}), http.MethodPost, PromptPath, `{"prompt":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Error setting up the request: bad header", body["error"])
	assert.Equal(t, "bad header", body["details"])
}

func TestUnclassifiedErrorStillAnswers(t *testing.T) {
	images := &fakeImages{err: errors.New("boom")}
	rec := do(t, newTestServer(&fakePrompts{}, images), http.MethodPost, ImagePath, `{"prompt":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "An error occurred while processing the request", "details": "boom"}, decodeBody(t, rec))
}

func TestImageSuccess(t *testing.T) {
	images := &fakeImages{images: []models.ImageRef{
		models.URLImage("https://replicate.delivery/a.jpg"),
		models.InlineImage([]byte{0xff, 0xd8, 0xff}, "image/jpeg"),
	}}
	rec := do(t, newTestServer(&fakePrompts{}, images), http.MethodPost, "/.netlify/functions/characterSD",
		`{"prompt":"a knight","premium":true,"aspect_ratio":"portrait","style":"lego","character":"Knight","email":"k@example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"result": []any{"https://replicate.delivery/a.jpg", "data:image/jpeg;base64,/9j/"}}, decodeBody(t, rec))
	assert.Equal(t, service.ImageInput{
		Prompt: "a knight", Premium: true, AspectRatio: "portrait", Style: "lego", Character: "Knight", Email: "k@example.com",
	}, images.got)
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakePrompts{}, &fakeImages{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, rec))
}

func TestIPGuard(t *testing.T) {
	h := NewServer(Options{RatePerMinute: 2}, nil, &fakePrompts{text: "ok"}, &fakeImages{}).Handler()

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, PromptPath, strings.NewReader(`{"prompt":"x"}`))
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
}

func TestNilGuardAllows(t *testing.T) {
	var g *ipGuard
	assert.Nil(t, newIPGuard(0))
	assert.True(t, g.Allow("1.2.3.4"))
}

type stalledImages struct {
	deadline time.Time
}

func (s *stalledImages) Ready() error { return nil }

func (s *stalledImages) Generate(ctx context.Context, _ service.ImageInput) (*models.GenerationResult, error) {
	s.deadline, _ = ctx.Deadline()
	<-ctx.Done()
	return nil, apperr.Classify("Replicate", fmt.Errorf("get prediction: %w", ctx.Err()))
}

func TestImageTimeoutStillAnswersJSON(t *testing.T) {
	images := &stalledImages{}
	h := NewServer(Options{HandlerTimeout: 20 * time.Millisecond}, nil, &fakePrompts{}, images).Handler()

	start := time.Now()
	rec := do(t, h, http.MethodPost, ImagePath, `{"prompt":"a wizard"}`)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "No response received from Replicate API. Please try again later.", decodeBody(t, rec)["error"])
	assert.False(t, images.deadline.IsZero())
}

func TestHandlerBudgetStaysBelowWriteTimeout(t *testing.T) {
	assert.Equal(t, 145*time.Second, handlerBudget(150*time.Second))
	assert.Equal(t, 2*time.Second, handlerBudget(4*time.Second))

	s := NewServer(Options{WriteTimeout: 30 * time.Second, HandlerTimeout: time.Minute}, nil, &fakePrompts{}, &fakeImages{})
	assert.Equal(t, 25*time.Second, s.handlerTimeout)

	s = NewServer(Options{}, nil, &fakePrompts{}, &fakeImages{})
	assert.Less(t, s.handlerTimeout, s.writeTimeout)
}
