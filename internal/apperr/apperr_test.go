package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResponseError struct {
	msg string
}

func (e fakeResponseError) Error() string           { return "status 422: " + e.msg }
func (e fakeResponseError) ProviderMessage() string { return e.msg }

func TestClassifyProviderError(t *testing.T) {
	err := Classify("Replicate", fmt.Errorf("create prediction: %w", fakeResponseError{msg: "invalid input"}))
	assert.Equal(t, KindProvider, err.Kind)
	assert.Equal(t, "Replicate API returned an error: invalid input", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestClassifyProviderErrorWithoutMessage(t *testing.T) {
	err := Classify("OpenAI", fakeResponseError{})
	assert.Equal(t, "OpenAI API returned an error: Unknown API error", err.Message)
}

func TestClassifyNetworkError(t *testing.T) {
	urlErr := &url.Error{Op: "Post", URL: "https://api.openai.com", Err: errors.New("connection reset")}
	err := Classify("OpenAI", urlErr)
	assert.Equal(t, KindNetwork, err.Kind)
	assert.Equal(t, "No response received from OpenAI API. Please try again later.", err.Message)

	err = Classify("OpenAI", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.Equal(t, KindNetwork, err.Kind)
}

func TestClassifyLocalError(t *testing.T) {
	err := Classify("OpenAI", errors.New("marshal request"))
	assert.Equal(t, KindLocal, err.Kind)
	assert.Equal(t, "Error setting up the request: marshal request", err.Message)
	assert.Empty(t, err.Details())
}

func TestDetailsOnlyWhenItAddsText(t *testing.T) {
	err := Classify("Replicate", fmt.Errorf("create prediction: %w", fakeResponseError{msg: "invalid input"}))
	assert.Equal(t, "create prediction: status 422: invalid input", err.Details())

	err = Classify("OpenAI", fmt.Errorf("build request: %w", errors.New("bad header")))
	assert.Equal(t, "Error setting up the request: build request: bad header", err.Message)
	assert.Empty(t, err.Details())

	assert.Empty(t, Provider("Replicate", "no images returned", nil).Details())
}

func TestClassifyKeepsAppErrors(t *testing.T) {
	orig := Validation("bad input")
	assert.Same(t, orig, Classify("OpenAI", fmt.Errorf("outer: %w", orig)))
	assert.Nil(t, Classify("OpenAI", nil))
}

func TestConfigurationMessage(t *testing.T) {
	err := Configuration("Replicate")
	assert.Equal(t, "Replicate API Key not configured", err.Error())
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Empty(t, err.Details())
}
