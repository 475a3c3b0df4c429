// Package client calls the functions API on behalf of the presentation shell.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/ghola/internal/models"
)

const (
	promptPath = "/api/prompt"
	imagePath  = "/api/image"
)

var (
	ErrNoPrompt = errors.New("no enhanced prompt in response")
	ErrNoImage  = errors.New("no image data in response")
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type PromptRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Style       string `json:"style,omitempty"`
}

type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Premium     bool   `json:"premium"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Style       string `json:"style,omitempty"`
	Character   string `json:"character,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ResponseError is a non-2xx answer. Message is the server's error string or the fallback.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return e.Message
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// Prompt asks the text-completion function to enrich a character name.
func (c *Client) Prompt(ctx context.Context, req PromptRequest) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, promptPath, req, &out, "Error enhancing character prompt"); err != nil {
		return "", err
	}
	if out.Response == "" {
		return "", ErrNoPrompt
	}
	return out.Response, nil
}

// Image asks the image function for a render of prompt.
func (c *Client) Image(ctx context.Context, req ImageRequest) ([]models.ImageRef, error) {
	var out struct {
		Result []string `json:"result"`
	}
	if err := c.post(ctx, imagePath, req, &out, "Error generating character image"); err != nil {
		return nil, err
	}
	if len(out.Result) == 0 {
		return nil, ErrNoImage
	}
	refs := make([]models.ImageRef, 0, len(out.Result))
	for _, raw := range out.Result {
		ref, err := models.ParseImageRef(raw)
		if err != nil {
			return nil, fmt.Errorf("parse image: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any, fallback string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		msg := fallback
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		c.log.Warn("function call failed", "path", path, "status", resp.StatusCode, "error", msg)
		return &ResponseError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
