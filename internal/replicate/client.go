package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	PollInterval time.Duration
	MaxAttempts  int
}

type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	log          *slog.Logger
	pollInterval time.Duration
	maxAttempts  int
}

// Input holds the sampling parameters understood by the FLUX family of models.
type Input struct {
	Prompt        string `json:"prompt"`
	AspectRatio   string `json:"aspect_ratio,omitempty"`
	NumOutputs    int    `json:"num_outputs,omitempty"`
	OutputFormat  string `json:"output_format,omitempty"`
	OutputQuality int    `json:"output_quality,omitempty"`
	Seed          *int   `json:"seed,omitempty"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// APIError is returned when Replicate answered with an error payload.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("replicate prediction failed: %s", e.Detail)
	}
	return fmt.Sprintf("replicate error: status=%d detail=%s", e.StatusCode, e.Detail)
}

func (e *APIError) ProviderMessage() string {
	return e.Detail
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 120
	}
	return &Client{
		apiKey:       opts.APIKey,
		baseURL:      baseURL,
		httpClient:   httpClient,
		log:          log,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Run creates a prediction for model ("owner/name") and waits until it settles.
// The result is the raw output list: URLs or data URIs.
func (c *Client) Run(ctx context.Context, model string, input Input) ([]string, error) {
	pred, err := c.createPrediction(ctx, model, input)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	if !isTerminal(pred.Status) {
		pred, err = c.waitPrediction(ctx, pred)
		if err != nil {
			return nil, err
		}
	}
	return predictionOutput(pred)
}

func (c *Client) createPrediction(ctx context.Context, model string, input Input) (*prediction, error) {
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid model identifier %q", model)
	}
	endpoint := fmt.Sprintf("%s/v1/models/%s/%s/predictions", c.baseURL, owner, name)

	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	c.log.Info("creating replicate prediction", "model", model, "aspect_ratio", input.AspectRatio)
	return c.do(req)
}

func (c *Client) waitPrediction(ctx context.Context, pred *prediction) (*prediction, error) {
	getURL := pred.URLs.Get
	if getURL == "" {
		getURL = fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, pred.ID)
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		current, err := c.do(req)
		if err != nil {
			return nil, fmt.Errorf("get prediction: %w", err)
		}
		if isTerminal(current.Status) {
			c.log.Info("replicate prediction settled", "id", current.ID, "status", current.Status, "attempt", attempt+1)
			return current, nil
		}
		if attempt%10 == 0 {
			c.log.Debug("replicate prediction pending", "id", current.ID, "status", current.Status, "attempt", attempt+1)
		}
	}
	return nil, fmt.Errorf("prediction %s timeout after %d attempts", pred.ID, c.maxAttempts)
}

func (c *Client) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.log.Error("replicate request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(rawBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(rawBody)}
	}

	var pred prediction
	if err := json.Unmarshal(rawBody, &pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w (body=%s)", err, truncateBody(rawBody))
	}
	return &pred, nil
}

func predictionOutput(pred *prediction) ([]string, error) {
	switch pred.Status {
	case "succeeded":
	case "failed", "canceled":
		detail := fmt.Sprint(pred.Error)
		if pred.Error == nil || detail == "" {
			detail = "prediction " + pred.Status
		}
		return nil, &APIError{Detail: detail}
	default:
		return nil, fmt.Errorf("unexpected prediction status: %s", pred.Status)
	}

	var many []string
	if err := json.Unmarshal(pred.Output, &many); err == nil {
		if len(many) == 0 {
			return nil, fmt.Errorf("prediction %s returned no output", pred.ID)
		}
		return many, nil
	}
	var single string
	if err := json.Unmarshal(pred.Output, &single); err == nil && single != "" {
		return []string{single}, nil
	}
	return nil, fmt.Errorf("unsupported prediction output: %s", truncateBody(pred.Output))
}

func isTerminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Title != "" {
			return payload.Title
		}
	}
	return truncateBody(body)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
