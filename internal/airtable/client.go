package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/ghola/internal/models"
)

type Options struct {
	APIKey     string
	BaseID     string
	Table      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client appends generation records to an Airtable table.
type Client struct {
	apiKey     string
	baseID     string
	table      string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type record struct {
	Fields map[string]any `json:"fields"`
}

type createRequest struct {
	Records  []record `json:"records"`
	Typecast bool     `json:"typecast"`
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.airtable.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseID:     opts.BaseID,
		table:      opts.Table,
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log,
	}
}

func (c *Client) Name() string {
	return "airtable"
}

func (c *Client) Deliver(ctx context.Context, rec models.GenerationLog) error {
	return c.CreateRecord(ctx, fieldsFor(rec))
}

func (c *Client) CreateRecord(ctx context.Context, fields map[string]any) error {
	body, err := json.Marshal(createRequest{Records: []record{{Fields: fields}}, Typecast: true})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v0/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(c.table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("airtable request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Error("airtable create failed", "status", resp.StatusCode, "table", c.table, "body", truncateBody(raw))
		return fmt.Errorf("airtable error: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}
	return nil
}

func fieldsFor(rec models.GenerationLog) map[string]any {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	fields := map[string]any{
		"Generation ID": rec.ID,
		"Character":     rec.Character,
		"Prompt":        rec.Prompt,
		"Tier":          string(rec.Tier),
		"Ratio":         rec.Ratio,
		"Style":         string(rec.Style),
		"Model":         rec.Model,
		"Created At":    createdAt.UTC().Format(time.RFC3339),
	}
	if rec.ImageURL != "" {
		fields["Image URL"] = rec.ImageURL
	}
	if rec.ContactEmail != "" {
		fields["Email"] = rec.ContactEmail
	}
	return fields
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
