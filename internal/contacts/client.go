// Package contacts syncs generation contacts into the Loops audience.
package contacts

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

	"github.com/digkill/ghola/internal/models"
)

type Options struct {
	APIKey     string
	BaseURL    string
	Source     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	apiKey     string
	baseURL    string
	source     string
	httpClient *http.Client
	log        *slog.Logger
}

type Contact struct {
	Email      string `json:"email"`
	Source     string `json:"source,omitempty"`
	UserGroup  string `json:"userGroup,omitempty"`
	Subscribed bool   `json:"subscribed"`
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://app.loops.so"
	}
	source := opts.Source
	if source == "" {
		source = "ghola"
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
		baseURL:    baseURL,
		source:     source,
		httpClient: httpClient,
		log:        log,
	}
}

func (c *Client) Name() string {
	return "contacts"
}

// Deliver is a no-op for anonymous generations.
func (c *Client) Deliver(ctx context.Context, rec models.GenerationLog) error {
	email := strings.TrimSpace(rec.ContactEmail)
	if email == "" {
		return nil
	}
	return c.Create(ctx, Contact{Email: email, UserGroup: string(rec.Tier), Subscribed: true})
}

// Create adds a contact. A contact that already exists counts as success.
func (c *Client) Create(ctx context.Context, contact Contact) error {
	if contact.Source == "" {
		contact.Source = c.source
	}
	body, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/contacts/create", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loops request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		c.log.Debug("contact already exists", "email", contact.Email)
		return nil
	case resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Error("loops contact create failed", "status", resp.StatusCode, "body", truncateBody(raw))
		return fmt.Errorf("loops error: status=%d body=%s", resp.StatusCode, truncateBody(raw))
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
