package web3forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	FeedbackSubject = "Ghola User Feedback"
	FeedbackFrom    = "Ghola Feedback Form"
	AccessSubject   = "New Premium Access Request"
	AccessFrom      = "Ghola Premium Request"
)

type Options struct {
	AccessKey  string
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RejectedError is a submission the service refused. Message comes from the service.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return e.Message
}

type Client struct {
	accessKey  string
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

type Form struct {
	Email    string
	Message  string
	Subject  string
	FromName string
}

func New(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "https://api.web3forms.com/submit"
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
		accessKey:  opts.AccessKey,
		endpoint:   endpoint,
		httpClient: httpClient,
		log:        log,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.accessKey != ""
}

// Feedback sends a user feedback message.
func (c *Client) Feedback(ctx context.Context, email, message string) error {
	return c.Submit(ctx, Form{Email: email, Message: message, Subject: FeedbackSubject, FromName: FeedbackFrom})
}

// RequestAccess files a premium access request for email.
func (c *Client) RequestAccess(ctx context.Context, email string) error {
	return c.Submit(ctx, Form{Email: email, Subject: AccessSubject, FromName: AccessFrom})
}

// Submit posts the form. A reply with success=false is an error carrying the service message.
func (c *Client) Submit(ctx context.Context, form Form) error {
	if c.accessKey == "" {
		return errors.New("web3forms access key is not configured")
	}
	values := url.Values{}
	values.Set("access_key", c.accessKey)
	values.Set("email", form.Email)
	if form.Message != "" {
		values.Set("message", form.Message)
	}
	values.Set("subject", form.Subject)
	values.Set("from_name", form.FromName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: status=%d: %w", resp.StatusCode, err)
	}
	if !body.Success {
		c.log.Warn("form submission rejected", "status", resp.StatusCode, "subject", form.Subject, "message", body.Message)
		if body.Message == "" {
			body.Message = "form submission failed"
		}
		return &RejectedError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	return nil
}
