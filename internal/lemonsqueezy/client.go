package lemonsqueezy

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
)

const (
	jsonAPIContentType = "application/vnd.api+json"
	maxPages           = 50
)

var premiumStatuses = map[string]bool{
	"active":   true,
	"on_trial": true,
	"trialing": true,
}

type Options struct {
	APIKey     string
	BaseURL    string
	ProductID  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	apiKey     string
	baseURL    string
	productID  string
	httpClient *http.Client
	log        *slog.Logger
}

type Subscription struct {
	ID        string
	ProductID string
	UserEmail string
	Status    string
}

type subscriptionPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			ProductID json.Number `json:"product_id"`
			UserEmail string      `json:"user_email"`
			Status    string      `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// LicenseResult is the subset of the license validation answer the gate needs.
type LicenseResult struct {
	Valid     bool
	Activated bool
	Status    string
	Error     string
}

// OK reports whether the key unlocks premium.
func (r LicenseResult) OK() bool {
	return r.Valid || r.Activated
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lemon squeezy error: status=%d body=%s", e.StatusCode, e.Body)
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.lemonsqueezy.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		productID:  strings.TrimSpace(opts.ProductID),
		httpClient: httpClient,
		log:        log,
	}
}

// HasActiveSubscription scans every page of the product's subscriptions for email.
func (c *Client) HasActiveSubscription(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, nil
	}
	found := false
	err := c.eachSubscription(ctx, func(sub Subscription) bool {
		if sub.ProductID == c.productID && strings.EqualFold(sub.UserEmail, email) && premiumStatuses[sub.Status] {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (c *Client) eachSubscription(ctx context.Context, fn func(Subscription) bool) error {
	q := url.Values{}
	q.Set("filter[product_id]", c.productID)
	q.Set("page[size]", "100")
	next := c.baseURL + "/v1/subscriptions?" + q.Encode()

	for page := 0; next != "" && page < maxPages; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		c.authorize(req)

		var body subscriptionPage
		if err := c.do(req, &body); err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		for _, item := range body.Data {
			sub := Subscription{
				ID:        item.ID,
				ProductID: item.Attributes.ProductID.String(),
				UserEmail: item.Attributes.UserEmail,
				Status:    item.Attributes.Status,
			}
			if !fn(sub) {
				return nil
			}
		}
		next = body.Links.Next
	}
	return nil
}

// ValidateLicense checks a license key. An invalid key is not an error.
func (c *Client) ValidateLicense(ctx context.Context, licenseKey string) (LicenseResult, error) {
	payload, err := json.Marshal(map[string]string{"license_key": strings.TrimSpace(licenseKey)})
	if err != nil {
		return LicenseResult{}, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/licenses/validate", bytes.NewReader(payload))
	if err != nil {
		return LicenseResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LicenseResult{}, fmt.Errorf("validate license: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return LicenseResult{}, fmt.Errorf("read response body: %w", err)
	}

	var body struct {
		Valid      bool   `json:"valid"`
		Activated  bool   `json:"activated"`
		Error      string `json:"error"`
		LicenseKey struct {
			Status string `json:"status"`
		} `json:"license_key"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		if resp.StatusCode >= 300 {
			return LicenseResult{}, &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
		}
		return LicenseResult{}, fmt.Errorf("decode license response: %w", err)
	}
	// invalid keys come back as 400/404 with a JSON body
	return LicenseResult{
		Valid:     body.Valid,
		Activated: body.Activated,
		Status:    body.LicenseKey.Status,
		Error:     body.Error,
	}, nil
}

// CheckoutURL prefills the hosted checkout with email when one is known.
func CheckoutURL(base, email string) string {
	base = strings.TrimSpace(base)
	email = strings.TrimSpace(email)
	if base == "" || email == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("checkout[email]", email)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", jsonAPIContentType)
	req.Header.Set("Content-Type", jsonAPIContentType)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("lemon squeezy request failed", "status", resp.StatusCode, "url", req.URL.Path, "body", truncateBody(raw))
		return &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
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
