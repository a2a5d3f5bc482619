package moneyforward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"billsync/internal/config"
	"billsync/internal/invoice"
	"billsync/internal/services"
)

// HTTPDoer describes the HTTP client used for billing API calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies a valid OAuth access token, refreshing when needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RemoteInvoice is the subset of the billing resource the pipeline needs.
type RemoteInvoice struct {
	ID            string `json:"id"`
	BillingNumber string `json:"billing_number"`
}

// Client talks to the MoneyForward Invoice API.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	tokens     TokenSource
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a billing client from configuration.
func NewClient(cfg *config.Config, tokens TokenSource, opts ...Option) *Client {
	timeout := 30 * time.Second
	if cfg.Submission.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Submission.RequestTimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(cfg.MoneyForward.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type billingListResponse struct {
	Data []RemoteInvoice `json:"data"`
}

// FindByCorrelationKey looks up an existing billing by its billing number.
// Returns the empty string when no billing carries the key.
func (c *Client) FindByCorrelationKey(ctx context.Context, key string) (string, error) {
	endpoint := fmt.Sprintf("%s/billings?billing_number=%s", c.baseURL, url.QueryEscape(key))
	var resp billingListResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", err
	}
	for _, billing := range resp.Data {
		if billing.BillingNumber == key {
			return billing.ID, nil
		}
	}
	return "", nil
}

// Create submits a new billing for the invoice.
func (c *Client) Create(ctx context.Context, inv invoice.Invoice) (RemoteInvoice, error) {
	var created RemoteInvoice
	endpoint := c.baseURL + "/billings"
	if err := c.do(ctx, http.MethodPost, endpoint, billingPayload(inv), &created); err != nil {
		return RemoteInvoice{}, err
	}
	return created, nil
}

// Update replaces an existing billing wholesale, line items included.
func (c *Client) Update(ctx context.Context, id string, inv invoice.Invoice) (RemoteInvoice, error) {
	var updated RemoteInvoice
	endpoint := fmt.Sprintf("%s/billings/%s", c.baseURL, id)
	if err := c.do(ctx, http.MethodPut, endpoint, billingPayload(inv), &updated); err != nil {
		return RemoteInvoice{}, err
	}
	return updated, nil
}

// Ping verifies connectivity and token validity with a minimal list call.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := c.baseURL + "/billings?per_page=1"
	return c.do(ctx, http.MethodGet, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, services.ErrAuth) {
			return err
		}
		return services.Wrap(services.ErrAuth, "moneyforward", "token", "", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrPermanent, "moneyforward", "request", "encode body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "moneyforward", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "moneyforward", "request", "read body", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return classifyStatusError(resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrTransient, "moneyforward", "request", "decode response", err)
	}
	return nil
}

// classifyStatusError maps HTTP status classes onto the submission error
// taxonomy: 401/403 auth, 408/429/5xx transient, remaining 4xx permanent.
func classifyStatusError(status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, extractErrorMessage(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "moneyforward", "request", detail, nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "moneyforward", "request", detail, nil)
	default:
		return services.Wrap(services.ErrPermanent, "moneyforward", "request", detail, nil)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, "moneyforward", "request", "timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return services.Wrap(services.ErrTransient, "moneyforward", "request", "network error", err)
	}
	return services.Wrap(services.ErrTransient, "moneyforward", "request", "http error", err)
}

// extractErrorMessage digs a readable message out of the API error envelope.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if len(envelope.Errors) > 0 {
			var list []string
			if err := json.Unmarshal(envelope.Errors, &list); err == nil {
				return strings.Join(list, ", ")
			}
			var fields map[string][]string
			if err := json.Unmarshal(envelope.Errors, &fields); err == nil {
				parts := make([]string, 0, len(fields))
				for field, messages := range fields {
					parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(messages, ", ")))
				}
				return strings.Join(parts, "; ")
			}
			return string(envelope.Errors)
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
