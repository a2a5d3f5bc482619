package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"billsync/internal/config"
	"billsync/internal/services"
)

const (
	notionVersion   = "2022-06-28"
	maxPageSize     = 100
	defaultPageSize = 100
)

// HTTPDoer describes the HTTP client used by the Notion client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Notion API for one project database.
type Client struct {
	baseURL    string
	apiKey     string
	databaseID string
	httpClient HTTPDoer
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

// NewClient constructs a Notion client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := 30 * time.Second
	if cfg.Notion.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Notion.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(cfg.Notion.BaseURL, "/"),
		apiKey:     cfg.Notion.APIKey,
		databaseID: cfg.Notion.DatabaseID,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Filter is one property condition in a database query. Exactly one of the
// condition groups should be populated.
type Filter struct {
	Property string

	StatusEquals string
	SelectEquals string

	DateOnOrAfter  string
	DateOnOrBefore string

	NumberMin *float64
	NumberMax *float64

	CheckboxEquals *bool
}

// Query describes a database query: zero or more AND-combined filters plus an
// optional overall result limit.
type Query struct {
	Filters []Filter
	Limit   int
}

type queryRequest struct {
	Filter      json.RawMessage `json:"filter,omitempty"`
	StartCursor string          `json:"start_cursor,omitempty"`
	PageSize    int             `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []Document `json:"results"`
	HasMore    bool       `json:"has_more"`
	NextCursor string     `json:"next_cursor"`
}

// QueryDocuments fetches every page matching the query, following pagination
// until exhausted or the limit is reached. Transport failures and database
// errors are tagged ErrSourceUnavailable so the caller can distinguish them
// from an empty result; 401/403 responses are tagged ErrAuth.
func (c *Client) QueryDocuments(ctx context.Context, query Query) ([]Document, error) {
	filter, err := buildFilter(query.Filters)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "notion", "query", "build filter", err)
	}

	pageSize := defaultPageSize
	if query.Limit > 0 && query.Limit < pageSize {
		pageSize = query.Limit
	}

	var documents []Document
	cursor := ""
	for {
		req := queryRequest{Filter: filter, StartCursor: cursor, PageSize: pageSize}
		var resp queryResponse
		endpoint := fmt.Sprintf("%s/databases/%s/query", c.baseURL, c.databaseID)
		if err := c.post(ctx, endpoint, req, &resp); err != nil {
			return nil, err
		}
		documents = append(documents, resp.Results...)
		if query.Limit > 0 && len(documents) >= query.Limit {
			return documents[:query.Limit], nil
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return documents, nil
		}
		cursor = resp.NextCursor
	}
}

// RetrievePage fetches a single page, used to resolve customer references.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (Document, error) {
	var doc Document
	if strings.TrimSpace(pageID) == "" {
		return doc, services.Wrap(services.ErrValidation, "notion", "retrieve page", "page id required", nil)
	}
	endpoint := fmt.Sprintf("%s/pages/%s", c.baseURL, pageID)
	if err := c.get(ctx, endpoint, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// SetCheckbox updates a checkbox property on a page. Used to flag projects as
// invoiced after a confirmed submission.
func (c *Client) SetCheckbox(ctx context.Context, pageID, property string, value bool) error {
	payload := map[string]any{
		"properties": map[string]any{
			property: map[string]any{"checkbox": value},
		},
	}
	endpoint := fmt.Sprintf("%s/pages/%s", c.baseURL, pageID)
	return c.patch(ctx, endpoint, payload, nil)
}

func buildFilter(filters []Filter) (json.RawMessage, error) {
	conditions := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		if strings.TrimSpace(f.Property) == "" {
			return nil, fmt.Errorf("filter property required")
		}
		switch {
		case f.StatusEquals != "":
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"status":   map[string]any{"equals": f.StatusEquals},
			})
		case f.SelectEquals != "":
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"select":   map[string]any{"equals": f.SelectEquals},
			})
		case f.DateOnOrAfter != "":
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"date":     map[string]any{"on_or_after": f.DateOnOrAfter},
			})
		case f.DateOnOrBefore != "":
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"date":     map[string]any{"on_or_before": f.DateOnOrBefore},
			})
		case f.NumberMin != nil:
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"number":   map[string]any{"greater_than_or_equal_to": *f.NumberMin},
			})
		case f.NumberMax != nil:
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"number":   map[string]any{"less_than_or_equal_to": *f.NumberMax},
			})
		case f.CheckboxEquals != nil:
			conditions = append(conditions, map[string]any{
				"property": f.Property,
				"checkbox": map[string]any{"equals": *f.CheckboxEquals},
			})
		default:
			return nil, fmt.Errorf("filter on %q has no condition", f.Property)
		}
	}

	switch len(conditions) {
	case 0:
		return nil, nil
	case 1:
		return json.Marshal(conditions[0])
	default:
		return json.Marshal(map[string]any{"and": conditions})
	}
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

func (c *Client) patch(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPatch, endpoint, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrSourceUnavailable, "notion", "request", "encode body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return services.Wrap(services.ErrSourceUnavailable, "notion", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrSourceUnavailable, "notion", "request", "http error", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrSourceUnavailable, "notion", "request", "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "notion", "request", fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return services.Wrap(services.ErrSourceUnavailable, "notion", "request", fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrSourceUnavailable, "notion", "request", "decode response", err)
	}
	return nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
