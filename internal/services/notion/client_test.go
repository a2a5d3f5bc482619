package notion_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"billsync/internal/config"
	"billsync/internal/services"
	"billsync/internal/services/notion"
)

func newTestClient(t *testing.T, handler http.Handler) (*notion.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notion.APIKey = "test-key"
	cfg.Notion.DatabaseID = "db-1"
	cfg.Notion.BaseURL = server.URL
	return notion.NewClient(&cfg), server
}

func pageJSON(id, title string) map[string]any {
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			"案件名": map[string]any{
				"type":  "title",
				"title": []map[string]any{{"plain_text": title}},
			},
		},
	}
}

func TestQueryDocumentsFollowsPagination(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/db-1/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		calls++
		var body struct {
			StartCursor string `json:"start_cursor"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		resp := map[string]any{}
		if body.StartCursor == "" {
			resp["results"] = []any{pageJSON("p1", "First"), pageJSON("p2", "Second")}
			resp["has_more"] = true
			resp["next_cursor"] = "cursor-2"
		} else {
			resp["results"] = []any{pageJSON("p3", "Third")}
			resp["has_more"] = false
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	docs, err := client.QueryDocuments(context.Background(), notion.Query{})
	if err != nil {
		t.Fatalf("QueryDocuments failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
	if len(docs) != 3 || docs[2].ID != "p3" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	if title, ok := docs[0].Title("案件名"); !ok || title != "First" {
		t.Fatalf("title extraction failed: %q %v", title, ok)
	}
}

func TestQueryDocumentsHonorsLimit(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"results":     []any{pageJSON("p1", "A"), pageJSON("p2", "B"), pageJSON("p3", "C")},
			"has_more":    true,
			"next_cursor": "more",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	docs, err := client.QueryDocuments(context.Background(), notion.Query{Limit: 2})
	if err != nil {
		t.Fatalf("QueryDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected limit to cap results, got %d", len(docs))
	}
}

func TestQueryDocumentsSendsStatusFilter(t *testing.T) {
	var captured json.RawMessage
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Filter json.RawMessage `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		captured = body.Filter
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}, "has_more": false})
	}))

	_, err := client.QueryDocuments(context.Background(), notion.Query{
		Filters: []notion.Filter{{Property: "ステータス", StatusEquals: "完了"}},
	})
	if err != nil {
		t.Fatalf("QueryDocuments failed: %v", err)
	}
	var filter map[string]any
	if err := json.Unmarshal(captured, &filter); err != nil {
		t.Fatalf("filter not sent: %v", err)
	}
	if filter["property"] != "ステータス" {
		t.Fatalf("unexpected filter: %v", filter)
	}
}

func TestQueryDocumentsClassifiesServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.QueryDocuments(context.Background(), notion.Query{})
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}
}

func TestQueryDocumentsClassifiesAuthError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))

	_, err := client.QueryDocuments(context.Background(), notion.Query{})
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestRetrievePage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pages/cust-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(pageJSON("cust-1", "Acme Corp"))
	}))

	doc, err := client.RetrievePage(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("RetrievePage failed: %v", err)
	}
	if name, ok := doc.FirstTitle(); !ok || name != "Acme Corp" {
		t.Fatalf("expected customer title, got %q %v", name, ok)
	}
}

func TestSetCheckbox(t *testing.T) {
	var captured map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "p1"})
	}))

	if err := client.SetCheckbox(context.Background(), "p1", "請求済み", true); err != nil {
		t.Fatalf("SetCheckbox failed: %v", err)
	}
	props, _ := captured["properties"].(map[string]any)
	if props == nil || props["請求済み"] == nil {
		t.Fatalf("checkbox property not sent: %v", captured)
	}
}
