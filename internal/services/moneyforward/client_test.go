package moneyforward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"billsync/internal/config"
	"billsync/internal/invoice"
	"billsync/internal/project"
	"billsync/internal/services"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(context.Context) (string, error) {
	return s.token, s.err
}

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.MoneyForward.BaseURL = serverURL
	return NewClient(&cfg, staticTokens{token: "test-token"})
}

func TestFindByCorrelationKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("billing_number"); got != "abc123" {
			t.Errorf("billing_number = %q", got)
		}
		json.NewEncoder(w).Encode(billingListResponse{Data: []RemoteInvoice{
			{ID: "b-1", BillingNumber: "other"},
			{ID: "b-2", BillingNumber: "abc123"},
		}})
	}))
	defer server.Close()

	id, err := testClient(t, server.URL).FindByCorrelationKey(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FindByCorrelationKey: %v", err)
	}
	if id != "b-2" {
		t.Errorf("id = %q, want b-2", id)
	}
}

func TestFindByCorrelationKeyNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(billingListResponse{})
	}))
	defer server.Close()

	id, err := testClient(t, server.URL).FindByCorrelationKey(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByCorrelationKey: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
}

func TestCreateSendsBillingPayload(t *testing.T) {
	var captured billingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(RemoteInvoice{ID: "b-9", BillingNumber: captured.Billing.BillingNumber})
	}))
	defer server.Close()

	inv := invoice.Invoice{
		Customer:       project.Customer{ID: "c1", Name: "Acme"},
		IssueDate:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		CorrelationKey: "deadbeef",
		Note:           "案件ID: p1",
		Items: []invoice.LineItem{
			{ProjectID: "p1", Description: "新人研修", UnitPrice: 50000, Quantity: 2},
		},
	}
	created, err := testClient(t, server.URL).Create(context.Background(), inv)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "b-9" {
		t.Errorf("created.ID = %q", created.ID)
	}
	got := captured.Billing
	if got.PartnerName != "Acme" || got.BillingNumber != "deadbeef" {
		t.Errorf("billing header = %+v", got)
	}
	if got.BillingDate != "2026-08-31" || got.DueDate != "2026-09-30" {
		t.Errorf("billing dates = %s / %s", got.BillingDate, got.DueDate)
	}
	if len(got.Items) != 1 || got.Items[0].UnitPrice != 50000 || got.Items[0].Quantity != 2 {
		t.Errorf("billing items = %+v", got.Items)
	}
}

func TestUpdateUsesPut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/billings/b-7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RemoteInvoice{ID: "b-7"})
	}))
	defer server.Close()

	updated, err := testClient(t, server.URL).Update(context.Background(), "b-7", invoice.Invoice{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != "b-7" {
		t.Errorf("updated.ID = %q", updated.ID)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		marker error
	}{
		{"unauthorized", http.StatusUnauthorized, services.ErrAuth},
		{"forbidden", http.StatusForbidden, services.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, services.ErrTransient},
		{"server error", http.StatusInternalServerError, services.ErrTransient},
		{"bad gateway", http.StatusBadGateway, services.ErrTransient},
		{"unprocessable", http.StatusUnprocessableEntity, services.ErrPermanent},
		{"not found", http.StatusNotFound, services.ErrPermanent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"errors":["nope"]}`))
			}))
			defer server.Close()

			err := testClient(t, server.URL).Ping(context.Background())
			if !errors.Is(err, tc.marker) {
				t.Errorf("Ping error = %v, want marker %v", err, tc.marker)
			}
		})
	}
}

func TestTokenFailureSurfacesAsAuth(t *testing.T) {
	cfg := config.Default()
	cfg.MoneyForward.BaseURL = "http://localhost:0"
	client := NewClient(&cfg, staticTokens{err: services.Wrap(services.ErrAuth, "moneyforward", "token", "no stored token", nil)})

	err := client.Ping(context.Background())
	if !errors.Is(err, services.ErrAuth) {
		t.Errorf("Ping error = %v, want auth marker", err)
	}
}
