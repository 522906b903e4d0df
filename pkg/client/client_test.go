package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmerrifield20/provenance/pkg/client"
)

const productID = "550e8400-e29b-41d4-a716-446655440000"

// ── Stub server ─────────────────────────────────────────────────────────

func stubLedgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/products", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{"id": productID, "name": "Widget", "category": "electronics", "status": "in_transit"},
			},
			"count": 1,
		})
	})

	mux.HandleFunc("POST /api/v1/products", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"kind": "AuthorizationError", "error": "create product: unauthorized", "reason": "guest",
			})
			return
		}
		var req client.CreateProductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"product": map[string]any{
				"id": productID, "name": req.Name, "category": req.Category, "origin": req.Origin,
				"chain": []map[string]any{{"block_number": 0, "stage": "created", "previous_hash": "0"}},
			},
		})
	})

	mux.HandleFunc("GET /api/v1/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != productID {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"kind": "NotFound", "error": "product not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"product": map[string]any{"id": productID, "name": "Widget"},
		})
	})

	mux.HandleFunc("POST /api/v1/products/{id}/checkpoints", func(w http.ResponseWriter, r *http.Request) {
		var req client.CheckpointRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stage == "delivered" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"kind": "InvalidTransition", "error": "created -> delivered is not allowed",
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"block": map[string]any{"block_number": 1, "stage": req.Stage, "location": req.Location},
		})
	})

	mux.HandleFunc("GET /api/v1/products/{id}/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"product_id": r.PathValue("id"), "valid": false, "first_invalid_index": 2, "reason": "hash mismatch",
		})
	})

	mux.HandleFunc("POST /api/v1/accounts/{id}/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"account_id": r.PathValue("id"), "verified": true})
	})

	mux.HandleFunc("GET /api/v1/accounts/pending", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"accounts": []map[string]any{{"id": "m2", "username": "newco", "role": "manufacturer"}},
			"count":    1,
		})
	})

	mux.HandleFunc("GET /api/v1/audit-logs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			http.Error(w, "expected limit=2", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{"id": 2, "actor_id": "a1", "action": "user.verify"},
				{"id": 1, "actor_id": "m1", "action": "product.create"},
			},
			"count": 2,
		})
	})

	mux.HandleFunc("GET /api/v1/suspicious-activities", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("limit") {
			http.Error(w, "unexpected limit", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"activities": []map[string]any{{"id": 1, "reason": "impossible_speed", "severity": "medium"}},
			"count":      1,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	for _, base := range []string{"", "localhost", "://bad"} {
		if _, err := client.New(base); err == nil {
			t.Errorf("New(%q): expected error", base)
		}
	}
}

func TestNew_nilHTTPClient(t *testing.T) {
	if _, err := client.New("http://localhost", client.WithHTTPClient(nil)); err == nil {
		t.Fatal("expected error for nil http client")
	}
}

func TestListAndGetProduct(t *testing.T) {
	srv := stubLedgerServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	products, err := c.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 1 || products[0].ID.String() != productID {
		t.Fatalf("unexpected products: %+v", products)
	}

	p, err := c.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Name != "Widget" {
		t.Errorf("Name = %q, want Widget", p.Name)
	}
}

func TestGetProduct_notFound(t *testing.T) {
	srv := stubLedgerServer(t)
	c := newClient(t, srv)

	_, err := c.GetProduct(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != "NotFound" {
		t.Fatalf("expected NotFound APIError, got %v", err)
	}
}

func TestCreateProduct_sendsBearerToken(t *testing.T) {
	srv := stubLedgerServer(t)
	ctx := context.Background()
	req := client.CreateProductRequest{Name: "Widget", Category: "electronics", Origin: "Shenzhen"}

	_, err := newClient(t, srv).CreateProduct(ctx, req)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Reason != "guest" {
		t.Errorf("unexpected error: %+v", apiErr)
	}

	p, err := newClient(t, srv, client.WithBearerToken("good")).CreateProduct(ctx, req)
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if p.Origin != "Shenzhen" || len(p.Chain) != 1 || p.Chain[0].PreviousHash != "0" {
		t.Errorf("unexpected product: %+v", p)
	}
}

func TestAppendCheckpoint(t *testing.T) {
	srv := stubLedgerServer(t)
	c := newClient(t, srv, client.WithBearerToken("good"))
	ctx := context.Background()

	b, err := c.AppendCheckpoint(ctx, productID, client.CheckpointRequest{
		Stage: "manufacturing", Location: "Plant 1", Handler: "line 4",
	})
	if err != nil {
		t.Fatalf("AppendCheckpoint: %v", err)
	}
	if b.BlockNumber != 1 || b.Stage != "manufacturing" {
		t.Errorf("unexpected block: %+v", b)
	}

	_, err = c.AppendCheckpoint(ctx, productID, client.CheckpointRequest{Stage: "delivered"})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Kind != "InvalidTransition" {
		t.Fatalf("expected 409 InvalidTransition, got %v", err)
	}
}

func TestAdminCalls(t *testing.T) {
	srv := stubLedgerServer(t)
	c := newClient(t, srv, client.WithBearerToken("good"))
	ctx := context.Background()

	report, err := c.VerifyChain(ctx, productID)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if report.Valid || report.FirstInvalidIndex == nil || *report.FirstInvalidIndex != 2 || report.Reason != "hash mismatch" {
		t.Errorf("unexpected report: %+v", report)
	}

	if err := c.VerifyAccount(ctx, "m2"); err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}

	pending, err := c.ListPendingAccounts(ctx)
	if err != nil || len(pending) != 1 || pending[0].ID != "m2" {
		t.Fatalf("ListPendingAccounts: %v %+v", err, pending)
	}

	entries, err := c.ListAuditLog(ctx, 2)
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != 2 {
		t.Errorf("unexpected entries: %+v", entries)
	}

	recs, err := c.ListSuspiciousActivity(ctx, 0)
	if err != nil {
		t.Fatalf("ListSuspiciousActivity: %v", err)
	}
	if len(recs) != 1 || recs[0].Reason != "impossible_speed" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestAPIError_plainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv).ListProducts(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
