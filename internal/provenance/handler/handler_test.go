package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/audit"
	"github.com/jmerrifield20/provenance/internal/detector"
	"github.com/jmerrifield20/provenance/internal/identity"
	"github.com/jmerrifield20/provenance/internal/provenance/handler"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"github.com/jmerrifield20/provenance/internal/provenance/repository"
	"github.com/jmerrifield20/provenance/internal/provenance/service"
	"go.uber.org/zap"
)

const secret = "handler-test-secret"

type testEnv struct {
	router *gin.Engine
	repo   *repository.MemoryRepository
	det    *detector.Detector
	audit  *audit.MemoryStore
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	registry := identity.NewMemoryRegistry(
		model.Account{ID: "m1", Username: "acme", Role: model.RoleManufacturer, Verified: true, Company: "Acme"},
		model.Account{ID: "m2", Username: "newco", Role: model.RoleManufacturer, Company: "Newco"},
		model.Account{ID: "d1", Username: "truckco", Role: model.RoleDistributor, Verified: true, Company: "TruckCo"},
		model.Account{ID: "a1", Username: "root", Role: model.RoleAdmin, Verified: true},
	)
	repo := repository.NewMemoryRepository()
	det := detector.New(detector.DefaultConfig(), detector.NewMemoryStore(), detector.NewMemoryDenialCounter(), repo, nil, logger)
	auditStore := audit.NewMemoryStore()
	ledger := service.New(repo, audit.NewLogger(auditStore, logger), det, registry, logger)
	t.Cleanup(det.Drain)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(identity.ResolveActor(identity.NewTokenVerifier([]byte(secret), ""), registry, logger))
	handler.NewProductHandler(ledger, logger).Register(v1)
	handler.NewAdminHandler(ledger, logger).Register(v1)
	return &testEnv{router: r, repo: repo, det: det, audit: auditStore}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (e *testEnv) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, actor))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

var widget = map[string]any{"name": "Widget", "category": "electronics", "origin": "Austin"}

func (e *testEnv) createProduct(t *testing.T) uuid.UUID {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/products", "m1", widget)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Product model.Product `json:"product"`
	}](t, w)
	return resp.Product.ID
}

func TestCreateAndGetProduct(t *testing.T) {
	env := setupRouter(t)
	id := env.createProduct(t)

	w := env.do(t, http.MethodPost, "/api/v1/products/"+id.String()+"/checkpoints", "d1",
		map[string]any{"stage": "warehouse", "location": "Depot 4", "handler": "truckco"})
	if w.Code != http.StatusCreated {
		t.Fatalf("append: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	block := decode[struct {
		Block model.Block `json:"block"`
	}](t, w).Block
	if block.BlockNumber != 1 || block.Stage != model.StageWarehouse {
		t.Errorf("block: %+v", block)
	}

	// Reads need no token.
	w = env.do(t, http.MethodGet, "/api/v1/products/"+id.String(), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	p := decode[struct {
		Product model.Product `json:"product"`
	}](t, w).Product
	if len(p.Chain) != 2 || p.Chain[1].PreviousHash != p.Chain[0].Hash {
		t.Errorf("chain: %+v", p.Chain)
	}

	w = env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	list := decode[struct {
		Products []model.Product `json:"products"`
		Count    int             `json:"count"`
	}](t, w)
	if list.Count != 1 || list.Products[0].Chain != nil || list.Products[0].LatestStage != model.StageWarehouse {
		t.Errorf("list: %+v", list)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	env := setupRouter(t)
	id := env.createProduct(t)
	checkpoints := "/api/v1/products/" + id.String() + "/checkpoints"

	if w := env.do(t, http.MethodPost, checkpoints, "d1",
		map[string]any{"stage": "retail", "location": "Shop", "handler": "h"}); w.Code != http.StatusCreated {
		t.Fatalf("setup append: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   any
		status int
		kind   string
	}{
		{"validation", http.MethodPost, "/api/v1/products", "m1", map[string]any{"name": "x"}, http.StatusBadRequest, service.KindValidation},
		{"guest denied", http.MethodPost, "/api/v1/products", "", widget, http.StatusUnauthorized, service.KindAuthorization},
		{"unverified denied", http.MethodPost, "/api/v1/products", "m2", widget, http.StatusForbidden, service.KindAuthorization},
		{"invalid transition", http.MethodPost, checkpoints, "d1",
			map[string]any{"stage": "warehouse", "location": "Depot", "handler": "h"}, http.StatusConflict, service.KindTransition},
		{"implausible", http.MethodPost, checkpoints, "d1",
			map[string]any{"stage": "retail", "location": "Shop", "handler": "h", "gps": map[string]any{"lat": 120, "lng": 0}},
			http.StatusUnprocessableEntity, service.KindImplausible},
		{"not found", http.MethodGet, "/api/v1/products/" + uuid.NewString(), "", nil, http.StatusNotFound, service.KindNotFound},
		{"bad id", http.MethodGet, "/api/v1/products/nope", "", nil, http.StatusBadRequest, service.KindValidation},
		{"admin only", http.MethodGet, "/api/v1/audit-logs", "d1", nil, http.StatusForbidden, service.KindAuthorization},
		{"unknown account", http.MethodPost, "/api/v1/accounts/ghost/verify", "a1", nil, http.StatusNotFound, service.KindNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, tc.method, tc.path, tc.actor, tc.body)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if got := decode[map[string]any](t, w)["kind"]; got != tc.kind {
				t.Errorf("kind: got %v, want %s", got, tc.kind)
			}
		})
	}
}

func TestMalformedBodyIsAudited(t *testing.T) {
	env := setupRouter(t)
	id := env.createProduct(t)
	checkpoints := "/api/v1/products/" + id.String() + "/checkpoints"

	tests := []struct {
		name   string
		path   string
		actor  string
		status int
		action string
		detail string
	}{
		{"create", "/api/v1/products", "m1", http.StatusBadRequest, model.ActionProductCreate, "rejected (ValidationError)"},
		{"create as guest", "/api/v1/products", "", http.StatusUnauthorized, model.ActionProductCreate, "denied (RoleNotPermitted)"},
		{"checkpoint", checkpoints, "d1", http.StatusBadRequest, model.ActionCheckpointRejected, "rejected (ValidationError)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(`{"name": `))
			req.Header.Set("Content-Type", "application/json")
			if tc.actor != "" {
				req.Header.Set("Authorization", "Bearer "+token(t, tc.actor))
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}

			entries, err := env.audit.ListRecent(req.Context(), 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].Action != tc.action || !strings.HasPrefix(entries[0].Details, tc.detail) {
				t.Errorf("audit tail: %+v", entries)
			}
		})
	}
}

func TestDenialCarriesReason(t *testing.T) {
	env := setupRouter(t)
	w := env.do(t, http.MethodPost, "/api/v1/products", "m2", widget)
	if got := decode[map[string]any](t, w)["reason"]; got != "NotVerified" {
		t.Errorf("reason: got %v", got)
	}
}

func TestChainIntegrity_500(t *testing.T) {
	env := setupRouter(t)
	id := env.createProduct(t)
	env.repo.Tamper(id, 0, func(b *model.Block) { b.Handler = "mallory" })

	w := env.do(t, http.MethodGet, "/api/v1/products/"+id.String(), "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if kind := decode[map[string]any](t, w)["kind"]; kind != service.KindChainIntegrity {
		t.Errorf("kind: %v", kind)
	}

	w = env.do(t, http.MethodGet, "/api/v1/products/"+id.String()+"/verify", "a1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", w.Code)
	}
	report := decode[map[string]any](t, w)
	if report["valid"] != false || report["first_invalid_index"] != float64(0) {
		t.Errorf("report: %v", report)
	}
}

func TestAdminEndpoints(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/accounts/pending", "a1", nil)
	pending := decode[struct {
		Accounts []model.Account `json:"accounts"`
	}](t, w)
	if len(pending.Accounts) != 1 || pending.Accounts[0].ID != "m2" {
		t.Fatalf("pending: %+v", pending)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/accounts/m2/verify", "a1", nil); w.Code != http.StatusOK {
		t.Fatalf("verify account: %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/api/v1/products", "m2", widget); w.Code != http.StatusCreated {
		t.Errorf("newly verified manufacturer: expected 201, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/audit-logs?limit=1", "a1", nil)
	logs := decode[struct {
		Entries []model.AuditLogEntry `json:"entries"`
	}](t, w)
	if len(logs.Entries) != 1 || logs.Entries[0].Action != model.ActionProductCreate {
		t.Errorf("audit tail: %+v", logs.Entries)
	}

	w = env.do(t, http.MethodGet, "/api/v1/suspicious-activities", "a1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("findings: %d", w.Code)
	}
	if acts := decode[map[string]any](t, w)["activities"]; acts == nil {
		t.Error("activities should be an empty array, not null")
	}
}

func TestInvalidToken_401(t *testing.T) {
	env := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
