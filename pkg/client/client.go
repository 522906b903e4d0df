package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// Wire types shared with the server.
type (
	Product                  = model.Product
	Block                    = model.Block
	GPS                      = model.GPS
	Account                  = model.Account
	AuditLogEntry            = model.AuditLogEntry
	SuspiciousActivityRecord = model.SuspiciousActivityRecord
)

// ErrNotFound is matched by any *APIError with a 404 status.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the ledger.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	// Reason is set on authorization denials.
	Reason string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ledger returned HTTP %d", e.StatusCode)
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Reason != "" {
		msg += " [" + e.Reason + "]"
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// CreateProductRequest is the payload for CreateProduct.
type CreateProductRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Origin      string `json:"origin"`
	BatchNumber string `json:"batch_number,omitempty"`
	GPS         *GPS   `json:"gps,omitempty"`
	PhotoRef    string `json:"photo_ref,omitempty"`
}

// CheckpointRequest is the payload for AppendCheckpoint.
type CheckpointRequest struct {
	Stage    string `json:"stage"`
	Location string `json:"location"`
	Handler  string `json:"handler"`
	Notes    string `json:"notes,omitempty"`
	GPS      *GPS   `json:"gps,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

// ChainReport is the server's integrity report for one product.
type ChainReport struct {
	ProductID         string `json:"product_id"`
	Valid             bool   `json:"valid"`
	FirstInvalidIndex *int   `json:"first_invalid_index,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Client talks to a ledger server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	return c, nil
}

// ListProducts returns product summaries, newest first.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out struct {
		Products []Product `json:"products"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// GetProduct returns a product with its full chain.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out struct {
		Product *Product `json:"product"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Product, nil
}

// CreateProduct registers a new product. The caller must be a verified
// manufacturer.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	var out struct {
		Product *Product `json:"product"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/products", req, &out); err != nil {
		return nil, err
	}
	return out.Product, nil
}

// AppendCheckpoint records the next custody stage of a product.
func (c *Client) AppendCheckpoint(ctx context.Context, productID string, req CheckpointRequest) (*Block, error) {
	var out struct {
		Block *Block `json:"block"`
	}
	path := "/api/v1/products/" + url.PathEscape(productID) + "/checkpoints"
	if err := c.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return out.Block, nil
}

// VerifyChain asks the server to re-verify a product's chain. Admin only.
func (c *Client) VerifyChain(ctx context.Context, productID string) (*ChainReport, error) {
	var out ChainReport
	path := "/api/v1/products/" + url.PathEscape(productID) + "/verify"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAccount marks an account as verified. Admin only.
func (c *Client) VerifyAccount(ctx context.Context, accountID string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(accountID)+"/verify", nil, nil)
}

// ListPendingAccounts returns accounts awaiting verification. Admin only.
func (c *Client) ListPendingAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/accounts/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// ListAuditLog returns the newest audit entries. limit <= 0 uses the server
// default.
func (c *Client) ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	var out struct {
		Entries []AuditLogEntry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, withLimit("/api/v1/audit-logs", limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ListSuspiciousActivity returns the newest detector findings.
func (c *Client) ListSuspiciousActivity(ctx context.Context, limit int) ([]SuspiciousActivityRecord, error) {
	var out struct {
		Activities []SuspiciousActivityRecord `json:"activities"`
	}
	if err := c.call(ctx, http.MethodGet, withLimit("/api/v1/suspicious-activities", limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Activities, nil
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}

// call encodes reqBody (if any), performs the request and decodes a 2xx body
// into respBody (if non-nil).
func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, respBody)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Kind   string `json:"kind"`
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Kind, apiErr.Message, apiErr.Reason = payload.Kind, payload.Error, payload.Reason
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
