package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Provenance-Signature"

// Event is the JSON body posted to the webhook.
type Event struct {
	Type      string                          `json:"type"`
	Timestamp time.Time                       `json:"timestamp"`
	Finding   *model.SuspiciousActivityRecord `json:"finding"`
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// WebhookNotifier posts signed findings to a single URL with retries.
type WebhookNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
	delays     []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewWebhookNotifier creates a WebhookNotifier. Failed deliveries are retried
// after 1s and 5s.
func NewWebhookNotifier(url, secret string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetRetryDelays replaces the per-attempt delays. The first entry applies to
// the first attempt.
func (n *WebhookNotifier) SetRetryDelays(delays ...time.Duration) {
	n.delays = delays
}

// SetMetricsRecorder configures the metrics callback.
func (n *WebhookNotifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// Notify delivers the finding, returning the last error if every attempt fails.
func (n *WebhookNotifier) Notify(ctx context.Context, rec *model.SuspiciousActivityRecord) error {
	body, err := json.Marshal(Event{
		Type:      "suspicious_activity." + string(rec.Severity),
		Timestamp: time.Now().UTC(),
		Finding:   rec,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	signature := Sign(body, n.secret)

	var lastErr error
	for attempt, delay := range n.delays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = n.post(ctx, body, signature)
		if n.onMetrics != nil {
			n.onMetrics(lastErr == nil)
		}
		if lastErr == nil {
			return nil
		}
		n.logger.Warn("notify: webhook delivery failed",
			zap.String("url", n.url),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return fmt.Errorf("deliver webhook: %w", lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the "sha256=<hex>" HMAC signature of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
