package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jmerrifield20/provenance/internal/notify"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

func finding() *model.SuspiciousActivityRecord {
	return &model.SuspiciousActivityRecord{
		ID:          7,
		SubjectType: model.SubjectAccount,
		SubjectID:   "acct-1",
		Reason:      "repeated_denials",
		Severity:    model.SeverityHigh,
	}
}

func TestWebhookNotifier_signsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(notify.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, "s3cret", zap.NewNop())
	if err := n.Notify(context.Background(), finding()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if want := notify.Sign(gotBody, "s3cret"); gotSig != want {
		t.Errorf("signature: got %q, want %q", gotSig, want)
	}
	var ev notify.Event
	if err := json.Unmarshal(gotBody, &ev); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if ev.Type != "suspicious_activity.high" || ev.Finding.SubjectID != "acct-1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestWebhookNotifier_retriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var outcomes []bool
	n := notify.NewWebhookNotifier(srv.URL, "k", zap.NewNop())
	n.SetRetryDelays(0, 0, 0)
	n.SetMetricsRecorder(func(ok bool) { outcomes = append(outcomes, ok) })

	if err := n.Notify(context.Background(), finding()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if len(outcomes) != 3 || outcomes[0] || !outcomes[2] {
		t.Errorf("unexpected metric outcomes: %v", outcomes)
	}
}

func TestWebhookNotifier_givesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, "k", zap.NewNop())
	n.SetRetryDelays(0, 0)
	if err := n.Notify(context.Background(), finding()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestLogNotifier(t *testing.T) {
	if err := notify.NewLogNotifier(zap.NewNop()).Notify(context.Background(), finding()); err != nil {
		t.Fatalf("LogNotifier: %v", err)
	}
}
