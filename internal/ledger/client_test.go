package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/researchai/research-bridge/internal/types"
)

func newTestClient(baseURL string, mirror EventMirror) *Client {
	return NewClient(Options{
		BaseURL:            baseURL,
		APIKey:             "test-key",
		Timeout:            2 * time.Second,
		MaxRetries:         1,
		DefaultCreditLimit: 100,
		Mirror:             mirror,
	})
}

func TestCheckCredits_SufficientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u1/credits" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Write([]byte(`{"available_credits": 10}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if !c.CheckCredits(context.Background(), "u1", 3) {
		t.Fatalf("expected sufficient balance to be admitted")
	}
	if c.CheckCredits(context.Background(), "u1", 11) {
		t.Fatalf("expected insufficient balance to be denied")
	}
}

func TestCheckCredits_ZeroBalanceDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"available_credits": 0}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if c.CheckCredits(context.Background(), "u1", 1) {
		t.Fatalf("expected zero balance to be denied")
	}
}

func TestCheckCredits_FailsClosedOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if c.CheckCredits(context.Background(), "u1", 1) {
		t.Fatalf("expected provider error to deny (fail closed)")
	}
}

func TestCheckCredits_FailsClosedOnUnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable from here on

	c := newTestClient(srv.URL, nil)
	if c.CheckCredits(context.Background(), "u1", 1) {
		t.Fatalf("expected unreachable provider to deny (fail closed)")
	}
}

func TestCheckCredits_FailsClosedOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance": 100}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if c.CheckCredits(context.Background(), "u1", 1) {
		t.Fatalf("expected response without available_credits to deny")
	}
}

func TestCheckCredits_RejectsInvalidInputBeforeNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("provider must not be called for invalid input")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if c.CheckCredits(context.Background(), "", 1) {
		t.Fatalf("expected empty user id to be denied")
	}
	if c.CheckCredits(context.Background(), "u1", 0) {
		t.Fatalf("expected zero requiredCredits to be denied")
	}
	if c.CheckCredits(context.Background(), "u1", -3) {
		t.Fatalf("expected negative requiredCredits to be denied")
	}
}

func TestCheckCredits_RetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"available_credits": 5}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if !c.CheckCredits(context.Background(), "u1", 1) {
		t.Fatalf("expected retry to recover from transient failure")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

type captureMirror struct {
	events []types.UsageEvent
	synced []bool
}

func (m *captureMirror) RecordEvent(event types.UsageEvent, synced bool) error {
	m.events = append(m.events, event)
	m.synced = append(m.synced, synced)
	return nil
}

func TestRecordUsage_SuccessMirrorsSynced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/usage" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	mirror := &captureMirror{}
	c := newTestClient(srv.URL, mirror)
	c.RecordUsage(context.Background(), types.UsageEvent{
		ID:        "ev1",
		UserID:    "u1",
		EventType: types.EventReportGenerated,
		Credits:   3,
		Timestamp: time.Now(),
	})

	if len(mirror.events) != 1 || !mirror.synced[0] {
		t.Fatalf("expected one synced mirror entry, got %+v", mirror.synced)
	}
}

func TestRecordUsage_FailureDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mirror := &captureMirror{}
	c := newTestClient(srv.URL, mirror)

	// Must not panic or error; the action already produced user-visible value.
	c.RecordUsage(context.Background(), types.UsageEvent{
		ID:        "ev2",
		UserID:    "u1",
		EventType: types.EventQuestionAsked,
		Credits:   1,
		Timestamp: time.Now(),
	})

	if len(mirror.events) != 1 || mirror.synced[0] {
		t.Fatalf("expected one unsynced mirror entry for reconciliation, got %+v", mirror.synced)
	}
}

func TestGetUserUsage_ParsesProviderPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u1/usage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"total_credits": 42,
			"reports_generated": 4,
			"sources_processed": 7,
			"credit_limit": 500,
			"last_activity": "2026-08-01T10:00:00Z"
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	summary := c.GetUserUsage(context.Background(), "u1")

	if summary.TotalCreditsUsed != 42 || summary.TotalReports != 4 || summary.TotalSources != 7 {
		t.Fatalf("unexpected summary totals: %+v", summary)
	}
	if summary.CreditLimit != 500 {
		t.Fatalf("expected credit limit 500, got %d", summary.CreditLimit)
	}
	if summary.LastActivity.Format(time.RFC3339) != "2026-08-01T10:00:00Z" {
		t.Fatalf("unexpected last activity: %v", summary.LastActivity)
	}
}

func TestGetUserUsage_DefaultsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	summary := c.GetUserUsage(context.Background(), "u1")

	if summary.TotalCreditsUsed != 0 || summary.TotalReports != 0 || summary.TotalSources != 0 {
		t.Fatalf("expected zero-usage defaults, got %+v", summary)
	}
	// The default must still bound spending, never grant unlimited credits.
	if summary.CreditLimit != 100 {
		t.Fatalf("expected configured default credit limit, got %d", summary.CreditLimit)
	}
}

func TestGetUserUsage_ClampsNegativeTotals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_credits": -5}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if got := c.GetUserUsage(context.Background(), "u1").TotalCreditsUsed; got != 0 {
		t.Fatalf("expected negative total to clamp to 0, got %d", got)
	}
}
