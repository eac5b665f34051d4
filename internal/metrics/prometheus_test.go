package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/shopspring/decimal"
)

func scrape(t *testing.T, m *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{models.ErrInvalidAmount, "validation"},
		{models.ErrInvalidTransition, "state"},
		{models.ErrDuplicateUsername, "conflict"},
		{&models.InsufficientBalanceError{Balance: decimal.Zero, Requested: decimal.NewFromInt(1)}, "business_rule"},
		{models.ErrForbidden, "forbidden"},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), "not_found"},
		{models.StoreError("op", fmt.Errorf("timeout")), "store_unavailable"},
		{fmt.Errorf("other"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCollectorExposesRecordedSeries(t *testing.T) {
	m := NewCollector()

	m.ObserveOperation("adjust_balance", time.Now(), nil)
	m.ObserveOperation("adjust_balance", time.Now(), models.ErrLimitExceeded)
	m.RecordLedgerEntry(&models.LedgerEntry{Direction: models.DirectionDebit, Actor: models.ActorSelf})
	m.RecordLimitRejection("daily")
	m.SetProfileCounts(map[models.Status]int{models.StatusPending: 2})
	m.RecordEvent("profile.created", nil)
	m.ObserveHTTP("GET", "/v1/me", 200, time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`account_operations_total{operation="adjust_balance",outcome="ok"} 1`,
		`account_operations_total{operation="adjust_balance",outcome="business_rule"} 1`,
		`ledger_entries_total{actor="self",direction="debit"} 1`,
		`limit_rejections_total{window="daily"} 1`,
		`profiles{status="pending"} 2`,
		`profiles{status="approved"} 0`,
		`account_events_processed_total{result="ok",type="profile.created"} 1`,
		`http_requests_total{method="GET",route="/v1/me",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.RecordLimitRejection("weekly")
	if strings.Contains(scrape(t, b), `limit_rejections_total{window="weekly"}`) {
		t.Error("collectors share a registry")
	}
}
