package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFilingCounters(t *testing.T) {
	m := New("0001234567")
	m.Filing(StatusProcessed, time.Second)
	m.Filing(StatusProcessed, 2*time.Second)
	m.Filing(StatusSkipped, 0)
	m.Filing(StatusFailed, time.Second)

	if got := testutil.ToFloat64(m.filingsTotal.WithLabelValues(StatusProcessed)); got != 2 {
		t.Errorf("processed: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.filingsTotal.WithLabelValues(StatusSkipped)); got != 1 {
		t.Errorf("skipped: got %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.filingDuration); got != 1 {
		t.Errorf("histogram series: got %d, want 1", got)
	}
}

func TestFetchCounters(t *testing.T) {
	m := New("0001234567")
	m.Fetch(TargetFiling, 1)
	m.Fetch(TargetFiling, 4)
	m.Fetch(TargetIndex, 0)

	if got := testutil.ToFloat64(m.fetchAttempts.WithLabelValues(TargetFiling)); got != 5 {
		t.Errorf("attempts: got %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.fetchRetries.WithLabelValues(TargetFiling)); got != 3 {
		t.Errorf("retries: got %v, want 3", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *RunMetrics
	m.Filing(StatusProcessed, time.Second)
	m.Fetch(TargetIndex, 3)
	m.LedgerEntries(7)
}

func TestWriteTextfile(t *testing.T) {
	m := New("0001234567")
	m.LedgerEntries(3)
	m.Fetch(TargetIndex, 1)

	path := filepath.Join(t.TempDir(), "nportp.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`nportp_ledger_entries{cik="0001234567"} 3`,
		`nportp_fetch_attempts_total{cik="0001234567",target="index"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}
