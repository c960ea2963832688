package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DLAKE-IO/check-ganglia/internal/cache"
	"github.com/DLAKE-IO/check-ganglia/internal/output"
)

type sample struct{ host, metric, value string }

// mockScanner feeds fixed samples through the handler like cache.Scanner
// would, honouring the interest set.
type mockScanner struct {
	samples []sample
	report  cache.Report
	err     error

	interest cache.Set
}

func (m *mockScanner) Scan(interest cache.Set, onMatch cache.Handler) (cache.Report, error) {
	m.interest = interest
	if m.err != nil {
		return cache.Report{Status: output.OK}, m.err
	}
	rep := m.report
	for _, s := range m.samples {
		if !interest.Has(s.metric) {
			continue
		}
		rep.Matches++
		if err := onMatch(s.host, s.metric, s.value); err != nil {
			return rep, fmt.Errorf("%w: %w", cache.ErrHandler, err)
		}
	}
	return rep, nil
}

func TestNewScanCheck(t *testing.T) {
	tests := []struct {
		name    string
		metrics []string
		warn    string
		crit    string
		wantErr bool
	}{
		{name: "valid", metrics: []string{"load_one"}, warn: "4", crit: "8"},
		{name: "no thresholds", metrics: []string{"load_one"}},
		{name: "no metrics", wantErr: true},
		{name: "invalid warning", metrics: []string{"load_one"}, warn: "abc", crit: "8", wantErr: true},
		{name: "invalid critical", metrics: []string{"load_one"}, warn: "4", crit: "20:10", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := NewScanCheck(&mockScanner{}, tt.metrics, tt.warn, tt.crit, nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ch.Name() != "SCAN" {
				t.Errorf("Name() = %q, want %q", ch.Name(), "SCAN")
			}
		})
	}
}

func TestScanCheckRun(t *testing.T) {
	fresh := cache.Report{Status: output.OK, Files: 2}
	stale := cache.Report{Status: output.Critical, Files: 2, Bad: []string{"cluster2"}}

	tests := []struct {
		name        string
		warn, crit  string
		include     []string
		exclude     []string
		scanner     *mockScanner
		wantStatus  output.Status
		wantSummary string
		wantDetails []string
		wantPerf    map[string]float64
	}{
		{
			name: "OK - all below thresholds",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1", "load_one", "0.5"},
				{"web2", "load_one", "1.25"},
				{"web2", "cpu_idle", "99"},
			}},
			wantStatus:  output.OK,
			wantSummary: "2 hosts checked for load_one",
			wantPerf:    map[string]float64{"hosts_checked": 2, "hosts_warning": 0, "hosts_critical": 0, "files_bad": 0},
		},
		{
			name: "WARNING - one host over warning",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1", "load_one", "0.5"},
				{"web2", "load_one", "5"},
			}},
			wantStatus:  output.Warning,
			wantSummary: "2 hosts checked for load_one: 0 critical, 1 warning",
			wantDetails: []string{"WARNING web2 load_one=5"},
			wantPerf:    map[string]float64{"hosts_warning": 1},
		},
		{
			name: "CRITICAL - critical listed before warning",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web3", "load_one", "5"},
				{"web2", "load_one", "12.5"},
				{"web1", "load_one", "6"},
			}},
			wantStatus:  output.Critical,
			wantSummary: "3 hosts checked for load_one: 1 critical, 2 warning",
			wantDetails: []string{
				"CRITICAL web2 load_one=12.5",
				"WARNING web1 load_one=6",
				"WARNING web3 load_one=5",
			},
			wantPerf: map[string]float64{"hosts_checked": 3, "hosts_warning": 2, "hosts_critical": 1},
		},
		{
			name: "host keeps its worst reading across clusters",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1", "load_one", "9"},
				{"web1", "load_one", "1"},
			}},
			wantStatus:  output.Critical,
			wantDetails: []string{"CRITICAL web1 load_one=9"},
			wantPerf:    map[string]float64{"hosts_checked": 1, "hosts_critical": 1},
		},
		{
			name: "CRITICAL - stale snapshot with healthy values",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: stale, samples: []sample{
				{"web1", "load_one", "0.5"},
			}},
			wantStatus:  output.Critical,
			wantSummary: "1 hosts checked for load_one; 1 stale or unparsable snapshots",
			wantDetails: []string{"STALE:cluster2 "},
			wantPerf:    map[string]float64{"files_bad": 1},
		},
		{
			name: "stale outranks warning",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: stale, samples: []sample{
				{"web1", "load_one", "5"},
			}},
			wantStatus:  output.Critical,
			wantDetails: []string{"STALE:cluster2 ", "WARNING web1 load_one=5"},
		},
		{
			name: "UNKNOWN - no host reports the metric",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1", "cpu_idle", "99"},
			}},
			wantStatus:  output.Unknown,
			wantSummary: "No hosts report load_one",
		},
		{
			name: "UNKNOWN - only non-numeric values",
			warn: "4", crit: "8",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1", "load_one", "n/a"},
			}},
			wantStatus:  output.Unknown,
			wantSummary: "No numeric values for load_one",
			wantDetails: []string{"1 non-numeric values skipped"},
		},
		{
			name: "include and exclude patterns",
			warn: "4", crit: "8",
			include: []string{"web*"},
			exclude: []string{"web9*"},
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1.example.com", "load_one", "1"},
				{"web9.example.com", "load_one", "50"},
				{"db1.example.com", "load_one", "50"},
			}},
			wantStatus:  output.OK,
			wantSummary: "1 hosts checked for load_one",
		},
		{
			name: "no thresholds only reports freshness",
			scanner: &mockScanner{report: fresh, samples: []sample{
				{"web1", "load_one", "500"},
			}},
			wantStatus: output.OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := NewScanCheck(tt.scanner, []string{"load_one"}, tt.warn, tt.crit, tt.include, tt.exclude)
			if err != nil {
				t.Fatalf("NewScanCheck: %v", err)
			}
			result, err := ch.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", result.Status, tt.wantStatus)
			}
			if tt.wantSummary != "" && result.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", result.Summary, tt.wantSummary)
			}
			if tt.wantDetails != nil {
				if got := strings.Split(result.Details, "\n"); strings.Join(got, "|") != strings.Join(tt.wantDetails, "|") {
					t.Errorf("Details = %q, want %q", got, tt.wantDetails)
				}
			}
			perf := make(map[string]float64)
			for _, pd := range result.PerfData {
				perf[pd.Label] = pd.Value
			}
			for label, want := range tt.wantPerf {
				if got, ok := perf[label]; !ok || got != want {
					t.Errorf("perfdata %s = %v (present=%v), want %v", label, got, ok, want)
				}
			}
		})
	}
}

func TestScanCheckInterestSet(t *testing.T) {
	m := &mockScanner{report: cache.Report{Status: output.OK}}
	ch, err := NewScanCheck(m, []string{"load_one", "load_five"}, "", "", nil, nil)
	if err != nil {
		t.Fatalf("NewScanCheck: %v", err)
	}
	if _, err := ch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.interest) != 2 || !m.interest.Has("load_one") || !m.interest.Has("load_five") {
		t.Errorf("interest = %v", m.interest)
	}
}

func TestScanCheckRunErrors(t *testing.T) {
	t.Run("scanner error", func(t *testing.T) {
		scanErr := errors.New("listing cache directory: permission denied")
		ch, _ := NewScanCheck(&mockScanner{err: scanErr}, []string{"load_one"}, "4", "8", nil, nil)
		if _, err := ch.Run(context.Background()); !errors.Is(err, scanErr) {
			t.Errorf("err = %v, want %v", err, scanErr)
		}
	})

	t.Run("cancelled context aborts scan", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := &mockScanner{report: cache.Report{Status: output.OK}, samples: []sample{{"web1", "load_one", "1"}}}
		ch, _ := NewScanCheck(m, []string{"load_one"}, "4", "8", nil, nil)
		_, err := ch.Run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if !errors.Is(err, cache.ErrHandler) {
			t.Errorf("err = %v, want cache.ErrHandler", err)
		}
	})
}

func TestScanCheckHostAllowed(t *testing.T) {
	ch := &ScanCheck{Include: []string{"web?.example.com", "db*"}, Exclude: []string{"db-test*"}}
	tests := []struct {
		host string
		want bool
	}{
		{"web1.example.com", true},
		{"web10.example.com", false},
		{"db1", true},
		{"db-test1", false},
		{"cache1", false},
		{"web.example.com", true},
		{"web1xexample.com", false},
		{"web1.examplexcom", false},
		{"db1.example.com", true},
	}
	for _, tt := range tests {
		if got := ch.hostAllowed(tt.host); got != tt.want {
			t.Errorf("hostAllowed(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	dotted := &ScanCheck{Include: []string{"*.example.com"}}
	if dotted.hostAllowed("web1-example.com") {
		t.Error("'.' in a pattern must match only a literal dot")
	}
	if !dotted.hostAllowed("web1.example.com") {
		t.Error("*.example.com should allow web1.example.com")
	}

	if !(&ScanCheck{}).hostAllowed("anything") {
		t.Error("empty include list should allow every host")
	}
}
