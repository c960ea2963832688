package check

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog"

	"github.com/DLAKE-IO/check-ganglia/internal/cache"
	"github.com/DLAKE-IO/check-ganglia/internal/output"
	"github.com/DLAKE-IO/check-ganglia/internal/threshold"
)

// ScanCheck sweeps every aggregate snapshot for Metrics and alerts when any
// host's value crosses the thresholds or any snapshot is stale or unparsable.
type ScanCheck struct {
	Metrics    []string
	Thresholds threshold.Pair
	Include    []string // host patterns (see matchHost); empty means all
	Exclude    []string // host patterns checked before Include
	Logger     zerolog.Logger

	scanner Scanner
}

// NewScanCheck creates a ScanCheck from threshold strings. Empty warn or
// crit leaves that side unset.
func NewScanCheck(scanner Scanner, metrics []string, warn, crit string, include, exclude []string) (*ScanCheck, error) {
	if len(metrics) == 0 {
		return nil, errors.New("at least one metric is required")
	}
	pair, err := threshold.ParsePair(warn, crit)
	if err != nil {
		return nil, err
	}
	return &ScanCheck{
		Metrics:    metrics,
		Thresholds: pair,
		Include:    include,
		Exclude:    exclude,
		scanner:    scanner,
	}, nil
}

// Name returns the check identifier used in Nagios output.
func (ch *ScanCheck) Name() string { return "SCAN" }

// reading is one host's worst observation.
type reading struct {
	host   string
	metric string
	value  string
	level  threshold.Level
}

// Run scans the cache. Scanner errors (an unlistable cache directory, a
// cancelled context) are returned as is.
func (ch *ScanCheck) Run(ctx context.Context) (*output.Result, error) {
	worst := make(map[string]*reading)
	skipped := 0

	rep, err := ch.scanner.Scan(cache.NewSet(ch.Metrics...), func(host, metric, value string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ch.hostAllowed(host) {
			return nil
		}
		_, lvl, err := ch.Thresholds.Evaluate(value)
		if err != nil {
			skipped++
			ch.Logger.Debug().Str("host", host).Str("metric", metric).Str("value", value).Msg("skipping non-numeric value")
			return nil
		}
		r, seen := worst[host]
		if !seen {
			worst[host] = &reading{host: host, metric: metric, value: strings.TrimSpace(value), level: lvl}
			return nil
		}
		if lvl > r.level {
			r.metric, r.value, r.level = metric, strings.TrimSpace(value), lvl
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var offenders []*reading
	nWarn, nCrit := 0, 0
	for _, r := range worst {
		switch r.level {
		case threshold.LevelCritical:
			nCrit++
		case threshold.LevelWarning:
			nWarn++
		default:
			continue
		}
		offenders = append(offenders, r)
	}
	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].level != offenders[j].level {
			return offenders[i].level > offenders[j].level
		}
		return offenders[i].host < offenders[j].host
	})

	status := rep.Status
	if nCrit > 0 {
		status = status.Escalate(output.Critical)
	} else if nWarn > 0 {
		status = status.Escalate(output.Warning)
	}

	metrics := strings.Join(ch.Metrics, ",")
	var summary string
	switch {
	case len(worst) == 0 && len(rep.Bad) == 0:
		status = status.Escalate(output.Unknown)
		if skipped > 0 {
			summary = fmt.Sprintf("No numeric values for %s", metrics)
		} else {
			summary = fmt.Sprintf("No hosts report %s", metrics)
		}
	case nCrit+nWarn > 0:
		summary = fmt.Sprintf("%d hosts checked for %s: %d critical, %d warning", len(worst), metrics, nCrit, nWarn)
	default:
		summary = fmt.Sprintf("%d hosts checked for %s", len(worst), metrics)
	}
	if n := len(rep.Bad); n > 0 {
		summary += fmt.Sprintf("; %d stale or unparsable snapshots", n)
	}

	var details []string
	if len(rep.Bad) > 0 {
		details = append(details, cache.StaleLine(rep.Bad))
	}
	for _, r := range offenders {
		details = append(details, fmt.Sprintf("%s %s %s=%s", levelStatus(r.level), r.host, r.metric, r.value))
	}
	if skipped > 0 {
		details = append(details, fmt.Sprintf("%d non-numeric values skipped", skipped))
	}

	return &output.Result{
		Status:    status,
		CheckName: ch.Name(),
		Summary:   summary,
		Details:   strings.Join(details, "\n"),
		PerfData: []output.PerfDatum{
			{Label: "hosts_checked", Value: float64(len(worst)), Min: "0"},
			{Label: "hosts_warning", Value: float64(nWarn), Min: "0"},
			{Label: "hosts_critical", Value: float64(nCrit), Min: "0"},
			{Label: "files_bad", Value: float64(len(rep.Bad)), Min: "0", Max: fmt.Sprint(rep.Files)},
		},
	}, nil
}

func (ch *ScanCheck) hostAllowed(host string) bool {
	for _, pattern := range ch.Exclude {
		if matchHost(pattern, host) {
			return false
		}
	}
	if len(ch.Include) == 0 {
		return true
	}
	for _, pattern := range ch.Include {
		if matchHost(pattern, host) {
			return true
		}
	}
	return false
}

// matchHost matches a host name against a pattern where '*' matches any run
// of characters and '?' matches zero or one character. A '.' is literal.
// go-wildcard reads '.' as "any character", so dots on both sides are mapped
// to '/', which it treats literally and a host name cannot contain.
func matchHost(pattern, host string) bool {
	return wildcard.Match(strings.ReplaceAll(pattern, ".", "/"), strings.ReplaceAll(host, ".", "/"))
}
