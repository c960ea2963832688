package check

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DLAKE-IO/check-ganglia/internal/output"
	"github.com/DLAKE-IO/check-ganglia/internal/resolve"
	"github.com/DLAKE-IO/check-ganglia/internal/threshold"
)

// Summaries printed for the failure kinds scripts match on.
const (
	SummaryStale      = "STALE"
	SummaryParseError = "XML parse error"
)

// HostCheck reads one metric of one host and evaluates it.
type HostCheck struct {
	Host       string
	Metric     string
	Thresholds threshold.Pair

	resolver Resolver
}

// NewHostCheck creates a HostCheck. Empty warn or crit leaves that side
// unset; with neither set any value, numeric or not, is OK.
func NewHostCheck(resolver Resolver, host, metric, warn, crit string) (*HostCheck, error) {
	if host == "" {
		return nil, errors.New("hostname is required")
	}
	if metric == "" {
		return nil, errors.New("metric is required")
	}
	pair, err := threshold.ParsePair(warn, crit)
	if err != nil {
		return nil, err
	}
	return &HostCheck{Host: host, Metric: metric, Thresholds: pair, resolver: resolver}, nil
}

// Name returns the check identifier used in Nagios output.
func (ch *HostCheck) Name() string { return "HOST" }

// Run resolves the metric. Known resolver failures become results; anything
// else is returned as an error.
func (ch *HostCheck) Run(ctx context.Context) (*output.Result, error) {
	raw, err := ch.resolver.Resolve(ctx, ch.Host, ch.Metric)
	if err != nil {
		status, summary, ok := MapResolveError(err)
		if !ok {
			return nil, err
		}
		res := &output.Result{Status: status, CheckName: ch.Name(), Summary: summary}
		if summary != err.Error() {
			res.Details = err.Error()
		}
		return res, nil
	}

	value := strings.TrimSpace(raw)
	v, lvl, err := ch.Thresholds.Evaluate(value)
	if err != nil {
		if ch.Thresholds.IsZero() {
			return &output.Result{
				Status:    output.OK,
				CheckName: ch.Name(),
				Summary:   fmt.Sprintf("%s %s=%s", ch.Host, ch.Metric, value),
			}, nil
		}
		return &output.Result{
			Status:    output.Unknown,
			CheckName: ch.Name(),
			Summary:   fmt.Sprintf("%s %s value %q is not numeric", ch.Host, ch.Metric, value),
		}, nil
	}

	warn, crit := ch.Thresholds.Strings()
	return &output.Result{
		Status:    levelStatus(lvl),
		CheckName: ch.Name(),
		Summary:   fmt.Sprintf("%s %s=%s", ch.Host, ch.Metric, value),
		PerfData: []output.PerfDatum{
			{Label: ch.Metric, Value: v, Warn: warn, Crit: crit},
		},
	}, nil
}

// MapResolveError maps a resolver error to a Nagios status and summary.
// Stale and unparsable snapshots are CRITICAL; a missing host or metric is
// UNKNOWN. ok is false for errors of any other kind.
func MapResolveError(err error) (status output.Status, summary string, ok bool) {
	switch {
	case errors.Is(err, resolve.ErrStale):
		return output.Critical, SummaryStale, true
	case errors.Is(err, resolve.ErrParse):
		return output.Critical, SummaryParseError, true
	case errors.Is(err, resolve.ErrHostNotFound), errors.Is(err, resolve.ErrMetricNotFound):
		return output.Unknown, err.Error(), true
	default:
		return output.Unknown, err.Error(), false
	}
}
