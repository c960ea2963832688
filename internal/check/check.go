// Package check turns raw Ganglia metric values into Nagios results. A scan
// check sweeps every aggregate snapshot for one or more metrics; a host check
// reads one metric of one host from its per-host snapshot. Both evaluate the
// values against Nagios threshold ranges.
package check

import (
	"context"

	"github.com/DLAKE-IO/check-ganglia/internal/cache"
	"github.com/DLAKE-IO/check-ganglia/internal/output"
	"github.com/DLAKE-IO/check-ganglia/internal/threshold"
)

// Check is the interface that all monitoring checks must implement.
type Check interface {
	// Name returns the uppercase check identifier used in the Nagios
	// output prefix ("SCAN", "HOST").
	Name() string

	// Run executes the check and returns a Result. A non-nil error means
	// the check could not produce a verdict; the caller reports UNKNOWN.
	Run(ctx context.Context) (*output.Result, error)
}

// Scanner is satisfied by *cache.Scanner.
type Scanner interface {
	Scan(interest cache.Set, onMatch cache.Handler) (cache.Report, error)
}

// Resolver is satisfied by *resolve.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, hostname, metric string) (string, error)
}

func levelStatus(l threshold.Level) output.Status {
	switch l {
	case threshold.LevelCritical:
		return output.Critical
	case threshold.LevelWarning:
		return output.Warning
	default:
		return output.OK
	}
}
