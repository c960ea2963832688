package resolve

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrHostNotFound means no per-host snapshot matches the hostname.
	ErrHostNotFound = errors.New("host not found")

	// ErrStale means the matching snapshot is older than the staleness window.
	ErrStale = errors.New("snapshot stale")

	// ErrParse means the matching snapshot could not be read or decoded.
	ErrParse = errors.New("snapshot parse error")

	// ErrMetricNotFound means the snapshot parsed but has no such metric.
	ErrMetricNotFound = errors.New("metric not found")
)

// HostNotFoundError carries the hostname that was searched for, after
// canonicalization.
type HostNotFoundError struct {
	Host string
}

func (e *HostNotFoundError) Error() string {
	return fmt.Sprintf("Host not found: %s", e.Host)
}

// Is matches ErrHostNotFound.
func (e *HostNotFoundError) Is(target error) bool {
	return target == ErrHostNotFound
}

// StaleError reports which snapshot was stale and by how much.
type StaleError struct {
	Path string
	Age  time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("snapshot %s is stale (age %s)", e.Path, e.Age.Round(time.Second))
}

// Is matches ErrStale.
func (e *StaleError) Is(target error) bool {
	return target == ErrStale
}

// MetricNotFoundError names the host snapshot and metric that did not match.
type MetricNotFoundError struct {
	Host   string
	Metric string
}

func (e *MetricNotFoundError) Error() string {
	return fmt.Sprintf("metric %s not found for host %s", e.Metric, e.Host)
}

// Is matches ErrMetricNotFound.
func (e *MetricNotFoundError) Is(target error) bool {
	return target == ErrMetricNotFound
}
