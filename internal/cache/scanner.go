// Package cache scans gmetad's aggregate snapshot directory. Every snapshot
// is checked for freshness and parsed; metrics whose names are in the
// caller's interest set are handed to a callback. Stale and unparsable
// snapshots are collected and escalate the scan to CRITICAL, but never stop
// it. Only a failing callback aborts a scan.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DLAKE-IO/check-ganglia/internal/config"
	"github.com/DLAKE-IO/check-ganglia/internal/ganglia"
	"github.com/DLAKE-IO/check-ganglia/internal/output"
)

// StalePrefix opens the diagnostic listing bad snapshots.
const StalePrefix = "STALE:"

// ErrHandler wraps an error returned by a Handler.
var ErrHandler = errors.New("metric handler failed")

// Handler receives one matching metric. Value is the VAL attribute exactly
// as gmetad wrote it. Returning an error aborts the scan.
type Handler func(host, metric, value string) error

// Set is an interest set of metric names.
type Set map[string]struct{}

// NewSet builds a Set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Report summarizes one scan.
type Report struct {
	Status  output.Status
	Bad     []string // snapshot identifiers, extension stripped, first-seen order
	Files   int      // snapshots examined
	Matches int      // handler invocations
}

// Scanner scans the aggregate snapshots under Config.CacheDir.
type Scanner struct {
	cfg config.Config
	out io.Writer
	log zerolog.Logger
	now func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// WithClock replaces time.Now for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// NewScanner returns a Scanner that writes its STALE diagnostic to out.
func NewScanner(cfg config.Config, out io.Writer, opts ...Option) *Scanner {
	s := &Scanner{
		cfg: cfg,
		out: out,
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan examines every snapshot and calls onMatch for each metric in
// interest. The returned error is non-nil only when the cache directory
// cannot be listed or onMatch fails; the Report is valid up to that point.
func (s *Scanner) Scan(interest Set, onMatch Handler) (Report, error) {
	rep := Report{Status: output.OK}
	bad := make(map[string]struct{})

	markBad := func(id string) {
		if _, seen := bad[id]; !seen {
			bad[id] = struct{}{}
			rep.Bad = append(rep.Bad, id)
		}
		rep.Status = rep.Status.Escalate(output.Critical)
	}

	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return rep, fmt.Errorf("creating cache directory: %w", err)
	}

	entries, err := os.ReadDir(s.cfg.CacheDir)
	if err != nil {
		return rep, fmt.Errorf("listing cache directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, s.cfg.Extension) {
			continue
		}
		id := strings.TrimSuffix(name, s.cfg.Extension)
		path := filepath.Join(s.cfg.CacheDir, name)
		rep.Files++

		if age, stale := s.stale(path); stale {
			s.log.Warn().Str("snapshot", id).Dur("age", age).Msg("snapshot is stale")
			markBad(id)
		}

		snap, err := ganglia.LoadSnapshot(path)
		if err != nil {
			s.log.Warn().Str("snapshot", id).Err(err).Msg("snapshot unparsable")
			markBad(id)
			continue
		}

		err = snap.Walk(func(_ *ganglia.Cluster, h *ganglia.Host, m *ganglia.Metric) error {
			if !interest.Has(m.Name) {
				return nil
			}
			rep.Matches++
			if err := onMatch(h.Name, m.Name, m.Value); err != nil {
				return fmt.Errorf("%w for %s/%s in %s: %w", ErrHandler, h.Name, m.Name, name, err)
			}
			return nil
		})
		if err != nil {
			s.log.Error().Err(err).Str("snapshot", id).Msg("metric handler failed, aborting scan")
			return rep, err
		}

		s.log.Debug().Str("snapshot", id).Msg("snapshot scanned")
	}

	if len(rep.Bad) > 0 {
		rep.Status = rep.Status.Escalate(output.Critical)
		s.writeStale(rep.Bad)
	}
	return rep, nil
}

// stale reports the snapshot's age and whether it exceeds StaleAfter. A
// snapshot that cannot be stat'ed is left to the parse step to report.
func (s *Scanner) stale(path string) (time.Duration, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	age := s.now().Sub(info.ModTime())
	return age, age > s.cfg.StaleAfter
}

// StaleLine renders ids as "STALE:" followed by each id and a space, with
// no trailing newline.
func StaleLine(ids []string) string {
	var b strings.Builder
	b.WriteString(StalePrefix)
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte(' ')
	}
	return b.String()
}

func (s *Scanner) writeStale(ids []string) {
	if _, err := io.WriteString(s.out, StaleLine(ids)); err != nil {
		s.log.Error().Err(err).Msg("writing stale diagnostic")
	}
}
