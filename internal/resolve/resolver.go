// Package resolve finds a single host's per-host snapshot and reads one
// metric from it.
//
// A hostname is canonicalized first: it is reverse-resolved (falling back to
// the name as given) and a leading interface label such as "int." or
// "eth0." is dropped. The per-host directory is then searched for a file
// named "<anything>.<hostname>", or failing that "<hostname>".
package resolve

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"

	"github.com/DLAKE-IO/check-ganglia/internal/config"
	"github.com/DLAKE-IO/check-ganglia/internal/ganglia"
)

// Lookup is the subset of name resolution the resolver needs.
// *dnscache.Resolver and *net.Resolver both satisfy it.
type Lookup interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// NewDNSLookup returns a caching resolver backed by the system resolver.
func NewDNSLookup(timeout time.Duration) *dnscache.Resolver {
	return &dnscache.Resolver{Timeout: timeout}
}

// Resolver locates per-host snapshots under Config.HostPath().
type Resolver struct {
	cfg    config.Config
	lookup Lookup
	log    zerolog.Logger
	now    func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithClock replaces time.Now for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New returns a Resolver. A nil lookup skips reverse resolution.
func New(cfg config.Config, lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:    cfg,
		lookup: lookup,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the raw VAL of metric in hostname's per-host snapshot.
//
// Errors match ErrHostNotFound, ErrStale, ErrParse or ErrMetricNotFound.
func (r *Resolver) Resolve(ctx context.Context, hostname, metric string) (string, error) {
	host := r.Canonicalize(ctx, hostname)

	paths, err := r.Locate(host)
	if err != nil {
		return "", err
	}
	if len(paths) > 1 {
		r.log.Warn().
			Str("host", host).
			Strs("candidates", paths).
			Str("using", paths[0]).
			Msg("several per-host snapshots match")
	}
	path := paths[0]

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrParse, ganglia.ErrRead, err)
	}
	if age := r.now().Sub(info.ModTime()); age > r.cfg.StaleAfter {
		return "", &StaleError{Path: path, Age: age}
	}

	snap, err := ganglia.LoadHostSnapshot(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrParse, path, err)
	}

	m, ok := snap.Lookup(metric)
	if !ok {
		return "", &MetricNotFoundError{Host: host, Metric: metric}
	}
	return m.Value, nil
}

// Canonicalize reverse-resolves hostname and strips a known interface
// prefix. Lookup failures are not errors; the name is used as given.
func (r *Resolver) Canonicalize(ctx context.Context, hostname string) string {
	host := hostname
	if name, err := r.reverse(ctx, hostname); err != nil {
		r.log.Debug().Err(err).Str("host", hostname).Msg("reverse lookup failed, using name as given")
	} else {
		host = name
	}
	return r.stripPrefix(host)
}

// reverse mimics gethostbyaddr: names are resolved to an address first,
// then the address is resolved back to its canonical name.
func (r *Resolver) reverse(ctx context.Context, hostname string) (string, error) {
	if r.lookup == nil {
		return "", fmt.Errorf("no resolver configured")
	}

	addr := hostname
	if net.ParseIP(hostname) == nil {
		addrs, err := r.lookup.LookupHost(ctx, hostname)
		if err != nil {
			return "", err
		}
		if len(addrs) == 0 {
			return "", fmt.Errorf("no addresses for %s", hostname)
		}
		addr = addrs[0]
	}

	names, err := r.lookup.LookupAddr(ctx, addr)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no PTR record for %s", addr)
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return "", fmt.Errorf("empty PTR record for %s", addr)
	}
	return name, nil
}

func (r *Resolver) stripPrefix(host string) string {
	label, rest, ok := strings.Cut(host, ".")
	if !ok || rest == "" {
		return host
	}
	if slices.Contains(r.cfg.InterfacePrefixes, label) {
		return rest
	}
	return host
}

// Locate returns every per-host snapshot matching host, best first.
// Suffix matches ("*.host") win over an exact match ("host"), which is only
// consulted when there are no suffix matches. Among several candidates,
// files named after a tunnel interface rank last; ties sort by name.
func (r *Resolver) Locate(host string) ([]string, error) {
	if host == "" {
		return nil, &HostNotFoundError{Host: host}
	}

	dir := r.cfg.HostPath()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &HostNotFoundError{Host: host}
		}
		return nil, fmt.Errorf("listing host directory: %w", err)
	}

	var suffixed []string
	exact := ""
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch name := e.Name(); {
		case strings.HasSuffix(name, "."+host):
			suffixed = append(suffixed, name)
		case name == host:
			exact = name
		}
	}

	names := suffixed
	if len(names) == 0 && exact != "" {
		names = []string{exact}
	}
	if len(names) == 0 {
		return nil, &HostNotFoundError{Host: host}
	}

	sort.SliceStable(names, func(i, j int) bool {
		ti, tj := r.isTunnel(names[i]), r.isTunnel(names[j])
		if ti != tj {
			return !ti
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

func (r *Resolver) isTunnel(name string) bool {
	label, _, _ := strings.Cut(name, ".")
	return slices.Contains(r.cfg.TunnelPrefixes, label)
}
