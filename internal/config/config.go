// Package config holds the cache layout and freshness settings shared by the
// cache scanner and the host resolver.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCacheDir   = "/var/lib/ganglia/xmlcache"
	DefaultHostSubdir = "hosts"
	DefaultExtension  = ".xml"
	DefaultStaleAfter = 300 * time.Second
)

// Config describes where gmetad writes its snapshots and how old they may
// get before they count as stale.
type Config struct {
	// CacheDir holds the aggregate (per-cluster) snapshots.
	CacheDir string `yaml:"cache_dir"`
	// HostDir holds the per-host snapshots. Empty means CacheDir/hosts.
	HostDir string `yaml:"host_dir"`
	// Extension selects aggregate snapshot files in CacheDir.
	Extension string `yaml:"extension"`
	// StaleAfter is the maximum age of a snapshot's modification time.
	StaleAfter time.Duration `yaml:"stale_after"`
	// InterfacePrefixes are leading hostname labels dropped before a
	// per-host snapshot is looked up (int.web1 -> web1).
	InterfacePrefixes []string `yaml:"interface_prefixes"`
	// TunnelPrefixes rank last when several per-host snapshots match.
	TunnelPrefixes []string `yaml:"tunnel_prefixes"`
}

// Default returns the stock gmetad layout.
func Default() Config {
	return Config{
		CacheDir:          DefaultCacheDir,
		Extension:         DefaultExtension,
		StaleAfter:        DefaultStaleAfter,
		InterfacePrefixes: []string{"int", "eth0", "eth1", "tunnel0", "tunnel1"},
		TunnelPrefixes:    []string{"tunnel0", "tunnel1"},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// HostPath returns the per-host snapshot directory.
func (c Config) HostPath() string {
	if c.HostDir != "" {
		return c.HostDir
	}
	return filepath.Join(c.CacheDir, DefaultHostSubdir)
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return errors.New("cache directory must not be empty")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("invalid stale-after %s: must be positive", c.StaleAfter)
	}
	if c.Extension == "" || c.Extension == "." {
		return fmt.Errorf("invalid snapshot extension %q", c.Extension)
	}
	return nil
}
