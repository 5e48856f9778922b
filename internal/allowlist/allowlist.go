// Package allowlist filters device identifiers before any backend lookup.
//
// The cheap pre-filter in the scan cycle: identifiers that cannot possibly
// belong to this deployment (wrong prefix, not pinned) are dropped before
// registration checks run and before the dedup window is touched.
package allowlist

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the on-disk YAML shape of an allowlist file.
type Policy struct {
	// Identifier prefixes accepted for logging.
	Prefixes []string `yaml:"prefixes"`
	// Exact identifiers always accepted, regardless of prefix.
	Devices []string `yaml:"devices"`
}

// Allowlist decides which identifiers are worth considering at all.
// An empty allowlist accepts everything.
type Allowlist struct {
	prefixes []string
	pinned   map[string]struct{}
}

// New builds an allowlist from the single configured prefix. An empty
// prefix yields an accept-all list.
func New(prefix string) *Allowlist {
	a := &Allowlist{pinned: make(map[string]struct{})}
	if prefix != "" {
		a.prefixes = []string{prefix}
	}
	return a
}

// Load reads a YAML policy file and merges it with the configured prefix.
func Load(path, prefix string) (*Allowlist, error) {
	a := New(prefix)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse allowlist file: %w", err)
	}

	for _, p := range policy.Prefixes {
		if p = strings.TrimSpace(p); p != "" {
			a.prefixes = append(a.prefixes, p)
		}
	}
	for _, d := range policy.Devices {
		if d = strings.TrimSpace(d); d != "" {
			a.pinned[d] = struct{}{}
		}
	}

	slog.Info("allowlist loaded", "file", path,
		"prefixes", len(a.prefixes), "devices", len(a.pinned))
	return a, nil
}

// Allowed reports whether deviceID passes the prefix/pin filter.
func (a *Allowlist) Allowed(deviceID string) bool {
	if len(a.prefixes) == 0 && len(a.pinned) == 0 {
		return true
	}
	if _, ok := a.pinned[deviceID]; ok {
		return true
	}
	for _, p := range a.prefixes {
		if strings.HasPrefix(deviceID, p) {
			return true
		}
	}
	return false
}
