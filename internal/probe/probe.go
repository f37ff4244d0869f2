// Package probe selects the richest presentation tier the host can render.
package probe

import (
	"fmt"
	"strings"

	"github.com/kingrea/linux-setup/internal/system"
)

// Tier is one ranked presentation capability. Lower values are richer.
type Tier int

const (
	TierRich   Tier = iota // gum
	TierDialog             // whiptail or dialog
	TierPlain              // built in, no external binary
)

func (t Tier) String() string {
	switch t {
	case TierRich:
		return "rich-interactive"
	case TierDialog:
		return "basic-dialog"
	case TierPlain:
		return "plain-text"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier accepts the long tier names and their short aliases. "auto" and
// the empty string return ok=false so callers fall back to probing.
func ParseTier(value string) (Tier, bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return TierPlain, false, nil
	case "rich", "rich-interactive", "gum":
		return TierRich, true, nil
	case "dialog", "basic-dialog", "whiptail":
		return TierDialog, true, nil
	case "plain", "plain-text", "text":
		return TierPlain, true, nil
	default:
		return TierPlain, false, fmt.Errorf("probe: unknown tier %q (want auto, rich, dialog or plain)", value)
	}
}

// Strategy binds a tier to the binaries that can render it.
type Strategy struct {
	Tier     Tier
	Binaries []string
}

// Available reports whether any supporting binary resolves on PATH. A
// strategy without binaries is always available.
func (s Strategy) Available(host system.Host) bool {
	_, ok := s.binary(host)
	return ok
}

func (s Strategy) binary(host system.Host) (string, bool) {
	if len(s.Binaries) == 0 {
		return "", true
	}
	for _, name := range s.Binaries {
		if system.Exists(host, name) {
			return name, true
		}
	}
	return "", false
}

// DefaultStrategies returns the fixed priority order, richest first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Tier: TierRich, Binaries: []string{"gum"}},
		{Tier: TierDialog, Binaries: []string{"whiptail", "dialog"}},
		{Tier: TierPlain},
	}
}

// Selection is the probe outcome: the tier and the binary that renders it
// (empty for the built-in plain-text tier).
type Selection struct {
	Tier   Tier
	Binary string
}

// Select walks strategies once and returns the first available one. It
// never fails; the plain-text tier is the guaranteed fallback.
func Select(host system.Host, strategies []Strategy) Selection {
	for _, strategy := range strategies {
		if name, ok := strategy.binary(host); ok {
			return Selection{Tier: strategy.Tier, Binary: name}
		}
	}
	return Selection{Tier: TierPlain}
}

// SelectTier probes the default strategies.
func SelectTier(host system.Host) Tier {
	return Select(host, DefaultStrategies()).Tier
}

// Force returns the selection for a tier chosen by the user. The binary is
// still resolved so the adapter knows which dialog program to drive; when the
// tier's binaries are missing the plain-text tier is returned instead.
func Force(host system.Host, tier Tier, strategies []Strategy) Selection {
	for _, strategy := range strategies {
		if strategy.Tier != tier {
			continue
		}
		if name, ok := strategy.binary(host); ok {
			return Selection{Tier: tier, Binary: name}
		}
	}
	return Selection{Tier: TierPlain}
}
