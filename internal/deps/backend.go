package deps

import (
	"fmt"
	"strings"
)

// Backend is one system package-manager frontend.
type Backend struct {
	ID        string
	Binary    string
	Install   []string
	NeedsRoot bool
}

func (b Backend) command(pkg string) (string, []string) {
	args := make([]string, 0, len(b.Install)+1)
	args = append(args, b.Install...)
	args = append(args, pkg)
	return b.Binary, args
}

var knownBackends = []Backend{
	{ID: "apt-get", Binary: "apt-get", Install: []string{"install", "-y"}, NeedsRoot: true},
	{ID: "apt", Binary: "apt", Install: []string{"install", "-y"}, NeedsRoot: true},
	{ID: "dnf", Binary: "dnf", Install: []string{"install", "-y"}, NeedsRoot: true},
	{ID: "yum", Binary: "yum", Install: []string{"install", "-y"}, NeedsRoot: true},
	{ID: "pacman", Binary: "pacman", Install: []string{"-S", "--noconfirm", "--needed"}, NeedsRoot: true},
	{ID: "zypper", Binary: "zypper", Install: []string{"--non-interactive", "install"}, NeedsRoot: true},
	{ID: "apk", Binary: "apk", Install: []string{"add"}, NeedsRoot: true},
	{ID: "brew", Binary: "brew", Install: []string{"install"}},
}

// DefaultBackends returns the fixed priority list, highest priority first.
func DefaultBackends() []Backend {
	out := make([]Backend, len(knownBackends))
	copy(out, knownBackends)
	return out
}

// BackendsByID builds a priority list from configured ids, keeping their order.
func BackendsByID(ids []string) ([]Backend, error) {
	if len(ids) == 0 {
		return DefaultBackends(), nil
	}
	out := make([]Backend, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		key := strings.ToLower(strings.TrimSpace(id))
		if _, dup := seen[key]; dup {
			continue
		}
		backend, ok := backendByID(key)
		if !ok {
			return nil, fmt.Errorf("deps: unknown backend %q", id)
		}
		seen[key] = struct{}{}
		out = append(out, backend)
	}
	return out, nil
}

func backendByID(id string) (Backend, bool) {
	for _, b := range knownBackends {
		if b.ID == id {
			return b, true
		}
	}
	return Backend{}, false
}
