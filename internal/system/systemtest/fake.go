// Package systemtest provides an in-memory system.Host for tests.
package systemtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/linux-setup/internal/system"
)

// Handler reacts to one command. Returning an error makes Run fail.
type Handler func(cmd system.Command) error

// Host is a scriptable fake. Binaries resolve only when added with Install,
// every Run call is recorded and routed to a Handler keyed by command name.
type Host struct {
	mu       sync.Mutex
	binaries map[string]string
	handlers map[string]Handler
	calls    []system.Command
	EUID     int
}

// New returns a host that knows the given binaries.
func New(binaries ...string) *Host {
	h := &Host{binaries: map[string]string{}, handlers: map[string]Handler{}}
	for _, name := range binaries {
		h.Install(name)
	}
	return h
}

// Install makes name resolvable on the fake PATH.
func (h *Host) Install(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.binaries[name] = "/usr/bin/" + name
}

// Remove drops name from the fake PATH.
func (h *Host) Remove(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.binaries, name)
}

// Handle registers fn for commands whose Name equals name.
func (h *Host) Handle(name string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[name] = fn
}

// LookPath implements system.Host.
func (h *Host) LookPath(name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if path, ok := h.binaries[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

// Geteuid implements system.Host.
func (h *Host) Geteuid() int {
	return h.EUID
}

// Run implements system.Host.
func (h *Host) Run(ctx context.Context, cmd system.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	h.calls = append(h.calls, cmd)
	handler := h.handlers[cmd.Name]
	h.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(cmd)
}

// Calls returns a copy of every recorded command.
func (h *Host) Calls() []system.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]system.Command, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallLines renders recorded commands as "name arg arg" strings.
func (h *Host) CallLines() []string {
	calls := h.Calls()
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		lines = append(lines, strings.TrimSpace(call.Name+" "+strings.Join(call.Args, " ")))
	}
	return lines
}
