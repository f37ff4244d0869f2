// Package deps checks host-level prerequisites and installs missing ones
// through the best available system package manager, behind one consent gate.
package deps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/linux-setup/internal/system"
)

// ErrNoBackend means no package-manager backend exists on the host.
var ErrNoBackend = errors.New("deps: no package manager backend found")

// ConsentFunc is asked once per Ensure call with every missing name.
type ConsentFunc func(ctx context.Context, missing []string, backend Backend) (bool, error)

// Spec is the live state of one named prerequisite.
type Spec struct {
	Name    string
	Present bool
	Backend *Backend
}

// Resolver checks and installs prerequisites. Presence is never cached.
type Resolver struct {
	host     system.Host
	backends []Backend
	packages map[string]map[string]string
	logger   *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithBackends replaces the backend priority list.
func WithBackends(backends []Backend) Option {
	return func(r *Resolver) {
		if len(backends) > 0 {
			r.backends = append([]Backend(nil), backends...)
		}
	}
}

// WithPackages maps a command name to per-backend package names, for tools
// whose package is named differently from the binary (fd -> fd-find).
func WithPackages(packages map[string]map[string]string) Option {
	return func(r *Resolver) {
		for name, byBackend := range packages {
			if r.packages[name] == nil {
				r.packages[name] = map[string]string{}
			}
			for backend, pkg := range byBackend {
				r.packages[name][backend] = pkg
			}
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns a resolver for host.
func New(host system.Host, opts ...Option) *Resolver {
	r := &Resolver{
		host:     host,
		backends: DefaultBackends(),
		packages: map[string]map[string]string{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// AddPackages merges package aliases declared after construction, for
// instance by a loaded capability.
func (r *Resolver) AddPackages(packages map[string]map[string]string) {
	WithPackages(packages)(r)
}

// CommandExists reports whether name resolves on PATH right now.
func (r *Resolver) CommandExists(name string) bool {
	return system.Exists(r.host, name)
}

// SelectBackend returns the highest-priority backend whose binary exists.
func (r *Resolver) SelectBackend() (Backend, bool) {
	for _, backend := range r.backends {
		if r.CommandExists(backend.Binary) {
			return backend, true
		}
	}
	return Backend{}, false
}

// Check probes every name and the backend that would install it.
func (r *Resolver) Check(names []string) []Spec {
	list := normalizeNames(names)
	specs := make([]Spec, 0, len(list))
	backend, hasBackend := r.SelectBackend()
	for _, name := range list {
		spec := Spec{Name: name, Present: r.CommandExists(name)}
		if hasBackend {
			b := backend
			spec.Backend = &b
		}
		specs = append(specs, spec)
	}
	return specs
}

// Ensure makes every name present according to policy. Names already on PATH
// are never reinstalled. A failed install is recorded and the remaining names
// are still attempted; ErrNoBackend is the only error that aborts the batch.
func (r *Resolver) Ensure(ctx context.Context, names []string, policy Policy, consent ConsentFunc) (Report, error) {
	var report Report
	var missing []string
	for _, name := range normalizeNames(names) {
		if r.CommandExists(name) {
			report.Present = append(report.Present, name)
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return report, nil
	}
	if policy == PolicyNever {
		report.Missing = missing
		return report, nil
	}

	backend, ok := r.SelectBackend()
	if !ok {
		report.Missing = missing
		return report, fmt.Errorf("%w (needed for %s)", ErrNoBackend, strings.Join(missing, ", "))
	}
	report.Backend = backend.ID

	if policy == PolicyAsk {
		approved := false
		if consent != nil {
			var err error
			approved, err = consent(ctx, append([]string(nil), missing...), backend)
			if err != nil {
				report.Missing = missing
				return report, fmt.Errorf("deps: consent: %w", err)
			}
		}
		if !approved {
			r.logger.Info("install declined", zap.Strings("missing", missing))
			report.Declined = missing
			return report, nil
		}
	}

	for _, name := range missing {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, Failure{Name: name, Backend: backend.ID, Err: err})
			continue
		}
		pkg := r.packageFor(name, backend)
		if err := r.install(ctx, backend, pkg); err != nil {
			r.logger.Warn("install failed", zap.String("name", name), zap.String("package", pkg),
				zap.String("backend", backend.ID), zap.Error(err))
			report.Failed = append(report.Failed, Failure{Name: name, Package: pkg, Backend: backend.ID, Err: err})
			continue
		}
		if !r.CommandExists(name) {
			err := fmt.Errorf("package %s installed but %s is still not on PATH", pkg, name)
			report.Failed = append(report.Failed, Failure{Name: name, Package: pkg, Backend: backend.ID, Err: err})
			continue
		}
		r.logger.Info("installed", zap.String("name", name), zap.String("backend", backend.ID))
		report.Installed = append(report.Installed, name)
	}
	return report, nil
}

func (r *Resolver) install(ctx context.Context, backend Backend, pkg string) error {
	name, args := backend.command(pkg)
	if backend.NeedsRoot && r.host.Geteuid() != 0 && r.CommandExists("sudo") {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	if err := r.host.Run(ctx, system.Command{Name: name, Args: args}); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

func (r *Resolver) packageFor(name string, backend Backend) string {
	if byBackend, ok := r.packages[name]; ok {
		if pkg := strings.TrimSpace(byBackend[backend.ID]); pkg != "" {
			return pkg
		}
	}
	return name
}

func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
