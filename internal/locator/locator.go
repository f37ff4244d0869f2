package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a local capability file does not exist.
var ErrNotFound = errors.New("locator: capability not found")

// maxCapabilitySize caps a single fetched body.
const maxCapabilitySize = 16 << 20

// FetchError describes a failed remote fetch. Status is zero for transport
// failures.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("locator: fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("locator: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Locator resolves capability names to bytes, from the installation root
// or from the raw content host.
type Locator struct {
	ec           ExecutionContext
	base         *url.URL
	reference    string
	client       *http.Client
	fetchTimeout time.Duration
	probeTimeout time.Duration
	logger       *zap.Logger

	inferOnce sync.Once
	branch    string
}

// Option customises a Locator.
type Option func(*Locator)

// WithHTTPClient replaces the HTTP client used for fetches and the probe.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Locator) {
		if client != nil {
			l.client = client
		}
	}
}

// WithTimeouts bounds the fetch and the branch probe. Zero keeps the default.
func WithTimeouts(fetch, probe time.Duration) Option {
	return func(l *Locator) {
		if fetch > 0 {
			l.fetchTimeout = fetch
		}
		if probe > 0 {
			l.probeTimeout = probe
		}
	}
}

// WithReference sets the file probed for branch inference.
func WithReference(name string) Option {
	return func(l *Locator) {
		if trimmed := strings.Trim(strings.TrimSpace(name), "/"); trimmed != "" {
			l.reference = trimmed
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// DefaultReference is probed during branch inference.
const DefaultReference = "installers/template.tpl"

// New builds a Locator. Remote mode requires a complete coordinate and a
// valid http(s) base URL.
func New(ec ExecutionContext, rawBaseURL string, opts ...Option) (*Locator, error) {
	l := &Locator{
		ec:           ec,
		reference:    DefaultReference,
		client:       &http.Client{},
		fetchTimeout: 30 * time.Second,
		probeTimeout: 5 * time.Second,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if ec.Coordinate != nil {
		l.branch = ec.Coordinate.Branch
	}
	if ec.Mode != ModeRemote {
		return l, nil
	}
	if ec.Coordinate == nil || !ec.Coordinate.Complete() {
		return nil, &ConfigError{Field: "repository", Reason: "remote mode needs owner, name and branch"}
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(rawBaseURL), "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, &ConfigError{Field: "repository.raw_base_url", Reason: fmt.Sprintf("%q is not an http(s) URL", rawBaseURL)}
	}
	l.base = base
	return l, nil
}

// Context returns the execution context the locator was built with.
func (l *Locator) Context() ExecutionContext {
	return l.ec
}

// Branch returns the branch remote fetches use, running inference first
// when the branch was not explicit.
func (l *Locator) Branch(ctx context.Context) string {
	l.ensureBranch(ctx)
	return l.branch
}

// URL returns the remote address of name on the current branch.
func (l *Locator) URL(ctx context.Context, name string) (string, error) {
	if l.base == nil {
		return "", &ConfigError{Field: "repository", Reason: "no remote coordinate"}
	}
	l.ensureBranch(ctx)
	return l.urlFor(l.branch, name), nil
}

// Resolve returns the bytes of the capability called name, a slash
// separated path relative to the installation root.
func (l *Locator) Resolve(ctx context.Context, name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if l.ec.Mode == ModeRemote {
		return l.fetch(ctx, clean)
	}
	return l.readLocal(clean)
}

func cleanName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("locator: capability name is empty")
	}
	clean := path.Clean("/" + trimmed)[1:]
	if clean == "" || clean != strings.TrimPrefix(trimmed, "/") {
		return "", fmt.Errorf("locator: capability name %q must be a clean relative path", name)
	}
	return clean, nil
}

func (l *Locator) readLocal(name string) ([]byte, error) {
	full := filepath.Join(l.ec.Root, filepath.FromSlash(name))
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, full)
		}
		return nil, fmt.Errorf("locator: read %s: %w", full, err)
	}
	return data, nil
}

func (l *Locator) fetch(ctx context.Context, name string) ([]byte, error) {
	l.ensureBranch(ctx)
	target := l.urlFor(l.branch, name)

	ctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: target, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCapabilitySize))
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	l.logger.Debug("fetched capability", zap.String("url", target), zap.Int("bytes", len(data)))
	return data, nil
}

func (l *Locator) urlFor(branch, name string) string {
	c := l.ec.Coordinate
	elems := append([]string{c.Owner, c.Repo, branch}, strings.Split(name, "/")...)
	return l.base.JoinPath(elems...).String()
}

func (l *Locator) ensureBranch(ctx context.Context) {
	if l.base == nil || l.ec.Coordinate == nil || l.ec.Coordinate.BranchExplicit {
		return
	}
	l.inferOnce.Do(func() {
		if branch, ok := l.inferBranch(ctx); ok {
			l.branch = branch
		}
	})
}

// inferBranch asks the content host for the reference file on the assumed
// branch and reads the branch back from wherever redirects end up.
func (l *Locator) inferBranch(ctx context.Context) (string, bool) {
	target := l.urlFor(l.branch, l.reference)
	ctx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		l.logger.Debug("branch probe skipped", zap.String("url", target), zap.Error(err))
		return "", false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Debug("branch probe failed", zap.String("url", target), zap.Error(err))
		return "", false
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		l.logger.Debug("branch probe rejected", zap.String("url", target), zap.Int("status", resp.StatusCode))
		return "", false
	}
	final := resp.Request.URL
	if !strings.EqualFold(final.Host, l.base.Host) {
		l.logger.Warn("branch probe redirected off the content host",
			zap.String("from", l.base.Host), zap.String("to", final.Host))
		return "", false
	}
	branch, ok := BranchFromPath(l.base.Path, final.Path, l.reference)
	if !ok {
		return "", false
	}
	if branch != l.branch {
		l.logger.Info("inferred branch", zap.String("assumed", l.branch), zap.String("branch", branch))
	}
	return branch, true
}

// BranchFromPath extracts the branch from a raw content path shaped
// {basePath}/{owner}/{repo}/{branch}/{reference}. Branches containing
// slashes are recovered when the reference suffix is intact; otherwise the
// single segment in the branch position is used. A branch equal to the
// reference's file name is rejected.
func BranchFromPath(basePath, finalPath, reference string) (string, bool) {
	rel := strings.Trim(strings.TrimPrefix(finalPath, strings.TrimRight(basePath, "/")), "/")
	segs := strings.Split(rel, "/")
	if len(segs) < 3 {
		return "", false
	}
	var branch string
	reference = strings.Trim(reference, "/")
	if rest := strings.Join(segs[2:], "/"); strings.HasSuffix(rest, "/"+reference) {
		branch = strings.TrimSuffix(rest, "/"+reference)
	} else {
		branch = segs[2]
	}
	branch = strings.Trim(branch, "/")
	if branch == "" || branch == path.Base(reference) {
		return "", false
	}
	return branch, true
}
