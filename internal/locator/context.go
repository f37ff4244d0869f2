package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/linux-setup/internal/config"
)

// Mode says where shared capabilities are read from.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// Environment variables that override the configured coordinate.
const (
	EnvOwner  = "REPO_USER"
	EnvRepo   = "REPO_NAME"
	EnvBranch = "REPO_BRANCH"
)

// Coordinate identifies the remote copy of the installation root.
type Coordinate struct {
	Owner  string
	Repo   string
	Branch string
	// BranchExplicit is true when the branch came from the environment or
	// the config file; otherwise the locator may infer it.
	BranchExplicit bool
}

// Complete reports whether all three fields are populated.
func (c Coordinate) Complete() bool {
	return c.Owner != "" && c.Repo != "" && c.Branch != ""
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s@%s", c.Owner, c.Repo, c.Branch)
}

// ExecutionContext is derived once at startup and never mutated afterwards.
type ExecutionContext struct {
	Mode       Mode
	Root       string
	Coordinate *Coordinate
}

// ConfigError is a fatal configuration problem found while building the
// execution context.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("locator: %s: %s", e.Field, e.Reason)
}

// PromptFunc asks the user for a missing value.
type PromptFunc func(ctx context.Context, question string) (string, error)

// ContextOptions feeds NewContext. Getenv defaults to os.Getenv.
type ContextOptions struct {
	Executable string
	Root       string
	// ForceMode, when set, skips DetectMode.
	ForceMode  *Mode
	Repository config.RepositoryConfig
	Getenv     func(string) string
	Prompt     PromptFunc
}

// transientRoots are directories whose contents are assumed to be one-off
// downloads (curl | sh style bootstraps).
func transientRoots() []string {
	roots := []string{os.TempDir(), "/tmp", "/var/tmp", "/dev/shm", "/dev/fd", "/proc/self/fd"}
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		if root = strings.TrimSpace(root); root != "" {
			out = append(out, filepath.Clean(root))
		}
	}
	return out
}

// DetectMode classifies the running executable: a path under a temporary
// directory means it was fetched for a single run, so capabilities must be
// fetched remotely too.
func DetectMode(executable string) Mode {
	exe := strings.TrimSpace(executable)
	if exe == "" {
		return ModeLocal
	}
	exe = filepath.Clean(exe)
	for _, root := range transientRoots() {
		if root == "/" {
			continue
		}
		if exe == root || strings.HasPrefix(exe, root+string(filepath.Separator)) {
			return ModeRemote
		}
	}
	return ModeLocal
}

// NewContext derives the execution context. In remote mode a missing owner
// or repository is prompted for and an empty answer is a *ConfigError. When
// no branch is configured the default branch is assumed and left open to
// inference.
func NewContext(ctx context.Context, opts ContextOptions) (ExecutionContext, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	mode := DetectMode(opts.Executable)
	if opts.ForceMode != nil {
		mode = *opts.ForceMode
	}
	ec := ExecutionContext{Mode: mode, Root: opts.Root}

	coord := Coordinate{
		Owner:  firstNonEmpty(getenv(EnvOwner), opts.Repository.Owner),
		Repo:   firstNonEmpty(getenv(EnvRepo), opts.Repository.Name),
		Branch: firstNonEmpty(getenv(EnvBranch), opts.Repository.Branch),
	}
	coord.BranchExplicit = coord.Branch != ""
	if coord.Branch == "" {
		coord.Branch = config.DefaultBranch()
	}

	if mode == ModeRemote {
		var err error
		if coord.Owner == "" {
			if coord.Owner, err = ask(ctx, opts.Prompt, EnvOwner, "GitHub owner of the setup repository"); err != nil {
				return ExecutionContext{}, err
			}
		}
		if coord.Repo == "" {
			if coord.Repo, err = ask(ctx, opts.Prompt, EnvRepo, "Name of the setup repository"); err != nil {
				return ExecutionContext{}, err
			}
		}
	}
	if coord.Owner != "" && coord.Repo != "" {
		ec.Coordinate = &coord
	}
	return ec, nil
}

func ask(ctx context.Context, prompt PromptFunc, field, question string) (string, error) {
	if prompt == nil {
		return "", &ConfigError{Field: field, Reason: "not set and no interactive prompt is available"}
	}
	answer, err := prompt(ctx, question)
	if err != nil {
		return "", fmt.Errorf("locator: prompt for %s: %w", field, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", &ConfigError{Field: field, Reason: "empty value"}
	}
	return answer, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
