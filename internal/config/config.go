// internal/config/config.go
//
// Configuration for the installer menu and the layout of its installation
// root. The root holds installers/, lib/ and a .linux-setup/ state folder
// with config.yaml and the logbook.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// StateDirName is the folder created inside the installation root.
	StateDirName = ".linux-setup"

	// RootEnvVar pins the installation root without walking the filesystem.
	RootEnvVar = "LINUX_SETUP_ROOT"

	defaultActionsDir   = "installers"
	defaultTemplate     = "installers/template.tpl"
	defaultCore         = "lib/core.yaml"
	defaultRawBaseURL   = "https://raw.githubusercontent.com"
	defaultBranch       = "main"
	defaultFetchTimeout = 30 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// ErrRootNotFound is returned when no installation root can be resolved.
var ErrRootNotFound = errors.New("config: installation root not found")

const defaultProjectConfigYAML = `# linux-setup configuration
version: 1

# Remote coordinates used when the menu runs from a temporary download.
# REPO_USER, REPO_NAME and REPO_BRANCH override these values.
repository:
  owner: ""
  name: ""
  # branch: main

catalog:
  dir: installers
  prefix: setup_
  suffixes: [".sh"]
  description_tag: "# Description:"
  reserved: [gum, new_installer]

dependencies:
  # ask, always or never
  policy: ask
  prerequisites: [curl, git]

presentation:
  tier: auto
  tool: gum
`

// RepositoryConfig locates the remote copy of the installation root.
type RepositoryConfig struct {
	Owner      string `yaml:"owner"`
	Name       string `yaml:"name"`
	Branch     string `yaml:"branch,omitempty"`
	RawBaseURL string `yaml:"raw_base_url,omitempty"`
}

// CatalogConfig controls action discovery.
type CatalogConfig struct {
	Dir            string   `yaml:"dir"`
	Prefix         string   `yaml:"prefix"`
	Suffixes       []string `yaml:"suffixes"`
	DescriptionTag string   `yaml:"description_tag"`
	Reserved       []string `yaml:"reserved"`
	Template       string   `yaml:"template,omitempty"`
}

// DependencyConfig controls the prerequisite resolver.
type DependencyConfig struct {
	Policy        string                       `yaml:"policy"`
	Prerequisites []string                     `yaml:"prerequisites"`
	Backends      []string                     `yaml:"backends,omitempty"`
	Packages      map[string]map[string]string `yaml:"packages,omitempty"`
	Core          string                       `yaml:"core,omitempty"`
}

// PresentationConfig selects the menu renderer.
type PresentationConfig struct {
	Tier string `yaml:"tier"`
	Tool string `yaml:"tool"`
}

// NetworkConfig bounds remote capability fetches.
type NetworkConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`
}

// ProjectConfig models .linux-setup/config.yaml.
type ProjectConfig struct {
	Version      int                `yaml:"version"`
	Repository   RepositoryConfig   `yaml:"repository"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Dependencies DependencyConfig   `yaml:"dependencies"`
	Presentation PresentationConfig `yaml:"presentation"`
	Network      NetworkConfig      `yaml:"network,omitempty"`
}

// Config holds the runtime configuration.
type Config struct {
	// RootDir is the installation root (the directory holding installers/).
	RootDir string

	// StateDir is RootDir/.linux-setup
	StateDir string

	// Path is the config file that was loaded, if any.
	Path string

	Project ProjectConfig
}

// RootOptions lists the places ResolveRoot may look at, in priority order.
type RootOptions struct {
	Flag       string
	Getenv     func(string) string
	Executable string
	WorkingDir string
}

// ResolveRoot finds the installation root: the --root flag, then
// LINUX_SETUP_ROOT, then the nearest ancestor of the executable or the
// working directory that contains an installers/ folder.
func ResolveRoot(opts RootOptions) (string, error) {
	if flag := strings.TrimSpace(opts.Flag); flag != "" {
		return existingDir(flag)
	}
	if opts.Getenv != nil {
		if env := strings.TrimSpace(opts.Getenv(RootEnvVar)); env != "" {
			return existingDir(env)
		}
	}
	var starts []string
	if exe := strings.TrimSpace(opts.Executable); exe != "" {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		starts = append(starts, filepath.Dir(exe))
	}
	if wd := strings.TrimSpace(opts.WorkingDir); wd != "" {
		starts = append(starts, wd)
	}
	for _, start := range starts {
		if root, ok := findUp(start, defaultActionsDir); ok {
			return root, nil
		}
	}
	return "", ErrRootNotFound
}

func existingDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrRootNotFound, abs)
		}
		return "", fmt.Errorf("config: stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, abs)
	}
	return abs, nil
}

func findUp(start, marker string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// InitStateDir creates RootDir/.linux-setup with its logs folder and a
// default config.yaml when none exists.
func InitStateDir(rootDir string) error {
	stateDir := filepath.Join(rootDir, StateDirName)
	if err := os.MkdirAll(filepath.Join(stateDir, "logs"), 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// NewConfig loads the project configuration for rootDir. An explicit path
// overrides RootDir/.linux-setup/config.yaml; a missing default file means
// all defaults.
func NewConfig(rootDir, path string) (*Config, error) {
	cfg := &Config{
		RootDir:  rootDir,
		StateDir: filepath.Join(rootDir, StateDirName),
		Project:  defaultProjectConfig(),
	}
	explicit := strings.TrimSpace(path) != ""
	cfg.Path = cfg.ProjectConfigPath()
	if explicit {
		cfg.Path = resolvePath(rootDir, path)
	}
	if err := cfg.loadProjectConfig(explicit); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the default on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// LogsDir returns the directory that holds the logbook.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// LogPath returns the logbook file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "setup.log")
}

// ActionsDir returns the absolute directory scanned for actions.
func (c *Config) ActionsDir() string {
	return resolvePath(c.RootDir, c.Project.Catalog.Dir)
}

// TemplateCapability names the catalog-generator template relative to the root.
func (c *Config) TemplateCapability() string {
	return c.Project.Catalog.Template
}

// CoreCapability names the orchestrator's baseline capability.
func (c *Config) CoreCapability() string {
	return c.Project.Dependencies.Core
}

func (c *Config) loadProjectConfig(explicit bool) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", c.Path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.Path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", c.Path, err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Repository.RawBaseURL == "" {
		pc.Repository.RawBaseURL = defaultRawBaseURL
	}
	if pc.Catalog.Dir == "" {
		pc.Catalog.Dir = defaultActionsDir
	}
	if pc.Catalog.Prefix == "" {
		pc.Catalog.Prefix = "setup_"
	}
	if len(pc.Catalog.Suffixes) == 0 {
		pc.Catalog.Suffixes = []string{".sh"}
	}
	if pc.Catalog.DescriptionTag == "" {
		pc.Catalog.DescriptionTag = "# Description:"
	}
	if pc.Catalog.Reserved == nil {
		pc.Catalog.Reserved = []string{"gum", "new_installer"}
	}
	if pc.Catalog.Template == "" {
		pc.Catalog.Template = defaultTemplate
	}
	if pc.Dependencies.Policy == "" {
		pc.Dependencies.Policy = "ask"
	}
	if pc.Dependencies.Prerequisites == nil {
		pc.Dependencies.Prerequisites = []string{"curl", "git"}
	}
	if pc.Dependencies.Core == "" {
		pc.Dependencies.Core = defaultCore
	}
	if pc.Presentation.Tier == "" {
		pc.Presentation.Tier = "auto"
	}
	if pc.Presentation.Tool == "" {
		pc.Presentation.Tool = "gum"
	}
	if pc.Network.FetchTimeout == 0 {
		pc.Network.FetchTimeout = defaultFetchTimeout
	}
	if pc.Network.ProbeTimeout == 0 {
		pc.Network.ProbeTimeout = defaultProbeTimeout
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Repository.Owner = strings.TrimSpace(pc.Repository.Owner)
	pc.Repository.Name = strings.TrimSpace(pc.Repository.Name)
	pc.Repository.Branch = strings.TrimSpace(pc.Repository.Branch)
	pc.Repository.RawBaseURL = strings.TrimRight(strings.TrimSpace(pc.Repository.RawBaseURL), "/")
	pc.Catalog.Dir = strings.TrimSpace(pc.Catalog.Dir)
	pc.Catalog.Prefix = strings.TrimSpace(pc.Catalog.Prefix)
	pc.Catalog.Suffixes = trimAll(pc.Catalog.Suffixes)
	pc.Catalog.DescriptionTag = strings.TrimSpace(pc.Catalog.DescriptionTag)
	pc.Catalog.Reserved = trimAll(pc.Catalog.Reserved)
	pc.Catalog.Template = strings.TrimSpace(pc.Catalog.Template)
	pc.Dependencies.Policy = strings.ToLower(strings.TrimSpace(pc.Dependencies.Policy))
	pc.Dependencies.Prerequisites = trimAll(pc.Dependencies.Prerequisites)
	pc.Dependencies.Backends = trimAll(pc.Dependencies.Backends)
	pc.Dependencies.Core = strings.TrimSpace(pc.Dependencies.Core)
	pc.Presentation.Tier = strings.ToLower(strings.TrimSpace(pc.Presentation.Tier))
	pc.Presentation.Tool = strings.TrimSpace(pc.Presentation.Tool)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Catalog.Prefix == "" && len(pc.Catalog.Suffixes) == 0 {
		return fmt.Errorf("catalog needs a prefix or at least one suffix")
	}
	switch pc.Dependencies.Policy {
	case "ask", "always", "never":
	default:
		return fmt.Errorf("dependencies.policy must be 'ask', 'always' or 'never'")
	}
	switch pc.Presentation.Tier {
	case "auto", "rich", "rich-interactive", "dialog", "basic-dialog", "plain", "plain-text":
	default:
		return fmt.Errorf("presentation.tier %q is not recognized", pc.Presentation.Tier)
	}
	if pc.Network.FetchTimeout < 0 || pc.Network.ProbeTimeout < 0 {
		return fmt.Errorf("network timeouts must be positive")
	}
	if base := pc.Repository.RawBaseURL; !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("repository.raw_base_url must be an http(s) URL")
	}
	return nil
}

// DefaultBranch is the branch assumed before inference when none is configured.
func DefaultBranch() string {
	return defaultBranch
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
