package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/kingrea/linux-setup/internal/catalog"
	"github.com/kingrea/linux-setup/internal/config"
	"github.com/kingrea/linux-setup/internal/deps"
	"github.com/kingrea/linux-setup/internal/locator"
	"github.com/kingrea/linux-setup/internal/logbook"
	"github.com/kingrea/linux-setup/internal/present"
	"github.com/kingrea/linux-setup/internal/probe"
	"github.com/kingrea/linux-setup/internal/system"
	"github.com/kingrea/linux-setup/internal/tui"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	root      string
	config    string
	tier      string
	mode      string
	yes       bool
	noInstall bool
	verbose   bool
}

// environment is everything a command needs, built once per invocation.
type environment struct {
	cfg      *config.Config
	log      *logbook.Logbook
	host     system.Host
	locator  *locator.Locator
	resolver *deps.Resolver
	policy   deps.Policy
	tier     probe.Selection

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func buildEnvironment(ctx context.Context, flags *globalFlags) (*environment, error) {
	exe, _ := os.Executable()
	wd, _ := os.Getwd()

	rootDir, err := config.ResolveRoot(config.RootOptions{
		Flag:       flags.root,
		Getenv:     os.Getenv,
		Executable: exe,
		WorkingDir: wd,
	})
	if errors.Is(err, config.ErrRootNotFound) && flags.root == "" && locator.DetectMode(exe) == locator.ModeRemote && wd != "" {
		// A one-off download has no checkout around it.
		rootDir, err = wd, nil
	}
	if err != nil {
		return nil, err
	}
	if err := config.InitStateDir(rootDir); err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(rootDir, flags.config)
	if err != nil {
		return nil, err
	}

	var echo io.Writer
	if flags.verbose {
		echo = os.Stderr
	}
	lb, err := logbook.New(cfg.LogPath(), logbook.Options{Echo: echo})
	if err != nil {
		return nil, err
	}
	env := &environment{
		cfg:    cfg,
		log:    lb,
		host:   system.OS{},
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := env.configure(ctx, exe, flags); err != nil {
		_ = lb.Close()
		return nil, err
	}
	return env, nil
}

func (e *environment) configure(ctx context.Context, exe string, flags *globalFlags) error {
	project := e.cfg.Project
	forced, err := parseMode(flags.mode)
	if err != nil {
		return err
	}
	prompt := present.NewLine(e.stdin, e.stderr)
	ec, err := locator.NewContext(ctx, locator.ContextOptions{
		Executable: exe,
		Root:       e.cfg.RootDir,
		ForceMode:  forced,
		Repository: project.Repository,
		Getenv:     os.Getenv,
		Prompt:     prompt.Input,
	})
	if err != nil {
		return err
	}
	e.locator, err = locator.New(ec, project.Repository.RawBaseURL,
		locator.WithTimeouts(project.Network.FetchTimeout, project.Network.ProbeTimeout),
		locator.WithReference(e.cfg.TemplateCapability()),
		locator.WithLogger(e.log.Logger()),
	)
	if err != nil {
		return err
	}
	e.log.Info("session %s · root %s · mode %s", e.log.Session(), e.cfg.RootDir, ec.Mode)

	resolverOpts := []deps.Option{deps.WithPackages(project.Dependencies.Packages), deps.WithLogger(e.log.Logger())}
	if len(project.Dependencies.Backends) > 0 {
		backends, err := deps.BackendsByID(project.Dependencies.Backends)
		if err != nil {
			return err
		}
		resolverOpts = append(resolverOpts, deps.WithBackends(backends))
	}
	e.resolver = deps.New(e.host, resolverOpts...)

	if e.policy, err = resolvePolicy(project.Dependencies.Policy, flags); err != nil {
		return err
	}

	tierValue := project.Presentation.Tier
	if flags.tier != "" {
		tierValue = flags.tier
	}
	tier, pinned, err := probe.ParseTier(tierValue)
	if err != nil {
		return err
	}
	if pinned {
		e.tier = probe.Force(e.host, tier, probe.DefaultStrategies())
	} else {
		e.tier = probe.Select(e.host, probe.DefaultStrategies())
	}
	e.log.Debug("presentation tier %s %s", e.tier.Tier, e.tier.Binary)
	return nil
}

func parseMode(value string) (*locator.Mode, error) {
	var mode locator.Mode
	switch value {
	case "", "auto":
		return nil, nil
	case "local":
		mode = locator.ModeLocal
	case "remote":
		mode = locator.ModeRemote
	default:
		return nil, fmt.Errorf("--mode must be auto, local or remote, got %q", value)
	}
	return &mode, nil
}

func resolvePolicy(configured string, flags *globalFlags) (deps.Policy, error) {
	switch {
	case flags.yes && flags.noInstall:
		return deps.PolicyAsk, fmt.Errorf("--yes and --no-install cannot be combined")
	case flags.yes:
		return deps.PolicyAlways, nil
	case flags.noInstall:
		return deps.PolicyNever, nil
	default:
		return deps.ParsePolicy(configured)
	}
}

func (e *environment) close() {
	if e == nil {
		return
	}
	_ = e.log.Close()
}

func (e *environment) catalogOptions() catalog.Options {
	c := e.cfg.Project.Catalog
	return catalog.Options{
		Prefix:         c.Prefix,
		Suffixes:       c.Suffixes,
		DescriptionTag: c.DescriptionTag,
		Reserved:       c.Reserved,
	}
}

// baseline lists the orchestrator's own prerequisites: the configured ones
// plus whatever the core capability requires.
func (e *environment) baseline(ctx context.Context) []string {
	names := append([]string(nil), e.cfg.Project.Dependencies.Prerequisites...)
	capability, err := e.locator.Load(ctx, e.cfg.CoreCapability())
	if err != nil {
		e.log.Warn("baseline capability: %v", err)
		return names
	}
	e.resolver.AddPackages(capability.Packages)
	return append(names, capability.Requires...)
}

func (e *environment) interactive() bool {
	in, inOK := e.stdin.(*os.File)
	out, outOK := e.stdout.(*os.File)
	return inOK && outOK && term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd()))
}

// presenter builds the adapter for the probed tier. The plain-text tier is
// drawn by bubbletea on a terminal and by a line prompt otherwise.
func (e *environment) presenter() present.Presenter {
	switch e.tier.Tier {
	case probe.TierRich:
		return &present.Gum{Host: e.host, Binary: e.tier.Binary, In: e.stdin, Out: e.stdout}
	case probe.TierDialog:
		return &present.Dialog{Host: e.host, Binary: e.tier.Binary}
	}
	if e.interactive() {
		return tui.NewPresenter(e.stdin, e.stdout, e.log)
	}
	return present.NewLine(e.stdin, e.stdout)
}
