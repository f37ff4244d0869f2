// Package menu runs the interactive loop: render the catalog, dispatch the
// chosen action, render again, until the user exits.
package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kingrea/linux-setup/internal/catalog"
	"github.com/kingrea/linux-setup/internal/deps"
	"github.com/kingrea/linux-setup/internal/locator"
	"github.com/kingrea/linux-setup/internal/logbook"
	"github.com/kingrea/linux-setup/internal/present"
	"github.com/kingrea/linux-setup/internal/system"
)

// State is the controller's position in its loop.
type State int

const (
	StateIdle State = iota
	StateRendering
	StateDispatching
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateDispatching:
		return "dispatching"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// interruptedExit is the status of a child stopped by SIGINT.
const interruptedExit = 130

// StaleError means a chosen entry no longer matches the action directory.
// It is reported and the menu renders again.
type StaleError struct {
	Name   string
	File   string
	Reason string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("menu: %s (%s) is stale: %s", e.Name, e.File, e.Reason)
}

// CapabilityLoader loads shared capabilities; *locator.Locator implements it.
type CapabilityLoader interface {
	Load(ctx context.Context, name string) (locator.Capability, error)
}

// Options configures a Controller.
type Options struct {
	Title      string
	ActionsDir string
	Catalog    catalog.Options
	// Tool is the reserved action behind the "Update <tool>" entry.
	Tool string

	Policy         deps.Policy
	Prerequisites  []string
	CoreCapability string

	// Watch rescans the action directory when it changes.
	Watch bool
	// Styled renders the dependency report with glamour.
	Styled bool
}

// Option wires an optional collaborator.
type Option func(*Controller)

// WithResolver enables the baseline prerequisite check.
func WithResolver(r *deps.Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithLoader loads the core capability before the first render.
func WithLoader(l CapabilityLoader) Option {
	return func(c *Controller) { c.loader = l }
}

// WithLogbook records the session.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(c *Controller) { c.log = lb }
}

// WithOutput sets where progress lines are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Controller) {
		if w != nil {
			c.out = w
		}
	}
}

// Controller owns the menu loop. It is single threaded; actions block it.
type Controller struct {
	opts      Options
	host      system.Host
	presenter present.Presenter
	resolver  *deps.Resolver
	loader    CapabilityLoader
	log       *logbook.Logbook
	out       io.Writer

	state   State
	actions []catalog.Descriptor
	watcher *catalog.Watcher
}

// New builds a controller. The tier, and with it the presenter, is chosen
// by the caller before the controller exists.
func New(host system.Host, presenter present.Presenter, opts Options, extra ...Option) *Controller {
	if opts.Title == "" {
		opts.Title = "Linux Setup"
	}
	if opts.Tool == "" {
		opts.Tool = "gum"
	}
	c := &Controller{
		opts:      opts,
		host:      host,
		presenter: presenter,
		out:       os.Stdout,
	}
	for _, opt := range extra {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State reports where the controller is in its loop.
func (c *Controller) State() State {
	return c.state
}

// Actions returns the catalog as of the last scan.
func (c *Controller) Actions() []catalog.Descriptor {
	return c.actions
}

// Run checks the baseline prerequisites, scans the catalog and loops until
// the user exits or ctx is cancelled. A duplicate action name or an
// unreadable action directory aborts before the first render.
func (c *Controller) Run(ctx context.Context) (err error) {
	if wd, wdErr := os.Getwd(); wdErr == nil {
		defer func() {
			if chErr := os.Chdir(wd); chErr != nil {
				c.log.Warn("restore working directory %s: %v", wd, chErr)
			}
		}()
	}
	defer func() {
		c.state = StateExited
		if c.watcher != nil {
			_ = c.watcher.Close()
			c.watcher = nil
		}
		if err != nil {
			c.log.Error("menu stopped: %v", err)
		} else {
			c.log.Info("menu exited")
		}
	}()

	c.log.Info("menu started · actions in %s", c.opts.ActionsDir)
	c.ensureBaseline(ctx)
	if err := c.rescan(); err != nil {
		return err
	}
	if c.opts.Watch {
		if w, watchErr := catalog.Watch(c.opts.ActionsDir); watchErr == nil {
			c.watcher = w
		} else {
			c.log.Debug("catalog watch disabled: %v", watchErr)
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.state = StateRendering
		if c.watcher.Changed() {
			if scanErr := c.rescan(); scanErr != nil {
				fmt.Fprintf(c.out, "Warning: %v\n", scanErr)
				c.log.Warn("rescan failed, keeping previous catalog: %v", scanErr)
			}
		}
		entry, chooseErr := c.presenter.Choose(ctx, c.opts.Title, c.Entries())
		if errors.Is(chooseErr, present.ErrCancelled) || ctx.Err() != nil {
			return nil
		}
		if errors.Is(chooseErr, present.ErrUnknownSelection) {
			fmt.Fprintf(c.out, "Warning: %v\n", chooseErr)
			c.log.Warn("%v", chooseErr)
			continue
		}
		if chooseErr != nil {
			return chooseErr
		}
		if entry.Kind == present.KindExit {
			return nil
		}
		c.state = StateDispatching
		if dispatchErr := c.dispatch(ctx, entry); dispatchErr != nil {
			if errors.Is(dispatchErr, present.ErrCancelled) {
				return nil
			}
			var stale *StaleError
			if !errors.As(dispatchErr, &stale) {
				return dispatchErr
			}
			fmt.Fprintln(c.out, stale.Error())
			c.log.Warn("%v", stale)
			if pauseErr := c.pause(ctx); pauseErr != nil {
				return nil
			}
		}
	}
}

// Entries lists the menu rows: every action, then the tool update and
// exit entries.
func (c *Controller) Entries() []present.Entry {
	entries := make([]present.Entry, 0, len(c.actions)+2)
	for _, action := range c.actions {
		entries = append(entries, present.ActionEntry(action))
	}
	return append(entries,
		present.Entry{Kind: present.KindUpdateTool, Label: "Update " + c.opts.Tool, Detail: "Reinstall " + c.opts.Tool},
		present.Entry{Kind: present.KindExit, Label: "Exit", Detail: "Leave the menu"},
	)
}

func (c *Controller) rescan() error {
	actions, err := catalog.Discover(c.opts.ActionsDir, c.opts.Catalog)
	if err != nil {
		return err
	}
	c.actions = actions
	c.log.Debug("catalog has %d actions", len(actions))
	return nil
}

func (c *Controller) dispatch(ctx context.Context, entry present.Entry) error {
	var (
		action catalog.Descriptor
		err    error
	)
	switch entry.Kind {
	case present.KindAction:
		action, err = c.verify(entry.Action)
	case present.KindUpdateTool:
		action, err = c.reserved(c.opts.Tool)
	default:
		return fmt.Errorf("menu: cannot dispatch %s entry", entry.Kind)
	}
	if err != nil {
		return err
	}
	c.execute(ctx, action)
	if ctx.Err() != nil {
		return nil
	}
	return c.pause(ctx)
}

// verify re-checks a chosen descriptor against a fresh scan and the file
// system right before it runs.
func (c *Controller) verify(chosen catalog.Descriptor) (catalog.Descriptor, error) {
	stale := func(reason string) error {
		return &StaleError{Name: chosen.Name, File: chosen.File, Reason: reason}
	}
	if err := c.rescan(); err != nil {
		return catalog.Descriptor{}, stale(err.Error())
	}
	live, ok := catalog.Lookup(c.actions, chosen.Name)
	if !ok {
		return catalog.Descriptor{}, stale("no longer in the catalog")
	}
	if live.File != chosen.File {
		return catalog.Descriptor{}, stale("now provided by " + live.File)
	}
	if _, err := os.Stat(live.Ref.Path); err != nil {
		return catalog.Descriptor{}, stale(err.Error())
	}
	return live, nil
}

func (c *Controller) reserved(name string) (catalog.Descriptor, error) {
	action, ok, err := catalog.LookupReserved(c.opts.ActionsDir, c.opts.Catalog, name)
	if err != nil {
		return catalog.Descriptor{}, &StaleError{Name: name, File: c.opts.Catalog.Prefix + name, Reason: err.Error()}
	}
	if !ok {
		return catalog.Descriptor{}, &StaleError{Name: name, File: c.opts.Catalog.Prefix + name, Reason: "installer not found in " + c.opts.ActionsDir}
	}
	return action, nil
}

// execute runs the action in the foreground. Its exit status is reported
// and logged but never stops the menu. The action is not cancelled in flight;
// an interrupt reaches it through the terminal and shows up as its status.
func (c *Controller) execute(ctx context.Context, action catalog.Descriptor) {
	fmt.Fprintf(c.out, "Running: %s\n", action.File)
	c.log.Info("running %s (%s)", action.Name, action.Ref.Path)
	err := c.host.Run(context.WithoutCancel(ctx), action.Ref.Command())
	code := system.ExitCode(err)
	switch {
	case err == nil:
		c.log.Info("%s finished", action.Name)
	case code == interruptedExit:
		fmt.Fprintln(c.out, "Installation cancelled")
		c.log.Warn("%s cancelled", action.Name)
	default:
		fmt.Fprintf(c.out, "Installation failed with exit code %d\n", code)
		c.log.Error("%s failed with exit code %d: %v", action.Name, code, err)
	}
}

func (c *Controller) pause(ctx context.Context) error {
	err := c.presenter.Pause(ctx, "Press enter to return to menu")
	if err != nil && !errors.Is(err, present.ErrCancelled) {
		c.log.Warn("pause: %v", err)
	}
	return err
}

// ensureBaseline installs what the orchestrator itself needs. Every
// problem here is a warning; the menu still starts.
func (c *Controller) ensureBaseline(ctx context.Context) {
	if c.resolver == nil {
		return
	}
	names := append([]string(nil), c.opts.Prerequisites...)
	if c.loader != nil && c.opts.CoreCapability != "" {
		capability, err := c.loader.Load(ctx, c.opts.CoreCapability)
		if err != nil {
			fmt.Fprintf(c.out, "Warning: %v\n", err)
			c.log.Warn("baseline capability: %v", err)
		} else {
			names = append(names, capability.Requires...)
			c.resolver.AddPackages(capability.Packages)
		}
	}
	if len(names) == 0 {
		return
	}
	report, err := c.resolver.Ensure(ctx, names, c.opts.Policy, c.consent)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, present.ErrCancelled) {
			fmt.Fprintf(c.out, "Warning: %v\n", err)
		}
		c.log.Warn("baseline prerequisites: %v", err)
		return
	}
	c.log.Info("baseline prerequisites %s", report.Outcome())
	if report.Outcome() != deps.OutcomeSatisfied {
		if renderErr := present.RenderMarkdown(c.out, report.Markdown(), c.opts.Styled, 0); renderErr != nil {
			c.log.Debug("render report: %v", renderErr)
		}
	}
}

func (c *Controller) consent(ctx context.Context, missing []string, backend deps.Backend) (bool, error) {
	return c.presenter.Confirm(ctx, fmt.Sprintf("Install %s with %s?", strings.Join(missing, ", "), backend.ID))
}
