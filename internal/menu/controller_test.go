package menu

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kingrea/linux-setup/internal/catalog"
	"github.com/kingrea/linux-setup/internal/deps"
	"github.com/kingrea/linux-setup/internal/locator"
	"github.com/kingrea/linux-setup/internal/present"
	"github.com/kingrea/linux-setup/internal/system"
	"github.com/kingrea/linux-setup/internal/system/systemtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chooseFunc func(entries []present.Entry) (present.Entry, error)

// scriptedPresenter answers Choose from a script and exits when it runs out.
type scriptedPresenter struct {
	script    []chooseFunc
	seen      [][]present.Entry
	confirms  []string
	confirmOK bool
	pauses    int
}

func (p *scriptedPresenter) Choose(_ context.Context, _ string, entries []present.Entry) (present.Entry, error) {
	p.seen = append(p.seen, entries)
	if len(p.script) == 0 {
		return pick(present.KindExit, "")(entries)
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next(entries)
}

func (p *scriptedPresenter) Confirm(_ context.Context, question string) (bool, error) {
	p.confirms = append(p.confirms, question)
	return p.confirmOK, nil
}

func (p *scriptedPresenter) Input(context.Context, string) (string, error) { return "", nil }

func (p *scriptedPresenter) Pause(context.Context, string) error {
	p.pauses++
	return nil
}

func pick(kind present.Kind, label string) chooseFunc {
	return func(entries []present.Entry) (present.Entry, error) {
		for _, entry := range entries {
			if entry.Kind == kind && (label == "" || entry.Label == label) {
				return entry, nil
			}
		}
		return present.Entry{}, errors.New("entry not offered")
	}
}

type fakeLoader struct {
	capability locator.Capability
	err        error
}

func (l fakeLoader) Load(context.Context, string) (locator.Capability, error) {
	return l.capability, l.err
}

func writeAction(t *testing.T, dir, file, body string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func newController(t *testing.T, dir string, host system.Host, p present.Presenter, out *bytes.Buffer, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithOutput(out)}, opts...)
	return New(host, p, Options{ActionsDir: dir, Catalog: catalog.DefaultOptions(), Policy: deps.PolicyAsk}, opts...)
}

func TestEmptyCatalogOffersOnlySystemEntries(t *testing.T) {
	host := systemtest.New()
	p := &scriptedPresenter{}
	var out bytes.Buffer
	c := newController(t, t.TempDir(), host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	require.Len(t, p.seen, 1)
	kinds := []present.Kind{p.seen[0][0].Kind, p.seen[0][1].Kind}
	assert.Equal(t, []present.Kind{present.KindUpdateTool, present.KindExit}, kinds)
	assert.Len(t, p.seen[0], 2)
	assert.Equal(t, StateExited, c.State())
	assert.Empty(t, host.Calls())
}

func TestDispatchRunsActionThenRendersAgain(t *testing.T) {
	dir := t.TempDir()
	path := writeAction(t, dir, "setup_git.sh", "#!/bin/bash\n# Description: Git and config\n")
	host := systemtest.New()
	p := &scriptedPresenter{script: []chooseFunc{pick(present.KindAction, "git")}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"bash " + path}, host.CallLines())
	assert.Equal(t, dir, host.Calls()[0].Dir)
	assert.Contains(t, out.String(), "Running: setup_git.sh")
	assert.Equal(t, 1, p.pauses)
	assert.Len(t, p.seen, 2, "menu renders again after the action")
}

func TestFailedActionReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	writeAction(t, dir, "setup_broken.sh", "#!/bin/bash\nexit 3\n")
	host := systemtest.New()
	host.Handle("bash", func(system.Command) error { return &system.ExitError{Code: 3} })
	p := &scriptedPresenter{script: []chooseFunc{pick(present.KindAction, "broken")}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), "Installation failed with exit code 3")
	assert.Equal(t, 1, p.pauses)
}

func TestInterruptedActionIsCancelled(t *testing.T) {
	dir := t.TempDir()
	writeAction(t, dir, "setup_slow.sh", "#!/bin/bash\nsleep 100\n")
	host := systemtest.New()
	host.Handle("bash", func(system.Command) error { return &system.ExitError{Code: 130} })
	p := &scriptedPresenter{script: []chooseFunc{pick(present.KindAction, "slow")}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), "Installation cancelled")
	assert.NotContains(t, out.String(), "Installation failed")
	assert.Equal(t, 1, p.pauses)
	assert.Len(t, p.seen, 2, "an interrupted action returns to the menu")
	assert.Equal(t, StateExited, c.State())
}

func TestStaleEntryIsReportedNotRun(t *testing.T) {
	dir := t.TempDir()
	path := writeAction(t, dir, "setup_vim.sh", "#!/bin/bash\n")
	host := systemtest.New()
	removeThenPick := func(entries []present.Entry) (present.Entry, error) {
		require.NoError(t, os.Remove(path))
		return pick(present.KindAction, "vim")(entries)
	}
	p := &scriptedPresenter{script: []chooseFunc{removeThenPick}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, host.Calls())
	assert.Contains(t, out.String(), "vim (setup_vim.sh) is stale")
	require.Len(t, p.seen, 2)
	assert.Len(t, p.seen[1], 2, "the removed action is gone from the next render")
}

func TestStaleEntryWhenAnotherFileClaimsTheName(t *testing.T) {
	dir := t.TempDir()
	host := systemtest.New()
	replace := func(entries []present.Entry) (present.Entry, error) {
		entry, err := pick(present.KindAction, "vim")(entries)
		entry.Action.File = "setup_vim.bash"
		return entry, err
	}
	writeAction(t, dir, "setup_vim.sh", "#!/bin/bash\n")
	p := &scriptedPresenter{script: []chooseFunc{replace}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, host.Calls())
	assert.Contains(t, out.String(), "now provided by setup_vim.sh")
}

func TestUpdateToolRunsReservedInstaller(t *testing.T) {
	dir := t.TempDir()
	path := writeAction(t, dir, "setup_gum.sh", "#!/bin/bash\n")
	host := systemtest.New()
	p := &scriptedPresenter{script: []chooseFunc{pick(present.KindUpdateTool, "")}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"bash " + path}, host.CallLines())
	assert.Len(t, p.seen[0], 2, "the reserved installer is not an ordinary entry")
}

func TestUpdateToolMissingInstallerIsReported(t *testing.T) {
	host := systemtest.New()
	p := &scriptedPresenter{script: []chooseFunc{pick(present.KindUpdateTool, "")}}
	var out bytes.Buffer
	c := newController(t, t.TempDir(), host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), "installer not found")
	assert.Empty(t, host.Calls())
}

func TestCancelledChoiceExits(t *testing.T) {
	p := &scriptedPresenter{script: []chooseFunc{func([]present.Entry) (present.Entry, error) {
		return present.Entry{}, present.ErrCancelled
	}}}
	var out bytes.Buffer
	c := newController(t, t.TempDir(), systemtest.New(), p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateExited, c.State())
}

func TestPresenterFailureIsReturned(t *testing.T) {
	boom := errors.New("terminal gone")
	p := &scriptedPresenter{script: []chooseFunc{func([]present.Entry) (present.Entry, error) {
		return present.Entry{}, boom
	}}}
	var out bytes.Buffer
	c := newController(t, t.TempDir(), systemtest.New(), p, &out)

	assert.ErrorIs(t, c.Run(context.Background()), boom)
}

func TestUnknownSelectionRendersAgain(t *testing.T) {
	dir := t.TempDir()
	writeAction(t, dir, "setup_git.sh", "#!/bin/bash\n")
	host := systemtest.New()
	p := &scriptedPresenter{script: []chooseFunc{
		func([]present.Entry) (present.Entry, error) {
			return present.Entry{}, present.ErrUnknownSelection
		},
		pick(present.KindAction, "git"),
	}}
	var out bytes.Buffer
	c := newController(t, dir, host, p, &out)

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), "Warning: present: selection matches no entry")
	assert.Len(t, p.seen, 3)
	assert.Len(t, host.Calls(), 1, "the next choice still dispatches")
}

func TestDuplicateActionsAbortBeforeRender(t *testing.T) {
	dir := t.TempDir()
	writeAction(t, dir, "setup_Git.sh", "#!/bin/bash\n")
	writeAction(t, dir, "setup_git.sh", "#!/bin/bash\n")
	p := &scriptedPresenter{}
	var out bytes.Buffer
	c := newController(t, dir, systemtest.New(), p, &out)

	err := c.Run(context.Background())
	var dup *catalog.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Empty(t, p.seen)
}

func TestCancelledContextExitsBeforeRender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptedPresenter{}
	var out bytes.Buffer
	c := newController(t, t.TempDir(), systemtest.New(), p, &out)

	require.NoError(t, c.Run(ctx))
	assert.Empty(t, p.seen)
}

func TestBaselineInstallsCoreRequirementsAfterOneConsent(t *testing.T) {
	host := systemtest.New("apt-get")
	host.Handle("apt-get", func(cmd system.Command) error {
		host.Install(cmd.Args[len(cmd.Args)-1])
		return nil
	})
	p := &scriptedPresenter{confirmOK: true}
	var out bytes.Buffer
	loader := fakeLoader{capability: locator.Capability{Name: "core", Requires: []string{"jq"}}}
	c := New(host, p, Options{
		ActionsDir:     t.TempDir(),
		Catalog:        catalog.DefaultOptions(),
		Policy:         deps.PolicyAsk,
		Prerequisites:  []string{"curl"},
		CoreCapability: "lib/core.yaml",
	}, WithOutput(&out), WithResolver(deps.New(host)), WithLoader(loader))

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"Install curl, jq with apt-get?"}, p.confirms)
	assert.Equal(t, []string{"apt-get install -y curl", "apt-get install -y jq"}, host.CallLines())
	assert.Contains(t, out.String(), "installed")
	assert.Len(t, p.seen, 1)
}

func TestBaselineProblemsAreWarnings(t *testing.T) {
	host := systemtest.New()
	p := &scriptedPresenter{confirmOK: true}
	var out bytes.Buffer
	loader := fakeLoader{err: locator.ErrNotFound}
	c := New(host, p, Options{
		ActionsDir:     t.TempDir(),
		Catalog:        catalog.DefaultOptions(),
		Policy:         deps.PolicyAlways,
		Prerequisites:  []string{"curl"},
		CoreCapability: "lib/core.yaml",
	}, WithOutput(&out), WithResolver(deps.New(host)), WithLoader(loader))

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), "capability not found")
	assert.Contains(t, out.String(), "no package manager backend found")
	assert.Len(t, p.seen, 1, "the menu still renders")
}

func TestWatcherIsClosedOnExit(t *testing.T) {
	dir := t.TempDir()
	writeAction(t, dir, "setup_git.sh", "#!/bin/bash\n")
	p := &scriptedPresenter{}
	var out bytes.Buffer
	c := New(systemtest.New(), p, Options{ActionsDir: dir, Catalog: catalog.DefaultOptions(), Watch: true}, WithOutput(&out))

	require.NoError(t, c.Run(context.Background()))
	assert.Nil(t, c.watcher)
	assert.Len(t, c.Actions(), 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "rendering", StateRendering.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "state(9)", State(9).String())
}
