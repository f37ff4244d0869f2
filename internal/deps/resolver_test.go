package deps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kingrea/linux-setup/internal/system"
	"github.com/kingrea/linux-setup/internal/system/systemtest"
)

// installingHost fakes apt-get: installing a package puts a binary of the
// same name on PATH unless the package is listed as unknown.
func installingHost(unknown ...string) *systemtest.Host {
	host := systemtest.New("apt-get")
	bad := map[string]bool{}
	for _, name := range unknown {
		bad[name] = true
	}
	host.Handle("apt-get", func(cmd system.Command) error {
		pkg := cmd.Args[len(cmd.Args)-1]
		if bad[pkg] {
			return &system.ExitError{Code: 100}
		}
		host.Install(pkg)
		return nil
	})
	return host
}

func TestEnsureNeverPolicyDoesNotTouchHost(t *testing.T) {
	for _, present := range []bool{true, false} {
		host := installingHost()
		if present {
			host.Install("x")
		}
		r := New(host)
		report, err := r.Ensure(context.Background(), []string{"x"}, PolicyNever, func(context.Context, []string, Backend) (bool, error) {
			t.Fatalf("consent must not be asked")
			return false, nil
		})
		require.NoError(t, err)
		assert.Empty(t, host.Calls(), "present=%v", present)
		if present {
			assert.Equal(t, OutcomeSatisfied, report.Outcome())
		} else {
			assert.Equal(t, []string{"x"}, report.Missing)
			assert.Equal(t, OutcomeMissing, report.Outcome())
		}
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	host := installingHost()
	r := New(host)

	first, err := r.Ensure(context.Background(), []string{"x"}, PolicyAlways, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, first.Installed)
	require.Len(t, host.Calls(), 1)

	second, err := r.Ensure(context.Background(), []string{"x"}, PolicyAlways, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, second.Present)
	assert.Empty(t, second.Installed)
	assert.Len(t, host.Calls(), 1, "second call must not reinstall")
}

func TestEnsurePartialFailureContinues(t *testing.T) {
	host := installingHost("ghost")
	r := New(host)

	report, err := r.Ensure(context.Background(), []string{"wget", "curl", "ghost"}, PolicyAlways, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"curl", "wget"}, report.Resolved())
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "ghost", report.Failed[0].Name)
	assert.Equal(t, "apt-get", report.Failed[0].Backend)
	assert.Equal(t, OutcomePartial, report.Outcome())
	assert.ErrorContains(t, report.Err(), "ghost via apt-get")
	assert.Equal(t, []string{
		"apt-get install -y curl",
		"apt-get install -y ghost",
		"apt-get install -y wget",
	}, host.CallLines())
}

func TestEnsureWithoutBackendFailsFast(t *testing.T) {
	host := systemtest.New()
	r := New(host)
	report, err := r.Ensure(context.Background(), []string{"curl"}, PolicyAlways, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoBackend))
	assert.Contains(t, err.Error(), "curl")
	assert.Equal(t, []string{"curl"}, report.Missing)
	assert.Empty(t, host.Calls())
}

func TestEnsureWithoutBackendIsFineWhenNothingMissing(t *testing.T) {
	host := systemtest.New("curl")
	report, err := New(host).Ensure(context.Background(), []string{"curl"}, PolicyAlways, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSatisfied, report.Outcome())
}

func TestEnsureAsksOnceForTheWholeBatch(t *testing.T) {
	host := installingHost()
	host.Install("git")
	r := New(host)
	asked := 0
	var askedFor []string
	consent := func(_ context.Context, missing []string, backend Backend) (bool, error) {
		asked++
		askedFor = missing
		assert.Equal(t, "apt-get", backend.ID)
		return true, nil
	}
	report, err := r.Ensure(context.Background(), []string{"jq", "git", "curl"}, PolicyAsk, consent)
	require.NoError(t, err)
	assert.Equal(t, 1, asked)
	assert.Equal(t, []string{"curl", "jq"}, askedFor)
	assert.Equal(t, []string{"curl", "jq"}, report.Installed)
}

func TestEnsureDeclinedConsentInstallsNothing(t *testing.T) {
	host := installingHost()
	r := New(host)
	report, err := r.Ensure(context.Background(), []string{"jq"}, PolicyAsk, func(context.Context, []string, Backend) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, report.Outcome())
	assert.Empty(t, host.Calls())
}

func TestEnsureConsentErrorAborts(t *testing.T) {
	host := installingHost()
	cancelled := errors.New("cancelled")
	_, err := New(host).Ensure(context.Background(), []string{"jq"}, PolicyAsk, func(context.Context, []string, Backend) (bool, error) {
		return false, cancelled
	})
	assert.ErrorIs(t, err, cancelled)
	assert.Empty(t, host.Calls())
}

func TestEnsureElevatesWithSudo(t *testing.T) {
	host := installingHost()
	host.EUID = 1000
	host.Install("sudo")
	host.Handle("sudo", func(cmd system.Command) error {
		host.Install(cmd.Args[len(cmd.Args)-1])
		return nil
	})
	report, err := New(host).Ensure(context.Background(), []string{"jq"}, PolicyAlways, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"jq"}, report.Installed)
	assert.Equal(t, []string{"sudo apt-get install -y jq"}, host.CallLines())
}

func TestEnsureUsesPackageAliases(t *testing.T) {
	host := systemtest.New("apt-get")
	host.Handle("apt-get", func(cmd system.Command) error {
		if cmd.Args[len(cmd.Args)-1] == "fd-find" {
			host.Install("fd")
		}
		return nil
	})
	r := New(host, WithPackages(map[string]map[string]string{"fd": {"apt-get": "fd-find"}}))
	report, err := r.Ensure(context.Background(), []string{"fd"}, PolicyAlways, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fd"}, report.Installed)
}

func TestEnsureFailsWhenPackageDoesNotProvideCommand(t *testing.T) {
	host := systemtest.New("apt-get")
	report, err := New(host).Ensure(context.Background(), []string{"bat"}, PolicyAlways, nil)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Err.Error(), "still not on PATH")
}

func TestSelectBackendPrefersHigherPriority(t *testing.T) {
	a := Backend{ID: "a", Binary: "bin-a"}
	b := Backend{ID: "b", Binary: "bin-b"}
	c := Backend{ID: "c", Binary: "bin-c"}
	r := New(systemtest.New("bin-b", "bin-a"), WithBackends([]Backend{a, b, c}))
	got, ok := r.SelectBackend()
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestSelectBackendPriorityProperty(t *testing.T) {
	ids := []string{"apt-get", "apt", "dnf", "yum", "pacman", "zypper", "apk", "brew"}
	rapid.Check(t, func(rt *rapid.T) {
		present := rapid.SliceOfDistinct(rapid.SampledFrom(ids), rapid.ID[string]).Draw(rt, "present")
		r := New(systemtest.New(present...))
		got, ok := r.SelectBackend()
		if len(present) == 0 {
			if ok {
				rt.Fatalf("expected no backend, got %s", got.ID)
			}
			return
		}
		has := map[string]bool{}
		for _, id := range present {
			has[id] = true
		}
		for _, id := range ids {
			if has[id] {
				if got.ID != id {
					rt.Fatalf("present %v: got %s want %s", present, got.ID, id)
				}
				return
			}
		}
	})
}

func TestBackendsByID(t *testing.T) {
	list, err := BackendsByID([]string{"dnf", "APT-GET", "dnf"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dnf", list[0].ID)
	assert.Equal(t, "apt-get", list[1].ID)

	_, err = BackendsByID([]string{"portage"})
	assert.Error(t, err)
}

func TestCheckReprobesLive(t *testing.T) {
	host := systemtest.New("apt-get")
	r := New(host)
	specs := r.Check([]string{"curl"})
	require.Len(t, specs, 1)
	assert.False(t, specs[0].Present)
	require.NotNil(t, specs[0].Backend)

	host.Install("curl")
	assert.True(t, r.Check([]string{"curl"})[0].Present)
}

func TestReportMarkdown(t *testing.T) {
	report := Report{Backend: "dnf", Present: []string{"git"}, Failed: []Failure{{Name: "ghost", Backend: "dnf", Err: errors.New("no match")}}}
	md := report.Markdown()
	assert.Contains(t, md, "| git | present |")
	assert.Contains(t, md, "| ghost | failed: no match |")
	assert.Contains(t, md, "partial failure")
}
