package locator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/linux-setup/internal/config"
)

func remoteContext(owner, repo, branch string, explicit bool) ExecutionContext {
	return ExecutionContext{
		Mode: ModeRemote,
		Coordinate: &Coordinate{
			Owner:          owner,
			Repo:           repo,
			Branch:         branch,
			BranchExplicit: explicit,
		},
	}
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDetectMode(t *testing.T) {
	cases := map[string]Mode{
		"":                                   ModeLocal,
		"/home/me/linux-setup/linux-setup":   ModeLocal,
		"/usr/local/bin/linux-setup":         ModeLocal,
		"/tmp/linux-setup":                   ModeRemote,
		"/tmp/tmp.abc123/linux-setup":        ModeRemote,
		"/var/tmp/x/linux-setup":             ModeRemote,
		"/dev/fd/63":                         ModeRemote,
		"/tmpfoo/linux-setup":                ModeLocal,
		filepath.Join(os.TempDir(), "setup"): ModeRemote,
	}
	for exe, want := range cases {
		assert.Equal(t, want, DetectMode(exe), exe)
	}
}

func TestNewContextEnvironmentOverridesConfig(t *testing.T) {
	remote := ModeRemote
	ec, err := NewContext(context.Background(), ContextOptions{
		ForceMode:  &remote,
		Repository: config.RepositoryConfig{Owner: "cfg-owner", Name: "cfg-repo"},
		Getenv:     envMap(map[string]string{EnvOwner: "acme", EnvRepo: "tools", EnvBranch: "dev"}),
	})
	require.NoError(t, err)
	require.NotNil(t, ec.Coordinate)
	assert.Equal(t, Coordinate{Owner: "acme", Repo: "tools", Branch: "dev", BranchExplicit: true}, *ec.Coordinate)
}

func TestNewContextPromptsForMissingCoordinate(t *testing.T) {
	remote := ModeRemote
	var questions []string
	answers := []string{"  acme ", "tools"}
	ec, err := NewContext(context.Background(), ContextOptions{
		ForceMode: &remote,
		Getenv:    envMap(nil),
		Prompt: func(_ context.Context, question string) (string, error) {
			questions = append(questions, question)
			answer := answers[0]
			answers = answers[1:]
			return answer, nil
		},
	})
	require.NoError(t, err)
	assert.Len(t, questions, 2)
	assert.Equal(t, "acme", ec.Coordinate.Owner)
	assert.Equal(t, "tools", ec.Coordinate.Repo)
	assert.Equal(t, "main", ec.Coordinate.Branch)
	assert.False(t, ec.Coordinate.BranchExplicit)
}

func TestNewContextEmptyPromptIsConfigError(t *testing.T) {
	remote := ModeRemote
	_, err := NewContext(context.Background(), ContextOptions{
		ForceMode: &remote,
		Getenv:    envMap(nil),
		Prompt:    func(context.Context, string) (string, error) { return "   ", nil },
	})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, EnvOwner, cfgErr.Field)
}

func TestNewContextLocalNeverPrompts(t *testing.T) {
	local := ModeLocal
	ec, err := NewContext(context.Background(), ContextOptions{
		ForceMode: &local,
		Root:      "/srv/setup",
		Getenv:    envMap(nil),
		Prompt: func(context.Context, string) (string, error) {
			t.Fatal("prompt called in local mode")
			return "", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, ec.Mode)
	assert.Nil(t, ec.Coordinate)
}

func TestNewRemoteRequiresCompleteCoordinate(t *testing.T) {
	_, err := New(ExecutionContext{Mode: ModeRemote}, "https://raw.example.com")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = New(remoteContext("acme", "tools", "main", true), "ftp://example.com")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "repository.raw_base_url", cfgErr.Field)
}

func TestResolveLocalReadsUnderRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "core.yaml"), []byte("requires: [git]\n"), 0o644))

	loc, err := New(ExecutionContext{Mode: ModeLocal, Root: root}, "")
	require.NoError(t, err)

	data, err := loc.Resolve(context.Background(), "lib/core.yaml")
	require.NoError(t, err)
	assert.Equal(t, "requires: [git]\n", string(data))

	_, err = loc.Resolve(context.Background(), "lib/absent.yaml")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), filepath.Join(root, "lib", "absent.yaml"))
}

func TestResolveRejectsEscapingNames(t *testing.T) {
	loc, err := New(ExecutionContext{Mode: ModeLocal, Root: t.TempDir()}, "")
	require.NoError(t, err)
	for _, name := range []string{"", "../etc/passwd", "lib/../../x", "/"} {
		_, err := loc.Resolve(context.Background(), name)
		assert.Error(t, err, name)
		assert.NotErrorIs(t, err, ErrNotFound, name)
	}
}

func TestResolveRemoteExplicitBranchSkipsProbe(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		if r.URL.Path == "/acme/tools/dev/lib/core.yaml" {
			_, _ = w.Write([]byte("name: core\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	loc, err := New(remoteContext("acme", "tools", "dev", true), srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	data, err := loc.Resolve(context.Background(), "lib/core.yaml")
	require.NoError(t, err)
	assert.Equal(t, "name: core\n", string(data))
	assert.Zero(t, heads.Load())
}

func TestResolveRemoteFailureNamesURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	loc, err := New(remoteContext("acme", "tools", "dev", true), srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = loc.Resolve(context.Background(), "lib/missing.yaml")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
	assert.Equal(t, srv.URL+"/acme/tools/dev/lib/missing.yaml", fetchErr.URL)
	assert.Contains(t, err.Error(), fetchErr.URL)
}

func TestResolveRemoteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	loc, err := New(remoteContext("acme", "tools", "dev", true), base)
	require.NoError(t, err)

	_, err = loc.Resolve(context.Background(), "lib/core.yaml")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
	assert.Error(t, fetchErr.Err)
}

// redirectServer answers the branch probe on main with a redirect to the
// named branch and serves any file under that branch. heads counts probes of
// the assumed branch only; the client's follow-up HEAD is not a new probe.
func redirectServer(t *testing.T, branch string, heads *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/acme/tools/main/installers/template.tpl":
			if r.Method == http.MethodHead {
				heads.Add(1)
			}
			http.Redirect(w, r, "/acme/tools/"+branch+"/installers/template.tpl", http.StatusFound)
		case strings.HasPrefix(r.URL.Path, "/acme/tools/"+branch+"/"):
			_, _ = w.Write([]byte("served from " + branch))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBranchInferenceFollowsRedirect(t *testing.T) {
	var heads atomic.Int32
	srv := redirectServer(t, "feature-x", &heads)

	loc, err := New(remoteContext("acme", "tools", "main", false), srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	data, err := loc.Resolve(context.Background(), "lib/core.yaml")
	require.NoError(t, err)
	assert.Equal(t, "served from feature-x", string(data))
	assert.Equal(t, "feature-x", loc.Branch(context.Background()))

	_, err = loc.Resolve(context.Background(), "installers/setup_git.sh")
	require.NoError(t, err)
	assert.Equal(t, int32(1), heads.Load(), "inference runs once per process")
}

func TestBranchInferenceKeepsSlashBranch(t *testing.T) {
	var heads atomic.Int32
	srv := redirectServer(t, "feature/login", &heads)

	loc, err := New(remoteContext("acme", "tools", "main", false), srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, "feature/login", loc.Branch(context.Background()))
}

func TestBranchInferenceProbeFailureKeepsAssumedBranch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	loc, err := New(remoteContext("acme", "tools", "main", false), srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	data, err := loc.Resolve(context.Background(), "lib/core.yaml")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, "main", loc.Branch(context.Background()))
}

func TestBranchInferenceRejectsReferenceNameAsBranch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/acme/tools/main/installers/template.tpl" {
			http.Redirect(w, r, "/acme/tools/template.tpl", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	loc, err := New(remoteContext("acme", "tools", "main", false), srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, "main", loc.Branch(context.Background()))
}

func TestBranchFromPath(t *testing.T) {
	cases := []struct {
		base, path string
		want       string
		ok         bool
	}{
		{"", "/acme/tools/dev/installers/template.tpl", "dev", true},
		{"/raw", "/raw/acme/tools/release/v2/installers/template.tpl", "release/v2", true},
		{"", "/acme/tools/dev/other/file", "dev", true},
		{"", "/acme/tools/template.tpl", "", false},
		{"", "/acme/tools", "", false},
		{"", "/acme/tools//installers/template.tpl", "", false},
	}
	for _, tc := range cases {
		got, ok := BranchFromPath(tc.base, tc.path, DefaultReference)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}
}

func TestRemoteScenarioUsesEnvironmentCoordinate(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte("requires: [curl]\n"))
	}))
	defer srv.Close()

	ec, err := NewContext(context.Background(), ContextOptions{
		Executable: "/tmp/tmp.XYZ/linux-setup",
		Getenv:     envMap(map[string]string{EnvOwner: "acme", EnvRepo: "tools", EnvBranch: "dev"}),
	})
	require.NoError(t, err)
	require.Equal(t, ModeRemote, ec.Mode)

	loc, err := New(ec, srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	capability, err := loc.Load(context.Background(), "lib/core.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl"}, capability.Requires)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"GET /acme/tools/dev/lib/core.yaml"}, paths)
}

func TestRemoteScenarioInfersBranchFromEnvironmentCoordinate(t *testing.T) {
	var (
		mu   sync.Mutex
		gets []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/acme/tools/main/installers/template.tpl" {
			http.Redirect(w, r, "/acme/tools/dev/installers/template.tpl", http.StatusFound)
			return
		}
		if r.Method == http.MethodGet {
			mu.Lock()
			gets = append(gets, r.URL.Path)
			mu.Unlock()
		}
		_, _ = w.Write([]byte("requires: [curl]\n"))
	}))
	defer srv.Close()

	ec, err := NewContext(context.Background(), ContextOptions{
		Executable: "/tmp/tmp.XYZ/linux-setup",
		Getenv:     envMap(map[string]string{EnvOwner: "acme", EnvRepo: "tools"}),
	})
	require.NoError(t, err)
	require.Equal(t, ModeRemote, ec.Mode)
	require.NotNil(t, ec.Coordinate)
	assert.Equal(t, "main", ec.Coordinate.Branch)
	assert.False(t, ec.Coordinate.BranchExplicit)

	loc, err := New(ec, srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	capability, err := loc.Load(context.Background(), "lib/core.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl"}, capability.Requires)
	_, err = loc.Resolve(context.Background(), "installers/setup_git.sh")
	require.NoError(t, err)
	assert.Equal(t, "dev", loc.Branch(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/acme/tools/dev/lib/core.yaml",
		"/acme/tools/dev/installers/setup_git.sh",
	}, gets)
}
