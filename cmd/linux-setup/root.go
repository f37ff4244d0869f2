package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/linux-setup/internal/catalog"
	"github.com/kingrea/linux-setup/internal/deps"
	"github.com/kingrea/linux-setup/internal/locator"
	"github.com/kingrea/linux-setup/internal/menu"
	"github.com/kingrea/linux-setup/internal/present"
	"github.com/kingrea/linux-setup/internal/system"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// newRootCommand wires the menu and its subcommands. The environment is
// built in PersistentPreRunE so --help and --version never touch the host.
// The returned cleanup releases it.
func newRootCommand() (*cobra.Command, func()) {
	flags := &globalFlags{}
	var env *environment

	rootCmd := &cobra.Command{
		Use:   "linux-setup",
		Short: "Interactive menu for the setup_<name>.sh installers",
		Long: `linux-setup discovers installers/setup_<name>.sh actions, checks the
tools it needs itself, and shows a menu rendered with gum, whiptail/dialog or
a built-in terminal UI, whichever the host supports best.

Navigation: arrow keys to move, enter to select, / to search, q to quit.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = buildEnvironment(cmd.Context(), flags)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := menu.New(env.host, env.presenter(), menu.Options{
				ActionsDir:     env.cfg.ActionsDir(),
				Catalog:        env.catalogOptions(),
				Tool:           env.cfg.Project.Presentation.Tool,
				Policy:         env.policy,
				Prerequisites:  env.cfg.Project.Dependencies.Prerequisites,
				CoreCapability: env.cfg.CoreCapability(),
				Watch:          true,
				Styled:         env.interactive(),
			},
				menu.WithResolver(env.resolver),
				menu.WithLoader(env.locator),
				menu.WithLogbook(env.log),
				menu.WithOutput(env.stdout),
			)
			return c.Run(cmd.Context())
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.root, "root", "", "installation root (default: $LINUX_SETUP_ROOT or the nearest folder with installers/)")
	pf.StringVar(&flags.config, "config", "", "config file (default: <root>/.linux-setup/config.yaml)")
	pf.StringVar(&flags.tier, "tier", "", "presentation tier: auto, rich, dialog or plain")
	pf.StringVar(&flags.mode, "mode", "", "where shared capabilities come from: auto, local or remote")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "install missing prerequisites without asking")
	pf.BoolVar(&flags.noInstall, "no-install", false, "never install prerequisites, only report them")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "echo debug log entries to stderr")

	rootCmd.AddCommand(
		newListCommand(&env),
		newRunCommand(&env),
		newDepsCommand(&env),
		newFetchCommand(&env),
		newNewCommand(&env),
		newTierCommand(&env),
	)
	return rootCmd, func() { env.close() }
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

func newListCommand(env **environment) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the discovered actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := *env
			actions, err := catalog.Discover(e.cfg.ActionsDir(), e.catalogOptions())
			if err != nil {
				return err
			}
			shown := catalog.Filter(actions, search)
			for _, action := range shown {
				fmt.Fprintln(cmd.OutOrStdout(), present.ActionEntry(action).Line())
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Items: %d/%d\n", len(shown), len(actions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only show actions whose name or description contains this text")
	return cmd
}

func newRunCommand(env **environment) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name> [-- args...]",
		Short: "Run one action without the menu, forwarding args verbatim",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := *env
			opts := e.catalogOptions()
			actions, err := catalog.Discover(e.cfg.ActionsDir(), opts)
			if err != nil {
				return err
			}
			action, ok := catalog.Lookup(actions, args[0])
			if !ok {
				if action, ok, err = catalog.LookupReserved(e.cfg.ActionsDir(), opts, args[0]); err != nil {
					return err
				}
			}
			if !ok {
				return fmt.Errorf("no action named %q in %s", args[0], e.cfg.ActionsDir())
			}
			e.log.Info("run %s %s", action.Name, strings.Join(args[1:], " "))
			fmt.Fprintf(cmd.ErrOrStderr(), "Running: %s\n", action.File)
			if err := e.host.Run(cmd.Context(), action.Ref.Command(args[1:]...)); err != nil {
				code := system.ExitCode(err)
				e.log.Error("%s failed with exit code %d", action.Name, code)
				if code < 0 {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Installation failed with exit code %d\n", code)
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
}

func newDepsCommand(env **environment) *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "deps [names...]",
		Short: "Check (or install) prerequisites; defaults to the baseline set",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := *env
			ctx := cmd.Context()
			names := args
			if len(names) == 0 {
				names = e.baseline(ctx)
			}
			policy := deps.PolicyNever
			if install {
				policy = e.policy
			}
			prompt := present.NewLine(e.stdin, e.stderr)
			report, err := e.resolver.Ensure(ctx, names, policy, func(ctx context.Context, missing []string, b deps.Backend) (bool, error) {
				return prompt.Confirm(ctx, fmt.Sprintf("Install %s with %s?", strings.Join(missing, ", "), b.ID))
			})
			if renderErr := present.RenderMarkdown(cmd.OutOrStdout(), report.Markdown(), e.interactive(), 0); renderErr != nil {
				return renderErr
			}
			if err != nil {
				return err
			}
			if failed := report.Err(); failed != nil {
				return failed
			}
			switch report.Outcome() {
			case deps.OutcomeSatisfied, deps.OutcomeInstalled:
				return nil
			default:
				return fmt.Errorf("prerequisites not satisfied: %s", strings.Join(append(report.Missing, report.Declined...), ", "))
			}
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "install what is missing (honours --yes and the configured policy)")
	return cmd
}

func newFetchCommand(env **environment) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <capability>",
		Short: "Print a shared capability as the locator resolves it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := (*env).locator.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newNewCommand(env **environment) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create setup_<name>.sh from the action template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := *env
			templateName := e.cfg.TemplateCapability()
			tmpl, err := e.locator.Resolve(cmd.Context(), templateName)
			if err != nil {
				var fetchErr *locator.FetchError
				if errors.Is(err, locator.ErrNotFound) || (errors.As(err, &fetchErr) && fetchErr.Status == 404) {
					return fmt.Errorf("%w: %s", catalog.ErrMissingTemplate, templateName)
				}
				return err
			}
			action, err := catalog.Scaffold(tmpl, e.cfg.ActionsDir(), e.catalogOptions(), args[0], description)
			if err != nil {
				return err
			}
			e.log.Info("created action %s (%s)", action.Name, action.Ref.Path)
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", action.Ref.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "value for the # Description: header")
	return cmd
}

func newTierCommand(env **environment) *cobra.Command {
	return &cobra.Command{
		Use:   "tier",
		Short: "Print the presentation tier this host supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel := (*env).tier
			if sel.Binary != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", sel.Tier, sel.Binary)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), sel.Tier)
			return nil
		},
	}
}
