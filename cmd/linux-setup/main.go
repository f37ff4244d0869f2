// cmd/linux-setup/main.go
//
// Entry point for the installer menu. Running it without arguments opens
// the menu over the installers/ folder of the installation root; the
// subcommands expose each piece non-interactively.
//
// Flow:
// 1. Resolve the installation root and load .linux-setup/config.yaml
// 2. Derive the execution context (local checkout or one-off download)
// 3. Probe the presentation tier once
// 4. Hand everything to the menu controller or a subcommand

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/kingrea/linux-setup/internal/system"
)

func main() {
	// Interrupts cancel the context unless an action is running in the
	// foreground; that action receives Ctrl-C itself and the menu resumes.
	ctx, stop := system.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	root, cleanup := newRootCommand()
	defer cleanup()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

// exitCodeError carries an action's exit status out of the run subcommand.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("action exited with status %d", e.code)
}
