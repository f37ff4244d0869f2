// Package system is the orchestrator's only door to the host: resolving
// binaries on PATH and running blocking subprocesses.
package system

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// Command describes one blocking subprocess invocation. Nil streams inherit
// the orchestrator's own stdin/stdout/stderr so interactive prompts work.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Host abstracts the operations the orchestrator performs against the machine.
type Host interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, cmd Command) error
	Geteuid() int
}

// OS is the real host.
type OS struct{}

// LookPath resolves name on the executable search path.
func (OS) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Geteuid reports the effective user id of the orchestrator.
func (OS) Geteuid() int {
	return os.Geteuid()
}

// Run executes cmd and waits for it to exit. While it waits, interrupts
// delivered through NotifyContext belong to the child.
func (OS) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	c.Stdout = cmd.Stdout
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	c.Stderr = cmd.Stderr
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	foreground.Add(1)
	defer foreground.Add(-1)
	return c.Run()
}

// Exists reports whether name resolves on the host's PATH.
func Exists(host Host, name string) bool {
	if host == nil || name == "" {
		return false
	}
	_, err := host.LookPath(name)
	return err == nil
}

// ExitError reports a subprocess that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// ExitCode extracts the exit status from err. It returns 0 for nil, the real
// status for exited processes and -1 when the process never ran.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var fake *ExitError
	if errors.As(err, &fake) {
		return fake.Code
	}
	return -1
}
