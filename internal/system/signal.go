package system

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
)

// foreground counts children OS.Run is currently waiting for.
var foreground atomic.Int32

// NotifyContext works like signal.NotifyContext, except that an interrupt
// arriving while OS.Run waits for a child is left to that child. The child
// shares the terminal's process group, so it sees the same SIGINT and its
// exit status reports the interruption. Other signals always cancel.
func NotifyContext(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case sig := <-ch:
				if sig == os.Interrupt && foreground.Load() > 0 {
					continue
				}
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
		<-done
	}
}
