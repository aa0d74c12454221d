// Package signal turns interrupts into run cancellation.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	clog "github.com/xrsl/tailor/pkg/log"
)

// ForceExitCode is the process exit code after a second interrupt.
const ForceExitCode = 130

// WithInterrupt returns a context cancelled by the first SIGINT or SIGTERM.
// The run in progress still checkpoints its current stage before stopping.
// A second signal exits the process at once.
func WithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return watch(parent, func() { os.Exit(ForceExitCode) }, os.Interrupt, syscall.SIGTERM)
}

// NotifyContext is WithInterrupt on a background context.
func NotifyContext() (context.Context, context.CancelFunc) {
	return WithInterrupt(context.Background())
}

func watch(parent context.Context, force func(), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, sigs...)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			clog.Warn("interrupted, finishing current stage (interrupt again to abort)", "signal", sig)
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigCh:
			clog.Error("aborted", "signal", sig)
			force()
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}
}
