package signal

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestWatchCancelsOnFirstSignal(t *testing.T) {
	forced := make(chan struct{}, 1)
	ctx, stop := watch(context.Background(), func() { forced <- struct{}{} }, syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after signal")
	}
	select {
	case <-forced:
		t.Fatal("first signal must not force exit")
	default:
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	select {
	case <-forced:
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force exit")
	}
}

func TestStopReleasesWatcher(t *testing.T) {
	ctx, stop := watch(context.Background(), func() { t.Error("unexpected force") }, syscall.SIGUSR2)
	stop()
	stop()

	if ctx.Err() == nil {
		t.Error("expected cancelled context after stop")
	}
}
