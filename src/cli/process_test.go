package cli

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunAtExitOrder(t *testing.T) {
	var calls []int
	AtExit(func() { calls = append(calls, 1) })
	AtExit(func() { calls = append(calls, 2) })
	RunAtExit()
	assert.Equal(t, []int{2, 1}, calls)
	// Handlers only run once.
	RunAtExit()
	assert.Equal(t, []int{2, 1}, calls)
}

func TestInterruptContextCancelledBySignal(t *testing.T) {
	ctx, cancel := InterruptContext(context.Background())
	defer cancel()
	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by signal")
	}
}

func TestInterruptContextCancelFunc(t *testing.T) {
	ctx, cancel := InterruptContext(context.Background())
	cancel()
	cancel()
	assert.Error(t, ctx.Err())
}
