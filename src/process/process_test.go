package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExec(t *testing.T) {
	out, _, err := New().Exec(context.Background(), "", nil, 10*time.Second, false, []string{"true"})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(out))
}

func TestExecFailure(t *testing.T) {
	out, _, err := New().Exec(context.Background(), "", nil, 10*time.Second, false, []string{"false"})
	assert.Error(t, err)
	assert.Equal(t, 0, len(out))
}

func TestExecDeadline(t *testing.T) {
	out, _, err := New().Exec(context.Background(), "", nil, 1*time.Nanosecond, false, []string{"sleep", "10"})
	assert.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, 0, len(out))
}

func TestExecCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, _, err := New().Exec(ctx, "", nil, 0, false, []string{"sleep", "10"})
	assert.Equal(t, context.Canceled, err)
	assert.True(t, time.Since(start) < 5*time.Second)
}

func TestExecCancelledWhileWriting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// Trapping TERM keeps it writing until it's killed outright.
	out, combined, err := New().Exec(ctx, "", nil, 0, false, []string{"sh", "-c", "trap '' TERM; while :; do echo building; done"})
	assert.Equal(t, context.DeadlineExceeded, err)
	snapshot := string(out)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, snapshot, string(out))
	assert.Contains(t, string(combined), "building\n")
}

func TestExecOutput(t *testing.T) {
	out, combined, err := New().Exec(context.Background(), "", nil, 10*time.Second, false, []string{"sh", "-c", "echo hello; echo world 1>&2"})
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
	assert.Contains(t, string(combined), "hello\n")
	assert.Contains(t, string(combined), "world\n")
}

func TestExecEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	out, _, err := New().Exec(context.Background(), dir, []string{"REVISION=abc123"}, 0, false, []string{"sh", "-c", "echo $REVISION; pwd"})
	assert.NoError(t, err)
	assert.Contains(t, string(out), "abc123\n")
	assert.Contains(t, string(out), dir)
}

func TestKillSubprocesses(t *testing.T) {
	e := New()
	cmd := e.ExecCommand("sleep", "infinity")
	assert.Equal(t, 1, len(e.processes))
	err := cmd.Start()
	assert.NoError(t, err)
	go e.killAll()
	err = cmd.Wait()
	assert.Error(t, err)
}
