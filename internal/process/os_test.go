//go:build unix

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/clibridge/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func shell(script string, args ...string) Request {
	return Request{
		Executable: "/bin/sh",
		Args:       append([]string{"-c", script, "sh"}, args...),
		Timeout:    10 * time.Second,
	}
}

func run(t *testing.T, ex Executor, ctx context.Context, req Request) (Outcome, error) {
	t.Helper()
	h, err := Launch(ctx, ex, req)
	require.NoError(t, err)
	return ex.Wait(ctx, h)
}

func TestOSExecutorExitCodeAndStreams(t *testing.T) {
	ex := NewOSExecutor()
	out, err := run(t, ex, context.Background(), shell("echo out; echo err >&2; exit 3"))
	require.NoError(t, err)

	assert.Equal(t, Exited, out.Kind)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.Greater(t, out.Duration, time.Duration(0))
}

func TestOSExecutorArgsAreNotInterpreted(t *testing.T) {
	ex := NewOSExecutor()
	args := []string{"Buy milk", `$(touch /tmp/x)`, "a;b", `"q"`, ""}
	out, err := run(t, ex, context.Background(), shell(`for a in "$@"; do printf '[%s]\n' "$a"; done`, args...))
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "[Buy milk]\n[$(touch /tmp/x)]\n[a;b]\n[\"q\"]\n[]\n", out.Stdout)
}

func TestOSExecutorEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	req := shell(`echo "$CLIBRIDGE_TEST"; pwd -P`)
	req.Dir = dir
	req.Env = map[string]string{"CLIBRIDGE_TEST": "overlay"}

	out, err := run(t, NewOSExecutor(), context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "overlay\n"+want+"\n", out.Stdout)
}

func TestOSExecutorDrainsLargeOutput(t *testing.T) {
	out, err := run(t, NewOSExecutor(), context.Background(), shell("head -c 1048576 /dev/zero; head -c 65536 /dev/zero >&2"))
	require.NoError(t, err)
	assert.Len(t, out.Stdout, 1<<20)
	assert.Len(t, out.Stderr, 1<<16)
}

func TestOSExecutorCancel(t *testing.T) {
	ex := NewOSExecutor(WithKillGrace(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := ex.Start(ctx, shell("sleep 10"))
	require.NoError(t, err)

	time.AfterFunc(100*time.Millisecond, cancel)

	begin := time.Now()
	out, err := ex.Wait(ctx, h)
	require.NoError(t, err)

	assert.Equal(t, Cancelled, out.Kind)
	assert.Equal(t, -1, out.ExitCode)
	assert.Less(t, time.Since(begin), 5*time.Second)
	assertGone(t, h.PID())
}

func TestOSExecutorTimeout(t *testing.T) {
	ex := NewOSExecutor(WithKillGrace(time.Second))
	req := shell("sleep 10")
	req.Timeout = 100 * time.Millisecond

	h, err := ex.Start(context.Background(), req)
	require.NoError(t, err)
	out, err := ex.Wait(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, TimedOut, out.Kind)
	assert.Equal(t, -1, out.ExitCode)
	assertGone(t, h.PID())
}

func TestOSExecutorKillsAfterGrace(t *testing.T) {
	ex := NewOSExecutor(WithKillGrace(100*time.Millisecond), WithDrainDelay(200*time.Millisecond))
	req := shell(`trap "" TERM; sleep 10`)
	req.Timeout = 100 * time.Millisecond

	begin := time.Now()
	out, err := run(t, ex, context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, TimedOut, out.Kind)
	// timeout + grace, with room for scheduling
	assert.Less(t, time.Since(begin), time.Second)
}

// killGroupOnCleanup removes anything left in the process group of h.
func killGroupOnCleanup(t *testing.T, h Handle) {
	t.Helper()
	pid := h.PID()
	t.Cleanup(func() { _ = syscall.Kill(-pid, syscall.SIGKILL) })
}

// killPIDsOnCleanup kills every pid printed on its own line in stdout.
func killPIDsOnCleanup(t *testing.T, stdout string) {
	t.Helper()
	t.Cleanup(func() {
		for _, line := range strings.Fields(stdout) {
			if pid, err := strconv.Atoi(line); err == nil && pid > 1 {
				_ = syscall.Kill(pid, syscall.SIGKILL)
			}
		}
	})
}

func requireSetsid(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
}

func TestOSExecutorExitWinsWhileChildHoldsStdout(t *testing.T) {
	ex := NewOSExecutor(WithDrainDelay(200 * time.Millisecond))
	req := shell("sleep 5 & echo hi; exit 0")
	req.Timeout = 3 * time.Second

	begin := time.Now()
	h, err := ex.Start(context.Background(), req)
	require.NoError(t, err)
	killGroupOnCleanup(t, h)

	out, err := ex.Wait(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, Exited, out.Kind)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hi\n", out.Stdout)
	assert.Less(t, time.Since(begin), 2*time.Second)
	assertGone(t, h.PID())
}

func TestOSExecutorExitWinsWhileDetachedChildHoldsStdout(t *testing.T) {
	requireSetsid(t)
	ex := NewOSExecutor(WithKillGrace(100*time.Millisecond), WithDrainDelay(200*time.Millisecond))
	req := shell("setsid sleep 4 & echo $!; exit 0")
	req.Timeout = 500 * time.Millisecond

	begin := time.Now()
	out, err := run(t, ex, context.Background(), req)
	require.NoError(t, err)
	killPIDsOnCleanup(t, out.Stdout)

	assert.Equal(t, Exited, out.Kind)
	assert.Equal(t, 0, out.ExitCode)
	assert.NotEmpty(t, strings.TrimSpace(out.Stdout))
	assert.Less(t, time.Since(begin), 1500*time.Millisecond)
}

func TestOSExecutorTimeoutNotExtendedByDetachedChild(t *testing.T) {
	requireSetsid(t)
	ex := NewOSExecutor(WithKillGrace(100*time.Millisecond), WithDrainDelay(200*time.Millisecond))
	req := shell("setsid sleep 4 & echo $!; sleep 10")
	req.Timeout = 300 * time.Millisecond

	begin := time.Now()
	h, err := ex.Start(context.Background(), req)
	require.NoError(t, err)
	out, err := ex.Wait(context.Background(), h)
	require.NoError(t, err)
	killPIDsOnCleanup(t, out.Stdout)

	assert.Equal(t, TimedOut, out.Kind)
	assert.Equal(t, -1, out.ExitCode)
	// timeout + grace + drain delay, with room for scheduling
	assert.Less(t, time.Since(begin), 1500*time.Millisecond)
	assertGone(t, h.PID())
}

func TestOSExecutorKillFailureStillReleases(t *testing.T) {
	orig := signalGroup
	signalGroup = func(*exec.Cmd, os.Signal) error { return syscall.EPERM }
	t.Cleanup(func() { signalGroup = orig })

	ex := NewOSExecutor(WithKillGrace(100*time.Millisecond), WithDrainDelay(200*time.Millisecond))
	req := shell("sleep 10")
	req.Timeout = 100 * time.Millisecond

	begin := time.Now()
	h, err := ex.Start(context.Background(), req)
	require.NoError(t, err)
	killGroupOnCleanup(t, h)

	out, err := ex.Wait(context.Background(), h)
	var startErr *StartError
	require.True(t, errors.As(err, &startErr), "got %v", err)
	assert.Equal(t, "kill", startErr.Op)
	assert.ErrorIs(t, err, syscall.EPERM)

	assert.Equal(t, TimedOut, out.Kind)
	assert.Equal(t, -1, out.ExitCode)
	assert.Less(t, time.Since(begin), 1500*time.Millisecond)
	// The leader was killed directly and reaped before Wait returned.
	assertGone(t, h.PID())
}

func TestOSExecutorExitedWinsOverLateCancel(t *testing.T) {
	ex := NewOSExecutor()
	h, err := ex.Start(context.Background(), shell("exit 7"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.(*osHandle).exited() }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := ex.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, Exited, out.Kind)
	assert.Equal(t, 7, out.ExitCode)
}

func TestOSExecutorStartErrors(t *testing.T) {
	ex := NewOSExecutor()

	_, err := ex.Start(context.Background(), Request{Executable: "clibridge-no-such-program"})
	var startErr *StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "start", startErr.Op)
	assert.True(t, errors.Is(err, exec.ErrNotFound))

	script := filepath.Join(t.TempDir(), "noexec.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o644))
	_, err = ex.Start(context.Background(), Request{Executable: script})
	require.True(t, errors.As(err, &startErr))
	assert.True(t, errors.Is(err, os.ErrPermission))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ex.Start(ctx, shell("true"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOSExecutorWaitTwice(t *testing.T) {
	ex := NewOSExecutor()
	h, err := ex.Start(context.Background(), shell("true"))
	require.NoError(t, err)

	_, err = ex.Wait(context.Background(), h)
	require.NoError(t, err)
	_, err = ex.Wait(context.Background(), h)
	assert.ErrorIs(t, err, ErrAlreadyWaited)
}

func TestOSExecutorForeignHandle(t *testing.T) {
	_, err := NewOSExecutor().Wait(context.Background(), &fakeHandle{})
	assert.ErrorIs(t, err, ErrNoHandle)
}

func TestSignalGroupAfterExitIsNoop(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	setProcessGroup(cmd)
	require.NoError(t, cmd.Run())

	assert.NoError(t, signalGroup(cmd, terminateSignal))
	assert.NoError(t, signalGroup(cmd, os.Kill))
}

func TestExitStatusBySignal(t *testing.T) {
	out, err := run(t, NewOSExecutor(), context.Background(), shell("kill -TERM $$"))
	require.NoError(t, err)
	assert.Equal(t, Exited, out.Kind)
	assert.Equal(t, 128+int(syscall.SIGTERM), out.ExitCode)
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2", "PATH=/bin"}, map[string]string{"B": "x", "C": "3"})
	assert.Equal(t, []string{"A=1", "PATH=/bin", "B=x", "C=3"}, got)
}

// assertGone checks that pid no longer names a live process.
func assertGone(t *testing.T, pid int) {
	t.Helper()
	err := syscall.Kill(pid, 0)
	assert.ErrorIs(t, err, syscall.ESRCH)
}
