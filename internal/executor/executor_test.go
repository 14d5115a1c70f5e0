package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantz-ai/gantz/internal/registry"
)

func builtinTool(handler string) registry.Tool {
	return registry.Tool{
		Name:    "test-tool",
		Version: "1.0.0",
		Handler: registry.HandlerSpec{Builtin: handler},
	}
}

func shellTool(script string) registry.Tool {
	return registry.Tool{
		Name:    "shell-tool",
		Version: "1.0.0",
		Handler: registry.HandlerSpec{
			Command: "sh",
			Args:    []string{"-c", script},
		},
	}
}

func TestExecuteBuiltin(t *testing.T) {
	e := New(Options{})
	args := map[string]interface{}{"q": "hello"}

	result, err := e.Execute(context.Background(), builtinTool("echo"), args, time.Second)
	require.NoError(t, err)

	assert.Equal(t, args, result.Output)
	assert.Equal(t, "test-tool", result.ToolName)
	assert.Equal(t, "1.0.0", result.ToolVersion)
	assert.False(t, result.Cached)
	assert.GreaterOrEqual(t, result.DurationMS, int64(0))
}

func TestExecuteUnknownHandler(t *testing.T) {
	e := New(Options{})

	_, err := e.Execute(context.Background(), builtinTool("nope"), nil, time.Second)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindHandlerFailed, execErr.Kind)
	assert.Contains(t, execErr.Message, "nope")
}

func TestExecuteBuiltinTimeout(t *testing.T) {
	e := New(Options{})
	args := map[string]interface{}{"duration_ms": float64(5000)}

	start := time.Now()
	_, err := e.Execute(context.Background(), builtinTool("sleep_ms"), args, 50*time.Millisecond)
	elapsed := time.Since(start)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindTimeout, execErr.Kind)
	assert.Contains(t, execErr.Message, "50ms", "timeout message names the limit")
	assert.Less(t, elapsed, 2*time.Second, "timeout must not wait out the handler")
}

func TestExecuteSubprocessRoundTrip(t *testing.T) {
	e := New(Options{})
	args := map[string]interface{}{"q": "hello"}

	// cat echoes the stdin payload, so the output is the request JSON.
	result, err := e.Execute(context.Background(), shellTool("cat"), args, 5*time.Second)
	require.NoError(t, err)

	payload, ok := result.Output.(map[string]interface{})
	require.True(t, ok, "JSON stdout decodes to a map, got %T", result.Output)
	assert.Equal(t, "shell-tool", payload["tool"])
	assert.Equal(t, "1.0.0", payload["version"])
	assert.Equal(t, map[string]interface{}{"q": "hello"}, payload["params"])
}

func TestExecuteSubprocessPlainTextOutput(t *testing.T) {
	e := New(Options{})

	result, err := e.Execute(context.Background(), shellTool("echo not json at all"), nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "not json at all", result.Output)
}

func TestExecuteSubprocessJSONOutput(t *testing.T) {
	e := New(Options{})

	result, err := e.Execute(context.Background(), shellTool(`echo '{"count": 3}'`), nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"count": float64(3)}, result.Output)
}

func TestExecuteSubprocessFailure(t *testing.T) {
	e := New(Options{})

	_, err := e.Execute(context.Background(), shellTool("echo boom >&2; exit 3"), nil, 5*time.Second)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindHandlerFailed, execErr.Kind)
	assert.Contains(t, execErr.Message, "boom", "stderr detail surfaces in the error")
}

func TestExecuteSubprocessTimeoutKillsProcess(t *testing.T) {
	e := New(Options{})

	start := time.Now()
	_, err := e.Execute(context.Background(), shellTool("sleep 30"), nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindTimeout, execErr.Kind)
	assert.Contains(t, execErr.Message, "100ms")
	assert.Less(t, elapsed, 5*time.Second, "the process group must be killed, not waited out")
}

func TestExecuteSubprocessTimeoutReapsChildren(t *testing.T) {
	e := New(Options{})

	// The shell spawns a grandchild holding stdout open; without process
	// group kill plus WaitDelay, Run would block on the pipe long after
	// the timeout.
	start := time.Now()
	_, err := e.Execute(context.Background(), shellTool("sleep 30 & wait"), nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindTimeout, execErr.Kind)
	assert.Less(t, elapsed, 10*time.Second)
}

func TestExecuteCancellationPropagates(t *testing.T) {
	e := New(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := e.Execute(ctx, shellTool("sleep 30"), nil, time.Minute)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecuteEnvOverlay(t *testing.T) {
	e := New(Options{})
	tool := registry.Tool{
		Name:    "env-tool",
		Version: "1.0.0",
		Handler: registry.HandlerSpec{
			Command: "sh",
			Args:    []string{"-c", `printf '%s' "$GANTZ_TEST_VALUE"`},
			Env:     map[string]string{"GANTZ_TEST_VALUE": "wired"},
		},
	}

	result, err := e.Execute(context.Background(), tool, nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "wired", result.Output)
}

func TestExecuteResourceExhausted(t *testing.T) {
	e := New(Options{Concurrency: 1, QueueWhenFull: false})

	release := make(chan struct{})
	e.handlers["block"] = HandlerFunc(func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = e.Execute(context.Background(), builtinTool("block"), nil, 5*time.Second)
	}()
	<-started
	time.Sleep(50 * time.Millisecond) // let the first execution take the slot

	_, err := e.Execute(context.Background(), builtinTool("echo"), nil, time.Second)
	close(release)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindResourceExhausted, execErr.Kind)
}

func TestExecuteQueueWhenFull(t *testing.T) {
	e := New(Options{Concurrency: 1, QueueWhenFull: true})

	slow := map[string]interface{}{"duration_ms": float64(100)}
	go func() {
		_, _ = e.Execute(context.Background(), builtinTool("sleep_ms"), slow, 5*time.Second)
	}()
	time.Sleep(20 * time.Millisecond)

	// Queued behind the slow call, then runs.
	result, err := e.Execute(context.Background(), builtinTool("echo"), nil, 5*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestExecuteZeroTimeout(t *testing.T) {
	e := New(Options{})

	_, err := e.Execute(context.Background(), builtinTool("echo"), nil, 0)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindTimeout, execErr.Kind)
}

func TestBuiltinChecksum(t *testing.T) {
	e := New(Options{})

	result, err := e.Execute(context.Background(), builtinTool("checksum_sha256"),
		map[string]interface{}{"data": "gantz"}, time.Second)
	require.NoError(t, err)

	want := sha256.Sum256([]byte("gantz"))
	out := result.Output.(map[string]interface{})
	assert.Equal(t, hex.EncodeToString(want[:]), out["sha256"])
}

func TestBuiltinTimeNow(t *testing.T) {
	e := New(Options{})

	result, err := e.Execute(context.Background(), builtinTool("time_now"), nil, time.Second)
	require.NoError(t, err)

	out := result.Output.(map[string]interface{})
	stamp, ok := out["utc"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339Nano, stamp)
	assert.NoError(t, err)
}
