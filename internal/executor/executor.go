package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gantz-ai/gantz/internal/registry"
)

// killGracePeriod bounds Wait after the process group has been killed, so
// a child that inherited our pipes can never hang the gateway.
const killGracePeriod = 3 * time.Second

// maxStderrBytes caps how much captured stderr ends up in error messages.
const maxStderrBytes = 4096

// Result is a completed execution. Cached is false here; the dispatcher
// sets it when serving from cache or a collapsed flight.
type Result struct {
	Output      interface{} `json:"output"`
	DurationMS  int64       `json:"duration_ms"`
	Cached      bool        `json:"cached"`
	ToolName    string      `json:"tool_name"`
	ToolVersion string      `json:"tool_version"`
}

// Options configures an Executor.
type Options struct {
	// Concurrency is the maximum number of simultaneous executions.
	// Zero or below defaults to 4x the CPU count.
	Concurrency int64
	// QueueWhenFull blocks for capacity (bounded by the caller's
	// deadline) instead of failing fast with resource exhaustion.
	QueueWhenFull bool
	// Handlers is the in-process handler table.
	Handlers map[string]Handler
}

// Executor runs tools behind a concurrency ceiling. In-process handlers
// are dispatched from the handler table; subprocess tools run in their
// own process group so forced termination reaps every descendant.
type Executor struct {
	handlers map[string]Handler
	sem      *semaphore.Weighted
	queue    bool
}

// New creates an executor.
func New(opts Options) *Executor {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = int64(runtime.NumCPU() * 4)
	}
	handlers := opts.Handlers
	if handlers == nil {
		handlers = Builtins()
	}
	return &Executor{
		handlers: handlers,
		sem:      semaphore.NewWeighted(concurrency),
		queue:    opts.QueueWhenFull,
	}
}

// Execute runs one tool invocation with the given (already budget
// clamped) timeout. Parameters must have passed validation; the executor
// does not re-check them. Failures are *ExecError except caller
// cancellation, which propagates as context.Canceled.
func (e *Executor) Execute(ctx context.Context, tool registry.Tool, args map[string]interface{}, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return nil, timeoutError(0, context.DeadlineExceeded)
	}

	if !e.sem.TryAcquire(1) {
		if !e.queue {
			return nil, resourceExhaustedError()
		}
		// Queue wait is bounded by the caller's budget deadline.
		if err := e.sem.Acquire(ctx, 1); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, timeoutError(timeout, err)
			}
			return nil, err
		}
	}
	defer e.sem.Release(1)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Duration covers the run itself, not time spent queued.
	start := time.Now()

	var output interface{}
	var err error
	if tool.Handler.InProcess() {
		output, err = e.invokeHandler(execCtx, tool, args, timeout)
	} else {
		output, err = e.invokeSubprocess(execCtx, tool, args, timeout)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Output:      output,
		DurationMS:  time.Since(start).Milliseconds(),
		ToolName:    tool.Name,
		ToolVersion: tool.Version,
	}, nil
}

func (e *Executor) invokeHandler(execCtx context.Context, tool registry.Tool, args map[string]interface{}, limit time.Duration) (interface{}, error) {
	h, ok := e.handlers[tool.Handler.Builtin]
	if !ok {
		return nil, handlerError(fmt.Sprintf("no in-process handler named %q", tool.Handler.Builtin), nil)
	}

	output, err := h.Invoke(execCtx, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(limit, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, handlerError(fmt.Sprintf("handler failed: %v", err), err)
	}
	return output, nil
}

// subprocessRequest is the JSON payload a subprocess tool reads on stdin.
type subprocessRequest struct {
	Tool    string                 `json:"tool"`
	Version string                 `json:"version"`
	Params  map[string]interface{} `json:"params"`
}

func (e *Executor) invokeSubprocess(execCtx context.Context, tool registry.Tool, args map[string]interface{}, limit time.Duration) (interface{}, error) {
	spec := tool.Handler

	payload, err := json.Marshal(subprocessRequest{
		Tool:    tool.Name,
		Version: tool.Version,
		Params:  args,
	})
	if err != nil {
		return nil, handlerError(fmt.Sprintf("failed to encode tool input: %v", err), err)
	}

	// #nosec G204 -- command and args come from the operator's manifest.
	cmd := exec.CommandContext(execCtx, spec.Command, spec.Args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(spec.Env)...)
	}
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}

	// The tool gets its own process group; cancellation kills the whole
	// group so grandchildren cannot linger as orphans.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGracePeriod

	runErr := cmd.Run()

	if ctxErr := execCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, timeoutError(limit, ctxErr)
		}
		return nil, ctxErr
	}

	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = runErr.Error()
		}
		if len(detail) > maxStderrBytes {
			detail = detail[:maxStderrBytes]
		}
		return nil, handlerError(fmt.Sprintf("tool process failed: %s", detail), runErr)
	}

	return parseOutput(stdout.Bytes()), nil
}

// parseOutput decodes subprocess stdout: JSON when it parses, otherwise
// the trimmed text as-is.
func parseOutput(raw []byte) interface{} {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return trimmed
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
