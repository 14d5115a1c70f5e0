package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Builtins returns the in-process handler table registered at startup.
// Manifest tools reference these by name with `handler:`.
func Builtins() map[string]Handler {
	return map[string]Handler{
		"echo":            HandlerFunc(echoHandler),
		"sleep_ms":        HandlerFunc(sleepHandler),
		"time_now":        HandlerFunc(timeNowHandler),
		"checksum_sha256": HandlerFunc(checksumHandler),
	}
}

// echoHandler returns its arguments unchanged. Useful for wiring checks
// and cache behavior tests against a live gateway.
func echoHandler(_ context.Context, args map[string]interface{}) (interface{}, error) {
	return args, nil
}

// sleepHandler blocks for duration_ms, honoring cancellation. It exists
// to exercise budgets and timeouts end to end. In-process callers hand
// args over without a JSON round trip, so integers arrive as Go ints.
func sleepHandler(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var ms float64
	switch n := args["duration_ms"].(type) {
	case float64:
		ms = n
	case int:
		ms = float64(n)
	case int64:
		ms = float64(n)
	}
	if ms < 0 {
		ms = 0
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return map[string]interface{}{"slept_ms": ms}, nil
	}
}

func timeNowHandler(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"utc": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func checksumHandler(_ context.Context, args map[string]interface{}) (interface{}, error) {
	data, ok := args["data"].(string)
	if !ok {
		return nil, fmt.Errorf("data parameter is required")
	}
	sum := sha256.Sum256([]byte(data))
	return map[string]interface{}{
		"sha256": hex.EncodeToString(sum[:]),
	}, nil
}
