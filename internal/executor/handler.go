package executor

import "context"

// Handler runs an in-process tool. Implementations must honor ctx
// cancellation; the executor applies the budget-clamped deadline before
// invoking.
type Handler interface {
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

func (f HandlerFunc) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return f(ctx, args)
}
