package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/gantz-ai/gantz/internal/budget"
	"github.com/gantz-ai/gantz/internal/cache"
	"github.com/gantz-ai/gantz/internal/executor"
	"github.com/gantz-ai/gantz/internal/ids"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/services"
	"github.com/gantz-ai/gantz/internal/telemetry"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/pkg/models"
	"github.com/gantz-ai/gantz/pkg/params"
)

// Request is one tool invocation as received from a transport.
type Request struct {
	Tool        string
	Version     string
	Params      map[string]interface{}
	Budget      time.Duration
	BypassCache bool
}

// Response is the outcome of a dispatched request.
type Response struct {
	RequestID string
	State     State
	Result    *executor.Result
	Warnings  []string
}

// Options wires a Dispatcher.
type Options struct {
	Registry  *registry.Registry
	Tokens    *tokens.Store
	Executor  *executor.Executor
	Telemetry *telemetry.Service

	// Cache is nil when caching is globally disabled.
	Cache cache.Store
	// Recorder is nil when run persistence is disabled.
	Recorder *services.RunRecorder

	// DefaultBudget applies when a request carries no budget of its own.
	// MaxBudget caps whatever the client asked for.
	DefaultBudget time.Duration
	MaxBudget     time.Duration
	// DefaultCacheTTL applies to cacheable tools without their own TTL.
	DefaultCacheTTL time.Duration

	// LocalMode skips token validation and grants every scope. Only set
	// for single-user stdio serving.
	LocalMode bool
}

// Dispatcher drives a request through the lifecycle: authentication,
// resolution, the validation gate, cache lookup, execution, and recording.
type Dispatcher struct {
	registry  *registry.Registry
	tokens    *tokens.Store
	cache     cache.Store
	executor  *executor.Executor
	telemetry *telemetry.Service
	recorder  *services.RunRecorder
	validator *params.SchemaValidator
	flights   singleflight.Group

	defaultBudget   time.Duration
	maxBudget       time.Duration
	defaultCacheTTL time.Duration
	localMode       bool
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	defaultBudget := opts.DefaultBudget
	if defaultBudget <= 0 {
		defaultBudget = 30 * time.Second
	}

	return &Dispatcher{
		registry:        opts.Registry,
		tokens:          opts.Tokens,
		cache:           opts.Cache,
		executor:        opts.Executor,
		telemetry:       opts.Telemetry,
		recorder:        opts.Recorder,
		validator:       params.NewSchemaValidator(),
		defaultBudget:   defaultBudget,
		maxBudget:       opts.MaxBudget,
		defaultCacheTTL: opts.DefaultCacheTTL,
		localMode:       opts.LocalMode,
	}
}

// attempt carries one request's bookkeeping across the pipeline stages.
type attempt struct {
	id          string
	lc          *lifecycle
	started     time.Time
	budget      *budget.Budget
	token       *models.Token
	toolName    string
	toolVersion string
	warnings    []string
}

// Dispatch runs one tool invocation end to end. The returned error is
// always classifiable with Kind.
func (d *Dispatcher) Dispatch(ctx context.Context, presented string, req Request) (*Response, error) {
	requestID := ids.New()

	ctx, span := d.telemetry.StartSpan(ctx, "gantz.dispatch", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("tool.name", req.Tool),
	))
	defer span.End()

	d.telemetry.AddActiveRequests(ctx, 1)
	defer d.telemetry.AddActiveRequests(ctx, -1)

	resp, err := d.dispatch(ctx, requestID, presented, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
	}
	return resp, err
}

func (d *Dispatcher) dispatch(ctx context.Context, requestID, presented string, req Request) (*Response, error) {
	a := &attempt{
		id:          requestID,
		lc:          newLifecycle(),
		started:     time.Now(),
		toolName:    req.Tool,
		toolVersion: req.Version,
	}

	total := req.Budget
	if total <= 0 {
		total = d.defaultBudget
	}
	if d.maxBudget > 0 && total > d.maxBudget {
		total = d.maxBudget
	}
	a.budget = budget.New(total)
	ctx = budget.NewContext(ctx, a.budget)

	token, err := d.authenticate(ctx, presented)
	if err != nil {
		return d.fail(ctx, a, err)
	}
	a.token = token
	a.lc.mustAdvance(StateAuthenticated)

	tool, err := d.registry.Resolve(req.Tool, req.Version)
	if err != nil {
		return d.fail(ctx, a, err)
	}
	a.toolName = tool.Name
	a.toolVersion = tool.Version
	a.lc.mustAdvance(StateResolved)

	// The scope check runs after resolution so the denial names the tool.
	if !tokens.CanCallTool(token.Scopes, tool.Name, tool.RequiredScope) {
		return d.fail(ctx, a, fmt.Errorf("%w: tool %q", ErrScopeDenied, tool.Name))
	}

	if err := params.Validate(tool.Params, req.Params); err != nil {
		return d.fail(ctx, a, err)
	}
	args := params.Normalize(tool.Params, req.Params)
	if err := d.validator.ValidateDeep(tool.Params, args); err != nil {
		return d.fail(ctx, a, err)
	}

	if tool.Deprecated {
		a.warnings = append(a.warnings, fmt.Sprintf("tool %s@%s is deprecated", tool.Name, tool.Version))
		logging.Info("Dispatching deprecated tool %s@%s (request %s)", tool.Name, tool.Version, requestID)
	}

	// The cache key doubles as the singleflight key. A key failure
	// degrades to uncached, uncollapsed execution.
	var key string
	if tool.Cacheable && !req.BypassCache {
		key, err = cache.Key(tool.Name, tool.Version, args)
		if err != nil {
			logging.Debug("Cache key for %s@%s failed, skipping cache: %v", tool.Name, tool.Version, err)
			key = ""
		}
	}

	if key != "" && d.cache != nil {
		entry, err := d.cache.Get(ctx, key)
		switch {
		case err == nil:
			return d.completeFromCache(ctx, a, entry)
		case !errors.Is(err, cache.ErrNotFound):
			logging.Debug("Cache get for %s@%s failed, treating as miss: %v", tool.Name, tool.Version, err)
		}
	}

	a.lc.mustAdvance(StateExecuting)

	timeout := a.budget.Remaining()
	if tool.Timeout > 0 {
		timeout = a.budget.ForOperation(tool.Timeout)
	}

	result, err := d.execute(ctx, tool, args, key, timeout)
	if err != nil {
		return d.fail(ctx, a, err)
	}

	a.lc.mustAdvance(StateCompleted)
	d.telemetry.RecordInvocation(ctx, tool.Name, tool.Version, string(StateCompleted), time.Duration(result.DurationMS)*time.Millisecond)
	d.record(a, result, nil)

	return &Response{
		RequestID: a.id,
		State:     a.lc.state,
		Result:    result,
		Warnings:  a.warnings,
	}, nil
}

// authenticate validates the presented secret, or synthesizes a wildcard
// token in local mode.
func (d *Dispatcher) authenticate(ctx context.Context, presented string) (*models.Token, error) {
	if d.localMode {
		return &models.Token{
			ID:        "local",
			Name:      "local mode",
			Scopes:    models.StringList{tokens.ScopeWildcard},
			CreatedAt: time.Now().UTC(),
		}, nil
	}
	return d.tokens.Validate(ctx, presented)
}

// execute runs the tool, collapsing identical concurrent requests onto one
// execution when a collapse key is available.
func (d *Dispatcher) execute(ctx context.Context, tool registry.Tool, args map[string]interface{}, key string, timeout time.Duration) (*executor.Result, error) {
	ctx, span := d.telemetry.StartSpan(ctx, "gantz.execute", trace.WithAttributes(
		attribute.String("tool.name", tool.Name),
		attribute.String("tool.version", tool.Version),
	))
	defer span.End()

	if key == "" {
		return d.executor.Execute(ctx, tool, args, timeout)
	}

	// The closure only runs for the flight leader; followers block on the
	// leader's outcome and leader stays false for them.
	var leader bool
	v, err, _ := d.flights.Do(key, func() (interface{}, error) {
		leader = true
		return d.executor.Execute(ctx, tool, args, timeout)
	})
	if err != nil {
		return nil, err
	}

	result := v.(*executor.Result)
	if leader {
		d.storeResult(ctx, key, tool, result)
		return result, nil
	}

	// Followers get a copy so the shared result is never mutated.
	follower := *result
	follower.Cached = true
	return &follower, nil
}

// completeFromCache finishes a request from a cache hit. Only the cache
// hit counter moves; the executor and the invocation metrics are skipped.
func (d *Dispatcher) completeFromCache(ctx context.Context, a *attempt, entry *cache.Entry) (*Response, error) {
	a.lc.mustAdvance(StateCacheHit)
	d.telemetry.RecordCacheHit(ctx, a.toolName, a.toolVersion)

	result := &executor.Result{
		Output:      entry.Output,
		DurationMS:  entry.DurationMS,
		Cached:      true,
		ToolName:    a.toolName,
		ToolVersion: a.toolVersion,
	}

	a.lc.mustAdvance(StateCompleted)
	d.record(a, result, nil)

	return &Response{
		RequestID: a.id,
		State:     a.lc.state,
		Result:    result,
		Warnings:  a.warnings,
	}, nil
}

// storeResult writes a fresh result into the cache, failing open.
func (d *Dispatcher) storeResult(ctx context.Context, key string, tool registry.Tool, result *executor.Result) {
	if d.cache == nil {
		return
	}

	ttl := tool.CacheTTL
	if ttl <= 0 {
		ttl = d.defaultCacheTTL
	}

	entry := &cache.Entry{
		Output:      result.Output,
		ToolName:    tool.Name,
		ToolVersion: tool.Version,
		DurationMS:  result.DurationMS,
		StoredAt:    time.Now().UTC(),
	}
	if err := d.cache.Set(ctx, key, entry, ttl); err != nil {
		logging.Debug("Cache set for %s@%s failed: %v", tool.Name, tool.Version, err)
	}
}

// fail drives the lifecycle to its failed terminal state and records the
// outcome.
func (d *Dispatcher) fail(ctx context.Context, a *attempt, err error) (*Response, error) {
	a.lc.mustAdvance(StateFailed)
	kind := Kind(err)

	if kind == KindTimeout {
		d.telemetry.RecordTimeout(ctx, a.toolName, a.toolVersion)
	}
	d.telemetry.RecordError(ctx, a.toolName, a.toolVersion, kind)
	d.telemetry.RecordInvocation(ctx, a.toolName, a.toolVersion, string(StateFailed), time.Since(a.started))
	d.record(a, nil, err)

	logging.Debug("Request %s failed (%s): %v", a.id, kind, err)
	return nil, err
}

// record queues a run record, if persistence is wired.
func (d *Dispatcher) record(a *attempt, result *executor.Result, dispatchErr error) {
	if d.recorder == nil {
		return
	}

	run := &models.Run{
		ID:          a.id,
		ToolName:    a.toolName,
		ToolVersion: a.toolVersion,
		State:       string(a.lc.state),
		CreatedAt:   time.Now().UTC(),
	}
	if a.token != nil {
		run.TokenID = a.token.ID
	}
	if result != nil {
		run.DurationMS = result.DurationMS
		run.Cached = result.Cached
	} else {
		run.DurationMS = time.Since(a.started).Milliseconds()
	}
	if dispatchErr != nil {
		kind := Kind(dispatchErr)
		msg := dispatchErr.Error()
		run.ErrorKind = &kind
		run.ErrorMessage = &msg
	}

	d.recorder.Record(run)
}
