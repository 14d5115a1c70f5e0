package registry

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/gantz-ai/gantz/pkg/params"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrUnknownVersion   = errors.New("unknown tool version")
	ErrDuplicateVersion = errors.New("duplicate tool version")
	ErrInvalidVersion   = errors.New("invalid tool version")
)

// HandlerSpec tells the executor how to run a tool: either a named
// in-process handler or a subprocess command line.
type HandlerSpec struct {
	Builtin string            `json:"builtin,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	WorkDir string            `json:"work_dir,omitempty"`
}

// InProcess reports whether the tool runs inside the gateway process.
func (h HandlerSpec) InProcess() bool {
	return h.Builtin != ""
}

// Tool is one registered (name, version) pair and everything the gateway
// needs to serve it.
type Tool struct {
	Name          string        `json:"name"`
	Version       string        `json:"version"`
	Description   string        `json:"description,omitempty"`
	Params        []params.Spec `json:"params,omitempty"`
	Handler       HandlerSpec   `json:"handler"`
	Cacheable     bool          `json:"cacheable,omitempty"`
	CacheTTL      time.Duration `json:"cache_ttl,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	RequiredScope string        `json:"required_scope,omitempty"`
	Deprecated    bool          `json:"deprecated,omitempty"`
}

type versioned struct {
	tool Tool
	ver  *semver.Version
}

// Registry is a concurrency-safe catalog of versioned tools. Version
// strings are normalized on the way in ("2.0" and "2.0.0" are the same
// key) and resolution compares numerically, never lexicographically.
type Registry struct {
	mu    sync.RWMutex
	tools map[string][]versioned
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string][]versioned)}
}

// Register adds one tool version. The version must parse as semver;
// registering a (name, version) pair twice fails with ErrDuplicateVersion.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	ver, err := semver.NewVersion(tool.Version)
	if err != nil {
		return fmt.Errorf("%w: %s@%s: %v", ErrInvalidVersion, tool.Name, tool.Version, err)
	}
	tool.Version = ver.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.tools[tool.Name]
	for _, v := range versions {
		if v.ver.Equal(ver) {
			return fmt.Errorf("%w: %s@%s", ErrDuplicateVersion, tool.Name, tool.Version)
		}
	}

	versions = append(versions, versioned{tool: tool, ver: ver})
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].ver.LessThan(versions[j].ver)
	})
	r.tools[tool.Name] = versions
	return nil
}

// Resolve finds a tool by name and version. An empty version resolves to
// the highest registered version by numeric major.minor.patch comparison.
func (r *Registry) Resolve(name, version string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if version == "" {
		// Versions are kept sorted ascending; the latest is last.
		return versions[len(versions)-1].tool, nil
	}

	want, err := semver.NewVersion(version)
	if err != nil {
		return Tool{}, fmt.Errorf("%w: %s@%s: %v", ErrInvalidVersion, name, version, err)
	}
	for _, v := range versions {
		if v.ver.Equal(want) {
			return v.tool, nil
		}
	}
	return Tool{}, fmt.Errorf("%w: %s@%s", ErrUnknownVersion, name, version)
}

// Latest resolves the highest registered version of a tool.
func (r *Registry) Latest(name string) (Tool, error) {
	return r.Resolve(name, "")
}

// Deregister removes one tool version. Removing the last version of a
// name removes the name entirely.
func (r *Registry) Deregister(name, version string) error {
	want, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %s@%s: %v", ErrInvalidVersion, name, version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	for i, v := range versions {
		if v.ver.Equal(want) {
			versions = append(versions[:i], versions[i+1:]...)
			if len(versions) == 0 {
				delete(r.tools, name)
			} else {
				r.tools[name] = versions
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s@%s", ErrUnknownVersion, name, version)
}

// List returns a restartable iterator over every registered tool, ordered
// by name ascending then version ascending. Each range over the sequence
// starts from the beginning with a fresh snapshot, so concurrent
// registration never corrupts an in-flight iteration.
func (r *Registry) List() iter.Seq[Tool] {
	return func(yield func(Tool) bool) {
		for _, t := range r.snapshot() {
			if !yield(t) {
				return
			}
		}
	}
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns the registered versions of a tool, sorted ascending.
func (r *Registry) Versions(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.tool.Version
	}
	return out, nil
}

// Len returns the number of registered (name, version) pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, versions := range r.tools {
		n += len(versions)
	}
	return n
}

func (r *Registry) snapshot() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		for _, v := range r.tools[name] {
			out = append(out, v.tool)
		}
	}
	return out
}
