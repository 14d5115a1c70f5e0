// Package manifest loads the gantz.yaml tool catalog: which tools the
// gateway serves, at which versions, with what parameters, handlers,
// cache policy, and timeouts.
package manifest

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/pkg/params"
)

// DefaultPath is where the gateway looks for a manifest when no path is
// configured.
const DefaultPath = "gantz.yaml"

// ErrNotFound reports a missing manifest file. Callers can treat this
// differently from a manifest that exists but fails to parse.
var ErrNotFound = errors.New("manifest not found")

// File is a parsed manifest.
type File struct {
	Tools []ToolDecl `yaml:"tools"`
}

// ToolDecl declares one (name, version) pair. Exactly one of Handler
// (in-process) or Run (subprocess) must be set.
type ToolDecl struct {
	Name        string      `yaml:"name"`
	Version     string      `yaml:"version"`
	Description string      `yaml:"description,omitempty"`
	Params      []ParamDecl `yaml:"params,omitempty"`
	Handler     string      `yaml:"handler,omitempty"`
	Run         *RunDecl    `yaml:"run,omitempty"`
	Cache       *CacheDecl  `yaml:"cache,omitempty"`
	Timeout     string      `yaml:"timeout,omitempty"`
	Scope       string      `yaml:"scope,omitempty"`
	Deprecated  bool        `yaml:"deprecated,omitempty"`
}

// ParamDecl declares one parameter of a tool.
type ParamDecl struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Required    bool        `yaml:"required,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
	Enum        []string    `yaml:"enum,omitempty"`
}

// RunDecl declares a subprocess handler. The tool receives a JSON request
// on stdin and writes its result to stdout.
type RunDecl struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty"`
}

// CacheDecl opts a tool into result caching.
type CacheDecl struct {
	Enabled bool   `yaml:"enabled"`
	TTL     string `yaml:"ttl,omitempty"`
}

// Loader reads manifests from a filesystem. Tests inject an in-memory fs.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader. A nil fs uses the OS filesystem.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// Load reads and parses a manifest file. Syntax and IO failures are
// errors; semantic problems are reported by Validate.
func (l *Loader) Load(path string) (*File, error) {
	exists, err := afero.Exists(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check manifest existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("manifest %s not found: %w", path, ErrNotFound)
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &file, nil
}

// Apply validates the file and registers every declared tool. A file with
// validation errors registers nothing, so a bad manifest never half loads.
func Apply(reg *registry.Registry, file *File) ([]Diagnostic, error) {
	diags := Validate(file)
	if HasErrors(diags) {
		return diags, fmt.Errorf("manifest has %d validation error(s)", countErrors(diags))
	}

	for i, decl := range file.Tools {
		tool, err := decl.tool()
		if err != nil {
			return diags, fmt.Errorf("tools[%d] %s@%s: %w", i, decl.Name, decl.Version, err)
		}
		if err := reg.Register(tool); err != nil {
			return diags, fmt.Errorf("tools[%d]: %w", i, err)
		}
		logging.Debug("Registered tool %s@%s from manifest", tool.Name, tool.Version)
	}
	return diags, nil
}

// tool converts the declaration into a registry entry. Validate has
// already checked the fields, so parse failures here are real errors.
func (d ToolDecl) tool() (registry.Tool, error) {
	specs := make([]params.Spec, 0, len(d.Params))
	for _, p := range d.Params {
		specs = append(specs, params.Spec{
			Name:        p.Name,
			Type:        params.Type(p.Type),
			Required:    p.Required,
			Description: p.Description,
			Default:     p.Default,
			Enum:        p.Enum,
		})
	}

	tool := registry.Tool{
		Name:          d.Name,
		Version:       d.Version,
		Description:   d.Description,
		Params:        specs,
		RequiredScope: d.Scope,
		Deprecated:    d.Deprecated,
	}

	if d.Handler != "" {
		tool.Handler = registry.HandlerSpec{Builtin: d.Handler}
	} else if d.Run != nil {
		tool.Handler = registry.HandlerSpec{
			Command: d.Run.Command,
			Args:    d.Run.Args,
			Env:     d.Run.Env,
			WorkDir: d.Run.WorkDir,
		}
	}

	if d.Timeout != "" {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return registry.Tool{}, fmt.Errorf("invalid timeout %q: %w", d.Timeout, err)
		}
		tool.Timeout = timeout
	}

	if d.Cache != nil && d.Cache.Enabled {
		tool.Cacheable = true
		if d.Cache.TTL != "" {
			ttl, err := time.ParseDuration(d.Cache.TTL)
			if err != nil {
				return registry.Tool{}, fmt.Errorf("invalid cache ttl %q: %w", d.Cache.TTL, err)
			}
			tool.CacheTTL = ttl
		}
	}

	return tool, nil
}
