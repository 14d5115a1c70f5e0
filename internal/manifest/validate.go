package manifest

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/gantz-ai/gantz/pkg/params"
)

// Diagnostic reports one validation finding with enough context to point
// the operator at the offending field.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Validation codes. Errors block registration; warnings do not.
const (
	CodeMissingRequired = "MF-001"
	CodeInvalidFormat   = "MF-002"
	CodeInvalidVersion  = "MF-003"
	CodeDuplicate       = "MF-004"
	CodeHandlerConflict = "MF-005"
	CodeBadDefault      = "MF-006"

	CodeUnusedTTL    = "MF-W01"
	CodeEnumConflict = "MF-W02"
)

// namePattern matches tool and parameter names: lowercase letter, then
// lowercase letters/digits/underscores, max 64 characters.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const maxNameLength = 64

var validParamTypes = map[string]bool{
	string(params.TypeString): true,
	string(params.TypeInt):    true,
	string(params.TypeFloat):  true,
	string(params.TypeBool):   true,
	string(params.TypeObject): true,
	string(params.TypeArray):  true,
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func countErrors(diags []Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Validate checks the manifest for structural problems and returns a list
// of diagnostics. Handler name resolution happens at execution time, not
// here, so a manifest can declare handlers the host registers later.
func Validate(file *File) []Diagnostic {
	if file == nil {
		return []Diagnostic{errDiag(CodeMissingRequired, "manifest is empty", "")}
	}

	diags := make([]Diagnostic, 0)
	seen := make(map[string]int)

	for i, decl := range file.Tools {
		path := fmt.Sprintf("tools[%d]", i)
		diags = append(diags, validateTool(path, decl)...)

		if decl.Name != "" && decl.Version != "" {
			key := declKey(decl)
			if first, dup := seen[key]; dup {
				diags = append(diags, errDiag(CodeDuplicate,
					fmt.Sprintf("Tool %s@%s is declared twice (first at tools[%d])", decl.Name, decl.Version, first),
					path))
			} else {
				seen[key] = i
			}
		}
	}

	return diags
}

// declKey normalizes the version so "2.0" and "2.0.0" collide.
func declKey(decl ToolDecl) string {
	if ver, err := semver.NewVersion(decl.Version); err == nil {
		return decl.Name + "@" + ver.String()
	}
	return decl.Name + "@" + decl.Version
}

func validateTool(path string, decl ToolDecl) []Diagnostic {
	diags := make([]Diagnostic, 0)

	if decl.Name == "" {
		diags = append(diags, errDiag(CodeMissingRequired,
			"Tool is missing required field \"name\"", path+".name"))
	} else if !isValidName(decl.Name) {
		diags = append(diags, errDiag(CodeInvalidFormat,
			fmt.Sprintf("Tool name %q must match [a-z][a-z0-9_]* and be at most %d characters", decl.Name, maxNameLength),
			path+".name"))
	}

	if decl.Version == "" {
		diags = append(diags, errDiag(CodeMissingRequired,
			fmt.Sprintf("Tool %q is missing required field \"version\"", decl.Name), path+".version"))
	} else if _, err := semver.NewVersion(decl.Version); err != nil {
		diags = append(diags, errDiag(CodeInvalidVersion,
			fmt.Sprintf("Tool %q version %q is not valid semver", decl.Name, decl.Version), path+".version"))
	}

	diags = append(diags, validateHandler(path, decl)...)
	diags = append(diags, validateParams(path, decl)...)
	diags = append(diags, validateDurations(path, decl)...)

	return diags
}

func validateHandler(path string, decl ToolDecl) []Diagnostic {
	switch {
	case decl.Handler == "" && decl.Run == nil:
		return []Diagnostic{errDiag(CodeHandlerConflict,
			fmt.Sprintf("Tool %q must declare either \"handler\" or \"run\"", decl.Name), path)}
	case decl.Handler != "" && decl.Run != nil:
		return []Diagnostic{errDiag(CodeHandlerConflict,
			fmt.Sprintf("Tool %q declares both \"handler\" and \"run\"; pick one", decl.Name), path)}
	case decl.Run != nil && decl.Run.Command == "":
		return []Diagnostic{errDiag(CodeMissingRequired,
			fmt.Sprintf("Tool %q run block is missing required field \"command\"", decl.Name), path+".run.command")}
	}
	return nil
}

func validateParams(path string, decl ToolDecl) []Diagnostic {
	diags := make([]Diagnostic, 0)
	seen := make(map[string]bool)

	for i, p := range decl.Params {
		ppath := fmt.Sprintf("%s.params[%d]", path, i)

		if p.Name == "" {
			diags = append(diags, errDiag(CodeMissingRequired,
				fmt.Sprintf("Tool %q parameter %d is missing required field \"name\"", decl.Name, i), ppath+".name"))
			continue
		}
		if !isValidName(p.Name) {
			diags = append(diags, errDiag(CodeInvalidFormat,
				fmt.Sprintf("Parameter name %q must match [a-z][a-z0-9_]* and be at most %d characters", p.Name, maxNameLength),
				ppath+".name"))
		}
		if seen[p.Name] {
			diags = append(diags, errDiag(CodeDuplicate,
				fmt.Sprintf("Tool %q declares parameter %q twice", decl.Name, p.Name), ppath+".name"))
		}
		seen[p.Name] = true

		if p.Type == "" {
			diags = append(diags, errDiag(CodeMissingRequired,
				fmt.Sprintf("Parameter %q is missing required field \"type\"", p.Name), ppath+".type"))
			continue
		}
		if !validParamTypes[p.Type] {
			diags = append(diags, errDiag(CodeInvalidFormat,
				fmt.Sprintf("Parameter %q has unknown type %q", p.Name, p.Type), ppath+".type"))
			continue
		}

		if len(p.Enum) > 0 {
			if p.Type != string(params.TypeString) {
				diags = append(diags, errDiag(CodeInvalidFormat,
					fmt.Sprintf("Parameter %q declares an enum but is not a string", p.Name), ppath+".enum"))
			}
			if dup := firstDuplicate(p.Enum); dup != "" {
				diags = append(diags, warnDiag(CodeEnumConflict,
					fmt.Sprintf("Parameter %q enum lists %q more than once", p.Name, dup), ppath+".enum"))
			}
		}

		if p.Default != nil {
			spec := params.Spec{Name: p.Name, Type: params.Type(p.Type), Enum: p.Enum}
			if err := params.Validate([]params.Spec{spec}, map[string]interface{}{p.Name: p.Default}); err != nil {
				diags = append(diags, errDiag(CodeBadDefault,
					fmt.Sprintf("Parameter %q default does not match its declared type: %v", p.Name, err),
					ppath+".default"))
			}
		}
	}

	return diags
}

func validateDurations(path string, decl ToolDecl) []Diagnostic {
	diags := make([]Diagnostic, 0)

	if decl.Timeout != "" {
		if d, err := time.ParseDuration(decl.Timeout); err != nil || d <= 0 {
			diags = append(diags, errDiag(CodeInvalidFormat,
				fmt.Sprintf("Tool %q timeout %q is not a positive duration", decl.Name, decl.Timeout),
				path+".timeout"))
		}
	}

	if decl.Cache != nil {
		if decl.Cache.TTL != "" {
			if d, err := time.ParseDuration(decl.Cache.TTL); err != nil || d <= 0 {
				diags = append(diags, errDiag(CodeInvalidFormat,
					fmt.Sprintf("Tool %q cache ttl %q is not a positive duration", decl.Name, decl.Cache.TTL),
					path+".cache.ttl"))
			} else if !decl.Cache.Enabled {
				diags = append(diags, warnDiag(CodeUnusedTTL,
					fmt.Sprintf("Tool %q sets cache.ttl but cache.enabled is false", decl.Name),
					path+".cache.ttl"))
			}
		}
	}

	return diags
}

func isValidName(name string) bool {
	if len(name) == 0 || len(name) > maxNameLength {
		return false
	}
	return namePattern.MatchString(name)
}

func firstDuplicate(values []string) string {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return v
		}
		seen[v] = true
	}
	return ""
}

func errDiag(code, message, path string) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityError, Message: message, Path: path}
}

func warnDiag(code, message, path string) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityWarning, Message: message, Path: path}
}
