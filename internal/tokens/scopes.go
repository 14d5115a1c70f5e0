package tokens

// Scopes a token can carry. The wildcard grants everything; admin covers
// the management surfaces plus every tool.
const (
	ScopeWildcard  = "*"
	ScopeAdmin     = "admin"
	ScopeToolsRead = "tools:read"
	ScopeToolsCall = "tools:call"
)

// CallScopePrefix qualifies a call grant to a single tool, e.g.
// "tools:call:search".
const CallScopePrefix = "tools:call:"

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the scopes grant the management surfaces.
func IsAdmin(scopes []string) bool {
	return hasScope(scopes, ScopeWildcard) || hasScope(scopes, ScopeAdmin)
}

// CanCallTool reports whether the scopes permit invoking the named tool.
// Tools may declare a required scope of their own, which replaces the
// default call grants for that tool.
func CanCallTool(scopes []string, tool, requiredScope string) bool {
	if IsAdmin(scopes) {
		return true
	}
	if requiredScope != "" {
		return hasScope(scopes, requiredScope)
	}
	return hasScope(scopes, ScopeToolsCall) || hasScope(scopes, CallScopePrefix+tool)
}

// CanReadTools reports whether the scopes permit listing the catalog at
// all. Callers that can invoke anything can also browse.
func CanReadTools(scopes []string) bool {
	if IsAdmin(scopes) || hasScope(scopes, ScopeToolsRead) || hasScope(scopes, ScopeToolsCall) {
		return true
	}
	for _, s := range scopes {
		if len(s) > len(CallScopePrefix) && s[:len(CallScopePrefix)] == CallScopePrefix {
			return true
		}
	}
	return false
}

// VisibleTool reports whether the named tool appears in listings for these
// scopes. Tokens restricted to specific tools only see those tools.
func VisibleTool(scopes []string, tool string) bool {
	if IsAdmin(scopes) || hasScope(scopes, ScopeToolsRead) || hasScope(scopes, ScopeToolsCall) {
		return true
	}
	return hasScope(scopes, CallScopePrefix+tool)
}
