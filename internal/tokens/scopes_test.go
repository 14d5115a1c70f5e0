package tokens

import "testing"

func TestCanCallTool(t *testing.T) {
	tests := []struct {
		name     string
		scopes   []string
		tool     string
		required string
		want     bool
	}{
		{"wildcard", []string{"*"}, "search", "", true},
		{"admin", []string{"admin"}, "search", "", true},
		{"blanket call", []string{"tools:call"}, "search", "", true},
		{"qualified call matching", []string{"tools:call:search"}, "search", "", true},
		{"qualified call other tool", []string{"tools:call:convert"}, "search", "", false},
		{"read only cannot call", []string{"tools:read"}, "search", "", false},
		{"empty scopes", nil, "search", "", false},
		{"required scope present", []string{"search:internal"}, "search", "search:internal", true},
		{"required scope replaces blanket", []string{"tools:call"}, "search", "search:internal", false},
		{"admin bypasses required", []string{"admin"}, "search", "search:internal", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanCallTool(tt.scopes, tt.tool, tt.required); got != tt.want {
				t.Errorf("CanCallTool(%v, %q, %q) = %v, want %v",
					tt.scopes, tt.tool, tt.required, got, tt.want)
			}
		})
	}
}

func TestCanReadTools(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   bool
	}{
		{"wildcard", []string{"*"}, true},
		{"admin", []string{"admin"}, true},
		{"read", []string{"tools:read"}, true},
		{"call implies read", []string{"tools:call"}, true},
		{"qualified call implies read", []string{"tools:call:search"}, true},
		{"no scopes", nil, false},
		{"unrelated scope", []string{"runs:read"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanReadTools(tt.scopes); got != tt.want {
				t.Errorf("CanReadTools(%v) = %v, want %v", tt.scopes, got, tt.want)
			}
		})
	}
}

func TestVisibleTool(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		tool   string
		want   bool
	}{
		{"read sees all", []string{"tools:read"}, "search", true},
		{"blanket call sees all", []string{"tools:call"}, "search", true},
		{"qualified sees own", []string{"tools:call:search"}, "search", true},
		{"qualified hides others", []string{"tools:call:search"}, "convert", false},
		{"admin sees all", []string{"admin"}, "convert", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VisibleTool(tt.scopes, tt.tool); got != tt.want {
				t.Errorf("VisibleTool(%v, %q) = %v, want %v", tt.scopes, tt.tool, got, tt.want)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	if IsAdmin([]string{"tools:call"}) {
		t.Error("tools:call must not grant admin")
	}
	if !IsAdmin([]string{"admin"}) || !IsAdmin([]string{"*"}) {
		t.Error("admin and wildcard must grant admin")
	}
}
