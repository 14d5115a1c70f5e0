package dispatch

import (
	"context"
	"errors"

	"github.com/gantz-ai/gantz/internal/executor"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/pkg/params"
)

// ErrScopeDenied is returned when a valid token lacks the scope required
// to call the resolved tool.
var ErrScopeDenied = errors.New("token lacks required scope")

// Error kind strings as they appear on run records, metrics attributes,
// and wire error bodies.
const (
	KindTokenMissing      = "token_missing"
	KindTokenInvalid      = "token_invalid"
	KindTokenExpired      = "token_expired"
	KindTokenRevoked      = "token_revoked"
	KindScopeDenied       = "scope_denied"
	KindUnknownTool       = "unknown_tool"
	KindUnknownVersion    = "unknown_version"
	KindInvalidVersion    = "invalid_version"
	KindDuplicateVersion  = "duplicate_version"
	KindMissingRequired   = "missing_required"
	KindTypeMismatch      = "type_mismatch"
	KindTimeout           = "timeout"
	KindHandlerFailed     = "handler_failed"
	KindResourceExhausted = "resource_exhausted"
	KindCanceled          = "canceled"
	KindInternal          = "internal"
)

// Kind maps any dispatch error onto its taxonomy kind. Unrecognized
// errors classify as internal.
func Kind(err error) string {
	switch {
	case errors.Is(err, tokens.ErrTokenMissing):
		return KindTokenMissing
	case errors.Is(err, tokens.ErrTokenInvalid):
		return KindTokenInvalid
	case errors.Is(err, tokens.ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, tokens.ErrTokenRevoked):
		return KindTokenRevoked
	case errors.Is(err, ErrScopeDenied):
		return KindScopeDenied
	case errors.Is(err, registry.ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, registry.ErrUnknownVersion):
		return KindUnknownVersion
	case errors.Is(err, registry.ErrInvalidVersion):
		return KindInvalidVersion
	case errors.Is(err, registry.ErrDuplicateVersion):
		return KindDuplicateVersion
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	var validationErr *params.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Kind {
		case params.MissingRequired:
			return KindMissingRequired
		case params.TypeMismatch:
			return KindTypeMismatch
		}
	}

	var execErr *executor.ExecError
	if errors.As(err, &execErr) {
		switch execErr.Kind {
		case executor.KindTimeout:
			return KindTimeout
		case executor.KindHandlerFailed:
			return KindHandlerFailed
		case executor.KindResourceExhausted:
			return KindResourceExhausted
		}
	}

	return KindInternal
}
