package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type Token struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Digest     string     `json:"-" db:"digest"`
	Scopes     StringList `json:"scopes" db:"scopes"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Revoked reports whether the token has been revoked.
func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token expiry has passed. Tokens without an
// expiry never expire.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

type Run struct {
	ID           string    `json:"id" db:"id"`
	TokenID      string    `json:"token_id" db:"token_id"`
	ToolName     string    `json:"tool_name" db:"tool_name"`
	ToolVersion  string    `json:"tool_version" db:"tool_version"`
	State        string    `json:"state" db:"state"`
	DurationMS   int64     `json:"duration_ms" db:"duration_ms"`
	Cached       bool      `json:"cached" db:"cached"`
	ErrorKind    *string   `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// StringList is a custom type for handling JSON string arrays in SQLite
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, s)
}
