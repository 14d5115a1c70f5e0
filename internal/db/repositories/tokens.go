package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gantz-ai/gantz/internal/db"
	"github.com/gantz-ai/gantz/pkg/models"
)

type TokenRepo struct {
	db *sql.DB
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

const tokenColumns = "id, name, digest, scopes, created_at, expires_at, revoked_at, last_used_at"

func scanToken(row interface{ Scan(...interface{}) error }) (*models.Token, error) {
	var t models.Token
	var expiresAt, revokedAt, lastUsedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Digest,
		&t.Scopes,
		&t.CreatedAt,
		&expiresAt,
		&revokedAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	return &t, nil
}

// Create persists a new token record. The digest column is unique; a
// collision surfaces as a constraint error.
func (r *TokenRepo) Create(ctx context.Context, token *models.Token) error {
	query := `
		INSERT INTO api_tokens (id, name, digest, scopes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var expiresAt sql.NullTime
	if token.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *token.ExpiresAt, Valid: true}
	}

	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.Name,
		token.Digest,
		token.Scopes,
		token.CreatedAt,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (r *TokenRepo) GetByID(ctx context.Context, id string) (*models.Token, error) {
	query := fmt.Sprintf("SELECT %s FROM api_tokens WHERE id = ?", tokenColumns)
	return scanToken(r.db.QueryRowContext(ctx, query, id))
}

func (r *TokenRepo) GetByDigest(ctx context.Context, digest string) (*models.Token, error) {
	query := fmt.Sprintf("SELECT %s FROM api_tokens WHERE digest = ?", tokenColumns)
	return scanToken(r.db.QueryRowContext(ctx, query, digest))
}

// List returns all tokens, newest first.
func (r *TokenRepo) List(ctx context.Context) ([]*models.Token, error) {
	query := fmt.Sprintf("SELECT %s FROM api_tokens ORDER BY created_at DESC, id DESC", tokenColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return tokens, nil
}

// Revoke marks the token revoked at the given instant. Revoking an
// already revoked token leaves the original revocation time in place.
// The returned bool reports whether the id matched a row.
func (r *TokenRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	result, err := r.db.ExecContext(ctx,
		"UPDATE api_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL", at, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish "already revoked" (idempotent success) from "no such id".
	var exists int
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM api_tokens WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// TouchLastUsed records the most recent successful validation.
func (r *TokenRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx,
		"UPDATE api_tokens SET last_used_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}
