package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gantz-ai/gantz/internal/db"
	"github.com/gantz-ai/gantz/pkg/models"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// RunFilter narrows List results. Zero values mean "no constraint".
type RunFilter struct {
	Tool  string
	State string
	Limit int
}

const runColumns = "id, token_id, tool_name, tool_version, state, duration_ms, cached, error_kind, error_message, created_at"

func scanRun(row interface{ Scan(...interface{}) error }) (*models.Run, error) {
	var run models.Run
	var errorKind, errorMessage sql.NullString

	err := row.Scan(
		&run.ID,
		&run.TokenID,
		&run.ToolName,
		&run.ToolVersion,
		&run.State,
		&run.DurationMS,
		&run.Cached,
		&errorKind,
		&errorMessage,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorKind.Valid {
		run.ErrorKind = &errorKind.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	return &run, nil
}

func (r *RunRepo) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, token_id, tool_name, tool_version, state, duration_ms, cached, error_kind, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorKind, errorMessage sql.NullString
	if run.ErrorKind != nil {
		errorKind = sql.NullString{String: *run.ErrorKind, Valid: true}
	}
	if run.ErrorMessage != nil {
		errorMessage = sql.NullString{String: *run.ErrorMessage, Valid: true}
	}

	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.TokenID,
		run.ToolName,
		run.ToolVersion,
		run.State,
		run.DurationMS,
		run.Cached,
		errorKind,
		errorMessage,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *RunRepo) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := fmt.Sprintf("SELECT %s FROM runs WHERE id = ?", runColumns)
	return scanRun(r.db.QueryRowContext(ctx, query, id))
}

// List returns runs newest first, optionally filtered by tool and state.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]*models.Run, error) {
	query := fmt.Sprintf("SELECT %s FROM runs", runColumns)
	var args []interface{}
	var where []string

	if filter.Tool != "" {
		where = append(where, "tool_name = ?")
		args = append(args, filter.Tool)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	query += " ORDER BY id DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteOlderThan removes run records created before the cutoff and
// returns how many were deleted. Used by the retention sweep.
func (r *RunRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	result, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	return result.RowsAffected()
}
