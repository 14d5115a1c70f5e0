package repositories

import (
	"database/sql"

	"github.com/gantz-ai/gantz/internal/db"
)

type Repositories struct {
	Tokens *TokenRepo
	Runs   *RunRepo
	db     db.Database // Store reference to database for transactions
}

func New(database db.Database) *Repositories {
	conn := database.Conn()

	return &Repositories{
		Tokens: NewTokenRepo(conn),
		Runs:   NewRunRepo(conn),
		db:     database,
	}
}

// BeginTx starts a database transaction
func (r *Repositories) BeginTx() (*sql.Tx, error) {
	return r.db.Conn().Begin()
}
