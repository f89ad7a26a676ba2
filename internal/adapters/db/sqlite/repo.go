package sqlite

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Repo provides a base for Squirrel-based repositories.
type Repo struct {
	DB *sql.DB
	SQ sq.StatementBuilderType
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db, SQ: sq.StatementBuilder}
}

// Timestamps are stored as RFC3339 UTC text.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
