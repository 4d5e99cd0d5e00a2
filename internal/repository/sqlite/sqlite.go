package sqlite

import (
	"strings"
	"time"

	"log/slog"

	"github.com/oppboard/oppboard/internal/db"
	"github.com/oppboard/oppboard/pkg/repository"
)

// Repo implements repository interfaces using the internal DB wrapper.
type Repo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure Repo implements the public interfaces.
var _ repository.UserRepo = (*Repo)(nil)
var _ repository.OpportunityRepo = (*Repo)(nil)
var _ repository.EngagementRepo = (*Repo)(nil)
var _ repository.QuestionnaireRepo = (*Repo)(nil)
var _ repository.ResponseRepo = (*Repo)(nil)
var _ repository.NotificationRepo = (*Repo)(nil)

func New(conn *db.DB, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{conn: conn, logger: logger}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

// isUniqueViolation matches SQLite unique-constraint failures from
// modernc.org/sqlite, which surface as plain errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
