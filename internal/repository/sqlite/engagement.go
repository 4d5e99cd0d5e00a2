package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/pkg/models"
)

func (r *Repo) CreateEngagement(ctx context.Context, e *models.Engagement) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("engagement is nil")
	}
	if e.Status == "" {
		e.Status = models.EngagementPending
	}
	ts := now()

	res, err := r.conn.Exec(ctx, `INSERT INTO engagements (opportunity_id, respondent_id, status, version, created, updated) VALUES (?, ?, ?, 1, ?, ?)`,
		e.OpportunityID, e.RespondentID, string(e.Status), ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, engage.ErrDuplicateEngagement
		}
		return 0, err
	}

	e.Version = 1
	e.Created = ts
	e.Updated = ts
	return res.LastInsertId()
}

func (r *Repo) GetEngagement(ctx context.Context, id int64) (*models.Engagement, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, opportunity_id, respondent_id, status, version, created, updated FROM engagements WHERE id = ?`, id)
	return scanEngagement(row)
}

func (r *Repo) GetEngagementByPair(ctx context.Context, opportunityID, respondentID int64) (*models.Engagement, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, opportunity_id, respondent_id, status, version, created, updated FROM engagements WHERE opportunity_id = ? AND respondent_id = ?`, opportunityID, respondentID)
	return scanEngagement(row)
}

func (r *Repo) ListEngagementsByOpportunity(ctx context.Context, opportunityID int64) ([]models.Engagement, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, opportunity_id, respondent_id, status, version, created, updated FROM engagements WHERE opportunity_id = ? ORDER BY created ASC`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEngagements(rows)
}

func (r *Repo) ListEngagementsByRespondent(ctx context.Context, respondentID int64, limit, offset int) ([]models.Engagement, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT id, opportunity_id, respondent_id, status, version, created, updated FROM engagements WHERE respondent_id = ? ORDER BY created DESC LIMIT ? OFFSET ?`, respondentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEngagements(rows)
}

// UpdateEngagementStatus commits one transition guarded by the version
// column. Losing a concurrent write race affects zero rows and is reported as
// engage.ErrConflictRetry for the service to retry.
func (r *Repo) UpdateEngagementStatus(ctx context.Context, id, version int64, to models.EngagementStatus) error {
	res, err := r.conn.Exec(ctx, `UPDATE engagements SET status = ?, version = version + 1, updated = ? WHERE id = ? AND version = ?`,
		string(to), now(), id, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engage.ErrConflictRetry
	}
	return nil
}

func scanEngagement(row *sql.Row) (*models.Engagement, error) {
	var e models.Engagement
	var status string
	if err := row.Scan(&e.ID, &e.OpportunityID, &e.RespondentID, &status, &e.Version, &e.Created, &e.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.Status = models.EngagementStatus(status)
	return &e, nil
}

func collectEngagements(rows *sql.Rows) ([]models.Engagement, error) {
	var out []models.Engagement
	for rows.Next() {
		var e models.Engagement
		var status string
		if err := rows.Scan(&e.ID, &e.OpportunityID, &e.RespondentID, &status, &e.Version, &e.Created, &e.Updated); err != nil {
			return nil, err
		}
		e.Status = models.EngagementStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
