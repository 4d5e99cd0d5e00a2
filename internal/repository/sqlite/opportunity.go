package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oppboard/oppboard/pkg/models"
)

func (r *Repo) CreateOpportunity(ctx context.Context, o *models.Opportunity) (int64, error) {
	if o == nil {
		return 0, fmt.Errorf("opportunity is nil")
	}
	if o.Status == "" {
		o.Status = models.OpportunityActive
	}
	ts := now()

	res, err := r.conn.Exec(ctx, `INSERT INTO opportunities (owner_id, title, type, status, screening_question, contact_email, contact_phone, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OwnerID, o.Title, o.Type, string(o.Status), o.ScreeningQuestion, o.ContactEmail, o.ContactPhone, ts, ts)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (r *Repo) GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, owner_id, title, type, status, screening_question, contact_email, contact_phone, created, updated FROM opportunities WHERE id = ?`, id)

	var o models.Opportunity
	var status string
	if err := row.Scan(&o.ID, &o.OwnerID, &o.Title, &o.Type, &status, &o.ScreeningQuestion, &o.ContactEmail, &o.ContactPhone, &o.Created, &o.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	o.Status = models.OpportunityStatus(status)
	return &o, nil
}

func (r *Repo) ListOpportunitiesByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]models.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT id, owner_id, title, type, status, screening_question, contact_email, contact_phone, created, updated FROM opportunities WHERE owner_id = ? ORDER BY created DESC LIMIT ? OFFSET ?`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Opportunity
	for rows.Next() {
		var o models.Opportunity
		var status string
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.Title, &o.Type, &status, &o.ScreeningQuestion, &o.ContactEmail, &o.ContactPhone, &o.Created, &o.Updated); err != nil {
			return nil, err
		}
		o.Status = models.OpportunityStatus(status)
		out = append(out, o)
	}

	return out, rows.Err()
}

func (r *Repo) UpdateOpportunityStatus(ctx context.Context, id int64, status models.OpportunityStatus) error {
	res, err := r.conn.Exec(ctx, `UPDATE opportunities SET status = ?, updated = ? WHERE id = ?`, string(status), now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("opportunity %d not found", id)
	}
	return nil
}

// DeleteOpportunity removes the row; engagements, questionnaires, responses
// and engagement-linked notifications go with it via foreign key cascades.
func (r *Repo) DeleteOpportunity(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM opportunities WHERE id = ?`, id)
	return err
}
