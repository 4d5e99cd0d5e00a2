package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oppboard/oppboard/pkg/models"
)

func (r *Repo) CreateQuestionnaire(ctx context.Context, q *models.Questionnaire) (int64, error) {
	if q == nil {
		return 0, fmt.Errorf("questionnaire is nil")
	}
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return 0, fmt.Errorf("marshal questions: %w", err)
	}
	ts := now()
	if q.Created == 0 {
		q.Created = ts
	}
	if q.Updated == 0 {
		q.Updated = ts
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO questionnaires (engagement_id, opportunity_id, sender_id, recipient_id, status, questions, expires_at, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.EngagementID, q.OpportunityID, q.SenderID, q.RecipientID, string(q.Status), string(questions), q.ExpiresAt, q.Created, q.Updated)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (r *Repo) GetQuestionnaire(ctx context.Context, id int64) (*models.Questionnaire, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, engagement_id, opportunity_id, sender_id, recipient_id, status, questions, expires_at, created, updated FROM questionnaires WHERE id = ?`, id)
	return scanQuestionnaire(row)
}

func (r *Repo) GetQuestionnaireByEngagement(ctx context.Context, engagementID int64) (*models.Questionnaire, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, engagement_id, opportunity_id, sender_id, recipient_id, status, questions, expires_at, created, updated FROM questionnaires WHERE engagement_id = ?`, engagementID)
	return scanQuestionnaire(row)
}

func (r *Repo) UpdateQuestionnaireStatus(ctx context.Context, id int64, status models.QuestionnaireStatus) error {
	res, err := r.conn.Exec(ctx, `UPDATE questionnaires SET status = ?, updated = ? WHERE id = ?`, string(status), now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("questionnaire %d not found", id)
	}
	return nil
}

// DeleteQuestionnaire removes the row; the response cascades with it.
func (r *Repo) DeleteQuestionnaire(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM questionnaires WHERE id = ?`, id)
	return err
}

func scanQuestionnaire(row *sql.Row) (*models.Questionnaire, error) {
	var q models.Questionnaire
	var status, questions string
	if err := row.Scan(&q.ID, &q.EngagementID, &q.OpportunityID, &q.SenderID, &q.RecipientID, &status, &questions, &q.ExpiresAt, &q.Created, &q.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	q.Status = models.QuestionnaireStatus(status)
	if err := json.Unmarshal([]byte(questions), &q.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &q, nil
}
