package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oppboard/oppboard/pkg/models"
)

// SaveResponse upserts the single response row per questionnaire. Repeating a
// draft save with identical content is a harmless overwrite, which makes the
// call idempotent.
func (r *Repo) SaveResponse(ctx context.Context, resp *models.QuestionnaireResponse) (int64, error) {
	if resp == nil {
		return 0, fmt.Errorf("response is nil")
	}
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return 0, fmt.Errorf("marshal answers: %w", err)
	}
	ts := now()
	if resp.Created == 0 {
		resp.Created = ts
	}
	resp.Updated = ts

	var submittedAt any
	if resp.SubmittedAt != nil {
		submittedAt = *resp.SubmittedAt
	}

	_, err = r.conn.Exec(ctx, `INSERT INTO questionnaire_responses (questionnaire_id, respondent_id, answers, status, submitted_at, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(questionnaire_id) DO UPDATE SET answers = excluded.answers, status = excluded.status, submitted_at = excluded.submitted_at, updated = excluded.updated`,
		resp.QuestionnaireID, resp.RespondentID, string(answers), string(resp.Status), submittedAt, resp.Created, resp.Updated)
	if err != nil {
		return 0, err
	}

	row := r.conn.QueryRow(ctx, `SELECT id FROM questionnaire_responses WHERE questionnaire_id = ?`, resp.QuestionnaireID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repo) GetResponseByQuestionnaire(ctx context.Context, questionnaireID int64) (*models.QuestionnaireResponse, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, questionnaire_id, respondent_id, answers, status, submitted_at, created, updated FROM questionnaire_responses WHERE questionnaire_id = ?`, questionnaireID)

	var resp models.QuestionnaireResponse
	var answers, status string
	var submittedAt sql.NullInt64
	if err := row.Scan(&resp.ID, &resp.QuestionnaireID, &resp.RespondentID, &answers, &status, &submittedAt, &resp.Created, &resp.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	resp.Status = models.ResponseStatus(status)
	if submittedAt.Valid {
		resp.SubmittedAt = &submittedAt.Int64
	}
	if err := json.Unmarshal([]byte(answers), &resp.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &resp, nil
}
