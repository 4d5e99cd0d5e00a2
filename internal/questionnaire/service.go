package questionnaire

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qri-io/jsonschema"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/pkg/models"
	"github.com/oppboard/oppboard/pkg/repository"
)

// DefaultExpiryDays is applied when the poster does not choose a deadline.
const DefaultExpiryDays = 7

// Service owns the questionnaire lifecycle: freezing a question set onto an
// engagement, collecting draft answers and accepting the final submission.
// Engagement transitions are driven through the engagement service so the
// central state machine stays the single authority.
type Service struct {
	questionnaires repository.QuestionnaireRepo
	responses      repository.ResponseRepo
	engagements    repository.EngagementRepo
	workflow       *engage.Service
	schema         *jsonschema.Schema
	logger         *slog.Logger
	now            func() time.Time
}

func NewService(qr repository.QuestionnaireRepo, rr repository.ResponseRepo, er repository.EngagementRepo, workflow *engage.Service, logger *slog.Logger) (*Service, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		questionnaires: qr,
		responses:      rr,
		engagements:    er,
		workflow:       workflow,
		schema:         schema,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Send freezes the question set onto the engagement and drives the
// send_questionnaire transition. Question ids are assigned here; answers
// reference them afterwards.
func (s *Service) Send(ctx context.Context, engagementID, actorID int64, questions []models.Question, expiresInDays int) (*models.Questionnaire, error) {
	if err := s.validateQuestions(ctx, questions); err != nil {
		return nil, err
	}
	if expiresInDays <= 0 {
		expiresInDays = DefaultExpiryDays
	}

	e, err := s.engagements.GetEngagement(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("load engagement: %w", err)
	}
	if e == nil {
		return nil, engage.ErrNotFound
	}

	existing, err := s.questionnaires.GetQuestionnaireByEngagement(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("check existing questionnaire: %w", err)
	}
	if existing != nil {
		return nil, &engage.ValidationError{Violations: []string{"a questionnaire was already sent for this engagement"}}
	}

	frozen := make([]models.Question, len(questions))
	for i, q := range questions {
		q.ID = uuid.NewString()
		q.Text = strings.TrimSpace(q.Text)
		frozen[i] = q
	}

	now := s.now().UTC().UnixMilli()
	q := &models.Questionnaire{
		EngagementID:  engagementID,
		OpportunityID: e.OpportunityID,
		SenderID:      actorID,
		RecipientID:   e.RespondentID,
		Status:        models.QuestionnaireSent,
		Questions:     frozen,
		ExpiresAt:     s.now().UTC().Add(time.Duration(expiresInDays) * 24 * time.Hour).UnixMilli(),
		Created:       now,
		Updated:       now,
	}
	id, err := s.questionnaires.CreateQuestionnaire(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create questionnaire: %w", err)
	}
	q.ID = id

	// The transition carries the authorization and legality checks. If it is
	// refused the freshly created questionnaire must not survive, or it would
	// block the owner's legitimate send via the one-per-engagement rule.
	if _, err := s.workflow.Apply(ctx, engagementID, engage.ActionSendQuestionnaire, actorID); err != nil {
		if delErr := s.questionnaires.DeleteQuestionnaire(ctx, id); delErr != nil {
			s.logger.Error("remove refused questionnaire", slog.Int64("questionnaire_id", id), slog.Any("err", delErr))
		}
		return nil, err
	}

	return q, nil
}

// Get returns a questionnaire for either participant. Anyone else is refused.
func (s *Service) Get(ctx context.Context, questionnaireID, actorID int64) (*models.Questionnaire, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("load questionnaire: %w", err)
	}
	if q == nil {
		return nil, engage.ErrNotFound
	}
	if actorID != q.SenderID && actorID != q.RecipientID {
		return nil, engage.ErrUnauthorized
	}
	return q, nil
}

// GetResponse returns the response subject to visibility rules: the
// respondent always sees their own answers, the poster only after submission.
func (s *Service) GetResponse(ctx context.Context, questionnaireID, actorID int64) (*models.QuestionnaireResponse, error) {
	q, err := s.Get(ctx, questionnaireID, actorID)
	if err != nil {
		return nil, err
	}
	r, err := s.responses.GetResponseByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	if r == nil {
		return nil, engage.ErrNotFound
	}
	if actorID == q.SenderID && r.Status != models.ResponseSubmitted {
		return nil, engage.ErrNotFound
	}
	return r, nil
}

// SaveDraft upserts a partial answer set. Repeating the call with the same
// answers is a no-op; drafts never move the engagement.
func (s *Service) SaveDraft(ctx context.Context, questionnaireID, respondentID int64, answers map[string]string) (*models.QuestionnaireResponse, error) {
	q, existing, err := s.loadForRespondent(ctx, questionnaireID, respondentID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.ResponseSubmitted {
		return nil, &engage.ValidationError{Violations: []string{"response was already submitted"}}
	}
	if err := s.checkAnswerKeys(q, answers); err != nil {
		return nil, err
	}

	now := s.now().UTC().UnixMilli()
	r := &models.QuestionnaireResponse{
		QuestionnaireID: questionnaireID,
		RespondentID:    respondentID,
		Answers:         answers,
		Status:          models.ResponseDraft,
		Updated:         now,
	}
	if existing != nil {
		r.ID = existing.ID
		r.Created = existing.Created
	} else {
		r.Created = now
	}
	id, err := s.responses.SaveResponse(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	r.ID = id
	return r, nil
}

// Submit validates the complete answer set and finalizes it. Success drives
// the respondent_submit transition; any validation failure leaves both the
// response and the engagement untouched. A retry after a lost transition race
// picks up where the previous attempt stopped.
func (s *Service) Submit(ctx context.Context, questionnaireID, respondentID int64, answers map[string]string) (*models.QuestionnaireResponse, error) {
	q, existing, err := s.loadForRespondent(ctx, questionnaireID, respondentID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.ResponseSubmitted {
		return s.resumeSubmit(ctx, q, existing, respondentID)
	}

	// Expiry is evaluated lazily right here; there is no background sweep.
	if s.now().UTC().UnixMilli() > q.ExpiresAt {
		if q.Status == models.QuestionnaireSent {
			if err := s.questionnaires.UpdateQuestionnaireStatus(ctx, q.ID, models.QuestionnaireExpired); err != nil {
				s.logger.Error("mark questionnaire expired", slog.Int64("questionnaire_id", q.ID), slog.Any("err", err))
			}
		}
		return nil, engage.ErrExpired
	}

	if err := s.validateAnswers(q, answers); err != nil {
		return nil, err
	}

	now := s.now().UTC().UnixMilli()
	r := &models.QuestionnaireResponse{
		QuestionnaireID: questionnaireID,
		RespondentID:    respondentID,
		Answers:         answers,
		Status:          models.ResponseSubmitted,
		SubmittedAt:     &now,
		Updated:         now,
	}
	if existing != nil {
		r.ID = existing.ID
		r.Created = existing.Created
	} else {
		r.Created = now
	}
	id, err := s.responses.SaveResponse(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	r.ID = id

	if err := s.questionnaires.UpdateQuestionnaireStatus(ctx, q.ID, models.QuestionnaireCompleted); err != nil {
		return nil, fmt.Errorf("complete questionnaire: %w", err)
	}
	if _, err := s.workflow.Apply(ctx, q.EngagementID, engage.ActionRespondentSubmit, respondentID); err != nil {
		return nil, err
	}

	return r, nil
}

// resumeSubmit handles a Submit retry after the response was persisted but a
// prior attempt lost the transition. While the engagement is still in
// questionnaire_sent the retry re-drives it; once the engagement has moved,
// resubmission is refused.
func (s *Service) resumeSubmit(ctx context.Context, q *models.Questionnaire, r *models.QuestionnaireResponse, respondentID int64) (*models.QuestionnaireResponse, error) {
	e, err := s.engagements.GetEngagement(ctx, q.EngagementID)
	if err != nil {
		return nil, fmt.Errorf("load engagement: %w", err)
	}
	if e == nil || e.Status != models.EngagementQuestionnaireSent {
		return nil, &engage.ValidationError{Violations: []string{"response was already submitted"}}
	}

	if q.Status == models.QuestionnaireSent {
		if err := s.questionnaires.UpdateQuestionnaireStatus(ctx, q.ID, models.QuestionnaireCompleted); err != nil {
			return nil, fmt.Errorf("complete questionnaire: %w", err)
		}
	}
	if _, err := s.workflow.Apply(ctx, q.EngagementID, engage.ActionRespondentSubmit, respondentID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) loadForRespondent(ctx context.Context, questionnaireID, respondentID int64) (*models.Questionnaire, *models.QuestionnaireResponse, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, nil, fmt.Errorf("load questionnaire: %w", err)
	}
	if q == nil {
		return nil, nil, engage.ErrNotFound
	}
	if q.RecipientID != respondentID {
		return nil, nil, engage.ErrUnauthorized
	}
	r, err := s.responses.GetResponseByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, nil, fmt.Errorf("load response: %w", err)
	}
	return q, r, nil
}

// checkAnswerKeys rejects answers that reference question ids outside the
// frozen set. Used for drafts, where completeness is not yet required.
func (s *Service) checkAnswerKeys(q *models.Questionnaire, answers map[string]string) error {
	known := make(map[string]bool, len(q.Questions))
	for _, qq := range q.Questions {
		known[qq.ID] = true
	}
	var violations []string
	for id := range answers {
		if !known[id] {
			violations = append(violations, fmt.Sprintf("answer references unknown question %q", id))
		}
	}
	if len(violations) > 0 {
		return &engage.ValidationError{Violations: violations}
	}
	return nil
}

// validateAnswers enforces the submission rules: every required question
// answered, choice answers drawn from the allowed set, no stray keys. All
// violations are reported together.
func (s *Service) validateAnswers(q *models.Questionnaire, answers map[string]string) error {
	var violations []string

	known := make(map[string]bool, len(q.Questions))
	for _, qq := range q.Questions {
		known[qq.ID] = true
		answer, ok := answers[qq.ID]
		answer = strings.TrimSpace(answer)
		if qq.Required && (!ok || answer == "") {
			violations = append(violations, fmt.Sprintf("question %q requires an answer", qq.Text))
			continue
		}
		if !ok || answer == "" {
			continue
		}
		switch qq.Type {
		case models.QuestionMultipleChoice:
			if !containsOption(qq.Options, answer) {
				violations = append(violations, fmt.Sprintf("answer to %q must be one of the listed options", qq.Text))
			}
		case models.QuestionYesNo:
			if answer != "yes" && answer != "no" {
				violations = append(violations, fmt.Sprintf("answer to %q must be yes or no", qq.Text))
			}
		}
	}
	for id := range answers {
		if !known[id] {
			violations = append(violations, fmt.Sprintf("answer references unknown question %q", id))
		}
	}

	if len(violations) > 0 {
		return &engage.ValidationError{Violations: violations}
	}
	return nil
}

func containsOption(options []string, answer string) bool {
	for _, opt := range options {
		if opt == answer {
			return true
		}
	}
	return false
}
