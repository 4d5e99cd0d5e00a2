package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oppboard/oppboard/pkg/models"
	"github.com/oppboard/oppboard/pkg/repository"
)

// maxConflictRetries bounds internal retries after an optimistic-concurrency
// loss before the conflict is surfaced to the caller.
const maxConflictRetries = 3

// Notifier receives the domain event for every committed transition. It is
// called synchronously before the transition call returns; its errors are
// logged and never roll the transition back.
type Notifier interface {
	HandleTransition(ctx context.Context, ev models.TransitionEvent) error
}

// Service owns the engagement lifecycle: creation, transition validation,
// persistence and event emission.
type Service struct {
	engagements   repository.EngagementRepo
	opportunities repository.OpportunityRepo
	notifier      Notifier
	logger        *slog.Logger
}

func NewService(er repository.EngagementRepo, or repository.OpportunityRepo, n Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engagements: er, opportunities: or, notifier: n, logger: logger}
}

// Grab creates the pending engagement for (opportunity, respondent). The
// uniqueness of the pair is enforced by the store's unique constraint, so the
// check and the insert are one atomic operation.
func (s *Service) Grab(ctx context.Context, opportunityID, respondentID int64) (*models.Engagement, error) {
	opp, err := s.opportunities.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("load opportunity: %w", err)
	}
	if opp == nil {
		return nil, ErrNotFound
	}
	if opp.Status != models.OpportunityActive {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("opportunity is %s, not accepting interest", opp.Status)}}
	}
	if opp.OwnerID == respondentID {
		return nil, &ValidationError{Violations: []string{"cannot express interest in your own opportunity"}}
	}

	e := &models.Engagement{
		OpportunityID: opportunityID,
		RespondentID:  respondentID,
		Status:        models.EngagementPending,
	}
	id, err := s.engagements.CreateEngagement(ctx, e)
	if err != nil {
		return nil, err
	}
	e.ID = id

	s.emit(ctx, models.TransitionEvent{
		EngagementID:  id,
		OpportunityID: opportunityID,
		RespondentID:  respondentID,
		From:          "",
		To:            models.EngagementPending,
		ActorID:       respondentID,
		Timestamp:     time.Now().UTC().UnixMilli(),
	})

	return e, nil
}

// Apply validates and commits a single transition on an engagement. A lost
// optimistic-concurrency race is retried against the re-read state up to
// maxConflictRetries times; every other failure is surfaced as-is.
func (s *Service) Apply(ctx context.Context, engagementID int64, action Action, actorID int64) (*models.Engagement, error) {
	var lastErr error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		e, err := s.engagements.GetEngagement(ctx, engagementID)
		if err != nil {
			return nil, fmt.Errorf("load engagement: %w", err)
		}
		if e == nil {
			return nil, ErrNotFound
		}

		opp, err := s.opportunities.GetOpportunity(ctx, e.OpportunityID)
		if err != nil {
			return nil, fmt.Errorf("load opportunity: %w", err)
		}
		if opp == nil {
			return nil, ErrNotFound
		}

		if err := authorize(action, actorID, opp.OwnerID, e.RespondentID); err != nil {
			return nil, err
		}

		to, err := Next(e.Status, action)
		if err != nil {
			return nil, err
		}

		if err := s.engagements.UpdateEngagementStatus(ctx, e.ID, e.Version, to); err != nil {
			if errors.Is(err, ErrConflictRetry) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("persist transition: %w", err)
		}

		ev := models.TransitionEvent{
			EngagementID:  e.ID,
			OpportunityID: e.OpportunityID,
			RespondentID:  e.RespondentID,
			From:          e.Status,
			To:            to,
			ActorID:       actorID,
			Timestamp:     time.Now().UTC().UnixMilli(),
		}
		s.emit(ctx, ev)

		e.Status = to
		e.Version++
		e.Updated = ev.Timestamp
		return e, nil
	}

	return nil, lastErr
}

// authorize enforces who may perform which action. share_contact,
// send_questionnaire and decline are poster actions; respondent_submit is the
// respondent's.
func authorize(action Action, actorID, ownerID, respondentID int64) error {
	switch action {
	case ActionRespondentSubmit:
		if actorID != respondentID {
			return ErrUnauthorized
		}
	case ActionShareContact, ActionSendQuestionnaire, ActionDecline:
		if actorID != ownerID {
			return ErrUnauthorized
		}
	default:
		return &ValidationError{Violations: []string{fmt.Sprintf("unknown action %q", action)}}
	}
	return nil
}

// emit hands the committed event to the notifier. Notification creation is a
// side effect; its failure must never fail the transition.
func (s *Service) emit(ctx context.Context, ev models.TransitionEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.HandleTransition(ctx, ev); err != nil {
		s.logger.Error("notification fan-out failed",
			slog.Int64("engagement_id", ev.EngagementID),
			slog.String("to_state", string(ev.To)),
			slog.Any("err", err),
		)
	}
}
