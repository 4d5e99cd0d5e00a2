package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oppboard/oppboard/pkg/models"
	"github.com/oppboard/oppboard/pkg/repository"
)

// listCap bounds pull-based notification lists.
const listCap = 50

// Service is the fan-out boundary: it turns committed transition events into
// persisted notifications, pushes them best-effort to live subscribers and
// serves the pull API. Persisting is at-least-once; the dedupe key on the
// notifications table absorbs redelivered events. Push failures are not
// errors.
type Service struct {
	notifications  repository.NotificationRepo
	questionnaires repository.QuestionnaireRepo
	opportunities  repository.OpportunityRepo
	registry       *Registry
	logger         *slog.Logger

	// mu guards the unread cache AND spans the store call of every operation
	// that moves a counter, so a concurrent prime can never observe a row
	// whose cache delta is still pending.
	mu     sync.Mutex
	unread map[int64]int64 // cached unread counters, lazily primed from the store
}

func NewService(nr repository.NotificationRepo, qr repository.QuestionnaireRepo, or repository.OpportunityRepo, registry *Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(logger)
	}
	return &Service{
		notifications:  nr,
		questionnaires: qr,
		opportunities:  or,
		registry:       registry,
		logger:         logger,
		unread:         make(map[int64]int64),
	}
}

// Registry exposes the subscriber registry for the transport layer.
func (s *Service) Registry() *Registry {
	return s.registry
}

// HandleTransition consumes one domain event. It is called synchronously from
// the engagement service; any error it returns is logged there and never
// rolls the transition back.
func (s *Service) HandleTransition(ctx context.Context, ev models.TransitionEvent) error {
	n, err := s.buildNotification(ctx, ev)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	return s.deliver(ctx, n)
}

// buildNotification maps the transition to the single intended recipient and
// the typed payload for that transition.
func (s *Service) buildNotification(ctx context.Context, ev models.TransitionEvent) (*models.Notification, error) {
	opp, err := s.opportunities.GetOpportunity(ctx, ev.OpportunityID)
	if err != nil {
		return nil, fmt.Errorf("load opportunity for event: %w", err)
	}
	if opp == nil {
		// Opportunity deleted between commit and fan-out; nothing to notify.
		return nil, nil
	}

	var (
		recipient int64
		typ       models.NotificationType
		title     string
		message   string
		payload   Payload
	)

	switch ev.To {
	case models.EngagementPending:
		recipient = opp.OwnerID
		typ = models.NotificationOpportunityGrab
		title = "New interest in your opportunity"
		message = fmt.Sprintf("Someone expressed interest in %q.", opp.Title)
		payload = OpportunityGrabPayload{OpportunityID: ev.OpportunityID, EngagementID: ev.EngagementID, RespondentID: ev.RespondentID}

	case models.EngagementQuestionnaireSent:
		recipient = ev.RespondentID
		typ = models.NotificationQuestionnaireSent
		title = "Screening questions received"
		message = fmt.Sprintf("The poster of %q sent you a few questions.", opp.Title)
		p := QuestionnaireSentPayload{OpportunityID: ev.OpportunityID, EngagementID: ev.EngagementID}
		if q, err := s.questionnaires.GetQuestionnaireByEngagement(ctx, ev.EngagementID); err == nil && q != nil {
			p.QuestionnaireID = q.ID
		}
		payload = p

	case models.EngagementQuestionnaireCompleted:
		recipient = opp.OwnerID
		typ = models.NotificationOpportunityUpdate
		title = "Questionnaire answers ready"
		message = fmt.Sprintf("A respondent answered your questions for %q.", opp.Title)
		payload = OpportunityUpdatePayload{OpportunityID: ev.OpportunityID, EngagementID: ev.EngagementID, Update: string(ev.To)}

	case models.EngagementContactShared:
		recipient = ev.RespondentID
		typ = models.NotificationContactShared
		title = "Contact details shared"
		message = fmt.Sprintf("The poster of %q shared their contact details with you.", opp.Title)
		payload = ContactSharedPayload{OpportunityID: ev.OpportunityID, EngagementID: ev.EngagementID}

	case models.EngagementDeclined:
		recipient = ev.RespondentID
		typ = models.NotificationOpportunityUpdate
		title = "Opportunity update"
		message = fmt.Sprintf("Your interest in %q was declined.", opp.Title)
		payload = OpportunityUpdatePayload{OpportunityID: ev.OpportunityID, EngagementID: ev.EngagementID, Update: string(ev.To)}

	default:
		return nil, fmt.Errorf("no notification mapping for state %q", ev.To)
	}

	raw, err := MarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	// Created is stamped by the store at insert.
	engagementID := ev.EngagementID
	return &models.Notification{
		RecipientID:  recipient,
		Type:         typ,
		Title:        title,
		Message:      message,
		Payload:      raw,
		EngagementID: &engagementID,
		ToState:      string(ev.To),
	}, nil
}

// NotifyOpportunityUpdate records a free-form opportunity notification, used
// for visibility changes. These carry no dedupe key and may repeat.
func (s *Service) NotifyOpportunityUpdate(ctx context.Context, opportunityID, recipientID int64, title, message string) error {
	raw, err := MarshalPayload(OpportunityUpdatePayload{OpportunityID: opportunityID, Update: "status_change"})
	if err != nil {
		return err
	}
	n := &models.Notification{
		RecipientID: recipientID,
		Type:        models.NotificationOpportunityUpdate,
		Title:       title,
		Message:     message,
		Payload:     raw,
	}
	return s.deliver(ctx, n)
}

// deliver persists the row (dedupe-aware) and pushes to live subscribers.
func (s *Service) deliver(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, inserted, err := s.notifications.CreateNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	if !inserted {
		// Redelivered event; the recipient already has this row.
		return nil
	}
	n.ID = id

	s.bumpUnread(n.RecipientID, 1)
	s.registry.Publish(n.RecipientID, *n)
	return nil
}

// List returns the recipient's notifications, newest first, capped at 50.
func (s *Service) List(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > listCap {
		limit = listCap
	}
	return s.notifications.ListNotificationsByRecipient(ctx, recipientID, limit)
}

// UnreadCount serves the cached unread counter, priming it from the store on
// first use. The prime runs under the same lock as the counter mutations, so
// it can never land between a store write and its cache delta.
func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.unread[recipientID]; ok {
		return c, nil
	}
	c, err := s.notifications.UnreadCountByRecipient(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	s.unread[recipientID] = c
	return c, nil
}

// MarkRead flips one notification's read flag for its recipient.
func (s *Service) MarkRead(ctx context.Context, id, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.notifications.MarkNotificationRead(ctx, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if changed {
		s.bumpUnread(recipientID, -1)
	}
	return nil
}

// MarkAllRead flips every unread notification for the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.notifications.MarkAllNotificationsRead(ctx, recipientID); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	s.unread[recipientID] = 0
	return nil
}

// Delete removes the recipient's own notification.
func (s *Service) Delete(ctx context.Context, id, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, wasUnread, err := s.notifications.DeleteNotification(ctx, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if deleted && wasUnread {
		s.bumpUnread(recipientID, -1)
	}
	return nil
}

// bumpUnread adjusts the cached counter if present, clamped at zero. The
// caller holds s.mu.
func (s *Service) bumpUnread(recipientID, delta int64) {
	c, ok := s.unread[recipientID]
	if !ok {
		// Not primed yet; the next UnreadCount reads the store.
		return
	}
	c += delta
	if c < 0 {
		c = 0
	}
	s.unread[recipientID] = c
}
