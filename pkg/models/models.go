package models

import "encoding/json"

// Domain models matching the database schema in db/migrations/0001_init.sql

type User struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name" validate:"required"`
	Email        string `json:"email" db:"email" validate:"required,email"`
	Updated      int64  `json:"updated" db:"updated"`
	PasswordHash string `json:"password_hash,omitempty" db:"password_hash"`
}

// OpportunityStatus is the visibility state of a posting. It is independent
// of any engagement lifecycle: reopening a closed opportunity never resets
// terminal engagements.
type OpportunityStatus string

const (
	OpportunityActive OpportunityStatus = "active"
	OpportunityClosed OpportunityStatus = "closed"
	OpportunityDraft  OpportunityStatus = "draft"
)

type Opportunity struct {
	ID                int64             `json:"id" db:"id"`
	OwnerID           int64             `json:"owner_id" db:"owner_id"`
	Title             string            `json:"title" db:"title" validate:"required"`
	Type              string            `json:"type" db:"type"`
	Status            OpportunityStatus `json:"status" db:"status"`
	ScreeningQuestion string            `json:"screening_question,omitempty" db:"screening_question"`
	ContactEmail      string            `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone      string            `json:"contact_phone,omitempty" db:"contact_phone"`
	Created           int64             `json:"created" db:"created"`
	Updated           int64             `json:"updated" db:"updated"`
}

// EngagementStatus enumerates the lifecycle states of one respondent's
// interest in one opportunity. contact_shared and declined are terminal.
type EngagementStatus string

const (
	EngagementPending                EngagementStatus = "pending"
	EngagementQuestionnaireSent      EngagementStatus = "questionnaire_sent"
	EngagementQuestionnaireCompleted EngagementStatus = "questionnaire_completed"
	EngagementContactShared          EngagementStatus = "contact_shared"
	EngagementDeclined               EngagementStatus = "declined"
)

// Engagement is the record of one (opportunity, respondent) pair. At most one
// row exists per pair; the version column backs optimistic concurrency on
// status updates.
type Engagement struct {
	ID            int64            `json:"id" db:"id"`
	OpportunityID int64            `json:"opportunity_id" db:"opportunity_id"`
	RespondentID  int64            `json:"respondent_id" db:"respondent_id"`
	Status        EngagementStatus `json:"status" db:"status"`
	Version       int64            `json:"version" db:"version"`
	Created       int64            `json:"created" db:"created"`
	Updated       int64            `json:"updated" db:"updated"`
}

type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionYesNo          QuestionType = "yes_no"
)

// Question is one entry of a frozen question set. The id is assigned when the
// questionnaire is sent and is the key answers reference afterwards.
type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
	Options  []string     `json:"options,omitempty"`
}

type QuestionnaireStatus string

const (
	QuestionnaireSent      QuestionnaireStatus = "sent"
	QuestionnaireCompleted QuestionnaireStatus = "completed"
	QuestionnaireExpired   QuestionnaireStatus = "expired"
)

// Questionnaire is a frozen set of screening questions attached to a single
// engagement. Questions are immutable after send.
type Questionnaire struct {
	ID            int64               `json:"id" db:"id"`
	EngagementID  int64               `json:"engagement_id" db:"engagement_id"`
	OpportunityID int64               `json:"opportunity_id" db:"opportunity_id"`
	SenderID      int64               `json:"sender_id" db:"sender_id"`
	RecipientID   int64               `json:"recipient_id" db:"recipient_id"`
	Status        QuestionnaireStatus `json:"status" db:"status"`
	Questions     []Question          `json:"questions"`
	ExpiresAt     int64               `json:"expires_at" db:"expires_at"`
	Created       int64               `json:"created" db:"created"`
	Updated       int64               `json:"updated" db:"updated"`
}

type ResponseStatus string

const (
	ResponseDraft     ResponseStatus = "draft"
	ResponseSubmitted ResponseStatus = "submitted"
)

// QuestionnaireResponse holds a respondent's answers keyed by question id.
// Drafts may be re-saved; a submitted response is final and is the only form
// visible to the poster.
type QuestionnaireResponse struct {
	ID              int64             `json:"id" db:"id"`
	QuestionnaireID int64             `json:"questionnaire_id" db:"questionnaire_id"`
	RespondentID    int64             `json:"respondent_id" db:"respondent_id"`
	Answers         map[string]string `json:"answers"`
	Status          ResponseStatus    `json:"status" db:"status"`
	SubmittedAt     *int64            `json:"submitted_at,omitempty" db:"submitted_at"`
	Created         int64             `json:"created" db:"created"`
	Updated         int64             `json:"updated" db:"updated"`
}

type NotificationType string

const (
	NotificationConnectionRequest NotificationType = "connection_request"
	NotificationOpportunityGrab   NotificationType = "opportunity_grab"
	NotificationQuestionnaireSent NotificationType = "questionnaire_sent"
	NotificationContactShared     NotificationType = "contact_shared"
	NotificationOpportunityUpdate NotificationType = "opportunity_update"
	NotificationSystem            NotificationType = "system"
)

// Notification is one delivery-independent record per (event, recipient).
// EngagementID and ToState form the dedupe key for workflow notifications;
// both are unset for system notifications.
type Notification struct {
	ID           int64            `json:"id" db:"id"`
	RecipientID  int64            `json:"recipient_id" db:"recipient_id"`
	Type         NotificationType `json:"type" db:"type"`
	Title        string           `json:"title" db:"title"`
	Message      string           `json:"message" db:"message"`
	Payload      json.RawMessage  `json:"payload,omitempty" db:"payload"`
	EngagementID *int64           `json:"engagement_id,omitempty" db:"engagement_id"`
	ToState      string           `json:"to_state,omitempty" db:"to_state"`
	IsRead       bool             `json:"is_read" db:"is_read"`
	Created      int64            `json:"created" db:"created"`
}

// TransitionEvent is the domain event emitted after every committed
// engagement transition. The timestamp is the commit time in unix millis.
type TransitionEvent struct {
	EngagementID  int64            `json:"engagement_id"`
	OpportunityID int64            `json:"opportunity_id"`
	RespondentID  int64            `json:"respondent_id"`
	From          EngagementStatus `json:"from_state"`
	To            EngagementStatus `json:"to_state"`
	ActorID       int64            `json:"actor_id"`
	Timestamp     int64            `json:"timestamp"`
}
