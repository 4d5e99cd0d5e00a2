package notify

import (
	"encoding/json"
	"fmt"

	"github.com/oppboard/oppboard/pkg/models"
)

// Payload is the structured body of a notification. One variant exists per
// notification type; the variant is chosen at construction and recovered at
// decode time from the notification's type tag, so readers never probe for
// optional fields.
type Payload interface {
	NotificationType() models.NotificationType
}

type ConnectionRequestPayload struct {
	FromUserID int64 `json:"from_user_id"`
}

func (ConnectionRequestPayload) NotificationType() models.NotificationType {
	return models.NotificationConnectionRequest
}

type OpportunityGrabPayload struct {
	OpportunityID int64 `json:"opportunity_id"`
	EngagementID  int64 `json:"engagement_id"`
	RespondentID  int64 `json:"respondent_id"`
}

func (OpportunityGrabPayload) NotificationType() models.NotificationType {
	return models.NotificationOpportunityGrab
}

type QuestionnaireSentPayload struct {
	OpportunityID   int64 `json:"opportunity_id"`
	EngagementID    int64 `json:"engagement_id"`
	QuestionnaireID int64 `json:"questionnaire_id,omitempty"`
}

func (QuestionnaireSentPayload) NotificationType() models.NotificationType {
	return models.NotificationQuestionnaireSent
}

type ContactSharedPayload struct {
	OpportunityID int64 `json:"opportunity_id"`
	EngagementID  int64 `json:"engagement_id"`
}

func (ContactSharedPayload) NotificationType() models.NotificationType {
	return models.NotificationContactShared
}

type OpportunityUpdatePayload struct {
	OpportunityID int64  `json:"opportunity_id"`
	EngagementID  int64  `json:"engagement_id,omitempty"`
	Update        string `json:"update"`
}

func (OpportunityUpdatePayload) NotificationType() models.NotificationType {
	return models.NotificationOpportunityUpdate
}

type SystemPayload struct {
	Note string `json:"note"`
}

func (SystemPayload) NotificationType() models.NotificationType {
	return models.NotificationSystem
}

// MarshalPayload serializes a payload variant for storage and push.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.NotificationType(), err)
	}
	return b, nil
}

// DecodePayload recovers the typed variant from a stored notification.
func DecodePayload(t models.NotificationType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case models.NotificationConnectionRequest:
		p = &ConnectionRequestPayload{}
	case models.NotificationOpportunityGrab:
		p = &OpportunityGrabPayload{}
	case models.NotificationQuestionnaireSent:
		p = &QuestionnaireSentPayload{}
	case models.NotificationContactShared:
		p = &ContactSharedPayload{}
	case models.NotificationOpportunityUpdate:
		p = &OpportunityUpdatePayload{}
	case models.NotificationSystem:
		p = &SystemPayload{}
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
