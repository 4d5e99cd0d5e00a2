package repository

import (
	"context"

	"github.com/oppboard/oppboard/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type OpportunityRepo interface {
	CreateOpportunity(ctx context.Context, o *models.Opportunity) (int64, error)
	GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error)
	ListOpportunitiesByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]models.Opportunity, error)
	UpdateOpportunityStatus(ctx context.Context, id int64, status models.OpportunityStatus) error
	// DeleteOpportunity removes the opportunity and cascades engagements,
	// questionnaires, responses and workflow notifications that reference it.
	DeleteOpportunity(ctx context.Context, id int64) error
}

type EngagementRepo interface {
	// CreateEngagement inserts a new pending engagement. The
	// (opportunity, respondent) pair is unique; a second insert for the same
	// pair fails with engage.ErrDuplicateEngagement.
	CreateEngagement(ctx context.Context, e *models.Engagement) (int64, error)
	GetEngagement(ctx context.Context, id int64) (*models.Engagement, error)
	GetEngagementByPair(ctx context.Context, opportunityID, respondentID int64) (*models.Engagement, error)
	ListEngagementsByOpportunity(ctx context.Context, opportunityID int64) ([]models.Engagement, error)
	ListEngagementsByRespondent(ctx context.Context, respondentID int64, limit, offset int) ([]models.Engagement, error)
	// UpdateEngagementStatus moves the row to the given status iff the stored
	// version still matches; a lost race fails with engage.ErrConflictRetry.
	UpdateEngagementStatus(ctx context.Context, id, version int64, to models.EngagementStatus) error
}

type QuestionnaireRepo interface {
	CreateQuestionnaire(ctx context.Context, q *models.Questionnaire) (int64, error)
	GetQuestionnaire(ctx context.Context, id int64) (*models.Questionnaire, error)
	GetQuestionnaireByEngagement(ctx context.Context, engagementID int64) (*models.Questionnaire, error)
	UpdateQuestionnaireStatus(ctx context.Context, id int64, status models.QuestionnaireStatus) error
	// DeleteQuestionnaire removes the questionnaire and its response.
	DeleteQuestionnaire(ctx context.Context, id int64) error
}

type ResponseRepo interface {
	// SaveResponse upserts the single response row for a questionnaire.
	SaveResponse(ctx context.Context, r *models.QuestionnaireResponse) (int64, error)
	GetResponseByQuestionnaire(ctx context.Context, questionnaireID int64) (*models.QuestionnaireResponse, error)
}

type NotificationRepo interface {
	// CreateNotification inserts the row unless another row with the same
	// (recipient, engagement, to_state) dedupe key already exists. The bool
	// reports whether a row was actually inserted.
	CreateNotification(ctx context.Context, n *models.Notification) (int64, bool, error)
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	ListNotificationsByRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)
	UnreadCountByRecipient(ctx context.Context, recipientID int64) (int64, error)
	// MarkNotificationRead flips the read flag for the recipient's own row.
	// The bool reports whether the row existed and was previously unread.
	MarkNotificationRead(ctx context.Context, id, recipientID int64) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error)
	// DeleteNotification removes the recipient's own row. deleted reports
	// whether a row was removed, wasUnread whether it was unread at deletion.
	DeleteNotification(ctx context.Context, id, recipientID int64) (deleted, wasUnread bool, err error)
}
