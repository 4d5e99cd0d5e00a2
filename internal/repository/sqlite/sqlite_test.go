package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	migrations "github.com/oppboard/oppboard/db"
	"github.com/oppboard/oppboard/internal/db"
	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/internal/repository/sqlite"
	"github.com/oppboard/oppboard/pkg/models"
)

// setupRepo opens a private in-memory database, runs the embedded migrations
// and returns a repo backed by it. The database lives until the cleanup closes
// the last connection.
func setupRepo(t *testing.T) *sqlite.Repo {
	t.Helper()
	ctx := context.Background()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := db.New(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	if err := db.Migrate(ctx, conn, migrations.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlite.New(conn, nil)
}

func seedPair(t *testing.T, repo *sqlite.Repo) (ownerID, respondentID, oppID int64) {
	t.Helper()
	ctx := context.Background()

	ownerID, err := repo.CreateUser(ctx, &models.User{Name: "Poster", Email: "poster@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	respondentID, err = repo.CreateUser(ctx, &models.User{Name: "Respondent", Email: "respondent@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create respondent: %v", err)
	}
	oppID, err = repo.CreateOpportunity(ctx, &models.Opportunity{
		OwnerID:      ownerID,
		Title:        "Platform migration",
		Status:       models.OpportunityActive,
		ContactEmail: "poster@example.com",
	})
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
	return ownerID, respondentID, oppID
}

func TestCreateEngagementDuplicateRejected(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	_, respondentID, oppID := seedPair(t, repo)

	if _, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID})
	if !errors.Is(err, engage.ErrDuplicateEngagement) {
		t.Fatalf("expected ErrDuplicateEngagement, got %v", err)
	}
}

func TestUpdateEngagementStatusVersionGuard(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	_, respondentID, oppID := seedPair(t, repo)

	id, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.UpdateEngagementStatus(ctx, id, 1, models.EngagementQuestionnaireSent); err != nil {
		t.Fatalf("update with current version: %v", err)
	}

	// the same version loses the race now
	err = repo.UpdateEngagementStatus(ctx, id, 1, models.EngagementDeclined)
	if !errors.Is(err, engage.ErrConflictRetry) {
		t.Fatalf("expected ErrConflictRetry, got %v", err)
	}

	e, err := repo.GetEngagement(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Status != models.EngagementQuestionnaireSent {
		t.Fatalf("stale write must not land, got %s", e.Status)
	}
	if e.Version != 2 {
		t.Fatalf("expected version 2, got %d", e.Version)
	}
}

func TestNotificationDedupeKey(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, respondentID, oppID := seedPair(t, repo)

	eID, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID})
	if err != nil {
		t.Fatalf("insert engagement: %v", err)
	}

	n := &models.Notification{
		RecipientID:  ownerID,
		Type:         models.NotificationOpportunityGrab,
		Title:        "New interest",
		Message:      "Someone grabbed your opportunity.",
		EngagementID: &eID,
		ToState:      string(models.EngagementPending),
	}
	if _, inserted, err := repo.CreateNotification(ctx, n); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := repo.CreateNotification(ctx, n); err != nil || inserted {
		t.Fatalf("duplicate event must be ignored: inserted=%v err=%v", inserted, err)
	}

	// a different target state is a new notification
	n2 := *n
	n2.ToState = string(models.EngagementContactShared)
	if _, inserted, err := repo.CreateNotification(ctx, &n2); err != nil || !inserted {
		t.Fatalf("distinct state insert: inserted=%v err=%v", inserted, err)
	}

	cnt, err := repo.UnreadCountByRecipient(ctx, ownerID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 unread rows, got %d", cnt)
	}
}

func TestNotificationWithoutDedupeKeyRepeats(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, _, _ := seedPair(t, repo)

	n := &models.Notification{
		RecipientID: ownerID,
		Type:        models.NotificationOpportunityUpdate,
		Title:       "Opportunity update",
		Message:     "Status changed.",
	}
	for i := 0; i < 2; i++ {
		cp := *n
		if _, inserted, err := repo.CreateNotification(ctx, &cp); err != nil || !inserted {
			t.Fatalf("insert %d: inserted=%v err=%v", i, inserted, err)
		}
	}
	cnt, _ := repo.UnreadCountByRecipient(ctx, ownerID)
	if cnt != 2 {
		t.Fatalf("rows without an engagement key must not dedupe, got %d", cnt)
	}
}

func TestMarkNotificationReadReportsChange(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, _, _ := seedPair(t, repo)

	id, _, err := repo.CreateNotification(ctx, &models.Notification{
		RecipientID: ownerID,
		Type:        models.NotificationSystem,
		Title:       "Welcome",
		Message:     "Account created.",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	changed, err := repo.MarkNotificationRead(ctx, id, ownerID)
	if err != nil || !changed {
		t.Fatalf("first read flip: changed=%v err=%v", changed, err)
	}
	changed, err = repo.MarkNotificationRead(ctx, id, ownerID)
	if err != nil || changed {
		t.Fatalf("second read flip must be a no-op: changed=%v err=%v", changed, err)
	}
}

func TestResponseUpsertKeepsOneRow(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, respondentID, oppID := seedPair(t, repo)

	eID, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID})
	if err != nil {
		t.Fatalf("insert engagement: %v", err)
	}
	qID, err := repo.CreateQuestionnaire(ctx, &models.Questionnaire{
		EngagementID:  eID,
		OpportunityID: oppID,
		SenderID:      ownerID,
		RecipientID:   respondentID,
		Status:        models.QuestionnaireSent,
		Questions:     []models.Question{{ID: "q1", Text: "Why you?", Type: models.QuestionText, Required: true}},
		ExpiresAt:     1,
	})
	if err != nil {
		t.Fatalf("insert questionnaire: %v", err)
	}

	draft := &models.QuestionnaireResponse{
		QuestionnaireID: qID,
		RespondentID:    respondentID,
		Answers:         map[string]string{"q1": "wip"},
		Status:          models.ResponseDraft,
	}
	id1, err := repo.SaveResponse(ctx, draft)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	submittedAt := int64(42)
	final := &models.QuestionnaireResponse{
		QuestionnaireID: qID,
		RespondentID:    respondentID,
		Answers:         map[string]string{"q1": "because"},
		Status:          models.ResponseSubmitted,
		SubmittedAt:     &submittedAt,
	}
	id2, err := repo.SaveResponse(ctx, final)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("upsert must keep one row, got ids %d and %d", id1, id2)
	}

	got, err := repo.GetResponseByQuestionnaire(ctx, qID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ResponseSubmitted || got.Answers["q1"] != "because" {
		t.Fatalf("latest save should win: %+v", got)
	}
	if got.SubmittedAt == nil || *got.SubmittedAt != submittedAt {
		t.Fatalf("submitted_at lost: %+v", got.SubmittedAt)
	}
}

func TestQuestionnaireRoundTripsQuestions(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, respondentID, oppID := seedPair(t, repo)

	eID, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID})
	if err != nil {
		t.Fatalf("insert engagement: %v", err)
	}
	qID, err := repo.CreateQuestionnaire(ctx, &models.Questionnaire{
		EngagementID:  eID,
		OpportunityID: oppID,
		SenderID:      ownerID,
		RecipientID:   respondentID,
		Status:        models.QuestionnaireSent,
		Questions: []models.Question{
			{ID: "a", Text: "Stack?", Type: models.QuestionMultipleChoice, Required: true, Options: []string{"Go", "Rust"}},
			{ID: "b", Text: "Remote?", Type: models.QuestionYesNo},
		},
		ExpiresAt: 99,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetQuestionnaireByEngagement(ctx, eID)
	if err != nil {
		t.Fatalf("get by engagement: %v", err)
	}
	if got == nil || got.ID != qID {
		t.Fatalf("lookup by engagement failed: %+v", got)
	}
	if len(got.Questions) != 2 || got.Questions[0].Options[1] != "Rust" {
		t.Fatalf("questions did not round-trip: %+v", got.Questions)
	}

	// one questionnaire per engagement
	_, err = repo.CreateQuestionnaire(ctx, &models.Questionnaire{
		EngagementID:  eID,
		OpportunityID: oppID,
		SenderID:      ownerID,
		RecipientID:   respondentID,
		Status:        models.QuestionnaireSent,
		Questions:     []models.Question{{ID: "c", Text: "Again?", Type: models.QuestionText}},
	})
	if err == nil {
		t.Fatal("second questionnaire for the engagement should violate the unique index")
	}
}

func TestDeleteOpportunityCascades(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, respondentID, oppID := seedPair(t, repo)

	eID, err := repo.CreateEngagement(ctx, &models.Engagement{OpportunityID: oppID, RespondentID: respondentID})
	if err != nil {
		t.Fatalf("insert engagement: %v", err)
	}
	qID, err := repo.CreateQuestionnaire(ctx, &models.Questionnaire{
		EngagementID:  eID,
		OpportunityID: oppID,
		SenderID:      ownerID,
		RecipientID:   respondentID,
		Status:        models.QuestionnaireSent,
		Questions:     []models.Question{{ID: "q1", Text: "Why?", Type: models.QuestionText}},
	})
	if err != nil {
		t.Fatalf("insert questionnaire: %v", err)
	}
	if _, err := repo.SaveResponse(ctx, &models.QuestionnaireResponse{
		QuestionnaireID: qID,
		RespondentID:    respondentID,
		Answers:         map[string]string{"q1": "because"},
		Status:          models.ResponseDraft,
	}); err != nil {
		t.Fatalf("insert response: %v", err)
	}
	nID, _, err := repo.CreateNotification(ctx, &models.Notification{
		RecipientID:  ownerID,
		Type:         models.NotificationOpportunityGrab,
		Title:        "New interest",
		Message:      "Grab.",
		EngagementID: &eID,
		ToState:      string(models.EngagementPending),
	})
	if err != nil {
		t.Fatalf("insert notification: %v", err)
	}

	if err := repo.DeleteOpportunity(ctx, oppID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if e, _ := repo.GetEngagement(ctx, eID); e != nil {
		t.Fatal("engagement should cascade")
	}
	if q, _ := repo.GetQuestionnaire(ctx, qID); q != nil {
		t.Fatal("questionnaire should cascade")
	}
	if r, _ := repo.GetResponseByQuestionnaire(ctx, qID); r != nil {
		t.Fatal("response should cascade")
	}
	if n, _ := repo.GetNotification(ctx, nID); n != nil {
		t.Fatal("engagement-linked notification should cascade")
	}
}

func TestListNotificationsNewestFirst(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	ownerID, _, _ := seedPair(t, repo)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, _, err := repo.CreateNotification(ctx, &models.Notification{
			RecipientID: ownerID,
			Type:        models.NotificationSystem,
			Title:       fmt.Sprintf("Note %d", i),
			Message:     "m",
			Created:     int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	list, err := repo.ListNotificationsByRecipient(ctx, ownerID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(list))
	}
	if list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %d,%d,%d", list[0].ID, list[1].ID, list[2].ID)
	}
}
