package engage_test

import (
	"errors"
	"testing"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/pkg/models"
)

func TestNextLegalTransitions(t *testing.T) {
	cases := []struct {
		from   models.EngagementStatus
		action engage.Action
		to     models.EngagementStatus
	}{
		{models.EngagementPending, engage.ActionShareContact, models.EngagementContactShared},
		{models.EngagementPending, engage.ActionSendQuestionnaire, models.EngagementQuestionnaireSent},
		{models.EngagementPending, engage.ActionDecline, models.EngagementDeclined},
		{models.EngagementQuestionnaireSent, engage.ActionRespondentSubmit, models.EngagementQuestionnaireCompleted},
		{models.EngagementQuestionnaireCompleted, engage.ActionShareContact, models.EngagementContactShared},
		{models.EngagementQuestionnaireCompleted, engage.ActionDecline, models.EngagementDeclined},
	}
	for _, c := range cases {
		got, err := engage.Next(c.from, c.action)
		if err != nil {
			t.Fatalf("Next(%s, %s): unexpected error %v", c.from, c.action, err)
		}
		if got != c.to {
			t.Fatalf("Next(%s, %s) = %s, want %s", c.from, c.action, got, c.to)
		}
	}
}

func TestNextIllegalTransitions(t *testing.T) {
	cases := []struct {
		from   models.EngagementStatus
		action engage.Action
	}{
		{models.EngagementDeclined, engage.ActionShareContact},
		{models.EngagementDeclined, engage.ActionDecline},
		{models.EngagementContactShared, engage.ActionDecline},
		{models.EngagementContactShared, engage.ActionShareContact},
		{models.EngagementPending, engage.ActionRespondentSubmit},
		{models.EngagementQuestionnaireSent, engage.ActionShareContact},
		{models.EngagementQuestionnaireSent, engage.ActionSendQuestionnaire},
		{models.EngagementQuestionnaireCompleted, engage.ActionSendQuestionnaire},
	}
	for _, c := range cases {
		_, err := engage.Next(c.from, c.action)
		if err == nil {
			t.Fatalf("Next(%s, %s): expected error", c.from, c.action)
		}
		var tErr *engage.InvalidTransitionError
		if !errors.As(err, &tErr) {
			t.Fatalf("Next(%s, %s): expected InvalidTransitionError, got %T", c.from, c.action, err)
		}
		if tErr.Current != c.from || tErr.Action != c.action {
			t.Fatalf("error should identify state and action, got %+v", tErr)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !engage.IsTerminal(models.EngagementContactShared) {
		t.Fatal("contact_shared should be terminal")
	}
	if !engage.IsTerminal(models.EngagementDeclined) {
		t.Fatal("declined should be terminal")
	}
	for _, s := range []models.EngagementStatus{models.EngagementPending, models.EngagementQuestionnaireSent, models.EngagementQuestionnaireCompleted} {
		if engage.IsTerminal(s) {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestAllowedActionsReportedInError(t *testing.T) {
	_, err := engage.Next(models.EngagementPending, engage.ActionRespondentSubmit)
	var tErr *engage.InvalidTransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if len(tErr.Allowed) != 3 {
		t.Fatalf("pending should allow 3 actions, got %v", tErr.Allowed)
	}
}
