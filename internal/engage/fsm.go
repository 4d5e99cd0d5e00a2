package engage

import "github.com/oppboard/oppboard/pkg/models"

// Action is a workflow verb applied to an engagement.
type Action string

const (
	ActionShareContact      Action = "share_contact"
	ActionSendQuestionnaire Action = "send_questionnaire"
	ActionDecline           Action = "decline"
	ActionRespondentSubmit  Action = "respondent_submit"
)

// transitions is the single source of truth for engagement lifecycle
// legality. Every status mutation in the system goes through Next; no call
// site writes a status string directly.
var transitions = map[models.EngagementStatus]map[Action]models.EngagementStatus{
	models.EngagementPending: {
		ActionShareContact:      models.EngagementContactShared,
		ActionSendQuestionnaire: models.EngagementQuestionnaireSent,
		ActionDecline:           models.EngagementDeclined,
	},
	models.EngagementQuestionnaireSent: {
		ActionRespondentSubmit: models.EngagementQuestionnaireCompleted,
	},
	models.EngagementQuestionnaireCompleted: {
		ActionShareContact: models.EngagementContactShared,
		ActionDecline:      models.EngagementDeclined,
	},
}

// Next returns the target status for applying action in the current status.
// An illegal pair yields an *InvalidTransitionError carrying the actions that
// would have been allowed.
func Next(current models.EngagementStatus, action Action) (models.EngagementStatus, error) {
	to, ok := transitions[current][action]
	if !ok {
		return "", &InvalidTransitionError{
			Current: current,
			Action:  action,
			Allowed: AllowedActions(current),
		}
	}
	return to, nil
}

// AllowedActions lists the actions legal in the given status, in stable order.
func AllowedActions(current models.EngagementStatus) []Action {
	var out []Action
	for _, a := range []Action{ActionShareContact, ActionSendQuestionnaire, ActionDecline, ActionRespondentSubmit} {
		if _, ok := transitions[current][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IsTerminal reports whether no further transition is permitted from status.
func IsTerminal(status models.EngagementStatus) bool {
	return len(transitions[status]) == 0
}
