package mock

import (
	"context"
	"sync"
	"time"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/pkg/models"
	"github.com/oppboard/oppboard/pkg/repository"
)

// Store is an in-memory implementation of every repository interface, with
// the same duplicate-key and optimistic-concurrency behavior as the SQLite
// repo. Service tests use it to exercise workflow logic without a database.
type Store struct {
	mu sync.Mutex

	users          map[int64]*models.User
	opportunities  map[int64]*models.Opportunity
	engagements    map[int64]*models.Engagement
	questionnaires map[int64]*models.Questionnaire
	responses      map[int64]*models.QuestionnaireResponse // keyed by questionnaire id
	notifications  map[int64]*models.Notification
	nextID         int64

	// CreateNotificationErr, when set, fails every notification insert. Used
	// to prove fan-out failures never roll back transitions.
	CreateNotificationErr error

	// ConflictsRemaining makes the next n engagement status updates lose the
	// version race before succeeding.
	ConflictsRemaining int
}

var _ repository.UserRepo = (*Store)(nil)
var _ repository.OpportunityRepo = (*Store)(nil)
var _ repository.EngagementRepo = (*Store)(nil)
var _ repository.QuestionnaireRepo = (*Store)(nil)
var _ repository.ResponseRepo = (*Store)(nil)
var _ repository.NotificationRepo = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:          make(map[int64]*models.User),
		opportunities:  make(map[int64]*models.Opportunity),
		engagements:    make(map[int64]*models.Engagement),
		questionnaires: make(map[int64]*models.Questionnaire),
		responses:      make(map[int64]*models.QuestionnaireResponse),
		notifications:  make(map[int64]*models.Notification),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	cp.ID = s.id()
	s.users[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- opportunities ---

func (s *Store) CreateOpportunity(ctx context.Context, o *models.Opportunity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	cp.ID = s.id()
	if cp.Status == "" {
		cp.Status = models.OpportunityActive
	}
	ts := nowMillis()
	cp.Created = ts
	cp.Updated = ts
	s.opportunities[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.opportunities[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) ListOpportunitiesByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]models.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Opportunity
	for _, o := range s.opportunities {
		if o.OwnerID == ownerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *Store) UpdateOpportunityStatus(ctx context.Context, id int64, status models.OpportunityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.opportunities[id]
	if !ok {
		return engage.ErrNotFound
	}
	o.Status = status
	o.Updated = nowMillis()
	return nil
}

func (s *Store) DeleteOpportunity(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.opportunities, id)
	for eid, e := range s.engagements {
		if e.OpportunityID != id {
			continue
		}
		delete(s.engagements, eid)
		for qid, q := range s.questionnaires {
			if q.EngagementID == eid {
				delete(s.questionnaires, qid)
				delete(s.responses, qid)
			}
		}
		for nid, n := range s.notifications {
			if n.EngagementID != nil && *n.EngagementID == eid {
				delete(s.notifications, nid)
			}
		}
	}
	return nil
}

// --- engagements ---

func (s *Store) CreateEngagement(ctx context.Context, e *models.Engagement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.engagements {
		if ex.OpportunityID == e.OpportunityID && ex.RespondentID == e.RespondentID {
			return 0, engage.ErrDuplicateEngagement
		}
	}
	cp := *e
	cp.ID = s.id()
	if cp.Status == "" {
		cp.Status = models.EngagementPending
	}
	cp.Version = 1
	ts := nowMillis()
	cp.Created = ts
	cp.Updated = ts
	s.engagements[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) GetEngagement(ctx context.Context, id int64) (*models.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engagements[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetEngagementByPair(ctx context.Context, opportunityID, respondentID int64) (*models.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.engagements {
		if e.OpportunityID == opportunityID && e.RespondentID == respondentID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListEngagementsByOpportunity(ctx context.Context, opportunityID int64) ([]models.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Engagement
	for _, e := range s.engagements {
		if e.OpportunityID == opportunityID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) ListEngagementsByRespondent(ctx context.Context, respondentID int64, limit, offset int) ([]models.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Engagement
	for _, e := range s.engagements {
		if e.RespondentID == respondentID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) UpdateEngagementStatus(ctx context.Context, id, version int64, to models.EngagementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConflictsRemaining > 0 {
		s.ConflictsRemaining--
		return engage.ErrConflictRetry
	}
	e, ok := s.engagements[id]
	if !ok || e.Version != version {
		return engage.ErrConflictRetry
	}
	e.Status = to
	e.Version++
	e.Updated = nowMillis()
	return nil
}

// SetEngagementStatus force-writes a status, bypassing the version check.
// Tests use it to simulate an out-of-band concurrent transition.
func (s *Store) SetEngagementStatus(id int64, status models.EngagementStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engagements[id]; ok {
		e.Status = status
		e.Version++
	}
}

// --- questionnaires ---

func (s *Store) CreateQuestionnaire(ctx context.Context, q *models.Questionnaire) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.questionnaires {
		if ex.EngagementID == q.EngagementID {
			return 0, engage.ErrDuplicateEngagement
		}
	}
	cp := *q
	cp.ID = s.id()
	s.questionnaires[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) GetQuestionnaire(ctx context.Context, id int64) (*models.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.questionnaires[id]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetQuestionnaireByEngagement(ctx context.Context, engagementID int64) (*models.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.questionnaires {
		if q.EngagementID == engagementID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateQuestionnaireStatus(ctx context.Context, id int64, status models.QuestionnaireStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questionnaires[id]
	if !ok {
		return engage.ErrNotFound
	}
	q.Status = status
	q.Updated = nowMillis()
	return nil
}

func (s *Store) DeleteQuestionnaire(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questionnaires, id)
	delete(s.responses, id)
	return nil
}

// --- responses ---

func (s *Store) SaveResponse(ctx context.Context, r *models.QuestionnaireResponse) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	if ex, ok := s.responses[r.QuestionnaireID]; ok {
		cp.ID = ex.ID
	} else {
		cp.ID = s.id()
	}
	s.responses[r.QuestionnaireID] = &cp
	return cp.ID, nil
}

func (s *Store) GetResponseByQuestionnaire(ctx context.Context, questionnaireID int64) (*models.QuestionnaireResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.responses[questionnaireID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

// --- notifications ---

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateNotificationErr != nil {
		return 0, false, s.CreateNotificationErr
	}
	if n.EngagementID != nil {
		for _, ex := range s.notifications {
			if ex.RecipientID == n.RecipientID && ex.EngagementID != nil && *ex.EngagementID == *n.EngagementID && ex.ToState == n.ToState {
				return 0, false, nil
			}
		}
	}
	if n.Created == 0 {
		n.Created = nowMillis()
	}
	cp := *n
	cp.ID = s.id()
	s.notifications[cp.ID] = &cp
	return cp.ID, true, nil
}

func (s *Store) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) ListNotificationsByRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Created > out[i].Created || (out[j].Created == out[i].Created && out[j].ID > out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UnreadCountByRecipient(ctx context.Context, recipientID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cnt int64
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			cnt++
		}
	}
	return cnt, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	return true, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cnt int64
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			cnt++
		}
	}
	return cnt, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id, recipientID int64) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return false, false, nil
	}
	delete(s.notifications, id)
	return true, !n.IsRead, nil
}

// NotificationCount reports the total number of stored rows, all recipients.
func (s *Store) NotificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}
