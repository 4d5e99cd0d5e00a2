package engage

import (
	"context"
	"fmt"
	"sync"

	"github.com/oppboard/oppboard/pkg/models"
)

// BatchResult reports the outcome of one engagement within a batch call.
type BatchResult struct {
	ID      int64  `json:"id"`
	Outcome string `json:"outcome"` // "success" or "error"
	Error   string `json:"error,omitempty"`
}

const (
	BatchSuccess = "success"
	BatchError   = "error"
)

// ApplyBatch applies one poster transition to many engagements of a single
// opportunity. Each item is attempted independently and in parallel; item
// failures are collected in the result list and never undo the rest of the
// batch.
func (s *Service) ApplyBatch(ctx context.Context, opportunityID int64, action Action, engagementIDs []int64, actorID int64) ([]BatchResult, error) {
	if action != ActionShareContact && action != ActionDecline {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("action %q cannot be applied in batch", action)}}
	}
	if len(engagementIDs) == 0 {
		return nil, &ValidationError{Violations: []string{"engagement_ids must not be empty"}}
	}

	opp, err := s.opportunities.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("load opportunity: %w", err)
	}
	if opp == nil {
		return nil, ErrNotFound
	}
	if opp.OwnerID != actorID {
		return nil, ErrUnauthorized
	}

	results := make([]BatchResult, len(engagementIDs))
	var wg sync.WaitGroup
	for i, id := range engagementIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			results[i] = s.applyBatchItem(ctx, opportunityID, action, id, actorID)
		}(i, id)
	}
	wg.Wait()

	return results, nil
}

// applyBatchItem performs the per-item checks and the transition for one
// engagement. Only engagements of the batch's opportunity that are still
// pending are eligible; everything else becomes a per-item error.
func (s *Service) applyBatchItem(ctx context.Context, opportunityID int64, action Action, engagementID, actorID int64) BatchResult {
	e, err := s.engagements.GetEngagement(ctx, engagementID)
	if err != nil {
		return BatchResult{ID: engagementID, Outcome: BatchError, Error: err.Error()}
	}
	if e == nil {
		return BatchResult{ID: engagementID, Outcome: BatchError, Error: ErrNotFound.Error()}
	}
	if e.OpportunityID != opportunityID {
		return BatchResult{ID: engagementID, Outcome: BatchError, Error: "engagement does not belong to this opportunity"}
	}
	if e.Status != models.EngagementPending {
		err := &InvalidTransitionError{Current: e.Status, Action: action, Allowed: AllowedActions(e.Status)}
		return BatchResult{ID: engagementID, Outcome: BatchError, Error: err.Error()}
	}

	if _, err := s.Apply(ctx, engagementID, action, actorID); err != nil {
		return BatchResult{ID: engagementID, Outcome: BatchError, Error: err.Error()}
	}
	return BatchResult{ID: engagementID, Outcome: BatchSuccess}
}
