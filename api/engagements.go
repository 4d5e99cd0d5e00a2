package api

import (
	"encoding/json"
	"net/http"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/pkg/models"
	"github.com/oppboard/oppboard/pkg/repository"
)

type EngagementsHandler struct {
	workflow        *engage.Service
	engagementRepo  repository.EngagementRepo
	opportunityRepo repository.OpportunityRepo
}

func NewEngagementsHandler(workflow *engage.Service, er repository.EngagementRepo, or repository.OpportunityRepo) *EngagementsHandler {
	return &EngagementsHandler{workflow: workflow, engagementRepo: er, opportunityRepo: or}
}

// Grab creates the pending engagement for the authenticated respondent. A
// repeat grab surfaces as a conflict so the UI can show "already expressed
// interest".
func (h *EngagementsHandler) Grab(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	oppID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	e, err := h.workflow.Grab(r.Context(), oppID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, e, http.StatusCreated)
}

// ListByOpportunity lets the owner review all engagements of one posting.
func (h *EngagementsHandler) ListByOpportunity(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	oppID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	o, err := h.opportunityRepo.GetOpportunity(r.Context(), oppID)
	if err != nil {
		http.Error(w, "failed to load opportunity", http.StatusInternalServerError)
		return
	}
	if o == nil {
		writeDomainError(w, engage.ErrNotFound)
		return
	}
	if o.OwnerID != userID {
		writeDomainError(w, engage.ErrUnauthorized)
		return
	}

	items, err := h.engagementRepo.ListEngagementsByOpportunity(r.Context(), oppID)
	if err != nil {
		http.Error(w, "failed to list engagements", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.Engagement{}
	}

	writeJSON(w, map[string]any{"items": items}, http.StatusOK)
}

// ListMine returns the authenticated respondent's engagements.
func (h *EngagementsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	limit, offset := pagination(r, 50)
	items, err := h.engagementRepo.ListEngagementsByRespondent(r.Context(), userID, limit, offset)
	if err != nil {
		http.Error(w, "failed to list engagements", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.Engagement{}
	}

	writeJSON(w, map[string]any{"items": items, "limit": limit, "offset": offset}, http.StatusOK)
}

// ShareContact flips the engagement to contact_shared. Disclosure itself
// happens on the opportunity read path, which consults the stored status.
func (h *EngagementsHandler) ShareContact(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, engage.ActionShareContact)
}

func (h *EngagementsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, engage.ActionDecline)
}

func (h *EngagementsHandler) apply(w http.ResponseWriter, r *http.Request, action engage.Action) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	e, err := h.workflow.Apply(r.Context(), id, action, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, e, http.StatusOK)
}

type batchRequest struct {
	Action        string  `json:"action"`
	EngagementIDs []int64 `json:"engagement_ids"`
}

// Batch applies one poster action to many engagements. Item failures are
// reported per id; the batch call itself only fails for bad input or a
// non-owner actor.
func (h *EngagementsHandler) Batch(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	oppID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	results, err := h.workflow.ApplyBatch(r.Context(), oppID, engage.Action(req.Action), req.EngagementIDs, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, map[string]any{"results": results}, http.StatusOK)
}
