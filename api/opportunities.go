package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/internal/notify"
	"github.com/oppboard/oppboard/pkg/models"
	"github.com/oppboard/oppboard/pkg/repository"
)

type OpportunitiesHandler struct {
	opportunityRepo repository.OpportunityRepo
	engagementRepo  repository.EngagementRepo
	notifier        *notify.Service
}

func NewOpportunitiesHandler(or repository.OpportunityRepo, er repository.EngagementRepo, n *notify.Service) *OpportunitiesHandler {
	return &OpportunitiesHandler{opportunityRepo: or, engagementRepo: er, notifier: n}
}

type postOpportunityRequest struct {
	Title             string `json:"title"`
	Type              string `json:"type"`
	Status            string `json:"status,omitempty"`
	ScreeningQuestion string `json:"screening_question,omitempty"`
	ContactEmail      string `json:"contact_email,omitempty"`
	ContactPhone      string `json:"contact_phone,omitempty"`
}

func (h *OpportunitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req postOpportunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	status := models.OpportunityActive
	switch models.OpportunityStatus(req.Status) {
	case "", models.OpportunityActive:
	case models.OpportunityDraft:
		status = models.OpportunityDraft
	default:
		http.Error(w, "status must be active or draft", http.StatusBadRequest)
		return
	}

	o := &models.Opportunity{
		OwnerID:           userID,
		Title:             req.Title,
		Type:              req.Type,
		Status:            status,
		ScreeningQuestion: req.ScreeningQuestion,
		ContactEmail:      req.ContactEmail,
		ContactPhone:      req.ContactPhone,
	}
	id, err := h.opportunityRepo.CreateOpportunity(r.Context(), o)
	if err != nil {
		http.Error(w, "failed to store opportunity", http.StatusInternalServerError)
		return
	}
	o.ID = id

	writeJSON(w, o, http.StatusCreated)
}

// Get returns the opportunity detail. Contact fields are redacted unless the
// viewer is the owner or their engagement has reached contact_shared; the
// stored status is the only thing consulted, the workflow core never embeds
// presentation logic.
func (h *OpportunitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	o, err := h.opportunityRepo.GetOpportunity(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to load opportunity", http.StatusInternalServerError)
		return
	}
	if o == nil || (o.Status == models.OpportunityDraft && o.OwnerID != userID) {
		writeDomainError(w, engage.ErrNotFound)
		return
	}

	if o.OwnerID != userID {
		revealed := false
		e, err := h.engagementRepo.GetEngagementByPair(r.Context(), o.ID, userID)
		if err != nil {
			http.Error(w, "failed to load engagement", http.StatusInternalServerError)
			return
		}
		if e != nil && e.Status == models.EngagementContactShared {
			revealed = true
		}
		if !revealed {
			o.ContactEmail = ""
			o.ContactPhone = ""
		}
	}

	writeJSON(w, o, http.StatusOK)
}

func (h *OpportunitiesHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	limit, offset := pagination(r, 50)
	opps, err := h.opportunityRepo.ListOpportunitiesByOwner(r.Context(), userID, limit, offset)
	if err != nil {
		http.Error(w, "failed to list opportunities", http.StatusInternalServerError)
		return
	}
	if opps == nil {
		opps = []models.Opportunity{}
	}

	writeJSON(w, map[string]any{"items": opps, "limit": limit, "offset": offset}, http.StatusOK)
}

type putStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus toggles visibility between active, closed and draft. Reopening
// never resets engagements: terminal engagements stay terminal.
func (h *OpportunitiesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req putStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	status := models.OpportunityStatus(req.Status)
	if status != models.OpportunityActive && status != models.OpportunityClosed && status != models.OpportunityDraft {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	o, err := h.opportunityRepo.GetOpportunity(r.Context(), id)
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
	if o.Status == status {
		writeJSON(w, o, http.StatusOK)
		return
	}

	if err := h.opportunityRepo.UpdateOpportunityStatus(r.Context(), id, status); err != nil {
		http.Error(w, "failed to update opportunity", http.StatusInternalServerError)
		return
	}
	o.Status = status

	// Tell engaged respondents about the visibility change. Best effort, a
	// notification failure never fails the update.
	engagements, err := h.engagementRepo.ListEngagementsByOpportunity(r.Context(), id)
	if err != nil {
		logger.Error("list engagements for status notice", slog.Any("err", err))
	} else {
		msg := fmt.Sprintf("The opportunity %q is now %s.", o.Title, status)
		for _, e := range engagements {
			if err := h.notifier.NotifyOpportunityUpdate(r.Context(), o.ID, e.RespondentID, "Opportunity update", msg); err != nil {
				logger.Error("notify status change", slog.Int64("respondent_id", e.RespondentID), slog.Any("err", err))
			}
		}
	}

	writeJSON(w, o, http.StatusOK)
}

// Delete removes the opportunity; engagements, questionnaires, responses and
// workflow notifications cascade in the store.
func (h *OpportunitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	o, err := h.opportunityRepo.GetOpportunity(r.Context(), id)
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

	if err := h.opportunityRepo.DeleteOpportunity(r.Context(), id); err != nil {
		http.Error(w, "failed to delete opportunity", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func pagination(r *http.Request, def int) (limit, offset int) {
	limit = def
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
