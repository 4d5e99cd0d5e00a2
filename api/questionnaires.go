package api

import (
	"encoding/json"
	"net/http"

	"github.com/oppboard/oppboard/internal/questionnaire"
	"github.com/oppboard/oppboard/pkg/models"
)

type QuestionnairesHandler struct {
	svc *questionnaire.Service
}

func NewQuestionnairesHandler(svc *questionnaire.Service) *QuestionnairesHandler {
	return &QuestionnairesHandler{svc: svc}
}

type sendQuestionnaireRequest struct {
	Questions     []models.Question `json:"questions"`
	ExpiresInDays int               `json:"expires_in_days,omitempty"`
}

// Send freezes a question set onto the engagement and moves it to
// questionnaire_sent.
func (h *QuestionnairesHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	engagementID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req sendQuestionnaireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	q, err := h.svc.Send(r.Context(), engagementID, userID, req.Questions, req.ExpiresInDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, q, http.StatusCreated)
}

func (h *QuestionnairesHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	q, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, q, http.StatusOK)
}

// GetResponse serves the answer set: the respondent sees their own draft, the
// poster only a submitted response.
func (h *QuestionnairesHandler) GetResponse(w http.ResponseWriter, r *http.Request) {
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

	resp, err := h.svc.GetResponse(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, resp, http.StatusOK)
}

type answersRequest struct {
	Answers map[string]string `json:"answers"`
}

func (h *QuestionnairesHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
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

	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.SaveDraft(r.Context(), id, userID, req.Answers)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, resp, http.StatusOK)
}

func (h *QuestionnairesHandler) Submit(w http.ResponseWriter, r *http.Request) {
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

	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.Submit(r.Context(), id, userID, req.Answers)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, resp, http.StatusOK)
}
