package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oppboard/oppboard/api"
	migrations "github.com/oppboard/oppboard/db"
	"github.com/oppboard/oppboard/internal/config"
	"github.com/oppboard/oppboard/internal/db"
	"github.com/oppboard/oppboard/pkg/models"
)

// setupServer boots the full HTTP stack on an in-memory database.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		Addr:          ":0",
		JWTSecret:     "test-secret",
		APITimeout:    5 * time.Second,
		TokenDuration: time.Hour,
	}

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := db.New(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(ctx, conn, migrations.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	handler, err := api.SetupRoutes(cfg, "test", "now", conn)
	if err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func signup(t *testing.T, srv *httptest.Server, name, email string) string {
	t.Helper()
	body := map[string]string{"name": name, "email": email, "password": "hunter2!"}
	status, raw := doJSON(t, srv, http.MethodPost, "/v1/auth/signup", "", body)
	if status != http.StatusOK {
		t.Fatalf("signup %s: status %d: %s", email, status, raw)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Token == "" {
		t.Fatalf("signup %s: bad token response %q: %v", email, raw, err)
	}
	return resp.Token
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func TestHealthAndVersionOpen(t *testing.T) {
	srv := setupServer(t)

	status, _ := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: status %d", status)
	}
	status, raw := doJSON(t, srv, http.MethodGet, "/version", "", nil)
	if status != http.StatusOK || !bytes.Contains(raw, []byte("test")) {
		t.Fatalf("version: status %d body %s", status, raw)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := setupServer(t)

	status, _ := doJSON(t, srv, http.MethodGet, "/v1/notifications", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	status, _ = doJSON(t, srv, http.MethodGet, "/v1/notifications", "not-a-jwt", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", status)
	}
}

// TestEngagementWorkflowEndToEnd walks the full lifecycle: grab, questionnaire
// round trip, contact share and the notifications each step produces.
func TestEngagementWorkflowEndToEnd(t *testing.T) {
	srv := setupServer(t)

	poster := signup(t, srv, "Poster", "poster@example.com")
	respondent := signup(t, srv, "Respondent", "respondent@example.com")

	// poster creates an active opportunity with contact details
	status, raw := doJSON(t, srv, http.MethodPost, "/v1/opportunities", poster, map[string]any{
		"title":         "Legacy ETL rewrite",
		"type":          "contract",
		"contact_email": "poster@example.com",
		"contact_phone": "+1-555-0100",
	})
	if status != http.StatusCreated {
		t.Fatalf("create opportunity: status %d: %s", status, raw)
	}
	var opp models.Opportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		t.Fatalf("decode opportunity: %v", err)
	}

	// contact details are redacted before any share
	status, raw = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/opportunities/%d", opp.ID), respondent, nil)
	if status != http.StatusOK {
		t.Fatalf("get opportunity: status %d", status)
	}
	var visible models.Opportunity
	if err := json.Unmarshal(raw, &visible); err != nil {
		t.Fatalf("decode opportunity: %v", err)
	}
	if visible.ContactEmail != "" || visible.ContactPhone != "" {
		t.Fatalf("contact details must be redacted pre-share: %+v", visible)
	}

	// respondent grabs
	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/opportunities/%d/grab", opp.ID), respondent, nil)
	if status != http.StatusCreated {
		t.Fatalf("grab: status %d: %s", status, raw)
	}
	var e models.Engagement
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode engagement: %v", err)
	}
	if e.Status != models.EngagementPending {
		t.Fatalf("expected pending, got %s", e.Status)
	}

	// a second grab is a conflict
	status, _ = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/opportunities/%d/grab", opp.ID), respondent, nil)
	if status != http.StatusConflict {
		t.Fatalf("duplicate grab: expected 409, got %d", status)
	}

	// the poster was notified about the grab
	status, raw = doJSON(t, srv, http.MethodGet, "/v1/notifications/unread-count", poster, nil)
	if status != http.StatusOK {
		t.Fatalf("unread-count: status %d", status)
	}
	var count struct {
		Unread int64 `json:"unread"`
	}
	if err := json.Unmarshal(raw, &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count.Unread != 1 {
		t.Fatalf("poster unread = %d, want 1", count.Unread)
	}

	// poster sends a questionnaire, three questions, two required
	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/engagements/%d/questionnaire", e.ID), poster, map[string]any{
		"questions": []map[string]any{
			{"text": "Years of ETL experience?", "type": "text", "required": true},
			{"text": "Preferred warehouse?", "type": "multiple_choice", "required": true, "options": []string{"BigQuery", "Snowflake", "Redshift"}},
			{"text": "Available immediately?", "type": "yes_no"},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("send questionnaire: status %d: %s", status, raw)
	}
	var q models.Questionnaire
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("decode questionnaire: %v", err)
	}
	if len(q.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(q.Questions))
	}

	// respondent sees the questionnaire_sent notification
	status, raw = doJSON(t, srv, http.MethodGet, "/v1/notifications", respondent, nil)
	if status != http.StatusOK {
		t.Fatalf("list notifications: status %d", status)
	}
	var noteList struct {
		Items []models.Notification `json:"items"`
	}
	if err := json.Unmarshal(raw, &noteList); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(noteList.Items) != 1 || noteList.Items[0].Type != models.NotificationQuestionnaireSent {
		t.Fatalf("expected questionnaire_sent notification, got %+v", noteList.Items)
	}

	// a submit missing a required answer lists the violation and changes nothing
	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/questionnaires/%d/submit", q.ID), respondent, map[string]any{
		"answers": map[string]string{q.Questions[0].ID: "six years"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("partial submit: expected 400, got %d: %s", status, raw)
	}
	var errResp struct {
		Violations []string `json:"violations"`
	}
	if err := json.Unmarshal(raw, &errResp); err != nil || len(errResp.Violations) == 0 {
		t.Fatalf("expected violations in error body, got %s", raw)
	}

	// a draft is fine and repeatable
	status, _ = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/v1/questionnaires/%d/draft", q.ID), respondent, map[string]any{
		"answers": map[string]string{q.Questions[0].ID: "six years"},
	})
	if status != http.StatusOK {
		t.Fatalf("draft: status %d", status)
	}

	// full submit completes the questionnaire and moves the engagement
	answers := map[string]string{
		q.Questions[0].ID: "six years",
		q.Questions[1].ID: "Snowflake",
		q.Questions[2].ID: "yes",
	}
	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/questionnaires/%d/submit", q.ID), respondent, map[string]any{"answers": answers})
	if status != http.StatusOK {
		t.Fatalf("submit: status %d: %s", status, raw)
	}

	// poster reads the submitted answers
	status, raw = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/questionnaires/%d/response", q.ID), poster, nil)
	if status != http.StatusOK {
		t.Fatalf("get response: status %d: %s", status, raw)
	}
	var answerSet models.QuestionnaireResponse
	if err := json.Unmarshal(raw, &answerSet); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if answerSet.Status != models.ResponseSubmitted || answerSet.Answers[q.Questions[1].ID] != "Snowflake" {
		t.Fatalf("unexpected answer set: %+v", answerSet)
	}

	// a stranger cannot drive the workflow
	stranger := signup(t, srv, "Stranger", "stranger@example.com")
	status, _ = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/engagements/%d/share-contact", e.ID), stranger, nil)
	if status != http.StatusForbidden {
		t.Fatalf("stranger share: expected 403, got %d", status)
	}

	// poster shares contact
	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/engagements/%d/share-contact", e.ID), poster, nil)
	if status != http.StatusOK {
		t.Fatalf("share-contact: status %d: %s", status, raw)
	}
	var shared models.Engagement
	if err := json.Unmarshal(raw, &shared); err != nil {
		t.Fatalf("decode engagement: %v", err)
	}
	if shared.Status != models.EngagementContactShared {
		t.Fatalf("expected contact_shared, got %s", shared.Status)
	}

	// the respondent now sees contact details
	status, raw = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/opportunities/%d", opp.ID), respondent, nil)
	if status != http.StatusOK {
		t.Fatalf("get opportunity post-share: status %d", status)
	}
	if err := json.Unmarshal(raw, &visible); err != nil {
		t.Fatalf("decode opportunity: %v", err)
	}
	if visible.ContactEmail != "poster@example.com" || visible.ContactPhone != "+1-555-0100" {
		t.Fatalf("contact details should be revealed post-share: %+v", visible)
	}

	// terminal engagements reject further actions with the allowed set
	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/engagements/%d/decline", e.ID), poster, nil)
	if status != http.StatusConflict {
		t.Fatalf("decline after terminal: expected 409, got %d", status)
	}
	var transitionErr struct {
		Error          string   `json:"error"`
		AllowedActions []string `json:"allowed_actions"`
	}
	if err := json.Unmarshal(raw, &transitionErr); err != nil {
		t.Fatalf("decode transition error: %v", err)
	}
	if len(transitionErr.AllowedActions) != 0 {
		t.Fatalf("terminal state should allow nothing, got %v", transitionErr.AllowedActions)
	}
}

func TestBatchDeclineEndpoint(t *testing.T) {
	srv := setupServer(t)

	poster := signup(t, srv, "Poster", "poster@example.com")

	status, raw := doJSON(t, srv, http.MethodPost, "/v1/opportunities", poster, map[string]any{"title": "Review buddies wanted"})
	if status != http.StatusCreated {
		t.Fatalf("create opportunity: status %d", status)
	}
	var opp models.Opportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		t.Fatalf("decode opportunity: %v", err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		tok := signup(t, srv, fmt.Sprintf("R%d", i), fmt.Sprintf("r%d@example.com", i))
		status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/opportunities/%d/grab", opp.ID), tok, nil)
		if status != http.StatusCreated {
			t.Fatalf("grab %d: status %d", i, status)
		}
		var e models.Engagement
		if err := json.Unmarshal(raw, &e); err != nil {
			t.Fatalf("decode engagement: %v", err)
		}
		ids = append(ids, e.ID)
	}

	status, raw = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/opportunities/%d/engagements/batch", opp.ID), poster, map[string]any{
		"action":         "decline",
		"engagement_ids": ids,
	})
	if status != http.StatusOK {
		t.Fatalf("batch: status %d: %s", status, raw)
	}
	var batch struct {
		Results []struct {
			ID      int64  `json:"id"`
			Outcome string `json:"outcome"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(batch.Results))
	}
	for _, res := range batch.Results {
		if res.Outcome != "success" {
			t.Fatalf("engagement %d: outcome %s", res.ID, res.Outcome)
		}
	}

	// send_questionnaire is not batchable
	status, _ = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/opportunities/%d/engagements/batch", opp.ID), poster, map[string]any{
		"action":         "send_questionnaire",
		"engagement_ids": ids,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("batch send_questionnaire: expected 400, got %d", status)
	}
}

func TestNotificationStreamDeliversEvents(t *testing.T) {
	srv := setupServer(t)

	poster := signup(t, srv, "Poster", "poster@example.com")
	respondent := signup(t, srv, "Respondent", "respondent@example.com")

	status, raw := doJSON(t, srv, http.MethodPost, "/v1/opportunities", poster, map[string]any{"title": "Streaming test"})
	if status != http.StatusCreated {
		t.Fatalf("create opportunity: status %d", status)
	}
	var opp models.Opportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		t.Fatalf("decode opportunity: %v", err)
	}

	// poster opens the stream
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/notifications/stream", nil)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+poster)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if !strings.HasPrefix(line, ":") {
		t.Fatalf("expected comment greeting, got %q", line)
	}

	// a grab lands on the open stream
	status, _ = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/opportunities/%d/grab", opp.ID), respondent, nil)
	if status != http.StatusCreated {
		t.Fatalf("grab: status %d", status)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no event arrived on the stream")
		}
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var n models.Notification
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &n); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if n.Type != models.NotificationOpportunityGrab {
			t.Fatalf("expected opportunity_grab event, got %s", n.Type)
		}
		return
	}
}
