package api

import (
	"github.com/gorilla/mux"

	"github.com/oppboard/oppboard/internal/config"
	"github.com/oppboard/oppboard/internal/db"
	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/internal/notify"
	"github.com/oppboard/oppboard/internal/questionnaire"
	"github.com/oppboard/oppboard/internal/repository/sqlite"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, database *db.DB) (*mux.Router, error) {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Repository
	repo := sqlite.New(database, logger)

	// Core services: fan-out first, the workflow emits into it.
	notifier := notify.NewService(repo, repo, repo, notify.NewRegistry(logger), logger)
	workflow := engage.NewService(repo, repo, notifier, logger)
	questionnaires, err := questionnaire.NewService(repo, repo, repo, workflow, logger)
	if err != nil {
		return nil, err
	}

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(repo, cfg.JWTSecret, cfg.TokenDuration)
	opportunitiesHandler := NewOpportunitiesHandler(repo, repo, notifier)
	engagementsHandler := NewEngagementsHandler(workflow, repo, repo)
	questionnairesHandler := NewQuestionnairesHandler(questionnaires)
	notificationsHandler := NewNotificationsHandler(notifier)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// Opportunity endpoints
	apiV1.HandleFunc("/opportunities", opportunitiesHandler.Create).Methods("POST")
	apiV1.HandleFunc("/opportunities", opportunitiesHandler.ListMine).Methods("GET")
	apiV1.HandleFunc("/opportunities/{id}", opportunitiesHandler.Get).Methods("GET")
	apiV1.HandleFunc("/opportunities/{id}", opportunitiesHandler.Delete).Methods("DELETE")
	apiV1.HandleFunc("/opportunities/{id}/status", opportunitiesHandler.UpdateStatus).Methods("PUT")

	// Engagement workflow endpoints
	apiV1.HandleFunc("/opportunities/{id}/grab", engagementsHandler.Grab).Methods("POST")
	apiV1.HandleFunc("/opportunities/{id}/engagements", engagementsHandler.ListByOpportunity).Methods("GET")
	apiV1.HandleFunc("/opportunities/{id}/engagements/batch", engagementsHandler.Batch).Methods("POST")
	apiV1.HandleFunc("/engagements", engagementsHandler.ListMine).Methods("GET")
	apiV1.HandleFunc("/engagements/{id}/share-contact", engagementsHandler.ShareContact).Methods("POST")
	apiV1.HandleFunc("/engagements/{id}/decline", engagementsHandler.Decline).Methods("POST")

	// Questionnaire endpoints
	apiV1.HandleFunc("/engagements/{id}/questionnaire", questionnairesHandler.Send).Methods("POST")
	apiV1.HandleFunc("/questionnaires/{id}", questionnairesHandler.Get).Methods("GET")
	apiV1.HandleFunc("/questionnaires/{id}/response", questionnairesHandler.GetResponse).Methods("GET")
	apiV1.HandleFunc("/questionnaires/{id}/draft", questionnairesHandler.SaveDraft).Methods("PUT")
	apiV1.HandleFunc("/questionnaires/{id}/submit", questionnairesHandler.Submit).Methods("POST")

	// Notification endpoints
	apiV1.HandleFunc("/notifications", notificationsHandler.List).Methods("GET")
	apiV1.HandleFunc("/notifications/unread-count", notificationsHandler.UnreadCount).Methods("GET")
	apiV1.HandleFunc("/notifications/read-all", notificationsHandler.MarkAllRead).Methods("POST")
	apiV1.HandleFunc("/notifications/stream", notificationsHandler.Stream).Methods("GET")
	apiV1.HandleFunc("/notifications/{id}/read", notificationsHandler.MarkRead).Methods("POST")
	apiV1.HandleFunc("/notifications/{id}", notificationsHandler.Delete).Methods("DELETE")

	return r, nil
}
