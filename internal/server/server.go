// internal/server/server.go

// Package server exposes the lifecycle engine over HTTP. Handlers stay thin:
// decode, call the engine, map domain errors to status codes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"camp-lifecycle/internal/automation"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/engine/lifecycle"
	"camp-lifecycle/internal/models"
)

// LifecycleService is the response write path and read model.
type LifecycleService interface {
	SubmitResponse(ctx context.Context, applicationID, questionID string, value, fileKey *string) (*lifecycle.Snapshot, error)
	DeleteResponse(ctx context.Context, applicationID, questionID string) (*lifecycle.Snapshot, error)
	Recompute(ctx context.Context, applicationID string) (*lifecycle.Snapshot, error)
	GetReadModel(ctx context.Context, applicationID string) (*lifecycle.ReadModel, error)
}

// TransitionEngine applies admin actions.
type TransitionEngine interface {
	Accept(ctx context.Context, applicationID string) (*models.Application, error)
	Waitlist(ctx context.Context, applicationID string) (*models.Application, error)
	Deactivate(ctx context.Context, applicationID, trigger string) (*models.Application, error)
}

// ApprovalService records and lists team sign-offs.
type ApprovalService interface {
	RecordApproval(ctx context.Context, applicationID, teamKey, approverID string) error
	ListApprovals(ctx context.Context, applicationID string) ([]models.ApprovalRecord, error)
}

// AutomationRunner executes a dispatch run.
type AutomationRunner interface {
	RunDueAutomations(ctx context.Context, now time.Time) automation.Summary
}

// EmailLogReader serves the admin view of an automation's send history.
type EmailLogReader interface {
	ListByAutomation(ctx context.Context, automationID string, limit int) ([]models.EmailLog, error)
}

// SchemaCache serves and invalidates the cached form definition.
type SchemaCache interface {
	Get(ctx context.Context) (*models.Schema, error)
	Invalidate(ctx context.Context) error
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server wires handlers onto a mux router.
type Server struct {
	lifecycle    LifecycleService
	transitions  TransitionEngine
	approvals    ApprovalService
	automations  AutomationRunner
	emailLogs    EmailLogReader
	schema       SchemaCache
	healthChecks map[string]HealthCheck
	triggerToken string
	logger       logger.Logger
}

func New(
	lifecycleSvc LifecycleService,
	transitions TransitionEngine,
	approvals ApprovalService,
	automations AutomationRunner,
	emailLogs EmailLogReader,
	schema SchemaCache,
	healthChecks map[string]HealthCheck,
	triggerToken string,
	log logger.Logger,
) *Server {
	return &Server{
		lifecycle:    lifecycleSvc,
		transitions:  transitions,
		approvals:    approvals,
		automations:  automations,
		emailLogs:    emailLogs,
		schema:       schema,
		healthChecks: healthChecks,
		triggerToken: triggerToken,
		logger:       log,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/applications/{id}", s.handleGetApplication).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}/responses/{questionId}", s.handleSubmitResponse).Methods(http.MethodPut)
	api.HandleFunc("/applications/{id}/responses/{questionId}", s.handleDeleteResponse).Methods(http.MethodDelete)
	api.HandleFunc("/applications/{id}/recompute", s.handleRecompute).Methods(http.MethodPost)

	api.HandleFunc("/applications/{id}/approvals", s.handleRecordApproval).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/approvals", s.handleListApprovals).Methods(http.MethodGet)

	api.HandleFunc("/applications/{id}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/waitlist", s.handleWaitlist).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/withdraw", s.handleDeactivate("withdraw")).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/defer", s.handleDeactivate("defer")).Methods(http.MethodPost)
	api.HandleFunc("/applications/{id}/deactivate", s.handleDeactivate("deactivate")).Methods(http.MethodPost)

	api.HandleFunc("/schema", s.handleGetSchema).Methods(http.MethodGet)
	api.HandleFunc("/schema/invalidate", s.handleInvalidateSchema).Methods(http.MethodPost)

	api.HandleFunc("/automations/run", s.handleRunAutomations).Methods(http.MethodPost)
	api.HandleFunc("/automations/{id}/logs", s.handleListEmailLogs).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
