// internal/engine/lifecycle/service.go

// Package lifecycle orchestrates the write path: a response write, the
// completion recompute it triggers, and any auto-transition commit as one
// transaction, so no snapshot ever shows a percentage that disagrees with the
// stored responses.
package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/common/metrics"
	"camp-lifecycle/internal/engine/completion"
	"camp-lifecycle/internal/engine/transition"
	"camp-lifecycle/internal/models"
	"camp-lifecycle/internal/response"
)

// SchemaProvider yields the current form definition.
type SchemaProvider interface {
	Get(ctx context.Context) (*models.Schema, error)
}

// ApprovalLister exposes recorded sign-offs for read models.
type ApprovalLister interface {
	ListApprovals(ctx context.Context, applicationID string) ([]models.ApprovalRecord, error)
}

// Service is the response write path plus the application read model.
type Service struct {
	db         *database.PostgresClient
	schema     SchemaProvider
	responses  *response.Repository
	calculator *completion.Calculator
	approvals  ApprovalLister
	publisher  transition.EventPublisher
	logger     logger.Logger
}

func NewService(
	db *database.PostgresClient,
	schema SchemaProvider,
	responses *response.Repository,
	calculator *completion.Calculator,
	approvals ApprovalLister,
	publisher transition.EventPublisher,
	log logger.Logger,
) *Service {
	return &Service{
		db:         db,
		schema:     schema,
		responses:  responses,
		calculator: calculator,
		approvals:  approvals,
		publisher:  publisher,
		logger:     log,
	}
}

// Snapshot is the committed state after a write.
type Snapshot struct {
	Application models.Application `json:"application"`
	Completion  completion.Result  `json:"completion"`
}

// SubmitResponse upserts one answer and recomputes downstream state. The
// application row is locked for the duration so two near-simultaneous writes
// to the same application serialize their recomputes.
func (s *Service) SubmitResponse(ctx context.Context, applicationID, questionID string, value, fileKey *string) (*Snapshot, error) {
	schema, err := s.schema.Get(ctx)
	if err != nil {
		return nil, apperrors.NewSchemaLoadFailedError(err)
	}
	if _, ok := schema.QuestionByID()[questionID]; !ok {
		return nil, apperrors.NewQuestionNotFoundError(questionID)
	}

	return s.writeAndRecompute(ctx, schema, applicationID, "submit", func(tx *sql.Tx) error {
		return s.responses.Upsert(ctx, tx, models.Response{
			ApplicationID: applicationID,
			QuestionID:    questionID,
			Value:         value,
			FileKey:       fileKey,
		})
	})
}

// DeleteResponse removes an answer and recomputes. Deleting a required answer
// can legitimately move an application backward out of under_review.
func (s *Service) DeleteResponse(ctx context.Context, applicationID, questionID string) (*Snapshot, error) {
	schema, err := s.schema.Get(ctx)
	if err != nil {
		return nil, apperrors.NewSchemaLoadFailedError(err)
	}

	return s.writeAndRecompute(ctx, schema, applicationID, "delete", func(tx *sql.Tx) error {
		return s.responses.Delete(ctx, tx, applicationID, questionID)
	})
}

// Recompute refreshes the cached percentage without touching responses. Admin
// schema edits call this after invalidating the schema cache.
func (s *Service) Recompute(ctx context.Context, applicationID string) (*Snapshot, error) {
	schema, err := s.schema.Get(ctx)
	if err != nil {
		return nil, apperrors.NewSchemaLoadFailedError(err)
	}
	return s.writeAndRecompute(ctx, schema, applicationID, "recompute", func(*sql.Tx) error { return nil })
}

func (s *Service) writeAndRecompute(ctx context.Context, schema *models.Schema, applicationID, trigger string, write func(tx *sql.Tx) error) (*Snapshot, error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionFailedError(err)
	}
	defer tx.Rollback()

	app, err := lockApplication(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	if err := write(tx); err != nil {
		return nil, err
	}

	responses, err := s.responses.ListByApplication(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	result := s.calculator.Calculate(schema, app.Status, responses)
	outcome := transition.EvaluateCompletion(app.Status, app.SubStatus, result.Percentage, len(responses) > 0)

	if _, err := tx.ExecContext(ctx, `
		UPDATE applications
		SET completion_percentage = $2, sub_status = $3, updated_at = NOW()
		WHERE id = $1`,
		applicationID, result.Percentage, outcome.SubStatus,
	); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("update application completion", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("commit response write", err)
	}

	metrics.CompletionRecomputes.WithLabelValues(trigger).Inc()
	metrics.CompletionRecomputeDuration.Observe(time.Since(start).Seconds())

	if outcome.Changed {
		metrics.StatusTransitions.WithLabelValues(
			string(app.Status)+"/"+string(app.SubStatus),
			string(app.Status)+"/"+string(outcome.SubStatus),
			"completion",
		).Inc()
		s.logger.WithFields(map[string]interface{}{
			"application_id": applicationID,
			"from":           string(app.SubStatus),
			"to":             string(outcome.SubStatus),
			"percentage":     result.Percentage,
		}).Info("Completion moved application sub-status", nil)
	}

	app.CompletionPercentage = result.Percentage
	app.SubStatus = outcome.SubStatus

	if outcome.EventKey != "" && s.publisher != nil {
		event := models.NotificationEvent{
			Key:           outcome.EventKey,
			ApplicationID: app.ID,
			UserID:        app.UserID,
			Status:        app.Status,
			SubStatus:     app.SubStatus,
			OccurredAt:    time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"event": outcome.EventKey,
			}).Error("Failed to publish notification event", nil)
		}
	}

	return &Snapshot{Application: *app, Completion: result}, nil
}

// ReadModel is the UI-facing view of one application.
type ReadModel struct {
	Application     models.Application      `json:"application"`
	Completion      completion.Result       `json:"completion"`
	ApprovedByTeams []string                `json:"approvedByTeams"`
	Approvals       []models.ApprovalRecord `json:"approvals"`
}

// GetReadModel assembles the application row, a live completion breakdown and
// the recorded approvals.
func (s *Service) GetReadModel(ctx context.Context, applicationID string) (*ReadModel, error) {
	schema, err := s.schema.Get(ctx)
	if err != nil {
		return nil, apperrors.NewSchemaLoadFailedError(err)
	}

	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	responses, err := s.responses.ListByApplication(ctx, s.db.GetDB(), applicationID)
	if err != nil {
		return nil, err
	}

	approvals, err := s.approvals.ListApprovals(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	teams := make([]string, 0, len(approvals))
	for _, rec := range approvals {
		teams = append(teams, rec.TeamKey)
	}

	return &ReadModel{
		Application:     *app,
		Completion:      s.calculator.Calculate(schema, app.Status, responses),
		ApprovedByTeams: teams,
		Approvals:       approvals,
	}, nil
}

func (s *Service) getApplication(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := s.db.GetDB().QueryRowContext(ctx, `
		SELECT id, user_id, status, sub_status, completion_percentage, paid, created_at, updated_at
		FROM applications WHERE id = $1`,
		applicationID,
	).Scan(&app.ID, &app.UserID, &app.Status, &app.SubStatus,
		&app.CompletionPercentage, &app.Paid, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get application", err)
	}
	return &app, nil
}

func lockApplication(ctx context.Context, tx *sql.Tx, applicationID string) (*models.Application, error) {
	var app models.Application
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, sub_status, completion_percentage, paid, created_at, updated_at
		FROM applications WHERE id = $1
		FOR UPDATE`,
		applicationID,
	).Scan(&app.ID, &app.UserID, &app.Status, &app.SubStatus,
		&app.CompletionPercentage, &app.Paid, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("lock application", err)
	}
	return &app, nil
}
