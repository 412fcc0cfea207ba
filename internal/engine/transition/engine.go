// internal/engine/transition/engine.go

// Package transition implements the (status, sub_status) state machine.
// Completion-driven moves are evaluated purely; admin actions are applied as
// single conditional updates so concurrent requests cannot double-apply.
package transition

import (
	"context"
	"database/sql"
	"time"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/common/metrics"
	"camp-lifecycle/internal/models"
)

// ApprovalChecker answers accept-eligibility. The eligibility rule lives in
// the approval gate; the engine only consumes the verdict.
type ApprovalChecker interface {
	IsEligible(ctx context.Context, app *models.Application) (bool, int, error)
}

// EventPublisher delivers notification events to the external dispatcher.
type EventPublisher interface {
	Publish(ctx context.Context, event models.NotificationEvent) error
}

// Engine applies lifecycle transitions.
type Engine struct {
	db        *database.PostgresClient
	approvals ApprovalChecker
	publisher EventPublisher
	logger    logger.Logger
}

func NewEngine(db *database.PostgresClient, approvals ApprovalChecker, publisher EventPublisher, log logger.Logger) *Engine {
	return &Engine{
		db:        db,
		approvals: approvals,
		publisher: publisher,
		logger:    log,
	}
}

// CompletionOutcome is the result of evaluating a completion change.
type CompletionOutcome struct {
	SubStatus models.SubStatus
	EventKey  string
	Changed   bool
}

// EvaluateCompletion maps a fresh completion percentage onto the next
// sub-status. It is pure; the caller persists the result inside its own
// transaction. Backward moves are deliberate: under_review tracks live
// completion, so deleting a required answer drops the application back to
// incomplete.
func EvaluateCompletion(status models.Status, sub models.SubStatus, percentage int, hasResponses bool) CompletionOutcome {
	switch status {
	case models.StatusApplicant:
		if sub == models.SubStatusWaitlisted {
			return CompletionOutcome{SubStatus: sub}
		}
		if percentage >= 100 {
			if sub == models.SubStatusUnderReview {
				return CompletionOutcome{SubStatus: sub}
			}
			return CompletionOutcome{
				SubStatus: models.SubStatusUnderReview,
				EventKey:  models.EventApplicationSubmitted,
				Changed:   true,
			}
		}
		if !hasResponses && sub == models.SubStatusNotStarted {
			return CompletionOutcome{SubStatus: sub}
		}
		if sub == models.SubStatusIncomplete {
			return CompletionOutcome{SubStatus: sub}
		}
		return CompletionOutcome{SubStatus: models.SubStatusIncomplete, Changed: true}

	case models.StatusCamper:
		next := models.SubStatusIncomplete
		if percentage >= 100 {
			next = models.SubStatusComplete
		}
		if next == sub {
			return CompletionOutcome{SubStatus: sub}
		}
		return CompletionOutcome{SubStatus: next, Changed: true}

	default:
		// Inactive applications never move on completion.
		return CompletionOutcome{SubStatus: sub}
	}
}

// Accept promotes an under-review application to camper/incomplete. The guard
// is twofold: the approval gate must report eligibility, and the conditional
// update must land while the row is still applicant/under_review. The loser
// of a concurrent accept sees an ineligibility error and no side effects.
func (e *Engine) Accept(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := e.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	eligible, approved, err := e.approvals.IsEligible(ctx, app)
	if err != nil {
		return nil, err
	}
	if !eligible {
		metrics.TransitionsRejected.WithLabelValues("accept", "ineligible").Inc()
		return nil, apperrors.NewIneligibleForAcceptanceError(applicationID, approved)
	}

	result, err := e.db.GetDB().ExecContext(ctx, `
		UPDATE applications
		SET status = $2, sub_status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND sub_status = $5`,
		applicationID,
		models.StatusCamper, models.SubStatusIncomplete,
		models.StatusApplicant, models.SubStatusUnderReview,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("accept application", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		metrics.TransitionsRejected.WithLabelValues("accept", "race_lost").Inc()
		return nil, apperrors.NewIneligibleForAcceptanceError(applicationID, approved)
	}

	app.Status = models.StatusCamper
	app.SubStatus = models.SubStatusIncomplete
	metrics.StatusTransitions.WithLabelValues("applicant/under_review", "camper/incomplete", "accept").Inc()
	e.logger.WithFields(map[string]interface{}{
		"application_id": applicationID,
	}).Info("Application accepted", nil)

	e.publish(ctx, models.EventApplicationAccepted, app)
	return app, nil
}

// Waitlist parks an under-review application. The same conditional-update
// guard as Accept applies, since a concurrent response edit can move the row
// out of under_review first.
func (e *Engine) Waitlist(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := e.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	result, err := e.db.GetDB().ExecContext(ctx, `
		UPDATE applications
		SET sub_status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND sub_status = $4`,
		applicationID,
		models.SubStatusWaitlisted,
		models.StatusApplicant, models.SubStatusUnderReview,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("waitlist application", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		metrics.TransitionsRejected.WithLabelValues("waitlist", "not_under_review").Inc()
		return nil, apperrors.NewInvalidTransitionError(
			string(app.Status)+"/"+string(app.SubStatus), "waitlist")
	}

	app.SubStatus = models.SubStatusWaitlisted
	metrics.StatusTransitions.WithLabelValues("applicant/under_review", "applicant/waitlisted", "waitlist").Inc()
	e.publish(ctx, models.EventApplicationWaitlisted, app)
	return app, nil
}

// Deactivate moves an application to the terminal inactive status. The trigger
// selects the sub-status: withdraw, defer, or a plain admin deactivation.
func (e *Engine) Deactivate(ctx context.Context, applicationID, trigger string) (*models.Application, error) {
	var sub models.SubStatus
	switch trigger {
	case "withdraw":
		sub = models.SubStatusWithdrawn
	case "defer":
		sub = models.SubStatusDeferred
	case "deactivate":
		sub = models.SubStatusInactive
	default:
		return nil, apperrors.NewInvalidTransitionError("?", trigger)
	}

	app, err := e.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	result, err := e.db.GetDB().ExecContext(ctx, `
		UPDATE applications
		SET status = $2, sub_status = $3, updated_at = NOW()
		WHERE id = $1 AND status <> $2`,
		applicationID, models.StatusInactive, sub,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("deactivate application", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		metrics.TransitionsRejected.WithLabelValues(trigger, "already_inactive").Inc()
		return nil, apperrors.NewInvalidTransitionError(
			string(app.Status)+"/"+string(app.SubStatus), trigger)
	}

	from := string(app.Status) + "/" + string(app.SubStatus)
	app.Status = models.StatusInactive
	app.SubStatus = sub
	metrics.StatusTransitions.WithLabelValues(from, "inactive/"+string(sub), trigger).Inc()
	e.logger.WithFields(map[string]interface{}{
		"application_id": applicationID,
		"trigger":        trigger,
	}).Info("Application deactivated", nil)

	e.publish(ctx, models.EventApplicationDeactivated, app)
	return app, nil
}

func (e *Engine) getApplication(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := e.db.GetDB().QueryRowContext(ctx, `
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

func (e *Engine) publish(ctx context.Context, key string, app *models.Application) {
	if e.publisher == nil {
		return
	}
	event := models.NotificationEvent{
		Key:           key,
		ApplicationID: app.ID,
		UserID:        app.UserID,
		Status:        app.Status,
		SubStatus:     app.SubStatus,
		OccurredAt:    time.Now().UTC(),
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		// Delivery is best-effort; the state change already committed.
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"event":          key,
			"application_id": app.ID,
		}).Error("Failed to publish notification event", nil)
	}
}
