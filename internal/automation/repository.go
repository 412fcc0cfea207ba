// internal/automation/repository.go
package automation

import (
	"context"
	"database/sql"
	"time"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Repository persists email automations and their claim state.
type Repository struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewRepository(db *database.PostgresClient, log logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

const automationColumns = `
	id, name, trigger_type, event_key, template_key,
	schedule_day, schedule_hour, audience_filter, last_sent_at, is_active`

// ListScheduled returns every active wall-clock automation. Due filtering
// happens in the dispatcher so the timezone math lives in one place.
func (r *Repository) ListScheduled(ctx context.Context) ([]models.EmailAutomation, error) {
	query := `SELECT ` + automationColumns + `
		FROM email_automations
		WHERE is_active = TRUE AND trigger_type = $1
		ORDER BY id`

	return r.list(ctx, query, string(models.TriggerTypeScheduled))
}

// ListByEvent returns the active automations bound to a notification event.
func (r *Repository) ListByEvent(ctx context.Context, eventKey string) ([]models.EmailAutomation, error) {
	query := `SELECT ` + automationColumns + `
		FROM email_automations
		WHERE is_active = TRUE AND trigger_type = $1 AND event_key = $2
		ORDER BY id`

	return r.list(ctx, query, string(models.TriggerTypeEvent), eventKey)
}

// Claim atomically marks an automation as sent for this period. The WHERE
// clause repeats the due check on last_sent_at, so out of any number of concurrent
// invocations exactly one observes an affected row. A false return means
// another invocation already owns this period.
func (r *Repository) Claim(ctx context.Context, automationID string, now time.Time, minPeriod time.Duration) (bool, error) {
	query := `
		UPDATE email_automations
		SET last_sent_at = $2
		WHERE id = $1
		  AND is_active = TRUE
		  AND (last_sent_at IS NULL OR last_sent_at < $3)`

	result, err := r.db.GetDB().ExecContext(ctx, query, automationID, now, now.Add(-minPeriod))
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("claim automation", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("claim automation", err)
	}
	return affected == 1, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]models.EmailAutomation, error) {
	rows, err := r.db.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list automations", nil)
		return nil, apperrors.NewQueryExecutionFailedError("list automations", err)
	}
	defer rows.Close()

	var out []models.EmailAutomation
	for rows.Next() {
		var a models.EmailAutomation
		var eventKey sql.NullString
		var lastSentAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Name, &a.TriggerType, &eventKey, &a.TemplateKey,
			&a.ScheduleDay, &a.ScheduleHour, &a.AudienceFilter, &lastSentAt, &a.IsActive); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan automation", err)
		}
		if eventKey.Valid {
			a.EventKey = eventKey.String
		}
		if lastSentAt.Valid {
			t := lastSentAt.Time
			a.LastSentAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
