// internal/email/log_repository.go
package email

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/models"
)

// LogRepository is the append-only email audit trail.
type LogRepository struct {
	db *database.PostgresClient
}

func NewLogRepository(db *database.PostgresClient) *LogRepository {
	return &LogRepository{db: db}
}

// Append writes one send-attempt row.
func (r *LogRepository) Append(ctx context.Context, entry models.EmailLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO email_logs (id, automation_id, recipient, template_key, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.GetDB().ExecContext(ctx, query,
		entry.ID, entry.AutomationID, entry.Recipient, entry.TemplateKey,
		entry.Status, entry.Error, entry.SentAt)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("append email log", err)
	}
	return nil
}

// ListByAutomation returns the most recent send attempts for one automation.
func (r *LogRepository) ListByAutomation(ctx context.Context, automationID string, limit int) ([]models.EmailLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, automation_id, recipient, template_key, status, error, sent_at
		FROM email_logs
		WHERE automation_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`

	rows, err := r.db.GetDB().QueryContext(ctx, query, automationID, limit)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list email logs", err)
	}
	defer rows.Close()

	var out []models.EmailLog
	for rows.Next() {
		var entry models.EmailLog
		var automation, errMsg sql.NullString
		if err := rows.Scan(&entry.ID, &automation, &entry.Recipient, &entry.TemplateKey,
			&entry.Status, &errMsg, &entry.SentAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan email log", err)
		}
		if automation.Valid {
			entry.AutomationID = &automation.String
		}
		if errMsg.Valid {
			entry.Error = &errMsg.String
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
