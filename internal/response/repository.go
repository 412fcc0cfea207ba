// internal/response/repository.go
package response

import (
	"context"
	"database/sql"

	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx. The
// lifecycle service passes its transaction here so a response write and the
// completion recompute commit together.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository persists application responses.
type Repository struct {
	logger logger.Logger
}

func NewRepository(log logger.Logger) *Repository {
	return &Repository{logger: log}
}

// Upsert writes one answer, replacing any previous answer for the same
// question.
func (r *Repository) Upsert(ctx context.Context, q Querier, resp models.Response) error {
	query := `
		INSERT INTO responses (application_id, question_id, value, file_key, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (application_id, question_id)
		DO UPDATE SET value = EXCLUDED.value, file_key = EXCLUDED.file_key, updated_at = NOW()`

	_, err := q.ExecContext(ctx, query, resp.ApplicationID, resp.QuestionID, resp.Value, resp.FileKey)
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"application_id": resp.ApplicationID,
			"question_id":    resp.QuestionID,
		}).Error("Failed to upsert response", nil)
		return apperrors.NewQueryExecutionFailedError("upsert response", err)
	}
	return nil
}

// Delete removes an answer. Deleting an answer that does not exist is a no-op;
// completion is still recomputed by the caller.
func (r *Repository) Delete(ctx context.Context, q Querier, applicationID, questionID string) error {
	query := `DELETE FROM responses WHERE application_id = $1 AND question_id = $2`

	if _, err := q.ExecContext(ctx, query, applicationID, questionID); err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"application_id": applicationID,
			"question_id":    questionID,
		}).Error("Failed to delete response", nil)
		return apperrors.NewQueryExecutionFailedError("delete response", err)
	}
	return nil
}

// ListByApplication returns every stored response for the application, keyed
// by question.
func (r *Repository) ListByApplication(ctx context.Context, q Querier, applicationID string) (map[string]models.Response, error) {
	query := `
		SELECT application_id, question_id, value, file_key, updated_at
		FROM responses
		WHERE application_id = $1`

	rows, err := q.QueryContext(ctx, query, applicationID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list responses", nil)
		return nil, apperrors.NewQueryExecutionFailedError("list responses", err)
	}
	defer rows.Close()

	out := make(map[string]models.Response)
	for rows.Next() {
		var resp models.Response
		var value, fileKey sql.NullString
		if err := rows.Scan(&resp.ApplicationID, &resp.QuestionID, &value, &fileKey, &resp.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan response", err)
		}
		if value.Valid {
			resp.Value = &value.String
		}
		if fileKey.Valid {
			resp.FileKey = &fileKey.String
		}
		out[resp.QuestionID] = resp
	}
	return out, rows.Err()
}
