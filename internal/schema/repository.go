// internal/schema/repository.go
package schema

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Repository loads the form definition from Postgres.
type Repository struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewRepository(db *database.PostgresClient, log logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// LoadSchema fetches every section and question, ordered for display. Inactive
// rows are included so the resolver can apply its own activity rules.
func (r *Repository) LoadSchema(ctx context.Context) (*models.Schema, error) {
	sections, err := r.loadSections(ctx)
	if err != nil {
		return nil, err
	}

	questions, err := r.loadQuestions(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Schema{Sections: sections, Questions: questions}, nil
}

func (r *Repository) loadSections(ctx context.Context) ([]models.Section, error) {
	query := `
		SELECT id, title, order_index, required_status, is_active
		FROM sections
		ORDER BY order_index`

	rows, err := r.db.GetDB().QueryContext(ctx, query)
	if err != nil {
		r.logger.WithError(err).Error("Failed to load sections", nil)
		return nil, queryError("load sections", err)
	}
	defer rows.Close()

	var sections []models.Section
	for rows.Next() {
		var sec models.Section
		var requiredStatus sql.NullString
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.OrderIndex, &requiredStatus, &sec.IsActive); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan section", err)
		}
		if requiredStatus.Valid {
			st := models.Status(requiredStatus.String)
			sec.RequiredStatus = &st
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (r *Repository) loadQuestions(ctx context.Context) ([]models.Question, error) {
	query := `
		SELECT id, section_id, question_type, is_required, is_active,
		       order_index, show_if_question_id, show_if_answer, detail_prompt_trigger
		FROM questions
		ORDER BY section_id, order_index`

	rows, err := r.db.GetDB().QueryContext(ctx, query)
	if err != nil {
		r.logger.WithError(err).Error("Failed to load questions", nil)
		return nil, queryError("load questions", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var showIfID, showIfAnswer sql.NullString
		if err := rows.Scan(&q.ID, &q.SectionID, &q.QuestionType, &q.IsRequired,
			&q.IsActive, &q.OrderIndex, &showIfID, &showIfAnswer,
			pq.Array(&q.DetailPromptTrigger)); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan question", err)
		}
		if showIfID.Valid {
			q.ShowIfQuestionID = &showIfID.String
		}
		if showIfAnswer.Valid {
			q.ShowIfAnswer = &showIfAnswer.String
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// queryError classifies a failed load. Deadline expiry gets its own code so
// callers can tell a slow database from a broken query.
func queryError(operation string, err error) *apperrors.StandardError {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(operation)
	}
	return apperrors.NewQueryExecutionFailedError(operation, err)
}
