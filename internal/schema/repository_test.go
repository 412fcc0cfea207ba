package schema

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
)

func createTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(&database.PostgresClient{DB: db}, logger.NewTestLogger(t)), mock
}

func sectionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "order_index", "required_status", "is_active"}).
		AddRow("sec-1", "Basics", 0, nil, true).
		AddRow("sec-2", "Medical", 1, "camper", true)
}

func TestLoadSchema(t *testing.T) {
	repo, mock := createTestRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sections")).WillReturnRows(sectionRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM questions")).WillReturnRows(
		sqlmock.NewRows([]string{
			"id", "section_id", "question_type", "is_required", "is_active",
			"order_index", "show_if_question_id", "show_if_answer", "detail_prompt_trigger",
		}).
			AddRow("q1", "sec-1", "select", true, true, 0, nil, nil, nil).
			AddRow("q2", "sec-1", "text", false, true, 1, "q1", "yes", []byte(`{other,unsure}`)))

	schema, err := repo.LoadSchema(context.Background())
	require.NoError(t, err)

	require.Len(t, schema.Sections, 2)
	assert.Nil(t, schema.Sections[0].RequiredStatus)
	require.NotNil(t, schema.Sections[1].RequiredStatus)
	assert.Equal(t, "camper", string(*schema.Sections[1].RequiredStatus))

	require.Len(t, schema.Questions, 2)
	assert.Nil(t, schema.Questions[0].ShowIfQuestionID)
	assert.Nil(t, schema.Questions[0].DetailPromptTrigger)

	q2 := schema.Questions[1]
	require.NotNil(t, q2.ShowIfQuestionID)
	assert.Equal(t, "q1", *q2.ShowIfQuestionID)
	assert.Equal(t, []string{"other", "unsure"}, q2.DetailPromptTrigger)
}

func TestLoadSchema_QueryTimeout(t *testing.T) {
	repo, mock := createTestRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sections")).
		WillReturnError(context.DeadlineExceeded)

	_, err := repo.LoadSchema(context.Background())
	require.Error(t, err)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeQueryTimeout, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}
