package transition

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

type fakeApprovals struct {
	count int
	err   error
	calls int
}

// Mirrors the gate's rule: three distinct teams while under review.
func (f *fakeApprovals) IsEligible(ctx context.Context, app *models.Application) (bool, int, error) {
	f.calls++
	if f.err != nil {
		return false, 0, f.err
	}
	if app.Status != models.StatusApplicant || app.SubStatus != models.SubStatusUnderReview {
		return false, 0, nil
	}
	return f.count >= 3, f.count, nil
}

type recordingPublisher struct {
	events []models.NotificationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.NotificationEvent) error {
	p.events = append(p.events, event)
	return nil
}

func createTestEngine(t *testing.T, approvals *fakeApprovals) (*Engine, sqlmock.Sqlmock, *recordingPublisher) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	publisher := &recordingPublisher{}
	engine := NewEngine(&database.PostgresClient{DB: db}, approvals, publisher, logger.NewTestLogger(t))
	return engine, mock, publisher
}

func expectGetApplication(mock sqlmock.Sqlmock, status models.Status, sub models.SubStatus) {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "status", "sub_status", "completion_percentage", "paid", "created_at", "updated_at",
	}).AddRow("app-1", "user-1", string(status), string(sub), 100, false, time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, status, sub_status")).
		WithArgs("app-1").
		WillReturnRows(rows)
}

func TestEvaluateCompletion(t *testing.T) {
	tests := []struct {
		name         string
		status       models.Status
		sub          models.SubStatus
		percentage   int
		hasResponses bool
		wantSub      models.SubStatus
		wantEvent    string
		wantChanged  bool
	}{
		{
			name:   "incomplete reaching 100 goes under review and fires submitted",
			status: models.StatusApplicant, sub: models.SubStatusIncomplete,
			percentage: 100, hasResponses: true,
			wantSub: models.SubStatusUnderReview, wantEvent: models.EventApplicationSubmitted, wantChanged: true,
		},
		{
			name:   "under review dropping below 100 goes back to incomplete",
			status: models.StatusApplicant, sub: models.SubStatusUnderReview,
			percentage: 80, hasResponses: true,
			wantSub: models.SubStatusIncomplete, wantChanged: true,
		},
		{
			name:   "under review staying at 100 is a no-op",
			status: models.StatusApplicant, sub: models.SubStatusUnderReview,
			percentage: 100, hasResponses: true,
			wantSub: models.SubStatusUnderReview,
		},
		{
			name:   "first response moves not_started to incomplete",
			status: models.StatusApplicant, sub: models.SubStatusNotStarted,
			percentage: 20, hasResponses: true,
			wantSub: models.SubStatusIncomplete, wantChanged: true,
		},
		{
			name:   "not_started with no responses stays put",
			status: models.StatusApplicant, sub: models.SubStatusNotStarted,
			percentage: 0, hasResponses: false,
			wantSub: models.SubStatusNotStarted,
		},
		{
			name:   "waitlisted ignores completion",
			status: models.StatusApplicant, sub: models.SubStatusWaitlisted,
			percentage: 100, hasResponses: true,
			wantSub: models.SubStatusWaitlisted,
		},
		{
			name:   "camper completing post-acceptance sections",
			status: models.StatusCamper, sub: models.SubStatusIncomplete,
			percentage: 100, hasResponses: true,
			wantSub: models.SubStatusComplete, wantChanged: true,
		},
		{
			name:   "camper reopened by a new required section",
			status: models.StatusCamper, sub: models.SubStatusComplete,
			percentage: 75, hasResponses: true,
			wantSub: models.SubStatusIncomplete, wantChanged: true,
		},
		{
			name:   "inactive never moves",
			status: models.StatusInactive, sub: models.SubStatusWithdrawn,
			percentage: 100, hasResponses: true,
			wantSub: models.SubStatusWithdrawn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCompletion(tt.status, tt.sub, tt.percentage, tt.hasResponses)
			assert.Equal(t, tt.wantSub, got.SubStatus)
			assert.Equal(t, tt.wantEvent, got.EventKey)
			assert.Equal(t, tt.wantChanged, got.Changed)
		})
	}
}

func TestAccept_Success(t *testing.T) {
	approvals := &fakeApprovals{count: 3}
	engine, mock, publisher := createTestEngine(t, approvals)

	expectGetApplication(mock, models.StatusApplicant, models.SubStatusUnderReview)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("app-1", string(models.StatusCamper), string(models.SubStatusIncomplete),
			string(models.StatusApplicant), string(models.SubStatusUnderReview)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	app, err := engine.Accept(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCamper, app.Status)
	assert.Equal(t, models.SubStatusIncomplete, app.SubStatus)
	assert.Equal(t, 1, approvals.calls, "eligibility must come from the gate")

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventApplicationAccepted, publisher.events[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccept_BelowThreshold(t *testing.T) {
	engine, mock, publisher := createTestEngine(t, &fakeApprovals{count: 2})

	expectGetApplication(mock, models.StatusApplicant, models.SubStatusUnderReview)

	_, err := engine.Accept(context.Background(), "app-1")
	require.Error(t, err)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeIneligibleForAcceptance, stdErr.Code)
	assert.Empty(t, publisher.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccept_NotUnderReview(t *testing.T) {
	engine, mock, _ := createTestEngine(t, &fakeApprovals{count: 3})

	expectGetApplication(mock, models.StatusApplicant, models.SubStatusIncomplete)

	_, err := engine.Accept(context.Background(), "app-1")
	require.Error(t, err)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeIneligibleForAcceptance, stdErr.Code)
}

func TestAccept_ConcurrentRaceLoser(t *testing.T) {
	engine, mock, publisher := createTestEngine(t, &fakeApprovals{count: 3})

	// The row left under_review between the read and the conditional update.
	expectGetApplication(mock, models.StatusApplicant, models.SubStatusUnderReview)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := engine.Accept(context.Background(), "app-1")
	require.Error(t, err)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeIneligibleForAcceptance, stdErr.Code)
	assert.Empty(t, publisher.events, "race loser must produce no side effects")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccept_ApplicationNotFound(t *testing.T) {
	engine, mock, _ := createTestEngine(t, &fakeApprovals{count: 3})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, status, sub_status")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := engine.Accept(context.Background(), "app-1")
	require.Error(t, err)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeApplicationNotFound, stdErr.Code)
}

func TestWaitlist_Success(t *testing.T) {
	engine, mock, publisher := createTestEngine(t, &fakeApprovals{})

	expectGetApplication(mock, models.StatusApplicant, models.SubStatusUnderReview)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	app, err := engine.Waitlist(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubStatusWaitlisted, app.SubStatus)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventApplicationWaitlisted, publisher.events[0].Key)
}

func TestWaitlist_NotUnderReview(t *testing.T) {
	engine, mock, publisher := createTestEngine(t, &fakeApprovals{})

	expectGetApplication(mock, models.StatusApplicant, models.SubStatusIncomplete)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := engine.Waitlist(context.Background(), "app-1")
	require.Error(t, err)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, stdErr.Code)
	assert.Empty(t, publisher.events)
}

func TestDeactivate(t *testing.T) {
	tests := []struct {
		trigger string
		wantSub models.SubStatus
	}{
		{"withdraw", models.SubStatusWithdrawn},
		{"defer", models.SubStatusDeferred},
		{"deactivate", models.SubStatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.trigger, func(t *testing.T) {
			engine, mock, publisher := createTestEngine(t, &fakeApprovals{})

			expectGetApplication(mock, models.StatusApplicant, models.SubStatusIncomplete)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
				WithArgs("app-1", string(models.StatusInactive), string(tt.wantSub)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			app, err := engine.Deactivate(context.Background(), "app-1", tt.trigger)
			require.NoError(t, err)
			assert.Equal(t, models.StatusInactive, app.Status)
			assert.Equal(t, tt.wantSub, app.SubStatus)

			require.Len(t, publisher.events, 1)
			assert.Equal(t, models.EventApplicationDeactivated, publisher.events[0].Key)
			assert.Equal(t, models.StatusInactive, publisher.events[0].Status)
		})
	}
}

func TestDeactivate_AlreadyInactive(t *testing.T) {
	engine, mock, publisher := createTestEngine(t, &fakeApprovals{})

	expectGetApplication(mock, models.StatusInactive, models.SubStatusWithdrawn)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := engine.Deactivate(context.Background(), "app-1", "withdraw")
	require.Error(t, err)
	assert.Empty(t, publisher.events)

	stdErr, ok := err.(*apperrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, stdErr.Code)
}

func TestDeactivate_UnknownTrigger(t *testing.T) {
	engine, _, _ := createTestEngine(t, &fakeApprovals{})

	_, err := engine.Deactivate(context.Background(), "app-1", "explode")
	require.Error(t, err)
}
