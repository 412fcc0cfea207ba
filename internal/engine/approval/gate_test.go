package approval

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camp-lifecycle/internal/common/database"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

var testTeams = []string{"operations", "medical", "behavioral_health"}

func createTestGate(t *testing.T) (*Gate, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gate := NewGate(&database.PostgresClient{DB: db}, 3, testTeams, logger.NewTestLogger(t))
	return gate, mock
}

func TestRecordApproval_Upsert(t *testing.T) {
	gate, mock := createTestGate(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).
		WithArgs("app-1", "medical", "admin-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := gate.RecordApproval(context.Background(), "app-1", "medical", "admin-9")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordApproval_UnknownTeam(t *testing.T) {
	gate, mock := createTestGate(t)

	err := gate.RecordApproval(context.Background(), "app-1", "finance", "admin-9")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "unknown team must not reach the database")
}

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name          string
		status        models.Status
		sub           models.SubStatus
		distinctTeams int
		queryExpected bool
		want          bool
		wantCount     int
	}{
		{"three distinct teams under review", models.StatusApplicant, models.SubStatusUnderReview, 3, true, true, 3},
		{"two distinct teams is not enough", models.StatusApplicant, models.SubStatusUnderReview, 2, true, false, 2},
		{"not under review short-circuits", models.StatusApplicant, models.SubStatusIncomplete, 3, false, false, 0},
		{"camper is never accept-eligible", models.StatusCamper, models.SubStatusIncomplete, 3, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, mock := createTestGate(t)
			if tt.queryExpected {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT team_key)")).
					WithArgs("app-1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.distinctTeams))
			}

			app := &models.Application{ID: "app-1", Status: tt.status, SubStatus: tt.sub}
			got, count, err := gate.IsEligible(context.Background(), app)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCount, count)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApprovedTeamCount_DistinctTeamsOnly(t *testing.T) {
	gate, mock := createTestGate(t)

	// Three approval rows from two teams must report two.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT team_key)")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := gate.ApprovedTeamCount(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListApprovals(t *testing.T) {
	gate, mock := createTestGate(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT application_id, team_key, approved_by, approved_at")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "team_key", "approved_by", "approved_at"}).
			AddRow("app-1", "operations", "admin-1", now).
			AddRow("app-1", "medical", "admin-2", now))

	records, err := gate.ListApprovals(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "operations", records[0].TeamKey)
	assert.Equal(t, "medical", records[1].TeamKey)
}
