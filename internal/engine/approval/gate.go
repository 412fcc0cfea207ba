// internal/engine/approval/gate.go

// Package approval tracks per-team sign-offs and answers acceptance
// eligibility. Recording an approval never transitions status by itself.
package approval

import (
	"context"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// Gate persists approvals and evaluates the acceptance threshold.
type Gate struct {
	db        *database.PostgresClient
	threshold int
	teams     []string
	logger    logger.Logger
}

func NewGate(db *database.PostgresClient, threshold int, teams []string, log logger.Logger) *Gate {
	return &Gate{db: db, threshold: threshold, teams: teams, logger: log}
}

// RecordApproval upserts one team's sign-off. Re-approving from the same team
// refreshes the approver and timestamp instead of adding a row, so concurrent
// same-team approvals are idempotent without locking.
func (g *Gate) RecordApproval(ctx context.Context, applicationID, teamKey, approverID string) error {
	if !g.validTeam(teamKey) {
		return apperrors.NewBusinessRuleError("Unknown approval team", "teamKey: "+teamKey)
	}

	query := `
		INSERT INTO approvals (application_id, team_key, approved_by, approved_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (application_id, team_key)
		DO UPDATE SET approved_by = EXCLUDED.approved_by, approved_at = NOW()`

	if _, err := g.db.GetDB().ExecContext(ctx, query, applicationID, teamKey, approverID); err != nil {
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"application_id": applicationID,
			"team_key":       teamKey,
		}).Error("Failed to record approval", nil)
		return apperrors.NewQueryExecutionFailedError("record approval", err)
	}

	g.logger.WithFields(map[string]interface{}{
		"application_id": applicationID,
		"team_key":       teamKey,
		"approver_id":    approverID,
	}).Info("Approval recorded", nil)
	return nil
}

// ApprovedTeamCount returns the number of distinct teams that have signed off.
// Multiple approvals from one team count once.
func (g *Gate) ApprovedTeamCount(ctx context.Context, applicationID string) (int, error) {
	var count int
	err := g.db.GetDB().QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT team_key) FROM approvals WHERE application_id = $1`,
		applicationID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("count approvals", err)
	}
	return count, nil
}

// IsEligible reports accept-eligibility: distinct approving teams at or above
// the threshold while the application sits in applicant/under_review. The
// count is returned alongside so callers can report how far short an
// ineligible application fell.
func (g *Gate) IsEligible(ctx context.Context, app *models.Application) (bool, int, error) {
	if app.Status != models.StatusApplicant || app.SubStatus != models.SubStatusUnderReview {
		return false, 0, nil
	}
	count, err := g.ApprovedTeamCount(ctx, app.ID)
	if err != nil {
		return false, 0, err
	}
	return count >= g.threshold, count, nil
}

// ListApprovals returns the sign-off records for an application, for the admin
// read model.
func (g *Gate) ListApprovals(ctx context.Context, applicationID string) ([]models.ApprovalRecord, error) {
	rows, err := g.db.GetDB().QueryContext(ctx, `
		SELECT application_id, team_key, approved_by, approved_at
		FROM approvals
		WHERE application_id = $1
		ORDER BY approved_at`,
		applicationID,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list approvals", err)
	}
	defer rows.Close()

	var records []models.ApprovalRecord
	for rows.Next() {
		var rec models.ApprovalRecord
		if err := rows.Scan(&rec.ApplicationID, &rec.TeamKey, &rec.ApprovedBy, &rec.ApprovedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan approval", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (g *Gate) validTeam(teamKey string) bool {
	for _, t := range g.teams {
		if t == teamKey {
			return true
		}
	}
	return false
}
