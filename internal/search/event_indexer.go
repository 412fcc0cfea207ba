// internal/search/event_indexer.go
package search

import (
	"context"

	"camp-lifecycle/internal/common/database"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// EventIndexer subscribes to notification events and refreshes the search
// mirror for the affected application. Failures are logged and swallowed;
// search lag never fails a lifecycle operation.
type EventIndexer struct {
	indexer *Indexer
	db      *database.PostgresClient
	logger  logger.Logger
}

func NewEventIndexer(indexer *Indexer, db *database.PostgresClient, log logger.Logger) *EventIndexer {
	return &EventIndexer{indexer: indexer, db: db, logger: log}
}

// HandleEvent implements the in-process subscriber contract. Deactivated
// applications leave the admin search mirror; everything else refreshes its
// document.
func (e *EventIndexer) HandleEvent(ctx context.Context, event models.NotificationEvent) {
	if event.Key == models.EventApplicationDeactivated {
		if err := e.indexer.DeleteApplication(ctx, event.ApplicationID); err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"application_id": event.ApplicationID,
			}).Warn("Search document removal failed", nil)
		}
		return
	}

	app, user, teams, err := e.load(ctx, event.ApplicationID)
	if err != nil {
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"application_id": event.ApplicationID,
		}).Warn("Skipping search index refresh", nil)
		return
	}

	if err := e.indexer.IndexApplication(ctx, *app, *user, teams); err != nil {
		e.logger.WithError(err).Warn("Search index refresh failed", nil)
	}
}

func (e *EventIndexer) load(ctx context.Context, applicationID string) (*models.Application, *models.User, []string, error) {
	var app models.Application
	var user models.User
	err := e.db.GetDB().QueryRowContext(ctx, `
		SELECT a.id, a.user_id, a.status, a.sub_status, a.completion_percentage, a.paid,
		       u.email, u.first_name, u.last_name
		FROM applications a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`,
		applicationID,
	).Scan(&app.ID, &app.UserID, &app.Status, &app.SubStatus, &app.CompletionPercentage, &app.Paid,
		&user.Email, &user.FirstName, &user.LastName)
	if err != nil {
		return nil, nil, nil, err
	}
	user.ID = app.UserID

	rows, err := e.db.GetDB().QueryContext(ctx,
		`SELECT team_key FROM approvals WHERE application_id = $1 ORDER BY team_key`,
		applicationID,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var team string
		if err := rows.Scan(&team); err != nil {
			return nil, nil, nil, err
		}
		teams = append(teams, team)
	}
	return &app, &user, teams, rows.Err()
}
