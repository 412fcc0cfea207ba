// internal/search/indexer.go

// Package search mirrors application read models into Elasticsearch for the
// admin dashboard's filtering and free-text lookup. Indexing is best-effort;
// Postgres remains the source of truth.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"camp-lifecycle/internal/common/database"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

const applicationIndex = "applications"

// ApplicationDocument is the indexed shape of one application.
type ApplicationDocument struct {
	ApplicationID        string   `json:"application_id"`
	UserID               string   `json:"user_id"`
	UserEmail            string   `json:"user_email"`
	UserName             string   `json:"user_name"`
	Status               string   `json:"status"`
	SubStatus            string   `json:"sub_status"`
	CompletionPercentage int      `json:"completion_percentage"`
	Paid                 bool     `json:"paid"`
	ApprovedByTeams      []string `json:"approved_by_teams"`
	UpdatedAt            string   `json:"updated_at"`
}

// Indexer writes application documents.
type Indexer struct {
	es     *database.ElasticsearchClient
	logger logger.Logger
}

func NewIndexer(es *database.ElasticsearchClient, log logger.Logger) *Indexer {
	return &Indexer{es: es, logger: log}
}

// IndexApplication upserts one document keyed by application ID.
func (i *Indexer) IndexApplication(ctx context.Context, app models.Application, user models.User, approvedTeams []string) error {
	if i.es == nil {
		return nil
	}

	doc := ApplicationDocument{
		ApplicationID:        app.ID,
		UserID:               app.UserID,
		UserEmail:            user.Email,
		UserName:             user.FirstName + " " + user.LastName,
		Status:               string(app.Status),
		SubStatus:            string(app.SubStatus),
		CompletionPercentage: app.CompletionPercentage,
		Paid:                 app.Paid,
		ApprovedByTeams:      approvedTeams,
		UpdatedAt:            time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := i.es.Client.Index(
		applicationIndex,
		bytes.NewReader(body),
		i.es.Client.Index.WithContext(ctx),
		i.es.Client.Index.WithDocumentID(app.ID),
	)
	if err != nil {
		i.logger.WithError(err).WithFields(map[string]interface{}{
			"application_id": app.ID,
		}).Warn("Failed to index application", nil)
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		err := fmt.Errorf("index application: %s", res.Status())
		i.logger.WithError(err).Warn("Elasticsearch rejected application document", nil)
		return err
	}
	return nil
}

// DeleteApplication removes a document once the application leaves the active
// pipeline. A missing document is fine; the mirror may never have seen it.
func (i *Indexer) DeleteApplication(ctx context.Context, applicationID string) error {
	if i.es == nil {
		return nil
	}

	res, err := i.es.Client.Delete(
		applicationIndex,
		applicationID,
		i.es.Client.Delete.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete application document: %s", res.Status())
	}
	return nil
}
