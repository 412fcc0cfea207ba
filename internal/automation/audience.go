// internal/automation/audience.go
package automation

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
	"github.com/xeipuuv/gojsonschema"

	"camp-lifecycle/internal/common/database"
	apperrors "camp-lifecycle/internal/common/errors"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

// audienceFilterSchema constrains the stored audience_filter JSON. Unknown
// keys are rejected so a typo like "statsues" fails loudly instead of
// selecting everyone.
const audienceFilterSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"statuses": {
			"type": "array",
			"items": {"type": "string", "enum": ["applicant", "camper", "inactive"]}
		},
		"sub_statuses": {
			"type": "array",
			"items": {"type": "string"}
		},
		"paid": {"type": "boolean"},
		"min_completion": {"type": "integer", "minimum": 0, "maximum": 100}
	}
}`

// audienceFilter is the decoded form. Empty fields do not constrain.
type audienceFilter struct {
	Statuses      []string `json:"statuses"`
	SubStatuses   []string `json:"sub_statuses"`
	Paid          *bool    `json:"paid"`
	MinCompletion *int     `json:"min_completion"`
}

// AudienceResolver turns an automation's audience_filter into recipient users.
type AudienceResolver struct {
	db     *database.PostgresClient
	schema *gojsonschema.Schema
	logger logger.Logger
}

func NewAudienceResolver(db *database.PostgresClient, log logger.Logger) (*AudienceResolver, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(audienceFilterSchema))
	if err != nil {
		return nil, err
	}
	return &AudienceResolver{db: db, schema: schema, logger: log}, nil
}

// Resolve validates the filter and selects the matching users. One user with
// several matching applications receives one email.
func (r *AudienceResolver) Resolve(ctx context.Context, automationID string, rawFilter json.RawMessage) ([]models.User, error) {
	filter, err := r.parse(automationID, rawFilter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT DISTINCT u.id, u.email, u.first_name, u.last_name, u.role
		FROM users u
		JOIN applications a ON a.user_id = u.id
		WHERE ($1::text[] IS NULL OR a.status = ANY($1))
		  AND ($2::text[] IS NULL OR a.sub_status = ANY($2))
		  AND ($3::boolean IS NULL OR a.paid = $3)
		  AND ($4::int IS NULL OR a.completion_percentage >= $4)
		ORDER BY u.email`

	var statuses, subStatuses interface{}
	if len(filter.Statuses) > 0 {
		statuses = pq.Array(filter.Statuses)
	}
	if len(filter.SubStatuses) > 0 {
		subStatuses = pq.Array(filter.SubStatuses)
	}

	rows, err := r.db.GetDB().QueryContext(ctx, query, statuses, subStatuses, filter.Paid, filter.MinCompletion)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("resolve audience", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan audience user", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser fetches one user for event-triggered sends.
func (r *AudienceResolver) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := r.db.GetDB().QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, role FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewBusinessRuleError("Recipient user not found", "userId: "+userID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get user", err)
	}
	return &u, nil
}

func (r *AudienceResolver) parse(automationID string, rawFilter json.RawMessage) (*audienceFilter, error) {
	if len(rawFilter) == 0 {
		return &audienceFilter{}, nil
	}

	result, err := r.schema.Validate(gojsonschema.NewBytesLoader(rawFilter))
	if err != nil {
		return nil, apperrors.NewInvalidAudienceFilterError(automationID, err.Error())
	}
	if !result.Valid() {
		details := ""
		for _, desc := range result.Errors() {
			if details != "" {
				details += "; "
			}
			details += desc.String()
		}
		return nil, apperrors.NewInvalidAudienceFilterError(automationID, details)
	}

	var filter audienceFilter
	if err := json.Unmarshal(rawFilter, &filter); err != nil {
		return nil, apperrors.NewInvalidAudienceFilterError(automationID, err.Error())
	}
	return &filter, nil
}
