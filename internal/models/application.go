// internal/models/application.go
package models

import "time"

// Status is the top-level application state.
type Status string

const (
	StatusApplicant Status = "applicant"
	StatusCamper    Status = "camper"
	StatusInactive  Status = "inactive"
)

// SubStatus refines Status. The valid domain depends on the status:
//
//	applicant: not_started, incomplete, complete, under_review, waitlisted
//	camper:    incomplete, complete
//	inactive:  withdrawn, deferred, inactive
type SubStatus string

const (
	SubStatusNotStarted  SubStatus = "not_started"
	SubStatusIncomplete  SubStatus = "incomplete"
	SubStatusComplete    SubStatus = "complete"
	SubStatusUnderReview SubStatus = "under_review"
	SubStatusWaitlisted  SubStatus = "waitlisted"
	SubStatusWithdrawn   SubStatus = "withdrawn"
	SubStatusDeferred    SubStatus = "deferred"
	SubStatusInactive    SubStatus = "inactive"
)

// Application owns all of its responses; deleting the application cascades to
// them. CompletionPercentage is a cache of the derived value, recomputed on
// every relevant write and never hand-edited.
type Application struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	Status               Status    `json:"status"`
	SubStatus            SubStatus `json:"subStatus"`
	CompletionPercentage int       `json:"completionPercentage"`
	Paid                 bool      `json:"paid"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Response is one answer row per (application, question). Answered means at
// least one of Value or FileKey is set.
type Response struct {
	ApplicationID string    `json:"applicationId"`
	QuestionID    string    `json:"questionId"`
	Value         *string   `json:"value,omitempty"`
	FileKey       *string   `json:"fileKey,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Answered reports whether the response carries a scalar value or a file.
func (r Response) Answered() bool {
	return r.Value != nil || r.FileKey != nil
}

// ApprovalRecord is a per-team sign-off, unique per (application, team).
// Re-approval refreshes ApprovedBy/ApprovedAt rather than duplicating.
type ApprovalRecord struct {
	ApplicationID string    `json:"applicationId"`
	TeamKey       string    `json:"teamKey"`
	ApprovedBy    string    `json:"approvedBy"`
	ApprovedAt    time.Time `json:"approvedAt"`
}

// User is the camper family account an application belongs to.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}
