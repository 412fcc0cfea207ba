// internal/models/event.go
package models

import "time"

// Notification event keys emitted by the transition engine.
const (
	EventApplicationSubmitted   = "application.submitted"
	EventApplicationAccepted    = "application.accepted"
	EventApplicationWaitlisted  = "application.waitlisted"
	EventApplicationDeactivated = "application.deactivated"
)

// NotificationEvent is the typed payload published to the notification
// dispatcher when an application crosses a lifecycle boundary.
type NotificationEvent struct {
	Key           string    `json:"key"`
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	Status        Status    `json:"status"`
	SubStatus     SubStatus `json:"subStatus"`
	OccurredAt    time.Time `json:"occurredAt"`
}
