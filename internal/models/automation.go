// internal/models/automation.go
package models

import (
	"encoding/json"
	"time"
)

// TriggerType distinguishes event-driven automations from wall-clock ones.
type TriggerType string

const (
	TriggerTypeEvent     TriggerType = "event"
	TriggerTypeScheduled TriggerType = "scheduled"
)

// EmailAutomation is a template send rule. For scheduled automations,
// ScheduleDay (0=Sunday..6=Saturday) and ScheduleHour (0-23) are interpreted
// in the organization's configured timezone. LastSentAt backs the at-most-once
// per period claim.
type EmailAutomation struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TriggerType    TriggerType     `json:"triggerType"`
	EventKey       string          `json:"eventKey,omitempty"`
	TemplateKey    string          `json:"templateKey"`
	ScheduleDay    int             `json:"scheduleDay"`
	ScheduleHour   int             `json:"scheduleHour"`
	AudienceFilter json.RawMessage `json:"audienceFilter"`
	LastSentAt     *time.Time      `json:"lastSentAt,omitempty"`
	IsActive       bool            `json:"isActive"`
}

// EmailLog is an append-only record of one send attempt.
type EmailLog struct {
	ID           string    `json:"id"`
	AutomationID *string   `json:"automationId,omitempty"`
	Recipient    string    `json:"recipient"`
	TemplateKey  string    `json:"templateKey"`
	Status       string    `json:"status"` // sent | skipped | failed
	Error        *string   `json:"error,omitempty"`
	SentAt       time.Time `json:"sentAt"`
}

const (
	EmailStatusSent = "sent"
	// EmailStatusSkipped marks dry runs: delivery was disabled, nothing left
	// the building.
	EmailStatusSkipped = "skipped"
	EmailStatusFailed  = "failed"
)
