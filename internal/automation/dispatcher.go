// internal/automation/dispatcher.go

// Package automation implements scheduled and event-triggered email sends.
// The external trigger is at-least-once; the atomic claim on last_sent_at
// converts that to at-most-once execution per period.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/common/metrics"
	"camp-lifecycle/internal/common/observability"
	"camp-lifecycle/internal/models"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	ListScheduled(ctx context.Context) ([]models.EmailAutomation, error)
	ListByEvent(ctx context.Context, eventKey string) ([]models.EmailAutomation, error)
	Claim(ctx context.Context, automationID string, now time.Time, minPeriod time.Duration) (bool, error)
}

// Audience resolves an automation's filter to recipients.
type Audience interface {
	Resolve(ctx context.Context, automationID string, rawFilter json.RawMessage) ([]models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// Sender renders and delivers one email, recording an EmailLog row either way.
type Sender interface {
	Send(ctx context.Context, automation models.EmailAutomation, recipient models.User) error
}

// Summary is the outcome of one dispatch run.
type Summary struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Errors    []string `json:"errors,omitempty"`
}

// Dispatcher walks due automations and fans out sends.
type Dispatcher struct {
	store     Store
	audience  Audience
	sender    Sender
	location  *time.Location
	minPeriod time.Duration
	obs       *observability.Observability
	logger    logger.Logger
}

func NewDispatcher(
	store Store,
	audience Audience,
	sender Sender,
	location *time.Location,
	minPeriod time.Duration,
	obs *observability.Observability,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:     store,
		audience:  audience,
		sender:    sender,
		location:  location,
		minPeriod: minPeriod,
		obs:       obs,
		logger:    log,
	}
}

// RunDueAutomations executes every scheduled automation whose slot matches now
// in the organization's timezone. Converting through the location means DST
// shifts come from timezone rules, never manual offsets. Per-recipient
// failures are logged and do not revert the period claim; a partial send is
// still sent for this period.
func (d *Dispatcher) RunDueAutomations(ctx context.Context, now time.Time) Summary {
	start := time.Now()
	nowLocal := now.In(d.location)

	summary := Summary{}
	automations, err := d.store.ListScheduled(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		d.finish(ctx, start, "error")
		return summary
	}

	for _, a := range automations {
		if !d.isDue(a, now, nowLocal) {
			continue
		}

		claimed, err := d.store.Claim(ctx, a.ID, now, d.minPeriod)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", a.ID, err))
			continue
		}
		if !claimed {
			metrics.AutomationClaimsLost.Inc()
			d.logger.WithFields(map[string]interface{}{
				"automation_id": a.ID,
			}).Debug("Automation already claimed for this period, skipping", nil)
			continue
		}

		summary.Processed++
		sent, errs := d.fanOut(ctx, a)
		summary.Sent += sent
		summary.Errors = append(summary.Errors, errs...)
	}

	outcome := "success"
	if len(summary.Errors) > 0 {
		outcome = "partial"
	}
	d.finish(ctx, start, outcome)

	d.logger.WithFields(map[string]interface{}{
		"processed": summary.Processed,
		"sent":      summary.Sent,
		"errors":    len(summary.Errors),
	}).Info("Dispatch run finished", nil)
	return summary
}

// RunEventAutomations fires the automations bound to a notification event at
// the event's own user. There is no period claim here; each event occurrence
// is its own send.
func (d *Dispatcher) RunEventAutomations(ctx context.Context, event models.NotificationEvent) Summary {
	summary := Summary{}

	automations, err := d.store.ListByEvent(ctx, event.Key)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary
	}
	if len(automations) == 0 {
		return summary
	}

	user, err := d.audience.GetUser(ctx, event.UserID)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary
	}

	for _, a := range automations {
		summary.Processed++
		if err := d.sender.Send(ctx, a, *user); err != nil {
			metrics.AutomationEmailsSent.WithLabelValues("failed").Inc()
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s -> %s: %v", a.ID, user.Email, err))
			continue
		}
		metrics.AutomationEmailsSent.WithLabelValues("sent").Inc()
		summary.Sent++
	}
	return summary
}

// HandleEvent lets the dispatcher subscribe to in-process notification
// events.
func (d *Dispatcher) HandleEvent(ctx context.Context, event models.NotificationEvent) {
	summary := d.RunEventAutomations(ctx, event)
	for _, e := range summary.Errors {
		d.logger.WithFields(map[string]interface{}{
			"event": event.Key,
			"error": e,
		}).Error("Event automation failed", nil)
	}
}

// isDue checks the weekday/hour slot and the minimum-period spacing. The
// spacing check repeats inside Claim; here it only avoids pointless claim
// attempts.
func (d *Dispatcher) isDue(a models.EmailAutomation, now, nowLocal time.Time) bool {
	if int(nowLocal.Weekday()) != a.ScheduleDay || nowLocal.Hour() != a.ScheduleHour {
		return false
	}
	if a.LastSentAt != nil && now.Sub(*a.LastSentAt) <= d.minPeriod {
		return false
	}
	return true
}

func (d *Dispatcher) fanOut(ctx context.Context, a models.EmailAutomation) (int, []string) {
	recipients, err := d.audience.Resolve(ctx, a.ID, a.AudienceFilter)
	if err != nil {
		return 0, []string{fmt.Sprintf("%s: %v", a.ID, err)}
	}

	sent := 0
	var errs []string
	for _, user := range recipients {
		if err := d.sender.Send(ctx, a, user); err != nil {
			metrics.AutomationEmailsSent.WithLabelValues("failed").Inc()
			errs = append(errs, fmt.Sprintf("%s -> %s: %v", a.ID, user.Email, err))
			continue
		}
		metrics.AutomationEmailsSent.WithLabelValues("sent").Inc()
		sent++
	}
	return sent, errs
}

func (d *Dispatcher) finish(ctx context.Context, start time.Time, outcome string) {
	metrics.AutomationRuns.WithLabelValues(outcome).Inc()
	if d.obs != nil {
		d.obs.RecordDispatchRun(ctx, outcome)
		d.obs.RecordDispatchDuration(ctx, time.Since(start), outcome)
	}
}
