package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/models"
)

type fakeStore struct {
	mu         sync.Mutex
	scheduled  []models.EmailAutomation
	byEvent    map[string][]models.EmailAutomation
	claimed    map[string]time.Time
	listErr    error
	claimErr   error
	claimCalls int
}

func (s *fakeStore) ListScheduled(ctx context.Context) ([]models.EmailAutomation, error) {
	return s.scheduled, s.listErr
}

func (s *fakeStore) ListByEvent(ctx context.Context, eventKey string) ([]models.EmailAutomation, error) {
	return s.byEvent[eventKey], s.listErr
}

func (s *fakeStore) Claim(ctx context.Context, automationID string, now time.Time, minPeriod time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if s.claimed == nil {
		s.claimed = make(map[string]time.Time)
	}
	if last, ok := s.claimed[automationID]; ok && now.Sub(last) <= minPeriod {
		return false, nil
	}
	s.claimed[automationID] = now
	return true, nil
}

type fakeAudience struct {
	users []models.User
	err   error
}

func (a *fakeAudience) Resolve(ctx context.Context, automationID string, rawFilter json.RawMessage) ([]models.User, error) {
	return a.users, a.err
}

func (a *fakeAudience) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &models.User{ID: userID, Email: userID + "@example.org"}, nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (s *fakeSender) Send(ctx context.Context, automation models.EmailAutomation, recipient models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[recipient.Email]; ok {
		return err
	}
	s.sent = append(s.sent, recipient.Email)
	return nil
}

func chicago(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

// mondayNineLocal returns a UTC instant that is Monday 09:xx in Chicago.
func mondayNineLocal(t *testing.T) time.Time {
	loc := chicago(t)
	local := time.Date(2026, 8, 17, 9, 30, 0, 0, loc) // a Monday
	require.Equal(t, time.Monday, local.Weekday())
	return local.UTC()
}

func weeklyAutomation(id string, lastSentAt *time.Time) models.EmailAutomation {
	return models.EmailAutomation{
		ID:           id,
		Name:         "weekly reminder",
		TriggerType:  models.TriggerTypeScheduled,
		TemplateKey:  "weekly_reminder",
		ScheduleDay:  int(time.Monday),
		ScheduleHour: 9,
		LastSentAt:   lastSentAt,
		IsActive:     true,
	}
}

func createTestDispatcher(t *testing.T, store *fakeStore, audience *fakeAudience, sender *fakeSender) *Dispatcher {
	return NewDispatcher(store, audience, sender, chicago(t), 168*time.Hour, nil, logger.NewTestLogger(t))
}

func TestRunDueAutomations_SendsMatchingSlot(t *testing.T) {
	store := &fakeStore{scheduled: []models.EmailAutomation{weeklyAutomation("auto-1", nil)}}
	audience := &fakeAudience{users: []models.User{
		{ID: "u1", Email: "a@example.org"},
		{ID: "u2", Email: "b@example.org"},
	}}
	sender := &fakeSender{}
	d := createTestDispatcher(t, store, audience, sender)

	summary := d.RunDueAutomations(context.Background(), mondayNineLocal(t))

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
	assert.Empty(t, summary.Errors)
	assert.ElementsMatch(t, []string{"a@example.org", "b@example.org"}, sender.sent)
}

func TestRunDueAutomations_SlotMismatchSkips(t *testing.T) {
	tests := []struct {
		name string
		mod  func(a *models.EmailAutomation)
	}{
		{"wrong weekday", func(a *models.EmailAutomation) { a.ScheduleDay = int(time.Tuesday) }},
		{"wrong hour", func(a *models.EmailAutomation) { a.ScheduleHour = 15 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := weeklyAutomation("auto-1", nil)
			tt.mod(&a)
			store := &fakeStore{scheduled: []models.EmailAutomation{a}}
			sender := &fakeSender{}
			d := createTestDispatcher(t, store, &fakeAudience{}, sender)

			summary := d.RunDueAutomations(context.Background(), mondayNineLocal(t))

			assert.Zero(t, summary.Processed)
			assert.Zero(t, store.claimCalls, "non-due automations must not be claimed")
		})
	}
}

func TestRunDueAutomations_MinimumPeriodBlocksRefire(t *testing.T) {
	now := mondayNineLocal(t)

	// Sent 30 minutes ago: the same matching hour must not fire twice.
	recent := now.Add(-30 * time.Minute)
	store := &fakeStore{scheduled: []models.EmailAutomation{weeklyAutomation("auto-1", &recent)}}
	sender := &fakeSender{}
	d := createTestDispatcher(t, store, &fakeAudience{users: []models.User{{Email: "a@example.org"}}}, sender)

	summary := d.RunDueAutomations(context.Background(), now)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, sender.sent)

	// Sent eight days ago: due again.
	old := now.Add(-8 * 24 * time.Hour)
	store.scheduled = []models.EmailAutomation{weeklyAutomation("auto-1", &old)}
	summary = d.RunDueAutomations(context.Background(), now)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Sent)
}

func TestRunDueAutomations_LostClaimSkipsQuietly(t *testing.T) {
	now := mondayNineLocal(t)
	store := &fakeStore{scheduled: []models.EmailAutomation{weeklyAutomation("auto-1", nil)}}
	store.claimed = map[string]time.Time{"auto-1": now.Add(-5 * time.Minute)}

	sender := &fakeSender{}
	d := createTestDispatcher(t, store, &fakeAudience{users: []models.User{{Email: "a@example.org"}}}, sender)

	summary := d.RunDueAutomations(context.Background(), now)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, summary.Errors, "a lost claim is a skip, not an error")
	assert.Empty(t, sender.sent)
}

func TestRunDueAutomations_ConcurrentInvocationsSendOnce(t *testing.T) {
	now := mondayNineLocal(t)
	store := &fakeStore{scheduled: []models.EmailAutomation{weeklyAutomation("auto-1", nil)}}
	sender := &fakeSender{}
	audience := &fakeAudience{users: []models.User{{Email: "a@example.org"}}}
	d := createTestDispatcher(t, store, audience, sender)

	var wg sync.WaitGroup
	results := make([]Summary, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.RunDueAutomations(context.Background(), now)
		}(i)
	}
	wg.Wait()

	totalProcessed := 0
	for _, s := range results {
		totalProcessed += s.Processed
	}
	assert.Equal(t, 1, totalProcessed, "exactly one invocation wins the claim")
	assert.Len(t, sender.sent, 1)
}

func TestRunDueAutomations_RecipientFailureDoesNotBlockOthers(t *testing.T) {
	now := mondayNineLocal(t)
	store := &fakeStore{scheduled: []models.EmailAutomation{weeklyAutomation("auto-1", nil)}}
	audience := &fakeAudience{users: []models.User{
		{Email: "ok1@example.org"},
		{Email: "broken@example.org"},
		{Email: "ok2@example.org"},
	}}
	sender := &fakeSender{failFor: map[string]error{"broken@example.org": errors.New("mailbox full")}}
	d := createTestDispatcher(t, store, audience, sender)

	summary := d.RunDueAutomations(context.Background(), now)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "broken@example.org")

	// The period stays claimed even though one recipient failed.
	_, claimed := store.claimed["auto-1"]
	assert.True(t, claimed)
}

func TestRunDueAutomations_AudienceErrorKeepsClaim(t *testing.T) {
	now := mondayNineLocal(t)
	store := &fakeStore{scheduled: []models.EmailAutomation{weeklyAutomation("auto-1", nil)}}
	audience := &fakeAudience{err: errors.New("invalid filter")}
	d := createTestDispatcher(t, store, audience, &fakeSender{})

	summary := d.RunDueAutomations(context.Background(), now)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Sent)
	require.Len(t, summary.Errors, 1)
}

func TestRunEventAutomations(t *testing.T) {
	store := &fakeStore{byEvent: map[string][]models.EmailAutomation{
		models.EventApplicationAccepted: {{
			ID: "auto-evt", TriggerType: models.TriggerTypeEvent,
			EventKey: models.EventApplicationAccepted, TemplateKey: "accepted", IsActive: true,
		}},
	}}
	sender := &fakeSender{}
	d := createTestDispatcher(t, store, &fakeAudience{}, sender)

	summary := d.RunEventAutomations(context.Background(), models.NotificationEvent{
		Key:           models.EventApplicationAccepted,
		ApplicationID: "app-1",
		UserID:        "user-7",
	})

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, []string{"user-7@example.org"}, sender.sent)
}

func TestRunEventAutomations_NoBindings(t *testing.T) {
	store := &fakeStore{byEvent: map[string][]models.EmailAutomation{}}
	d := createTestDispatcher(t, store, &fakeAudience{}, &fakeSender{})

	summary := d.RunEventAutomations(context.Background(), models.NotificationEvent{
		Key: models.EventApplicationSubmitted, UserID: "user-1",
	})
	assert.Zero(t, summary.Processed)
}
