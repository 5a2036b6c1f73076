package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/notifier"
	"wisefido-sos/internal/repository"
)

// fakeNotifier 按联系人注入失败或延迟
type fakeNotifier struct {
	mu       sync.Mutex
	failFor  map[string]bool
	delayFor map[string]time.Duration
	panicFor map[string]bool
	calls    []string
	messages []notifier.Message
}

func (f *fakeNotifier) Notify(ctx context.Context, c models.CaregiverContact, msg notifier.Message, _ models.Severity) models.NotificationResult {
	f.mu.Lock()
	f.calls = append(f.calls, c.ContactID)
	f.messages = append(f.messages, msg)
	f.mu.Unlock()

	if f.panicFor[c.ContactID] {
		panic("boom")
	}
	if d := f.delayFor[c.ContactID]; d > 0 {
		time.Sleep(d)
	}
	res := models.NotificationResult{ContactID: c.ContactID, Channels: []string{notifier.ChannelSMS}}
	if f.failFor[c.ContactID] {
		res.Error = "sms: gateway 503"
		return res
	}
	res.Delivered = true
	return res
}

// failingAlertStore 模拟报警库不可用
type failingAlertStore struct{}

func (failingAlertStore) CreateAlert(context.Context, *models.AlertRecord) error {
	return errors.New("database is closed")
}

func (failingAlertStore) ListRecentAlerts(context.Context, string, int) ([]*models.AlertRecord, error) {
	return nil, nil
}

// failingDirectory 模拟目录服务不可用
type failingDirectory struct{}

func (failingDirectory) GetPatient(context.Context, string) (*models.Patient, error) {
	return nil, errors.New("directory unavailable")
}

func (failingDirectory) GetPreferredLanguage(context.Context, string) (string, error) {
	return "", errors.New("directory unavailable")
}

func (failingDirectory) GetCaregivers(context.Context, string) ([]models.CaregiverContact, error) {
	return nil, errors.New("directory unavailable")
}

func newDirectory() *repository.MemoryPatientDirectory {
	dir := repository.NewMemoryPatientDirectory()
	dir.UpsertPatient(
		models.Patient{PatientID: "p1", DisplayName: "Margaret", PreferredLanguage: "en", CallbackNumber: "+15550009999"},
		models.CaregiverContact{ContactID: "c1", ReceiveSMS: true, Phone: "+1"},
		models.CaregiverContact{ContactID: "c2", ReceiveSMS: true, Phone: "+2"},
		models.CaregiverContact{ContactID: "c3", ReceiveSMS: true, Phone: "+3", IsEmergencyContact: true},
	)
	return dir
}

func decision(sev models.Severity, cat models.Category) models.AlertDecision {
	return models.AlertDecision{
		PatientID:   "p1",
		Category:    cat,
		Severity:    sev,
		PhraseText:  "heart attack",
		Confidence:  0.95,
		ShouldAlert: true,
		Timestamp:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCreateAlert_Full(t *testing.T) {
	alerts := repository.NewMemoryAlertRepository()
	n := &fakeNotifier{}
	d := NewDispatcher(alerts, newDirectory(), n, Config{Enabled: true}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityCritical, models.CategoryMedical), "I think I'm having a heart attack")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.AlertID)
	assert.Equal(t, 60, rec.ResponseTimeSeconds)
	assert.Equal(t, models.OutcomeFull, rec.NotificationOutcome)
	assert.Equal(t, models.VisibilityEmergencyContact, rec.Visibility)
	assert.Equal(t, "I think I'm having a heart attack", rec.OriginalUtterance)
	assert.Len(t, rec.Notifications, 3)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, n.calls)

	require.NotEmpty(t, n.messages)
	assert.Contains(t, n.messages[0].Body, "Margaret")
	assert.Contains(t, n.messages[0].Body, "+15550009999")
	assert.Contains(t, n.messages[0].Body, rec.AlertID)

	stored, err := alerts.ListRecentAlerts(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.AlertID, stored[0].AlertID)
	assert.Equal(t, models.OutcomeFull, stored[0].NotificationOutcome)
}

func TestCreateAlert_PartialWhenOneOfThreeFails(t *testing.T) {
	alerts := repository.NewMemoryAlertRepository()
	n := &fakeNotifier{failFor: map[string]bool{"c2": true}}
	d := NewDispatcher(alerts, newDirectory(), n, Config{Enabled: true}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityHigh, models.CategoryPhysical), "I've fallen")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomePartial, rec.NotificationOutcome)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, n.calls)
	assert.Equal(t, 300, rec.ResponseTimeSeconds)
	assert.Equal(t, models.VisibilityCaregivers, rec.Visibility)

	delivered := 0
	for _, r := range rec.Notifications {
		if r.Delivered {
			delivered++
		} else {
			assert.Equal(t, "c2", r.ContactID)
			assert.NotEmpty(t, r.Error)
		}
	}
	assert.Equal(t, 2, delivered)
}

func TestCreateAlert_NoneDelivered(t *testing.T) {
	n := &fakeNotifier{failFor: map[string]bool{"c1": true, "c2": true, "c3": true}}
	d := NewDispatcher(repository.NewMemoryAlertRepository(), newDirectory(), n, Config{Enabled: true}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityMedium, models.CategoryRequest), "get the nurse")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNone, rec.NotificationOutcome)
	assert.Equal(t, 900, rec.ResponseTimeSeconds)
}

func TestCreateAlert_SlowRecipientTimesOut(t *testing.T) {
	n := &fakeNotifier{delayFor: map[string]time.Duration{"c3": 500 * time.Millisecond}}
	d := NewDispatcher(repository.NewMemoryAlertRepository(), newDirectory(), n,
		Config{Enabled: true, NotifyTimeout: 50 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityCritical, models.CategoryMedical), "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	assert.Equal(t, models.OutcomePartial, rec.NotificationOutcome)
	for _, r := range rec.Notifications {
		if r.ContactID == "c3" {
			assert.False(t, r.Delivered)
			assert.Equal(t, "notification timed out", r.Error)
		}
	}
}

func TestCreateAlert_NotifierPanicIsContained(t *testing.T) {
	n := &fakeNotifier{panicFor: map[string]bool{"c1": true}}
	d := NewDispatcher(repository.NewMemoryAlertRepository(), newDirectory(), n, Config{Enabled: true}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityCritical, models.CategoryMedical), "")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePartial, rec.NotificationOutcome)
}

func TestCreateAlert_DirectoryFailure(t *testing.T) {
	n := &fakeNotifier{}
	alerts := repository.NewMemoryAlertRepository()
	d := NewDispatcher(alerts, failingDirectory{}, n, Config{Enabled: true}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityCritical, models.CategoryMedical), "")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoRecipients, rec.NotificationOutcome)
	assert.Empty(t, rec.Notifications)
	assert.Empty(t, n.calls)

	stored, _ := alerts.ListRecentAlerts(context.Background(), "p1", 10)
	assert.Len(t, stored, 1)
}

func TestCreateAlert_Disabled(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(repository.NewMemoryAlertRepository(), newDirectory(), n, Config{Enabled: false}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityCritical, models.CategoryMedical), "")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDisabled, rec.NotificationOutcome)
	assert.Empty(t, n.calls)
}

func TestCreateAlert_PersistFailure(t *testing.T) {
	d := NewDispatcher(failingAlertStore{}, newDirectory(), &fakeNotifier{}, Config{Enabled: true}, zap.NewNop())

	rec, err := d.CreateAlert(context.Background(), "p1", decision(models.SeverityCritical, models.CategoryMedical), "")
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFull, rec.NotificationOutcome)
}

func TestResponseTime_Configured(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, Config{ResponseTimes: map[models.Severity]int{models.SeverityCritical: 30}}, zap.NewNop())
	assert.Equal(t, 30, d.ResponseTime(models.SeverityCritical))
	assert.Equal(t, 300, d.ResponseTime(models.SeverityHigh))
}

func TestAggregate(t *testing.T) {
	ok := models.NotificationResult{Delivered: true}
	fail := models.NotificationResult{}
	assert.Equal(t, models.OutcomeNoRecipients, aggregate(nil))
	assert.Equal(t, models.OutcomeFull, aggregate([]models.NotificationResult{ok, ok}))
	assert.Equal(t, models.OutcomePartial, aggregate([]models.NotificationResult{ok, fail}))
	assert.Equal(t, models.OutcomeNone, aggregate([]models.NotificationResult{fail}))
}
