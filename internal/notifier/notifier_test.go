package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

// fakeChannel 可控的测试通道
type fakeChannel struct {
	name   string
	accept bool
	err    error
	sent   []string
}

func (f *fakeChannel) Name() string                         { return f.name }
func (f *fakeChannel) Accepts(models.CaregiverContact) bool { return f.accept }
func (f *fakeChannel) Send(_ context.Context, c models.CaregiverContact, _ Message) error {
	f.sent = append(f.sent, c.ContactID)
	return f.err
}

func TestRouter_CriticalFansOutToAllChannels(t *testing.T) {
	push := &fakeChannel{name: ChannelPush, accept: true}
	sms := &fakeChannel{name: ChannelSMS, accept: true}
	email := &fakeChannel{name: ChannelEmail, accept: false}
	r := NewRouter(zap.NewNop(), push, sms, email)

	res := r.Notify(context.Background(), models.CaregiverContact{ContactID: "c1"}, Message{}, models.SeverityCritical)
	assert.True(t, res.Delivered)
	assert.Equal(t, []string{ChannelPush, ChannelSMS}, res.Channels)
	assert.Empty(t, res.Error)
	assert.Len(t, push.sent, 1)
	assert.Len(t, sms.sent, 1)
	assert.Empty(t, email.sent)
}

func TestRouter_NonCriticalFailsOver(t *testing.T) {
	push := &fakeChannel{name: ChannelPush, accept: true, err: errors.New("broker down")}
	sms := &fakeChannel{name: ChannelSMS, accept: true}
	email := &fakeChannel{name: ChannelEmail, accept: true}
	r := NewRouter(zap.NewNop(), push, sms, email)

	res := r.Notify(context.Background(), models.CaregiverContact{ContactID: "c1"}, Message{}, models.SeverityHigh)
	assert.True(t, res.Delivered)
	assert.Equal(t, []string{ChannelPush, ChannelSMS}, res.Channels)
	assert.Empty(t, email.sent)
}

func TestRouter_AllChannelsFail(t *testing.T) {
	push := &fakeChannel{name: ChannelPush, accept: true, err: errors.New("broker down")}
	sms := &fakeChannel{name: ChannelSMS, accept: true, err: errors.New("gateway 503")}
	r := NewRouter(zap.NewNop(), push, sms)

	res := r.Notify(context.Background(), models.CaregiverContact{ContactID: "c1"}, Message{}, models.SeverityCritical)
	assert.False(t, res.Delivered)
	assert.Equal(t, "push: broker down; sms: gateway 503", res.Error)
}

func TestRouter_NoChannelForContact(t *testing.T) {
	r := NewRouter(zap.NewNop(), &fakeChannel{name: ChannelSMS})

	res := r.Notify(context.Background(), models.CaregiverContact{ContactID: "c1"}, Message{}, models.SeverityMedium)
	assert.False(t, res.Delivered)
	assert.Empty(t, res.Channels)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, []string{ChannelSMS}, r.Channels())
}

func TestRouter_ExpiredContext(t *testing.T) {
	sms := &fakeChannel{name: ChannelSMS, accept: true}
	r := NewRouter(zap.NewNop(), sms)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Notify(ctx, models.CaregiverContact{ContactID: "c1"}, Message{}, models.SeverityCritical)
	assert.False(t, res.Delivered)
	assert.Contains(t, res.Error, "context canceled")
	assert.Empty(t, sms.sent)
}

func TestConsoleChannel(t *testing.T) {
	c := NewConsoleChannel(zap.NewNop())
	assert.True(t, c.Accepts(models.CaregiverContact{}))
	assert.NoError(t, c.Send(context.Background(), models.CaregiverContact{ContactID: "c1"}, Message{Body: "hi"}))
}
