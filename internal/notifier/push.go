package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-sos/internal/common/mqtt"
	"wisefido-sos/internal/models"
)

// DefaultPushTopicPrefix 护理人员推送主题前缀（App 订阅 {prefix}{contact_id}）
const DefaultPushTopicPrefix = "wisefido/sos/caregivers/"

// pushPayload 推送消息体
type pushPayload struct {
	AlertID        string `json:"alert_id"`
	PatientID      string `json:"patient_id"`
	Severity       string `json:"severity"`
	Category       string `json:"category"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	CallbackNumber string `json:"callback_number,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// PushChannel 通过 MQTT 向护理人员 App 推送
type PushChannel struct {
	publisher   mqtt.Publisher
	topicPrefix string
	qos         byte
}

// NewPushChannel 创建推送通道
func NewPushChannel(publisher mqtt.Publisher, topicPrefix string, qos byte) *PushChannel {
	if topicPrefix == "" {
		topicPrefix = DefaultPushTopicPrefix
	}
	return &PushChannel{publisher: publisher, topicPrefix: topicPrefix, qos: qos}
}

func (c *PushChannel) Name() string { return ChannelPush }

func (c *PushChannel) Accepts(contact models.CaregiverContact) bool {
	return contact.ReceivePush && (contact.PushTopic != "" || contact.ContactID != "")
}

// Topic 联系人推送主题
func (c *PushChannel) Topic(contact models.CaregiverContact) string {
	if contact.PushTopic != "" {
		return contact.PushTopic
	}
	return c.topicPrefix + contact.ContactID
}

func (c *PushChannel) Send(ctx context.Context, contact models.CaregiverContact, msg Message) error {
	ts := msg.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	payload, err := json.Marshal(pushPayload{
		AlertID:        msg.AlertID,
		PatientID:      msg.PatientID,
		Severity:       string(msg.Severity),
		Category:       string(msg.Category),
		Title:          msg.Subject,
		Body:           msg.Body,
		CallbackNumber: msg.CallbackNumber,
		Timestamp:      ts.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	// paho 的 Publish 不接受 ctx，放到协程里以便按 ctx 超时返回
	done := make(chan error, 1)
	go func() {
		done <- c.publisher.Publish(c.Topic(contact), c.qos, false, payload)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("push to %s: %w", contact.ContactID, ctx.Err())
	}
}
