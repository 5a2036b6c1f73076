package notifier

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"
)

// 通道名称
const (
	ChannelSMS     = "sms"
	ChannelPush    = "push"
	ChannelEmail   = "email"
	ChannelConsole = "console"
)

// Channel 单一通知通道（短信网关、MQTT 推送、邮件、控制台）
type Channel interface {
	Name() string
	// Accepts 联系人是否订阅了该通道且具备投递地址
	Accepts(contact models.CaregiverContact) bool
	Send(ctx context.Context, contact models.CaregiverContact, msg Message) error
}

// Notifier 面向接收人的通知接口（dispatcher 使用）
type Notifier interface {
	Notify(ctx context.Context, contact models.CaregiverContact, msg Message, severity models.Severity) models.NotificationResult
}

// Router 按联系人偏好选择通道：
// CRITICAL 发送到全部已订阅通道；其他级别按通道顺序故障转移，首个成功即停止。
type Router struct {
	channels []Channel
	logger   *zap.Logger
}

// NewRouter 创建路由器，channels 顺序即优先级
func NewRouter(logger *zap.Logger, channels ...Channel) *Router {
	return &Router{channels: channels, logger: logger}
}

var _ Notifier = (*Router)(nil)

// Channels 已配置的通道名称
func (r *Router) Channels() []string {
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}

func (r *Router) Notify(ctx context.Context, contact models.CaregiverContact, msg Message, severity models.Severity) models.NotificationResult {
	result := models.NotificationResult{ContactID: contact.ContactID}
	var failures []string

	for _, ch := range r.channels {
		if !ch.Accepts(contact) {
			continue
		}
		if ctx.Err() != nil {
			failures = append(failures, ch.Name()+": "+ctx.Err().Error())
			break
		}
		result.Channels = append(result.Channels, ch.Name())

		err := ch.Send(ctx, contact, msg)
		metrics.IncNotification(ch.Name(), err == nil)
		if err != nil {
			r.logger.Warn("Notification channel failed",
				zap.String("alert_id", msg.AlertID),
				zap.String("contact_id", contact.ContactID),
				zap.String("channel", ch.Name()),
				zap.Error(err),
			)
			failures = append(failures, ch.Name()+": "+err.Error())
			continue
		}

		result.Delivered = true
		if severity != models.SeverityCritical {
			break
		}
	}

	switch {
	case result.Delivered:
	case len(failures) > 0:
		result.Error = strings.Join(failures, "; ")
	default:
		result.Error = "no notification channel available for contact"
	}
	return result
}
