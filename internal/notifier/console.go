package notifier

import (
	"context"

	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

// ConsoleChannel 仅写日志（非生产环境使用）
type ConsoleChannel struct {
	logger *zap.Logger
}

func NewConsoleChannel(logger *zap.Logger) *ConsoleChannel {
	return &ConsoleChannel{logger: logger}
}

func (c *ConsoleChannel) Name() string { return ChannelConsole }

func (c *ConsoleChannel) Accepts(models.CaregiverContact) bool { return true }

func (c *ConsoleChannel) Send(_ context.Context, contact models.CaregiverContact, msg Message) error {
	c.logger.Info("Caregiver notification",
		zap.String("alert_id", msg.AlertID),
		zap.String("contact_id", contact.ContactID),
		zap.String("severity", string(msg.Severity)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
