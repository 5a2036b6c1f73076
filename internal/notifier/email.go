package notifier

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"wisefido-sos/internal/models"
)

// EmailConfig SMTP 配置
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailSender gomail.Dialer 的发送接口（便于测试替换）
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel 通过 SMTP 发送邮件
type EmailChannel struct {
	sender mailSender
	from   string
}

// NewEmailChannel 创建邮件通道
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailChannel{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Accepts(contact models.CaregiverContact) bool {
	return contact.ReceiveEmail && contact.Email != ""
}

func (c *EmailChannel) Send(ctx context.Context, contact models.CaregiverContact, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	if contact.Name != "" {
		m.SetAddressHeader("To", contact.Email, contact.Name)
	} else {
		m.SetHeader("To", contact.Email)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.Severity == models.SeverityCritical {
		m.SetHeader("X-Priority", "1")
	}
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- c.sender.DialAndSend(m)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email to %s: %w", contact.ContactID, ctx.Err())
	}
}
