package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"wisefido-sos/internal/models"
)

// SMSConfig 短信网关配置
type SMSConfig struct {
	BaseURL       string
	APIKey        string
	From          string
	Timeout       time.Duration
	RetryCount    int
	RatePerSecond float64 // 网关限流
	Burst         int
}

// smsRequest 网关请求体
type smsRequest struct {
	To       string `json:"to"`
	From     string `json:"from,omitempty"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	Ref      string `json:"reference"`
}

// smsResponse 网关响应体
type smsResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// SMSChannel 通过 HTTP 短信网关发送
type SMSChannel struct {
	client  *resty.Client
	from    string
	limiter *rate.Limiter
}

// NewSMSChannel 创建短信通道
func NewSMSChannel(cfg SMSConfig) *SMSChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &SMSChannel{
		client:  client,
		from:    cfg.From,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Accepts(contact models.CaregiverContact) bool {
	return contact.ReceiveSMS && contact.Phone != ""
}

func (c *SMSChannel) Send(ctx context.Context, contact models.CaregiverContact, msg Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms rate limit: %w", err)
	}

	var response smsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(smsRequest{
			To:       contact.Phone,
			From:     c.from,
			Body:     msg.Body,
			Priority: priorityFor(msg.Severity),
			Ref:      msg.AlertID,
		}).
		SetResult(&response).
		SetError(&response).
		Post("/v1/messages")
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode(), response.Error)
	}
	if response.Status == "rejected" {
		return fmt.Errorf("sms gateway rejected message: %s", response.Error)
	}
	return nil
}

func priorityFor(severity models.Severity) string {
	if severity == models.SeverityCritical {
		return "high"
	}
	return "normal"
}
