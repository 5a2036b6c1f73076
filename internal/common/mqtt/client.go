package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"wisefido-sos/internal/common/config"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher 推送通道依赖的发布接口
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Client 护理人员推送使用的 MQTT 连接（仅发布，不订阅）
type Client struct {
	conn   paho.Client
	logger *zap.Logger
}

var _ Publisher = (*Client)(nil)

// NewClient 连接 broker；断线后由 paho 自动重连，期间的发布返回错误并由通知路由切换通道
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("MQTT connected", zap.String("broker", cfg.Broker), zap.String("client_id", cfg.ClientID))
		})

	conn := paho.NewClient(opts)
	token := conn.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	return &Client{conn: conn, logger: logger}, nil
}

// Publish 发布并等待 broker 确认（QoS 0 时立即返回）
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.conn.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected, dropping publish to %s", topic)
	}
	token := c.conn.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to topic %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect 断开连接，最多等待 250ms 发送完在途消息
func (c *Client) Disconnect() {
	c.conn.Disconnect(250)
}
