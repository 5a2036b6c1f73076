package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "wisefido-sos/internal/common/redis"
	"wisefido-sos/internal/models"
)

// UtteranceMessage 转写流水线写入 Stream 的语句消息（data 字段 JSON）
type UtteranceMessage struct {
	PatientID string `json:"patient_id"`
	CallID    string `json:"call_id,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // Unix 毫秒
}

// DecisionMessage 写入判定流的消息
type DecisionMessage struct {
	CallID   string               `json:"call_id,omitempty"`
	StreamID string               `json:"stream_id"`
	Decision models.AlertDecision `json:"decision"`
}

// UtteranceProcessor 语句处理入口（DetectionService 实现）
type UtteranceProcessor interface {
	ProcessUtterance(ctx context.Context, patientID, text string, timestamp int64) models.AlertDecision
}

// Config 消费者配置
type Config struct {
	Stream         string
	Group          string
	ConsumerName   string
	DecisionStream string // 为空时不输出判定
	DecisionMaxLen int64  // 判定流近似长度上限，0 不裁剪
	ClaimIdle      time.Duration
	BatchSize      int64
	Block          time.Duration
	Workers        int // 按 patient_id 分区，保证同一患者按序处理
}

// UtteranceConsumer Redis Streams 语句消费者
type UtteranceConsumer struct {
	cfg         Config
	redisClient *redis.Client
	decisions   *rediscommon.StreamWriter
	processor   UtteranceProcessor
	logger      *zap.Logger
}

// NewUtteranceConsumer 创建语句消费者
func NewUtteranceConsumer(cfg Config, redisClient *redis.Client, processor UtteranceProcessor, logger *zap.Logger) *UtteranceConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	c := &UtteranceConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		processor:   processor,
		logger:      logger,
	}
	if cfg.DecisionStream != "" {
		c.decisions = rediscommon.NewStreamWriter(redisClient, cfg.DecisionStream, cfg.DecisionMaxLen)
	}
	return c
}

// Start 启动消费循环，ctx 取消后返回
func (c *UtteranceConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.cfg.Stream, err)
	}

	c.logger.Info("Utterance consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.Group),
		zap.String("consumer_name", c.cfg.ConsumerName),
	)

	// 接手已崩溃实例遗留的未确认语句
	if n, err := c.RecoverPending(ctx); err != nil {
		c.logger.Warn("Failed to recover pending utterances", zap.Error(err))
	} else if n > 0 {
		c.logger.Info("Recovered pending utterances", zap.Int("count", n))
	}

	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume utterance stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

// ConsumeOnce 读取并处理一批消息，返回处理条数
func (c *UtteranceConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadFromStream(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.Block)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}
	return c.handle(ctx, messages)
}

// RecoverPending 认领并处理组内空闲超过 ClaimIdle 的未确认消息
func (c *UtteranceConsumer) RecoverPending(ctx context.Context) (int, error) {
	messages, err := rediscommon.ClaimPending(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, c.cfg.ConsumerName, c.cfg.ClaimIdle, c.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	return c.handle(ctx, messages)
}

// handle 处理一批消息并统一确认
func (c *UtteranceConsumer) handle(ctx context.Context, messages []rediscommon.StreamMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	// 按患者分区：同一患者的语句在同一协程内按流顺序处理
	partitions := make([][]rediscommon.StreamMessage, c.cfg.Workers)
	for _, msg := range messages {
		idx := xxhash.Sum64String(patientKey(msg)) % uint64(c.cfg.Workers)
		partitions[idx] = append(partitions[idx], msg)
	}

	var wg sync.WaitGroup
	for _, part := range partitions {
		if len(part) == 0 {
			continue
		}
		wg.Add(1)
		go func(part []rediscommon.StreamMessage) {
			defer wg.Done()
			for _, msg := range part {
				c.processMessage(ctx, msg)
			}
		}(part)
	}
	wg.Wait()

	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}
	// 解析失败的消息同样确认，避免毒消息反复投递
	if err := rediscommon.AckMessage(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, ids...); err != nil {
		return len(messages), fmt.Errorf("failed to ack messages: %w", err)
	}
	return len(messages), nil
}

func (c *UtteranceConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) {
	utterance, err := parseMessage(msg)
	if err != nil {
		c.logger.Error("Failed to parse utterance message",
			zap.String("stream_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	decision := c.processor.ProcessUtterance(ctx, utterance.PatientID, utterance.Text, utterance.Timestamp)

	c.logger.Debug("Utterance processed",
		zap.String("stream_id", msg.ID),
		zap.String("patient_id", utterance.PatientID),
		zap.String("state", string(decision.State)),
		zap.Bool("should_alert", decision.ShouldAlert),
	)

	if c.decisions == nil {
		return
	}
	out := DecisionMessage{CallID: utterance.CallID, StreamID: msg.ID, Decision: decision}
	if _, err := c.decisions.PublishJSON(ctx, out); err != nil {
		c.logger.Warn("Failed to publish decision",
			zap.String("stream_id", msg.ID),
			zap.String("patient_id", utterance.PatientID),
			zap.Error(err),
		)
	}
}

func parseMessage(msg rediscommon.StreamMessage) (UtteranceMessage, error) {
	var out UtteranceMessage
	raw, ok := msg.Values["data"]
	if !ok {
		return out, fmt.Errorf("missing data field in message")
	}
	data, ok := raw.(string)
	if !ok {
		return out, fmt.Errorf("invalid data format in message")
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal utterance: %w", err)
	}
	if out.PatientID == "" {
		return out, fmt.Errorf("utterance without patient_id")
	}
	return out, nil
}

// patientKey 分区键；解析失败时按消息 ID 分区
func patientKey(msg rediscommon.StreamMessage) string {
	if u, err := parseMessage(msg); err == nil {
		return u.PatientID
	}
	return msg.ID
}
