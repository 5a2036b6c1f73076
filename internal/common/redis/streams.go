package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// StreamWriter 向单个 Stream 追加消息；MaxLen > 0 时按近似长度裁剪
type StreamWriter struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamWriter(client *redis.Client, stream string, maxLen int64) *StreamWriter {
	return &StreamWriter{client: client, stream: stream, maxLen: maxLen}
}

// Publish 追加一条消息，标量转为字符串，其它类型编码为 JSON
func (w *StreamWriter) Publish(ctx context.Context, values map[string]interface{}) (string, error) {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		s, err := stringify(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		fields[k] = s
	}

	args := &redis.XAddArgs{Stream: w.stream, Values: fields}
	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}
	return w.client.XAdd(ctx, args).Result()
}

// PublishJSON data 字段存 JSON，timestamp 字段存写入时间（Unix 毫秒）
func (w *StreamWriter) PublishJSON(ctx context.Context, data interface{}) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}
	return w.Publish(ctx, map[string]interface{}{
		"data":      string(body),
		"timestamp": time.Now().UnixMilli(),
	})
}

func stringify(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(v)
		return string(b), err
	}
}

// ReadFromStream 以消费者组方式读取新消息（">"），无消息时返回空切片
func ReadFromStream(ctx context.Context, client *redis.Client, stream, consumerGroup, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		messages = append(messages, toMessages(s.Stream, s.Messages)...)
	}
	return messages, nil
}

// ClaimPending 认领组内空闲超过 minIdle 的未确认消息（消费者崩溃后由存活实例接手）
func ClaimPending(ctx context.Context, client *redis.Client, stream, consumerGroup, consumer string, minIdle time.Duration, count int64) ([]StreamMessage, error) {
	pending, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	var ids []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return []StreamMessage{}, nil
	}
	claimed, err := client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    consumerGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending messages: %w", err)
	}
	return toMessages(stream, claimed), nil
}

func toMessages(stream string, msgs []redis.XMessage) []StreamMessage {
	out := make([]StreamMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, StreamMessage{Stream: stream, ID: msg.ID, Values: msg.Values})
	}
	return out
}

// AckMessage 确认消息已处理
func AckMessage(ctx context.Context, client *redis.Client, stream, consumerGroup string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return client.XAck(ctx, stream, consumerGroup, ids...).Err()
}

// CreateConsumerGroup 创建消费者组（stream 不存在时自动创建，组已存在时忽略）
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream string, groupName string) error {
	err := client.XGroupCreateMkStream(ctx, stream, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}
