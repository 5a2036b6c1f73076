package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStoreConfig Redis 去重存储配置
type RedisStoreConfig struct {
	KeyPrefix string        // 默认 "sos:dedup:"
	LockTTL   time.Duration // 锁自动过期时间，防止持锁实例崩溃后死锁
	LockRetry time.Duration // 抢锁重试间隔
}

// RedisStore 多实例共享的去重存储：
//
//	{prefix}{patient}:{category}:ts    ZSET score=触发时间(ms)
//	{prefix}{patient}:{category}:last  最近触发时间(ms)
//	{prefix}{patient}:{category}:lock  SETNX 分布式锁
//
// 所有键 TTL 为回看窗口，空闲窗口由 Redis 自动过期。
type RedisStore struct {
	client *redis.Client
	cfg    RedisStoreConfig
}

// NewRedisStore 创建 Redis 去重存储
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sos:dedup:"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = 20 * time.Millisecond
	}
	return &RedisStore{client: client, cfg: cfg}
}

var _ WindowStore = (*RedisStore)(nil)

func (s *RedisStore) key(key Key, suffix string) string {
	return fmt.Sprintf("%s%s:%s:%s", s.cfg.KeyPrefix, key.PatientID, key.Category, suffix)
}

func (s *RedisStore) Load(ctx context.Context, key Key, now time.Time) (Window, error) {
	tsKey := s.key(key, "ts")
	cutoff := now.Add(-WindowLookback).UnixMilli()

	var rangeCmd *redis.StringSliceCmd
	var lastCmd *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, tsKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		rangeCmd = pipe.ZRangeByScore(ctx, tsKey, &redis.ZRangeBy{Min: strconv.FormatInt(cutoff, 10), Max: "+inf"})
		lastCmd = pipe.Get(ctx, s.key(key, "last"))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Window{}, fmt.Errorf("failed to load dedup window: %w", err)
	}

	var window Window
	members, err := rangeCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Window{}, fmt.Errorf("failed to read dedup timestamps: %w", err)
	}
	for _, m := range members {
		ms, err := parseMember(m)
		if err != nil {
			return Window{}, err
		}
		window.Timestamps = append(window.Timestamps, time.UnixMilli(ms))
	}

	last, err := lastCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return Window{}, fmt.Errorf("failed to read last fired: %w", err)
	default:
		ms, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return Window{}, fmt.Errorf("invalid last fired value %q: %w", last, err)
		}
		window.LastFired = time.UnixMilli(ms)
	}
	return window, nil
}

func (s *RedisStore) Append(ctx context.Context, key Key, ts time.Time) error {
	tsKey := s.key(key, "ts")
	lastKey := s.key(key, "last")
	ms := ts.UnixMilli()

	current, err := s.client.Get(ctx, lastKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read last fired: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// member 带随机后缀，同一毫秒的两次触发不会合并
		pipe.ZAdd(ctx, tsKey, &redis.Z{Score: float64(ms), Member: fmt.Sprintf("%d:%s", ms, uuid.New().String()[:8])})
		pipe.Expire(ctx, tsKey, WindowLookback)
		if ms > current {
			pipe.Set(ctx, lastKey, ms, WindowLookback)
		} else {
			pipe.Expire(ctx, lastKey, WindowLookback)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append dedup timestamp: %w", err)
	}
	return nil
}

func (s *RedisStore) Lock(ctx context.Context, key Key) (func(), error) {
	lockKey := s.key(key, "lock")
	token := uuid.New().String()

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.cfg.LockTTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to acquire dedup lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.LockRetry):
		}
	}

	return func() {
		// 只释放自己持有的锁（锁可能已过期并被其他实例获取）
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.client.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, lockKey).Result()
			if err != nil || val != token {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, lockKey)
				return nil
			})
			return err
		}, lockKey)
	}, nil
}

// Evict Redis 键依赖 TTL 过期，无需主动清理
func (s *RedisStore) Evict(context.Context, time.Time) (int, error) {
	return 0, nil
}

func parseMember(member string) (int64, error) {
	raw, _, _ := strings.Cut(member, ":")
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dedup member %q: %w", member, err)
	}
	return ms, nil
}
