package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-sos/internal/common/config"
	"wisefido-sos/internal/models"
)

// Config 紧急语句检测服务配置
type Config struct {
	AppEnv   string
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 存储后端：postgres（默认）或 memory（联调/演示）
	StorageBackend string

	Detection struct {
		DebounceMinutes       int    // 同类报警防抖（分钟），默认 5
		MaxAlertsPerHour      int    // 同类报警每小时上限，默认 10
		EnableContextFilter   bool   // 语境过滤开关，默认开启
		PhraseCacheTTLSeconds int    // 规则缓存 TTL（秒），默认 300
		SeedFile              string // 启动时导入的短语种子文件（可选）
	}

	Dedup struct {
		Backend       string // memory | redis（多实例部署必须使用 redis）
		KeyPrefix     string
		ShardCount    int
		SweepSchedule string
	}

	Dispatch struct {
		Enabled         bool // 非生产环境默认关闭
		ResponseTimes   map[models.Severity]int
		NotifyTimeout   time.Duration
		DispatchTimeout time.Duration
	}

	Notify struct {
		SMS struct {
			BaseURL       string
			APIKey        string
			From          string
			RatePerSecond float64
			Burst         int
			RetryCount    int
		}
		Email struct {
			Host     string
			Port     int
			Username string
			Password string
			From     string
		}
		Push struct {
			Enabled     bool
			TopicPrefix string
		}
	}

	// Redis Streams 语句消费
	Consumer struct {
		Enabled        bool
		Stream         string
		Group          string
		ConsumerName   string
		DecisionStream string // 判定输出流，为空时不输出
		DecisionMaxLen int64
		ClaimIdle      time.Duration // 超过该空闲时间的未确认语句由本实例接手
		BatchSize      int64
		Block          time.Duration
		Workers        int
	}

	Telemetry struct {
		BufferSize    int
		FlushInterval time.Duration
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.AppEnv = getEnv("APP_ENV", "development")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-sos"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.StorageBackend = getEnv("STORAGE_BACKEND", "postgres")

	// 检测配置
	if cfg.Detection.DebounceMinutes, err = getEnvInt("DEBOUNCE_MINUTES", 5); err != nil {
		return nil, err
	}
	if cfg.Detection.MaxAlertsPerHour, err = getEnvInt("MAX_ALERTS_PER_HOUR", 10); err != nil {
		return nil, err
	}
	if cfg.Detection.EnableContextFilter, err = getEnvBool("ENABLE_CONTEXT_FILTER", true); err != nil {
		return nil, err
	}
	if cfg.Detection.PhraseCacheTTLSeconds, err = getEnvInt("PHRASE_CACHE_TTL_SECONDS", 300); err != nil {
		return nil, err
	}
	cfg.Detection.SeedFile = getEnv("SEED_PHRASES_FILE", "")

	// 去重配置
	cfg.Dedup.Backend = getEnv("DEDUP_BACKEND", "memory")
	cfg.Dedup.KeyPrefix = getEnv("DEDUP_KEY_PREFIX", "sos:dedup:")
	if cfg.Dedup.ShardCount, err = getEnvInt("DEDUP_SHARDS", 64); err != nil {
		return nil, err
	}
	cfg.Dedup.SweepSchedule = getEnv("DEDUP_SWEEP_SCHEDULE", "@every 5m")

	// 派发配置（非生产环境默认不真正通知）
	if cfg.Dispatch.Enabled, err = getEnvBool("ENABLE_NOTIFICATION_DISPATCH", cfg.IsProduction()); err != nil {
		return nil, err
	}
	if cfg.Dispatch.ResponseTimes, err = ParseResponseTimes(getEnv("SEVERITY_RESPONSE_TIMES", "CRITICAL:60,HIGH:300,MEDIUM:900")); err != nil {
		return nil, err
	}
	if cfg.Dispatch.NotifyTimeout, err = getEnvDuration("NOTIFY_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.Dispatch.DispatchTimeout, err = getEnvDuration("DISPATCH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// 通知通道
	cfg.Notify.SMS.BaseURL = getEnv("SMS_GATEWAY_URL", "")
	cfg.Notify.SMS.APIKey = getEnv("SMS_GATEWAY_API_KEY", "")
	cfg.Notify.SMS.From = getEnv("SMS_FROM", "WiseFido")
	if cfg.Notify.SMS.RatePerSecond, err = getEnvFloat("SMS_RATE_PER_SECOND", 10); err != nil {
		return nil, err
	}
	if cfg.Notify.SMS.Burst, err = getEnvInt("SMS_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.Notify.SMS.RetryCount, err = getEnvInt("SMS_RETRY_COUNT", 1); err != nil {
		return nil, err
	}
	cfg.Notify.Email.Host = getEnv("SMTP_HOST", "")
	if cfg.Notify.Email.Port, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.Notify.Email.Username = getEnv("SMTP_USERNAME", "")
	cfg.Notify.Email.Password = getEnv("SMTP_PASSWORD", "")
	cfg.Notify.Email.From = getEnv("SMTP_FROM", "alerts@wisefido.local")
	if cfg.Notify.Push.Enabled, err = getEnvBool("PUSH_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.Notify.Push.TopicPrefix = getEnv("PUSH_TOPIC_PREFIX", "wisefido/sos/caregivers/")

	// 语句流消费
	if cfg.Consumer.Enabled, err = getEnvBool("CONSUMER_ENABLED", true); err != nil {
		return nil, err
	}
	cfg.Consumer.Stream = getEnv("UTTERANCE_STREAM", "speech:utterances")
	cfg.Consumer.Group = getEnv("UTTERANCE_GROUP", "sos-detection")
	hostname, _ := os.Hostname()
	cfg.Consumer.ConsumerName = getEnv("UTTERANCE_CONSUMER", "sos-"+hostname)
	batch, err := getEnvInt("UTTERANCE_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	cfg.Consumer.BatchSize = int64(batch)
	if cfg.Consumer.Block, err = getEnvDuration("UTTERANCE_BLOCK", 2*time.Second); err != nil {
		return nil, err
	}
	cfg.Consumer.DecisionStream = getEnv("DECISION_STREAM", "sos:decisions")
	maxLen, err := getEnvInt("DECISION_STREAM_MAXLEN", 100000)
	if err != nil {
		return nil, err
	}
	cfg.Consumer.DecisionMaxLen = int64(maxLen)
	if cfg.Consumer.ClaimIdle, err = getEnvDuration("UTTERANCE_CLAIM_IDLE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.Consumer.Workers, err = getEnvInt("UTTERANCE_WORKERS", 8); err != nil {
		return nil, err
	}

	if cfg.Telemetry.BufferSize, err = getEnvInt("USAGE_BUFFER_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.Telemetry.FlushInterval, err = getEnvDuration("USAGE_FLUSH_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Detection.DebounceMinutes < 0 {
		return fmt.Errorf("DEBOUNCE_MINUTES must be >= 0, got %d", c.Detection.DebounceMinutes)
	}
	if c.Detection.MaxAlertsPerHour <= 0 {
		return fmt.Errorf("MAX_ALERTS_PER_HOUR must be > 0, got %d", c.Detection.MaxAlertsPerHour)
	}
	if c.Detection.PhraseCacheTTLSeconds <= 0 {
		return fmt.Errorf("PHRASE_CACHE_TTL_SECONDS must be > 0, got %d", c.Detection.PhraseCacheTTLSeconds)
	}
	switch c.Dedup.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("DEDUP_BACKEND must be memory or redis, got %q", c.Dedup.Backend)
	}
	switch c.StorageBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be postgres or memory, got %q", c.StorageBackend)
	}
	return nil
}

// ParseResponseTimes 解析 "CRITICAL:60,HIGH:300,MEDIUM:900"
func ParseResponseTimes(raw string) (map[models.Severity]int, error) {
	out := make(map[models.Severity]int)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid SEVERITY_RESPONSE_TIMES entry %q", part)
		}
		sev := models.Severity(strings.ToUpper(strings.TrimSpace(name)))
		if !sev.Valid() {
			return nil, fmt.Errorf("unknown severity %q in SEVERITY_RESPONSE_TIMES", name)
		}
		secs, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid response time %q for %s", value, sev)
		}
		out[sev] = secs
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
