package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wisefido-sos/internal/common/database"
	"wisefido-sos/internal/common/mqtt"
	rediscommon "wisefido-sos/internal/common/redis"
	"wisefido-sos/internal/config"
	"wisefido-sos/internal/consumer"
	"wisefido-sos/internal/contextfilter"
	"wisefido-sos/internal/corpus"
	"wisefido-sos/internal/dedup"
	"wisefido-sos/internal/dispatcher"
	httpapi "wisefido-sos/internal/http"
	"wisefido-sos/internal/matcher"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/notifier"
	"wisefido-sos/internal/repository"
)

// App 紧急语句检测服务（整合各层）
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	// 各层组件
	phrases   repository.PhraseStore
	alerts    repository.AlertStore
	cache     *corpus.Cache
	usage     *corpus.UsageRecorder
	sweeper   *dedup.Sweeper
	detection *DetectionService
	consumer  *consumer.UtteranceConsumer
	handler   http.Handler
	server    *HTTPServer
}

// NewApp 创建服务并完成依赖装配
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeClients()
		}
	}()

	// 1. 存储层
	var directory repository.PatientDirectory
	switch cfg.StorageBackend {
	case "memory":
		logger.Warn("Using in-memory storage, alert records and phrase edits are not durable")
		a.phrases = repository.NewMemoryPhraseRepository()
		a.alerts = repository.NewMemoryAlertRepository()
		directory = repository.NewMemoryPatientDirectory()
	default:
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		db, err := database.Open(connectCtx, &cfg.Database)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		a.db = db
		a.phrases = repository.NewPostgresPhraseRepository(db, logger)
		a.alerts = repository.NewPostgresAlertRepository(db, logger)
		directory = repository.NewPostgresPatientDirectory(db, logger)
	}

	if cfg.Dedup.Backend == "redis" || cfg.Consumer.Enabled {
		client, err := rediscommon.Connect(context.Background(), &cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redisClient = client
	}

	// 2. 短语库与匹配
	a.cache = corpus.NewCache(a.phrases, time.Duration(cfg.Detection.PhraseCacheTTLSeconds)*time.Second, logger)
	a.usage = corpus.NewUsageRecorder(a.phrases, logger, cfg.Telemetry.BufferSize, cfg.Telemetry.FlushInterval)
	engine := matcher.NewEngine(a.cache, a.usage, logger)

	var filter ContextFilter
	if cfg.Detection.EnableContextFilter {
		filter = contextfilter.New()
	} else {
		logger.Warn("Context filter disabled")
	}

	// 3. 去重
	var windows dedup.WindowStore
	if cfg.Dedup.Backend == "redis" {
		windows = dedup.NewRedisStore(a.redisClient, dedup.RedisStoreConfig{KeyPrefix: cfg.Dedup.KeyPrefix})
	} else {
		windows = dedup.NewMemoryStore(cfg.Dedup.ShardCount)
	}
	sweeper, err := dedup.NewSweeper(windows, cfg.Dedup.SweepSchedule, logger)
	if err != nil {
		return nil, err
	}
	a.sweeper = sweeper
	controller := dedup.NewController(windows, time.Duration(cfg.Detection.DebounceMinutes)*time.Minute, cfg.Detection.MaxAlertsPerHour, logger)

	// 4. 通知与派发
	router, err := a.buildNotifier()
	if err != nil {
		return nil, err
	}
	d := dispatcher.NewDispatcher(a.alerts, directory, router, dispatcher.Config{
		Enabled:         cfg.Dispatch.Enabled,
		ResponseTimes:   cfg.Dispatch.ResponseTimes,
		NotifyTimeout:   cfg.Dispatch.NotifyTimeout,
		DispatchTimeout: cfg.Dispatch.DispatchTimeout,
	}, logger)

	a.detection = NewDetectionService(directory, engine, filter, controller, d, logger)

	// 5. 入口：Redis Streams 与 HTTP
	if cfg.Consumer.Enabled {
		a.consumer = consumer.NewUtteranceConsumer(consumer.Config{
			Stream:         cfg.Consumer.Stream,
			Group:          cfg.Consumer.Group,
			ConsumerName:   cfg.Consumer.ConsumerName,
			DecisionStream: cfg.Consumer.DecisionStream,
			DecisionMaxLen: cfg.Consumer.DecisionMaxLen,
			ClaimIdle:      cfg.Consumer.ClaimIdle,
			BatchSize:      cfg.Consumer.BatchSize,
			Block:          cfg.Consumer.Block,
			Workers:        cfg.Consumer.Workers,
		}, a.redisClient, a.detection, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a.handler = httpapi.NewRouter(httpapi.Handlers{
		Utterances: httpapi.NewUtteranceHandler(a.detection, a.alerts, logger),
		Phrases:    httpapi.NewPhraseHandler(a.phrases, a.cache, logger),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, logger)
	a.server = NewHTTPServer(cfg.HTTP.Addr, a.handler, logger)

	logger.Info("Detection service assembled",
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("dedup_backend", cfg.Dedup.Backend),
		zap.Bool("context_filter", cfg.Detection.EnableContextFilter),
		zap.Bool("dispatch_enabled", cfg.Dispatch.Enabled),
		zap.Strings("channels", router.Channels()),
		zap.Bool("consumer_enabled", cfg.Consumer.Enabled),
	)
	ok = true
	return a, nil
}

// buildNotifier 按配置组装通知通道；均未配置时退化为控制台
func (a *App) buildNotifier() (*notifier.Router, error) {
	var channels []notifier.Channel

	if a.cfg.Notify.Push.Enabled {
		client, err := mqtt.NewClient(&a.cfg.MQTT, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect mqtt: %w", err)
		}
		a.mqttClient = client
		channels = append(channels, notifier.NewPushChannel(client, a.cfg.Notify.Push.TopicPrefix, a.cfg.MQTT.QoS))
	}
	if sms := a.cfg.Notify.SMS; sms.BaseURL != "" {
		channels = append(channels, notifier.NewSMSChannel(notifier.SMSConfig{
			BaseURL:       sms.BaseURL,
			APIKey:        sms.APIKey,
			From:          sms.From,
			Timeout:       a.cfg.Dispatch.NotifyTimeout,
			RetryCount:    sms.RetryCount,
			RatePerSecond: sms.RatePerSecond,
			Burst:         sms.Burst,
		}))
	}
	if email := a.cfg.Notify.Email; email.Host != "" {
		channels = append(channels, notifier.NewEmailChannel(notifier.EmailConfig{
			Host:     email.Host,
			Port:     email.Port,
			Username: email.Username,
			Password: email.Password,
			From:     email.From,
		}))
	}
	if len(channels) == 0 {
		a.logger.Warn("No notification channel configured, notifications go to the log")
		channels = append(channels, notifier.NewConsoleChannel(a.logger))
	}
	return notifier.NewRouter(a.logger, channels...), nil
}

// Detection 检测服务（供内嵌调用）
func (a *App) Detection() *DetectionService {
	return a.detection
}

// Handler HTTP 路由
func (a *App) Handler() http.Handler {
	return a.handler
}

// SeedPhrases 从种子文件导入缺失的短语规则
func (a *App) SeedPhrases(ctx context.Context, path string) (int, error) {
	rules, err := corpus.LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	created, err := corpus.Seed(ctx, a.phrases, rules)
	if err != nil {
		return created, err
	}
	if created > 0 {
		a.cache.Invalidate("")
	}
	a.logger.Info("Phrase corpus seeded",
		zap.String("path", path),
		zap.Int("rules", len(rules)),
		zap.Int("created", created),
	)
	return created, nil
}

// Start 启动后台任务、消费者与 HTTP 服务，ctx 取消或任一组件失败时返回
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting detection service")
	a.usage.Start()
	a.sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil {
				return fmt.Errorf("utterance consumer: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := a.server.Run(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Stop 停止后台任务并释放连接
func (a *App) Stop() {
	a.logger.Info("Stopping detection service")
	a.sweeper.Stop()
	a.usage.Stop()
	a.closeClients()
}

func (a *App) closeClients() {
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
		a.mqttClient = nil
	}
	if a.redisClient != nil {
		if err := rediscommon.Close(a.redisClient); err != nil {
			a.logger.Error("Failed to close redis", zap.Error(err))
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Error("Failed to close database", zap.Error(err))
		}
		a.db = nil
	}
}
