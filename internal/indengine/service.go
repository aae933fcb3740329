package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cagdasatacanf-arch/Depo-Data/config"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/gateway"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/indicator"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/logger"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/markethours"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/metrics"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/notification"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/pattern"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/scheduler"
	kafkastore "github.com/cagdasatacanf-arch/Depo-Data/internal/store/kafka"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/store/postgres"
	redisstore "github.com/cagdasatacanf-arch/Depo-Data/internal/store/redis"
	sqlitestore "github.com/cagdasatacanf-arch/Depo-Data/internal/store/sqlite"
)

const refreshJob = "refresh"

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	registry *prometheus.Registry
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
	server   *metrics.Server
	cal      *markethours.Calendar

	sqlite   *sqlitestore.Store
	pgPool   *postgres.Pool
	pg       *postgres.Store
	redis    *redisstore.Store
	redisBuf *redisstore.BufferedWriter
	kafka    *kafkastore.Publisher
	hub      *gateway.Hub
	alerts   *notification.Dispatcher

	pipeline  *Pipeline
	refreshMu sync.Mutex
}

// New connects every configured store and backend and builds the pipeline.
// SQLite is mandatory; Postgres, Redis, Kafka and the alert backends are
// optional. Redis and Kafka failures at startup are logged, not fatal.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Service, error) {
	svc := &Service{
		cfg:      cfg,
		log:      log.With("component", "indengine"),
		registry: prometheus.NewRegistry(),
		health:   metrics.NewHealthStatus(),
	}
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.prom = metrics.NewMetrics(svc.registry)

	ok := false
	defer func() {
		if !ok {
			svc.close()
		}
	}()

	var err error
	svc.cal, err = markethours.New(cfg.Schedule.Calendar)
	if err != nil {
		return nil, err
	}

	if err := svc.openStores(ctx); err != nil {
		return nil, err
	}
	if err := svc.seedAssets(ctx); err != nil {
		return nil, err
	}
	if err := svc.openDelivery(ctx); err != nil {
		return nil, err
	}
	if err := svc.buildPipeline(); err != nil {
		return nil, err
	}
	svc.buildHTTP()

	ok = true
	return svc, nil
}

func (svc *Service) openStores(ctx context.Context) error {
	st := svc.cfg.Storage

	if dir := filepath.Dir(st.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	var err error
	svc.sqlite, err = sqlitestore.New(sqlitestore.Config{DBPath: st.SQLitePath}, svc.log)
	if err != nil {
		return err
	}
	svc.health.Register("sqlite", func(ctx context.Context) error { return svc.sqlite.DB().PingContext(ctx) })

	if st.PostgresDSN != "" {
		svc.pgPool, err = postgres.NewPool(ctx, st.PostgresDSN)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(ctx, svc.pgPool); err != nil {
			return err
		}
		svc.pg = postgres.NewStore(svc.pgPool)
		svc.health.Register("postgres", func(ctx context.Context) error { return svc.pgPool.Ping(ctx) })
		svc.log.Info("[indengine] postgres connected")
	}

	if st.RedisAddr != "" {
		svc.redis, err = redisstore.New(redisstore.Config{
			Addr:          st.RedisAddr,
			Password:      st.RedisPassword,
			DB:            st.RedisDB,
			LatestTTL:     st.RedisLatestTTL,
			CheckpointTTL: st.RedisCheckpointTTL,
			StreamMaxLen:  st.RedisStreamMaxLen,
		}, svc.log)
		if err != nil {
			svc.log.Warn("[indengine] redis unavailable, continuing without cache", "error", err)
		} else {
			cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
			cb.OnStateChange = func(_, to redisstore.State) {
				svc.prom.RedisCircuitBreakerState.Set(float64(to))
			}
			svc.redisBuf = redisstore.NewBufferedWriter(ctx, svc.redis, cb, st.RedisBufferSize, svc.log)
			svc.redisBuf.OnBuffer = svc.prom.RedisBufferedWrites.Inc
			svc.health.Register("redis", svc.redis.Ping)
		}
	}
	return nil
}

// seedAssets upserts the configured catalogue into the SQL stores.
func (svc *Service) seedAssets(ctx context.Context) error {
	for _, a := range svc.cfg.Assets {
		if err := svc.sqlite.UpsertAsset(ctx, a); err != nil {
			return err
		}
		if svc.pg != nil {
			if err := svc.pg.UpsertAsset(ctx, a); err != nil {
				return err
			}
		}
	}
	if n := len(svc.cfg.Assets); n > 0 {
		svc.log.Info("[indengine] asset catalogue seeded", "assets", n)
	}
	return nil
}

func (svc *Service) openDelivery(ctx context.Context) error {
	cfg := svc.cfg

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafkastore.NewPublisher(kafkastore.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, svc.log)
		if err != nil {
			svc.log.Warn("[indengine] kafka publisher disabled", "error", err)
		} else {
			svc.kafka = pub
		}
	}

	var notifiers []notification.Notifier
	if cfg.Notify.LogAlerts {
		notifiers = append(notifiers, notification.NewLogNotifier(svc.log))
	}
	if cfg.Notify.TelegramToken != "" {
		tg, err := notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.Notify.TelegramToken,
			ChatID:   cfg.Notify.TelegramChatID,
			Timeout:  cfg.Notify.Timeout,
		}, svc.log)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, svc.log))
	}
	if len(notifiers) > 0 {
		svc.alerts = notification.NewDispatcher(notification.DispatcherConfig{
			MinConfidence: cfg.Notify.MinConfidence,
			RatePerSecond: cfg.Notify.RatePerSecond,
		}, svc.log, notifiers...)
		svc.alerts.OnSent = svc.prom.AlertResult
	}

	if cfg.Gateway.Enabled {
		svc.hub = gateway.NewHub(cfg.Gateway.ReplaySize, svc.log)
		if svc.redis != nil {
			recent, err := svc.redis.RecentEvents(ctx, int64(cfg.Gateway.ReplaySize))
			if err != nil {
				svc.log.Warn("[indengine] replay seed failed", "error", err)
			}
			svc.hub.Seed(recent)
		}
	}
	return nil
}

func (svc *Service) buildPipeline() error {
	cfg := svc.cfg

	engine := indicator.NewEngine(indicator.Params{
		BandWidth:   cfg.Engine.BandWidth,
		OutputScale: cfg.Engine.OutputScale,
	})
	th := pattern.Thresholds{RSIOversold: cfg.Pattern.RSIOversold, RSIOverbought: cfg.Pattern.RSIOverbought}
	if err := th.Validate(); err != nil {
		return err
	}
	detector := pattern.NewDetector(th, cfg.Service.Originator)

	sinkErr := func(name string) { svc.prom.SinkErrors.WithLabelValues(name).Inc() }
	indicators := NewIndicatorSinks(svc.log, sinkErr)
	events := NewPatternSinks(svc.log, sinkErr)
	jobs := JobLoggers{svc.sqlite}
	checkpoints := []model.CheckpointStore{}

	var prices model.PriceReader = svc.sqlite
	if cfg.Storage.PriceSource == "postgres" {
		prices = svc.pg
	}

	if svc.redis != nil {
		checkpoints = append(checkpoints, svc.redis)
	}
	checkpoints = append(checkpoints, svc.sqlite)

	indicators.Add("sqlite", svc.sqlite, true)
	events.Add("sqlite", svc.sqlite, true)
	if svc.pg != nil {
		indicators.Add("postgres", svc.pg, true)
		events.Add("postgres", svc.pg, true)
		jobs = append(jobs, svc.pg)
	}
	if svc.redisBuf != nil {
		indicators.Add("redis", svc.redisBuf, false)
		events.Add("redis", svc.redisBuf, false)
	}
	if svc.kafka != nil {
		events.Add("kafka", svc.kafka, false)
	}
	if svc.hub != nil {
		events.Add("gateway", svc.hub, false)
	}

	payload, err := json.Marshal(map[string]any{
		"originator":     cfg.Service.Originator,
		"band_width":     cfg.Engine.BandWidth,
		"rsi_oversold":   cfg.Pattern.RSIOversold,
		"rsi_overbought": cfg.Pattern.RSIOverbought,
	})
	if err != nil {
		return err
	}

	mode, err := ParseMode(cfg.Engine.Mode)
	if err != nil {
		return err
	}
	deps := Deps{
		Prices:     prices,
		Indicators: indicators,
		Events:     events,
		Jobs:       jobs,
		Restorer:   indicator.NewRestorer(engine, svc.log, checkpoints...),
		Metrics:    svc.prom,
	}
	if svc.alerts != nil {
		deps.Alerts = svc.alerts
	}
	svc.pipeline, err = NewPipeline(engine, detector, deps, Options{
		Mode:        mode,
		Concurrency: cfg.Engine.Concurrency,
		Job:         refreshJob,
		ScanHistory: cfg.Engine.ScanHistory,
		Context:     payload,
	}, svc.log)
	if err != nil {
		return err
	}
	svc.log.Info("[indengine] pipeline ready",
		"mode", string(mode), "prices", cfg.Storage.PriceSource,
		"indicator_sinks", indicators.Names(), "event_sinks", events.Names(), "alerts", svc.alerts != nil)
	return nil
}

func (svc *Service) buildHTTP() {
	svc.server = metrics.NewServer(svc.cfg.Service.HTTPAddr, svc.health, svc.registry, svc.log)

	latest := []model.IndicatorReader{}
	if svc.redis != nil {
		latest = append(latest, svc.redis)
	}
	latest = append(latest, svc.sqlite)
	NewAPI(svc.Refresh, svc.sqlite, svc.log, latest...).Register(svc.server.Mux())

	if svc.hub != nil {
		gateway.RegisterRoutes(svc.server.Mux(), svc.hub)
	}
}

// Pipeline exposes the configured pipeline.
func (svc *Service) Pipeline() *Pipeline { return svc.pipeline }

// Refresh runs one batch. Only one batch runs at a time; a concurrent call
// gets ErrRefreshInProgress.
func (svc *Service) Refresh(ctx context.Context, assets []string, mode Mode) (BatchResult, error) {
	if !svc.refreshMu.TryLock() {
		return BatchResult{}, ErrRefreshInProgress
	}
	defer svc.refreshMu.Unlock()

	ctx = logger.WithTraceID(ctx, logger.NewTraceID(refreshJob))
	p := svc.pipeline
	if mode != "" && mode != p.Options().Mode {
		p = p.WithMode(mode)
	}

	var (
		br  BatchResult
		err error
	)
	if len(assets) == 0 {
		br, err = p.RunAll(ctx)
	} else {
		br = p.RunBatch(ctx, assets)
	}
	if err != nil {
		return br, err
	}

	status := model.JobSuccess
	switch {
	case br.Failed > 0:
		status = model.JobFailed
	case br.Partial > 0:
		status = model.JobPartial
	}
	svc.health.SetLastRun(br.Finished, status)
	return br, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("[indengine] starting indicator engine",
		"http", cfg.Service.HTTPAddr, "cron", cfg.Schedule.Cron, "tz", svc.cal.Location().String())

	svc.server.Start()
	svc.health.StartLivenessChecker(ctx, 15*time.Second)

	sched := scheduler.New(ctx, svc.cal, svc.log)
	err := sched.Register(refreshJob, cfg.Schedule.Cron, func(ctx context.Context) error {
		br, err := svc.Refresh(ctx, nil, "")
		if err != nil {
			return err
		}
		if br.Failed > 0 {
			return fmt.Errorf("%d of %d assets failed", br.Failed, len(br.Results))
		}
		return nil
	}, cfg.Schedule.TradingDaysOnly)
	if err != nil {
		svc.shutdown(nil)
		return err
	}
	sched.Start()
	svc.log.Info("[indengine] next refresh", "at", sched.Next(refreshJob))

	if cfg.Schedule.RunOnStart {
		go func() {
			if err := sched.RunNow(refreshJob); err != nil && !errors.Is(err, context.Canceled) {
				svc.log.Warn("[indengine] startup refresh", "error", err)
			}
		}()
	}

	go svc.statsLoop(ctx)

	svc.log.Info("[indengine] all systems running")
	<-ctx.Done()

	svc.shutdown(sched)
	return nil
}

// statsLoop refreshes gauges that have no natural update point.
func (svc *Service) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		if svc.hub != nil {
			svc.prom.WSClients.Set(float64(svc.hub.ClientCount()))
		}
		trading := 0.0
		if svc.cal.IsTradingDay(time.Now()) {
			trading = 1
		}
		svc.prom.MarketState.Set(trading)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (svc *Service) shutdown(sched *scheduler.Scheduler) {
	svc.log.Info("[indengine] shutdown signal received, draining...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		sched.Stop(ctx)
	}
	if err := svc.server.Stop(ctx); err != nil {
		svc.log.Warn("[indengine] http shutdown", "error", err)
	}
	svc.close()
	svc.log.Info("[indengine] shutdown complete")
}

func (svc *Service) close() {
	if svc.hub != nil {
		svc.hub.Close()
	}
	if svc.kafka != nil {
		svc.kafka.Close()
	}
	if svc.redisBuf != nil && svc.redisBuf.PendingCount() > 0 {
		svc.log.Warn("[indengine] dropping buffered redis writes", "batches", svc.redisBuf.PendingCount())
	}
	if svc.redis != nil {
		svc.redis.Close()
	}
	if svc.pgPool != nil {
		svc.pgPool.Close()
	}
	if svc.sqlite != nil {
		svc.sqlite.Close()
	}
}
