package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alexxvives/JetChance-sub001/internal/api"
	"github.com/alexxvives/JetChance-sub001/internal/api/handler"
	"github.com/alexxvives/JetChance-sub001/internal/api/middleware"
	"github.com/alexxvives/JetChance-sub001/internal/application"
	"github.com/alexxvives/JetChance-sub001/internal/config"
	"github.com/alexxvives/JetChance-sub001/internal/infrastructure/kafka"
	redisinfra "github.com/alexxvives/JetChance-sub001/internal/infrastructure/redis"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/logger"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/metrics"
	"github.com/alexxvives/JetChance-sub001/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("設定の読み込みに失敗しました", zap.Error(err))
	}
	logger.Init(cfg.Server.Env)
	defer logger.Sync()
	m := metrics.Init()

	// データベース
	store, err := openStorage(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース初期化エラー", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer store.close()
	if cfg.Database.Driver == config.StorageMemory {
		logger.Warn("インメモリストアで起動します。再起動するとデータは失われます")
	}

	txManager := store.txManager
	flightRepo := store.flightRepo
	bookingRepo := store.bookingRepo
	outboxRepo := store.outboxRepo
	checkers := store.checkers

	// Redis（無効時はロックとキャッシュなしで動作する）
	var (
		lockManager redisinfra.LockManagerInterface
		cache       redisinfra.AvailabilityCacheInterface
	)
	if cfg.Redis.Enabled {
		rc, err := redisinfra.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Redis接続エラー", zap.Error(err))
		}
		defer rc.Close()
		lockManager = redisinfra.NewLockManager(rc)
		cache = redisinfra.NewAvailabilityCache(rc)
		checkers["redis"] = redisChecker(rc)
	} else {
		logger.Warn("Redis が無効です。冪等性ロックと空席キャッシュを使用しません")
	}

	// 予約イベントの送信先
	var publisher worker.Publisher = worker.LogPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(&cfg.Kafka)
		defer producer.Close()
		publisher = producer
		logger.Info("Kafka へ予約イベントを送信します",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", producer.Topic()),
		)
	}

	flightService := application.NewFlightService(flightRepo, cache, cfg.Booking.AvailabilityCacheTTL)
	reservationService := application.NewReservationService(
		txManager, flightRepo, bookingRepo, outboxRepo, lockManager, cache,
		application.WithRestoreSeatsOnCancel(cfg.Booking.RestoreSeatsOnCancel),
		application.WithIdempotencyLockTTL(cfg.Booking.IdempotencyLockTTL),
		application.WithMetrics(m),
	)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relay := worker.NewOutboxRelay(outboxRepo, publisher, m, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize,
		worker.WithReclaimAfter(cfg.Outbox.ReclaimAfter),
	)
	go relay.Start(relayCtx)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(&cfg.Metrics))

	handler.RegisterRoutes(e, &cfg.Auth, handler.Handlers{
		Flight:  handler.NewFlightHandler(flightService),
		Booking: handler.NewBookingHandler(reservationService),
		Health:  handler.NewHealthHandler(checkers),
	})

	go func() {
		logger.Info("サーバー起動", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	relay.Stop()

	logger.Info("サーバーが正常にシャットダウンしました")
}

func redisChecker(rc *goredis.Client) handler.Checker {
	return handler.CheckerFunc(func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) })
}
