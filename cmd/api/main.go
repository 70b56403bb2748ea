package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"wb-products-bot/internal/adapters/repo"
	"wb-products-bot/internal/adapters/yookassa"
	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/cache"
	"wb-products-bot/internal/infra/config"
	"wb-products-bot/internal/infra/db"
	httpinfra "wb-products-bot/internal/infra/http"
	"wb-products-bot/internal/infra/log"
	"wb-products-bot/internal/infra/metrics"
	"wb-products-bot/internal/infra/queue"
	"wb-products-bot/internal/usecase/subscription"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	gateway, err := yookassa.New(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать клиент ЮKassa")
	}

	var (
		redisClient *redis.Client
		dedup       domain.Cache
		events      domain.PaymentEventQueue
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
		}
		defer redisClient.Close()
		dedup = cache.NewRedis(redisClient)
	}
	switch {
	case cfg.Queues.Backend == "rabbitmq":
		q, err := queue.NewRabbitPaymentQueue(cfg.Queues.RabbitURL, cfg.Queues.PaymentEvents)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer q.Close()
		events = q
	case redisClient != nil:
		events = queue.NewRedisPaymentQueue(redisClient, cfg.Queues.PaymentEvents)
	default:
		logger.Warn().Msg("api: очередь событий оплаты не настроена, уведомления в бот не уйдут")
	}

	subscriptionService := subscription.NewService(repoAdapter, repoAdapter, gateway, dedup, events, repoAdapter, cfg.YooKassa.ReturnURL, log.Component(logger, "subscription"))

	server := httpinfra.NewServer("api", log.Component(logger, "http"))
	server.Router.Post("/yookassa/webhook", yookassa.WebhookHandler(subscriptionService, cfg.YooKassa.TrustedIPsOnly, log.Component(logger, "yookassa_webhook")))

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

var _ yookassa.NotificationHandler = (*subscription.Service)(nil)
