package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"wb-products-bot/internal/adapters/repo"
	"wb-products-bot/internal/adapters/telegram"
	"wb-products-bot/internal/adapters/yookassa"
	"wb-products-bot/internal/infra/config"
	"wb-products-bot/internal/infra/db"
	"wb-products-bot/internal/infra/log"
	"wb-products-bot/internal/infra/metrics"
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
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	gateway, err := yookassa.New(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать клиент ЮKassa")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	notifier := telegram.NewNotifier(botAPI, log.Component(logger, "notifier"))
	renewer := subscription.NewRenewer(repoAdapter, gateway, notifier, repoAdapter, cfg.YooKassa.ReturnURL, cfg.Subscription.RenewalDelay, log.Component(logger, "renewal"))

	metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(cfg.Subscription.RenewalInterval).Do(renewer.Run, ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось запланировать автопродление")
	}
	logger.Info().Dur("interval", cfg.Subscription.RenewalInterval).Msg("scheduler: старт")
	s.StartAsync()

	<-ctx.Done()
	s.Stop()
	logger.Info().Msg("scheduler: остановка")
}
