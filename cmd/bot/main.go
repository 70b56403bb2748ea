package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wb-products-bot/internal/adapters/bot"
	"wb-products-bot/internal/adapters/repo"
	"wb-products-bot/internal/adapters/session"
	"wb-products-bot/internal/adapters/telegram"
	"wb-products-bot/internal/adapters/wildberries"
	"wb-products-bot/internal/adapters/yookassa"
	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/cache"
	"wb-products-bot/internal/infra/config"
	"wb-products-bot/internal/infra/crypto"
	"wb-products-bot/internal/infra/db"
	httpinfra "wb-products-bot/internal/infra/http"
	"wb-products-bot/internal/infra/log"
	"wb-products-bot/internal/infra/metrics"
	"wb-products-bot/internal/infra/queue"
	"wb-products-bot/internal/usecase/account"
	"wb-products-bot/internal/usecase/commission"
	"wb-products-bot/internal/usecase/discount"
	"wb-products-bot/internal/usecase/keys"
	"wb-products-bot/internal/usecase/listing"
	"wb-products-bot/internal/usecase/pager"
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
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
		}
		defer redisClient.Close()
	}

	var sessions domain.SessionStore = session.NewMemory()
	if cfg.Sessions.Backend == "redis" {
		if redisClient == nil {
			logger.Fatal().Msg("SESSION_BACKEND=redis требует REDIS_ADDR")
		}
		sessions = session.NewCached(cache.NewRedis(redisClient), cfg.Sessions.TTL)
	}

	box, err := crypto.NewBox(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("некорректный ключ шифрования")
	}
	keyService := keys.NewService(repoAdapter, repoAdapter, box, keys.ParseDefaultKeys(cfg.Wildberries.DefaultKeys), log.Component(logger, "keys"))
	accountService := account.NewService(repoAdapter, repoAdapter, commission.NewIndexCache(), cfg.Files.Dir, log.Component(logger, "account"))

	wbClient := wildberries.New(cfg.Wildberries.DiscountsURL, cfg.Wildberries.CardsURL,
		wildberries.WithTimeout(cfg.Wildberries.Timeout),
		wildberries.WithRateLimit(cfg.Wildberries.RPS),
	)
	aggregator := discount.NewAggregator(wbClient, log.Component(logger, "discount"))

	var subscriptionService *subscription.Service
	if cfg.YooKassa.ShopID != "" {
		gateway, err := yookassa.New(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось создать клиент ЮKassa")
		}
		var dedup domain.Cache
		if redisClient != nil {
			dedup = cache.NewRedis(redisClient)
		}
		subscriptionService = subscription.NewService(repoAdapter, repoAdapter, gateway, dedup, nil, repoAdapter, cfg.YooKassa.ReturnURL, log.Component(logger, "subscription"))
	}

	var checker listing.SubscriptionChecker
	if cfg.Subscription.Required {
		if subscriptionService == nil {
			logger.Fatal().Msg("SUBSCRIPTION_REQUIRED требует настроенной ЮKassa")
		}
		checker = subscriptionService
	}
	listingService := listing.NewService(keyService, accountService, checker, aggregator, pager.New(sessions), repoAdapter, log.Component(logger, "listing"))

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	var subs bot.Subscriptions
	if subscriptionService != nil {
		subs = subscriptionService
	}
	h := bot.NewHandler(botAPI, log.Component(logger, "bot"), accountService, keyService, listingService, subs)

	if events := paymentEvents(cfg, redisClient, logger); events != nil {
		go consumePaymentEvents(ctx, events, telegram.NewNotifier(botAPI, log.Component(logger, "notifier")), logger)
	}

	if cfg.Telegram.WebhookURL != "" {
		serveWebhook(ctx, cfg, botAPI, h, logger)
		return
	}
	metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	poll(ctx, botAPI, h, logger)
}

// paymentEvents выбирает очередь событий оплаты. Без брокера уведомления об оплате не отправляются.
func paymentEvents(cfg config.AppConfig, redisClient *redis.Client, logger zerolog.Logger) domain.PaymentEventQueue {
	switch cfg.Queues.Backend {
	case "rabbitmq":
		q, err := queue.NewRabbitPaymentQueue(cfg.Queues.RabbitURL, cfg.Queues.PaymentEvents)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		return q
	default:
		if redisClient == nil {
			logger.Warn().Msg("очередь событий оплаты отключена: не задан REDIS_ADDR")
			return nil
		}
		return queue.NewRedisPaymentQueue(redisClient, cfg.Queues.PaymentEvents)
	}
}

func consumePaymentEvents(ctx context.Context, events domain.PaymentEventQueue, notifier domain.Notifier, logger zerolog.Logger) {
	for {
		ev, ack, err := events.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("ошибка чтения очереди событий оплаты")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		err = notifier.Notify(ctx, ev.UserTGID, subscription.PaymentEventText(ev))
		if err != nil {
			logger.Error().Err(err).Str("payment", ev.PaymentID).Msg("не удалось уведомить об оплате")
		}
		if ackErr := ack(err == nil); ackErr != nil {
			logger.Error().Err(ackErr).Str("event", ev.ID).Msg("не удалось подтвердить событие")
		}
	}
}

func serveWebhook(ctx context.Context, cfg config.AppConfig, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("некорректный адрес вебхука")
	}
	if _, err := botAPI.Request(wh); err != nil {
		logger.Fatal().Err(err).Msg("не удалось установить вебхук")
	}

	server := httpinfra.NewServer("bot_webhook", log.Component(logger, "http"))
	server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		logger.Info().Str("webhook", cfg.Telegram.WebhookURL).Msg("бот запущен")
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn().Err(err).Msg("не удалось снять вебхук")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот запущен в режиме long polling")

	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			logger.Info().Msg("остановка бота")
			return
		case update := <-updates:
			go h.HandleUpdate(ctx, update)
		}
	}
}

var (
	_ domain.UserRepo             = (*repo.Postgres)(nil)
	_ domain.APIKeyRepo           = (*repo.Postgres)(nil)
	_ domain.BusinessMetricRepo   = (*repo.Postgres)(nil)
	_ domain.SubscriptionRepo     = (*repo.Postgres)(nil)
	_ bot.Subscriptions           = (*subscription.Service)(nil)
	_ listing.SubscriptionChecker = (*subscription.Service)(nil)
)
