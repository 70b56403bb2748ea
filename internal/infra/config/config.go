package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/Moscow"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`

	Wildberries struct {
		DiscountsURL string        `envconfig:"WB_DISCOUNTS_URL" default:"https://discounts-prices-api.wildberries.ru"`
		CardsURL     string        `envconfig:"WB_CARDS_URL" default:"https://card.wb.ru"`
		Timeout      time.Duration `envconfig:"WB_TIMEOUT" default:"30s"`
		RPS          float64       `envconfig:"WB_RPS" default:"5"`
		DefaultKeys  string        `envconfig:"WB_DEFAULT_KEYS"`
	} `envconfig:""`

	Files struct {
		Dir string `envconfig:"FILES_DIR" default:"user_files"`
	} `envconfig:""`

	Sessions struct {
		Backend string        `envconfig:"SESSION_BACKEND" default:"memory"`
		TTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	} `envconfig:""`

	YooKassa struct {
		ShopID         string `envconfig:"YOOKASSA_SHOP_ID"`
		SecretKey      string `envconfig:"YOOKASSA_SECRET_KEY"`
		ReturnURL      string `envconfig:"YOOKASSA_RETURN_URL" default:"https://t.me"`
		TrustedIPsOnly bool   `envconfig:"YOOKASSA_TRUSTED_IPS_ONLY" default:"true"`
	} `envconfig:""`

	Subscription struct {
		Required        bool          `envconfig:"SUBSCRIPTION_REQUIRED" default:"false"`
		RenewalInterval time.Duration `envconfig:"RENEWAL_INTERVAL" default:"12h"`
		RenewalDelay    time.Duration `envconfig:"RENEWAL_CHECK_DELAY" default:"5s"`
	} `envconfig:""`

	Queues struct {
		Backend       string `envconfig:"QUEUE_BACKEND" default:"redis"`
		RabbitURL     string `envconfig:"RABBITMQ_URL"`
		PaymentEvents string `envconfig:"PAYMENT_EVENTS_QUEUE" default:"payment_events"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения, предварительно подхватывая .env.
func Load() AppConfig {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
