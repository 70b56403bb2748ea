package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(ctx context.Context, tgUserID int64, username string) (User, bool, error)
	GetByTGID(ctx context.Context, tgUserID int64) (User, error)
	SetDiscountThreshold(ctx context.Context, userID int64, threshold int) error
	ToggleDefaultKeys(ctx context.Context, userID int64) (bool, error)
	SetExcelFile(ctx context.Context, userID int64, path, name string) error
	ClearExcelFile(ctx context.Context, userID int64) error
	SetEmail(ctx context.Context, userID int64, email string) error
}

// APIKeyRepo хранит ключи WB. Значения ключей приходят и уходят уже зашифрованными.
type APIKeyRepo interface {
	AddAPIKey(ctx context.Context, userID int64, name, encrypted string) (APIKey, error)
	ListAPIKeys(ctx context.Context, userID int64, onlyActive bool) ([]APIKey, error)
	GetAPIKey(ctx context.Context, userID, keyID int64) (APIKey, error)
	ToggleAPIKey(ctx context.Context, userID, keyID int64) (bool, error)
	RenameAPIKey(ctx context.Context, userID, keyID int64, name string) error
	UpdateAPIKeyValue(ctx context.Context, userID, keyID int64, encrypted string) error
	DeleteAPIKey(ctx context.Context, userID, keyID int64) error
}

// SubscriptionRepo хранит подписки, платежи и сохранённые карты.
type SubscriptionRepo interface {
	GetActiveSubscription(ctx context.Context, userID int64, now time.Time) (Subscription, error)
	ListExpiringSubscriptions(ctx context.Context, now time.Time, within time.Duration) ([]ExpiringSubscription, error)
	ActivateSubscription(ctx context.Context, paymentID string, now time.Time) (Subscription, error)
	CreatePayment(ctx context.Context, rec CreatePaymentRecord) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID, status string, paid bool) error
	HasRecentAutoRenewalPayment(ctx context.Context, userID int64, since time.Time) (bool, error)
	SavePaymentMethod(ctx context.Context, method PaymentMethod) error
	ListPaymentMethods(ctx context.Context, userID int64) ([]PaymentMethod, error)
	GetUserByID(ctx context.Context, userID int64) (User, error)
}

// PaymentGateway создаёт и проверяет платежи во внешней платёжной системе.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req GatewayPaymentRequest) (GatewayPayment, error)
	GetPayment(ctx context.Context, paymentID string) (GatewayPayment, error)
	CancelPayment(ctx context.Context, paymentID string) (GatewayPayment, error)
}

// GatewayPaymentRequest: параметры создания платежа.
type GatewayPaymentRequest struct {
	Amount            decimal.Decimal
	Description       string
	TGUserID          int64
	Email             string
	ReturnURL         string
	SavePaymentMethod bool
	PaymentMethodID   string
	Metadata          map[string]string
}

// GatewayPayment: состояние платежа на стороне платёжной системы.
type GatewayPayment struct {
	ID              string
	Status          string
	Paid            bool
	Amount          decimal.Decimal
	Currency        string
	Description     string
	ConfirmationURL string
	Test            bool
	CreatedAt       time.Time
	Metadata        map[string]string
	Method          *PaymentMethod
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}

// SessionStore хранит сессии постраничного просмотра, ключ: Telegram ID пользователя.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (PagerSession, bool, error)
	Set(ctx context.Context, session PagerSession) error
	Clear(ctx context.Context, userID int64) error
}

// Notifier доставляет пользователю текстовые уведомления.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// SecretBox шифрует значения ключей перед сохранением.
type SecretBox interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}
