package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы платежей ЮKassa.
const (
	PaymentStatusPending           = "pending"
	PaymentStatusWaitingForCapture = "waiting_for_capture"
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusCanceled          = "canceled"
)

// Plan описывает тариф подписки.
type Plan struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Days        int
}

var plans = []Plan{
	{ID: "month", Name: "1 месяц", Description: "Подписка на 1 месяц", Price: decimal.RequireFromString("599.00"), Days: 30},
	{ID: "quarter", Name: "3 месяца", Description: "Подписка на 3 месяца", Price: decimal.RequireFromString("1499.00"), Days: 90},
	{ID: "year", Name: "12 месяцев", Description: "Подписка на 12 месяцев", Price: decimal.RequireFromString("4990.00"), Days: 365},
}

// Plans возвращает доступные тарифы в порядке показа.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlanByID ищет тариф по идентификатору.
func PlanByID(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Subscription: оплаченный период доступа пользователя.
type Subscription struct {
	ID        int64
	UserID    int64
	PlanID    string
	StartDate time.Time
	EndDate   time.Time
	Status    string
	PaymentID string
	AutoRenew bool
	CreatedAt time.Time
}

// Статусы подписок.
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

// DaysLeft возвращает количество полных суток до окончания подписки.
func (s Subscription) DaysLeft(now time.Time) int {
	d := s.EndDate.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// ExpiringSubscription: подписка из выборки для автопродления.
type ExpiringSubscription struct {
	Subscription
	TGUserID int64
	Email    string
}

// Payment: платёж пользователя в ЮKassa.
type Payment struct {
	ID              int64
	UserID          int64
	PaymentID       string
	PlanID          string
	Amount          decimal.Decimal
	Description     string
	Status          string
	Paid            bool
	ConfirmationURL string
	AutoRenewal     bool
	Test            bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentMethod: сохранённая карта для автоплатежей.
type PaymentMethod struct {
	ID              int64
	UserID          int64
	PaymentMethodID string
	Type            string
	Title           string
	CardFirst6      string
	CardLast4       string
	CardType        string
	ExpiryMonth     string
	ExpiryYear      string
	Active          bool
	CreatedAt       time.Time
}

// CreatePaymentRecord содержит данные для сохранения созданного платежа.
type CreatePaymentRecord struct {
	UserID          int64
	PaymentID       string
	PlanID          string
	Amount          decimal.Decimal
	Description     string
	Status          string
	ConfirmationURL string
	AutoRenewal     bool
	Test            bool
}
