package domain

import (
	"context"
	"time"
)

// PaymentEventKind описывает тип события оплаты для уведомления пользователя.
type PaymentEventKind string

const (
	// PaymentEventSucceeded: платёж прошёл, подписка активирована.
	PaymentEventSucceeded PaymentEventKind = "payment.succeeded"
	// PaymentEventCanceled: платёж отменён или отклонён.
	PaymentEventCanceled PaymentEventKind = "payment.canceled"
)

// PaymentEvent передаётся из обработчика вебхука в бот.
type PaymentEvent struct {
	ID         string           `json:"event_id"`
	Kind       PaymentEventKind `json:"kind"`
	UserTGID   int64            `json:"user_tg_id"`
	PaymentID  string           `json:"payment_id"`
	PlanID     string           `json:"plan_id"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// PaymentEventQueue описывает очередь событий оплаты.
type PaymentEventQueue interface {
	Publish(ctx context.Context, event PaymentEvent) error
	Receive(ctx context.Context) (PaymentEvent, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки события.
type AckFunc func(success bool) error
