package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventUserRegistered фиксирует регистрацию нового пользователя.
	BusinessMetricEventUserRegistered = "user_registered"
	// BusinessMetricEventListingBuilt фиксирует построение списка товаров.
	BusinessMetricEventListingBuilt = "listing_built"
	// BusinessMetricEventSpreadsheetUploaded фиксирует загрузку справочника комиссий.
	BusinessMetricEventSpreadsheetUploaded = "spreadsheet_uploaded"
	// BusinessMetricEventSubscriptionActivated фиксирует активацию или продление подписки.
	BusinessMetricEventSubscriptionActivated = "subscription_activated"
	// BusinessMetricEventAutoRenewalFailed фиксирует неудачное автопродление.
	BusinessMetricEventAutoRenewalFailed = "auto_renewal_failed"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
