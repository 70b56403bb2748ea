package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/discount"
	"wb-products-bot/internal/usecase/pager"
)

var (
	// ErrNoCredentials: у пользователя нет ни одного активного ключа.
	ErrNoCredentials = errors.New("нет активных ключей")
	// ErrAllCredentialsFailed: ни один ключ не удалось загрузить.
	ErrAllCredentialsFailed = errors.New("не удалось загрузить товары ни по одному ключу")
	// ErrSubscriptionRequired: для списка товаров нужна активная подписка.
	ErrSubscriptionRequired = errors.New("нужна активная подписка")
)

// CredentialProvider отдаёт ключи пользователя в порядке обработки.
type CredentialProvider interface {
	ActiveCredentials(ctx context.Context, tgUserID int64) ([]domain.Credential, error)
}

// AccountProvider отдаёт пользователя и его справочник.
type AccountProvider interface {
	User(ctx context.Context, tgUserID int64) (domain.User, error)
	Lookup(user domain.User) domain.CommissionLookup
}

// SubscriptionChecker проверяет доступ по подписке.
type SubscriptionChecker interface {
	HasActiveSubscription(ctx context.Context, userID int64) (bool, error)
}

// Reporter получает сообщения о ходе обработки.
type Reporter interface {
	Started(ctx context.Context, total int)
	Progress(ctx context.Context, index, total int, cred domain.Credential)
}

// Service строит список товаров по всем ключам и открывает первую страницу.
type Service struct {
	creds         CredentialProvider
	accounts      AccountProvider
	subscriptions SubscriptionChecker
	aggregator    *discount.Aggregator
	pager         *pager.Pager
	metrics       domain.BusinessMetricRepo
	log           zerolog.Logger
	now           func() time.Time
}

// NewService создаёт сервис. subscriptions может быть nil, тогда доступ не ограничен.
func NewService(creds CredentialProvider, accounts AccountProvider, subscriptions SubscriptionChecker, aggregator *discount.Aggregator, p *pager.Pager, metrics domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{
		creds:         creds,
		accounts:      accounts,
		subscriptions: subscriptions,
		aggregator:    aggregator,
		pager:         p,
		metrics:       metrics,
		log:           logger,
		now:           time.Now,
	}
}

// Build прогоняет все ключи пользователя и возвращает первую страницу.
func (s *Service) Build(ctx context.Context, tgUserID int64, reporter Reporter) (pager.RenderedPage, error) {
	user, err := s.accounts.User(ctx, tgUserID)
	if err != nil {
		return pager.RenderedPage{}, fmt.Errorf("получение пользователя: %w", err)
	}
	if s.subscriptions != nil {
		ok, err := s.subscriptions.HasActiveSubscription(ctx, user.ID)
		if err != nil {
			return pager.RenderedPage{}, fmt.Errorf("проверка подписки: %w", err)
		}
		if !ok {
			return pager.RenderedPage{}, ErrSubscriptionRequired
		}
	}

	creds, err := s.creds.ActiveCredentials(ctx, tgUserID)
	if err != nil {
		return pager.RenderedPage{}, fmt.Errorf("получение ключей: %w", err)
	}
	if len(creds) == 0 {
		return pager.RenderedPage{}, ErrNoCredentials
	}
	if reporter != nil {
		reporter.Started(ctx, len(creds))
	}

	threshold := user.Threshold()
	lookup := s.accounts.Lookup(user)
	s.log.Info().
		Int64("user_id", user.ID).
		Int("threshold", threshold).
		Int("keys", len(creds)).
		Bool("spreadsheet", lookup != nil).
		Msg("построение списка товаров")

	agg := s.aggregator
	if reporter != nil {
		agg = agg.WithProgress(reporter.Progress)
	}
	results := agg.AggregateAll(ctx, creds, float64(threshold), lookup)
	if allFailed(results) {
		s.record(ctx, user.ID, results)
		return pager.RenderedPage{}, ErrAllCredentialsFailed
	}

	if err := s.pager.StartSession(ctx, tgUserID, results); err != nil {
		return pager.RenderedPage{}, fmt.Errorf("сохранение результатов: %w", err)
	}
	s.record(ctx, user.ID, results)
	return s.pager.RenderPage(ctx, tgUserID, 0)
}

// Page показывает страницу из последней выдачи.
func (s *Service) Page(ctx context.Context, tgUserID int64, page int) (pager.RenderedPage, error) {
	return s.pager.RenderPage(ctx, tgUserID, page)
}

// Stats показывает статистику для страницы.
func (s *Service) Stats(ctx context.Context, tgUserID int64, page int) (pager.RenderedPage, error) {
	return s.pager.RenderStats(ctx, tgUserID, page)
}

func (s *Service) record(ctx context.Context, userID int64, results []domain.CredentialResult) {
	if s.metrics == nil {
		return
	}
	products, failed := 0, 0
	for _, r := range results {
		products += len(r.Products)
		if r.Failed() {
			failed++
		}
	}
	uid := userID
	if err := s.metrics.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:  domain.BusinessMetricEventListingBuilt,
		UserID: &uid,
		Metadata: map[string]any{
			"keys":     len(results),
			"failed":   failed,
			"products": products,
		},
		OccurredAt: s.now(),
	}); err != nil {
		s.log.Warn().Err(err).Msg("не удалось сохранить бизнес-метрику")
	}
}

func allFailed(results []domain.CredentialResult) bool {
	for _, r := range results {
		if !r.Failed() {
			return false
		}
	}
	return len(results) > 0
}
