package discount

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

// ProgressFunc вызывается перед обработкой каждого ключа пользователя.
// index начинается с единицы и считается только среди ключей пользователя.
type ProgressFunc func(ctx context.Context, index, total int, cred domain.Credential)

// Aggregator прогоняет сверку по всем ключам по очереди.
type Aggregator struct {
	client   domain.CatalogueClient
	log      zerolog.Logger
	progress ProgressFunc
}

// NewAggregator создаёт агрегатор.
func NewAggregator(client domain.CatalogueClient, logger zerolog.Logger) *Aggregator {
	return &Aggregator{client: client, log: logger}
}

// WithProgress возвращает копию агрегатора с обработчиком прогресса.
func (a *Aggregator) WithProgress(fn ProgressFunc) *Aggregator {
	cp := *a
	cp.progress = fn
	return &cp
}

// credentialOutcome: результат одного ключа до приведения к общему виду.
type credentialOutcome struct {
	result domain.CredentialResult
	empty  bool
	err    error
}

var errEmptyListing = errors.New("список товаров пуст")

// AggregateAll возвращает ровно по одному результату на каждый ключ в исходном порядке.
// Ошибка одного ключа не влияет на остальные.
func (a *Aggregator) AggregateAll(ctx context.Context, creds []domain.Credential, threshold float64, lookup domain.CommissionLookup) []domain.CredentialResult {
	start := time.Now()
	defer func() { metrics.ObserveListing(time.Since(start)) }()

	userTotal := 0
	for _, c := range creds {
		if !c.IsShared() {
			userTotal++
		}
	}

	results := make([]domain.CredentialResult, 0, len(creds))
	userIdx := 0
	for _, cred := range creds {
		if !cred.IsShared() {
			userIdx++
			if a.progress != nil {
				a.progress(ctx, userIdx, userTotal, cred)
			}
		}
		out := a.processCredential(ctx, cred, threshold, lookup)
		results = append(results, a.normalize(cred, threshold, out))
	}
	return results
}

func (a *Aggregator) processCredential(ctx context.Context, cred domain.Credential, threshold float64, lookup domain.CommissionLookup) credentialOutcome {
	listings, err := a.client.FetchSellerListing(ctx, cred)
	if err != nil {
		return credentialOutcome{err: err}
	}
	if len(listings) == 0 {
		return credentialOutcome{empty: true, err: errEmptyListing}
	}

	ids := make([]int64, 0, len(listings))
	for _, l := range listings {
		if l.ProductID != 0 {
			ids = append(ids, l.ProductID)
		}
	}
	details, err := a.client.FetchDetails(ctx, ids)
	if err != nil {
		return credentialOutcome{err: err}
	}
	res := Reconcile(listings, details, lookup, threshold)
	metrics.AddReconciled(res.PricedProducts, res.SkippedNoDetail, res.SkippedNoPrice)
	return credentialOutcome{result: res}
}

// normalize приводит исход к единому виду страницы.
func (a *Aggregator) normalize(cred domain.Credential, threshold float64, out credentialOutcome) domain.CredentialResult {
	logger := a.log.With().Str("key", cred.Label).Str("kind", string(cred.Kind)).Logger()
	if out.err != nil {
		placeholder := domain.CredentialResult{
			Label:     cred.Label,
			Kind:      cred.Kind,
			Threshold: threshold,
			Products:  []domain.ReconciledProduct{},
		}
		placeholder.HadError = true
		if out.empty {
			logger.Info().Msg("список товаров пуст")
			metrics.IncCredentialResult(string(cred.Kind), "empty")
			return placeholder
		}
		logger.Error().Err(out.err).Msg("не удалось обработать ключ")
		metrics.IncCredentialResult(string(cred.Kind), "error")
		placeholder.Error = out.err.Error()
		return placeholder
	}

	res := out.result
	res.Label = cred.Label
	res.Kind = cred.Kind
	logger.Info().
		Int("total", res.TotalProducts).
		Int("filtered", res.FilteredCount).
		Int("unique", len(res.Products)).
		Float64("threshold", threshold).
		Msg("ключ обработан")
	metrics.IncCredentialResult(string(cred.Kind), "ok")
	return res
}
