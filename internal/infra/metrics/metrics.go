package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ListingBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "listing_build_seconds",
		Help:    "Время построения списка товаров по всем ключам",
		Buckets: prometheus.DefBuckets,
	})
	ListingRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listing_requests_total",
		Help: "Количество запросов списка товаров",
	})
	CredentialResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credential_results_total",
		Help: "Результаты обработки ключей по типу и исходу",
	}, []string{"kind", "outcome"})
	ReconciledProductsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciled_products_total",
		Help: "Товары, прошедшие сверку, и пропуски по причинам",
	}, []string{"result"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	PaymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Платежи по статусам",
	}, []string{"status", "auto_renewal"})
	RenewalRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_runs_total",
		Help: "Итоги проверки подписок на автопродление",
	}, []string{"outcome"})

	HTTPRequestsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Обрабатываемые HTTP запросы",
	}, []string{"component"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Длительность обработки HTTP запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "method", "route", "status"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Количество HTTP запросов",
	}, []string{"component", "method", "route", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ListingBuildSeconds,
		ListingRequestsTotal,
		CredentialResultsTotal,
		ReconciledProductsTotal,
		BotSendErrors,
		PaymentsTotal,
		RenewalRunsTotal,
		HTTPRequestsInFlight,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// HTTPMiddleware собирает метрики входящих запросов chi. Маршрут берётся из шаблона, чтобы не плодить метки.
func HTTPMiddleware(component string) func(http.Handler) http.Handler {
	if component == "" {
		component = "default"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			HTTPRequestsInFlight.WithLabelValues(component).Inc()
			defer HTTPRequestsInFlight.WithLabelValues(component).Dec()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			labels := []string{component, r.Method, route, strconv.Itoa(status)}
			HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		})
	}
}

// ObserveListing записывает время построения списка товаров.
func ObserveListing(duration time.Duration) {
	ListingRequestsTotal.Inc()
	ListingBuildSeconds.Observe(duration.Seconds())
}

// IncCredentialResult учитывает исход обработки одного ключа.
func IncCredentialResult(kind, outcome string) {
	CredentialResultsTotal.WithLabelValues(kind, outcome).Inc()
}

// AddReconciled учитывает товары после сверки.
func AddReconciled(priced, skippedNoDetail, skippedNoPrice int) {
	if priced > 0 {
		ReconciledProductsTotal.WithLabelValues("priced").Add(float64(priced))
	}
	if skippedNoDetail > 0 {
		ReconciledProductsTotal.WithLabelValues("no_detail").Add(float64(skippedNoDetail))
	}
	if skippedNoPrice > 0 {
		ReconciledProductsTotal.WithLabelValues("no_price").Add(float64(skippedNoPrice))
	}
}

// IncPayment учитывает платёж с итоговым статусом.
func IncPayment(status string, autoRenewal bool) {
	flag := "false"
	if autoRenewal {
		flag = "true"
	}
	PaymentsTotal.WithLabelValues(status, flag).Inc()
}

// IncRenewal учитывает исход проверки одной подписки.
func IncRenewal(outcome string) {
	RenewalRunsTotal.WithLabelValues(outcome).Inc()
}
