package subscription

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

const (
	dateLayout = "02.01.2006"

	// RenewalWindow: за сколько до окончания подписка попадает в выборку.
	RenewalWindow = 3 * 24 * time.Hour
	// RecentPaymentWindow: автоплатёж не повторяется чаще этого интервала.
	RecentPaymentWindow = 24 * time.Hour
	// MaxDaysLeft: подписки с большим остатком ждут следующего прохода.
	MaxDaysLeft = 1

	unknownPlanName = "Неизвестный план"
)

// Исходы обработки подписки.
const (
	OutcomeEarly       = "early"
	OutcomeRecent      = "recent_payment"
	OutcomeReminded    = "reminded"
	OutcomeUnknownPlan = "unknown_plan"
	OutcomeRenewed     = "renewed"
	OutcomeFailed      = "failed"
	OutcomeError       = "error"
)

// RenewalReport подводит итог одного прохода.
type RenewalReport struct {
	Checked  int
	Outcomes map[string]int
}

// Renewer продлевает подписки сохранёнными картами.
type Renewer struct {
	repo      domain.SubscriptionRepo
	gateway   domain.PaymentGateway
	notifier  domain.Notifier
	metrics   domain.BusinessMetricRepo
	returnURL string
	delay     time.Duration
	log       zerolog.Logger
	now       func() time.Time
	wait      func(ctx context.Context, d time.Duration) error
}

// NewRenewer создаёт сервис автопродления. delay: пауза перед проверкой статуса автоплатежа.
func NewRenewer(repo domain.SubscriptionRepo, gateway domain.PaymentGateway, notifier domain.Notifier, metrics domain.BusinessMetricRepo, returnURL string, delay time.Duration, logger zerolog.Logger) *Renewer {
	return &Renewer{
		repo:      repo,
		gateway:   gateway,
		notifier:  notifier,
		metrics:   metrics,
		returnURL: returnURL,
		delay:     delay,
		log:       logger,
		now:       time.Now,
		wait:      sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run запускает проход и пишет итог в лог. Используется планировщиком.
func (r *Renewer) Run(ctx context.Context) {
	report, err := r.ProcessAutoRenewals(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("автопродление не выполнено")
		return
	}
	r.log.Info().Int("checked", report.Checked).Interface("outcomes", report.Outcomes).Msg("автопродление завершено")
}

// ProcessAutoRenewals проверяет истекающие подписки. Ошибка одной подписки не прерывает проход.
func (r *Renewer) ProcessAutoRenewals(ctx context.Context) (RenewalReport, error) {
	now := r.now()
	subs, err := r.repo.ListExpiringSubscriptions(ctx, now, RenewalWindow)
	if err != nil {
		return RenewalReport{}, fmt.Errorf("выборка подписок: %w", err)
	}
	report := RenewalReport{Outcomes: make(map[string]int)}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := r.renew(ctx, sub)
		report.Checked++
		report.Outcomes[outcome]++
		metrics.IncRenewal(outcome)
	}
	return report, nil
}

func (r *Renewer) renew(ctx context.Context, sub domain.ExpiringSubscription) string {
	logger := r.log.With().Int64("user", sub.UserID).Int64("subscription", sub.ID).Logger()
	now := r.now()
	daysLeft := sub.DaysLeft(now)
	if daysLeft > MaxDaysLeft {
		return OutcomeEarly
	}

	recent, err := r.repo.HasRecentAutoRenewalPayment(ctx, sub.UserID, now.Add(-RecentPaymentWindow))
	if err != nil {
		logger.Error().Err(err).Msg("проверка недавних автоплатежей")
		return OutcomeError
	}
	if recent {
		return OutcomeRecent
	}

	methods, err := r.repo.ListPaymentMethods(ctx, sub.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("получение сохранённых карт")
		return OutcomeError
	}
	if len(methods) == 0 {
		r.notify(ctx, sub.TGUserID, ReminderText(sub.Subscription, daysLeft))
		return OutcomeReminded
	}

	plan, ok := domain.PlanByID(sub.PlanID)
	if !ok {
		logger.Warn().Str("plan", sub.PlanID).Msg("тариф подписки не найден")
		return OutcomeUnknownPlan
	}

	email := sub.Email
	if email == "" {
		email = FallbackEmail(domain.User{TGUserID: sub.TGUserID})
	}
	created, err := r.gateway.CreatePayment(ctx, domain.GatewayPaymentRequest{
		Amount:          plan.Price,
		Description:     "Автопродление: " + plan.Description,
		TGUserID:        sub.TGUserID,
		Email:           email,
		ReturnURL:       r.returnURL,
		PaymentMethodID: methods[0].PaymentMethodID,
		Metadata:        map[string]string{"plan_id": plan.ID, "auto_renewal": "true"},
	})
	if err != nil {
		logger.Error().Err(err).Msg("создание автоплатежа")
		return r.fail(ctx, sub, daysLeft, "")
	}
	if _, err := r.repo.CreatePayment(ctx, domain.CreatePaymentRecord{
		UserID:          sub.UserID,
		PaymentID:       created.ID,
		PlanID:          plan.ID,
		Amount:          plan.Price,
		Description:     "Автопродление: " + plan.Description,
		Status:          created.Status,
		ConfirmationURL: created.ConfirmationURL,
		AutoRenewal:     true,
		Test:            created.Test,
	}); err != nil {
		logger.Error().Err(err).Str("payment", created.ID).Msg("сохранение автоплатежа")
		return OutcomeError
	}

	if err := r.wait(ctx, r.delay); err != nil {
		return OutcomeError
	}

	current, err := r.gateway.GetPayment(ctx, created.ID)
	if err != nil {
		logger.Error().Err(err).Str("payment", created.ID).Msg("проверка автоплатежа")
		return r.fail(ctx, sub, daysLeft, created.ID)
	}
	if current.Status != domain.PaymentStatusSucceeded || !current.Paid {
		if err := r.repo.UpdatePaymentStatus(ctx, created.ID, current.Status, current.Paid); err != nil {
			logger.Error().Err(err).Str("payment", created.ID).Msg("обновление статуса автоплатежа")
		}
		metrics.IncPayment(current.Status, true)
		return r.fail(ctx, sub, daysLeft, created.ID)
	}

	renewed, err := r.repo.ActivateSubscription(ctx, created.ID, r.now())
	if err != nil {
		logger.Error().Err(err).Str("payment", created.ID).Msg("активация подписки после автоплатежа")
		return r.fail(ctx, sub, daysLeft, created.ID)
	}
	if err := r.repo.UpdatePaymentStatus(ctx, created.ID, current.Status, current.Paid); err != nil {
		logger.Error().Err(err).Str("payment", created.ID).Msg("обновление статуса автоплатежа")
	}
	metrics.IncPayment(current.Status, true)
	r.record(ctx, domain.BusinessMetricEventSubscriptionActivated, sub.UserID, map[string]any{"payment_id": created.ID, "plan_id": plan.ID, "auto_renewal": true})
	r.notify(ctx, sub.TGUserID, SuccessText(renewed.EndDate))
	logger.Info().Str("payment", created.ID).Time("until", renewed.EndDate).Msg("подписка продлена")
	return OutcomeRenewed
}

func (r *Renewer) fail(ctx context.Context, sub domain.ExpiringSubscription, daysLeft int, paymentID string) string {
	r.record(ctx, domain.BusinessMetricEventAutoRenewalFailed, sub.UserID, map[string]any{"payment_id": paymentID, "plan_id": sub.PlanID})
	r.notify(ctx, sub.TGUserID, FailureText(sub.EndDate, daysLeft))
	return OutcomeFailed
}

func (r *Renewer) notify(ctx context.Context, chatID int64, text string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, chatID, text); err != nil {
		r.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить уведомление")
	}
}

func (r *Renewer) record(ctx context.Context, event string, userID int64, meta map[string]any) {
	if r.metrics == nil {
		return
	}
	id := userID
	metric := domain.BusinessMetric{Event: event, UserID: &id, Metadata: meta, OccurredAt: r.now().UTC()}
	if err := r.metrics.RecordBusinessMetric(ctx, metric); err != nil {
		r.log.Warn().Err(err).Str("event", event).Msg("не удалось сохранить бизнес-метрику")
	}
}

// ReminderText напоминает о продлении пользователю без сохранённых карт.
func ReminderText(sub domain.Subscription, daysLeft int) string {
	name := unknownPlanName
	if plan, ok := domain.PlanByID(sub.PlanID); ok {
		name = plan.Name
	}
	return "⚠️ <b>Напоминание о продлении подписки</b>\n\n" +
		"Ваша подписка '" + name + "' истекает через " + strconv.Itoa(daysLeft) + " дн.\n" +
		"Дата окончания: " + sub.EndDate.Format(dateLayout) + "\n\n" +
		"У вас нет сохраненных карт для автопродления.\n" +
		"Для продления подписки перейдите в '💳 Подписка'"
}

// SuccessText сообщает об успешном автопродлении.
func SuccessText(validUntil time.Time) string {
	return "✅ <b>Подписка автоматически продлена!</b>\n\n" +
		"Ваша подписка успешно продлена.\n" +
		"Действует до: " + validUntil.Format(dateLayout) + "\n\n" +
		"Спасибо, что остаетесь с нами! 🎉"
}

// FailureText сообщает о неудачном автопродлении.
func FailureText(endDate time.Time, daysLeft int) string {
	return "❌ <b>Не удалось автоматически продлить подписку</b>\n\n" +
		"Подписка истекает через " + strconv.Itoa(daysLeft) + " дн.\n" +
		"Дата окончания: " + endDate.Format(dateLayout) + "\n\n" +
		"Возможные причины:\n" +
		"• Недостаточно средств на карте\n" +
		"• Карта заблокирована или истек срок действия\n\n" +
		"Пожалуйста, обновите платежную информацию в разделе '💳 Подписка'"
}
