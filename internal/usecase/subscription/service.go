package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

// dedupTTL ограничивает окно повторной обработки одного уведомления.
const dedupTTL = 24 * time.Hour

var (
	// ErrUnknownPlan: тариф с таким идентификатором не существует.
	ErrUnknownPlan = errors.New("неизвестный тариф")
	// ErrCancelRejected: платёжная система не отменила платёж.
	ErrCancelRejected = errors.New("платёж не отменён")
)

// FallbackEmail возвращает адрес для чека, если пользователь не указал свой.
func FallbackEmail(user domain.User) string {
	if user.Email != "" {
		return user.Email
	}
	return fmt.Sprintf("user%d@telegram.user", user.TGUserID)
}

// Service управляет подписками и платежами.
type Service struct {
	repo      domain.SubscriptionRepo
	users     domain.UserRepo
	gateway   domain.PaymentGateway
	cache     domain.Cache
	events    domain.PaymentEventQueue
	metrics   domain.BusinessMetricRepo
	returnURL string
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис. cache и events могут быть nil.
func NewService(repo domain.SubscriptionRepo, users domain.UserRepo, gateway domain.PaymentGateway, cache domain.Cache, events domain.PaymentEventQueue, metrics domain.BusinessMetricRepo, returnURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		gateway:   gateway,
		cache:     cache,
		events:    events,
		metrics:   metrics,
		returnURL: returnURL,
		log:       logger,
		now:       time.Now,
	}
}

// Plans возвращает тарифы.
func (s *Service) Plans() []domain.Plan {
	return domain.Plans()
}

// CreatePayment создаёт платёж за тариф новой картой с сохранением её для автопродления.
func (s *Service) CreatePayment(ctx context.Context, tgUserID int64, planID string) (domain.Payment, error) {
	plan, ok := domain.PlanByID(planID)
	if !ok {
		return domain.Payment{}, ErrUnknownPlan
	}
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("получение пользователя: %w", err)
	}
	gp, err := s.gateway.CreatePayment(ctx, domain.GatewayPaymentRequest{
		Amount:            plan.Price,
		Description:       plan.Description,
		TGUserID:          user.TGUserID,
		Email:             FallbackEmail(user),
		ReturnURL:         s.returnURL,
		SavePaymentMethod: true,
		Metadata:          map[string]string{"plan_id": plan.ID},
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("создание платежа: %w", err)
	}
	payment, err := s.repo.CreatePayment(ctx, domain.CreatePaymentRecord{
		UserID:          user.ID,
		PaymentID:       gp.ID,
		PlanID:          plan.ID,
		Amount:          plan.Price,
		Description:     plan.Description,
		Status:          gp.Status,
		ConfirmationURL: gp.ConfirmationURL,
		Test:            gp.Test,
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("сохранение платежа: %w", err)
	}
	metrics.IncPayment(gp.Status, false)
	s.log.Info().Int64("user", user.ID).Str("payment", gp.ID).Str("plan", plan.ID).Msg("создан платёж")
	return payment, nil
}

// HasActiveSubscription сообщает, есть ли у пользователя действующая подписка.
func (s *Service) HasActiveSubscription(ctx context.Context, userID int64) (bool, error) {
	_, err := s.repo.GetActiveSubscription(ctx, userID, s.now())
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("проверка подписки: %w", err)
	}
	return true, nil
}

// ActiveSubscription возвращает действующую подписку по Telegram ID.
func (s *Service) ActiveSubscription(ctx context.Context, tgUserID int64) (domain.Subscription, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.repo.GetActiveSubscription(ctx, user.ID, s.now())
}

// PaymentMethods возвращает сохранённые карты пользователя.
func (s *Service) PaymentMethods(ctx context.Context, tgUserID int64) ([]domain.PaymentMethod, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.repo.ListPaymentMethods(ctx, user.ID)
}

// CancelPayment отменяет неоплаченный платёж пользователя.
func (s *Service) CancelPayment(ctx context.Context, tgUserID int64, paymentID string) error {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.UserID != user.ID {
		return domain.ErrPaymentNotFound
	}
	gp, err := s.gateway.CancelPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("отмена платежа: %w", err)
	}
	if gp.Status != domain.PaymentStatusCanceled {
		return ErrCancelRejected
	}
	if err := s.repo.UpdatePaymentStatus(ctx, paymentID, gp.Status, gp.Paid); err != nil {
		return fmt.Errorf("обновление платежа: %w", err)
	}
	metrics.IncPayment(gp.Status, payment.AutoRenewal)
	return nil
}

// HandleNotification обрабатывает уведомление платёжной системы. Состояние платежа
// перечитывается из API, тело уведомления служит только поводом.
func (s *Service) HandleNotification(ctx context.Context, event, paymentID string) error {
	if paymentID == "" {
		return errors.New("пустой идентификатор платежа")
	}
	process := func() error { return s.syncPayment(ctx, paymentID) }
	if s.cache == nil {
		return process()
	}
	return s.cache.Once(ctx, "yookassa:notification:"+event+":"+paymentID, dedupTTL, process)
}

func (s *Service) syncPayment(ctx context.Context, paymentID string) error {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("получение платежа: %w", err)
	}
	gp, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("запрос статуса платежа: %w", err)
	}
	if gp.Status == payment.Status && gp.Paid == payment.Paid {
		return nil
	}

	var validUntil *time.Time
	if gp.Status == domain.PaymentStatusSucceeded && gp.Paid {
		// Статус платежа обновляется только после активации, поэтому при сбое уведомление можно повторить.
		sub, err := s.repo.ActivateSubscription(ctx, paymentID, s.now())
		if err != nil {
			return fmt.Errorf("активация подписки: %w", err)
		}
		end := sub.EndDate
		validUntil = &end
		if gp.Method != nil && gp.Method.Active {
			method := *gp.Method
			method.UserID = payment.UserID
			if err := s.repo.SavePaymentMethod(ctx, method); err != nil {
				s.log.Error().Err(err).Str("payment", paymentID).Msg("не удалось сохранить карту")
			}
		}
	}
	if err := s.repo.UpdatePaymentStatus(ctx, paymentID, gp.Status, gp.Paid); err != nil {
		return fmt.Errorf("обновление платежа: %w", err)
	}
	metrics.IncPayment(gp.Status, payment.AutoRenewal)

	switch {
	case validUntil != nil:
		s.record(ctx, payment.UserID, map[string]any{"payment_id": paymentID, "plan_id": payment.PlanID})
		return s.publish(ctx, payment, domain.PaymentEventSucceeded, validUntil)
	case gp.Status == domain.PaymentStatusCanceled:
		return s.publish(ctx, payment, domain.PaymentEventCanceled, nil)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, payment domain.Payment, kind domain.PaymentEventKind, validUntil *time.Time) error {
	if s.events == nil {
		return nil
	}
	user, err := s.repo.GetUserByID(ctx, payment.UserID)
	if err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	event := domain.PaymentEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserTGID:   user.TGUserID,
		PaymentID:  payment.PaymentID,
		PlanID:     payment.PlanID,
		ValidUntil: validUntil,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		return fmt.Errorf("публикация события: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID int64, meta map[string]any) {
	if s.metrics == nil {
		return
	}
	id := userID
	metric := domain.BusinessMetric{
		Event:      domain.BusinessMetricEventSubscriptionActivated,
		UserID:     &id,
		Metadata:   meta,
		OccurredAt: s.now().UTC(),
	}
	if err := s.metrics.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", metric.Event).Msg("не удалось сохранить бизнес-метрику")
	}
}

// PaymentEventText формирует уведомление пользователю по событию оплаты.
func PaymentEventText(event domain.PaymentEvent) string {
	switch event.Kind {
	case domain.PaymentEventSucceeded:
		name := event.PlanID
		if plan, ok := domain.PlanByID(event.PlanID); ok {
			name = plan.Name
		}
		text := "✅ <b>Оплата прошла успешно!</b>\n\nТариф: " + name
		if event.ValidUntil != nil {
			text += "\nДействует до: " + event.ValidUntil.Format(dateLayout)
		}
		return text
	case domain.PaymentEventCanceled:
		return "❌ <b>Платёж отменён</b>\n\nПлатёж " + event.PaymentID + " не был завершён. Попробуйте оформить подписку ещё раз в разделе '💳 Подписка'"
	}
	return "Статус платежа " + event.PaymentID + ": " + string(event.Kind)
}
