package bot

import (
	"context"
	"errors"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/subscription"
)

func (h *Handler) plans() []domain.Plan {
	if h.subs == nil {
		return domain.Plans()
	}
	return h.subs.Plans()
}

func (h *Handler) handleSubscription(ctx context.Context, chatID, tgUserID int64) {
	sub, err := h.subs.ActiveSubscription(ctx, tgUserID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		h.reply(chatID, textNoSubscription, PlansKeyboard(h.plans()))
		return
	}
	if err != nil {
		h.fail(chatID, err, "не удалось получить подписку")
		return
	}
	methods, err := h.subs.PaymentMethods(ctx, tgUserID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user", tgUserID).Msg("не удалось получить сохранённые карты")
	}
	h.reply(chatID, activeSubscriptionText(sub, methods), PlansKeyboard(h.plans()))
}

func (h *Handler) buyPlan(ctx context.Context, chatID, tgUserID int64, planID string) callbackAnswer {
	plan, ok := domain.PlanByID(planID)
	if !ok {
		return callbackAnswer{text: "❌ Неизвестный тариф", alert: true}
	}
	payment, err := h.subs.CreatePayment(ctx, tgUserID, planID)
	switch {
	case errors.Is(err, subscription.ErrUnknownPlan):
		return callbackAnswer{text: "❌ Неизвестный тариф", alert: true}
	case errors.Is(err, domain.ErrUserNotFound):
		h.fail(chatID, err, "")
		return callbackAnswer{}
	case err != nil:
		h.log.Error().Err(err).Int64("user", tgUserID).Str("plan", planID).Msg("не удалось создать платёж")
		h.reply(chatID, textPaymentFailed, nil)
		return callbackAnswer{}
	}
	h.reply(chatID, paymentCreatedText(plan), PaymentKeyboard(payment))
	return callbackAnswer{}
}

func (h *Handler) cancelPayment(ctx context.Context, chatID int64, messageID int, tgUserID int64, paymentID string) callbackAnswer {
	err := h.subs.CancelPayment(ctx, tgUserID, paymentID)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return callbackAnswer{text: "❌ Платёж не найден", alert: true}
	case errors.Is(err, subscription.ErrCancelRejected):
		return callbackAnswer{text: textCancelFailed, alert: true}
	case err != nil:
		h.log.Error().Err(err).Str("payment", paymentID).Msg("не удалось отменить платёж")
		return callbackAnswer{text: textCancelFailed, alert: true}
	}
	h.edit(chatID, messageID, textPaymentCanceled, nil, "")
	return callbackAnswer{text: textPaymentCanceled}
}
