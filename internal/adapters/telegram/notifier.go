package telegram

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

// API: часть *tgbotapi.BotAPI, которой пользуются бот и уведомления.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

var _ domain.Notifier = (*Notifier)(nil)

// Notifier отправляет HTML-уведомления пользователям.
type Notifier struct {
	api API
	log zerolog.Logger
}

// NewNotifier создаёт отправителя уведомлений.
func NewNotifier(api API, logger zerolog.Logger) *Notifier {
	return &Notifier{api: api, log: logger}
}

// Notify отправляет текст, разбивая его на части по лимиту Telegram.
func (n *Notifier) Notify(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		start := time.Now()
		_, err := n.api.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			n.log.Error().Err(err).Int64("chat_id", chatID).Msg("не удалось отправить уведомление")
			return err
		}
	}
	return nil
}
