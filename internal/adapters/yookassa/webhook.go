package yookassa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
)

// Адреса, с которых ЮKassa отправляет уведомления.
var trustedNetworks = mustPrefixes(
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11/32",
	"77.75.156.35/32",
	"77.75.154.128/25",
	"2a02:5180::/32",
)

func mustPrefixes(values ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		out = append(out, netip.MustParsePrefix(v))
	}
	return out
}

// IsTrustedIP проверяет, что адрес принадлежит ЮKassa. Принимает адрес с портом и без.
func IsTrustedIP(raw string) bool {
	host := strings.TrimSpace(raw)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trustedNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Notification: входящее уведомление о смене статуса платежа.
type Notification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event"`
	Object paymentObject `json:"object"`
}

// PaymentID возвращает идентификатор платежа из уведомления.
func (n Notification) PaymentID() string {
	return n.Object.ID
}

// ErrInvalidNotification: тело запроса не является уведомлением ЮKassa.
var ErrInvalidNotification = errors.New("yookassa: invalid notification")

// ParseNotification разбирает тело уведомления.
func ParseNotification(r io.Reader) (Notification, error) {
	var n Notification
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if n.Type != "notification" || n.Event == "" || n.Object.ID == "" {
		return Notification{}, ErrInvalidNotification
	}
	return n, nil
}

// NotificationHandler обрабатывает разобранное уведомление.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, event, paymentID string) error
}

// WebhookHandler принимает уведомления ЮKassa. При trustedOnly запросы с чужих адресов
// отклоняются. Адрес берётся из RemoteAddr, поэтому перед ним должен стоять middleware.RealIP.
func WebhookHandler(handler NotificationHandler, trustedOnly bool, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if trustedOnly && !IsTrustedIP(r.RemoteAddr) {
			logger.Warn().Str("remote", r.RemoteAddr).Msg("уведомление с недоверенного адреса")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		n, err := ParseNotification(r.Body)
		if err != nil {
			logger.Warn().Err(err).Msg("некорректное уведомление")
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		err = handler.HandleNotification(r.Context(), n.Event, n.PaymentID())
		if errors.Is(err, domain.ErrPaymentNotFound) {
			// Платёж создан не этим ботом, повторная доставка ничего не изменит.
			logger.Warn().Str("payment", n.PaymentID()).Msg("уведомление о неизвестном платеже")
			w.WriteHeader(http.StatusOK)
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("event", n.Event).Str("payment", n.PaymentID()).Msg("ошибка обработки уведомления")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
