package yookassa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wb-products-bot/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New("shop", "secret", WithBaseURL(srv.URL+"/v3"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("не удалось создать клиента: %v", err)
	}
	c.newKey = func() string { return "fixed-key" }
	return c
}

func TestCreatePaymentNewCard(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/payments" {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "shop" || pass != "secret" {
			t.Errorf("нет basic auth")
		}
		if r.Header.Get("Idempotence-Key") != "fixed-key" {
			t.Errorf("нет ключа идемпотентности")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("тело не json: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"2d1f","status":"pending","paid":false,"amount":{"value":"599.00","currency":"RUB"},"confirmation":{"type":"redirect","confirmation_url":"https://yoomoney.ru/checkout/2d1f"},"created_at":"2025-03-01T10:00:00.000Z","test":true}`))
	})

	got, err := c.CreatePayment(context.Background(), domain.GatewayPaymentRequest{
		Amount:            decimal.RequireFromString("599"),
		Description:       "Подписка на 1 месяц",
		TGUserID:          42,
		Email:             "user42@telegram.user",
		ReturnURL:         "https://t.me/productswbbot",
		SavePaymentMethod: true,
		Metadata:          map[string]string{"plan_id": "month"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if got.ID != "2d1f" || got.ConfirmationURL != "https://yoomoney.ru/checkout/2d1f" || !got.Test {
		t.Fatalf("неверный ответ: %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("599")) || got.CreatedAt.IsZero() {
		t.Fatalf("неверная сумма или дата: %+v", got)
	}

	amount := body["amount"].(map[string]any)
	if amount["value"] != "599.00" || amount["currency"] != "RUB" {
		t.Fatalf("неверная сумма в запросе: %v", amount)
	}
	if body["save_payment_method"] != true || body["capture"] != true {
		t.Fatalf("ожидали сохранение карты и capture: %v", body)
	}
	if pmd, _ := body["payment_method_data"].(map[string]any); pmd["type"] != "bank_card" {
		t.Fatalf("ожидали оплату банковской картой: %v", body["payment_method_data"])
	}
	if _, ok := body["payment_method_id"]; ok {
		t.Fatalf("новая карта не передаёт payment_method_id")
	}
	meta := body["metadata"].(map[string]any)
	if meta["user_id"] != "42" || meta["plan_id"] != "month" {
		t.Fatalf("неверные metadata: %v", meta)
	}
	rcpt := body["receipt"].(map[string]any)
	items := rcpt["items"].([]any)
	item := items[0].(map[string]any)
	if item["quantity"] != "1.00" || item["payment_subject"] != "service" || item["vat_code"] != float64(1) {
		t.Fatalf("неверная позиция чека: %v", item)
	}
	if rcpt["customer"].(map[string]any)["email"] != "user42@telegram.user" {
		t.Fatalf("неверный email в чеке")
	}
}

func TestCreatePaymentSavedCard(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"id":"p2","status":"succeeded","paid":true,"amount":{"value":"599.00","currency":"RUB"}}`))
	})
	_, err := c.CreatePayment(context.Background(), domain.GatewayPaymentRequest{
		Amount:          decimal.RequireFromString("599"),
		Description:     "Автопродление: Подписка на 1 месяц",
		PaymentMethodID: "pm-1",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if body["payment_method_id"] != "pm-1" {
		t.Fatalf("ожидали payment_method_id: %v", body)
	}
	if _, ok := body["payment_method_data"]; ok {
		t.Fatalf("сохранённая карта не передаёт payment_method_data")
	}
	if _, ok := body["save_payment_method"]; ok {
		t.Fatalf("сохранённая карта не сохраняется повторно")
	}
}

func TestGetPaymentWithSavedMethod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v3/payments/p3" {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotence-Key") != "" {
			t.Errorf("GET не передаёт ключ идемпотентности")
		}
		_, _ = w.Write([]byte(`{"id":"p3","status":"succeeded","paid":true,"amount":{"value":"1499.00","currency":"RUB"},
			"payment_method":{"type":"bank_card","id":"pm-9","saved":true,"title":"Bank card *4444",
			"card":{"first6":"555555","last4":"4444","expiry_month":"07","expiry_year":"2027","card_type":"MasterCard"}}}`))
	})
	got, err := c.GetPayment(context.Background(), "p3")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if got.Method == nil || got.Method.PaymentMethodID != "pm-9" || !got.Method.Active || got.Method.CardLast4 != "4444" || got.Method.ExpiryYear != "2027" {
		t.Fatalf("неверная карта: %+v", got.Method)
	}
}

func TestCancelPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/payments/p4/cancel" || r.Header.Get("Idempotence-Key") == "" {
			t.Errorf("неожиданный запрос %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"p4","status":"canceled","paid":false}`))
	})
	got, err := c.CancelPayment(context.Background(), "p4")
	if err != nil || got.Status != domain.PaymentStatusCanceled {
		t.Fatalf("ожидали отмену: %+v %v", got, err)
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","code":"invalid_request","description":"Receipt is missing"}`))
	})
	_, err := c.GetPayment(context.Background(), "p5")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидали APIError, получили %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "invalid_request" {
		t.Fatalf("неверная ошибка: %+v", apiErr)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("", "secret"); err == nil {
		t.Fatalf("ожидали ошибку без shop id")
	}
}

func TestIsTrustedIP(t *testing.T) {
	cases := map[string]bool{
		"185.71.76.5":         true,
		"185.71.76.40":        false,
		"77.75.156.11:443":    true,
		"77.75.156.12":        false,
		"77.75.154.200":       true,
		"[2a02:5180::1]:8080": true,
		"::ffff:185.71.77.1":  true,
		"10.0.0.1":            false,
		"garbage":             false,
	}
	for ip, want := range cases {
		if got := IsTrustedIP(ip); got != want {
			t.Fatalf("IsTrustedIP(%q) = %v, ожидали %v", ip, got, want)
		}
	}
}

func TestParseNotification(t *testing.T) {
	raw := `{"type":"notification","event":"payment.succeeded","object":{"id":"p6","status":"succeeded","paid":true}}`
	n, err := ParseNotification(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if n.Event != "payment.succeeded" || n.PaymentID() != "p6" {
		t.Fatalf("неверное уведомление: %+v", n)
	}
	if _, err := ParseNotification(strings.NewReader(`{"type":"other"}`)); !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("ожидали ErrInvalidNotification, получили %v", err)
	}
	if _, err := ParseNotification(strings.NewReader(`{`)); !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("ожидали ErrInvalidNotification для битого json, получили %v", err)
	}
}

type stubHandler struct {
	err   error
	calls []string
}

func (h *stubHandler) HandleNotification(_ context.Context, event, paymentID string) error {
	h.calls = append(h.calls, event+":"+paymentID)
	return h.err
}

func TestWebhookHandler(t *testing.T) {
	body := `{"type":"notification","event":"payment.succeeded","object":{"id":"p7"}}`
	cases := []struct {
		name   string
		remote string
		err    error
		want   int
		calls  int
	}{
		{name: "доверенный адрес", remote: "185.71.76.1:5000", want: http.StatusOK, calls: 1},
		{name: "чужой адрес", remote: "1.2.3.4:5000", want: http.StatusForbidden},
		{name: "неизвестный платёж", remote: "185.71.76.1:5000", err: domain.ErrPaymentNotFound, want: http.StatusOK, calls: 1},
		{name: "ошибка обработки", remote: "185.71.76.1:5000", err: errors.New("db"), want: http.StatusInternalServerError, calls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &stubHandler{err: tc.err}
			req := httptest.NewRequest(http.MethodPost, "/yookassa/webhook", strings.NewReader(body))
			req.RemoteAddr = tc.remote
			rec := httptest.NewRecorder()
			WebhookHandler(h, true, zerolog.Nop()).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("код %d, ожидали %d", rec.Code, tc.want)
			}
			if len(h.calls) != tc.calls {
				t.Fatalf("вызовов %d, ожидали %d", len(h.calls), tc.calls)
			}
		})
	}
}
