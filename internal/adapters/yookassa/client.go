package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

// DefaultBaseURL: адрес API ЮKassa.
const DefaultBaseURL = "https://api.yookassa.ru/v3"

// Client работает с API платежей ЮKassa.
type Client struct {
	baseURL    *url.URL
	shopID     string
	secretKey  string
	httpClient *http.Client
	newKey     func() string
}

// Option настраивает клиента.
type Option func(*Client)

// WithHTTPClient подменяет HTTP клиента.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут запросов.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL задаёт адрес API.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if parsed, err := url.Parse(raw); err == nil && raw != "" {
			c.baseURL = parsed
		}
	}
}

// APIError описывает ответ ЮKassa с ошибкой.
type APIError struct {
	Status      int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("yookassa: %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("yookassa: unexpected status %d", e.Status)
}

// New создаёт клиента магазина.
func New(shopID, secretKey string, opts ...Option) (*Client, error) {
	if shopID == "" || secretKey == "" {
		return nil, errors.New("yookassa: shop id and secret key are required")
	}
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL:    base,
		shopID:     shopID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newKey:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type receiptItem struct {
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	Amount         amount `json:"amount"`
	VatCode        int    `json:"vat_code"`
	PaymentMode    string `json:"payment_mode"`
	PaymentSubject string `json:"payment_subject"`
}

type createRequest struct {
	Amount       amount            `json:"amount"`
	Confirmation *confirmation     `json:"confirmation,omitempty"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Receipt      receipt           `json:"receipt"`

	PaymentMethodID   string             `json:"payment_method_id,omitempty"`
	PaymentMethodData *paymentMethodData `json:"payment_method_data,omitempty"`
	SavePaymentMethod bool               `json:"save_payment_method,omitempty"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type receipt struct {
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Items []receiptItem `json:"items"`
}

type paymentMethodData struct {
	Type string `json:"type"`
}

// paymentObject: объект платежа в ответах API и уведомлениях.
type paymentObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Paid          bool              `json:"paid"`
	Amount        amount            `json:"amount"`
	Description   string            `json:"description"`
	Confirmation  *confirmation     `json:"confirmation"`
	CreatedAt     string            `json:"created_at"`
	Test          bool              `json:"test"`
	Metadata      map[string]string `json:"metadata"`
	PaymentMethod *struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Saved bool   `json:"saved"`
		Title string `json:"title"`
		Card  *struct {
			First6      string `json:"first6"`
			Last4       string `json:"last4"`
			ExpiryMonth string `json:"expiry_month"`
			ExpiryYear  string `json:"expiry_year"`
			CardType    string `json:"card_type"`
		} `json:"card"`
	} `json:"payment_method"`
}

func (p paymentObject) toDomain() (domain.GatewayPayment, error) {
	out := domain.GatewayPayment{
		ID:          p.ID,
		Status:      p.Status,
		Paid:        p.Paid,
		Currency:    p.Amount.Currency,
		Description: p.Description,
		Test:        p.Test,
		Metadata:    p.Metadata,
	}
	if p.Amount.Value != "" {
		value, err := decimal.NewFromString(p.Amount.Value)
		if err != nil {
			return domain.GatewayPayment{}, fmt.Errorf("yookassa: amount %q: %w", p.Amount.Value, err)
		}
		out.Amount = value
	}
	if p.Confirmation != nil {
		out.ConfirmationURL = p.Confirmation.ConfirmationURL
	}
	if p.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
			out.CreatedAt = ts
		}
	}
	if pm := p.PaymentMethod; pm != nil && pm.ID != "" {
		method := &domain.PaymentMethod{
			PaymentMethodID: pm.ID,
			Type:            pm.Type,
			Title:           pm.Title,
			Active:          pm.Saved,
		}
		if pm.Card != nil {
			method.CardFirst6 = pm.Card.First6
			method.CardLast4 = pm.Card.Last4
			method.CardType = pm.Card.CardType
			method.ExpiryMonth = pm.Card.ExpiryMonth
			method.ExpiryYear = pm.Card.ExpiryYear
		}
		out.Method = method
	}
	return out, nil
}

// CreatePayment создаёт платёж. С PaymentMethodID списывает сохранённую карту,
// иначе ведёт пользователя на страницу оплаты банковской картой.
func (c *Client) CreatePayment(ctx context.Context, req domain.GatewayPaymentRequest) (domain.GatewayPayment, error) {
	value := amount{Value: req.Amount.StringFixed(2), Currency: "RUB"}
	meta := map[string]string{"user_id": strconv.FormatInt(req.TGUserID, 10)}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	body := createRequest{
		Amount:       value,
		Confirmation: &confirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  req.Description,
		Metadata:     meta,
	}
	body.Receipt.Customer.Email = req.Email
	body.Receipt.Items = []receiptItem{{
		Description:    req.Description,
		Quantity:       "1.00",
		Amount:         value,
		VatCode:        1,
		PaymentMode:    "full_prepayment",
		PaymentSubject: "service",
	}}
	if req.PaymentMethodID != "" {
		body.PaymentMethodID = req.PaymentMethodID
	} else {
		body.PaymentMethodData = &paymentMethodData{Type: "bank_card"}
		body.SavePaymentMethod = req.SavePaymentMethod
	}

	var obj paymentObject
	if err := c.do(ctx, http.MethodPost, "/payments", body, true, &obj); err != nil {
		return domain.GatewayPayment{}, err
	}
	return obj.toDomain()
}

// GetPayment запрашивает актуальное состояние платежа.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (domain.GatewayPayment, error) {
	var obj paymentObject
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, false, &obj); err != nil {
		return domain.GatewayPayment{}, err
	}
	return obj.toDomain()
}

// CancelPayment отменяет платёж.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (domain.GatewayPayment, error) {
	var obj paymentObject
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/cancel", struct{}{}, true, &obj); err != nil {
		return domain.GatewayPayment{}, err
	}
	return obj.toDomain()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, idempotent bool, out any) error {
	resolved := *c.baseURL
	resolved.Path = strings.TrimSuffix(c.baseURL.Path, "/") + endpoint

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotent {
		req.Header.Set("Idempotence-Key", c.newKey())
	}

	op := operationName(endpoint)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("yookassa", op, resolved.Host, start, err)
		return fmt.Errorf("yookassa request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		err = apiErr
	}
	metrics.ObserveNetworkRequest("yookassa", op, resolved.Host, start, err)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func operationName(endpoint string) string {
	switch {
	case strings.HasSuffix(endpoint, "/cancel"):
		return "cancel_payment"
	case endpoint == "/payments":
		return "create_payment"
	default:
		return "get_payment"
	}
}
