package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

const subscriptionColumns = `s.id, s.user_id, s.plan_id, s.start_date, s.end_date, s.status, COALESCE(s.payment_id,''), s.auto_renew, s.created_at`

func scanSubscription(row pgx.Row, extra ...any) (domain.Subscription, error) {
	var s domain.Subscription
	dest := []any{&s.ID, &s.UserID, &s.PlanID, &s.StartDate, &s.EndDate, &s.Status, &s.PaymentID, &s.AutoRenew, &s.CreatedAt}
	dest = append(dest, extra...)
	err := row.Scan(dest...)
	return s, err
}

// GetActiveSubscription возвращает подписку с самой поздней датой окончания.
func (p *Postgres) GetActiveSubscription(ctx context.Context, userID int64, now time.Time) (domain.Subscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	sub, err := scanSubscription(p.pool.QueryRow(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions s
WHERE s.user_id=$1 AND s.status='active' AND s.end_date > $2
ORDER BY s.end_date DESC
LIMIT 1
`, userID, now))
	metrics.ObserveNetworkRequest("postgres", "subscriptions_get_active", "subscriptions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return sub, err
}

// ListExpiringSubscriptions возвращает последние подписки пользователей, истекающие в окне within.
func (p *Postgres) ListExpiringSubscriptions(ctx context.Context, now time.Time, within time.Duration) ([]domain.ExpiringSubscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+subscriptionColumns+`, u.tg_user_id, COALESCE(u.email,'')
FROM subscriptions s
JOIN users u ON u.id = s.user_id
WHERE s.status='active' AND s.auto_renew AND s.end_date > $1 AND s.end_date <= $2
  AND NOT EXISTS (
    SELECT 1 FROM subscriptions n
    WHERE n.user_id = s.user_id AND n.status='active' AND n.end_date > s.end_date
  )
ORDER BY s.end_date
`, now, now.Add(within))
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_expiring", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExpiringSubscription
	for rows.Next() {
		var item domain.ExpiringSubscription
		sub, err := scanSubscription(rows, &item.TGUserID, &item.Email)
		if err != nil {
			return nil, err
		}
		item.Subscription = sub
		out = append(out, item)
	}
	return out, rows.Err()
}

// ActivateSubscription создаёт подписку по оплаченному платежу. Если у пользователя есть
// действующая подписка, новая начинается с её окончания. Повторный вызов для того же
// платежа возвращает уже созданную подписку.
func (p *Postgres) ActivateSubscription(ctx context.Context, paymentID string, now time.Time) (domain.Subscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID int64
	var planID string
	start = time.Now()
	err = tx.QueryRow(ctx, `SELECT user_id, plan_id FROM payments WHERE payment_id=$1 FOR UPDATE`, paymentID).Scan(&userID, &planID)
	metrics.ObserveNetworkRequest("postgres", "payments_lock", "payments", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Subscription{}, err
	}

	start = time.Now()
	existing, err := scanSubscription(tx.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.payment_id=$1`, paymentID))
	metrics.ObserveNetworkRequest("postgres", "subscriptions_get_by_payment", "subscriptions", start, err)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, err
	}

	plan, ok := domain.PlanByID(planID)
	if !ok {
		return domain.Subscription{}, fmt.Errorf("неизвестный тариф %q", planID)
	}

	begin := now
	var activeEnd sql.NullTime
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT max(end_date) FROM subscriptions WHERE user_id=$1 AND status='active' AND end_date > $2
`, userID, now).Scan(&activeEnd)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_active_end", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, err
	}
	if activeEnd.Valid && activeEnd.Time.After(begin) {
		begin = activeEnd.Time
	}
	end := begin.Add(time.Duration(plan.Days) * 24 * time.Hour)

	start = time.Now()
	sub, err := scanSubscription(tx.QueryRow(ctx, `
INSERT INTO subscriptions AS s (user_id, plan_id, start_date, end_date, status, payment_id, auto_renew)
VALUES ($1, $2, $3, $4, 'active', $5, TRUE)
RETURNING `+subscriptionColumns, userID, plan.ID, begin, end, paymentID))
	metrics.ObserveNetworkRequest("postgres", "subscriptions_insert", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

const paymentColumns = `id, user_id, payment_id, plan_id, amount::text, COALESCE(description,''), status, paid, COALESCE(confirmation_url,''), auto_renewal, test, created_at, updated_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		pay    domain.Payment
		amount string
	)
	if err := row.Scan(&pay.ID, &pay.UserID, &pay.PaymentID, &pay.PlanID, &amount, &pay.Description, &pay.Status, &pay.Paid, &pay.ConfirmationURL, &pay.AutoRenewal, &pay.Test, &pay.CreatedAt, &pay.UpdatedAt); err != nil {
		return domain.Payment{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("сумма платежа %q: %w", amount, err)
	}
	pay.Amount = value
	return pay, nil
}

// CreatePayment сохраняет созданный в платёжной системе платёж.
func (p *Postgres) CreatePayment(ctx context.Context, rec domain.CreatePaymentRecord) (domain.Payment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	pay, err := scanPayment(p.pool.QueryRow(ctx, `
INSERT INTO payments (user_id, payment_id, plan_id, amount, description, status, confirmation_url, auto_renewal, test)
VALUES ($1, $2, $3, $4::numeric, NULLIF($5,''), $6, NULLIF($7,''), $8, $9)
RETURNING `+paymentColumns,
		rec.UserID, rec.PaymentID, rec.PlanID, rec.Amount.StringFixed(2), rec.Description, rec.Status, rec.ConfirmationURL, rec.AutoRenewal, rec.Test))
	metrics.ObserveNetworkRequest("postgres", "payments_insert", "payments", start, err)
	return pay, err
}

// GetPayment возвращает платёж по идентификатору платёжной системы.
func (p *Postgres) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	pay, err := scanPayment(p.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id=$1`, paymentID))
	metrics.ObserveNetworkRequest("postgres", "payments_get", "payments", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return pay, err
}

// UpdatePaymentStatus обновляет статус платежа.
func (p *Postgres) UpdatePaymentStatus(ctx context.Context, paymentID, status string, paid bool) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE payments SET status=$2, paid=$3, updated_at=now() WHERE payment_id=$1`, paymentID, status, paid)
	metrics.ObserveNetworkRequest("postgres", "payments_update_status", "payments", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// HasRecentAutoRenewalPayment сообщает, создавался ли автоплатёж начиная с since.
func (p *Postgres) HasRecentAutoRenewalPayment(ctx context.Context, userID int64, since time.Time) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM payments WHERE user_id=$1 AND auto_renewal AND created_at >= $2)
`, userID, since).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "payments_recent_auto_renewal", "payments", start, err)
	return exists, err
}

// SavePaymentMethod сохраняет карту или обновляет её реквизиты.
func (p *Postgres) SavePaymentMethod(ctx context.Context, m domain.PaymentMethod) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO payment_methods (user_id, payment_method_id, type, title, card_first6, card_last4, card_type, expiry_month, expiry_year, is_active)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), TRUE)
ON CONFLICT (payment_method_id) DO UPDATE SET
  user_id = EXCLUDED.user_id,
  title = EXCLUDED.title,
  card_first6 = EXCLUDED.card_first6,
  card_last4 = EXCLUDED.card_last4,
  card_type = EXCLUDED.card_type,
  expiry_month = EXCLUDED.expiry_month,
  expiry_year = EXCLUDED.expiry_year,
  is_active = TRUE
`, m.UserID, m.PaymentMethodID, m.Type, m.Title, m.CardFirst6, m.CardLast4, m.CardType, m.ExpiryMonth, m.ExpiryYear)
	metrics.ObserveNetworkRequest("postgres", "payment_methods_upsert", "payment_methods", start, err)
	return err
}

// ListPaymentMethods возвращает активные карты пользователя, последние сохранённые первыми.
func (p *Postgres) ListPaymentMethods(ctx context.Context, userID int64) ([]domain.PaymentMethod, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, payment_method_id, type, COALESCE(title,''), COALESCE(card_first6,''), COALESCE(card_last4,''),
       COALESCE(card_type,''), COALESCE(expiry_month,''), COALESCE(expiry_year,''), is_active, created_at
FROM payment_methods
WHERE user_id=$1 AND is_active
ORDER BY created_at DESC, id DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "payment_methods_list", "payment_methods", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.UserID, &m.PaymentMethodID, &m.Type, &m.Title, &m.CardFirst6, &m.CardLast4, &m.CardType, &m.ExpiryMonth, &m.ExpiryYear, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
