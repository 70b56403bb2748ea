package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.APIKeyRepo         = (*Postgres)(nil)
	_ domain.SubscriptionRepo   = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var userID sql.NullInt64
	if metric.UserID != nil {
		userID = sql.NullInt64{Int64: *metric.UserID, Valid: true}
	}

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4)
`, metric.Event, userID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

const userColumns = `id, tg_user_id, username, email, excel_file_path, excel_file_name, discount_threshold, use_default_keys, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (domain.User, error) {
	var (
		user      domain.User
		username  sql.NullString
		email     sql.NullString
		excelPath sql.NullString
		excelName sql.NullString
	)
	dest := []any{&user.ID, &user.TGUserID, &username, &email, &excelPath, &excelName, &user.DiscountThreshold, &user.UseDefaultKeys, &user.CreatedAt, &user.UpdatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.User{}, err
	}
	user.Username = username.String
	user.Email = email.String
	user.ExcelFilePath = excelPath.String
	user.ExcelFileName = excelName.String
	return user, nil
}

// UpsertByTGID создаёт пользователя или обновляет username. Второй результат сообщает о создании.
func (p *Postgres) UpsertByTGID(ctx context.Context, tgUserID int64, username string) (domain.User, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var created bool
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, username, discount_threshold)
VALUES ($1, NULLIF($2,''), $3)
ON CONFLICT (tg_user_id) DO UPDATE SET username = COALESCE(EXCLUDED.username, users.username), updated_at = now()
RETURNING `+userColumns+`, (xmax = 0) AS inserted
`, tgUserID, strings.TrimSpace(username), domain.DefaultDiscountThreshold)
	user, err := scanUser(row, &created)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	return user, created, nil
}

// GetByTGID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTGID(ctx context.Context, tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tg_user_id=$1`, tgUserID))
	metrics.ObserveNetworkRequest("postgres", "users_get_by_tgid", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

// GetUserByID возвращает пользователя по внутреннему ID.
func (p *Postgres) GetUserByID(ctx context.Context, userID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	metrics.ObserveNetworkRequest("postgres", "users_get_by_id", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

func (p *Postgres) execUser(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "users", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetDiscountThreshold сохраняет порог реальной скидки.
func (p *Postgres) SetDiscountThreshold(ctx context.Context, userID int64, threshold int) error {
	return p.execUser(ctx, "users_set_threshold", `UPDATE users SET discount_threshold=$2, updated_at=now() WHERE id=$1`, userID, threshold)
}

// ToggleDefaultKeys переключает использование системных ключей и возвращает новое значение.
func (p *Postgres) ToggleDefaultKeys(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var enabled bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE users SET use_default_keys = NOT use_default_keys, updated_at=now()
WHERE id=$1
RETURNING use_default_keys
`, userID).Scan(&enabled)
	metrics.ObserveNetworkRequest("postgres", "users_toggle_default_keys", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrUserNotFound
	}
	return enabled, err
}

// SetExcelFile сохраняет путь и имя загруженного справочника.
func (p *Postgres) SetExcelFile(ctx context.Context, userID int64, path, name string) error {
	return p.execUser(ctx, "users_set_excel", `UPDATE users SET excel_file_path=$2, excel_file_name=$3, updated_at=now() WHERE id=$1`, userID, path, name)
}

// ClearExcelFile удаляет сведения о справочнике.
func (p *Postgres) ClearExcelFile(ctx context.Context, userID int64) error {
	return p.execUser(ctx, "users_clear_excel", `UPDATE users SET excel_file_path=NULL, excel_file_name=NULL, updated_at=now() WHERE id=$1`, userID)
}

// SetEmail сохраняет адрес для чеков.
func (p *Postgres) SetEmail(ctx context.Context, userID int64, email string) error {
	return p.execUser(ctx, "users_set_email", `UPDATE users SET email=NULLIF($2,''), updated_at=now() WHERE id=$1`, userID, email)
}

const apiKeyColumns = `id, user_id, name, api_key, is_active, created_at`

func scanAPIKey(row pgx.Row) (domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.Value, &k.Active, &k.CreatedAt)
	return k, err
}

// AddAPIKey сохраняет новый ключ. Новый ключ сразу активен.
func (p *Postgres) AddAPIKey(ctx context.Context, userID int64, name, encrypted string) (domain.APIKey, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	key, err := scanAPIKey(p.pool.QueryRow(ctx, `
INSERT INTO api_keys (user_id, name, api_key, is_active)
VALUES ($1, $2, $3, TRUE)
RETURNING `+apiKeyColumns, userID, name, encrypted))
	metrics.ObserveNetworkRequest("postgres", "api_keys_insert", "api_keys", start, err)
	return key, err
}

// ListAPIKeys возвращает ключи пользователя в порядке добавления.
func (p *Postgres) ListAPIKeys(ctx context.Context, userID int64, onlyActive bool) ([]domain.APIKey, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+apiKeyColumns+` FROM api_keys
WHERE user_id=$1 AND (NOT $2 OR is_active)
ORDER BY id
`, userID, onlyActive)
	metrics.ObserveNetworkRequest("postgres", "api_keys_list", "api_keys", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetAPIKey возвращает ключ, если он принадлежит пользователю.
func (p *Postgres) GetAPIKey(ctx context.Context, userID, keyID int64) (domain.APIKey, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	key, err := scanAPIKey(p.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id=$1 AND user_id=$2`, keyID, userID))
	metrics.ObserveNetworkRequest("postgres", "api_keys_get", "api_keys", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.APIKey{}, domain.ErrAPIKeyNotFound
	}
	return key, err
}

// ToggleAPIKey переключает активность ключа и возвращает новое значение.
func (p *Postgres) ToggleAPIKey(ctx context.Context, userID, keyID int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var active bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE api_keys SET is_active = NOT is_active
WHERE id=$1 AND user_id=$2
RETURNING is_active
`, keyID, userID).Scan(&active)
	metrics.ObserveNetworkRequest("postgres", "api_keys_toggle", "api_keys", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrAPIKeyNotFound
	}
	return active, err
}

func (p *Postgres) execAPIKey(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "api_keys", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// RenameAPIKey меняет название ключа.
func (p *Postgres) RenameAPIKey(ctx context.Context, userID, keyID int64, name string) error {
	return p.execAPIKey(ctx, "api_keys_rename", `UPDATE api_keys SET name=$3 WHERE id=$1 AND user_id=$2`, keyID, userID, name)
}

// UpdateAPIKeyValue заменяет значение ключа.
func (p *Postgres) UpdateAPIKeyValue(ctx context.Context, userID, keyID int64, encrypted string) error {
	return p.execAPIKey(ctx, "api_keys_update_value", `UPDATE api_keys SET api_key=$3 WHERE id=$1 AND user_id=$2`, keyID, userID, encrypted)
}

// DeleteAPIKey удаляет ключ.
func (p *Postgres) DeleteAPIKey(ctx context.Context, userID, keyID int64) error {
	return p.execAPIKey(ctx, "api_keys_delete", `DELETE FROM api_keys WHERE id=$1 AND user_id=$2`, keyID, userID)
}
