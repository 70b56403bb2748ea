package keys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
)

const (
	// MinNameLength: минимальная длина названия ключа в символах.
	MinNameLength = 2
	// MinKeyLength: минимальная длина значения ключа.
	MinKeyLength = 20
	maskVisible  = 10
)

var (
	// ErrNameTooShort возвращается при слишком коротком названии.
	ErrNameTooShort = errors.New("название слишком короткое")
	// ErrKeyTooShort возвращается при слишком коротком ключе.
	ErrKeyTooShort = errors.New("ключ слишком короткий")
)

// KeyView: ключ пользователя в расшифрованном виде.
type KeyView struct {
	domain.APIKey
	Masked string
}

// Service управляет ключами WB пользователя.
type Service struct {
	users  domain.UserRepo
	keys   domain.APIKeyRepo
	box    domain.SecretBox
	shared []domain.Credential
	log    zerolog.Logger
}

// NewService создаёт сервис ключей. shared: общие ключи бота в порядке использования.
func NewService(users domain.UserRepo, keys domain.APIKeyRepo, box domain.SecretBox, shared []domain.Credential, logger zerolog.Logger) *Service {
	return &Service{users: users, keys: keys, box: box, shared: shared, log: logger}
}

// ValidateName проверяет название ключа.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return "", ErrNameTooShort
	}
	return name, nil
}

// ValidateKey проверяет значение ключа.
func ValidateKey(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) < MinKeyLength {
		return "", ErrKeyTooShort
	}
	return value, nil
}

// Mask скрывает середину ключа, оставляя по десять символов с краёв.
func Mask(value string) string {
	if len(value) <= 2*maskVisible {
		return value
	}
	return value[:maskVisible] + strings.Repeat("*", len(value)-2*maskVisible) + value[len(value)-maskVisible:]
}

// ParseDefaultKeys разбирает список общих ключей вида "название:токен,название:токен".
// Запись без названия получает имя по порядковому номеру.
func ParseDefaultKeys(raw string) []domain.Credential {
	var out []domain.Credential
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, token, ok := strings.Cut(part, ":")
		if !ok {
			name, token = "", part
		}
		name = strings.TrimSpace(name)
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("Системный ключ %d", len(out)+1)
		}
		out = append(out, domain.NewSharedCredential(name, token))
	}
	return out
}

// HasShared сообщает, настроены ли общие ключи.
func (s *Service) HasShared() bool {
	return len(s.shared) > 0
}

// Add сохраняет новый активный ключ.
func (s *Service) Add(ctx context.Context, tgUserID int64, name, value string) (domain.APIKey, error) {
	name, err := ValidateName(name)
	if err != nil {
		return domain.APIKey{}, err
	}
	value, err = ValidateKey(value)
	if err != nil {
		return domain.APIKey{}, err
	}
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("получение пользователя: %w", err)
	}
	enc, err := s.box.Encrypt(value)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("шифрование ключа: %w", err)
	}
	key, err := s.keys.AddAPIKey(ctx, user.ID, name, enc)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("сохранение ключа: %w", err)
	}
	key.Value = value
	s.log.Info().Int64("user_id", user.ID).Int64("key_id", key.ID).Msg("добавлен ключ WB")
	return key, nil
}

// List возвращает все ключи пользователя без расшифровки значений.
func (s *Service) List(ctx context.Context, tgUserID int64) ([]domain.APIKey, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	keys, err := s.keys.ListAPIKeys(ctx, user.ID, false)
	if err != nil {
		return nil, fmt.Errorf("получение ключей: %w", err)
	}
	for i := range keys {
		keys[i].Value = ""
	}
	return keys, nil
}

// View возвращает ключ с маскированным значением.
func (s *Service) View(ctx context.Context, tgUserID, keyID int64) (KeyView, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return KeyView{}, fmt.Errorf("получение пользователя: %w", err)
	}
	key, err := s.keys.GetAPIKey(ctx, user.ID, keyID)
	if err != nil {
		return KeyView{}, err
	}
	plain, err := s.box.Decrypt(key.Value)
	if err != nil {
		return KeyView{}, fmt.Errorf("расшифровка ключа: %w", err)
	}
	key.Value = ""
	return KeyView{APIKey: key, Masked: Mask(plain)}, nil
}

// Toggle переключает активность ключа и возвращает новое состояние.
func (s *Service) Toggle(ctx context.Context, tgUserID, keyID int64) (bool, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return false, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.keys.ToggleAPIKey(ctx, user.ID, keyID)
}

// Rename меняет название ключа.
func (s *Service) Rename(ctx context.Context, tgUserID, keyID int64, name string) (string, error) {
	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return "", fmt.Errorf("получение пользователя: %w", err)
	}
	if err := s.keys.RenameAPIKey(ctx, user.ID, keyID, name); err != nil {
		return "", err
	}
	return name, nil
}

// Replace заменяет значение ключа.
func (s *Service) Replace(ctx context.Context, tgUserID, keyID int64, value string) error {
	value, err := ValidateKey(value)
	if err != nil {
		return err
	}
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	enc, err := s.box.Encrypt(value)
	if err != nil {
		return fmt.Errorf("шифрование ключа: %w", err)
	}
	return s.keys.UpdateAPIKeyValue(ctx, user.ID, keyID, enc)
}

// Delete удаляет ключ.
func (s *Service) Delete(ctx context.Context, tgUserID, keyID int64) (domain.APIKey, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("получение пользователя: %w", err)
	}
	key, err := s.keys.GetAPIKey(ctx, user.ID, keyID)
	if err != nil {
		return domain.APIKey{}, err
	}
	if err := s.keys.DeleteAPIKey(ctx, user.ID, keyID); err != nil {
		return domain.APIKey{}, err
	}
	key.Value = ""
	return key, nil
}

// ActiveCredentials возвращает ключи для выгрузки: сначала активные ключи пользователя
// по порядку добавления, затем общие ключи, если пользователь их не отключил.
// Ключ, который не удалось расшифровать, пропускается.
func (s *Service) ActiveCredentials(ctx context.Context, tgUserID int64) ([]domain.Credential, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	keys, err := s.keys.ListAPIKeys(ctx, user.ID, true)
	if err != nil {
		return nil, fmt.Errorf("получение ключей: %w", err)
	}
	creds := make([]domain.Credential, 0, len(keys)+len(s.shared))
	for _, k := range keys {
		plain, err := s.box.Decrypt(k.Value)
		if err != nil || plain == "" {
			s.log.Warn().Err(err).Int64("key_id", k.ID).Msg("ключ пропущен: не удалось расшифровать")
			continue
		}
		creds = append(creds, domain.NewUserCredential(k.ID, k.Name, plain))
	}
	if user.UseDefaultKeys {
		creds = append(creds, s.shared...)
	}
	return creds, nil
}

// HasAnyCredential сообщает, есть ли у пользователя хотя бы один ключ для выгрузки.
func (s *Service) HasAnyCredential(ctx context.Context, tgUserID int64) (bool, error) {
	creds, err := s.ActiveCredentials(ctx, tgUserID)
	if err != nil {
		return false, err
	}
	return len(creds) > 0, nil
}
