package account

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/commission"
)

// MaxSpreadsheetSize ограничивает размер загружаемого справочника.
const MaxSpreadsheetSize = 20 << 20

var (
	// ErrInvalidThreshold: порог не является целым числом от 0 до 100.
	ErrInvalidThreshold = errors.New("порог должен быть целым числом от 0 до 100")
	// ErrUnsupportedFile: файл не похож на Excel.
	ErrUnsupportedFile = errors.New("поддерживаются только файлы .xlsx и .xls")
	// ErrFileTooLarge: файл больше допустимого размера.
	ErrFileTooLarge = errors.New("файл слишком большой")
	// ErrNoSpreadsheet: справочник не загружен.
	ErrNoSpreadsheet = errors.New("excel файл не загружен")
	// ErrInvalidEmail: адрес почты некорректен.
	ErrInvalidEmail = errors.New("некорректный email")
)

// SpreadsheetInfo описывает загруженный справочник.
type SpreadsheetInfo struct {
	Name   string
	Path   string
	SizeKB float64
	Exists bool
}

// Service управляет настройками пользователя.
type Service struct {
	users    domain.UserRepo
	metrics  domain.BusinessMetricRepo
	indexes  *commission.IndexCache
	filesDir string
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис настроек.
func NewService(users domain.UserRepo, metrics domain.BusinessMetricRepo, indexes *commission.IndexCache, filesDir string, logger zerolog.Logger) *Service {
	return &Service{users: users, metrics: metrics, indexes: indexes, filesDir: filesDir, log: logger, now: time.Now}
}

// Register создаёт пользователя при первом обращении.
func (s *Service) Register(ctx context.Context, tgUserID int64, username string) (domain.User, error) {
	user, created, err := s.users.UpsertByTGID(ctx, tgUserID, username)
	if err != nil {
		return domain.User{}, fmt.Errorf("регистрация пользователя: %w", err)
	}
	if created {
		s.record(ctx, domain.BusinessMetricEventUserRegistered, user.ID, map[string]any{"tg_user_id": tgUserID})
	}
	return user, nil
}

// User возвращает пользователя.
func (s *Service) User(ctx context.Context, tgUserID int64) (domain.User, error) {
	return s.users.GetByTGID(ctx, tgUserID)
}

// Threshold возвращает порог реальной скидки.
func (s *Service) Threshold(ctx context.Context, tgUserID int64) (int, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return 0, fmt.Errorf("получение пользователя: %w", err)
	}
	return user.Threshold(), nil
}

// ParseThreshold разбирает ввод пользователя.
func ParseThreshold(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 || v > 100 {
		return 0, ErrInvalidThreshold
	}
	return v, nil
}

// SetThreshold сохраняет новый порог.
func (s *Service) SetThreshold(ctx context.Context, tgUserID int64, raw string) (int, error) {
	v, err := ParseThreshold(raw)
	if err != nil {
		return 0, err
	}
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return 0, fmt.Errorf("получение пользователя: %w", err)
	}
	if err := s.users.SetDiscountThreshold(ctx, user.ID, v); err != nil {
		return 0, fmt.Errorf("сохранение порога: %w", err)
	}
	return v, nil
}

// ToggleDefaultKeys переключает использование общих ключей.
func (s *Service) ToggleDefaultKeys(ctx context.Context, tgUserID int64) (bool, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return false, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.users.ToggleDefaultKeys(ctx, user.ID)
}

// SetEmail сохраняет адрес для чеков.
func (s *Service) SetEmail(ctx context.Context, tgUserID int64, email string) (string, error) {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") || !strings.Contains(email[at:], ".") {
		return "", ErrInvalidEmail
	}
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return "", fmt.Errorf("получение пользователя: %w", err)
	}
	if err := s.users.SetEmail(ctx, user.ID, email); err != nil {
		return "", fmt.Errorf("сохранение email: %w", err)
	}
	return email, nil
}

// IsSpreadsheetName проверяет расширение файла. Старый формат .xls не читается, его нужно пересохранить в .xlsx.
func IsSpreadsheetName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".xlsx")
}

// SaveSpreadsheet проверяет и сохраняет справочник пользователя.
// Нечитаемый файл не сохраняется и возвращает *domain.MalformedSpreadsheetError.
func (s *Service) SaveSpreadsheet(ctx context.Context, tgUserID int64, fileName string, r io.Reader) (commission.Stats, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if !IsSpreadsheetName(fileName) {
		return commission.Stats{}, ErrUnsupportedFile
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxSpreadsheetSize+1))
	if err != nil {
		return commission.Stats{}, fmt.Errorf("чтение файла: %w", err)
	}
	if len(data) > MaxSpreadsheetSize {
		return commission.Stats{}, ErrFileTooLarge
	}
	idx, err := commission.Load(bytes.NewReader(data))
	if err != nil {
		return commission.Stats{}, err
	}

	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return commission.Stats{}, fmt.Errorf("получение пользователя: %w", err)
	}
	if err := os.MkdirAll(s.filesDir, 0o755); err != nil {
		return commission.Stats{}, fmt.Errorf("создание каталога: %w", err)
	}
	path := filepath.Join(s.filesDir, fmt.Sprintf("%d_%s", tgUserID, fileName))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return commission.Stats{}, fmt.Errorf("запись файла: %w", err)
	}
	if user.ExcelFilePath != "" && user.ExcelFilePath != path {
		if err := os.Remove(user.ExcelFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", user.ExcelFilePath).Msg("не удалось удалить старый файл")
		}
		s.indexes.Invalidate(user.ExcelFilePath)
	}
	if err := s.users.SetExcelFile(ctx, user.ID, path, fileName); err != nil {
		return commission.Stats{}, fmt.Errorf("сохранение файла: %w", err)
	}
	s.indexes.Invalidate(path)

	stats := idx.Stats()
	s.log.Info().Int64("user_id", user.ID).Str("file", fileName).Int("subjects", stats.Subjects).Msg("загружен справочник")
	s.record(ctx, domain.BusinessMetricEventSpreadsheetUploaded, user.ID, map[string]any{
		"file":       fileName,
		"subjects":   stats.Subjects,
		"categories": stats.Categories,
	})
	return stats, nil
}

// Spreadsheet возвращает сведения о загруженном справочнике.
func (s *Service) Spreadsheet(ctx context.Context, tgUserID int64) (SpreadsheetInfo, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return SpreadsheetInfo{}, fmt.Errorf("получение пользователя: %w", err)
	}
	if !user.HasSpreadsheet() {
		return SpreadsheetInfo{}, ErrNoSpreadsheet
	}
	info := SpreadsheetInfo{Name: user.ExcelFileName, Path: user.ExcelFilePath}
	st, err := os.Stat(user.ExcelFilePath)
	if err == nil {
		info.Exists = true
		info.SizeKB = float64(st.Size()) / 1024
	}
	return info, nil
}

// DeleteSpreadsheet удаляет файл, запись о нём и кэш справочника.
func (s *Service) DeleteSpreadsheet(ctx context.Context, tgUserID int64) (string, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return "", fmt.Errorf("получение пользователя: %w", err)
	}
	if !user.HasSpreadsheet() {
		return "", ErrNoSpreadsheet
	}
	if err := os.Remove(user.ExcelFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("удаление файла: %w", err)
	}
	if err := s.users.ClearExcelFile(ctx, user.ID); err != nil {
		return "", fmt.Errorf("удаление записи о файле: %w", err)
	}
	s.indexes.Invalidate(user.ExcelFilePath)
	return user.ExcelFileName, nil
}

// Lookup возвращает справочник пользователя или nil, если его нет или он не читается.
func (s *Service) Lookup(user domain.User) domain.CommissionLookup {
	if !user.HasSpreadsheet() {
		return nil
	}
	if _, err := os.Stat(user.ExcelFilePath); err != nil {
		return nil
	}
	idx, err := s.indexes.Get(user.ExcelFilePath)
	if err != nil {
		s.log.Error().Err(err).Str("path", user.ExcelFilePath).Msg("ошибка загрузки справочника")
		return nil
	}
	stats := idx.Stats()
	s.log.Debug().Int("subjects", stats.Subjects).Int("categories", stats.Categories).Msg("справочник загружен")
	return idx
}

func (s *Service) record(ctx context.Context, event string, userID int64, meta map[string]any) {
	if s.metrics == nil {
		return
	}
	uid := userID
	if err := s.metrics.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      event,
		UserID:     &uid,
		Metadata:   meta,
		OccurredAt: s.now(),
	}); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("не удалось сохранить бизнес-метрику")
	}
}
