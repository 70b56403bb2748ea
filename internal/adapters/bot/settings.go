package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
	"wb-products-bot/internal/usecase/account"
)

func (h *Handler) handleSettings(ctx context.Context, chatID, tgUserID int64) {
	h.reply(chatID, textSettings, h.settingsMarkup(ctx, tgUserID))
}

func (h *Handler) settingsMarkup(ctx context.Context, tgUserID int64) tgbotapi.InlineKeyboardMarkup {
	useDefault := true
	if user, err := h.accounts.User(ctx, tgUserID); err == nil {
		useDefault = user.UseDefaultKeys
	}
	return SettingsKeyboard(h.keys.HasShared(), useDefault)
}

func (h *Handler) toggleDefaultKeys(ctx context.Context, chatID int64, messageID int, tgUserID int64) callbackAnswer {
	enabled, err := h.accounts.ToggleDefaultKeys(ctx, tgUserID)
	if err != nil {
		h.fail(chatID, err, "не удалось переключить системные ключи")
		return callbackAnswer{}
	}
	markup := SettingsKeyboard(h.keys.HasShared(), enabled)
	h.edit(chatID, messageID, defaultKeysText(enabled), &markup, "")
	return callbackAnswer{text: "Системные ключи " + defaultKeysStatus(enabled)}
}

func (h *Handler) startThreshold(ctx context.Context, chatID, tgUserID int64) {
	current, err := h.accounts.Threshold(ctx, tgUserID)
	if err != nil {
		h.fail(chatID, err, "не удалось получить порог")
		return
	}
	h.setPending(tgUserID, pendingInput{state: inputThreshold})
	h.reply(chatID, thresholdPromptText(current), CancelKeyboard())
}

func (h *Handler) inputThreshold(ctx context.Context, chatID, tgUserID int64, text string) {
	v, err := h.accounts.SetThreshold(ctx, tgUserID, text)
	if errors.Is(err, account.ErrInvalidThreshold) {
		h.reply(chatID, textThresholdInvalid, nil)
		return
	}
	h.clearPending(tgUserID)
	if err != nil {
		h.fail(chatID, err, "не удалось сохранить порог")
		return
	}
	h.reply(chatID, thresholdSavedText(v), h.mainMenu(ctx, tgUserID))
}

func (h *Handler) inputEmail(ctx context.Context, chatID, tgUserID int64, text string) {
	email, err := h.accounts.SetEmail(ctx, tgUserID, text)
	if errors.Is(err, account.ErrInvalidEmail) {
		h.reply(chatID, textEmailInvalid, nil)
		return
	}
	h.clearPending(tgUserID)
	if err != nil {
		h.fail(chatID, err, "не удалось сохранить email")
		return
	}
	h.reply(chatID, "✅ Email для чеков сохранён: "+email, h.mainMenu(ctx, tgUserID))
}

func (h *Handler) showSpreadsheet(ctx context.Context, chatID, tgUserID int64) {
	info, err := h.accounts.Spreadsheet(ctx, tgUserID)
	switch {
	case errors.Is(err, account.ErrNoSpreadsheet):
		h.reply(chatID, textExcelMissing, nil)
	case err != nil:
		h.fail(chatID, err, "не удалось получить сведения о файле")
	case !info.Exists:
		h.reply(chatID, textExcelGone, nil)
	default:
		h.reply(chatID, excelInfoText(info.Name, info.SizeKB), nil)
	}
}

func (h *Handler) deleteSpreadsheet(ctx context.Context, chatID, tgUserID int64) {
	name, err := h.accounts.DeleteSpreadsheet(ctx, tgUserID)
	switch {
	case errors.Is(err, account.ErrNoSpreadsheet):
		h.reply(chatID, textExcelNotFound, nil)
	case err != nil:
		h.fail(chatID, err, "не удалось удалить файл")
	default:
		h.reply(chatID, fmt.Sprintf("🗑️ Excel файл '%s' удален", name), h.mainMenu(ctx, tgUserID))
	}
}

// handleDocument принимает справочник комиссий, если бот его ждёт.
func (h *Handler) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID, tgUserID := msg.Chat.ID, msg.From.ID
	if p, ok := h.pendingFor(tgUserID); !ok || p.state != inputSpreadsheet {
		h.reply(chatID, textDocumentHint, nil)
		return
	}
	doc := msg.Document
	h.log.Info().Int64("user", tgUserID).Str("file", doc.FileName).Int("size", doc.FileSize).Msg("получен файл")
	if !account.IsSpreadsheetName(doc.FileName) {
		h.reply(chatID, textExcelWrongType, nil)
		return
	}
	if doc.FileSize > account.MaxSpreadsheetSize {
		h.reply(chatID, textExcelTooLarge, nil)
		return
	}

	body, err := h.download(ctx, doc.FileID)
	if err != nil {
		h.clearPending(tgUserID)
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось скачать файл")
		h.reply(chatID, "❌ Ошибка при загрузке файла: "+err.Error(), h.mainMenu(ctx, tgUserID))
		return
	}
	defer body.Close()

	stats, err := h.accounts.SaveSpreadsheet(ctx, tgUserID, doc.FileName, body)
	var malformed *domain.MalformedSpreadsheetError
	switch {
	case errors.As(err, &malformed):
		h.reply(chatID, malformedExcelText(malformed), nil)
	case errors.Is(err, account.ErrUnsupportedFile):
		h.reply(chatID, textExcelWrongType, nil)
	case errors.Is(err, account.ErrFileTooLarge):
		h.reply(chatID, textExcelTooLarge, nil)
	case err != nil:
		h.clearPending(tgUserID)
		h.fail(chatID, err, "не удалось сохранить файл")
	default:
		h.clearPending(tgUserID)
		h.reply(chatID, excelSavedText(doc.FileName, stats.Subjects, stats.Categories), h.mainMenu(ctx, tgUserID))
	}
}

func (h *Handler) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	link, err := h.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("получение ссылки на файл: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := h.files.Do(req)
	if err == nil && resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err = fmt.Errorf("telegram вернул статус %d", resp.StatusCode)
	}
	metrics.ObserveNetworkRequest("telegram_bot", "download_file", req.URL.Host, start, err)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
