package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/keys"
)

func (h *Handler) showKeys(ctx context.Context, chatID int64, messageID int, tgUserID int64, afterDelete bool) {
	list, err := h.keys.List(ctx, tgUserID)
	if err != nil {
		h.fail(chatID, err, "не удалось получить ключи")
		return
	}
	if len(list) == 0 {
		text := keysListText(0)
		if afterDelete {
			text = "📋 У вас больше нет сохраненных API ключей\n\nДобавьте новый ключ, чтобы продолжить работу."
		}
		markup := KeysMenuKeyboard()
		h.edit(chatID, messageID, text, &markup, "")
		return
	}
	markup := KeyListKeyboard(list)
	h.edit(chatID, messageID, keysListText(len(list)), &markup, "")
}

func (h *Handler) viewKey(ctx context.Context, chatID int64, messageID int, tgUserID, keyID int64) callbackAnswer {
	view, err := h.keys.View(ctx, tgUserID, keyID)
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return callbackAnswer{text: textKeyNotFound, alert: true}
	}
	if err != nil {
		h.fail(chatID, err, "не удалось получить ключ")
		return callbackAnswer{}
	}
	markup := KeyActionsKeyboard(view.ID, view.Active)
	h.edit(chatID, messageID, keyViewText(view), &markup, tgbotapi.ModeHTML)
	return callbackAnswer{}
}

func (h *Handler) toggleKey(ctx context.Context, chatID int64, messageID int, tgUserID, keyID int64) callbackAnswer {
	active, err := h.keys.Toggle(ctx, tgUserID, keyID)
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return callbackAnswer{text: textKeyNotFound, alert: true}
	}
	if err != nil {
		h.fail(chatID, err, "не удалось переключить ключ")
		return callbackAnswer{}
	}
	h.viewKey(ctx, chatID, messageID, tgUserID, keyID)
	if active {
		return callbackAnswer{text: "✅ Ключ включен"}
	}
	return callbackAnswer{text: "✅ Ключ выключен"}
}

func (h *Handler) confirmDeleteKey(ctx context.Context, chatID int64, messageID int, tgUserID, keyID int64) callbackAnswer {
	view, err := h.keys.View(ctx, tgUserID, keyID)
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return callbackAnswer{text: textKeyNotFound, alert: true}
	}
	if err != nil {
		h.fail(chatID, err, "не удалось получить ключ")
		return callbackAnswer{}
	}
	markup := ConfirmDeleteKeyboard(keyID)
	h.edit(chatID, messageID, confirmDeleteText(view.Name), &markup, "")
	return callbackAnswer{}
}

func (h *Handler) deleteKey(ctx context.Context, chatID int64, messageID int, tgUserID, keyID int64) callbackAnswer {
	key, err := h.keys.Delete(ctx, tgUserID, keyID)
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return callbackAnswer{text: textKeyNotFound, alert: true}
	}
	if err != nil {
		h.fail(chatID, err, "не удалось удалить ключ")
		return callbackAnswer{}
	}
	h.log.Info().Int64("user", tgUserID).Int64("key_id", keyID).Msg("ключ удалён")
	h.showKeys(ctx, chatID, messageID, tgUserID, true)
	return callbackAnswer{text: fmt.Sprintf("✅ Ключ '%s' удален", key.Name)}
}

func (h *Handler) startKeyEdit(ctx context.Context, chatID, tgUserID, keyID int64, state inputState) callbackAnswer {
	view, err := h.keys.View(ctx, tgUserID, keyID)
	if errors.Is(err, domain.ErrAPIKeyNotFound) {
		return callbackAnswer{text: textKeyNotFound, alert: true}
	}
	if err != nil {
		h.fail(chatID, err, "не удалось получить ключ")
		return callbackAnswer{}
	}
	h.setPending(tgUserID, pendingInput{state: state, keyID: keyID, name: view.Name})
	text := renameKeyText(view.Name)
	if state == inputReplaceKey {
		text = replaceKeyText(view.Name)
	}
	h.reply(chatID, text, CancelKeyboard())
	return callbackAnswer{}
}

func (h *Handler) inputKeyName(chatID, tgUserID int64, text string) {
	name, err := keys.ValidateName(text)
	if err != nil {
		h.reply(chatID, textNameTooShort, nil)
		return
	}
	h.setPending(tgUserID, pendingInput{state: inputKeyValue, name: name})
	h.reply(chatID, addKeyValueText(name), CancelKeyboard())
}

func (h *Handler) inputKeyValue(ctx context.Context, chatID, tgUserID int64, p pendingInput, text string) {
	key, err := h.keys.Add(ctx, tgUserID, p.name, text)
	switch {
	case errors.Is(err, keys.ErrKeyTooShort):
		h.reply(chatID, textKeyTooShort, nil)
		return
	case errors.Is(err, keys.ErrNameTooShort):
		h.setPending(tgUserID, pendingInput{state: inputKeyName})
		h.reply(chatID, textNameTooShort, nil)
		return
	case err != nil:
		h.clearPending(tgUserID)
		h.fail(chatID, err, "не удалось сохранить ключ")
		return
	}
	h.clearPending(tgUserID)
	h.reply(chatID, keyAddedText(key.Name), MainMenu(true, h.subs != nil))
}

func (h *Handler) inputRename(ctx context.Context, chatID, tgUserID int64, p pendingInput, text string) {
	name, err := h.keys.Rename(ctx, tgUserID, p.keyID, text)
	switch {
	case errors.Is(err, keys.ErrNameTooShort):
		h.reply(chatID, textNameTooShort, nil)
		return
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		h.clearPending(tgUserID)
		h.reply(chatID, textKeyNotFound, h.mainMenu(ctx, tgUserID))
		return
	case err != nil:
		h.clearPending(tgUserID)
		h.fail(chatID, err, "не удалось переименовать ключ")
		return
	}
	h.clearPending(tgUserID)
	h.reply(chatID, fmt.Sprintf("✅ Название ключа обновлено на '%s'", name), h.mainMenu(ctx, tgUserID))
}

func (h *Handler) inputReplace(ctx context.Context, chatID, tgUserID int64, p pendingInput, text string) {
	err := h.keys.Replace(ctx, tgUserID, p.keyID, text)
	switch {
	case errors.Is(err, keys.ErrKeyTooShort):
		h.reply(chatID, textKeyTooShort, nil)
		return
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		h.clearPending(tgUserID)
		h.reply(chatID, textKeyNotFound, h.mainMenu(ctx, tgUserID))
		return
	case err != nil:
		h.clearPending(tgUserID)
		h.fail(chatID, err, "не удалось обновить ключ")
		return
	}
	h.clearPending(tgUserID)
	h.reply(chatID, "✅ Значение API ключа обновлено", h.mainMenu(ctx, tgUserID))
}
