package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/pager"
)

// Тексты кнопок главного меню.
const (
	ButtonProducts     = "📦 Список товаров"
	ButtonSettings     = "⚙️ Настройки"
	ButtonSubscription = "💳 Подписка"
	ButtonCancel       = "❌ Отмена"
)

// Callback-данные inline-кнопок.
const (
	cbManageKeys        = "manage_api_keys"
	cbUploadExcel       = "upload_excel"
	cbShowExcel         = "show_excel_file"
	cbDeleteExcel       = "delete_excel_file"
	cbSetThreshold      = "set_threshold"
	cbToggleDefaultKeys = "toggle_default_keys"
	cbBackToMenu        = "back_to_menu"
	cbBackToSettings    = "back_to_settings"
	cbAddKey            = "add_new_api_key"
	cbListKeys          = "list_api_keys"
	cbViewKey           = "view_key"
	cbToggleKey         = "toggle_key"
	cbEditKeyName       = "edit_key_name"
	cbEditKeyValue      = "edit_key_value"
	cbDeleteKey         = "delete_key"
	cbConfirmDeleteKey  = "confirm_delete_key"
	cbBuyPlan           = "buy"
	cbCancelPayment     = "cancel_payment"
	cbSetEmail          = "set_email"
)

// MainMenu строит reply-клавиатуру главного меню. Список товаров доступен,
// только если у пользователя есть хотя бы один ключ.
func MainMenu(hasKey, subscriptions bool) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	if hasKey {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonProducts)))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonSettings)))
	if subscriptions {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonSubscription)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// CancelKeyboard: клавиатура с единственной кнопкой отмены ввода.
func CancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonCancel)))
	kb.ResizeKeyboard = true
	return kb
}

// SettingsKeyboard: меню настроек. Переключатель системных ключей показывается,
// только когда они настроены.
func SettingsKeyboard(hasShared, useDefaultKeys bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔑 Управление API ключами", cbManageKeys)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Загрузить Excel файл", cbUploadExcel)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Показать текущий файл", cbShowExcel)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑️ Удалить Excel файл", cbDeleteExcel)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📈 Порог скидки", cbSetThreshold)),
	}
	if hasShared {
		label := "🌐 Системные ключи: выключены ❌"
		if useDefaultKeys {
			label = "🌐 Системные ключи: включены ✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbToggleDefaultKeys)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// KeysMenuKeyboard: меню управления ключами.
func KeysMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➕ Добавить новый ключ", cbAddKey)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Список ключей", cbListKeys)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Назад к настройкам", cbBackToSettings)),
	)
}

// KeyListKeyboard: по кнопке на каждый ключ со статусом активности.
func KeyListKeyboard(keys []domain.APIKey) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keys)+1)
	for _, k := range keys {
		status := "❌"
		if k.Active {
			status = "✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(status+" "+k.Name, fmt.Sprintf("%s:%d", cbViewKey, k.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", cbManageKeys)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// KeyActionsKeyboard: действия с конкретным ключом.
func KeyActionsKeyboard(keyID int64, active bool) tgbotapi.InlineKeyboardMarkup {
	toggle := "🟢 Включить"
	if active {
		toggle = "🔴 Выключить"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(toggle, fmt.Sprintf("%s:%d", cbToggleKey, keyID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить название", fmt.Sprintf("%s:%d", cbEditKeyName, keyID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Изменить ключ", fmt.Sprintf("%s:%d", cbEditKeyValue, keyID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑️ Удалить ключ", fmt.Sprintf("%s:%d", cbDeleteKey, keyID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Назад к списку", cbListKeys)),
	)
}

// ConfirmDeleteKeyboard запрашивает подтверждение удаления ключа.
func ConfirmDeleteKeyboard(keyID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Да, удалить", fmt.Sprintf("%s:%d", cbConfirmDeleteKey, keyID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", fmt.Sprintf("%s:%d", cbViewKey, keyID))),
	)
}

// PageKeyboard переводит кнопки страницы в inline-клавиатуру.
func PageKeyboard(rows [][]pager.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		if len(buttons) > 0 {
			out = append(out, buttons)
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

// PlansKeyboard: выбор тарифа и настройка email для чеков.
func PlansKeyboard(plans []domain.Plan) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plans)+1)
	for _, p := range plans {
		label := fmt.Sprintf("%s · %s ₽", p.Name, FormatPrice(p.Price))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbBuyPlan+":"+p.ID)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📧 Email для чеков", cbSetEmail)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// PaymentKeyboard ведёт на страницу оплаты и позволяет отменить платёж.
func PaymentKeyboard(payment domain.Payment) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 2)
	if payment.ConfirmationURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", payment.ConfirmationURL)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отменить платёж", cbCancelPayment+":"+payment.PaymentID),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
