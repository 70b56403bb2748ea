package bot

import (
	"testing"

	"github.com/shopspring/decimal"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/pager"
)

func TestMainMenu(t *testing.T) {
	kb := MainMenu(true, true)
	if len(kb.Keyboard) != 3 {
		t.Fatalf("ожидали три строки, получили %d", len(kb.Keyboard))
	}
	if kb.Keyboard[0][0].Text != ButtonProducts || kb.Keyboard[2][0].Text != ButtonSubscription {
		t.Fatalf("неверный порядок кнопок: %+v", kb.Keyboard)
	}
	if !kb.ResizeKeyboard {
		t.Fatal("клавиатура должна подстраиваться по размеру")
	}
}

func TestSettingsKeyboardDefaultKeysToggle(t *testing.T) {
	if kb := SettingsKeyboard(false, true); len(kb.InlineKeyboard) != 6 {
		t.Fatalf("без системных ключей переключатель скрыт, строк: %d", len(kb.InlineKeyboard))
	}
	kb := SettingsKeyboard(true, false)
	row := kb.InlineKeyboard[5][0]
	if row.CallbackData == nil || *row.CallbackData != cbToggleDefaultKeys {
		t.Fatalf("нет переключателя системных ключей: %+v", row)
	}
	if row.Text != "🌐 Системные ключи: выключены ❌" {
		t.Fatalf("неверная подпись: %q", row.Text)
	}
}

func TestKeyListKeyboard(t *testing.T) {
	kb := KeyListKeyboard([]domain.APIKey{{ID: 3, Name: "Основной", Active: true}, {ID: 5, Name: "Тест"}})
	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("ожидали две кнопки ключей и кнопку назад")
	}
	first := kb.InlineKeyboard[0][0]
	if first.Text != "✅ Основной" || *first.CallbackData != "view_key:3" {
		t.Fatalf("неверная кнопка: %q %q", first.Text, *first.CallbackData)
	}
	if kb.InlineKeyboard[1][0].Text != "❌ Тест" {
		t.Fatalf("выключенный ключ помечается крестиком")
	}
	if *kb.InlineKeyboard[2][0].CallbackData != cbManageKeys {
		t.Fatalf("последняя кнопка ведёт в меню ключей")
	}
}

func TestKeyActionsKeyboard(t *testing.T) {
	kb := KeyActionsKeyboard(4, true)
	if kb.InlineKeyboard[0][0].Text != "🔴 Выключить" || *kb.InlineKeyboard[0][0].CallbackData != "toggle_key:4" {
		t.Fatalf("неверная кнопка переключения: %+v", kb.InlineKeyboard[0][0])
	}
	confirm := ConfirmDeleteKeyboard(4)
	if *confirm.InlineKeyboard[0][0].CallbackData != "confirm_delete_key:4" || *confirm.InlineKeyboard[1][0].CallbackData != "view_key:4" {
		t.Fatalf("неверное подтверждение удаления")
	}
}

func TestPageKeyboardSkipsEmptyRows(t *testing.T) {
	kb := PageKeyboard([][]pager.Button{{{Text: "1/2", Data: pager.NoopData}, {Text: "Вперед ➡️", Data: "page:1"}}, {}})
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("неверная клавиатура: %+v", kb.InlineKeyboard)
	}
	if *kb.InlineKeyboard[0][1].CallbackData != "page:1" {
		t.Fatalf("неверные данные кнопки")
	}
}

func TestPlansKeyboard(t *testing.T) {
	kb := PlansKeyboard(domain.Plans())
	if len(kb.InlineKeyboard) != 4 {
		t.Fatalf("ожидали три тарифа и email, строк: %d", len(kb.InlineKeyboard))
	}
	first := kb.InlineKeyboard[0][0]
	if first.Text != "1 месяц · 599 ₽" || *first.CallbackData != "buy:month" {
		t.Fatalf("неверная кнопка тарифа: %q %q", first.Text, *first.CallbackData)
	}
}

func TestPaymentKeyboardWithoutURL(t *testing.T) {
	kb := PaymentKeyboard(domain.Payment{PaymentID: "p-1"})
	if len(kb.InlineKeyboard) != 1 || *kb.InlineKeyboard[0][0].CallbackData != "cancel_payment:p-1" {
		t.Fatalf("без ссылки остаётся только отмена: %+v", kb.InlineKeyboard)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[string]string{
		"599":     "599",
		"599.00":  "599",
		"1499.5":  "1499.50",
		"12.345":  "12.35",
		"0":       "0",
		"4990.10": "4990.10",
	}
	for in, want := range cases {
		if got := FormatPrice(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatPrice(%s) = %s, ожидали %s", in, got, want)
		}
	}
}
