package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/account"
	"wb-products-bot/internal/usecase/commission"
	"wb-products-bot/internal/usecase/keys"
	"wb-products-bot/internal/usecase/listing"
	"wb-products-bot/internal/usecase/pager"
)

type fakeAPI struct {
	sent      []tgbotapi.MessageConfig
	edits     []tgbotapi.EditMessageTextConfig
	callbacks []tgbotapi.CallbackConfig
	editErr   error
	fileURL   string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	switch v := c.(type) {
	case tgbotapi.CallbackConfig:
		f.callbacks = append(f.callbacks, v)
	case tgbotapi.EditMessageTextConfig:
		if f.editErr != nil {
			return nil, f.editErr
		}
		f.edits = append(f.edits, v)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) { return f.fileURL, nil }

func (f *fakeAPI) lastText() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

type fakeAccounts struct {
	registered int64
	threshold  int
	saved      string
	savedName  string
	info       account.SpreadsheetInfo
	infoErr    error
}

func (f *fakeAccounts) Register(_ context.Context, tg int64, _ string) (domain.User, error) {
	f.registered = tg
	return domain.User{ID: 1, TGUserID: tg}, nil
}

func (f *fakeAccounts) User(_ context.Context, tg int64) (domain.User, error) {
	return domain.User{ID: 1, TGUserID: tg, UseDefaultKeys: true}, nil
}

func (f *fakeAccounts) Threshold(context.Context, int64) (int, error) { return f.threshold, nil }

func (f *fakeAccounts) SetThreshold(_ context.Context, _ int64, raw string) (int, error) {
	v, err := account.ParseThreshold(raw)
	if err != nil {
		return 0, err
	}
	f.threshold = v
	return v, nil
}

func (f *fakeAccounts) ToggleDefaultKeys(context.Context, int64) (bool, error) { return false, nil }

func (f *fakeAccounts) SetEmail(_ context.Context, _ int64, email string) (string, error) {
	return email, nil
}

func (f *fakeAccounts) SaveSpreadsheet(_ context.Context, _ int64, name string, r io.Reader) (commission.Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return commission.Stats{}, err
	}
	f.saved, f.savedName = string(data), name
	return commission.Stats{Subjects: 3, Categories: 2}, nil
}

func (f *fakeAccounts) Spreadsheet(context.Context, int64) (account.SpreadsheetInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeAccounts) DeleteSpreadsheet(context.Context, int64) (string, error) {
	return "", account.ErrNoSpreadsheet
}

type fakeKeys struct {
	added   []string
	hasAny  bool
	viewErr error
}

func (f *fakeKeys) Add(_ context.Context, _ int64, name, value string) (domain.APIKey, error) {
	if _, err := keys.ValidateKey(value); err != nil {
		return domain.APIKey{}, err
	}
	f.added = append(f.added, name+"="+value)
	f.hasAny = true
	return domain.APIKey{ID: 7, Name: name, Active: true}, nil
}

func (f *fakeKeys) List(context.Context, int64) ([]domain.APIKey, error) {
	return []domain.APIKey{{ID: 7, Name: "Основной", Active: true}}, nil
}

func (f *fakeKeys) View(_ context.Context, _ int64, id int64) (keys.KeyView, error) {
	if f.viewErr != nil {
		return keys.KeyView{}, f.viewErr
	}
	return keys.KeyView{APIKey: domain.APIKey{ID: id, Name: "Основной", Active: true}, Masked: "abc***xyz"}, nil
}

func (f *fakeKeys) Toggle(context.Context, int64, int64) (bool, error) { return false, nil }

func (f *fakeKeys) Rename(_ context.Context, _ int64, _ int64, name string) (string, error) {
	return keys.ValidateName(name)
}

func (f *fakeKeys) Replace(context.Context, int64, int64, string) error { return nil }

func (f *fakeKeys) Delete(_ context.Context, _ int64, id int64) (domain.APIKey, error) {
	return domain.APIKey{ID: id, Name: "Основной"}, nil
}

func (f *fakeKeys) HasAnyCredential(context.Context, int64) (bool, error) { return f.hasAny, nil }

func (f *fakeKeys) HasShared() bool { return true }

type fakeListing struct {
	creds   []domain.Credential
	err     error
	pageErr error
}

func (f *fakeListing) Build(ctx context.Context, _ int64, r listing.Reporter) (pager.RenderedPage, error) {
	if f.err != nil {
		return pager.RenderedPage{}, f.err
	}
	r.Started(ctx, len(f.creds))
	idx := 0
	for _, c := range f.creds {
		if c.IsShared() {
			r.Progress(ctx, 0, 0, c)
			continue
		}
		idx++
		r.Progress(ctx, idx, 1, c)
	}
	return pager.RenderedPage{Total: 1, Text: "Страница 1/1", Keyboard: [][]pager.Button{{{Text: "1/1", Data: pager.NoopData}}}}, nil
}

func (f *fakeListing) Page(_ context.Context, _ int64, page int) (pager.RenderedPage, error) {
	if f.pageErr != nil {
		return pager.RenderedPage{}, f.pageErr
	}
	return pager.RenderedPage{Page: page, Total: 2, Text: "Страница 2/2", Keyboard: [][]pager.Button{{{Text: "⬅️ Назад", Data: "page:0"}}}}, nil
}

func (f *fakeListing) Stats(_ context.Context, _ int64, page int) (pager.RenderedPage, error) {
	return pager.RenderedPage{Page: page, Text: "📊 Статистика"}, nil
}

type fakeSubs struct {
	created string
}

func (f *fakeSubs) Plans() []domain.Plan { return domain.Plans() }

func (f *fakeSubs) CreatePayment(_ context.Context, _ int64, planID string) (domain.Payment, error) {
	f.created = planID
	return domain.Payment{PaymentID: "pay-1", PlanID: planID, ConfirmationURL: "https://yoomoney.ru/checkout/pay-1"}, nil
}

func (f *fakeSubs) ActiveSubscription(context.Context, int64) (domain.Subscription, error) {
	return domain.Subscription{}, domain.ErrSubscriptionNotFound
}

func (f *fakeSubs) PaymentMethods(context.Context, int64) ([]domain.PaymentMethod, error) {
	return nil, nil
}

func (f *fakeSubs) CancelPayment(context.Context, int64, string) error { return nil }

type fixture struct {
	api      *fakeAPI
	accounts *fakeAccounts
	keys     *fakeKeys
	listing  *fakeListing
	h        *Handler
}

func newFixture(subs *fakeSubs) *fixture {
	f := &fixture{api: &fakeAPI{}, accounts: &fakeAccounts{threshold: 28}, keys: &fakeKeys{}, listing: &fakeListing{}}
	var s Subscriptions
	if subs != nil {
		s = subs
	}
	f.h = NewHandler(f.api, zerolog.Nop(), f.accounts, f.keys, f.listing, s)
	return f
}

func (f *fixture) text(t *testing.T, text string) {
	t.Helper()
	f.h.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 100, UserName: "seller"},
		Chat:      &tgbotapi.Chat{ID: 500},
		Text:      text,
	}})
}

func (f *fixture) press(t *testing.T, data string) {
	t.Helper()
	f.h.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 100},
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 500}},
		Data:    data,
	}})
}

func TestStartRegistersUser(t *testing.T) {
	f := newFixture(nil)
	f.text(t, "/start")
	if f.accounts.registered != 100 {
		t.Fatalf("пользователь не зарегистрирован")
	}
	if !strings.Contains(f.api.lastText(), "установите WB API ключ") {
		t.Fatalf("неожиданное приветствие: %q", f.api.lastText())
	}
	kb, ok := f.api.sent[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("ожидали reply-клавиатуру, получили %T", f.api.sent[0].ReplyMarkup)
	}
	if len(kb.Keyboard) != 1 || kb.Keyboard[0][0].Text != ButtonSettings {
		t.Fatalf("без ключей в меню только настройки: %+v", kb.Keyboard)
	}
}

func TestAddKeyFlow(t *testing.T) {
	f := newFixture(nil)
	f.press(t, cbAddKey)
	if !strings.Contains(f.api.lastText(), "Шаг 1/2") {
		t.Fatalf("ожидали запрос названия, получили %q", f.api.lastText())
	}
	f.text(t, "О")
	if f.api.lastText() != textNameTooShort {
		t.Fatalf("короткое название должно отклоняться: %q", f.api.lastText())
	}
	f.text(t, "Основной")
	if !strings.Contains(f.api.lastText(), "Шаг 2/2") {
		t.Fatalf("ожидали запрос ключа, получили %q", f.api.lastText())
	}
	f.text(t, "short")
	if f.api.lastText() != textKeyTooShort {
		t.Fatalf("короткий ключ должен отклоняться: %q", f.api.lastText())
	}
	f.text(t, strings.Repeat("k", 30))
	if len(f.keys.added) != 1 || f.keys.added[0] != "Основной="+strings.Repeat("k", 30) {
		t.Fatalf("ключ не сохранён: %v", f.keys.added)
	}
	if _, ok := f.h.pendingFor(100); ok {
		t.Fatal("ожидание ввода должно сброситься")
	}
	kb := f.api.sent[len(f.api.sent)-1].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if kb.Keyboard[0][0].Text != ButtonProducts {
		t.Fatalf("после добавления ключа должен появиться список товаров: %+v", kb.Keyboard)
	}
}

func TestCancelResetsInput(t *testing.T) {
	f := newFixture(nil)
	f.press(t, cbSetThreshold)
	f.text(t, ButtonCancel)
	if f.api.lastText() != textThresholdCancel {
		t.Fatalf("неожиданный ответ: %q", f.api.lastText())
	}
	if _, ok := f.h.pendingFor(100); ok {
		t.Fatal("ожидание ввода должно сброситься")
	}
}

func TestThresholdInput(t *testing.T) {
	f := newFixture(nil)
	f.press(t, cbSetThreshold)
	if !strings.Contains(f.api.lastText(), "Текущий порог: 28%") {
		t.Fatalf("неожиданный запрос: %q", f.api.lastText())
	}
	f.text(t, "101")
	if f.api.lastText() != textThresholdInvalid {
		t.Fatalf("значение вне диапазона должно отклоняться: %q", f.api.lastText())
	}
	f.text(t, "35")
	if f.accounts.threshold != 35 || !strings.Contains(f.api.lastText(), "35%") {
		t.Fatalf("порог не сохранён: %d %q", f.accounts.threshold, f.api.lastText())
	}
}

func TestProductsNarratesOnlyUserKeys(t *testing.T) {
	f := newFixture(nil)
	f.listing.creds = []domain.Credential{
		domain.NewUserCredential(1, "Основной", "secret"),
		domain.NewSharedCredential("Системный", "shared"),
	}
	f.text(t, ButtonProducts)
	want := []string{
		"⏳ Обрабатываю 2 активных ключей...",
		"🔑 Обрабатываю ключ 1/1: 'Основной'...",
		"Страница 1/1",
	}
	if len(f.api.sent) != len(want) {
		t.Fatalf("ожидали %d сообщений, получили %d", len(want), len(f.api.sent))
	}
	for i, w := range want {
		if f.api.sent[i].Text != w {
			t.Fatalf("сообщение %d: ожидали %q, получили %q", i, w, f.api.sent[i].Text)
		}
	}
	if _, ok := f.api.sent[2].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); !ok {
		t.Fatalf("страница должна идти с клавиатурой листания")
	}
}

func TestProductsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{listing.ErrNoCredentials, textNoKeys},
		{listing.ErrSubscriptionRequired, textSubscriptionNeed},
		{listing.ErrAllCredentialsFailed, textAllKeysFailed},
		{errors.New("db down"), textListingFailed},
	}
	for _, tc := range cases {
		f := newFixture(nil)
		f.listing.err = tc.err
		f.text(t, ButtonProducts)
		if f.api.lastText() != tc.want {
			t.Fatalf("%v: ожидали %q, получили %q", tc.err, tc.want, f.api.lastText())
		}
	}
}

func TestPageCallbackEditsMessage(t *testing.T) {
	f := newFixture(nil)
	f.press(t, "page:1")
	if len(f.api.edits) != 1 || f.api.edits[0].Text != "Страница 2/2" || f.api.edits[0].MessageID != 9 {
		t.Fatalf("ожидали правку сообщения: %+v", f.api.edits)
	}
	if len(f.api.callbacks) != 1 {
		t.Fatalf("callback должен получить ответ")
	}
}

func TestPageCallbackFallsBackToSend(t *testing.T) {
	f := newFixture(nil)
	f.api.editErr = errors.New("Bad Request: message can't be edited")
	f.press(t, "page:1")
	if f.api.lastText() != "Страница 2/2" {
		t.Fatalf("при неудачной правке страница отправляется новым сообщением: %q", f.api.lastText())
	}
}

func TestPageCallbackWithoutSession(t *testing.T) {
	f := newFixture(nil)
	f.listing.pageErr = pager.ErrSessionNotFound
	f.press(t, "page:0")
	if f.api.lastText() != textNoSession {
		t.Fatalf("неожиданный ответ: %q", f.api.lastText())
	}
}

func TestViewMissingKeyAlerts(t *testing.T) {
	f := newFixture(nil)
	f.keys.viewErr = domain.ErrAPIKeyNotFound
	f.press(t, "view_key:3")
	if len(f.api.callbacks) != 1 || !f.api.callbacks[0].ShowAlert || f.api.callbacks[0].Text != textKeyNotFound {
		t.Fatalf("ожидали всплывающее предупреждение: %+v", f.api.callbacks)
	}
}

func TestViewKeyUsesHTML(t *testing.T) {
	f := newFixture(nil)
	f.press(t, "view_key:7")
	if len(f.api.edits) != 1 || f.api.edits[0].ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("карточка ключа должна идти в HTML: %+v", f.api.edits)
	}
	if !strings.Contains(f.api.edits[0].Text, "<code>abc***xyz</code>") {
		t.Fatalf("нет маскированного ключа: %q", f.api.edits[0].Text)
	}
}

func TestDocumentUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("xlsx-bytes"))
	}))
	defer srv.Close()

	f := newFixture(nil)
	f.api.fileURL = srv.URL + "/file"
	doc := func(name string) {
		f.h.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: 100},
			Chat:     &tgbotapi.Chat{ID: 500},
			Document: &tgbotapi.Document{FileID: "f1", FileName: name, FileSize: 10},
		}})
	}

	doc("commissions.xlsx")
	if f.api.lastText() != textDocumentHint {
		t.Fatalf("без запроса файл не принимается: %q", f.api.lastText())
	}

	f.press(t, cbUploadExcel)
	doc("commissions.csv")
	if f.api.lastText() != textExcelWrongType {
		t.Fatalf("неверное расширение должно отклоняться: %q", f.api.lastText())
	}
	doc("commissions.xlsx")
	if f.accounts.saved != "xlsx-bytes" || f.accounts.savedName != "commissions.xlsx" {
		t.Fatalf("файл не сохранён: %q %q", f.accounts.saved, f.accounts.savedName)
	}
	if !strings.Contains(f.api.lastText(), "успешно загружен") {
		t.Fatalf("неожиданный ответ: %q", f.api.lastText())
	}
}

func TestShowSpreadsheet(t *testing.T) {
	f := newFixture(nil)
	f.accounts.infoErr = account.ErrNoSpreadsheet
	f.press(t, cbShowExcel)
	if f.api.lastText() != textExcelMissing {
		t.Fatalf("неожиданный ответ: %q", f.api.lastText())
	}

	f.accounts.infoErr = nil
	f.accounts.info = account.SpreadsheetInfo{Name: "a.xlsx", SizeKB: 12.34, Exists: true}
	f.press(t, cbShowExcel)
	if !strings.Contains(f.api.lastText(), "Размер: 12.3 KB") {
		t.Fatalf("неожиданный ответ: %q", f.api.lastText())
	}
}

func TestBuyPlanSendsPaymentLink(t *testing.T) {
	subs := &fakeSubs{}
	f := newFixture(subs)
	f.text(t, ButtonSubscription)
	if f.api.lastText() != textNoSubscription {
		t.Fatalf("неожиданный ответ: %q", f.api.lastText())
	}
	f.press(t, "buy:month")
	if subs.created != "month" {
		t.Fatalf("платёж не создан")
	}
	last := f.api.sent[len(f.api.sent)-1]
	if !strings.Contains(last.Text, "Сумма: 599 ₽") {
		t.Fatalf("неожиданный текст: %q", last.Text)
	}
	kb := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if kb.InlineKeyboard[0][0].URL == nil || *kb.InlineKeyboard[0][0].URL != "https://yoomoney.ru/checkout/pay-1" {
		t.Fatalf("нет ссылки на оплату: %+v", kb.InlineKeyboard)
	}
}

func TestSubscriptionHiddenWithoutService(t *testing.T) {
	f := newFixture(nil)
	f.text(t, ButtonSubscription)
	if f.api.lastText() != textUnknown {
		t.Fatalf("без сервиса подписки раздел недоступен: %q", f.api.lastText())
	}
	f.press(t, "buy:month")
	if len(f.api.callbacks) != 1 {
		t.Fatalf("callback должен получить ответ")
	}
}

func TestActiveSubscriptionText(t *testing.T) {
	sub := domain.Subscription{PlanID: "quarter", EndDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	text := activeSubscriptionText(sub, []domain.PaymentMethod{{CardLast4: "4242"}})
	for _, want := range []string{"Тариф: 3 месяца", "Действует до: 01.03.2025", "*4242"} {
		if !strings.Contains(text, want) {
			t.Fatalf("нет %q в %q", want, text)
		}
	}
}

func TestPaymentCreatedText(t *testing.T) {
	plan := domain.Plan{Name: "1 месяц", Price: decimal.RequireFromString("599.50")}
	if !strings.Contains(paymentCreatedText(plan), "Сумма: 599.50 ₽") {
		t.Fatalf("неверная сумма: %q", paymentCreatedText(plan))
	}
}
