package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"wb-products-bot/internal/adapters/telegram"
	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
	"wb-products-bot/internal/usecase/account"
	"wb-products-bot/internal/usecase/commission"
	"wb-products-bot/internal/usecase/keys"
	"wb-products-bot/internal/usecase/listing"
	"wb-products-bot/internal/usecase/pager"
)

// Accounts: настройки пользователя и справочник комиссий.
type Accounts interface {
	Register(ctx context.Context, tgUserID int64, username string) (domain.User, error)
	User(ctx context.Context, tgUserID int64) (domain.User, error)
	Threshold(ctx context.Context, tgUserID int64) (int, error)
	SetThreshold(ctx context.Context, tgUserID int64, raw string) (int, error)
	ToggleDefaultKeys(ctx context.Context, tgUserID int64) (bool, error)
	SetEmail(ctx context.Context, tgUserID int64, email string) (string, error)
	SaveSpreadsheet(ctx context.Context, tgUserID int64, fileName string, r io.Reader) (commission.Stats, error)
	Spreadsheet(ctx context.Context, tgUserID int64) (account.SpreadsheetInfo, error)
	DeleteSpreadsheet(ctx context.Context, tgUserID int64) (string, error)
}

// Keys: ключи WB пользователя.
type Keys interface {
	Add(ctx context.Context, tgUserID int64, name, value string) (domain.APIKey, error)
	List(ctx context.Context, tgUserID int64) ([]domain.APIKey, error)
	View(ctx context.Context, tgUserID, keyID int64) (keys.KeyView, error)
	Toggle(ctx context.Context, tgUserID, keyID int64) (bool, error)
	Rename(ctx context.Context, tgUserID, keyID int64, name string) (string, error)
	Replace(ctx context.Context, tgUserID, keyID int64, value string) error
	Delete(ctx context.Context, tgUserID, keyID int64) (domain.APIKey, error)
	HasAnyCredential(ctx context.Context, tgUserID int64) (bool, error)
	HasShared() bool
}

// Listing строит и листает список товаров.
type Listing interface {
	Build(ctx context.Context, tgUserID int64, reporter listing.Reporter) (pager.RenderedPage, error)
	Page(ctx context.Context, tgUserID int64, page int) (pager.RenderedPage, error)
	Stats(ctx context.Context, tgUserID int64, page int) (pager.RenderedPage, error)
}

// Subscriptions: тарифы и платежи.
type Subscriptions interface {
	Plans() []domain.Plan
	CreatePayment(ctx context.Context, tgUserID int64, planID string) (domain.Payment, error)
	ActiveSubscription(ctx context.Context, tgUserID int64) (domain.Subscription, error)
	PaymentMethods(ctx context.Context, tgUserID int64) ([]domain.PaymentMethod, error)
	CancelPayment(ctx context.Context, tgUserID int64, paymentID string) error
}

type inputState int

const (
	inputKeyName inputState = iota + 1
	inputKeyValue
	inputRenameKey
	inputReplaceKey
	inputThreshold
	inputSpreadsheet
	inputEmail
)

// pendingInput: ожидаемый от пользователя ввод.
type pendingInput struct {
	state inputState
	keyID int64
	name  string
}

// Handler обслуживает апдейты бота.
type Handler struct {
	api      telegram.API
	log      zerolog.Logger
	accounts Accounts
	keys     Keys
	listing  Listing
	subs     Subscriptions
	files    *http.Client

	mu      sync.Mutex
	pending map[int64]pendingInput
}

// NewHandler создаёт обработчик. subs может быть nil, тогда раздел подписки скрыт.
func NewHandler(api telegram.API, log zerolog.Logger, accounts Accounts, keys Keys, listing Listing, subs Subscriptions) *Handler {
	return &Handler{
		api:      api,
		log:      log,
		accounts: accounts,
		keys:     keys,
		listing:  listing,
		subs:     subs,
		files:    &http.Client{Timeout: time.Minute},
		pending:  make(map[int64]pendingInput),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID, tgUserID := msg.Chat.ID, msg.From.ID
	if msg.Document != nil {
		h.handleDocument(ctx, msg)
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(ctx, msg)
		return
	case text == ButtonCancel:
		h.handleCancel(ctx, chatID, tgUserID)
		return
	}
	if h.handleInput(ctx, chatID, tgUserID, text) {
		return
	}
	switch text {
	case ButtonSettings:
		h.handleSettings(ctx, chatID, tgUserID)
	case ButtonProducts:
		h.handleProducts(ctx, chatID, tgUserID)
	case ButtonSubscription:
		if h.subs != nil {
			h.handleSubscription(ctx, chatID, tgUserID)
			return
		}
		h.reply(chatID, textUnknown, h.mainMenu(ctx, tgUserID))
	default:
		h.reply(chatID, textUnknown, h.mainMenu(ctx, tgUserID))
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	h.clearPending(msg.From.ID)
	if _, err := h.accounts.Register(ctx, msg.From.ID, msg.From.UserName); err != nil {
		h.fail(msg.Chat.ID, err, "не удалось зарегистрировать пользователя")
		return
	}
	hasKey := h.hasKey(ctx, msg.From.ID)
	h.reply(msg.Chat.ID, welcomeText(hasKey), MainMenu(hasKey, h.subs != nil))
}

func (h *Handler) handleCancel(ctx context.Context, chatID, tgUserID int64) {
	p, _ := h.pendingFor(tgUserID)
	h.clearPending(tgUserID)
	text := textCanceled
	if p.state == inputThreshold {
		text = textThresholdCancel
	}
	h.reply(chatID, text, h.mainMenu(ctx, tgUserID))
}

// handleInput обрабатывает ожидаемый текстовый ввод. Возвращает false, если ввода не ждали.
func (h *Handler) handleInput(ctx context.Context, chatID, tgUserID int64, text string) bool {
	p, ok := h.pendingFor(tgUserID)
	if !ok || p.state == inputSpreadsheet {
		return false
	}
	switch p.state {
	case inputKeyName:
		h.inputKeyName(chatID, tgUserID, text)
	case inputKeyValue:
		h.inputKeyValue(ctx, chatID, tgUserID, p, text)
	case inputRenameKey:
		h.inputRename(ctx, chatID, tgUserID, p, text)
	case inputReplaceKey:
		h.inputReplace(ctx, chatID, tgUserID, p, text)
	case inputThreshold:
		h.inputThreshold(ctx, chatID, tgUserID, text)
	case inputEmail:
		h.inputEmail(ctx, chatID, tgUserID, text)
	}
	return true
}

type callbackAnswer struct {
	text  string
	alert bool
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	var ans callbackAnswer
	if cb.From != nil && cb.Message != nil {
		ans = h.routeCallback(ctx, cb)
	}
	h.answer(cb, ans)
}

func (h *Handler) routeCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) callbackAnswer {
	chatID, messageID, tgUserID := cb.Message.Chat.ID, cb.Message.MessageID, cb.From.ID
	action, arg, _ := strings.Cut(cb.Data, ":")
	switch action {
	case pager.NoopData:
		return callbackAnswer{}
	case strings.TrimSuffix(pager.PagePrefix, ":"), strings.TrimSuffix(pager.StatsPrefix, ":"):
		return h.showPage(ctx, chatID, messageID, tgUserID, cb.Data)
	case cbManageKeys:
		markup := KeysMenuKeyboard()
		h.edit(chatID, messageID, textKeysMenu, &markup, "")
	case cbBackToSettings:
		markup := h.settingsMarkup(ctx, tgUserID)
		h.edit(chatID, messageID, textSettings, &markup, "")
	case cbBackToMenu:
		h.clearPending(tgUserID)
		h.reply(chatID, textMainMenu, h.mainMenu(ctx, tgUserID))
	case cbListKeys:
		h.showKeys(ctx, chatID, messageID, tgUserID, false)
	case cbAddKey:
		h.setPending(tgUserID, pendingInput{state: inputKeyName})
		h.reply(chatID, textAddKeyName, CancelKeyboard())
	case cbViewKey:
		return h.viewKey(ctx, chatID, messageID, tgUserID, parseID(cb.Data))
	case cbToggleKey:
		return h.toggleKey(ctx, chatID, messageID, tgUserID, parseID(cb.Data))
	case cbDeleteKey:
		return h.confirmDeleteKey(ctx, chatID, messageID, tgUserID, parseID(cb.Data))
	case cbConfirmDeleteKey:
		return h.deleteKey(ctx, chatID, messageID, tgUserID, parseID(cb.Data))
	case cbEditKeyName:
		return h.startKeyEdit(ctx, chatID, tgUserID, parseID(cb.Data), inputRenameKey)
	case cbEditKeyValue:
		return h.startKeyEdit(ctx, chatID, tgUserID, parseID(cb.Data), inputReplaceKey)
	case cbUploadExcel:
		h.setPending(tgUserID, pendingInput{state: inputSpreadsheet})
		h.reply(chatID, textUploadExcel, CancelKeyboard())
	case cbShowExcel:
		h.showSpreadsheet(ctx, chatID, tgUserID)
	case cbDeleteExcel:
		h.deleteSpreadsheet(ctx, chatID, tgUserID)
	case cbSetThreshold:
		h.startThreshold(ctx, chatID, tgUserID)
	case cbToggleDefaultKeys:
		return h.toggleDefaultKeys(ctx, chatID, messageID, tgUserID)
	case cbBuyPlan:
		if h.subs != nil {
			return h.buyPlan(ctx, chatID, tgUserID, arg)
		}
	case cbCancelPayment:
		if h.subs != nil {
			return h.cancelPayment(ctx, chatID, messageID, tgUserID, arg)
		}
	case cbSetEmail:
		if h.subs != nil {
			h.setPending(tgUserID, pendingInput{state: inputEmail})
			h.reply(chatID, textEmailPrompt, CancelKeyboard())
		}
	default:
		h.log.Debug().Str("data", cb.Data).Msg("неизвестный callback")
	}
	return callbackAnswer{}
}

func (h *Handler) answer(cb *tgbotapi.CallbackQuery, ans callbackAnswer) {
	cfg := tgbotapi.NewCallback(cb.ID, ans.text)
	if ans.alert {
		cfg = tgbotapi.NewCallbackWithAlert(cb.ID, ans.text)
	}
	var target string
	if cb.From != nil {
		target = strconv.FormatInt(cb.From.ID, 10)
	}
	start := time.Now()
	_, err := h.api.Request(cfg)
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", target, start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) pendingFor(tgUserID int64) (pendingInput, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[tgUserID]
	return p, ok
}

func (h *Handler) setPending(tgUserID int64, p pendingInput) {
	h.mu.Lock()
	h.pending[tgUserID] = p
	h.mu.Unlock()
}

func (h *Handler) clearPending(tgUserID int64) {
	h.mu.Lock()
	delete(h.pending, tgUserID)
	h.mu.Unlock()
}

func (h *Handler) hasKey(ctx context.Context, tgUserID int64) bool {
	ok, err := h.keys.HasAnyCredential(ctx, tgUserID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user", tgUserID).Msg("не удалось проверить ключи")
		return false
	}
	return ok
}

func (h *Handler) mainMenu(ctx context.Context, tgUserID int64) tgbotapi.ReplyKeyboardMarkup {
	return MainMenu(h.hasKey(ctx, tgUserID), h.subs != nil)
}

// fail сообщает пользователю об ошибке, которую он не может исправить вводом.
func (h *Handler) fail(chatID int64, err error, msg string) {
	if errors.Is(err, domain.ErrUserNotFound) {
		h.reply(chatID, "Отправьте /start, чтобы начать работу", nil)
		return
	}
	h.log.Error().Err(err).Int64("chat", chatID).Msg(msg)
	h.reply(chatID, textInternalError, nil)
}

func parseID(data string) int64 {
	parts := strings.Split(data, ":")
	if len(parts) != 2 {
		return 0
	}
	id, _ := strconv.ParseInt(parts[1], 10, 64)
	return id
}

func (h *Handler) reply(chatID int64, text string, markup any) {
	h.send(chatID, text, markup, "")
}

func (h *Handler) send(chatID int64, text string, markup any, parseMode string) {
	parts := telegram.SplitMessage(text)
	last := len(parts) - 1
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = parseMode
		// Клавиатура идёт с последней частью, чтобы кнопки листания были под текстом.
		if i == last && markup != nil {
			msg.ReplyMarkup = markup
		}
		start := time.Now()
		_, err := h.api.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// edit заменяет текст сообщения. Слишком длинный текст или неудачная правка
// отправляются новым сообщением.
func (h *Handler) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup, parseMode string) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) <= telegram.MessageLimit {
		cfg := tgbotapi.NewEditMessageText(chatID, messageID, strings.TrimSpace(text))
		cfg.ParseMode = parseMode
		cfg.ReplyMarkup = markup
		start := time.Now()
		_, err := h.api.Request(cfg)
		metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return
		}
		h.log.Debug().Err(err).Msg("не удалось отредактировать сообщение, отправляю новое")
	}
	var m any
	if markup != nil {
		m = *markup
	}
	h.send(chatID, text, m, parseMode)
}
