package bot

import (
	"context"
	"errors"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/listing"
	"wb-products-bot/internal/usecase/pager"
)

// progressReporter пересказывает ход обработки ключей в чат.
type progressReporter struct {
	h      *Handler
	chatID int64
}

func (r progressReporter) Started(_ context.Context, total int) {
	r.h.reply(r.chatID, progressStartedText(total), nil)
}

func (r progressReporter) Progress(_ context.Context, index, total int, cred domain.Credential) {
	if cred.IsShared() {
		return
	}
	r.h.reply(r.chatID, progressKeyText(index, total, cred.Label), nil)
}

func (h *Handler) handleProducts(ctx context.Context, chatID, tgUserID int64) {
	h.log.Info().Int64("user", tgUserID).Msg("запрошен список товаров")
	page, err := h.listing.Build(ctx, tgUserID, progressReporter{h: h, chatID: chatID})
	switch {
	case errors.Is(err, listing.ErrNoCredentials):
		h.reply(chatID, textNoKeys, MainMenu(false, h.subs != nil))
		return
	case errors.Is(err, listing.ErrSubscriptionRequired):
		h.reply(chatID, textSubscriptionNeed, PlansKeyboard(h.plans()))
		return
	case errors.Is(err, listing.ErrAllCredentialsFailed):
		h.reply(chatID, textAllKeysFailed, nil)
		return
	case errors.Is(err, domain.ErrUserNotFound):
		h.fail(chatID, err, "")
		return
	case err != nil:
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось построить список товаров")
		h.reply(chatID, textListingFailed, nil)
		return
	}
	h.reply(chatID, page.Text, PageKeyboard(page.Keyboard))
}

func (h *Handler) showPage(ctx context.Context, chatID int64, messageID int, tgUserID int64, data string) callbackAnswer {
	var (
		page pager.RenderedPage
		err  error
	)
	if n, perr := pager.ParsePage(data, pager.StatsPrefix); perr == nil {
		page, err = h.listing.Stats(ctx, tgUserID, n)
	} else if n, perr := pager.ParsePage(data, pager.PagePrefix); perr == nil {
		page, err = h.listing.Page(ctx, tgUserID, n)
	} else {
		return callbackAnswer{}
	}
	switch {
	case errors.Is(err, pager.ErrSessionNotFound):
		h.reply(chatID, textNoSession, nil)
	case errors.Is(err, pager.ErrPageNotFound):
		h.reply(chatID, textPageNotFound, nil)
	case err != nil:
		h.fail(chatID, err, "не удалось показать страницу")
	default:
		markup := PageKeyboard(page.Keyboard)
		h.edit(chatID, messageID, page.Text, &markup, "")
	}
	return callbackAnswer{}
}
