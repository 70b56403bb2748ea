package pager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/usecase/discount"
)

var (
	// ErrSessionNotFound: у пользователя нет сохранённых результатов.
	ErrSessionNotFound = fmt.Errorf("нет сохраненных результатов: %w", domain.ErrNotFound)
	// ErrPageNotFound: номер страницы вне диапазона.
	ErrPageNotFound = fmt.Errorf("страница не найдена: %w", domain.ErrNotFound)
)

// Callback-данные кнопок постраничного просмотра.
const (
	PagePrefix  = "page:"
	StatsPrefix = "stats:"
	NoopData    = "noop"
)

// Button: кнопка inline-клавиатуры.
type Button struct {
	Text string
	Data string
}

// RenderedPage: готовая к отправке страница.
type RenderedPage struct {
	Page     int
	Total    int
	Text     string
	Keyboard [][]Button
}

// Pager показывает результаты по одной странице на ключ.
type Pager struct {
	store domain.SessionStore
	now   func() time.Time
}

// New создаёт Pager поверх хранилища сессий.
func New(store domain.SessionStore) *Pager {
	return &Pager{store: store, now: time.Now}
}

// StartSession заменяет сессию пользователя новыми результатами.
func (p *Pager) StartSession(ctx context.Context, userID int64, results []domain.CredentialResult) error {
	return p.store.Set(ctx, domain.PagerSession{
		UserID:      userID,
		Results:     results,
		CurrentPage: 0,
		CreatedAt:   p.now(),
	})
}

// RenderPage строит страницу и запоминает её как текущую.
func (p *Pager) RenderPage(ctx context.Context, userID int64, page int) (RenderedPage, error) {
	session, result, err := p.load(ctx, userID, page)
	if err != nil {
		return RenderedPage{}, err
	}
	total := len(session.Results)
	out := RenderedPage{
		Page:     page,
		Total:    total,
		Text:     renderText(result, page, total),
		Keyboard: keyboard(page, total),
	}
	session.CurrentPage = page
	if err := p.store.Set(ctx, session); err != nil {
		return RenderedPage{}, fmt.Errorf("сохранение сессии: %w", err)
	}
	return out, nil
}

// RenderStats строит статистику по реальным скидкам для страницы.
func (p *Pager) RenderStats(ctx context.Context, userID int64, page int) (RenderedPage, error) {
	session, result, err := p.load(ctx, userID, page)
	if err != nil {
		return RenderedPage{}, err
	}
	total := len(session.Results)
	var b strings.Builder
	b.WriteString(header(result, page, total))
	b.WriteString(discount.FormatStats(result))
	return RenderedPage{
		Page:     page,
		Total:    total,
		Text:     b.String(),
		Keyboard: [][]Button{{{Text: "◀️ К товарам", Data: PagePrefix + strconv.Itoa(page)}}},
	}, nil
}

// CurrentPage возвращает номер последней показанной страницы.
func (p *Pager) CurrentPage(ctx context.Context, userID int64) (int, error) {
	session, ok, err := p.store.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSessionNotFound
	}
	return session.CurrentPage, nil
}

func (p *Pager) load(ctx context.Context, userID int64, page int) (domain.PagerSession, domain.CredentialResult, error) {
	session, ok, err := p.store.Get(ctx, userID)
	if err != nil {
		return domain.PagerSession{}, domain.CredentialResult{}, fmt.Errorf("чтение сессии: %w", err)
	}
	if !ok {
		return domain.PagerSession{}, domain.CredentialResult{}, ErrSessionNotFound
	}
	if page < 0 || page >= len(session.Results) {
		return domain.PagerSession{}, domain.CredentialResult{}, ErrPageNotFound
	}
	return session, session.Results[page], nil
}

// ParsePage разбирает callback-данные вида "page:N" или "stats:N".
func ParsePage(data, prefix string) (int, error) {
	if !strings.HasPrefix(data, prefix) {
		return 0, errors.New("неверный формат данных страницы")
	}
	return strconv.Atoi(strings.TrimPrefix(data, prefix))
}

func header(r domain.CredentialResult, page, total int) string {
	var b strings.Builder
	if !r.IsShared() {
		fmt.Fprintf(&b, "🔑 Ключ: %s\n", r.Label)
	}
	fmt.Fprintf(&b, "Страница %d/%d\n\n", page+1, total)
	return b.String()
}

func renderText(r domain.CredentialResult, page, total int) string {
	var b strings.Builder
	b.WriteString(header(r, page, total))
	threshold := formatThreshold(r.Threshold)

	if r.Failed() {
		fmt.Fprintf(&b, "❌ Ошибка загрузки по ключу: %s\n\n", r.Error)
		b.WriteString("Проверьте ключ в настройках и запросите список ещё раз.\n")
		return b.String()
	}
	if len(r.Products) == 0 {
		b.WriteString("⚠️ Нет товаров, подходящих по критериям\n\n")
		b.WriteString("Возможные причины:\n")
		b.WriteString("  • Нет товаров в личном кабинете\n")
		fmt.Fprintf(&b, "  • Все товары отфильтрованы по критерию реальной скидки ≥%s%%\n", threshold)
		return b.String()
	}

	fmt.Fprintf(&b, "📦 Товары (всего: %d, подходит по критерию ≥%s%%: %d, показано: %d)\n\n",
		r.TotalProducts, threshold, r.FilteredCount, len(r.Products))
	for i, p := range r.Products {
		fmt.Fprintf(&b, "%d. ", i+1)
		switch {
		case p.HasTaxonomy():
			fmt.Fprintf(&b, "%s → %s\n", p.Category, p.Subject)
		case p.SubjectName != "":
			fmt.Fprintf(&b, "📂 %s\n", p.SubjectName)
		default:
			fmt.Fprintf(&b, "Артикул: %d\n", p.ProductID)
		}
		if p.DisplayName != "" {
			fmt.Fprintf(&b, "   📝 %s\n", p.DisplayName)
		}
		fmt.Fprintf(&b, "   ✅ СПП: %.1f%%\n", p.RealDiscount)
		if p.CommissionWarehouse != "" {
			fmt.Fprintf(&b, "   💼 FBO комиссия: %s\n", p.CommissionWarehouse)
		}
		if p.CommissionFBS != "" {
			fmt.Fprintf(&b, "   💼 FBS комиссия: %s\n", p.CommissionFBS)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func keyboard(page, total int) [][]Button {
	nav := make([]Button, 0, 3)
	if page > 0 {
		nav = append(nav, Button{Text: "⬅️ Назад", Data: PagePrefix + strconv.Itoa(page-1)})
	}
	nav = append(nav, Button{Text: fmt.Sprintf("%d/%d", page+1, total), Data: NoopData})
	if page < total-1 {
		nav = append(nav, Button{Text: "Вперед ➡️", Data: PagePrefix + strconv.Itoa(page+1)})
	}
	return [][]Button{
		nav,
		{{Text: "📊 Статистика", Data: StatsPrefix + strconv.Itoa(page)}},
	}
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
