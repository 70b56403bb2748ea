package discount

import (
	"fmt"
	"strings"

	"wb-products-bot/internal/domain"
)

// band: диапазон реальной скидки, нижняя граница включительно.
type band struct {
	Label string
	Min   float64
}

// bands упорядочены от верхнего диапазона к нижнему.
var bands = []band{
	{Label: "50%+", Min: 50},
	{Label: "45-49%", Min: 45},
	{Label: "40-44%", Min: 40},
	{Label: "38-39%", Min: 38},
	{Label: "35-37%", Min: 35},
	{Label: "30-34%", Min: 30},
	{Label: "25-29%", Min: 25},
	{Label: "20-24%", Min: 20},
	{Label: "15-19%", Min: 15},
	{Label: "10-14%", Min: 10},
}

const lowestBand = "<10%"

// TopLimit: сколько товаров попадает в топ по реальной скидке.
const TopLimit = 5

// BandLabel возвращает подпись диапазона для значения скидки.
func BandLabel(pct float64) string {
	for _, b := range bands {
		if pct >= b.Min {
			return b.Label
		}
	}
	return lowestBand
}

// BandLabels возвращает подписи всех диапазонов от верхнего к нижнему.
func BandLabels() []string {
	labels := make([]string, 0, len(bands)+1)
	for _, b := range bands {
		labels = append(labels, b.Label)
	}
	return append(labels, lowestBand)
}

// Histogram раскладывает значения по диапазонам. Пустые диапазоны тоже присутствуют.
func Histogram(samples []domain.DiscountSample) map[string]int {
	out := make(map[string]int, len(bands)+1)
	for _, label := range BandLabels() {
		out[label] = 0
	}
	for _, s := range samples {
		out[BandLabel(s.RealDiscount)]++
	}
	return out
}

// FormatStats строит текст статистики по реальным скидкам.
func FormatStats(result domain.CredentialResult) string {
	var b strings.Builder
	b.WriteString("📊 Статистика по реальным скидкам (скидка сайта - скидка продавца):\n")
	if result.PricedProducts == 0 {
		b.WriteString("Нет товаров с ценами\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Всего товаров с ценами: %d\n\n", result.PricedProducts)
	for _, label := range BandLabels() {
		if n := result.Histogram[label]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d шт\n", label, n)
		}
	}
	if len(result.Top) > 0 {
		fmt.Fprintf(&b, "\nТоп-%d товаров с максимальной реальной скидкой:\n", TopLimit)
		for i, s := range result.Top {
			fmt.Fprintf(&b, "  %d. nmID %d: %.1f%%\n", i+1, s.ProductID, s.RealDiscount)
		}
	}
	if result.SkippedNoDetail > 0 || result.SkippedNoPrice > 0 {
		fmt.Fprintf(&b, "\nПропущено: без карточки %d, без базовой цены %d\n", result.SkippedNoDetail, result.SkippedNoPrice)
	}
	return b.String()
}
