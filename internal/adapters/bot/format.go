package bot

import (
	"github.com/shopspring/decimal"
)

// FormatPrice печатает сумму в рублях: целое значение без копеек, иначе с двумя знаками.
func FormatPrice(price decimal.Decimal) string {
	if price.Equal(price.Truncate(0)) {
		return price.Truncate(0).String()
	}
	return price.StringFixed(2)
}
