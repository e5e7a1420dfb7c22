// Package currency пересчитывает суммы из базовой валюты в валюту отображения.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"BDT": "৳",
}

// RateFor возвращает курс target относительно base по таблице курсов.
// Для базовой валюты курс равен 1. Отсутствующий курс тоже даёт 1:
// касса продолжает работать, а продажа всё равно хранит суммы в базовой валюте.
func RateFor(target, base string, rates map[string]decimal.Decimal) decimal.Decimal {
	target = Normalize(target)
	if target == "" || target == Normalize(base) {
		return decimal.NewFromInt(1)
	}
	rate, ok := rates[target]
	if !ok || !rate.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return rate
}

// SymbolFor возвращает символ валюты или сам код, если символ неизвестен.
func SymbolFor(code string) string {
	code = Normalize(code)
	if s, ok := symbols[code]; ok {
		return s
	}
	return code
}

// Normalize приводит код валюты к верхнему регистру.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Context фиксирует пару валют и курс, по которому считалась продажа.
type Context struct {
	Base    string          `json:"baseCurrency"`
	Display string          `json:"displayCurrency"`
	Rate    decimal.Decimal `json:"conversionRate"`
	Symbol  string          `json:"symbol"`
}

// NewContext строит контекст пересчёта. Пустая валюта отображения означает базовую.
func NewContext(display, base string, rates map[string]decimal.Decimal) Context {
	base = Normalize(base)
	display = Normalize(display)
	if display == "" {
		display = base
	}
	return Context{
		Base:    base,
		Display: display,
		Rate:    RateFor(display, base, rates),
		Symbol:  SymbolFor(display),
	}
}

// Convert переводит сумму из базовой валюты в валюту отображения без округления.
func (c Context) Convert(amount decimal.Decimal) decimal.Decimal {
	if c.Rate.IsZero() {
		return amount
	}
	return amount.Mul(c.Rate)
}
