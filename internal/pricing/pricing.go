// Package pricing рассчитывает итоги чека: сумму, скидку, налог и итог.
//
// Расчёт ведётся в десятичной арифметике без промежуточного округления.
// Округление до копеек выполняется только на выходе (Rounded).
package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/urbanpos/internal/model"
)

// MoneyPlaces задаёт число знаков после запятой для денежных сумм на выходе.
const MoneyPlaces = model.MoneyPlaces

var hundred = decimal.NewFromInt(100)

// Line описывает строку расчёта с актуальной ценой товара.
type Line struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Amount возвращает стоимость строки.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals содержит итоги чека.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountedSubtotal decimal.Decimal `json:"discountedSubtotal"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`
}

// MarshalJSON выводит суммы с фиксированными двумя знаками после запятой.
func (t Totals) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Subtotal           string `json:"subtotal"`
		Discount           string `json:"discount"`
		DiscountedSubtotal string `json:"discountedSubtotal"`
		Tax                string `json:"tax"`
		Total              string `json:"total"`
	}{
		Subtotal:           model.FormatMoney(t.Subtotal),
		Discount:           model.FormatMoney(t.Discount),
		DiscountedSubtotal: model.FormatMoney(t.DiscountedSubtotal),
		Tax:                model.FormatMoney(t.Tax),
		Total:              model.FormatMoney(t.Total),
	})
}

// Calculate рассчитывает итоги. coupon может быть nil, taxRate задаётся в процентах.
func Calculate(lines []Line, coupon *model.Coupon, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Amount())
	}

	discount := Discount(subtotal, coupon)
	discounted := subtotal.Sub(discount)
	tax := discounted.Mul(taxRate.Div(hundred))

	return Totals{
		Subtotal:           subtotal,
		Discount:           discount,
		DiscountedSubtotal: discounted,
		Tax:                tax,
		Total:              discounted.Add(tax),
	}
}

// Discount возвращает скидку по купону, всегда в пределах [0, subtotal].
func Discount(subtotal decimal.Decimal, coupon *model.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch coupon.DiscountType {
	case model.DiscountFixed:
		d = coupon.DiscountValue
	default:
		d = subtotal.Mul(coupon.DiscountValue.Div(hundred))
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, subtotal)
}

// Convert пересчитывает все суммы по курсу валюты отображения.
func (t Totals) Convert(rate decimal.Decimal) Totals {
	return Totals{
		Subtotal:           t.Subtotal.Mul(rate),
		Discount:           t.Discount.Mul(rate),
		DiscountedSubtotal: t.DiscountedSubtotal.Mul(rate),
		Tax:                t.Tax.Mul(rate),
		Total:              t.Total.Mul(rate),
	}
}

// Rounded округляет суммы до MoneyPlaces знаков.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:           Round(t.Subtotal),
		Discount:           Round(t.Discount),
		DiscountedSubtotal: Round(t.DiscountedSubtotal),
		Tax:                Round(t.Tax),
		Total:              Round(t.Total),
	}
}

// Round округляет денежную сумму до MoneyPlaces знаков.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyPlaces)
}
