package model

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces задаёт число знаков после запятой для денежных сумм на выходе.
const MoneyPlaces = 2

// FormatMoney возвращает сумму ровно с двумя знаками после запятой: 27.5 -> "27.50".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// FormatPrice возвращает цену минимум с двумя знаками, не отбрасывая более точные разряды.
func FormatPrice(d decimal.Decimal) string {
	places := int32(MoneyPlaces)
	if _, frac, ok := strings.Cut(d.String(), "."); ok && int32(len(frac)) > places {
		places = int32(len(frac))
	}
	return d.StringFixed(places)
}

func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		Price string `json:"price"`
	}{product(p), FormatPrice(p.Price)})
}

func (i SaleItem) MarshalJSON() ([]byte, error) {
	type saleItem SaleItem
	return json.Marshal(struct {
		saleItem
		PriceAtTime string `json:"priceAtTime"`
	}{saleItem(i), FormatPrice(i.PriceAtTime)})
}

func (s Sale) MarshalJSON() ([]byte, error) {
	type sale Sale
	return json.Marshal(struct {
		sale
		TotalAmount string `json:"totalAmount"`
	}{sale(s), FormatMoney(s.TotalAmount)})
}

func (m MonthlyRevenue) MarshalJSON() ([]byte, error) {
	type monthlyRevenue MonthlyRevenue
	return json.Marshal(struct {
		monthlyRevenue
		Total string `json:"total"`
	}{monthlyRevenue(m), FormatMoney(m.Total)})
}

func (d DashboardSummary) MarshalJSON() ([]byte, error) {
	type dashboardSummary DashboardSummary
	return json.Marshal(struct {
		dashboardSummary
		TotalRevenue string `json:"totalRevenue"`
	}{dashboardSummary(d), FormatMoney(d.TotalRevenue)})
}
