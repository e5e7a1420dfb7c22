package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/urbanpos/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleLines() []Line {
	return []Line{
		{ProductID: "a", UnitPrice: d("10.00"), Quantity: 2},
		{ProductID: "b", UnitPrice: d("5.00"), Quantity: 1},
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "%s = %s, want %s", field, got, want)
}

func TestCalculate_Examples(t *testing.T) {
	tests := []struct {
		name       string
		coupon     *model.Coupon
		discount   string
		discounted string
		tax        string
		total      string
	}{
		{
			name:       "no coupon",
			discount:   "0",
			discounted: "25",
			tax:        "2.5",
			total:      "27.5",
		},
		{
			name:       "fixed coupon",
			coupon:     &model.Coupon{DiscountType: model.DiscountFixed, DiscountValue: d("5")},
			discount:   "5",
			discounted: "20",
			tax:        "2",
			total:      "22",
		},
		{
			name:       "percentage coupon",
			coupon:     &model.Coupon{DiscountType: model.DiscountPercentage, DiscountValue: d("20")},
			discount:   "5",
			discounted: "20",
			tax:        "2",
			total:      "22",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(sampleLines(), tt.coupon, d("10"))
			assertMoney(t, "25", got.Subtotal, "subtotal")
			assertMoney(t, tt.discount, got.Discount, "discount")
			assertMoney(t, tt.discounted, got.DiscountedSubtotal, "discountedSubtotal")
			assertMoney(t, tt.tax, got.Tax, "tax")
			assertMoney(t, tt.total, got.Total, "total")
		})
	}
}

func TestCalculate_SubtotalIndependentOfOrder(t *testing.T) {
	lines := sampleLines()
	reversed := []Line{lines[1], lines[0]}

	a := Calculate(lines, nil, d("7.5"))
	b := Calculate(reversed, nil, d("7.5"))

	assert.True(t, a.Subtotal.Equal(b.Subtotal))
	assert.True(t, a.Total.Equal(b.Total))
}

func TestCalculate_NoFloatDrift(t *testing.T) {
	lines := make([]Line, 0, 10)
	for i := 0; i < 10; i++ {
		lines = append(lines, Line{ProductID: "x", UnitPrice: d("0.10"), Quantity: 1})
	}

	got := Calculate(lines, nil, decimal.Zero)
	assertMoney(t, "1", got.Subtotal, "subtotal")
}

func TestDiscount_Clamped(t *testing.T) {
	tests := []struct {
		name   string
		coupon *model.Coupon
		want   string
	}{
		{name: "fixed above subtotal", coupon: &model.Coupon{DiscountType: model.DiscountFixed, DiscountValue: d("40")}, want: "25"},
		{name: "percentage above hundred", coupon: &model.Coupon{DiscountType: model.DiscountPercentage, DiscountValue: d("150")}, want: "25"},
		{name: "negative value", coupon: &model.Coupon{DiscountType: model.DiscountFixed, DiscountValue: d("-3")}, want: "0"},
		{name: "nil coupon", coupon: nil, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertMoney(t, tt.want, Discount(d("25"), tt.coupon), "discount")
		})
	}
}

func TestCalculate_TotalIdentity(t *testing.T) {
	coupon := &model.Coupon{DiscountType: model.DiscountPercentage, DiscountValue: d("12.5")}
	lines := []Line{
		{UnitPrice: d("3.33"), Quantity: 3},
		{UnitPrice: d("19.99"), Quantity: 2},
	}
	rate := d("8.25")

	got := Calculate(lines, coupon, rate)
	net := got.Subtotal.Sub(got.Discount)
	want := net.Add(net.Mul(rate.Div(d("100"))))

	assert.True(t, got.Total.Equal(want), "total = %s, want %s", got.Total, want)
	assert.True(t, got.Discount.LessThanOrEqual(got.Subtotal))
}

func TestTotals_ConvertAndRound(t *testing.T) {
	got := Calculate(sampleLines(), nil, d("10")).Convert(d("0.333")).Rounded()

	assertMoney(t, "8.33", got.Subtotal, "subtotal")
	assertMoney(t, "0.83", got.Tax, "tax")
	assertMoney(t, "9.16", got.Total, "total")
}

func TestTotals_MarshalJSONFixedScale(t *testing.T) {
	raw, err := json.Marshal(Calculate(sampleLines(), nil, d("10")).Rounded())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"subtotal":"25.00","discount":"0.00","discountedSubtotal":"25.00","tax":"2.50","total":"27.50"}`,
		string(raw))

	var back Totals
	require.NoError(t, json.Unmarshal(raw, &back))
	assertMoney(t, "27.5", back.Total, "total")
}
