package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRateFor(t *testing.T) {
	rates := map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("0.92"),
		"BDT": decimal.RequireFromString("117.5"),
		"XXX": decimal.Zero,
	}

	tests := []struct {
		name   string
		target string
		base   string
		want   string
	}{
		{name: "base currency", target: "USD", base: "USD", want: "1"},
		{name: "base currency lower case", target: "usd", base: "USD", want: "1"},
		{name: "known rate", target: "EUR", base: "USD", want: "0.92"},
		{name: "known rate lower case", target: "bdt", base: "USD", want: "117.5"},
		{name: "missing rate falls back", target: "CHF", base: "USD", want: "1"},
		{name: "zero rate falls back", target: "XXX", base: "USD", want: "1"},
		{name: "empty target", target: "", base: "USD", want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RateFor(tt.target, tt.base, rates)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestSymbolFor(t *testing.T) {
	assert.Equal(t, "$", SymbolFor("USD"))
	assert.Equal(t, "€", SymbolFor("eur"))
	assert.Equal(t, "৳", SymbolFor("BDT"))
	assert.Equal(t, "CHF", SymbolFor("chf"))
}

func TestContextConvert(t *testing.T) {
	rates := map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.5")}

	c := NewContext("eur", "usd", rates)
	assert.Equal(t, "USD", c.Base)
	assert.Equal(t, "EUR", c.Display)
	assert.Equal(t, "€", c.Symbol)
	assert.True(t, c.Convert(decimal.RequireFromString("27.50")).Equal(decimal.RequireFromString("13.75")))

	base := NewContext("", "USD", rates)
	assert.Equal(t, "USD", base.Display)
	assert.True(t, base.Rate.Equal(decimal.NewFromInt(1)))
}
