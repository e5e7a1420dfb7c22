package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/urbanpos/internal/model"
)

func TestIsValidCurrencyCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{name: "upper case", code: "USD", valid: true},
		{name: "lower case", code: "eur", valid: true},
		{name: "too short", code: "US", valid: false},
		{name: "digits", code: "U5D", valid: false},
		{name: "non ascii", code: "ДОЛ", valid: false},
		{name: "empty", code: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidCurrencyCode(tt.code)
			if got != tt.valid {
				t.Fatalf("IsValidCurrencyCode(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func validCoupon() model.Coupon {
	return model.Coupon{
		Code:           "SAVE10",
		DiscountType:   model.DiscountPercentage,
		DiscountValue:  decimal.NewFromInt(10),
		ExpirationDate: time.Now().Add(time.Hour),
		UsageLimit:     1,
	}
}

func TestCoupon(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *model.Coupon)
		valid  bool
	}{
		{name: "valid", mutate: func(c *model.Coupon) {}, valid: true},
		{name: "short code", mutate: func(c *model.Coupon) { c.Code = "AB" }},
		{name: "percentage above 100", mutate: func(c *model.Coupon) { c.DiscountValue = decimal.NewFromInt(101) }},
		{name: "fixed above 100", mutate: func(c *model.Coupon) {
			c.DiscountType = model.DiscountFixed
			c.DiscountValue = decimal.NewFromInt(150)
		}, valid: true},
		{name: "zero value", mutate: func(c *model.Coupon) { c.DiscountValue = decimal.Zero }},
		{name: "unknown type", mutate: func(c *model.Coupon) { c.DiscountType = "bogo" }},
		{name: "zero limit", mutate: func(c *model.Coupon) { c.UsageLimit = 0 }},
		{name: "no expiration", mutate: func(c *model.Coupon) { c.ExpirationDate = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCoupon()
			tt.mutate(&c)
			err := Coupon(c)
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	ok := model.Settings{DefaultTaxRate: decimal.NewFromInt(10), BaseCurrency: "USD"}
	if err := Settings(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := ok
	bad.DefaultTaxRate = decimal.NewFromInt(101)
	if err := Settings(bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for tax rate, got %v", err)
	}

	bad = ok
	bad.BaseCurrency = "DOLLAR"
	if err := Settings(bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for currency, got %v", err)
	}
}

func TestProductAndAccessKey(t *testing.T) {
	p := model.Product{Name: "Pen", Category: "Office", Price: decimal.NewFromInt(1)}
	if err := Product(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.StockQuantity = -1
	if err := Product(p); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative stock, got %v", err)
	}

	k := model.AccessKey{Key: "1111", TagName: "Till 1", Permissions: []model.PagePermission{model.PagePOS}}
	if err := AccessKey(k); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k.Permissions = append(k.Permissions, "admin")
	if err := AccessKey(k); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown page, got %v", err)
	}
}
