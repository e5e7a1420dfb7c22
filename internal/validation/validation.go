// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/urbanpos/internal/model"
)

// ErrInvalid оборачивает все ошибки валидации.
var ErrInvalid = errors.New("validation failed")

var hundred = decimal.NewFromInt(100)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// IsValidCurrencyCode проверяет трёхбуквенный код валюты.
func IsValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, ch := range code {
		if !unicode.IsLetter(ch) || ch > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Product проверяет карточку товара.
func Product(p model.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("product name is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		return invalid("product category is required")
	}
	if p.Price.IsNegative() {
		return invalid("price must not be negative")
	}
	if p.StockQuantity < 0 {
		return invalid("stock quantity must not be negative")
	}
	if p.ReorderThreshold < 0 {
		return invalid("reorder threshold must not be negative")
	}
	return nil
}

// Category проверяет категорию.
func Category(c model.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("category name is required")
	}
	return nil
}

// Coupon проверяет параметры купона. Код ожидается уже нормализованным.
func Coupon(c model.Coupon) error {
	if len(c.Code) < 3 {
		return invalid("code must be at least 3 characters")
	}
	switch c.DiscountType {
	case model.DiscountPercentage:
		if c.DiscountValue.GreaterThan(hundred) {
			return invalid("percentage discount must not exceed 100")
		}
	case model.DiscountFixed:
	default:
		return invalid("unknown discount type %q", c.DiscountType)
	}
	if !c.DiscountValue.IsPositive() {
		return invalid("discount value must be positive")
	}
	if c.ExpirationDate.IsZero() {
		return invalid("expiration date is required")
	}
	if c.UsageLimit < 1 {
		return invalid("usage limit must be at least 1")
	}
	return nil
}

// Settings проверяет настройки магазина.
func Settings(s model.Settings) error {
	if s.DefaultTaxRate.IsNegative() || s.DefaultTaxRate.GreaterThan(hundred) {
		return invalid("tax rate must be between 0 and 100")
	}
	if !IsValidCurrencyCode(s.BaseCurrency) {
		return invalid("base currency must be a 3-letter code")
	}
	return nil
}

// AccessKey проверяет ключ доступа.
func AccessKey(k model.AccessKey) error {
	if strings.TrimSpace(k.Key) == "" {
		return invalid("key is required")
	}
	if strings.TrimSpace(k.TagName) == "" {
		return invalid("tag name is required")
	}
	for _, p := range k.Permissions {
		if !IsKnownPage(p) {
			return invalid("unknown permission %q", p)
		}
	}
	return nil
}

// IsKnownPage проверяет идентификатор раздела.
func IsKnownPage(p model.PagePermission) bool {
	for _, known := range model.AllPages {
		if p == known {
			return true
		}
	}
	return false
}
