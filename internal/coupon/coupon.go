// Package coupon проверяет применимость купонов на скидку.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/urbanpos/internal/model"
	"github.com/mmeshcher/urbanpos/internal/repository"
)

var (
	// ErrInvalidCode возвращается, если купон с таким кодом не существует.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrInactive возвращается для отключённого купона.
	ErrInactive = errors.New("coupon is inactive")
	// ErrExpired возвращается для купона с истёкшим сроком действия.
	ErrExpired = errors.New("coupon has expired")
	// ErrLimitReached возвращается, если купон использован максимальное число раз.
	ErrLimitReached = errors.New("coupon usage limit reached")
)

// Registry описывает поиск купона по коду.
type Registry interface {
	FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
}

// NormalizeCode приводит код купона к каноническому виду.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check проверяет, что купон можно применить в момент now.
// Порядок проверок фиксирован: активность, срок действия, лимит.
func Check(c *model.Coupon, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.ExpirationDate.Before(now) {
		return ErrExpired
	}
	if c.UsageCount >= c.UsageLimit {
		return ErrLimitReached
	}
	return nil
}

// Resolve находит купон по коду и проверяет его применимость.
// Счётчик использований не меняется: он увеличивается только при проведении продажи.
func Resolve(ctx context.Context, code string, registry Registry, now time.Time) (*model.Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	c, err := registry.FindCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("find coupon: %w", err)
	}

	if err := Check(c, now); err != nil {
		return nil, err
	}
	return c, nil
}

// IsRejection сообщает, что ошибка является отказом в применении купона.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrLimitReached)
}

// Reason возвращает машиночитаемую причину отказа или пустую строку.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrLimitReached):
		return "limit_reached"
	}
	return ""
}

// Status возвращает подпись состояния купона для списка купонов.
func Status(c model.Coupon, now time.Time) string {
	switch Check(&c, now) {
	case ErrInactive:
		return "Inactive"
	case ErrExpired:
		return "Expired"
	case ErrLimitReached:
		return "Used Up"
	}
	return "Active"
}
