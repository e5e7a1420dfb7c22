// Package repository содержит реализации хранилища данных кассы: PostgreSQL и in-memory.
package repository

import (
	"context"
	"errors"

	"github.com/mmeshcher/urbanpos/internal/model"
)

var (
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryExists возвращается при создании категории с существующим именем.
	ErrCategoryExists = errors.New("category already exists")
	// ErrCouponNotFound возвращается, если купон не найден.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExists возвращается при создании купона с существующим кодом.
	ErrCouponExists = errors.New("coupon code already exists")
	// ErrInsufficientStock возвращается, если остатка не хватает для списания.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCouponLimitExceeded возвращается, если лимит использований купона исчерпан.
	ErrCouponLimitExceeded = errors.New("coupon usage limit exceeded")
	// ErrSaleConflict возвращается при повторной записи продажи с тем же идентификатором.
	ErrSaleConflict = errors.New("sale already exists")
	// ErrSaleNotFound возвращается, если продажа не найдена.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrAccessKeyNotFound возвращается, если ключ доступа не найден.
	ErrAccessKeyNotFound = errors.New("access key not found")
	// ErrAccessKeyExists возвращается при создании дублирующего ключа доступа.
	ErrAccessKeyExists = errors.New("access key already exists")
)

// Tx описывает операции, выполняемые внутри одной атомарной транзакции проведения продажи.
// Все изменения применяются вместе при успешном завершении функции транзакции или не применяются вовсе.
type Tx interface {
	// LockProducts читает актуальные карточки товаров и блокирует их до конца транзакции.
	LockProducts(ctx context.Context, ids []string) (map[string]model.Product, error)
	// DecrementStock уменьшает остаток на qty, если остатка хватает.
	DecrementStock(ctx context.Context, productID string, qty int) error
	// LockCouponByCode читает купон по коду и блокирует его до конца транзакции.
	LockCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	// IncrementCouponUsage увеличивает счётчик использований, если лимит не исчерпан.
	IncrementCouponUsage(ctx context.Context, couponID string) error
	// CreateSale сохраняет запись о продаже.
	CreateSale(ctx context.Context, sale *model.Sale) error
}

// TxFunc выполняется внутри транзакции. Ошибка откатывает все изменения.
type TxFunc func(ctx context.Context, tx Tx) error
