// Package cart содержит модель корзины кассы.
//
// Корзина хранит только идентификатор товара и количество: цена всегда
// читается из актуальной карточки товара при расчёте и проведении продажи.
// Все операции возвращают новую корзину и не меняют исходную.
package cart

import (
	"errors"

	"github.com/mmeshcher/urbanpos/internal/model"
)

var (
	// ErrOutOfStock возвращается при добавлении товара с нулевым остатком.
	ErrOutOfStock = errors.New("out of stock")
	// ErrStockLimit возвращается, если количество в строке превысило бы остаток.
	ErrStockLimit = errors.New("stock limit reached")
	// ErrInvalidQuantity возвращается при добавлении неположительного количества.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrLineNotFound возвращается, если в корзине нет строки для товара.
	ErrLineNotFound = errors.New("no cart line for product")
)

// Line описывает строку корзины.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Cart содержит строки в порядке добавления, не более одной на товар.
type Cart struct {
	lines []Line
}

// New создаёт корзину из готовых строк, проверяя их против остатков.
// Строки с одинаковым товаром складываются.
func New(lines []Line, products map[string]model.Product) (Cart, error) {
	var c Cart
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return Cart{}, ErrLineNotFound
		}
		next, err := c.Add(p, l.Quantity)
		if err != nil {
			return Cart{}, err
		}
		c = next
	}
	return c, nil
}

// Lines возвращает копию строк корзины.
func (c Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len возвращает количество строк.
func (c Cart) Len() int {
	return len(c.lines)
}

// IsEmpty сообщает, что корзина пуста.
func (c Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Quantity возвращает количество товара в корзине.
func (c Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// Add добавляет qty единиц товара.
func (c Cart) Add(p model.Product, qty int) (Cart, error) {
	if qty < 1 {
		return c, ErrInvalidQuantity
	}
	if p.StockQuantity <= 0 {
		return c, ErrOutOfStock
	}

	i := c.index(p.ID)
	if i < 0 {
		if qty > p.StockQuantity {
			return c, ErrStockLimit
		}
		lines := append(c.Lines(), Line{ProductID: p.ID, Quantity: qty})
		return Cart{lines: lines}, nil
	}

	next := c.lines[i].Quantity + qty
	if next > p.StockQuantity {
		return c, ErrStockLimit
	}
	lines := c.Lines()
	lines[i].Quantity = next
	return Cart{lines: lines}, nil
}

// SetQuantity заменяет количество в строке. Неположительное количество удаляет строку.
func (c Cart) SetQuantity(p model.Product, qty int) (Cart, error) {
	if qty <= 0 {
		return c.Remove(p.ID), nil
	}
	i := c.index(p.ID)
	if i < 0 {
		return c, ErrLineNotFound
	}
	if qty > p.StockQuantity {
		return c, ErrStockLimit
	}
	lines := c.Lines()
	lines[i].Quantity = qty
	return Cart{lines: lines}, nil
}

// Remove удаляет строку товара.
func (c Cart) Remove(productID string) Cart {
	lines := make([]Line, 0, len(c.lines))
	for _, l := range c.lines {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	return Cart{lines: lines}
}

// Clear возвращает пустую корзину.
func (c Cart) Clear() Cart {
	return Cart{}
}

// ProductIDs возвращает идентификаторы товаров в порядке строк.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.lines))
	for _, l := range c.lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (c Cart) index(productID string) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
