// Package checkout проводит продажу: пересчитывает итоги по актуальным ценам
// и атомарно фиксирует продажу, списание остатков и использование купона.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/urbanpos/internal/cart"
	"github.com/mmeshcher/urbanpos/internal/coupon"
	"github.com/mmeshcher/urbanpos/internal/currency"
	"github.com/mmeshcher/urbanpos/internal/model"
	"github.com/mmeshcher/urbanpos/internal/pricing"
	"github.com/mmeshcher/urbanpos/internal/repository"
)

// DefaultPaymentMethod используется, если способ оплаты не передан.
const DefaultPaymentMethod = "card"

var (
	// ErrEmptyCart возвращается при попытке провести пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCommitFailed возвращается, если транзакция проведения не применилась.
	// Ошибка оборачивает причину: нехватку остатка, отказ купона, сбой хранилища.
	ErrCommitFailed = errors.New("payment failed")
)

// Store описывает хранилище с поддержкой атомарных транзакций.
type Store interface {
	RunInTx(ctx context.Context, fn repository.TxFunc) error
}

// Line описывает строку чека с ценой на момент расчёта.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Amount    decimal.Decimal `json:"amount"`
}

func (l Line) MarshalJSON() ([]byte, error) {
	type line Line
	return json.Marshal(struct {
		line
		UnitPrice string `json:"unitPrice"`
		Amount    string `json:"amount"`
	}{line(l), model.FormatPrice(l.UnitPrice), model.FormatPrice(l.Amount)})
}

// Quote содержит предварительный расчёт корзины.
type Quote struct {
	Lines    []Line           `json:"lines"`
	Totals   pricing.Totals   `json:"totals"`
	Display  pricing.Totals   `json:"display"`
	Coupon   string           `json:"coupon,omitempty"`
	Currency currency.Context `json:"currency"`
}

// Request содержит всё, что нужно для проведения продажи.
type Request struct {
	Cart          cart.Cart
	Coupon        *model.Coupon
	TaxRate       decimal.Decimal
	Session       model.Session
	Currency      currency.Context
	PaymentMethod string
}

// Receipt содержит неизменяемый снимок проведённой продажи для печати чека.
// Он не зависит от живой корзины, которую вызывающий очищает после успеха.
type Receipt struct {
	Sale          model.Sale       `json:"sale"`
	Lines         []Line           `json:"lines"`
	Totals        pricing.Totals   `json:"totals"`
	Display       pricing.Totals   `json:"display"`
	CouponCode    string           `json:"couponCode,omitempty"`
	Currency      currency.Context `json:"currency"`
	StoreName     string           `json:"storeName,omitempty"`
	FooterMessage string           `json:"footerMessage,omitempty"`
}

// Price рассчитывает строки и итоги корзины по переданным карточкам товаров.
func Price(c cart.Cart, products map[string]model.Product, cp *model.Coupon, taxRate decimal.Decimal) ([]Line, pricing.Totals, error) {
	cartLines := c.Lines()
	lines := make([]Line, 0, len(cartLines))
	priced := make([]pricing.Line, 0, len(cartLines))

	for _, cl := range cartLines {
		p, ok := products[cl.ProductID]
		if !ok {
			return nil, pricing.Totals{}, fmt.Errorf("%w: %s", repository.ErrProductNotFound, cl.ProductID)
		}
		pl := pricing.Line{ProductID: p.ID, UnitPrice: p.Price, Quantity: cl.Quantity}
		priced = append(priced, pl)
		lines = append(lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  cl.Quantity,
			UnitPrice: p.Price,
			Amount:    pl.Amount(),
		})
	}

	return lines, pricing.Calculate(priced, cp, taxRate), nil
}

// NewQuote строит предварительный расчёт с итогами в базовой валюте и валюте отображения.
func NewQuote(c cart.Cart, products map[string]model.Product, cp *model.Coupon, taxRate decimal.Decimal, cur currency.Context) (*Quote, error) {
	lines, totals, err := Price(c, products, cp, taxRate)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Lines:    lines,
		Totals:   totals.Rounded(),
		Display:  totals.Convert(cur.Rate).Rounded(),
		Currency: cur,
	}
	if cp != nil {
		q.Coupon = cp.Code
	}
	return q, nil
}

// Coordinator проводит продажи.
type Coordinator struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewCoordinator создаёт координатор проведения продаж.
func NewCoordinator(store Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  NewTransactionID,
	}
}

// NewTransactionID возвращает уникальный идентификатор транзакции.
// UUIDv7 упорядочен по времени и не совпадает у параллельных касс.
func NewTransactionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "TXN-" + strings.ToUpper(id.String())
}

// Settle проводит продажу одной транзакцией: создаёт запись о продаже,
// списывает остатки и увеличивает счётчик купона. Цены, остатки и купон
// перечитываются внутри транзакции. При любой ошибке ничего не применяется.
// Повторная попытка после ошибки выполняется только по действию пользователя.
func (c *Coordinator) Settle(ctx context.Context, req Request) (*Receipt, error) {
	if req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	now := c.now().UTC()
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}

	var receipt *Receipt
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		products, err := tx.LockProducts(ctx, req.Cart.ProductIDs())
		if err != nil {
			return err
		}

		for _, l := range req.Cart.Lines() {
			if l.Quantity > products[l.ProductID].StockQuantity {
				return fmt.Errorf("%w: %s", repository.ErrInsufficientStock, l.ProductID)
			}
		}

		var applied *model.Coupon
		if req.Coupon != nil {
			applied, err = tx.LockCouponByCode(ctx, coupon.NormalizeCode(req.Coupon.Code))
			if err != nil {
				if errors.Is(err, repository.ErrCouponNotFound) {
					return coupon.ErrInvalidCode
				}
				return err
			}
			if err := coupon.Check(applied, now); err != nil {
				return err
			}
		}

		lines, totals, err := Price(req.Cart, products, applied, req.TaxRate)
		if err != nil {
			return err
		}

		sale := &model.Sale{
			ID:              c.newID(),
			SaleDate:        now,
			TotalAmount:     pricing.Round(totals.Total),
			PaymentMethod:   paymentMethod,
			Items:           make([]model.SaleItem, 0, len(lines)),
			CashierID:       req.Session.KeyID,
			CashierName:     cashierName(req.Session),
			BaseCurrency:    req.Currency.Base,
			DisplayCurrency: req.Currency.Display,
			ConversionRate:  req.Currency.Rate,
		}
		for _, l := range lines {
			sale.Items = append(sale.Items, model.SaleItem{
				ProductID:   l.ProductID,
				Quantity:    l.Quantity,
				PriceAtTime: l.UnitPrice,
			})
		}
		if applied != nil {
			sale.AppliedCoupon = applied.Code
		}

		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}
		for _, l := range lines {
			if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if applied != nil {
			if err := tx.IncrementCouponUsage(ctx, applied.ID); err != nil {
				return err
			}
		}

		receipt = &Receipt{
			Sale:       *sale,
			Lines:      lines,
			Totals:     totals.Rounded(),
			Display:    totals.Convert(req.Currency.Rate).Rounded(),
			CouponCode: sale.AppliedCoupon,
			Currency:   req.Currency,
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("settlement failed",
			zap.Error(err),
			zap.String("cashier", req.Session.TagName),
			zap.Int("lines", req.Cart.Len()),
		)
		return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	c.logger.Info("sale settled",
		zap.String("transactionID", receipt.Sale.ID),
		zap.String("total", receipt.Sale.TotalAmount.StringFixed(pricing.MoneyPlaces)),
		zap.String("baseCurrency", receipt.Sale.BaseCurrency),
		zap.String("cashier", receipt.Sale.CashierName),
	)

	return receipt, nil
}

func cashierName(s model.Session) string {
	if s.TagName != "" {
		return s.TagName
	}
	return "Unknown"
}
