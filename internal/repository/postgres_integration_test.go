package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/urbanpos/internal/model"
)

// Тесты работают с отдельной базой: TEST_DATABASE_URI=postgres://... go test ./internal/repository/
func newIntegrationRepo(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	r, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func createTestProduct(t *testing.T, r *PostgresRepository, price string, stock int) string {
	t.Helper()

	id := uniqueID("p")
	require.NoError(t, r.CreateProduct(context.Background(), model.Product{
		ID:            id,
		Name:          "Notebook",
		Category:      "Stationery",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}))
	return id
}

func testSale(items ...model.SaleItem) *model.Sale {
	return &model.Sale{
		ID:              "TXN-" + uuid.NewString(),
		SaleDate:        time.Now().UTC().Truncate(time.Microsecond),
		TotalAmount:     decimal.RequireFromString("27.50"),
		PaymentMethod:   "card",
		Items:           items,
		CashierID:       "k1",
		CashierName:     "Till 1",
		BaseCurrency:    "USD",
		DisplayCurrency: "USD",
		ConversionRate:  decimal.NewFromInt(1),
	}
}

// sellOne списывает единицу товара так же, как проведение продажи.
func sellOne(ctx context.Context, r *PostgresRepository, productID string) error {
	return r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, []string{productID})
		if err != nil {
			return err
		}
		p := products[productID]
		if p.StockQuantity < 1 {
			return ErrInsufficientStock
		}
		if err := tx.DecrementStock(ctx, productID, 1); err != nil {
			return err
		}
		return tx.CreateSale(ctx, testSale(model.SaleItem{ProductID: productID, Quantity: 1, PriceAtTime: p.Price}))
	})
}

func TestPostgres_ConcurrentLastUnit(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	id := createTestProduct(t, r, "1.00", 1)

	const buyers = 4
	var (
		wg   sync.WaitGroup
		errs = make(chan error, buyers)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sellOne(ctx, r, id)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)

	p, err := r.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, p.StockQuantity)
}

func TestPostgres_LockOrderAvoidsDeadlock(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := createTestProduct(t, r, "1.00", 10)
	b := createTestProduct(t, r, "2.00", 10)

	// Кассы запрашивают товары в разном порядке, блокировки берутся в одном.
	orders := [][]string{{a, b}, {b, a}, {a, b}, {b, a}}
	var wg sync.WaitGroup
	errs := make(chan error, len(orders))
	for _, ids := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
				if _, err := tx.LockProducts(ctx, ids); err != nil {
					return err
				}
				for _, id := range ids {
					if err := tx.DecrementStock(ctx, id, 1); err != nil {
						return err
					}
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	products, err := r.GetProducts(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 6, products[a].StockQuantity)
	assert.Equal(t, 6, products[b].StockQuantity)
}

func TestPostgresTx_Guards(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	id := createTestProduct(t, r, "1.00", 2)

	err := r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DecrementStock(ctx, id, 3)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	err = r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.LockProducts(ctx, []string{id, uniqueID("missing")})
		return err
	})
	require.ErrorIs(t, err, ErrProductNotFound)

	err = r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.LockCouponByCode(ctx, uniqueID("NOPE"))
		return err
	})
	require.ErrorIs(t, err, ErrCouponNotFound)
}

func TestPostgresTx_CouponUsageLimit(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()

	code := uniqueID("ONCE")
	require.NoError(t, r.CreateCoupon(ctx, model.Coupon{
		ID:             uniqueID("c"),
		Code:           code,
		DiscountType:   model.DiscountPercentage,
		DiscountValue:  decimal.NewFromInt(10),
		ExpirationDate: time.Now().Add(time.Hour),
		UsageLimit:     1,
		IsActive:       true,
	}))

	redeem := func() error {
		return r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			c, err := tx.LockCouponByCode(ctx, code)
			if err != nil {
				return err
			}
			return tx.IncrementCouponUsage(ctx, c.ID)
		})
	}

	require.NoError(t, redeem())
	require.ErrorIs(t, redeem(), ErrCouponLimitExceeded)

	c, err := r.FindCouponByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount)
}

func TestPostgresTx_RollbackKeepsStock(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()
	id := createTestProduct(t, r, "1.00", 5)
	sale := testSale(model.SaleItem{ProductID: id, Quantity: 2, PriceAtTime: decimal.NewFromInt(1)})

	boom := errors.New("payment declined")
	err := r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DecrementStock(ctx, id, 2); err != nil {
			return err
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := r.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)

	_, err = r.GetSale(ctx, sale.ID)
	require.ErrorIs(t, err, ErrSaleNotFound)
}

func TestPostgresTx_CreateSaleItems(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()

	sale := testSale(
		model.SaleItem{ProductID: "p-a", Quantity: 2, PriceAtTime: decimal.RequireFromString("10.00")},
		model.SaleItem{ProductID: "p-b", Quantity: 1, PriceAtTime: decimal.RequireFromString("5.1250")},
	)
	sale.AppliedCoupon = "SAVE10"

	require.NoError(t, r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateSale(ctx, sale)
	}))

	got, err := r.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", got.AppliedCoupon)
	assert.True(t, got.TotalAmount.Equal(sale.TotalAmount))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "p-a", got.Items[0].ProductID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.Items[1].PriceAtTime.Equal(decimal.RequireFromString("5.125")))

	err = r.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateSale(ctx, sale)
	})
	require.ErrorIs(t, err, ErrSaleConflict)
}

func TestPostgres_ReplaceRatesKeepsDefaultSettings(t *testing.T) {
	r := newIntegrationRepo(t)
	ctx := context.Background()

	_, err := r.pool.Exec(ctx, `DELETE FROM settings`)
	require.NoError(t, err)

	syncedAt := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.ReplaceRates(ctx, []model.ExchangeRate{
		{Code: "EUR", Rate: decimal.RequireFromString("0.5"), LastUpdated: syncedAt},
	}, syncedAt))

	s, err := r.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings().StoreName, s.StoreName)
	assert.Equal(t, "USD", s.BaseCurrency)
	require.NotNil(t, s.LastCurrencySync)
	assert.True(t, s.LastCurrencySync.Equal(syncedAt))

	// Сохранённое название не перетирается синхронизацией.
	s.StoreName = "Corner Shop"
	require.NoError(t, r.SaveSettings(ctx, *s))
	require.NoError(t, r.ReplaceRates(ctx, nil, syncedAt.Add(time.Hour)))

	s, err = r.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Corner Shop", s.StoreName)
}
