package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/urbanpos/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI и в тестах.
// Транзакции сериализуются общим мьютексом и применяются копированием состояния.
type MemoryRepository struct {
	mu sync.Mutex

	products   map[string]model.Product
	categories map[string]model.Category
	coupons    map[string]model.Coupon
	rates      map[string]model.ExchangeRate
	settings   model.Settings
	sales      map[string]model.Sale
	accessKeys map[string]model.AccessKey
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products:   make(map[string]model.Product),
		categories: make(map[string]model.Category),
		coupons:    make(map[string]model.Coupon),
		rates:      make(map[string]model.ExchangeRate),
		settings:   model.DefaultSettings(),
		sales:      make(map[string]model.Sale),
		accessKeys: make(map[string]model.AccessKey),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// RunInTx выполняет fn над копией состояния и публикует её только при успехе.
func (r *MemoryRepository) RunInTx(ctx context.Context, fn TxFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{
		products: maps.Clone(r.products),
		coupons:  maps.Clone(r.coupons),
		sales:    maps.Clone(r.sales),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.products = tx.products
	r.coupons = tx.coupons
	r.sales = tx.sales
	return nil
}

func (r *MemoryRepository) ListProducts(_ context.Context) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := slices.Collect(maps.Values(r.products))
	sort.Slice(res, func(i, j int) bool {
		if res[i].Category != res[j].Category {
			return res[i].Category < res[j].Category
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

func (r *MemoryRepository) GetProduct(_ context.Context, id string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetProducts(_ context.Context, ids []string) (map[string]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (r *MemoryRepository) CreateProduct(_ context.Context, p model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[p.ID] = p
	return nil
}

func (r *MemoryRepository) UpdateProduct(_ context.Context, p model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[p.ID] = p
	return nil
}

func (r *MemoryRepository) DeleteProduct(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *MemoryRepository) ListCategories(_ context.Context) ([]model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := slices.Collect(maps.Values(r.categories))
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (r *MemoryRepository) CreateCategory(_ context.Context, c model.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: %s", ErrCategoryExists, c.Name)
		}
	}
	r.categories[c.ID] = c
	return nil
}

func (r *MemoryRepository) DeleteCategory(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(r.categories, id)
	return nil
}

func (r *MemoryRepository) ListCoupons(_ context.Context) ([]model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := slices.Collect(maps.Values(r.coupons))
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (r *MemoryRepository) FindCouponByCode(_ context.Context, code string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return findCoupon(r.coupons, code)
}

func (r *MemoryRepository) CreateCoupon(_ context.Context, c model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := findCoupon(r.coupons, c.Code); err == nil {
		return fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
	}
	r.coupons[c.ID] = c
	return nil
}

func (r *MemoryRepository) UpdateCoupon(_ context.Context, c model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.coupons[c.ID]
	if !ok {
		return ErrCouponNotFound
	}
	if other, err := findCoupon(r.coupons, c.Code); err == nil && other.ID != c.ID {
		return fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
	}
	c.UsageCount = existing.UsageCount
	r.coupons[c.ID] = c
	return nil
}

func (r *MemoryRepository) DeleteCoupon(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coupons[id]; !ok {
		return ErrCouponNotFound
	}
	delete(r.coupons, id)
	return nil
}

func findCoupon(coupons map[string]model.Coupon, code string) (*model.Coupon, error) {
	for _, c := range coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, ErrCouponNotFound
}

func (r *MemoryRepository) GetSettings(_ context.Context) (*model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.settings
	return &s, nil
}

func (r *MemoryRepository) SaveSettings(_ context.Context, s model.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.LastCurrencySync = r.settings.LastCurrencySync
	r.settings = s
	return nil
}

func (r *MemoryRepository) ListRates(_ context.Context) ([]model.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := slices.Collect(maps.Values(r.rates))
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (r *MemoryRepository) ReplaceRates(_ context.Context, rates []model.ExchangeRate, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, er := range rates {
		r.rates[er.Code] = er
	}
	r.settings.LastCurrencySync = &syncedAt
	return nil
}

func (r *MemoryRepository) ListSales(_ context.Context, since time.Time) ([]model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Sale
	for _, s := range r.sales {
		if !s.SaleDate.Before(since) {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SaleDate.After(res[j].SaleDate) })
	return res, nil
}

func (r *MemoryRepository) GetSale(_ context.Context, id string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sales[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) FindAccessKey(_ context.Context, key string) (*model.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.accessKeys {
		if k.Key == key {
			return &k, nil
		}
	}
	return nil, ErrAccessKeyNotFound
}

func (r *MemoryRepository) GetAccessKey(_ context.Context, id string) (*model.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.accessKeys[id]
	if !ok {
		return nil, ErrAccessKeyNotFound
	}
	return &k, nil
}

func (r *MemoryRepository) ListAccessKeys(_ context.Context) ([]model.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := slices.Collect(maps.Values(r.accessKeys))
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *MemoryRepository) CreateAccessKey(_ context.Context, k model.AccessKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accessKeys {
		if existing.Key == k.Key {
			return ErrAccessKeyExists
		}
	}
	r.accessKeys[k.ID] = k
	return nil
}

func (r *MemoryRepository) DeleteAccessKey(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accessKeys[id]; !ok {
		return ErrAccessKeyNotFound
	}
	delete(r.accessKeys, id)
	return nil
}

// memTx работает над копиями карт; исходное состояние меняется только в RunInTx.
type memTx struct {
	products map[string]model.Product
	coupons  map[string]model.Coupon
	sales    map[string]model.Sale
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]model.Product, error) {
	res := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		p, ok := t.products[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		res[id] = p
	}
	return res, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	p, ok := t.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if p.StockQuantity < qty {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, productID)
	}
	p.StockQuantity -= qty
	t.products[productID] = p
	return nil
}

func (t *memTx) LockCouponByCode(_ context.Context, code string) (*model.Coupon, error) {
	return findCoupon(t.coupons, code)
}

func (t *memTx) IncrementCouponUsage(_ context.Context, couponID string) error {
	c, ok := t.coupons[couponID]
	if !ok {
		return ErrCouponNotFound
	}
	if c.UsageCount >= c.UsageLimit {
		return ErrCouponLimitExceeded
	}
	c.UsageCount++
	t.coupons[couponID] = c
	return nil
}

func (t *memTx) CreateSale(_ context.Context, sale *model.Sale) error {
	if _, ok := t.sales[sale.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSaleConflict, sale.ID)
	}
	s := *sale
	s.Items = slices.Clone(sale.Items)
	t.sales[s.ID] = s
	return nil
}
