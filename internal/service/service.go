// Package service реализует бизнес-логику кассового сервиса UrbanPOS.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/urbanpos/internal/cart"
	"github.com/mmeshcher/urbanpos/internal/checkout"
	"github.com/mmeshcher/urbanpos/internal/coupon"
	"github.com/mmeshcher/urbanpos/internal/currency"
	"github.com/mmeshcher/urbanpos/internal/model"
	"github.com/mmeshcher/urbanpos/internal/repository"
	"github.com/mmeshcher/urbanpos/internal/validation"
)

const (
	masterKeyID          = "master"
	dashboardMonths      = 6
	dashboardRecentSales = 5
)

var (
	// ErrInvalidCredentials возвращается при входе с неизвестным ключом доступа.
	ErrInvalidCredentials = errors.New("invalid access key")
	// ErrRateSyncDisabled возвращается, если синхронизация курсов не настроена.
	ErrRateSyncDisabled = errors.New("exchange rate sync is not configured")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	RunInTx(ctx context.Context, fn repository.TxFunc) error

	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) error
	UpdateProduct(ctx context.Context, p model.Product) error
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) error
	DeleteCategory(ctx context.Context, id string) error

	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	CreateCoupon(ctx context.Context, c model.Coupon) error
	UpdateCoupon(ctx context.Context, c model.Coupon) error
	DeleteCoupon(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error
	ListRates(ctx context.Context) ([]model.ExchangeRate, error)

	ListSales(ctx context.Context, since time.Time) ([]model.Sale, error)
	GetSale(ctx context.Context, id string) (*model.Sale, error)

	FindAccessKey(ctx context.Context, key string) (*model.AccessKey, error)
	GetAccessKey(ctx context.Context, id string) (*model.AccessKey, error)
	ListAccessKeys(ctx context.Context) ([]model.AccessKey, error)
	CreateAccessKey(ctx context.Context, k model.AccessKey) error
	DeleteAccessKey(ctx context.Context, id string) error
}

// RateSyncer описывает ручной запуск синхронизации курсов.
type RateSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// Order описывает корзину, присланную кассой для расчёта или проведения.
type Order struct {
	Lines           []cart.Line `json:"lines"`
	CouponCode      string      `json:"couponCode,omitempty"`
	DisplayCurrency string      `json:"displayCurrency,omitempty"`
	PaymentMethod   string      `json:"paymentMethod,omitempty"`
}

// CouponView дополняет купон вычисленным состоянием.
type CouponView struct {
	model.Coupon
	Status string `json:"status"`
}

// SalesFilter задаёт фильтр истории продаж.
type SalesFilter struct {
	Query string
	Since time.Time
}

// Service содержит бизнес-логику кассового сервиса.
type Service struct {
	repo        Repository
	coordinator *checkout.Coordinator
	syncer      RateSyncer
	masterKey   string
	now         func() time.Time
}

// NewService создаёт новый сервис. syncer может быть nil, если курсы не синхронизируются.
func NewService(repo Repository, coordinator *checkout.Coordinator, syncer RateSyncer, masterKey string) *Service {
	return &Service{
		repo:        repo,
		coordinator: coordinator,
		syncer:      syncer,
		masterKey:   masterKey,
		now:         time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Login проверяет ключ доступа и возвращает сессию кассира.
// Мастер-ключ из конфигурации даёт доступ ко всем разделам.
func (s *Service) Login(ctx context.Context, key string) (*model.Session, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidCredentials
	}

	if s.masterKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.masterKey)) == 1 {
		return masterSession(), nil
	}

	k, err := s.repo.FindAccessKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrAccessKeyNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return sessionFromKey(k), nil
}

// VerifySession сверяет сессию из cookie с текущим состоянием ключей доступа.
// Удалённый ключ закрывает все его сессии, а изменённые права применяются сразу.
func (s *Service) VerifySession(ctx context.Context, session model.Session) (*model.Session, error) {
	if session.KeyID == masterKeyID {
		if s.masterKey == "" {
			return nil, ErrInvalidCredentials
		}
		return masterSession(), nil
	}

	k, err := s.repo.GetAccessKey(ctx, session.KeyID)
	if err != nil {
		if errors.Is(err, repository.ErrAccessKeyNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return sessionFromKey(k), nil
}

func masterSession() *model.Session {
	return &model.Session{
		KeyID:       masterKeyID,
		TagName:     "Master",
		IsMaster:    true,
		Permissions: model.AllPages,
	}
}

func sessionFromKey(k *model.AccessKey) *model.Session {
	return &model.Session{
		KeyID:       k.ID,
		TagName:     k.TagName,
		IsMaster:    k.IsMasterKey,
		Permissions: k.Permissions,
	}
}

// ListProducts возвращает каталог товаров.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if err := validation.Product(p); err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct заменяет карточку товара.
func (s *Service) UpdateProduct(ctx context.Context, id string, p model.Product) (*model.Product, error) {
	if err := validation.Product(p); err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProduct удаляет товар.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

// ListCategories возвращает категории.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory добавляет категорию.
func (s *Service) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := validation.Category(c); err != nil {
		return nil, err
	}
	c.ID = uuid.NewString()
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory удаляет категорию.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.repo.DeleteCategory(ctx, id)
}

// ListCoupons возвращает купоны с их текущим состоянием.
func (s *Service) ListCoupons(ctx context.Context) ([]CouponView, error) {
	coupons, err := s.repo.ListCoupons(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]CouponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, CouponView{Coupon: c, Status: coupon.Status(c, now)})
	}
	return views, nil
}

// CreateCoupon создаёт купон с нулевым счётчиком использований.
func (s *Service) CreateCoupon(ctx context.Context, c model.Coupon) (*model.Coupon, error) {
	c.Code = coupon.NormalizeCode(c.Code)
	if err := validation.Coupon(c); err != nil {
		return nil, err
	}
	c.ID = uuid.NewString()
	c.UsageCount = 0
	if err := s.repo.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCoupon меняет параметры купона. Счётчик использований сохраняется хранилищем.
func (s *Service) UpdateCoupon(ctx context.Context, id string, c model.Coupon) (*model.Coupon, error) {
	c.Code = coupon.NormalizeCode(c.Code)
	if err := validation.Coupon(c); err != nil {
		return nil, err
	}
	c.ID = id
	if err := s.repo.UpdateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCoupon удаляет купон.
func (s *Service) DeleteCoupon(ctx context.Context, id string) error {
	return s.repo.DeleteCoupon(ctx, id)
}

// GetSettings возвращает настройки магазина.
func (s *Service) GetSettings(ctx context.Context) (*model.Settings, error) {
	return s.repo.GetSettings(ctx)
}

// SaveSettings сохраняет настройки магазина.
func (s *Service) SaveSettings(ctx context.Context, settings model.Settings) (*model.Settings, error) {
	settings.BaseCurrency = currency.Normalize(settings.BaseCurrency)
	if err := validation.Settings(settings); err != nil {
		return nil, err
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	return s.repo.GetSettings(ctx)
}

// ListRates возвращает сохранённые курсы валют.
func (s *Service) ListRates(ctx context.Context) ([]model.ExchangeRate, error) {
	return s.repo.ListRates(ctx)
}

// SyncRates синхронизирует курсы валют по запросу.
func (s *Service) SyncRates(ctx context.Context) (int, error) {
	if s.syncer == nil {
		return 0, ErrRateSyncDisabled
	}
	return s.syncer.Sync(ctx)
}

// ListAccessKeys возвращает ключи доступа.
func (s *Service) ListAccessKeys(ctx context.Context) ([]model.AccessKey, error) {
	return s.repo.ListAccessKeys(ctx)
}

// CreateAccessKey выдаёт новый ключ доступа.
func (s *Service) CreateAccessKey(ctx context.Context, k model.AccessKey) (*model.AccessKey, error) {
	k.Key = strings.TrimSpace(k.Key)
	if err := validation.AccessKey(k); err != nil {
		return nil, err
	}
	if s.masterKey != "" && k.Key == s.masterKey {
		return nil, repository.ErrAccessKeyExists
	}
	k.ID = uuid.NewString()
	k.CreatedAt = s.now().UTC()
	if err := s.repo.CreateAccessKey(ctx, k); err != nil {
		return nil, err
	}
	return &k, nil
}

// DeleteAccessKey отзывает ключ доступа.
func (s *Service) DeleteAccessKey(ctx context.Context, id string) error {
	return s.repo.DeleteAccessKey(ctx, id)
}

// ApplyCoupon проверяет купон для корзины. Счётчик использований не меняется.
func (s *Service) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	return coupon.Resolve(ctx, code, s.repo, s.now())
}

// Quote рассчитывает корзину по актуальным ценам без проведения продажи.
func (s *Service) Quote(ctx context.Context, order Order) (*checkout.Quote, error) {
	c, products, err := s.loadCart(ctx, order.Lines)
	if err != nil {
		return nil, err
	}

	var cp *model.Coupon
	if strings.TrimSpace(order.CouponCode) != "" {
		cp, err = s.ApplyCoupon(ctx, order.CouponCode)
		if err != nil {
			return nil, err
		}
	}

	settings, cur, err := s.currencyContext(ctx, order.DisplayCurrency)
	if err != nil {
		return nil, err
	}

	return checkout.NewQuote(c, products, cp, settings.DefaultTaxRate, cur)
}

// Settle проводит продажу от имени кассира сессии.
// Купон, цены и остатки перепроверяются внутри транзакции проведения.
func (s *Service) Settle(ctx context.Context, session model.Session, order Order) (*checkout.Receipt, error) {
	if len(order.Lines) == 0 {
		return nil, checkout.ErrEmptyCart
	}

	c, _, err := s.loadCart(ctx, order.Lines)
	if err != nil {
		return nil, err
	}

	settings, cur, err := s.currencyContext(ctx, order.DisplayCurrency)
	if err != nil {
		return nil, err
	}

	req := checkout.Request{
		Cart:          c,
		TaxRate:       settings.DefaultTaxRate,
		Session:       session,
		Currency:      cur,
		PaymentMethod: order.PaymentMethod,
	}
	if code := coupon.NormalizeCode(order.CouponCode); code != "" {
		req.Coupon = &model.Coupon{Code: code}
	}

	receipt, err := s.coordinator.Settle(ctx, req)
	if err != nil {
		return nil, err
	}
	receipt.StoreName = settings.StoreName
	receipt.FooterMessage = settings.ReceiptFooterMessage
	return receipt, nil
}

func (s *Service) loadCart(ctx context.Context, lines []cart.Line) (cart.Cart, map[string]model.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return cart.Cart{}, nil, fmt.Errorf("load products: %w", err)
	}

	c, err := cart.New(lines, products)
	if err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			return cart.Cart{}, nil, repository.ErrProductNotFound
		}
		return cart.Cart{}, nil, err
	}
	return c, products, nil
}

func (s *Service) currencyContext(ctx context.Context, display string) (*model.Settings, currency.Context, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, currency.Context{}, fmt.Errorf("get settings: %w", err)
	}

	rates, err := s.repo.ListRates(ctx)
	if err != nil {
		return nil, currency.Context{}, fmt.Errorf("list rates: %w", err)
	}
	table := make(map[string]decimal.Decimal, len(rates))
	for _, r := range rates {
		table[r.Code] = r.Rate
	}

	return settings, currency.NewContext(display, settings.BaseCurrency, table), nil
}

// ListSales возвращает историю продаж, новые первыми.
// Query ищет без учёта регистра по номеру транзакции, кассиру и купону.
func (s *Service) ListSales(ctx context.Context, filter SalesFilter) ([]model.Sale, error) {
	sales, err := s.repo.ListSales(ctx, filter.Since)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	if q == "" {
		return sales, nil
	}

	res := make([]model.Sale, 0, len(sales))
	for _, sale := range sales {
		if strings.Contains(strings.ToLower(sale.ID), q) ||
			strings.Contains(strings.ToLower(sale.CashierName), q) ||
			strings.Contains(strings.ToLower(sale.AppliedCoupon), q) {
			res = append(res, sale)
		}
	}
	return res, nil
}

// GetSale возвращает продажу по номеру транзакции.
func (s *Service) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// Dashboard собирает сводные показатели магазина.
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardSummary, error) {
	sales, err := s.repo.ListSales(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	monthly := make([]model.MonthlyRevenue, dashboardMonths)
	index := make(map[string]int, dashboardMonths)
	for i := range dashboardMonths {
		month := current.AddDate(0, i-dashboardMonths+1, 0).Format("2006-01")
		monthly[i] = model.MonthlyRevenue{Month: month, Total: decimal.Zero}
		index[month] = i
	}

	summary := &model.DashboardSummary{
		TotalRevenue:  decimal.Zero,
		TotalSales:    len(sales),
		TotalProducts: len(products),
		Monthly:       monthly,
		RecentSales:   []model.Sale{},
		LowStock:      []model.Product{},
	}

	for _, sale := range sales {
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.TotalAmount)
		if i, ok := index[sale.SaleDate.UTC().Format("2006-01")]; ok {
			monthly[i].Total = monthly[i].Total.Add(sale.TotalAmount)
		}
	}

	recent := min(dashboardRecentSales, len(sales))
	summary.RecentSales = append(summary.RecentSales, sales[:recent]...)

	for _, p := range products {
		if p.LowStock() {
			summary.LowStock = append(summary.LowStock, p)
		}
	}

	return summary, nil
}
