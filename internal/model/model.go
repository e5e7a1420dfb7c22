// Package model содержит доменные сущности кассового сервиса.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога. Цена указана в базовой валюте.
type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Description      string          `json:"description,omitempty"`
	ImageURL         string          `json:"imageUrl,omitempty"`
	Price            decimal.Decimal `json:"price"`
	StockQuantity    int             `json:"stockQuantity"`
	ReorderThreshold int             `json:"reorderThreshold"`
}

// LowStock сообщает, что остаток опустился до порога дозаказа.
func (p Product) LowStock() bool {
	return p.StockQuantity <= p.ReorderThreshold
}

// Category описывает категорию товаров.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DiscountType описывает способ расчёта скидки по купону.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon описывает купон на скидку.
type Coupon struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	ExpirationDate time.Time       `json:"expirationDate"`
	UsageLimit     int             `json:"usageLimit"`
	UsageCount     int             `json:"usageCount"`
	IsActive       bool            `json:"isActive"`
}

// ExchangeRate описывает курс валюты относительно базовой.
type ExchangeRate struct {
	Code        string          `json:"code"`
	Rate        decimal.Decimal `json:"rate"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Settings содержит настройки магазина. Запись единственная.
type Settings struct {
	StoreName            string          `json:"storeName"`
	StoreAddress         string          `json:"storeAddress"`
	StoreEmail           string          `json:"storeEmail"`
	DefaultTaxRate       decimal.Decimal `json:"defaultTaxRate"`
	ReceiptFooterMessage string          `json:"receiptFooterMessage"`
	BaseCurrency         string          `json:"baseCurrency"`
	LastCurrencySync     *time.Time      `json:"lastCurrencySync,omitempty"`
}

// DefaultSettings возвращает настройки, действующие до первого сохранения.
func DefaultSettings() Settings {
	return Settings{
		StoreName:      "UrbanPOS",
		DefaultTaxRate: decimal.Zero,
		BaseCurrency:   "USD",
	}
}

// SaleItem фиксирует позицию продажи с ценой на момент продажи.
type SaleItem struct {
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"priceAtTime"`
}

// Sale описывает завершённую продажу. Запись неизменяема.
type Sale struct {
	ID              string          `json:"id"`
	SaleDate        time.Time       `json:"saleDate"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	Items           []SaleItem      `json:"items"`
	AppliedCoupon   string          `json:"appliedCoupon,omitempty"`
	CashierID       string          `json:"cashierId"`
	CashierName     string          `json:"cashierName"`
	BaseCurrency    string          `json:"baseCurrency"`
	DisplayCurrency string          `json:"displayCurrency"`
	ConversionRate  decimal.Decimal `json:"conversionRate"`
}

// PagePermission идентифицирует раздел приложения, к которому выдаётся доступ.
type PagePermission string

const (
	PagePOS       PagePermission = "pos"
	PageDashboard PagePermission = "dashboard"
	PageSales     PagePermission = "sales"
	PageInventory PagePermission = "inventory"
	PageCoupons   PagePermission = "coupons"
	PageSettings  PagePermission = "settings"
)

// AllPages перечисляет все разделы приложения.
var AllPages = []PagePermission{PagePOS, PageDashboard, PageSales, PageInventory, PageCoupons, PageSettings}

// AccessKey описывает ключ доступа кассира.
type AccessKey struct {
	ID          string           `json:"id"`
	Key         string           `json:"key"`
	TagName     string           `json:"tagName"`
	IsMasterKey bool             `json:"isMasterKey"`
	Permissions []PagePermission `json:"permissions"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Session описывает авторизованного кассира.
type Session struct {
	KeyID       string           `json:"kid"`
	TagName     string           `json:"tag"`
	IsMaster    bool             `json:"master"`
	Permissions []PagePermission `json:"pages"`
}

// Allows проверяет доступ сессии к разделу.
func (s Session) Allows(page PagePermission) bool {
	if s.IsMaster {
		return true
	}
	for _, p := range s.Permissions {
		if p == page {
			return true
		}
	}
	return false
}

// MonthlyRevenue содержит выручку за календарный месяц.
type MonthlyRevenue struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// DashboardSummary содержит сводные показатели магазина.
type DashboardSummary struct {
	TotalRevenue  decimal.Decimal  `json:"totalRevenue"`
	TotalSales    int              `json:"totalSales"`
	TotalProducts int              `json:"totalProducts"`
	Monthly       []MonthlyRevenue `json:"monthly"`
	RecentSales   []Sale           `json:"recentSales"`
	LowStock      []Product        `json:"lowStock"`
}
