package ratesync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/urbanpos/internal/currency"
	"github.com/mmeshcher/urbanpos/internal/model"
)

// Source описывает поставщика курсов валют.
type Source interface {
	Latest(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// Store описывает хранилище курсов и настроек.
type Store interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	ReplaceRates(ctx context.Context, rates []model.ExchangeRate, syncedAt time.Time) error
}

// Syncer периодически обновляет таблицу курсов.
type Syncer struct {
	source Source
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewSyncer создаёт синхронизатор курсов.
func NewSyncer(source Source, store Store, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Sync загружает курсы относительно базовой валюты магазина и сохраняет их.
// Возвращает число сохранённых курсов.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("get settings: %w", err)
	}
	base := currency.Normalize(settings.BaseCurrency)

	latest, err := s.source.Latest(ctx, base)
	if err != nil {
		return 0, fmt.Errorf("fetch rates: %w", err)
	}

	syncedAt := s.now().UTC()
	rates := make([]model.ExchangeRate, 0, len(latest))
	for code, rate := range latest {
		code = currency.Normalize(code)
		// Базовая валюта имеет курс 1 неявно.
		if code == base || !rate.IsPositive() {
			continue
		}
		rates = append(rates, model.ExchangeRate{Code: code, Rate: rate, LastUpdated: syncedAt})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Code < rates[j].Code })

	if err := s.store.ReplaceRates(ctx, rates, syncedAt); err != nil {
		return 0, fmt.Errorf("store rates: %w", err)
	}

	return len(rates), nil
}

// Run синхронизирует курсы сразу и затем с периодом interval до отмены контекста.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.syncAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncAndLog(ctx)
		}
	}
}

func (s *Syncer) syncAndLog(ctx context.Context) {
	n, err := s.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("exchange rate sync failed", zap.Error(err))
		return
	}
	s.logger.Info("exchange rates synced", zap.Int("count", n))
}
