package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/urbanpos/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	productColumns = `id, name, category, description, image_url, price, stock_quantity, reorder_threshold`
	couponColumns  = `id, code, discount_type, discount_value, expiration_date, usage_limit, usage_count, is_active`
	saleColumns    = `id, sale_date, total_amount, payment_method, applied_coupon, cashier_id, cashier_name,
		base_currency, display_currency, conversion_rate`
	accessKeyColumns = `id, key, tag_name, is_master, permissions, created_at`
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	backoff func() retry.Backoff
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool: pool,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет идемпотентные операции при временных ошибках БД.
// Проведение продажи через него не выполняется: повтор оплаты инициирует только пользователь.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// RunInTx выполняет fn в одной транзакции. Любая ошибка fn откатывает все изменения.
func (r *PostgresRepository) RunInTx(ctx context.Context, fn TxFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.ImageURL,
		&p.Price, &p.StockQuantity, &p.ReorderThreshold)
	return p, err
}

func scanCoupon(row rowScanner) (model.Coupon, error) {
	var (
		c            model.Coupon
		discountType string
	)
	err := row.Scan(&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.ExpirationDate,
		&c.UsageLimit, &c.UsageCount, &c.IsActive)
	c.DiscountType = model.DiscountType(discountType)
	return c, err
}

func scanAccessKey(row rowScanner) (model.AccessKey, error) {
	var (
		k     model.AccessKey
		pages []string
	)
	err := row.Scan(&k.ID, &k.Key, &k.TagName, &k.IsMasterKey, &pages, &k.CreatedAt)
	k.Permissions = make([]model.PagePermission, 0, len(pages))
	for _, p := range pages {
		k.Permissions = append(k.Permissions, model.PagePermission(p))
	}
	return k, err
}

// ListProducts возвращает все товары, отсортированные по категории и названию.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
		if err != nil {
			return fmt.Errorf("select products: %w", err)
		}
		defer rows.Close()

		products = products[:0]
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return fmt.Errorf("scan product: %w", err)
			}
			products = append(products, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	return products, err
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetProducts возвращает товары по набору идентификаторов. Отсутствующие товары пропускаются.
func (r *PostgresRepository) GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := make(map[string]model.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateProduct сохраняет новый товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Category, p.Description, p.ImageURL, p.Price, p.StockQuantity, p.ReorderThreshold,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct обновляет карточку товара.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, category = $3, description = $4, image_url = $5,
		     price = $6, stock_quantity = $7, reorder_threshold = $8
		 WHERE id = $1`,
		p.ID, p.Name, p.Category, p.Description, p.ImageURL, p.Price, p.StockQuantity, p.ReorderThreshold,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct удаляет товар.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListCategories возвращает категории по алфавиту.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateCategory сохраняет новую категорию.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c model.Category) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO categories (id, name, description) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCategoryExists, c.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// DeleteCategory удаляет категорию.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// ListCoupons возвращает все купоны.
func (r *PostgresRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	var res []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// FindCouponByCode возвращает купон по нормализованному коду.
func (r *PostgresRepository) FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return &c, nil
}

// CreateCoupon сохраняет новый купон.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c model.Coupon) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO coupons (`+couponColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.ExpirationDate, c.UsageLimit, c.UsageCount, c.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// UpdateCoupon обновляет параметры купона. Счётчик использований не меняется.
func (r *PostgresRepository) UpdateCoupon(ctx context.Context, c model.Coupon) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons
		 SET code = $2, discount_type = $3, discount_value = $4,
		     expiration_date = $5, usage_limit = $6, is_active = $7
		 WHERE id = $1`,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.ExpirationDate, c.UsageLimit, c.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
		}
		return fmt.Errorf("update coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// DeleteCoupon удаляет купон.
func (r *PostgresRepository) DeleteCoupon(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// GetSettings возвращает настройки магазина или значения по умолчанию, если они ещё не сохранены.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*model.Settings, error) {
	s := model.DefaultSettings()
	err := r.withRetry(ctx, func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx,
			`SELECT store_name, store_address, store_email, default_tax_rate,
			        receipt_footer_message, base_currency, last_currency_sync
			 FROM settings WHERE id = 1`,
		).Scan(&s.StoreName, &s.StoreAddress, &s.StoreEmail, &s.DefaultTaxRate,
			&s.ReceiptFooterMessage, &s.BaseCurrency, &s.LastCurrencySync)
		if errors.Is(err, pgx.ErrNoRows) {
			s = model.DefaultSettings()
			return nil
		}
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings сохраняет настройки магазина. Время синхронизации курсов не меняется.
func (r *PostgresRepository) SaveSettings(ctx context.Context, s model.Settings) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO settings (id, store_name, store_address, store_email, default_tax_rate,
			                       receipt_footer_message, base_currency)
			 VALUES (1, $1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			     store_name = EXCLUDED.store_name,
			     store_address = EXCLUDED.store_address,
			     store_email = EXCLUDED.store_email,
			     default_tax_rate = EXCLUDED.default_tax_rate,
			     receipt_footer_message = EXCLUDED.receipt_footer_message,
			     base_currency = EXCLUDED.base_currency`,
			s.StoreName, s.StoreAddress, s.StoreEmail, s.DefaultTaxRate, s.ReceiptFooterMessage, s.BaseCurrency,
		)
		if err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}

// ListRates возвращает сохранённые курсы валют.
func (r *PostgresRepository) ListRates(ctx context.Context) ([]model.ExchangeRate, error) {
	var res []model.ExchangeRate
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT code, rate, last_updated FROM exchange_rates ORDER BY code`)
		if err != nil {
			return fmt.Errorf("select rates: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var er model.ExchangeRate
			if err := rows.Scan(&er.Code, &er.Rate, &er.LastUpdated); err != nil {
				return fmt.Errorf("scan rate: %w", err)
			}
			res = append(res, er)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	return res, err
}

// ReplaceRates сохраняет курсы и время синхронизации одной транзакцией.
func (r *PostgresRepository) ReplaceRates(ctx context.Context, rates []model.ExchangeRate, syncedAt time.Time) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		batch := &pgx.Batch{}
		for _, er := range rates {
			batch.Queue(
				`INSERT INTO exchange_rates (code, rate, last_updated) VALUES ($1, $2, $3)
				 ON CONFLICT (code) DO UPDATE SET rate = EXCLUDED.rate, last_updated = EXCLUDED.last_updated`,
				er.Code, er.Rate, er.LastUpdated,
			)
		}
		// Если настройки ещё не сохранялись, строка создаётся со значениями по умолчанию.
		defaults := model.DefaultSettings()
		batch.Queue(
			`INSERT INTO settings (id, store_name, default_tax_rate, base_currency, last_currency_sync)
			 VALUES (1, $1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET last_currency_sync = EXCLUDED.last_currency_sync`,
			defaults.StoreName, defaults.DefaultTaxRate, defaults.BaseCurrency, syncedAt,
		)

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert rate: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ListSales возвращает продажи начиная с since, новые первыми.
func (r *PostgresRepository) ListSales(ctx context.Context, since time.Time) ([]model.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE sale_date >= $1 ORDER BY sale_date DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	var (
		sales []model.Sale
		ids   []string
	)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(sales) == 0 {
		return sales, nil
	}

	items, err := r.saleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}

	return sales, nil
}

// GetSale возвращает продажу по идентификатору транзакции.
func (r *PostgresRepository) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	items, err := r.saleItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	s.Items = items[id]

	return &s, nil
}

func (r *PostgresRepository) saleItems(ctx context.Context, saleIDs []string) (map[string][]model.SaleItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sale_id, product_id, quantity, price_at_time
		 FROM sale_items
		 WHERE sale_id = ANY($1)
		 ORDER BY sale_id, position`,
		saleIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]model.SaleItem, len(saleIDs))
	for rows.Next() {
		var (
			saleID string
			item   model.SaleItem
		)
		if err := rows.Scan(&saleID, &item.ProductID, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		res[saleID] = append(res[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func scanSale(row rowScanner) (model.Sale, error) {
	var (
		s      model.Sale
		coupon *string
	)
	err := row.Scan(&s.ID, &s.SaleDate, &s.TotalAmount, &s.PaymentMethod, &coupon, &s.CashierID,
		&s.CashierName, &s.BaseCurrency, &s.DisplayCurrency, &s.ConversionRate)
	if coupon != nil {
		s.AppliedCoupon = *coupon
	}
	return s, err
}

// FindAccessKey возвращает ключ доступа по строке ключа.
func (r *PostgresRepository) FindAccessKey(ctx context.Context, key string) (*model.AccessKey, error) {
	k, err := scanAccessKey(r.pool.QueryRow(ctx, `SELECT `+accessKeyColumns+` FROM access_keys WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccessKeyNotFound
		}
		return nil, fmt.Errorf("get access key: %w", err)
	}
	return &k, nil
}

// GetAccessKey возвращает ключ доступа по идентификатору.
func (r *PostgresRepository) GetAccessKey(ctx context.Context, id string) (*model.AccessKey, error) {
	k, err := scanAccessKey(r.pool.QueryRow(ctx, `SELECT `+accessKeyColumns+` FROM access_keys WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccessKeyNotFound
		}
		return nil, fmt.Errorf("get access key by id: %w", err)
	}
	return &k, nil
}

// ListAccessKeys возвращает ключи доступа, новые первыми.
func (r *PostgresRepository) ListAccessKeys(ctx context.Context) ([]model.AccessKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accessKeyColumns+` FROM access_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select access keys: %w", err)
	}
	defer rows.Close()

	var res []model.AccessKey
	for rows.Next() {
		k, err := scanAccessKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access key: %w", err)
		}
		res = append(res, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateAccessKey сохраняет новый ключ доступа.
func (r *PostgresRepository) CreateAccessKey(ctx context.Context, k model.AccessKey) error {
	pages := make([]string, 0, len(k.Permissions))
	for _, p := range k.Permissions {
		pages = append(pages, string(p))
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO access_keys (`+accessKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		k.ID, k.Key, k.TagName, k.IsMasterKey, pages, k.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccessKeyExists
		}
		return fmt.Errorf("insert access key: %w", err)
	}
	return nil
}

// DeleteAccessKey удаляет ключ доступа.
func (r *PostgresRepository) DeleteAccessKey(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccessKeyNotFound
	}
	return nil
}

// pgTx реализует Tx поверх транзакции pgx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	// Порядок блокировки по id исключает взаимные блокировки между кассами.
	rows, err := t.tx.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	res := make(map[string]model.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, id := range ids {
		if _, ok := res[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
	}
	return res, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET stock_quantity = stock_quantity - $2
		 WHERE id = $1 AND stock_quantity >= $2`,
		productID, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, productID)
	}
	return nil
}

func (t *pgTx) LockCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	c, err := scanCoupon(t.tx.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`,
		code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("lock coupon: %w", err)
	}
	return &c, nil
}

func (t *pgTx) IncrementCouponUsage(ctx context.Context, couponID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE coupons SET usage_count = usage_count + 1
		 WHERE id = $1 AND usage_count < usage_limit`,
		couponID,
	)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponLimitExceeded
	}
	return nil
}

func (t *pgTx) CreateSale(ctx context.Context, sale *model.Sale) error {
	var coupon *string
	if sale.AppliedCoupon != "" {
		coupon = &sale.AppliedCoupon
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO sales (`+saleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sale.ID, sale.SaleDate, sale.TotalAmount, sale.PaymentMethod, coupon, sale.CashierID,
		sale.CashierName, sale.BaseCurrency, sale.DisplayCurrency, sale.ConversionRate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrSaleConflict, sale.ID)
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	rows := make([][]any, 0, len(sale.Items))
	for i, item := range sale.Items {
		rows = append(rows, []any{sale.ID, i, item.ProductID, item.Quantity, item.PriceAtTime})
	}

	_, err = t.tx.CopyFrom(ctx,
		pgx.Identifier{"sale_items"},
		[]string{"sale_id", "position", "product_id", "quantity", "price_at_time"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert sale items: %w", err)
	}

	return nil
}
