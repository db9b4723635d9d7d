package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteCatalog reads products, variants and discount codes from SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is its own database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func (c *SQLiteCatalog) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func (c *SQLiteCatalog) Resolve(ctx context.Context, productID, variantID string) (domain.ProductFacts, error) {
	query := `
		SELECT id, name, sku, price, stock, low_stock_threshold, max_per_order
		FROM products
		WHERE id = ? AND active = 1
	`

	var (
		facts     domain.ProductFacts
		price     string
		stock     int
		threshold int
		perOrder  int
	)
	err := c.db.QueryRowContext(ctx, query, productID).Scan(
		&facts.ProductID,
		&facts.Name,
		&facts.SKU,
		&price,
		&stock,
		&threshold,
		&perOrder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductFacts{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.ProductFacts{}, fmt.Errorf("failed to query product: %w", err)
	}

	facts.UnitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return domain.ProductFacts{}, fmt.Errorf("invalid price for product %s: %w", productID, err)
	}

	if variantID != "" {
		var (
			sku          string
			variantPrice sql.NullString
		)
		err := c.db.QueryRowContext(ctx, `
			SELECT id, name, sku, price, stock
			FROM variants
			WHERE id = ? AND product_id = ? AND active = 1
		`, variantID, productID).Scan(&facts.VariantID, &facts.VariantName, &sku, &variantPrice, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductFacts{}, domain.ErrVariantNotFound
		}
		if err != nil {
			return domain.ProductFacts{}, fmt.Errorf("failed to query variant: %w", err)
		}
		if sku != "" {
			facts.SKU = sku
		}
		if variantPrice.Valid {
			facts.UnitPrice, err = decimal.NewFromString(variantPrice.String)
			if err != nil {
				return domain.ProductFacts{}, fmt.Errorf("invalid price for variant %s: %w", variantID, err)
			}
		}
	}

	facts.InStock = stock > 0
	facts.LowStock = isLowStock(stock, threshold)
	facts.MaxQuantity = maxQuantity(stock, perOrder)
	return facts, nil
}

func (c *SQLiteCatalog) FindDiscount(ctx context.Context, code string) (domain.DiscountRule, error) {
	query := `
		SELECT code, type, value, minimum_amount, expires_at
		FROM discounts
		WHERE code = ? AND active = 1
	`

	var (
		rule      domain.DiscountRule
		ruleType  string
		value     string
		minimum   string
		expiresAt sql.NullString
	)
	err := c.db.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(
		&rule.Code,
		&ruleType,
		&value,
		&minimum,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DiscountRule{}, domain.ErrDiscountNotFound
	}
	if err != nil {
		return domain.DiscountRule{}, fmt.Errorf("failed to query discount: %w", err)
	}

	rule.Type = domain.DiscountType(ruleType)
	if rule.Value, err = decimal.NewFromString(value); err != nil {
		return domain.DiscountRule{}, fmt.Errorf("invalid value for discount %s: %w", code, err)
	}
	if rule.MinimumAmount, err = decimal.NewFromString(minimum); err != nil {
		return domain.DiscountRule{}, fmt.Errorf("invalid minimum for discount %s: %w", code, err)
	}
	if expiresAt.Valid && expiresAt.String != "" {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return domain.DiscountRule{}, fmt.Errorf("invalid expiry for discount %s: %w", code, err)
		}
		rule.ExpiresAt = &t
	}
	return rule, nil
}

func (c *SQLiteCatalog) SetStock(ctx context.Context, productID, variantID string, quantity int) error {
	var (
		res sql.Result
		err error
	)
	if variantID == "" {
		res, err = c.db.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, quantity, productID)
	} else {
		res, err = c.db.ExecContext(ctx, `UPDATE variants SET stock = ? WHERE id = ? AND product_id = ?`,
			quantity, variantID, productID)
	}
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	if n == 0 {
		if variantID == "" {
			return domain.ErrProductNotFound
		}
		return domain.ErrVariantNotFound
	}
	return nil
}
