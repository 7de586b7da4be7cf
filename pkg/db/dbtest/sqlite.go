// Package dbtest provides an in-memory SQLite database carrying the marketplace schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE suppliers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_approved BOOLEAN NOT NULL DEFAULT 0,
		commission_rate NUMERIC NOT NULL DEFAULT 10 CHECK (commission_rate > 0 AND commission_rate <= 100),
		total_sales_cents INTEGER NOT NULL DEFAULT 0,
		total_commission_cents INTEGER NOT NULL DEFAULT 0,
		pending_payout_cents INTEGER NOT NULL DEFAULT 0 CHECK (pending_payout_cents >= 0),
		last_payout_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		size TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		subtotal_cents INTEGER NOT NULL,
		shipping_cents INTEGER NOT NULL,
		total_cents INTEGER NOT NULL,
		commission_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		gateway_order_ref TEXT NOT NULL UNIQUE,
		gateway_payment_ref TEXT,
		tracking_number TEXT,
		carrier TEXT,
		cancellation_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		paid_at DATETIME,
		shipped_at DATETIME,
		delivered_at DATETIME,
		cancelled_at DATETIME,
		CHECK (total_cents = subtotal_cents + shipping_cents)
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price_cents INTEGER NOT NULL,
		size TEXT,
		commission_rate NUMERIC NOT NULL,
		commission_cents INTEGER NOT NULL
	)`,
	`CREATE TABLE returns (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		supplier_id TEXT,
		reason TEXT NOT NULL,
		description TEXT,
		is_faulty BOOLEAN NOT NULL,
		return_charge_cents INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		faulty_verified BOOLEAN,
		refund_amount_cents INTEGER,
		created_at DATETIME,
		updated_at DATETIME,
		verified_at DATETIME
	)`,
	`CREATE TABLE payouts (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE supplier_ledger_events (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL,
		order_id TEXT,
		payout_id TEXT,
		type TEXT NOT NULL,
		sales_delta_cents INTEGER NOT NULL DEFAULT 0,
		commission_delta_cents INTEGER NOT NULL DEFAULT 0,
		payout_delta_cents INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_supplier_ledger_events_order_supplier_type
		ON supplier_ledger_events (order_id, supplier_id, type) WHERE order_id IS NOT NULL`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a fresh isolated database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// Supplier inserts an approved supplier with the given commission rate.
func Supplier(t *testing.T, conn *gorm.DB, rate string) models.Supplier {
	t.Helper()
	supplier := models.Supplier{
		UserID:         uuid.New(),
		Name:           "supplier-" + uuid.NewString()[:8],
		IsApproved:     true,
		CommissionRate: decimal.RequireFromString(rate),
	}
	if err := conn.Create(&supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return supplier
}

// Product inserts a product owned by supplierID.
func Product(t *testing.T, conn *gorm.DB, supplierID uuid.UUID, priceCents int64, stock int) models.Product {
	t.Helper()
	product := models.Product{
		SupplierID:    supplierID,
		Name:          "product-" + uuid.NewString()[:8],
		PriceCents:    priceCents,
		StockQuantity: stock,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// CartItem puts qty of productID in the user's cart.
func CartItem(t *testing.T, conn *gorm.DB, userID, productID uuid.UUID, qty int) models.CartItem {
	t.Helper()
	item := models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("create cart item: %v", err)
	}
	return item
}

// ReloadSupplier reads the current balances of a supplier.
func ReloadSupplier(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Supplier {
	t.Helper()
	var supplier models.Supplier
	if err := conn.First(&supplier, "id = ?", id).Error; err != nil {
		t.Fatalf("reload supplier: %v", err)
	}
	return supplier
}

// Order inserts an order for userID holding items, with totals derived from the items
// and a fixed shipping charge of 5000.
func Order(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.OrderStatus, items ...models.OrderItem) models.Order {
	t.Helper()
	var subtotal, commission int64
	for _, item := range items {
		subtotal += item.LineTotalCents()
		commission += item.CommissionCents
	}
	order := models.Order{
		UserID:          userID,
		Status:          status,
		SubtotalCents:   subtotal,
		ShippingCents:   5000,
		TotalCents:      subtotal + 5000,
		CommissionCents: commission,
		Currency:        "INR",
		GatewayOrderRef: "order_" + uuid.NewString(),
		Items:           items,
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

// Item builds an order line for product at its listed price with the given commission.
func Item(product models.Product, qty int, rate string, commissionCents int64) models.OrderItem {
	return models.OrderItem{
		ProductID:       product.ID,
		SupplierID:      product.SupplierID,
		Quantity:        qty,
		UnitPriceCents:  product.PriceCents,
		CommissionRate:  decimal.RequireFromString(rate),
		CommissionCents: commissionCents,
	}
}

// ReloadOrder reads an order with its items.
func ReloadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := conn.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

// ReloadProduct reads the current stock of a product.
func ReloadProduct(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product
}
