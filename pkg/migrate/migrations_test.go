package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirectoryIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestSupplierMigrationGuardsBalances(t *testing.T) {
	content := readMigration(t, "create_suppliers_products_cart")
	assertContains(t, content,
		"CHECK (pending_payout_cents >= 0)",
		"commission_rate numeric(5,2) NOT NULL DEFAULT 10",
		"CHECK (commission_rate > 0 AND commission_rate <= 100)",
		"CHECK (stock_quantity >= 0)",
		"DROP TABLE IF EXISTS suppliers",
	)
}

func TestOrderMigrationEnforcesTotals(t *testing.T) {
	content := readMigration(t, "create_orders")
	assertContains(t, content,
		"CHECK (total_cents = subtotal_cents + shipping_cents)",
		"CONSTRAINT orders_gateway_order_ref_key UNIQUE (gateway_order_ref)",
		"commission_cents <= unit_price_cents * quantity",
	)
}

func TestReturnMigrationAllowsOnePerOrder(t *testing.T) {
	content := readMigration(t, "create_returns_payouts")
	assertContains(t, content,
		"CONSTRAINT returns_order_id_key UNIQUE (order_id)",
		"CHECK (amount_cents > 0)",
	)
}

func TestLedgerMigrationDeduplicatesOrderEntries(t *testing.T) {
	content := readMigration(t, "create_supplier_ledger_events")
	assertContains(t, content, "ON supplier_ledger_events (order_id, supplier_id, type)")
}
