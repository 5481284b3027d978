package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mfeldmann/storehaus-backend/pkg/migrate"
)

func TestStockMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_inventory.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no inventory migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS stock_lines",
		"CONSTRAINT uq_stock_variant_warehouse UNIQUE (variant_id, warehouse_id)",
		"CHECK (on_hand >= 0)",
		"CHECK (reserved >= 0)",
		"DROP TABLE IF EXISTS stock_lines",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Fatalf("migration missing %q", check)
		}
	}
}

func TestPricingMigrationEnforcesSingleScope(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_pricing.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no pricing migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	if !strings.Contains(string(data), "num_nonnulls(variant_id, product_id, category_id) = 1") {
		t.Fatalf("price_book_entries missing single-scope check")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
