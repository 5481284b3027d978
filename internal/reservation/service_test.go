package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/internal/cart"
	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
	pkgerrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db  *gorm.DB
	svc Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:reservation_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Cart{},
		&models.CartItem{},
		&models.Warehouse{},
		&models.StockLine{},
		&models.Reservation{},
		&models.InventoryAudit{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	recorder, err := audit.NewRecorder(audit.NewRepository(db))
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	carts, err := cart.NewService(cart.NewRepository(db))
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	svc, err := NewService(Options{
		Repo:          NewRepository(db),
		InventoryRepo: inventory.NewRepository(db),
		Carts:         carts,
		Recorder:      recorder,
		Tx:            &gormTxRunner{db: db},
		Logger:        logger.NewNop(),
		TTL:           15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &fixture{db: db, svc: svc}
}

func (f *fixture) seedStock(t *testing.T, variantID, warehouseID uuid.UUID, onHand, reserved int) {
	t.Helper()
	wh := models.Warehouse{ID: warehouseID, Code: "WH-" + warehouseID.String()[:8], Name: "warehouse", Country: "DE"}
	if err := f.db.Where("id = ?", warehouseID).FirstOrCreate(&wh).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}
	line := models.StockLine{VariantID: variantID, WarehouseID: warehouseID, OnHand: onHand, Reserved: reserved}
	line.Recompute()
	if err := f.db.Create(&line).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func (f *fixture) seedCart(t *testing.T, items ...models.CartItem) *models.Cart {
	t.Helper()
	future := time.Now().Add(time.Hour)
	sessionID := uuid.NewString()
	c := models.Cart{SessionID: &sessionID, ExpiresAt: &future, Items: items}
	if err := f.db.Create(&c).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return &c
}

func (f *fixture) stockLine(t *testing.T, variantID uuid.UUID) *models.StockLine {
	t.Helper()
	var line models.StockLine
	if err := f.db.First(&line, "variant_id = ?", variantID).Error; err != nil {
		t.Fatalf("load stock line: %v", err)
	}
	return &line
}

func TestCreateFromCartSharedToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantA, variantB := uuid.New(), uuid.New()
	f.seedStock(t, variantA, warehouseID, 10, 0)
	f.seedStock(t, variantB, warehouseID, 5, 0)

	c := f.seedCart(t,
		models.CartItem{VariantID: variantA, Quantity: 3},
		models.CartItem{VariantID: variantB, Quantity: 2},
	)

	got, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: c.ID, WarehouseID: &warehouseID})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(got.Reservations) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got.Reservations))
	}
	for _, row := range got.Reservations {
		if row.Token != got.Token {
			t.Fatalf("lines must share the token: %s vs %s", row.Token, got.Token)
		}
		if row.Status != enums.ReservationStatusPending {
			t.Fatalf("expected pending, got %s", row.Status)
		}
	}

	lineA := f.stockLine(t, variantA)
	if lineA.Reserved != 3 || lineA.OnHand != 10 || lineA.Available != 7 {
		t.Fatalf("unexpected stock a: %+v", lineA)
	}
	lineB := f.stockLine(t, variantB)
	if lineB.Reserved != 2 || lineB.Available != 3 {
		t.Fatalf("unexpected stock b: %+v", lineB)
	}
}

func TestCreateFromCartNoOversell(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 5, 0)

	first := f.seedCart(t, models.CartItem{VariantID: variantID, Quantity: 3})
	second := f.seedCart(t, models.CartItem{VariantID: variantID, Quantity: 4})

	if _, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: first.ID, WarehouseID: &warehouseID}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: second.ID, WarehouseID: &warehouseID})
	if err == nil {
		t.Fatal("second reserve should fail")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("insufficient stock must be a validation error, got %v", err)
	}

	line := f.stockLine(t, variantID)
	if line.Reserved != 3 {
		t.Fatalf("reserved should stay at 3, got %d", line.Reserved)
	}
}

func TestCreateFromCartCompensatesOnPartialFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantOK, variantShort := uuid.New(), uuid.New()
	f.seedStock(t, variantOK, warehouseID, 10, 0)
	f.seedStock(t, variantShort, warehouseID, 1, 0)

	c := f.seedCart(t,
		models.CartItem{VariantID: variantOK, Quantity: 4},
		models.CartItem{VariantID: variantShort, Quantity: 5},
	)

	_, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: c.ID, WarehouseID: &warehouseID})
	if err == nil {
		t.Fatal("expected failure on the short line")
	}

	line := f.stockLine(t, variantOK)
	if line.Reserved != 0 {
		t.Fatalf("first line should be compensated, reserved=%d", line.Reserved)
	}

	var rows []models.Reservation
	if err := f.db.Find(&rows).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	for _, row := range rows {
		if row.Status == enums.ReservationStatusPending {
			t.Fatalf("no pending rows should survive a failed run: %+v", row)
		}
	}
}

func TestCreateFromCartPicksBestWarehouse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	variantID := uuid.New()
	whSmall, whBig := uuid.New(), uuid.New()
	f.seedStock(t, variantID, whSmall, 2, 0)
	f.seedStock(t, variantID, whBig, 8, 0)

	c := f.seedCart(t, models.CartItem{VariantID: variantID, Quantity: 5})

	got, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: c.ID})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got.Reservations[0].WarehouseID != whBig {
		t.Fatalf("expected warehouse with most availability, got %s", got.Reservations[0].WarehouseID)
	}
}

func TestReleaseReturnsStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 10, 0)

	c := f.seedCart(t, models.CartItem{VariantID: variantID, Quantity: 4})
	got, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: c.ID, WarehouseID: &warehouseID})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	released, err := f.svc.Release(ctx, got.Token)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released, got %d", released)
	}

	line := f.stockLine(t, variantID)
	if line.Reserved != 0 || line.Available != 10 {
		t.Fatalf("stock not returned: %+v", line)
	}

	// A second release finds nothing pending.
	released, err = f.svc.Release(ctx, got.Token)
	if err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	if released != 0 {
		t.Fatalf("repeat release should be a no-op, got %d", released)
	}
}

func TestExpireOldReleasesExactly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 10, 7)

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	stale := models.Reservation{VariantID: variantID, WarehouseID: warehouseID, Quantity: 3, Status: enums.ReservationStatusPending, ExpiresAt: past}
	fresh := models.Reservation{VariantID: variantID, WarehouseID: warehouseID, Quantity: 4, Status: enums.ReservationStatusPending, ExpiresAt: future}
	if err := f.db.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	if err := f.db.Create(&fresh).Error; err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	expired, err := f.svc.ExpireOld(ctx, 10)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}

	line := f.stockLine(t, variantID)
	if line.Reserved != 4 {
		t.Fatalf("only the stale hold should be released, reserved=%d", line.Reserved)
	}

	var reloaded models.Reservation
	if err := f.db.First(&reloaded, "id = ?", stale.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.ReservationStatusExpired {
		t.Fatalf("expected expired status, got %s", reloaded.Status)
	}
}

func TestExpireOldClampsReserved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 10, 1)

	past := time.Now().UTC().Add(-time.Minute)
	stale := models.Reservation{VariantID: variantID, WarehouseID: warehouseID, Quantity: 5, Status: enums.ReservationStatusPending, ExpiresAt: past}
	if err := f.db.Create(&stale).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.svc.ExpireOld(ctx, 10); err != nil {
		t.Fatalf("expire: %v", err)
	}

	line := f.stockLine(t, variantID)
	if line.Reserved != 0 {
		t.Fatalf("reserved must clamp at zero, got %d", line.Reserved)
	}
}

func TestExpireOldCancelsOrphanedRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	orphan := models.Reservation{VariantID: uuid.New(), WarehouseID: uuid.New(), Quantity: 2, Status: enums.ReservationStatusPending, ExpiresAt: past}
	if err := f.db.Create(&orphan).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.svc.ExpireOld(ctx, 10); err != nil {
		t.Fatalf("expire: %v", err)
	}

	var reloaded models.Reservation
	if err := f.db.First(&reloaded, "id = ?", orphan.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.ReservationStatusCancelled {
		t.Fatalf("orphaned row should cancel, got %s", reloaded.Status)
	}
}

func TestConfirmInTxConsumesBothCounters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 10, 0)

	c := f.seedCart(t, models.CartItem{VariantID: variantID, Quantity: 4})
	got, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: c.ID, WarehouseID: &warehouseID})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	orderID := uuid.New()
	err = f.db.Transaction(func(tx *gorm.DB) error {
		confirmed, err := f.svc.ConfirmInTx(ctx, tx, got.Token, orderID)
		if err != nil {
			return err
		}
		if len(confirmed) != 1 {
			t.Fatalf("expected 1 confirmed line, got %d", len(confirmed))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	line := f.stockLine(t, variantID)
	if line.OnHand != 6 || line.Reserved != 0 || line.Available != 6 {
		t.Fatalf("confirmation must consume both counters: %+v", line)
	}

	var reloaded models.Reservation
	if err := f.db.First(&reloaded, "token = ?", got.Token).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != enums.ReservationStatusConfirmed || reloaded.OrderID == nil || *reloaded.OrderID != orderID {
		t.Fatalf("unexpected reservation state: %+v", reloaded)
	}
}

func TestConfirmInTxRejectsExpiredLine(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 10, 5)

	token := uuid.New()
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	for _, row := range []models.Reservation{
		{Token: token, VariantID: variantID, WarehouseID: warehouseID, Quantity: 2, Status: enums.ReservationStatusPending, ExpiresAt: future},
		{Token: token, VariantID: variantID, WarehouseID: warehouseID, Quantity: 3, Status: enums.ReservationStatusPending, ExpiresAt: past},
	} {
		seed := row
		if err := f.db.Create(&seed).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ConfirmInTx(ctx, tx, token, uuid.New())
		return err
	})
	if err == nil {
		t.Fatal("expected rejection when any line is expired")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	line := f.stockLine(t, variantID)
	if line.OnHand != 10 || line.Reserved != 5 {
		t.Fatalf("failed confirmation must not move counters: %+v", line)
	}
}

func TestAuditTrailForReservationLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantID := uuid.New()
	f.seedStock(t, variantID, warehouseID, 10, 0)

	c := f.seedCart(t, models.CartItem{VariantID: variantID, Quantity: 2})
	got, err := f.svc.CreateFromCart(ctx, CreateFromCartInput{CartID: c.ID, WarehouseID: &warehouseID})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := f.svc.Release(ctx, got.Token); err != nil {
		t.Fatalf("release: %v", err)
	}

	var types []string
	if err := f.db.Model(&models.InventoryAudit{}).Order("created_at ASC").Pluck("event_type", &types).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if len(types) != 2 || types[0] != string(enums.AuditEventReservation) || types[1] != string(enums.AuditEventRelease) {
		t.Fatalf("unexpected audit trail: %v", types)
	}
}
