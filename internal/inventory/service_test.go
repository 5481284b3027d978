package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/audit"
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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.Variant{},
		&models.Warehouse{},
		&models.StockLine{},
		&models.InventoryAudit{},
		&models.InboundShipment{},
		&models.InboundItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedWarehouse(t *testing.T, db *gorm.DB, active bool) uuid.UUID {
	t.Helper()
	wh := models.Warehouse{Code: "WH-" + uuid.NewString()[:8], Name: "warehouse", Country: "DE"}
	if err := db.Create(&wh).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}
	if !active {
		if err := db.Model(&wh).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate warehouse: %v", err)
		}
	}
	return wh.ID
}

func seedVariant(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	product := models.Product{Name: "widget", Brand: "acme", IsActive: true}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.Variant{
		ProductID: product.ID,
		SKU:       "SKU-" + uuid.NewString()[:8],
		BasePrice: decimal.RequireFromString("10.00"),
		IsActive:  true,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant.ID
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	recorder, err := audit.NewRecorder(audit.NewRepository(db))
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	svc, err := NewService(NewRepository(db), recorder, &gormTxRunner{db: db}, logger.NewNop())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestAdjustCreatesLineAndAudit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	variantID := seedVariant(t, db)
	warehouseID := seedWarehouse(t, db, true)

	line, err := svc.Adjust(ctx, AdjustInput{
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Delta:       10,
		EventType:   enums.AuditEventAdjustment,
		Notes:       "initial count",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if line.OnHand != 10 || line.Available != 10 {
		t.Fatalf("unexpected line state: %+v", line)
	}

	var rows []models.InventoryAudit
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	if rows[0].FromOnHand != 0 || rows[0].ToOnHand != 10 {
		t.Fatalf("unexpected audit counters: %+v", rows[0])
	}
}

func TestAdjustUnknownReferences(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	variantID := seedVariant(t, db)
	warehouseID := seedWarehouse(t, db, true)

	_, err := svc.Adjust(ctx, AdjustInput{
		VariantID:   uuid.New(),
		WarehouseID: warehouseID,
		Delta:       5,
		EventType:   enums.AuditEventAdjustment,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unknown variant should be not found, got %v", err)
	}

	_, err = svc.Adjust(ctx, AdjustInput{
		VariantID:   variantID,
		WarehouseID: uuid.New(),
		Delta:       5,
		EventType:   enums.AuditEventAdjustment,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unknown warehouse should be not found, got %v", err)
	}

	var count int64
	db.Model(&models.StockLine{}).Count(&count)
	if count != 0 {
		t.Fatalf("no stock line may be created for unknown references, got %d", count)
	}
}

func TestAdjustRejectsNegativeOnHand(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	variantID, warehouseID := uuid.New(), uuid.New()

	seed := models.StockLine{VariantID: variantID, WarehouseID: warehouseID, OnHand: 3}
	seed.Recompute()
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.Adjust(ctx, AdjustInput{
		VariantID:   variantID,
		WarehouseID: warehouseID,
		Delta:       -5,
		EventType:   enums.AuditEventWriteOff,
	})
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	var line models.StockLine
	if err := db.First(&line, "variant_id = ?", variantID).Error; err != nil {
		t.Fatalf("load line: %v", err)
	}
	if line.OnHand != 3 {
		t.Fatalf("rollback expected, got on_hand=%d", line.OnHand)
	}
	var auditCount int64
	db.Model(&models.InventoryAudit{}).Count(&auditCount)
	if auditCount != 0 {
		t.Fatalf("rolled-back movement left %d audit rows", auditCount)
	}
}

func TestCheckAvailabilitySumsActiveWarehouses(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	variantID := uuid.New()
	whA := seedWarehouse(t, db, true)
	whB := seedWarehouse(t, db, true)
	whClosed := seedWarehouse(t, db, false)

	for _, seed := range []models.StockLine{
		{VariantID: variantID, WarehouseID: whA, OnHand: 3},
		{VariantID: variantID, WarehouseID: whB, OnHand: 5, Reserved: 1, Backorderable: true},
		{VariantID: variantID, WarehouseID: whClosed, OnHand: 100},
	} {
		seed.Recompute()
		if err := db.Create(&seed).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := svc.CheckAvailability(ctx, variantID, nil, 7)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// 3 + 4 from the active warehouses; the closed one does not count.
	if !got.Available || got.AvailableQuantity != 7 || !got.Backorderable {
		t.Fatalf("unexpected availability: %+v", got)
	}

	got, err = svc.CheckAvailability(ctx, variantID, nil, 8)
	if err != nil {
		t.Fatalf("check short: %v", err)
	}
	if got.Available || got.AvailableQuantity != 7 || !got.Backorderable {
		t.Fatalf("short request must report the shortfall: %+v", got)
	}

	got, err = svc.CheckAvailability(ctx, variantID, &whA, 3)
	if err != nil {
		t.Fatalf("check pinned: %v", err)
	}
	if !got.Available || got.AvailableQuantity != 3 || got.Backorderable {
		t.Fatalf("pinned warehouse must count only its own line: %+v", got)
	}

	got, err = svc.CheckAvailability(ctx, uuid.New(), nil, 1)
	if err != nil {
		t.Fatalf("check unknown variant: %v", err)
	}
	if got.Available || got.AvailableQuantity != 0 {
		t.Fatalf("unknown variant should report nothing available, got %+v", got)
	}
}

func TestFindFulfillmentCandidatePrefersAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	variantID := uuid.New()
	whLow := seedWarehouse(t, db, true)
	whHigh := seedWarehouse(t, db, true)
	whBackorder := seedWarehouse(t, db, true)

	for _, seed := range []models.StockLine{
		{VariantID: variantID, WarehouseID: whLow, OnHand: 2},
		{VariantID: variantID, WarehouseID: whHigh, OnHand: 9},
		{VariantID: variantID, WarehouseID: whBackorder, Backorderable: true},
	} {
		seed.Recompute()
		if err := db.Create(&seed).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	line, err := svc.FindFulfillmentCandidate(ctx, variantID, 5)
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if line.WarehouseID != whHigh {
		t.Fatalf("expected warehouse with most stock, got %s", line.WarehouseID)
	}

	line, err = svc.FindFulfillmentCandidate(ctx, variantID, 20)
	if err != nil {
		t.Fatalf("candidate fallback: %v", err)
	}
	if line.WarehouseID != whBackorder {
		t.Fatalf("expected backorderable fallback, got %s", line.WarehouseID)
	}
}

func TestFindFulfillmentCandidateSkipsInactiveWarehouse(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	variantID := uuid.New()
	whClosed := seedWarehouse(t, db, false)
	whOpen := seedWarehouse(t, db, true)

	for _, seed := range []models.StockLine{
		{VariantID: variantID, WarehouseID: whClosed, OnHand: 50},
		{VariantID: variantID, WarehouseID: whOpen, OnHand: 5},
	} {
		seed.Recompute()
		if err := db.Create(&seed).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	line, err := svc.FindFulfillmentCandidate(ctx, variantID, 3)
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if line.WarehouseID != whOpen {
		t.Fatalf("inactive warehouse must never be picked, got %s", line.WarehouseID)
	}

	_, err = svc.FindFulfillmentCandidate(ctx, variantID, 20)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("closed warehouse stock must not fulfill, got %v", err)
	}
}

func TestFindFulfillmentCandidateNoStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.FindFulfillmentCandidate(context.Background(), uuid.New(), 1)
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReceiveShipment(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	warehouseID := uuid.New()
	variantA, variantB := uuid.New(), uuid.New()

	arrived := time.Now().UTC()
	shipment := models.InboundShipment{
		Reference:   "PO-1001",
		WarehouseID: warehouseID,
		Status:      enums.ShipmentStatusArrived,
		ArrivedAt:   &arrived,
		Items: []models.InboundItem{
			{VariantID: variantA, QuantityExpected: 10},
			{VariantID: variantB, QuantityExpected: 4},
		},
	}
	if err := db.Create(&shipment).Error; err != nil {
		t.Fatalf("seed shipment: %v", err)
	}

	got, err := svc.ReceiveShipment(ctx, ReceiveShipmentInput{
		ShipmentID: shipment.ID,
		Quantities: map[uuid.UUID]int{shipment.Items[0].ID: 10},
	})
	if err != nil {
		t.Fatalf("receive first item: %v", err)
	}
	if got.Status != enums.ShipmentStatusPartial {
		t.Fatalf("expected partial, got %s", got.Status)
	}

	var line models.StockLine
	if err := db.First(&line, "variant_id = ?", variantA).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if line.OnHand != 10 || line.Available != 10 {
		t.Fatalf("unexpected stock after receipt: %+v", line)
	}

	got, err = svc.ReceiveShipment(ctx, ReceiveShipmentInput{
		ShipmentID: shipment.ID,
		Quantities: map[uuid.UUID]int{shipment.Items[1].ID: 4},
	})
	if err != nil {
		t.Fatalf("receive second item: %v", err)
	}
	if got.Status != enums.ShipmentStatusReceived || got.ReceivedAt == nil {
		t.Fatalf("expected received shipment, got %+v", got)
	}

	var auditCount int64
	db.Model(&models.InventoryAudit{}).Where("event_type = ?", enums.AuditEventReceipt).Count(&auditCount)
	if auditCount != 2 {
		t.Fatalf("expected 2 receipt audit rows, got %d", auditCount)
	}
}

func TestReceiveShipmentOverOutstanding(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	shipment := models.InboundShipment{
		Reference:   "PO-1002",
		WarehouseID: uuid.New(),
		Status:      enums.ShipmentStatusArrived,
		Items: []models.InboundItem{
			{VariantID: uuid.New(), QuantityExpected: 2},
		},
	}
	if err := db.Create(&shipment).Error; err != nil {
		t.Fatalf("seed shipment: %v", err)
	}

	_, err := svc.ReceiveShipment(ctx, ReceiveShipmentInput{
		ShipmentID: shipment.ID,
		Quantities: map[uuid.UUID]int{shipment.Items[0].ID: 3},
	})
	if err == nil {
		t.Fatal("expected over-receipt rejection")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}
