package orders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/internal/cart"
	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	"github.com/mfeldmann/storehaus-backend/internal/pricing"
	"github.com/mfeldmann/storehaus-backend/internal/promotions"
	"github.com/mfeldmann/storehaus-backend/internal/reservation"
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
	db           *gorm.DB
	svc          Service
	reservations reservation.Service
	variant      *models.Variant
	warehouseID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.Variant{},
		&models.Cart{},
		&models.CartItem{},
		&models.Warehouse{},
		&models.StockLine{},
		&models.Reservation{},
		&models.InventoryAudit{},
		&models.PriceBook{},
		&models.PriceBookEntry{},
		&models.TaxRate{},
		&models.Campaign{},
		&models.CampaignRule{},
		&models.CampaignDiscount{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.NewNop()
	runner := &gormTxRunner{db: db}
	recorder, err := audit.NewRecorder(audit.NewRepository(db))
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	carts, err := cart.NewService(cart.NewRepository(db))
	if err != nil {
		t.Fatalf("carts: %v", err)
	}
	invRepo := inventory.NewRepository(db)
	reservations, err := reservation.NewService(reservation.Options{
		Repo:          reservation.NewRepository(db),
		InventoryRepo: invRepo,
		Carts:         carts,
		Recorder:      recorder,
		Tx:            runner,
		Logger:        logg,
		TTL:           15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("reservations: %v", err)
	}
	promoSvc, err := promotions.NewService(promotions.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("promotions: %v", err)
	}
	pricer, err := pricing.NewService(pricing.NewRepository(db), promoSvc, logg)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	svc, err := NewService(Options{
		Repo:         NewRepository(db),
		Reservations: reservations,
		Pricer:       pricer,
		Tx:           runner,
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}

	product := models.Product{Name: "widget", Brand: "acme", IsActive: true}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.Variant{
		ProductID: product.ID,
		SKU:       "WID-001",
		BasePrice: decimal.RequireFromString("20.00"),
		IsActive:  true,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	variant.Product = &product

	warehouse := models.Warehouse{Code: "WH-" + uuid.NewString()[:8], Name: "main", Country: "DE"}
	if err := db.Create(&warehouse).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}
	warehouseID := warehouse.ID
	line := models.StockLine{VariantID: variant.ID, WarehouseID: warehouseID, OnHand: 10}
	line.Recompute()
	if err := db.Create(&line).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	return &fixture{db: db, svc: svc, reservations: reservations, variant: &variant, warehouseID: warehouseID}
}

func (f *fixture) seedCart(t *testing.T, quantity int) *models.Cart {
	t.Helper()
	future := time.Now().Add(time.Hour)
	sessionID := uuid.NewString()
	c := models.Cart{
		SessionID: &sessionID,
		ExpiresAt: &future,
		Items:     []models.CartItem{{VariantID: f.variant.ID, Quantity: quantity}},
	}
	if err := f.db.Create(&c).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return &c
}

func (f *fixture) reserve(t *testing.T, quantity int) uuid.UUID {
	t.Helper()
	c := f.seedCart(t, quantity)
	got, err := f.reservations.CreateFromCart(context.Background(), reservation.CreateFromCartInput{
		CartID: c.ID, WarehouseID: &f.warehouseID,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return got.Token
}

func (f *fixture) stockLine(t *testing.T) *models.StockLine {
	t.Helper()
	var line models.StockLine
	if err := f.db.First(&line, "variant_id = ?", f.variant.ID).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	return &line
}

func customer() CustomerInput {
	return CustomerInput{CustomerEmail: "buyer@example.com"}
}

func TestCreateFromReservation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	token := f.reserve(t, 3)

	order, err := f.svc.CreateFromReservation(context.Background(), CreateFromReservationInput{
		Token: token, Customer: customer(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if !strings.HasPrefix(order.OrderNumber, "ORD-") || !strings.HasSuffix(order.OrderNumber, "-0001") {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", order.Status)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", order.Items)
	}
	if order.Items[0].SKU != "WID-001" || order.Items[0].VariantName != "widget" {
		t.Fatalf("snapshot missing: %+v", order.Items[0])
	}

	// 3 * 20.00 = 60.00, tax 21% = 12.60, shipping 5.99.
	if !order.Subtotal.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("unexpected subtotal %s", order.Subtotal)
	}
	if !order.TaxAmount.Equal(decimal.RequireFromString("12.60")) {
		t.Fatalf("unexpected tax %s", order.TaxAmount)
	}
	if !order.Total.Equal(decimal.RequireFromString("78.59")) {
		t.Fatalf("unexpected total %s", order.Total)
	}

	line := f.stockLine(t)
	if line.OnHand != 7 || line.Reserved != 0 {
		t.Fatalf("confirmation must consume stock: %+v", line)
	}

	var res models.Reservation
	if err := f.db.First(&res, "token = ?", token).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if res.Status != enums.ReservationStatusConfirmed || res.OrderID == nil || *res.OrderID != order.ID {
		t.Fatalf("reservation not linked: %+v", res)
	}
}

func TestCreateFromReservationExpiredToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	past := time.Now().UTC().Add(-time.Minute)
	stale := models.Reservation{
		VariantID: f.variant.ID, WarehouseID: f.warehouseID,
		Quantity: 2, Status: enums.ReservationStatusPending, ExpiresAt: past,
	}
	if err := f.db.Create(&stale).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.svc.CreateFromReservation(context.Background(), CreateFromReservationInput{
		Token: stale.Token, Customer: customer(),
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	f.db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 0 {
		t.Fatalf("failed confirmation must roll back the order, got %d", orderCount)
	}
}

func TestOrderNumbersIncrementWithinDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.reserve(t, 1)
	second := f.reserve(t, 1)

	orderA, err := f.svc.CreateFromReservation(context.Background(), CreateFromReservationInput{Token: first, Customer: customer()})
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	orderB, err := f.svc.CreateFromReservation(context.Background(), CreateFromReservationInput{Token: second, Customer: customer()})
	if err != nil {
		t.Fatalf("second order: %v", err)
	}
	if !strings.HasSuffix(orderA.OrderNumber, "-0001") || !strings.HasSuffix(orderB.OrderNumber, "-0002") {
		t.Fatalf("unexpected numbering: %s %s", orderA.OrderNumber, orderB.OrderNumber)
	}
}

func TestCreateDirectReservesThenConfirms(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.seedCart(t, 4)

	order, err := f.svc.CreateDirect(context.Background(), CreateDirectInput{
		CartID: c.ID, WarehouseID: &f.warehouseID, Customer: customer(),
	})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", order.Status)
	}
	if order.Items[0].WarehouseID != f.warehouseID || order.Items[0].Quantity != 4 {
		t.Fatalf("unexpected item: %+v", order.Items[0])
	}

	line := f.stockLine(t)
	if line.OnHand != 6 || line.Reserved != 0 {
		t.Fatalf("direct order must consume the held stock: %+v", line)
	}

	var res models.Reservation
	if err := f.db.First(&res, "variant_id = ?", f.variant.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if res.Status != enums.ReservationStatusConfirmed || res.OrderID == nil || *res.OrderID != order.ID {
		t.Fatalf("the intermediate reservation must be confirmed and linked: %+v", res)
	}

	var auditCount int64
	f.db.Model(&models.InventoryAudit{}).Where("event_type = ?", enums.AuditEventFulfillment).Count(&auditCount)
	if auditCount != 1 {
		t.Fatalf("expected fulfillment audit, got %d", auditCount)
	}
}

func TestCreateDirectInsufficientStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.seedCart(t, 99)

	_, err := f.svc.CreateDirect(context.Background(), CreateDirectInput{
		CartID: c.ID, WarehouseID: &f.warehouseID, Customer: customer(),
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	f.db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 0 {
		t.Fatalf("failed direct order must roll back, got %d", orderCount)
	}
	line := f.stockLine(t)
	if line.Reserved != 0 {
		t.Fatalf("no holds may survive a failed reserve, got reserved=%d", line.Reserved)
	}
}

func TestCreateDirectLeavesHoldsToSweepOnLateFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCart(t, 2)

	// Pricing rejects inactive variants, so the order step fails after
	// the reservation has already been taken.
	if err := f.db.Model(&models.Variant{}).Where("id = ?", f.variant.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate variant: %v", err)
	}

	_, err := f.svc.CreateDirect(ctx, CreateDirectInput{
		CartID: c.ID, WarehouseID: &f.warehouseID, Customer: customer(),
	})
	if err == nil {
		t.Fatal("expected failure in the order step")
	}

	var orderCount int64
	f.db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 0 {
		t.Fatalf("no order may exist, got %d", orderCount)
	}
	line := f.stockLine(t)
	if line.Reserved != 2 {
		t.Fatalf("the hold stays behind for the sweep, got reserved=%d", line.Reserved)
	}

	// The expiry sweep reclaims the dangling hold once its TTL passes.
	past := time.Now().UTC().Add(-time.Minute)
	if err := f.db.Model(&models.Reservation{}).
		Where("status = ?", enums.ReservationStatusPending).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("age holds: %v", err)
	}
	expired, err := f.reservations.ExpireOld(ctx, 10)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 reclaimed hold, got %d", expired)
	}
	line = f.stockLine(t)
	if line.Reserved != 0 {
		t.Fatalf("sweep must return the stock, got reserved=%d", line.Reserved)
	}
}

func TestGetOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	token := f.reserve(t, 1)
	created, err := f.svc.CreateFromReservation(context.Background(), CreateFromReservationInput{Token: token, Customer: customer()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := f.svc.GetOrder(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OrderNumber != created.OrderNumber || len(got.Items) != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}

	_, err = f.svc.GetOrder(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
