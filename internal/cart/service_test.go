package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	pkgerrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedCart(t *testing.T, db *gorm.DB, expiresAt *time.Time, quantities ...int) *models.Cart {
	t.Helper()
	sessionID := uuid.NewString()
	cart := models.Cart{SessionID: &sessionID, ExpiresAt: expiresAt}
	for _, qty := range quantities {
		cart.Items = append(cart.Items, models.CartItem{VariantID: uuid.New(), Quantity: qty})
	}
	if err := db.Create(&cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return &cart
}

func TestGetForReservation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	cart := seedCart(t, db, &future, 2, 1)

	got, err := svc.GetForReservation(ctx, cart.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
}

func TestGetForReservationRejections(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	expired := seedCart(t, db, &past, 1)
	empty := seedCart(t, db, &future)

	tests := []struct {
		name string
		id   uuid.UUID
		code pkgerrors.Code
	}{
		{"missing cart", uuid.New(), pkgerrors.CodeNotFound},
		{"expired cart", expired.ID, pkgerrors.CodeStateConflict},
		{"empty cart", empty.ID, pkgerrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetForReservation(ctx, tc.id)
			if err == nil {
				t.Fatal("expected error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.code {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	stale := seedCart(t, db, &past, 1)
	seedCart(t, db, &future, 1)
	seedCart(t, db, nil, 1)

	removed, err := svc.CleanupExpired(ctx, 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 cart removed, got %d", removed)
	}

	var count int64
	db.Model(&models.Cart{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 carts left, got %d", count)
	}
	var itemCount int64
	db.Model(&models.CartItem{}).Where("cart_id = ?", stale.ID).Count(&itemCount)
	if itemCount != 0 {
		t.Fatalf("expired cart items should be gone, got %d", itemCount)
	}
}
