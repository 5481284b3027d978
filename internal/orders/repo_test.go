package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
)

func newRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, number string, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:    number,
		CustomerEmail:  "buyer@example.com",
		Currency:       "EUR",
		Subtotal:       decimal.RequireFromString("100.00"),
		ShippingAmount: decimal.RequireFromString("5.99"),
		TaxAmount:      decimal.RequireFromString("21.00"),
		Total:          decimal.RequireFromString("126.99"),
	}
	require.NoError(t, db.Create(order).Error)
	require.NoError(t, db.Model(order).UpdateColumn("created_at", createdAt).Error)
	order.CreatedAt = createdAt
	return order
}

func TestRepositoryGetByNumberPreloadsItems(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, "ORD-20260901-0001", time.Now().UTC())
	item := models.OrderItem{
		OrderID:     order.ID,
		VariantID:   uuid.New(),
		WarehouseID: uuid.New(),
		SKU:         "SKU-1",
		VariantName: "Widget",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("50.00"),
	}
	require.NoError(t, repo.CreateItems(ctx, []models.OrderItem{item}))

	found, err := repo.GetByNumber(ctx, "ORD-20260901-0001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "SKU-1", found.Items[0].SKU)
	assert.True(t, found.Items[0].UnitPrice.Equal(decimal.RequireFromString("50.00")))
}

func TestRepositoryGetByNumberNotFound(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewRepository(db)

	_, err := repo.GetByNumber(context.Background(), "ORD-20260901-9999")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryCountCreatedBetween(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	today := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	seedOrder(t, db, "ORD-20260901-0001", today)
	seedOrder(t, db, "ORD-20260901-0002", today.Add(2*time.Hour))
	seedOrder(t, db, "ORD-20260831-0001", today.Add(-24*time.Hour))

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	count, err := repo.CountCreatedBetween(ctx, from, from.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
