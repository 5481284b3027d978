package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
	"github.com/mfeldmann/storehaus-backend/pkg/pagination"
)

// Recorder defines operations that append stock movement records.
// Rows are written inside the caller's transaction so a rolled-back
// movement never leaves an audit trace.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.InventoryAudit, error)
	Trail(ctx context.Context, variantID, warehouseID uuid.UUID) ([]models.InventoryAudit, error)
	TrailPage(ctx context.Context, variantID, warehouseID uuid.UUID, params pagination.Params) ([]models.InventoryAudit, string, error)
}

type recorder struct {
	repo Repository
}

// RecordInput captures the before/after counters of a single stock movement.
type RecordInput struct {
	EventType     enums.AuditEventType
	VariantID     uuid.UUID
	WarehouseID   uuid.UUID
	Quantity      int
	FromOnHand    int
	ToOnHand      int
	FromReserved  int
	ToReserved    int
	ReferenceType string
	ReferenceID   *uuid.UUID
	ActorID       *uuid.UUID
	Notes         string
}

// NewRecorder wires an audit recorder with the provided repository.
func NewRecorder(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &recorder{repo: repo}, nil
}

func (r *recorder) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.InventoryAudit, error) {
	if input.VariantID == uuid.Nil {
		return nil, fmt.Errorf("variant id is required")
	}
	if input.WarehouseID == uuid.Nil {
		return nil, fmt.Errorf("warehouse id is required")
	}
	if !input.EventType.IsValid() {
		return nil, fmt.Errorf("invalid audit event type %q", input.EventType)
	}

	row := &models.InventoryAudit{
		EventType:     input.EventType,
		VariantID:     input.VariantID,
		WarehouseID:   input.WarehouseID,
		Quantity:      input.Quantity,
		FromOnHand:    input.FromOnHand,
		ToOnHand:      input.ToOnHand,
		FromReserved:  input.FromReserved,
		ToReserved:    input.ToReserved,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		ActorID:       input.ActorID,
		Notes:         input.Notes,
	}

	if err := r.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *recorder) Trail(ctx context.Context, variantID, warehouseID uuid.UUID) ([]models.InventoryAudit, error) {
	if variantID == uuid.Nil || warehouseID == uuid.Nil {
		return nil, fmt.Errorf("variant id and warehouse id are required")
	}
	return r.repo.ListByStockLine(ctx, variantID, warehouseID)
}

// TrailPage returns one newest-first page of the trail plus the cursor for
// the next page, empty when the trail is exhausted.
func (r *recorder) TrailPage(ctx context.Context, variantID, warehouseID uuid.UUID, params pagination.Params) ([]models.InventoryAudit, string, error) {
	if variantID == uuid.Nil || warehouseID == uuid.Nil {
		return nil, "", fmt.Errorf("variant id and warehouse id are required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := r.repo.ListPage(ctx, variantID, warehouseID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}
