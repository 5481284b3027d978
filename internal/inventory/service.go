package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
	apperrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the stock ledger operations.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*models.StockLine, error)
	CheckAvailability(ctx context.Context, variantID uuid.UUID, warehouseID *uuid.UUID, quantity int) (*Availability, error)
	FindFulfillmentCandidate(ctx context.Context, variantID uuid.UUID, quantity int) (*models.StockLine, error)
	ReceiveShipment(ctx context.Context, input ReceiveShipmentInput) (*models.InboundShipment, error)
}

type service struct {
	repo     Repository
	recorder audit.Recorder
	tx       txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// AdjustInput describes a manual stock movement on one stock line.
type AdjustInput struct {
	VariantID   uuid.UUID
	WarehouseID uuid.UUID
	Delta       int
	EventType   enums.AuditEventType
	ActorID     *uuid.UUID
	Notes       string
}

// Availability is the read-only answer to an availability check.
// AvailableQuantity sums the matching lines; Backorderable reports
// whether any of them allows backorders.
type Availability struct {
	Available         bool
	AvailableQuantity int
	Backorderable     bool
}

// ReceiveShipmentInput posts received quantities for an inbound shipment.
// Quantities maps inbound item IDs to the count received in this posting.
type ReceiveShipmentInput struct {
	ShipmentID uuid.UUID
	Quantities map[uuid.UUID]int
	ActorID    *uuid.UUID
}

// NewService wires the inventory service.
func NewService(repo Repository, recorder audit.Recorder, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, recorder: recorder, tx: tx, logg: logg, now: time.Now}, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.StockLine, error) {
	if input.VariantID == uuid.Nil || input.WarehouseID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "variant id and warehouse id are required")
	}
	if input.Delta == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "delta must be non-zero")
	}
	if !input.EventType.IsValid() {
		return nil, apperrors.Newf(apperrors.CodeValidation, "invalid event type %q", input.EventType)
	}

	var updated *models.StockLine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.GetStockLineForUpdate(ctx, input.VariantID, input.WarehouseID)
		if errors.Is(err, ErrStockLineNotFound) {
			// An existing line already proves both references; only the
			// lazy-create path has to verify them.
			if _, err := repo.GetVariant(ctx, input.VariantID); errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "variant not found")
			} else if err != nil {
				return err
			}
			if _, err := repo.GetWarehouse(ctx, input.WarehouseID); errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "warehouse not found")
			} else if err != nil {
				return err
			}
			line = &models.StockLine{
				VariantID:   input.VariantID,
				WarehouseID: input.WarehouseID,
			}
			if err := repo.CreateStockLine(ctx, line); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		fromOnHand, fromReserved := line.OnHand, line.Reserved
		next := line.OnHand + input.Delta
		if next < 0 {
			return apperrors.Newf(apperrors.CodeStateConflict,
				"adjustment would drive on_hand negative (%d%+d)", line.OnHand, input.Delta)
		}
		line.OnHand = next
		if err := repo.SaveStockLine(ctx, line); err != nil {
			return err
		}

		if _, err := s.recorder.Record(ctx, tx, audit.RecordInput{
			EventType:    input.EventType,
			VariantID:    input.VariantID,
			WarehouseID:  input.WarehouseID,
			Quantity:     input.Delta,
			FromOnHand:   fromOnHand,
			ToOnHand:     line.OnHand,
			FromReserved: fromReserved,
			ToReserved:   line.Reserved,
			ActorID:      input.ActorID,
			Notes:        input.Notes,
		}); err != nil {
			return err
		}

		updated = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithVariantID(ctx, input.VariantID.String()),
		fmt.Sprintf("stock adjusted by %+d (on_hand=%d)", input.Delta, updated.OnHand))
	return updated, nil
}

// CheckAvailability sums available stock over the variant's lines in
// active warehouses, or over the single warehouse when one is given.
func (s *service) CheckAvailability(ctx context.Context, variantID uuid.UUID, warehouseID *uuid.UUID, quantity int) (*Availability, error) {
	if variantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "variant id is required")
	}
	if quantity <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "quantity must be positive")
	}

	var lines []models.StockLine
	if warehouseID != nil {
		line, err := s.repo.GetStockLine(ctx, variantID, *warehouseID)
		if err != nil && !errors.Is(err, ErrStockLineNotFound) {
			return nil, err
		}
		if line != nil {
			lines = append(lines, *line)
		}
	} else {
		var err error
		lines, err = s.repo.ListStockLinesByVariant(ctx, variantID)
		if err != nil {
			return nil, err
		}
	}

	result := &Availability{}
	for i := range lines {
		result.AvailableQuantity += lines[i].Available
		if lines[i].Backorderable {
			result.Backorderable = true
		}
	}
	result.Available = result.AvailableQuantity >= quantity
	return result, nil
}

// FindFulfillmentCandidate picks the warehouse best able to serve the
// requested quantity: highest availability first, backorderable lines as
// a fallback.
func (s *service) FindFulfillmentCandidate(ctx context.Context, variantID uuid.UUID, quantity int) (*models.StockLine, error) {
	if variantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "variant id is required")
	}
	if quantity <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "quantity must be positive")
	}

	lines, err := s.repo.ListStockLinesByVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		if lines[i].Available >= quantity {
			return &lines[i], nil
		}
	}
	for i := range lines {
		if lines[i].CanFulfill(quantity) {
			return &lines[i], nil
		}
	}
	return nil, apperrors.Newf(apperrors.CodeValidation,
		"insufficient stock: no warehouse can fulfill %d units of variant %s", quantity, variantID)
}

func (s *service) ReceiveShipment(ctx context.Context, input ReceiveShipmentInput) (*models.InboundShipment, error) {
	if input.ShipmentID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "shipment id is required")
	}
	if len(input.Quantities) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one received quantity is required")
	}
	for _, qty := range input.Quantities {
		if qty <= 0 {
			return nil, apperrors.New(apperrors.CodeValidation, "received quantities must be positive")
		}
	}

	var result *models.InboundShipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shipment, err := repo.GetShipment(ctx, input.ShipmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "shipment not found")
		}
		if err != nil {
			return err
		}
		if !shipment.Receivable() {
			return apperrors.Newf(apperrors.CodeStateConflict,
				"shipment %s is %s, not receivable", shipment.Reference, shipment.Status)
		}

		itemsByID := make(map[uuid.UUID]*models.InboundItem, len(shipment.Items))
		for i := range shipment.Items {
			itemsByID[shipment.Items[i].ID] = &shipment.Items[i]
		}

		for itemID, qty := range input.Quantities {
			item, ok := itemsByID[itemID]
			if !ok {
				return apperrors.Newf(apperrors.CodeValidation, "item %s does not belong to shipment", itemID)
			}
			if qty > item.Outstanding() {
				return apperrors.Newf(apperrors.CodeStateConflict,
					"item %s: receiving %d exceeds outstanding %d", itemID, qty, item.Outstanding())
			}

			if err := s.postReceipt(ctx, tx, repo, shipment, item, qty, input.ActorID); err != nil {
				return err
			}
			item.QuantityReceived += qty
			if err := repo.SaveShipmentItem(ctx, item); err != nil {
				return err
			}
		}

		outstanding := 0
		for i := range shipment.Items {
			outstanding += shipment.Items[i].Outstanding()
		}
		now := s.now().UTC()
		if outstanding == 0 {
			shipment.Status = enums.ShipmentStatusReceived
			shipment.ReceivedAt = &now
		} else {
			shipment.Status = enums.ShipmentStatusPartial
		}
		if err := repo.SaveShipment(ctx, shipment); err != nil {
			return err
		}

		result = shipment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, fmt.Sprintf("shipment %s received (status=%s)", result.Reference, result.Status))
	return result, nil
}

func (s *service) postReceipt(ctx context.Context, tx *gorm.DB, repo Repository, shipment *models.InboundShipment, item *models.InboundItem, qty int, actorID *uuid.UUID) error {
	line, err := repo.GetStockLineForUpdate(ctx, item.VariantID, shipment.WarehouseID)
	if errors.Is(err, ErrStockLineNotFound) {
		line = &models.StockLine{
			VariantID:   item.VariantID,
			WarehouseID: shipment.WarehouseID,
		}
		if err := repo.CreateStockLine(ctx, line); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	fromOnHand, fromReserved := line.OnHand, line.Reserved
	line.OnHand += qty
	if err := repo.SaveStockLine(ctx, line); err != nil {
		return err
	}

	_, err = s.recorder.Record(ctx, tx, audit.RecordInput{
		EventType:     enums.AuditEventReceipt,
		VariantID:     item.VariantID,
		WarehouseID:   shipment.WarehouseID,
		Quantity:      qty,
		FromOnHand:    fromOnHand,
		ToOnHand:      line.OnHand,
		FromReserved:  fromReserved,
		ToReserved:    line.Reserved,
		ReferenceType: "inbound_shipment",
		ReferenceID:   &shipment.ID,
		ActorID:       actorID,
	})
	return err
}
