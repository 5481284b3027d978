package cron

import (
	"context"
	"fmt"

	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultReceiptBatch = 50

// InboundReceiptJobParams configure the inbound auto-receipt job.
type InboundReceiptJobParams struct {
	Logger    *logger.Logger
	Shipments receivableShipmentLister
	Inventory shipmentReceiver
	BatchSize int
}

type receivableShipmentLister interface {
	ListReceivableShipments(ctx context.Context, limit int) ([]models.InboundShipment, error)
}

type shipmentReceiver interface {
	ReceiveShipment(ctx context.Context, input inventory.ReceiveShipmentInput) (*models.InboundShipment, error)
}

// NewInboundReceiptJob builds the job that books outstanding quantities on
// shipments that have arrived at the dock.
func NewInboundReceiptJob(params InboundReceiptJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shipments == nil {
		return nil, fmt.Errorf("shipment lister required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReceiptBatch
	}
	return &inboundReceiptJob{
		logg:      params.Logger,
		shipments: params.Shipments,
		inventory: params.Inventory,
		batch:     batch,
	}, nil
}

type inboundReceiptJob struct {
	logg      *logger.Logger
	shipments receivableShipmentLister
	inventory shipmentReceiver
	batch     int
}

func (j *inboundReceiptJob) Name() string { return "inbound-receipt" }

func (j *inboundReceiptJob) Run(ctx context.Context) error {
	shipments, err := j.shipments.ListReceivableShipments(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list receivable shipments: %w", err)
	}
	received := 0
	var errs []error
	for i := range shipments {
		shipment := &shipments[i]
		quantities := outstandingQuantities(shipment)
		if len(quantities) == 0 {
			continue
		}
		_, err := j.inventory.ReceiveShipment(ctx, inventory.ReceiveShipmentInput{
			ShipmentID: shipment.ID,
			Quantities: quantities,
		})
		if err != nil {
			logCtx := j.logg.WithField(ctx, "shipment_reference", shipment.Reference)
			j.logg.Error(logCtx, "auto receipt failed", err)
			errs = append(errs, fmt.Errorf("receive shipment %s: %w", shipment.Reference, err))
			continue
		}
		received++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(shipments),
		"received":   received,
	})
	j.logg.Info(logCtx, "inbound receipt sweep complete")
	return multierr.Combine(errs...)
}

func outstandingQuantities(shipment *models.InboundShipment) map[uuid.UUID]int {
	quantities := make(map[uuid.UUID]int)
	for i := range shipment.Items {
		item := &shipment.Items[i]
		if outstanding := item.Outstanding(); outstanding > 0 {
			quantities[item.ID] = outstanding
		}
	}
	return quantities
}
