package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/internal/cart"
	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
	apperrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
	"github.com/mfeldmann/storehaus-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the reservation lifecycle operations.
type Service interface {
	CreateFromCart(ctx context.Context, input CreateFromCartInput) (*Result, error)
	Release(ctx context.Context, token uuid.UUID) (int, error)
	ExpireOld(ctx context.Context, limit int) (int, error)
	ConfirmInTx(ctx context.Context, tx *gorm.DB, token, orderID uuid.UUID) ([]models.Reservation, error)
}

type service struct {
	repo          Repository
	inventoryRepo inventory.Repository
	carts         cart.Service
	recorder      audit.Recorder
	tx            txRunner
	logg          *logger.Logger
	metrics       *metrics.ReservationMetrics
	ttl           time.Duration
	sweepRetries  int
	sweepBackoff  time.Duration
	now           func() time.Time
}

// Options bundles the reservation service dependencies.
type Options struct {
	Repo          Repository
	InventoryRepo inventory.Repository
	Carts         cart.Service
	Recorder      audit.Recorder
	Tx            txRunner
	Logger        *logger.Logger
	Metrics       *metrics.ReservationMetrics
	TTL           time.Duration
	SweepRetries  int
	SweepBackoff  time.Duration
}

// CreateFromCartInput reserves every line of a cart under one token.
// WarehouseID pins all lines to one warehouse; when nil each line picks
// the warehouse with the most availability.
type CreateFromCartInput struct {
	CartID      uuid.UUID
	WarehouseID *uuid.UUID
}

// Result is the outcome of a successful reservation run.
type Result struct {
	Token        uuid.UUID
	Reservations []models.Reservation
	ExpiresAt    time.Time
}

const defaultTTL = 15 * time.Minute

// NewService wires the reservation service.
func NewService(opts Options) (Service, error) {
	if opts.Repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if opts.InventoryRepo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if opts.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if opts.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &service{
		repo:          opts.Repo,
		inventoryRepo: opts.InventoryRepo,
		carts:         opts.Carts,
		recorder:      opts.Recorder,
		tx:            opts.Tx,
		logg:          opts.Logger,
		metrics:       opts.Metrics,
		ttl:           ttl,
		sweepRetries:  opts.SweepRetries,
		sweepBackoff:  opts.SweepBackoff,
		now:           time.Now,
	}, nil
}

// CreateFromCart reserves stock for every cart line under a shared token.
// Each line runs in its own transaction so a lock is held only while its
// counters move. If any line fails, lines already reserved in this run
// are released before the error is returned.
func (s *service) CreateFromCart(ctx context.Context, input CreateFromCartInput) (*Result, error) {
	shoppingCart, err := s.carts.GetForReservation(ctx, input.CartID)
	if err != nil {
		s.metrics.IncRejected("cart_invalid")
		return nil, err
	}

	token := uuid.New()
	expiresAt := s.now().UTC().Add(s.ttl)
	ctx = s.logg.WithReservationToken(ctx, token.String())

	reserved := make([]models.Reservation, 0, len(shoppingCart.Items))
	for _, item := range shoppingCart.Items {
		row, err := s.reserveLine(ctx, token, item, input.WarehouseID, expiresAt)
		if err != nil {
			s.metrics.IncRejected("insufficient_stock")
			s.compensate(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, *row)
	}

	for i := range reserved {
		s.metrics.IncCreated(reserved[i].WarehouseID.String())
	}
	s.logg.Info(ctx, fmt.Sprintf("reserved %d lines until %s", len(reserved), expiresAt.Format(time.RFC3339)))
	return &Result{Token: token, Reservations: reserved, ExpiresAt: expiresAt}, nil
}

func (s *service) reserveLine(ctx context.Context, token uuid.UUID, item models.CartItem, warehouseID *uuid.UUID, expiresAt time.Time) (*models.Reservation, error) {
	var created *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invRepo := s.inventoryRepo.WithTx(tx)

		target := warehouseID
		if target == nil {
			candidate, err := s.pickWarehouse(ctx, invRepo, item.VariantID, item.Quantity)
			if err != nil {
				return err
			}
			target = &candidate
		}

		line, err := invRepo.GetStockLineForUpdate(ctx, item.VariantID, *target)
		if errors.Is(err, inventory.ErrStockLineNotFound) {
			return apperrors.Newf(apperrors.CodeValidation, "insufficient stock: no stock line for variant %s", item.VariantID)
		}
		if err != nil {
			return err
		}
		// Re-check under the lock: availability seen before the lock may
		// have been consumed by a concurrent reservation.
		if !line.CanFulfill(item.Quantity) {
			return apperrors.Newf(apperrors.CodeValidation,
				"insufficient stock for variant %s: want %d, available %d", item.VariantID, item.Quantity, line.Available)
		}

		fromOnHand, fromReserved := line.OnHand, line.Reserved
		line.Reserved += item.Quantity
		if err := invRepo.SaveStockLine(ctx, line); err != nil {
			return err
		}

		row := &models.Reservation{
			Token:       token,
			VariantID:   item.VariantID,
			WarehouseID: *target,
			Quantity:    item.Quantity,
			Status:      enums.ReservationStatusPending,
			ExpiresAt:   expiresAt,
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}

		if _, err := s.recorder.Record(ctx, tx, audit.RecordInput{
			EventType:     enums.AuditEventReservation,
			VariantID:     item.VariantID,
			WarehouseID:   *target,
			Quantity:      item.Quantity,
			FromOnHand:    fromOnHand,
			ToOnHand:      line.OnHand,
			FromReserved:  fromReserved,
			ToReserved:    line.Reserved,
			ReferenceType: "reservation",
			ReferenceID:   &row.ID,
		}); err != nil {
			return err
		}

		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) pickWarehouse(ctx context.Context, invRepo inventory.Repository, variantID uuid.UUID, quantity int) (uuid.UUID, error) {
	lines, err := invRepo.ListStockLinesByVariant(ctx, variantID)
	if err != nil {
		return uuid.Nil, err
	}
	for i := range lines {
		if lines[i].CanFulfill(quantity) {
			return lines[i].WarehouseID, nil
		}
	}
	return uuid.Nil, apperrors.Newf(apperrors.CodeValidation,
		"insufficient stock: no warehouse can fulfill %d units of variant %s", quantity, variantID)
}

// compensate releases lines reserved earlier in a failed run. Failures
// here are logged, not returned: the expiry sweep reclaims anything left.
func (s *service) compensate(ctx context.Context, reserved []models.Reservation) {
	for i := range reserved {
		row := reserved[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.releaseRow(ctx, tx, &row, enums.ReservationStatusCancelled, "reservation compensated")
		})
		if err != nil {
			s.logg.Error(ctx, fmt.Sprintf("compensating reservation %s", row.ID), err)
		}
	}
}

// Release cancels all pending lines under the token and returns the count.
func (s *service) Release(ctx context.Context, token uuid.UUID) (int, error) {
	if token == uuid.Nil {
		return 0, apperrors.New(apperrors.CodeValidation, "token is required")
	}

	rows, err := s.repo.ListByToken(ctx, token)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, apperrors.New(apperrors.CodeNotFound, "no reservations for token")
	}

	released := 0
	for i := range rows {
		if rows[i].Status != enums.ReservationStatusPending {
			continue
		}
		row := rows[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.releaseRow(ctx, tx, &row, enums.ReservationStatusCancelled, "reservation released")
		})
		if err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// ExpireOld sweeps pending reservations past their expiry, releasing the
// reserved quantity. Each row is retried on transient failures so one bad
// row does not wedge the sweep.
func (s *service) ExpireOld(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().UTC()
	rows, err := s.repo.ListExpired(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range rows {
		row := rows[i]
		backoff := retry.WithMaxRetries(uint64(s.sweepRetries), retry.NewConstant(s.sweepBackoffOrDefault()))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				return s.releaseRow(ctx, tx, &row, enums.ReservationStatusExpired, "reservation expired")
			})
			if txErr != nil && apperrors.As(txErr) == nil {
				return retry.RetryableError(txErr)
			}
			return txErr
		})
		if err != nil {
			s.logg.Error(ctx, fmt.Sprintf("expiring reservation %s", row.ID), err)
			continue
		}
		expired++
	}

	s.metrics.AddExpired(expired)
	if expired > 0 {
		s.logg.Info(ctx, fmt.Sprintf("expired %d reservations", expired))
	}
	return expired, nil
}

func (s *service) sweepBackoffOrDefault() time.Duration {
	if s.sweepBackoff > 0 {
		return s.sweepBackoff
	}
	return 250 * time.Millisecond
}

// releaseRow returns a reservation's quantity to the stock line and moves
// the row to the given terminal status. A missing stock line cancels the
// row without a counter movement.
func (s *service) releaseRow(ctx context.Context, tx *gorm.DB, row *models.Reservation, status enums.ReservationStatus, note string) error {
	repo := s.repo.WithTx(tx)
	invRepo := s.inventoryRepo.WithTx(tx)

	line, err := invRepo.GetStockLineForUpdate(ctx, row.VariantID, row.WarehouseID)
	if errors.Is(err, inventory.ErrStockLineNotFound) {
		row.Status = enums.ReservationStatusCancelled
		return repo.Save(ctx, row)
	}
	if err != nil {
		return err
	}

	fromOnHand, fromReserved := line.OnHand, line.Reserved
	line.Reserved -= row.Quantity
	if line.Reserved < 0 {
		line.Reserved = 0
	}
	if err := invRepo.SaveStockLine(ctx, line); err != nil {
		return err
	}

	row.Status = status
	if err := repo.Save(ctx, row); err != nil {
		return err
	}

	_, err = s.recorder.Record(ctx, tx, audit.RecordInput{
		EventType:     enums.AuditEventRelease,
		VariantID:     row.VariantID,
		WarehouseID:   row.WarehouseID,
		Quantity:      -row.Quantity,
		FromOnHand:    fromOnHand,
		ToOnHand:      line.OnHand,
		FromReserved:  fromReserved,
		ToReserved:    line.Reserved,
		ReferenceType: "reservation",
		ReferenceID:   &row.ID,
		Notes:         note,
	})
	return err
}

// ConfirmInTx consumes all pending lines under the token inside the
// caller's transaction: on_hand and reserved both decrement and the rows
// move to confirmed with the order attached. Every line must still be
// pending and unexpired or the whole confirmation fails.
func (s *service) ConfirmInTx(ctx context.Context, tx *gorm.DB, token, orderID uuid.UUID) ([]models.Reservation, error) {
	if token == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "token is required")
	}
	if orderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "order id is required")
	}

	repo := s.repo.WithTx(tx)
	invRepo := s.inventoryRepo.WithTx(tx)

	rows, err := repo.ListByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "no reservations for token")
	}

	now := s.now().UTC()
	for i := range rows {
		if rows[i].Status != enums.ReservationStatusPending {
			return nil, apperrors.Newf(apperrors.CodeStateConflict,
				"reservation %s is %s, not pending", rows[i].ID, rows[i].Status)
		}
		if rows[i].IsExpired(now) {
			return nil, apperrors.Newf(apperrors.CodeStateConflict,
				"reservation %s expired at %s", rows[i].ID, rows[i].ExpiresAt.Format(time.RFC3339))
		}
	}

	confirmed := make([]models.Reservation, 0, len(rows))
	for i := range rows {
		row := rows[i]
		line, err := invRepo.GetStockLineForUpdate(ctx, row.VariantID, row.WarehouseID)
		if errors.Is(err, inventory.ErrStockLineNotFound) {
			return nil, apperrors.Newf(apperrors.CodeStateConflict, "stock line gone for variant %s", row.VariantID)
		}
		if err != nil {
			return nil, err
		}

		fromOnHand, fromReserved := line.OnHand, line.Reserved
		line.OnHand -= row.Quantity
		if line.OnHand < 0 {
			line.OnHand = 0
		}
		line.Reserved -= row.Quantity
		if line.Reserved < 0 {
			line.Reserved = 0
		}
		if err := invRepo.SaveStockLine(ctx, line); err != nil {
			return nil, err
		}

		row.Status = enums.ReservationStatusConfirmed
		row.OrderID = &orderID
		if err := repo.Save(ctx, &row); err != nil {
			return nil, err
		}

		if _, err := s.recorder.Record(ctx, tx, audit.RecordInput{
			EventType:     enums.AuditEventFulfillment,
			VariantID:     row.VariantID,
			WarehouseID:   row.WarehouseID,
			Quantity:      -row.Quantity,
			FromOnHand:    fromOnHand,
			ToOnHand:      line.OnHand,
			FromReserved:  fromReserved,
			ToReserved:    line.Reserved,
			ReferenceType: "order",
			ReferenceID:   &orderID,
		}); err != nil {
			return nil, err
		}
		confirmed = append(confirmed, row)
	}
	return confirmed, nil
}
