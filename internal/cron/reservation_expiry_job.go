package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

const defaultExpirySweepBatch = 500

// ReservationExpiryJobParams configure the reservation sweep.
type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations reservationExpirer
	BatchSize    int
}

type reservationExpirer interface {
	ExpireOld(ctx context.Context, limit int) (int, error)
}

// NewReservationExpiryJob builds the job that releases stock held by
// reservations whose hold window has lapsed.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpirySweepBatch
	}
	return &reservationExpiryJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		batch:        batch,
	}, nil
}

type reservationExpiryJob struct {
	logg         *logger.Logger
	reservations reservationExpirer
	batch        int
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	start := time.Now()
	released, err := j.reservations.ExpireOld(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("reservation expiry sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released":    released,
		"batch_size":  j.batch,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return nil
}
