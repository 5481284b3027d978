package cron

import (
	"context"
	"fmt"

	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

const defaultCartCleanupBatch = 1000

// CartCleanupJobParams configure the abandoned cart sweep.
type CartCleanupJobParams struct {
	Logger    *logger.Logger
	Carts     cartCleaner
	BatchSize int
}

type cartCleaner interface {
	CleanupExpired(ctx context.Context, limit int) (int64, error)
}

// NewCartCleanupJob builds the job that purges expired carts and their lines.
func NewCartCleanupJob(params CartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCartCleanupBatch
	}
	return &cartCleanupJob{
		logg:  params.Logger,
		carts: params.Carts,
		batch: batch,
	}, nil
}

type cartCleanupJob struct {
	logg  *logger.Logger
	carts cartCleaner
	batch int
}

func (j *cartCleanupJob) Name() string { return "cart-cleanup" }

func (j *cartCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.carts.CleanupExpired(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("cart cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"rows_deleted": deleted,
		"batch_size":   j.batch,
	})
	j.logg.Info(logCtx, "cart cleanup complete")
	return nil
}
