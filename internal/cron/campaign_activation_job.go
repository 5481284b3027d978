package cron

import (
	"context"
	"fmt"

	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

// CampaignActivationJobParams configure the campaign window job.
type CampaignActivationJobParams struct {
	Logger     *logger.Logger
	Promotions campaignActivator
}

type campaignActivator interface {
	ActivateScheduled(ctx context.Context) (activated int, deactivated int, err error)
}

// NewCampaignActivationJob builds the job that flips campaigns in and out of
// their scheduled windows.
func NewCampaignActivationJob(params CampaignActivationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotions service required")
	}
	return &campaignActivationJob{
		logg:       params.Logger,
		promotions: params.Promotions,
	}, nil
}

type campaignActivationJob struct {
	logg       *logger.Logger
	promotions campaignActivator
}

func (j *campaignActivationJob) Name() string { return "campaign-activation" }

func (j *campaignActivationJob) Run(ctx context.Context) error {
	activated, deactivated, err := j.promotions.ActivateScheduled(ctx)
	if err != nil {
		return fmt.Errorf("campaign activation: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"activated":   activated,
		"deactivated": deactivated,
	})
	j.logg.Info(logCtx, "campaign activation complete")
	return nil
}
