package promotions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

// Service exposes campaign selection and schedule maintenance.
type Service interface {
	EligibleCampaigns(ctx context.Context, subject Subject, customerGroup string, quantity int, at time.Time) ([]models.Campaign, error)
	ExplainCampaigns(ctx context.Context, subject Subject, customerGroup string, quantity int, at time.Time) ([]models.Campaign, []CampaignRejection, error)
	ActivateScheduled(ctx context.Context) (activated, deactivated int, err error)
}

// CampaignRejection explains why a campaign did not qualify.
type CampaignRejection struct {
	ID     uuid.UUID
	Code   string
	Reason string
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService wires the promotions service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("campaign repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, now: time.Now}, nil
}

// EligibleCampaigns returns the active campaigns that match the subject,
// are inside their window, apply to the customer group, and carry at
// least one discount covering the quantity. Order is the stacking-walk
// order.
func (s *service) EligibleCampaigns(ctx context.Context, subject Subject, customerGroup string, quantity int, at time.Time) ([]models.Campaign, error) {
	campaigns, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.Campaign, 0, len(campaigns))
	for i := range campaigns {
		candidate, reason := evaluate(&campaigns[i], subject, customerGroup, quantity, at)
		if reason != "" {
			continue
		}
		eligible = append(eligible, candidate)
	}
	return eligible, nil
}

// ExplainCampaigns evaluates every campaign, active or not, and splits
// them into the eligible set and the rejects with their reasons.
func (s *service) ExplainCampaigns(ctx context.Context, subject Subject, customerGroup string, quantity int, at time.Time) ([]models.Campaign, []CampaignRejection, error) {
	campaigns, err := s.repo.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	eligible := make([]models.Campaign, 0, len(campaigns))
	rejected := make([]CampaignRejection, 0, len(campaigns))
	for i := range campaigns {
		candidate, reason := evaluate(&campaigns[i], subject, customerGroup, quantity, at)
		if reason != "" {
			rejected = append(rejected, CampaignRejection{ID: campaigns[i].ID, Code: campaigns[i].Code, Reason: reason})
			continue
		}
		eligible = append(eligible, candidate)
	}
	return eligible, rejected, nil
}

// evaluate checks one campaign against the pricing context. The returned
// reason is empty when the campaign qualifies; the returned copy carries
// only the discounts that cover the quantity.
func evaluate(c *models.Campaign, subject Subject, customerGroup string, quantity int, at time.Time) (models.Campaign, string) {
	if !c.IsActive {
		return models.Campaign{}, "inactive"
	}
	if !c.InWindow(at) {
		return models.Campaign{}, "outside schedule window"
	}
	if c.UsageExhausted() {
		return models.Campaign{}, "usage limit reached"
	}
	if !c.AppliesToGroup(customerGroup) {
		return models.Campaign{}, "customer group not eligible"
	}
	discounts := make([]models.CampaignDiscount, 0, len(c.Discounts))
	for _, d := range c.Discounts {
		if d.CoversQuantity(quantity) {
			discounts = append(discounts, d)
		}
	}
	if len(discounts) == 0 {
		return models.Campaign{}, fmt.Sprintf("no discount covers quantity %d", quantity)
	}
	if !Matches(c, subject) {
		return models.Campaign{}, "rules do not match the variant"
	}
	candidate := *c
	candidate.Discounts = discounts
	return candidate, ""
}

// ActivateScheduled flips campaigns in and out of active based on their
// schedule. Run periodically by the campaign activation job.
func (s *service) ActivateScheduled(ctx context.Context) (int, int, error) {
	now := s.now().UTC()

	pending, err := s.repo.ListPendingActivation(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	activated := 0
	for i := range pending {
		pending[i].IsActive = true
		if err := s.repo.Save(ctx, &pending[i]); err != nil {
			return activated, 0, err
		}
		activated++
	}

	stale, err := s.repo.ListPendingDeactivation(ctx, now)
	if err != nil {
		return activated, 0, err
	}
	deactivated := 0
	for i := range stale {
		stale[i].IsActive = false
		if err := s.repo.Save(ctx, &stale[i]); err != nil {
			return activated, deactivated, err
		}
		deactivated++
	}

	if activated > 0 || deactivated > 0 {
		s.logg.Info(ctx, fmt.Sprintf("campaign schedule applied: %d activated, %d deactivated", activated, deactivated))
	}
	return activated, deactivated, nil
}
