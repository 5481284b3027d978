package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mfeldmann/storehaus-backend/api/responses"
	"github.com/mfeldmann/storehaus-backend/api/validators"
	"github.com/mfeldmann/storehaus-backend/internal/pricing"
	pkgerrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type priceExplainRequest struct {
	VariantID     string  `json:"variant_id" validate:"required,uuid4"`
	Quantity      int     `json:"quantity" validate:"required,min=1"`
	Currency      string  `json:"currency" validate:"omitempty,len=3"`
	Country       string  `json:"country" validate:"omitempty,len=2"`
	Channel       string  `json:"channel" validate:"omitempty,max=64"`
	CustomerGroup string  `json:"customer_group" validate:"omitempty,max=64"`
	At            *string `json:"at" validate:"omitempty"`
}

type appliedCampaignResponse struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Stacking   string `json:"stacking"`
	Discount   string `json:"discount"`
	PriceAfter string `json:"price_after"`
}

type priceExplainResponse struct {
	VariantID     string                      `json:"variant_id"`
	Quantity      int                         `json:"quantity"`
	Currency      string                      `json:"currency"`
	BasePrice     string                      `json:"base_price"`
	BaseSource    string                      `json:"base_source"`
	PriceBookCode string                      `json:"price_book_code,omitempty"`
	Campaigns     []appliedCampaignResponse   `json:"campaigns"`
	UnitPrice     string                      `json:"unit_price"`
	TaxRate       string                      `json:"tax_rate"`
	Subtotal      string                      `json:"subtotal"`
	TaxTotal      string                      `json:"tax_total"`
	Total         string                      `json:"total"`
	Steps         []string                    `json:"steps"`
	Rejected      []rejectedCandidateResponse `json:"rejected"`
}

type rejectedCandidateResponse struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// PricingExplain resolves a price and returns the full decision trail.
func PricingExplain(service pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceExplainRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := uuid.Parse(req.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "variant_id must be a valid uuid"))
			return
		}

		input := pricing.ResolveInput{
			VariantID:     variantID,
			Quantity:      req.Quantity,
			Currency:      req.Currency,
			Country:       req.Country,
			Channel:       req.Channel,
			CustomerGroup: req.CustomerGroup,
		}
		if req.At != nil {
			at, parseErr := time.Parse(time.RFC3339, *req.At)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "at must be an RFC3339 timestamp"))
				return
			}
			input.At = &at
		}

		explanation, err := service.Explain(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toExplainResponse(explanation))
	}
}

func toExplainResponse(explanation *pricing.Explanation) priceExplainResponse {
	quote := &explanation.Quote
	campaigns := make([]appliedCampaignResponse, 0, len(quote.Campaigns))
	for _, applied := range quote.Campaigns {
		campaigns = append(campaigns, appliedCampaignResponse{
			Code:       applied.Code,
			Name:       applied.Name,
			Stacking:   string(applied.StackingType),
			Discount:   money(applied.Discount),
			PriceAfter: money(applied.PriceAfter),
		})
	}
	rejected := make([]rejectedCandidateResponse, 0, len(explanation.Rejected))
	for _, reject := range explanation.Rejected {
		rejected = append(rejected, rejectedCandidateResponse{
			Kind:   reject.Kind,
			ID:     reject.ID.String(),
			Code:   reject.Code,
			Reason: reject.Reason,
		})
	}
	return priceExplainResponse{
		VariantID:     quote.VariantID.String(),
		Quantity:      quote.Quantity,
		Currency:      quote.Currency,
		BasePrice:     money(quote.BasePrice),
		BaseSource:    quote.BaseSource,
		PriceBookCode: quote.PriceBookCode,
		Campaigns:     campaigns,
		UnitPrice:     money(quote.UnitPrice),
		TaxRate:       quote.TaxRate.String(),
		Subtotal:      money(quote.Subtotal),
		TaxTotal:      money(quote.TaxTotal),
		Total:         money(quote.Total),
		Steps:         quote.Steps,
		Rejected:      rejected,
	}
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}
