package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mfeldmann/storehaus-backend/api/responses"
	"github.com/mfeldmann/storehaus-backend/api/validators"
	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	pkgerrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type stockAvailabilityResponse struct {
	VariantID         string `json:"variant_id"`
	WarehouseID       string `json:"warehouse_id,omitempty"`
	Quantity          int    `json:"quantity"`
	Available         bool   `json:"available"`
	AvailableQuantity int    `json:"available_quantity"`
	Backorderable     bool   `json:"backorderable"`
}

// StockAvailability sums availability over active warehouses, or over a
// single warehouse when one is passed.
func StockAvailability(service inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := parseQueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var warehouseID *uuid.UUID
		if r.URL.Query().Get("warehouse_id") != "" {
			id, err := parseQueryUUID(r, "warehouse_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			warehouseID = &id
		}
		quantity, err := validators.ParseQueryInt(r, "quantity", 1, 1, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		availability, err := service.CheckAvailability(r.Context(), variantID, warehouseID, quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := stockAvailabilityResponse{
			VariantID:         variantID.String(),
			Quantity:          quantity,
			Available:         availability.Available,
			AvailableQuantity: availability.AvailableQuantity,
			Backorderable:     availability.Backorderable,
		}
		if warehouseID != nil {
			payload.WarehouseID = warehouseID.String()
		}
		responses.WriteSuccess(w, payload)
	}
}

func parseQueryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").
			WithDetails(map[string]any{"field": key})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a uuid").
			WithDetails(map[string]any{"field": key})
	}
	return id, nil
}
