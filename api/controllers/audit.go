package controllers

import (
	"net/http"
	"time"

	"github.com/mfeldmann/storehaus-backend/api/responses"
	"github.com/mfeldmann/storehaus-backend/api/validators"
	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
	"github.com/mfeldmann/storehaus-backend/pkg/pagination"
)

type auditRowResponse struct {
	ID            string    `json:"id"`
	EventType     string    `json:"event_type"`
	Quantity      int       `json:"quantity"`
	FromOnHand    int       `json:"from_on_hand"`
	ToOnHand      int       `json:"to_on_hand"`
	FromReserved  int       `json:"from_reserved"`
	ToReserved    int       `json:"to_reserved"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type auditTrailResponse struct {
	Rows       []auditRowResponse `json:"rows"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// StockAuditTrail returns one page of the movement history for a stock line.
func StockAuditTrail(recorder audit.Recorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := parseQueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := parseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := recorder.TrailPage(r.Context(), variantID, warehouseID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := auditTrailResponse{
			Rows:       make([]auditRowResponse, 0, len(rows)),
			NextCursor: next,
		}
		for i := range rows {
			payload.Rows = append(payload.Rows, toAuditRow(&rows[i]))
		}
		responses.WriteSuccess(w, payload)
	}
}

func toAuditRow(row *models.InventoryAudit) auditRowResponse {
	out := auditRowResponse{
		ID:            row.ID.String(),
		EventType:     string(row.EventType),
		Quantity:      row.Quantity,
		FromOnHand:    row.FromOnHand,
		ToOnHand:      row.ToOnHand,
		FromReserved:  row.FromReserved,
		ToReserved:    row.ToReserved,
		ReferenceType: row.ReferenceType,
		Notes:         row.Notes,
		CreatedAt:     row.CreatedAt,
	}
	if row.ReferenceID != nil {
		out.ReferenceID = row.ReferenceID.String()
	}
	return out
}
