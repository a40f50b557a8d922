package controllers

import (
	"net/http"

	"github.com/ssr0016/next-rental-eq-marketplace/api/responses"
	"github.com/ssr0016/next-rental-eq-marketplace/api/validators"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
)

const maxQuantityQuery = 10000

// CheckAvailability answers whether quantity units of an item are free on
// every day of [from, to]. It never reserves anything.
func CheckAvailability(svc availability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		rng, err := availability.ParseDateRange(q.Get("from"), q.Get("to"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity, err := validators.ParseQueryInt(r, "quantity", 1, 1, maxQuantityQuery)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.CheckAvailability(r.Context(), availability.CheckInput{
			ItemID:   itemID,
			Range:    rng,
			Quantity: quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
