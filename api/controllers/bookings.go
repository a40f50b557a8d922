package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ssr0016/next-rental-eq-marketplace/api/responses"
	"github.com/ssr0016/next-rental-eq-marketplace/api/validators"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/booking"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
)

type createBookingRequest struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	From     string    `json:"from" validate:"required,datetime=2006-01-02"`
	To       string    `json:"to" validate:"required,datetime=2006-01-02"`
	Quantity int       `json:"quantity" validate:"required,gte=1"`
}

// CreateBooking places a booking for the caller.
func CreateBooking(svc booking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rng, err := availability.ParseDateRange(req.From, req.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithItemID(ctx, req.ItemID.String())
		}
		order, err := svc.CreateBooking(ctx, booking.Input{
			ItemID:   req.ItemID,
			Actor:    actor,
			From:     rng.From,
			To:       rng.To,
			Quantity: req.Quantity,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.NewOrderDTO(order))
	}
}
