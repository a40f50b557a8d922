package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/ssr0016/next-rental-eq-marketplace/api/responses"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
)

// maxWebhookBodyBytes matches the payload ceiling stripe-go itself expects.
const maxWebhookBodyBytes = 1 << 16

const signatureHeader = "Stripe-Signature"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type stripeHandler struct {
	svc    StripeWebhookService
	client stripeClient
	guard  stripeWebhookGuard
	logg   *logger.Logger
}

// StripeWebhook applies payment intent outcomes delivered by Stripe.
// Deliveries are deduplicated by event id. A failed apply forgets the id so
// the redelivery is processed again.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	h := &stripeHandler{svc: svc, client: client, guard: guard, logg: logg}
	return h.serve
}

func (h *stripeHandler) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc == nil || h.client == nil || h.guard == nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
		return
	}

	event, err := h.verify(w, r)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	if h.logg != nil {
		ctx = h.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})
	}

	seen, err := h.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if seen {
		h.info(ctx, "stripe event already processed")
		responses.WriteSuccess(w, nil)
		return
	}

	if err := h.svc.HandleEvent(ctx, &event); err != nil {
		if delErr := h.guard.Delete(ctx, event.ID); delErr != nil && h.logg != nil {
			h.logg.Error(ctx, "release stripe event marker", delErr)
		}
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.info(ctx, "stripe event processed")
	responses.WriteSuccess(w, nil)
}

// verify reads the raw body and checks it against the signing secret.
// Any failure here is the sender's fault and maps to 400.
func (h *stripeHandler) verify(w http.ResponseWriter, r *http.Request) (stripe.Event, error) {
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large")
		}
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body")
	}

	event, err := webhook.ConstructEvent(payload, sig, h.client.SigningSecret())
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return event, nil
}

func (h *stripeHandler) info(ctx context.Context, msg string) {
	if h.logg != nil {
		h.logg.Info(ctx, msg)
	}
}
