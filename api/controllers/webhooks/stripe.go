package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/api/validators"
	stripewebhook "github.com/eventgatehq/eventgate-backend/internal/webhooks/stripe"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// StripeReceiver is the slice of the inbound webhook service the controllers
// need.
type StripeReceiver interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*stripewebhook.Receipt, error)
	ReprocessUnprocessed(ctx context.Context, limit int) ([]stripewebhook.ReprocessResult, error)
	Stats(ctx context.Context) (*stripewebhook.Totals, error)
}

// StripeWebhook receives signed Stripe events. The raw body is handed to the
// service untouched; signature verification needs the exact bytes Stripe
// signed.
func StripeWebhook(svc StripeReceiver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		receipt, err := svc.HandleWebhook(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, receipt)
	}
}

// StripeReprocess replays stored events that never finished processing. The
// body is optional; `{"limit": n}` caps the batch.
func StripeReprocess(svc StripeReceiver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var payload reprocessRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		results, err := svc.ReprocessUnprocessed(ctx, payload.Limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"processed": len(results), "results": results})
	}
}

// StripeStats reports received/processed/unprocessed totals for stored
// Stripe events.
func StripeStats(svc StripeReceiver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		totals, err := svc.Stats(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, totals)
	}
}

type reprocessRequest struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}
