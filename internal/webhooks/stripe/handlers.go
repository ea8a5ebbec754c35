package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/eventgatehq/eventgate-backend/internal/events"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
)

const ingestSource = "stripe"

type handlerFunc func(ctx context.Context, s *Service, event *stripe.Event) error

// handlerTable maps provider event types onto normalizers. Each normalizer
// stores an application event through the ingest path, so provider activity
// routes like anything else.
var handlerTable = map[stripe.EventType]handlerFunc{
	stripe.EventTypePaymentIntentSucceeded:     handlePaymentIntentSucceeded,
	stripe.EventTypePaymentIntentPaymentFailed: handlePaymentIntentFailed,
	stripe.EventTypeChargeRefunded:             handleChargeRefunded,
	stripe.EventTypeCustomerCreated:            handleCustomerCreated,
}

func handlePaymentIntentSucceeded(ctx context.Context, s *Service, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	return s.ingest(ctx, event, "payment.succeeded", paymentIntentProperties(&intent))
}

func handlePaymentIntentFailed(ctx context.Context, s *Service, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	properties := paymentIntentProperties(&intent)
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		properties["failureMessage"] = intent.LastPaymentError.Msg
	}
	return s.ingest(ctx, event, "payment.failed", properties)
}

func handleChargeRefunded(ctx context.Context, s *Service, event *stripe.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
	}
	properties := map[string]any{
		"provider":       ingestSource,
		"chargeId":       charge.ID,
		"amount":         charge.Amount,
		"amountRefunded": charge.AmountRefunded,
		"currency":       string(charge.Currency),
	}
	if charge.Customer != nil {
		properties["customerId"] = charge.Customer.ID
	}
	if charge.PaymentIntent != nil {
		properties["paymentIntentId"] = charge.PaymentIntent.ID
	}
	return s.ingest(ctx, event, "payment.refunded", properties)
}

func handleCustomerCreated(ctx context.Context, s *Service, event *stripe.Event) error {
	var customer stripe.Customer
	if err := json.Unmarshal(event.Data.Raw, &customer); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode customer")
	}
	properties := map[string]any{
		"provider":   ingestSource,
		"customerId": customer.ID,
	}
	if customer.Email != "" {
		properties["email"] = customer.Email
	}
	if customer.Name != "" {
		properties["name"] = customer.Name
	}
	return s.ingest(ctx, event, "customer.created", properties)
}

func paymentIntentProperties(intent *stripe.PaymentIntent) map[string]any {
	properties := map[string]any{
		"provider":        ingestSource,
		"paymentIntentId": intent.ID,
		"amount":          intent.Amount,
		"currency":        string(intent.Currency),
	}
	if intent.Customer != nil {
		properties["customerId"] = intent.Customer.ID
	}
	return properties
}

func (s *Service) ingest(ctx context.Context, event *stripe.Event, eventName string, properties map[string]any) error {
	timestamp := time.Unix(event.Created, 0).UTC()
	_, err := s.ingester.Ingest(ctx, events.IngestParams{
		EventName:  eventName,
		Timestamp:  &timestamp,
		Properties: properties,
		Source:     ingestSource,
	})
	return err
}
