package routing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eventgatehq/eventgate-backend/internal/destinations"
	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// Deliverer sends one payload to one target. Satisfied by forward.Forwarder.
type Deliverer interface {
	SendPayload(ctx context.Context, target forward.Target, payload any) forward.Result
}

// RouteResult is the outcome of one matched route.
type RouteResult struct {
	RouteID     uuid.UUID      `json:"routeId"`
	RouteName   string         `json:"routeName"`
	Destination string         `json:"destination"`
	Delivery    forward.Result `json:"delivery"`
}

type compiledRoute struct {
	id            uuid.UUID
	name          string
	eventTypes    []string
	condition     Condition
	transform     transform.Func
	destinationID uuid.UUID
	target        forward.Target
}

// Router matches events against the compiled route list and delivers through
// the forwarder. The list sits behind an atomic pointer; refresh swaps it
// without blocking deliveries in flight.
type Router struct {
	repo      Repository
	deliverer Deliverer
	logger    *logger.Logger
	routes    atomic.Pointer[[]compiledRoute]
}

// NewRouter wires the router. All dependencies are required.
func NewRouter(repo Repository, deliverer Deliverer, logg *logger.Logger) (*Router, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routing repository required")
	}
	if deliverer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routing deliverer required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "routing logger required")
	}
	return &Router{repo: repo, deliverer: deliverer, logger: logg}, nil
}

// Initialize loads the route list. Calling it again reloads.
func (r *Router) Initialize(ctx context.Context) error {
	return r.RefreshRoutes(ctx)
}

// RefreshRoutes reloads and recompiles the active routes, then swaps the
// list atomically. Every route, transformation, or destination mutation must
// end up here.
func (r *Router) RefreshRoutes(ctx context.Context) error {
	rows, err := r.repo.LoadActive(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load routes")
	}
	compiled := r.compile(ctx, rows)
	r.routes.Store(&compiled)
	r.logger.Info(r.logger.WithField(ctx, "count", len(compiled)), "routes refreshed")
	return nil
}

// RouteCount reports the size of the compiled list, loading it on first use.
func (r *Router) RouteCount(ctx context.Context) int {
	return len(r.active(ctx))
}

// RouteEvent runs the event down the route list in priority order. Only
// matched routes produce results. An event without a name routes nowhere.
func (r *Router) RouteEvent(ctx context.Context, event transform.Event) []RouteResult {
	results := []RouteResult{}
	if event.EventName == "" {
		return results
	}
	ctx = r.logger.WithEventID(ctx, event.ID)

	for _, route := range r.active(ctx) {
		if !EventTypeMatches(route.eventTypes, event.EventName) {
			continue
		}
		if route.condition != nil && !route.condition.Evaluate(event) {
			continue
		}
		results = append(results, r.deliver(ctx, route, event))
	}
	return results
}

func (r *Router) active(ctx context.Context) []compiledRoute {
	if list := r.routes.Load(); list != nil {
		return *list
	}
	if err := r.RefreshRoutes(ctx); err != nil {
		r.logger.Error(ctx, "lazy route initialization failed", err)
		return nil
	}
	list := r.routes.Load()
	if list == nil {
		return nil
	}
	return *list
}

func (r *Router) deliver(ctx context.Context, route compiledRoute, event transform.Event) RouteResult {
	ctx = r.logger.WithRoute(ctx, route.name)

	payload, err := route.transform(event)
	if err != nil {
		r.logger.Error(ctx, "route transform failed, sending fallback payload", err)
		payload = transform.FallbackPayload(event, err.Error())
	}

	delivery := r.deliverer.SendPayload(ctx, route.target, DeliveryPayload(event, payload))
	r.recordCounters(ctx, route, delivery)

	return RouteResult{
		RouteID:     route.id,
		RouteName:   route.name,
		Destination: route.target.Name,
		Delivery:    delivery,
	}
}

// recordCounters applies the advisory usage and outcome counters. Failures
// are logged and never change the delivery result.
func (r *Router) recordCounters(ctx context.Context, route compiledRoute, delivery forward.Result) {
	now := time.Now().UTC()
	if err := r.repo.MarkRouteUsed(ctx, route.id, now); err != nil {
		r.logger.Warn(r.logger.WithField(ctx, "reason", err.Error()), "route counter update failed")
	}

	var deliveryError *string
	if !delivery.Success {
		msg := delivery.Error
		if msg == "" {
			msg = fmt.Sprintf("destination responded %d", delivery.StatusCode)
		}
		deliveryError = &msg
	}
	if err := r.repo.RecordDeliveryOutcome(ctx, route.destinationID, delivery.Success, now, deliveryError); err != nil {
		r.logger.Warn(r.logger.WithField(ctx, "reason", err.Error()), "destination counter update failed")
	}
}

func (r *Router) compile(ctx context.Context, rows []models.Route) []compiledRoute {
	compiled := make([]compiledRoute, 0, len(rows))
	for i := range rows {
		row := rows[i]
		routeCtx := r.logger.WithRoute(ctx, row.Name)
		if row.Transformation == nil || row.Destination == nil {
			r.logger.Warn(routeCtx, "route missing joined rows, skipped")
			continue
		}
		condition, err := ParseCondition(row.Condition)
		if err != nil {
			r.logger.Error(routeCtx, "route condition does not parse, route skipped", err)
			continue
		}
		spec := transform.Spec{Type: row.Transformation.Type, Config: row.Transformation.Config}
		compiled = append(compiled, compiledRoute{
			id:            row.ID,
			name:          row.Name,
			eventTypes:    append([]string(nil), row.EventTypes...),
			condition:     condition,
			transform:     transform.Safe(transform.Compile(spec, r.logger), r.logger, row.Name),
			destinationID: row.Destination.ID,
			target:        destinations.TargetFor(row.Destination),
		})
	}
	return compiled
}

// DeliveryPayload wraps the transformed payload in the event envelope that
// routed deliveries put on the wire.
func DeliveryPayload(event transform.Event, transformed any) any {
	if evt, ok := transformed.(transform.Event); ok {
		transformed = evt.Map()
	}
	envelope := event.Map()
	envelope["properties"] = transformed
	return envelope
}
