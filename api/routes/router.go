package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventgatehq/eventgate-backend/api/controllers"
	webhookcontrollers "github.com/eventgatehq/eventgate-backend/api/controllers/webhooks"
	"github.com/eventgatehq/eventgate-backend/api/middleware"
	destsvc "github.com/eventgatehq/eventgate-backend/internal/destinations"
	eventsvc "github.com/eventgatehq/eventgate-backend/internal/events"
	routesvc "github.com/eventgatehq/eventgate-backend/internal/routes"
	transformsvc "github.com/eventgatehq/eventgate-backend/internal/transformations"
	"github.com/eventgatehq/eventgate-backend/pkg/cache"
	"github.com/eventgatehq/eventgate-backend/pkg/config"
	"github.com/eventgatehq/eventgate-backend/pkg/db"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

// Services bundles everything the router mounts.
type Services struct {
	Events          eventsvc.Service
	Destinations    destsvc.Service
	Transformations transformsvc.Service
	Routes          routesvc.Service
	StripeReceiver  webhookcontrollers.StripeReceiver
}

// NewRouter assembles the HTTP surface. Health and metrics sit outside the
// API key guard, as does the signed Stripe webhook; everything under /api
// requires the key and runs through the response cache.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database db.Pinger,
	cacheClient *cache.Client,
	metricsHandler http.Handler,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS, cfg.App.IsDev()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, database, cacheClient, logg))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Stripe signs the raw body; its own signature check replaces the API key.
	r.Post("/api/integrations/stripe/webhook", webhookcontrollers.StripeWebhook(svcs.StripeReceiver, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.Auth.APIKey, logg))
		if cacheClient != nil && cacheClient.IsConnected() {
			r.Use(middleware.ResponseCache(cacheClient, cfg.Cache.TTL, logg))
		}

		r.Route("/events", func(r chi.Router) {
			r.Post("/", controllers.EventsIngest(svcs.Events, logg))
			r.Get("/", controllers.EventsList(svcs.Events, logg))
			r.Get("/search", controllers.EventsSearch(svcs.Events, logg))
			r.Get("/user/{userId}", controllers.EventsByUser(svcs.Events, logg))
			r.Get("/{id}", controllers.EventsGet(svcs.Events, logg))
			r.Post("/{id}/forward", controllers.EventsForward(svcs.Events, logg))
		})

		r.Route("/destinations", func(r chi.Router) {
			r.Post("/", controllers.DestinationsCreate(svcs.Destinations, logg))
			r.Get("/", controllers.DestinationsList(svcs.Destinations, logg))
			r.Get("/stats", controllers.DestinationsStats(svcs.Destinations, logg))
			r.Get("/{id}", controllers.DestinationsGet(svcs.Destinations, logg))
			r.Put("/{id}", controllers.DestinationsUpdate(svcs.Destinations, logg))
			r.Delete("/{id}", controllers.DestinationsDelete(svcs.Destinations, logg))
			r.Patch("/{id}/toggle", controllers.DestinationsToggle(svcs.Destinations, logg))
			r.Post("/{id}/test", controllers.DestinationsTest(svcs.Destinations, logg))
		})

		r.Route("/transformations", func(r chi.Router) {
			r.Post("/", controllers.TransformationsCreate(svcs.Transformations, logg))
			r.Get("/", controllers.TransformationsList(svcs.Transformations, logg))
			r.Get("/{id}", controllers.TransformationsGet(svcs.Transformations, logg))
			r.Put("/{id}", controllers.TransformationsUpdate(svcs.Transformations, logg))
			r.Delete("/{id}", controllers.TransformationsDelete(svcs.Transformations, logg))
			r.Patch("/{id}/toggle", controllers.TransformationsToggle(svcs.Transformations, logg))
			r.Post("/{id}/test", controllers.TransformationsTest(svcs.Transformations, logg))
		})

		r.Route("/routes", func(r chi.Router) {
			r.Post("/", controllers.RoutesCreate(svcs.Routes, logg))
			r.Get("/", controllers.RoutesList(svcs.Routes, logg))
			r.Get("/{id}", controllers.RoutesGet(svcs.Routes, logg))
			r.Put("/{id}", controllers.RoutesUpdate(svcs.Routes, logg))
			r.Delete("/{id}", controllers.RoutesDelete(svcs.Routes, logg))
			r.Patch("/{id}/toggle", controllers.RoutesToggle(svcs.Routes, logg))
			r.Post("/{id}/test", controllers.RoutesTest(svcs.Routes, logg))
		})

		r.Route("/integrations/stripe", func(r chi.Router) {
			r.Post("/reprocess", webhookcontrollers.StripeReprocess(svcs.StripeReceiver, logg))
			r.Get("/stats", webhookcontrollers.StripeStats(svcs.StripeReceiver, logg))
		})
	})

	return r
}
