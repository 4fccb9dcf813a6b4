package api

import (
	"net/http"

	"monarchmail-be/internal/account"
	"monarchmail-be/internal/contact"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/mailbox"
	"monarchmail-be/internal/middleware"
	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/wizard"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router serves. Webhook, GraphQL and Playground are
// mounted as given; a nil GraphQL or Playground is not mounted.
type Deps struct {
	Mailbox          *mailbox.Service
	MailboxSessions  *wizard.Registry[*mailbox.Session]
	Shipments        *shipment.Service
	ShipmentSessions *wizard.Registry[*shipment.Session]
	Estimator        *shipping.Estimator
	Account          account.Service
	Contact          contact.Service
	Webhook          http.HandlerFunc
	GraphQL          http.Handler
	Playground       http.HandlerFunc

	JWTSecret     []byte
	Limiter       *middleware.RateLimiter
	AllowedOrigin string
	StoreBaseURL  string
}

func NewRouter(d Deps) http.Handler {
	mb := &mailboxHandler{
		svc:    d.Mailbox,
		wizard: &wizardHandler[*mailbox.Session]{sessions: d.MailboxSessions, view: renderMailbox},
	}
	sh := &shipmentHandler{
		svc:    d.Shipments,
		wizard: &wizardHandler[*shipment.Session]{sessions: d.ShipmentSessions, view: renderShipment},
	}
	pub := &publicHandler{
		estimator: d.Estimator,
		account:   d.Account,
		contact:   d.Contact,
		storeURL:  d.StoreBaseURL,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	if d.AllowedOrigin != "" {
		r.Use(middleware.CORS(d.AllowedOrigin))
	}
	r.Use(middleware.AuthMiddleware(d.JWTSecret))
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/payment", d.Webhook)
	r.Get("/store/{collection}", pub.storeRedirect)
	if d.GraphQL != nil {
		r.Handle("/query", d.GraphQL)
	}
	if d.Playground != nil {
		r.Get("/playground", d.Playground)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/rates/estimate", pub.estimate)
		r.Post("/contact", pub.submitContact)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Route("/mailbox", mb.routes)
			r.Route("/shipments", sh.routes)
			r.Get("/account/summary", pub.accountSummary)
		})
	})

	return r
}
