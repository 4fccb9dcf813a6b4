package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"monarchmail-be/internal/account"
	"monarchmail-be/internal/address"
	"monarchmail-be/internal/api"
	"monarchmail-be/internal/config"
	"monarchmail-be/internal/contact"
	"monarchmail-be/internal/db"
	"monarchmail-be/internal/graph"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/mailbox"
	"monarchmail-be/internal/middleware"
	"monarchmail-be/internal/notify"
	"monarchmail-be/internal/order"
	"monarchmail-be/internal/payment"
	"monarchmail-be/internal/payment/webhook"
	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/upload"
	"monarchmail-be/internal/wizard"

	"go.uber.org/zap"
)

const (
	sweepInterval = time.Minute
	shutdownGrace = 15 * time.Second
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database := db.InitDB(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, database)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}
	defer app.notifier.Close()

	go app.limiter.Cleanup(ctx)
	go sweepSessions(ctx, sweepInterval, app.mailboxSessions, app.shipmentSessions)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", srv.Addr), zap.Error(err))
	}

	log.Info("server running", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
	if err := serve(ctx, srv, ln, shutdownGrace); err != nil {
		log.Error("server stopped", zap.Error(err))
		return
	}
	log.Info("server drained")
}

// serve returns once ctx is done and every in-flight request has finished,
// or the grace period ran out.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-served; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

type app struct {
	handler          http.Handler
	notifier         notify.Sender
	limiter          *middleware.RateLimiter
	mailboxSessions  *wizard.Registry[*mailbox.Session]
	shipmentSessions *wizard.Registry[*shipment.Session]
}

func newApp(cfg *config.Config, database *sql.DB) (*app, error) {
	catalog, err := mailbox.LoadCatalog(cfg.PromoEndsAt)
	if err != nil {
		return nil, err
	}

	orderRepo := order.NewRepository(database)
	addressRepo := address.NewRepository(database)
	labelRepo := shipping.NewLabelRepository(database)
	carrier := shipping.NewShippoCarrier(cfg.ShippoAPIKey)
	notifier := notify.New(cfg.KafkaBrokers, cfg.NotifyTopic)

	deps := wizard.Deps{
		Verifier: address.NewShippoVerifier(cfg.ShippoAPIKey),
		Store:    order.NewStore(orderRepo),
		Gateway:  payment.NewStripeGateway(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL),
	}

	a := &app{
		notifier:         notifier,
		limiter:          middleware.NewRateLimiter(),
		mailboxSessions:  wizard.NewRegistry[*mailbox.Session](cfg.SessionTTL),
		shipmentSessions: wizard.NewRegistry[*shipment.Session](cfg.SessionTTL),
	}

	hook := webhook.NewWebhookHandler(
		payment.NewRepository(database),
		orderRepo,
		labelRepo,
		carrier,
		notifier,
		cfg.StripeWebhookSecret,
		cfg.AdminEmail,
	)

	resolver := &graph.Resolver{
		Mailbox:          mailbox.NewService(catalog, deps, upload.NewHTTPUploader(cfg.UploadURL, cfg.UploadToken), notifier, cfg.AdminEmail),
		MailboxSessions:  a.mailboxSessions,
		Shipments:        shipment.NewService(deps, carrier, addressRepo),
		ShipmentSessions: a.shipmentSessions,
		Estimator:        shipping.NewEstimator(carrier),
		Account:          account.NewService(addressRepo, labelRepo, orderRepo),
		Contact:          contact.NewService(contact.NewRepository(database), notifier, cfg.AdminEmail),
	}

	var playground http.HandlerFunc
	if cfg.AppEnv != "production" {
		playground = graph.Playground("/query")
	}

	a.handler = api.NewRouter(api.Deps{
		Mailbox:          resolver.Mailbox,
		MailboxSessions:  a.mailboxSessions,
		Shipments:        resolver.Shipments,
		ShipmentSessions: a.shipmentSessions,
		Estimator:        resolver.Estimator,
		Account:          resolver.Account,
		Contact:          resolver.Contact,
		Webhook:          hook.PaymentWebhookHandler,
		GraphQL:          graph.NewHandler(resolver),
		Playground:       playground,
		JWTSecret:        []byte(cfg.JWTSecret),
		Limiter:          a.limiter,
		AllowedOrigin:    cfg.AllowedOrigin,
		StoreBaseURL:     cfg.StoreBaseURL,
	})
	return a, nil
}

type sweeper interface {
	Sweep(now time.Time) int
}

// sweepSessions drops idle wizard sessions until ctx is done.
func sweepSessions(ctx context.Context, every time.Duration, regs ...sweeper) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := 0
			for _, r := range regs {
				n += r.Sweep(now)
			}
			if n > 0 {
				logger.L().Info("expired wizard sessions", zap.Int("count", n))
			}
		}
	}
}
