// Package app wires configuration, storage and the gateway client into the
// business services. Shared by the API server and the ops CLI.
package app

import (
	"log/slog"

	"github.com/laundrix/api/internal/config"
	"github.com/laundrix/api/internal/database"
	"github.com/laundrix/api/internal/gateway"
	"github.com/laundrix/api/internal/notify"
	"github.com/laundrix/api/internal/router"
	"github.com/laundrix/api/internal/service"
	"golang.org/x/time/rate"
)

// Services holds the constructed business services.
type Services struct {
	Tracking  *service.TrackingService
	Payments  *service.PaymentService
	Reconcile *service.ReconcileService
	Wallets   *service.WalletService
	Customers *database.Queries
}

// NewServices builds every service on db. A Tap client is created only when
// a secret key is configured; without one, gateway operations fail with
// service.ErrGatewayUnavailable.
func NewServices(cfg *config.Config, db service.DB, notifier notify.Notifier, logger *slog.Logger) *Services {
	if notifier == nil {
		notifier = notify.Nop{}
	}

	var gw service.Gateway
	if cfg.Tap.SecretKey != "" {
		gw = gateway.NewClient(gateway.Config{
			BaseURL:     cfg.Tap.BaseURL,
			SecretKey:   cfg.Tap.SecretKey,
			Currency:    cfg.Tap.Currency,
			RedirectURL: cfg.Tap.RedirectURL,
			Timeout:     cfg.Tap.Timeout,
			RatePerSec:  cfg.Tap.RatePerSec,
			Burst:       cfg.Tap.Burst,
		})
	} else {
		logger.Warn("TAP_SECRET_KEY not set, gateway operations disabled")
	}

	orderStore := func(db database.DBTX) service.OrderStore { return database.New(db) }
	paymentStore := func(db database.DBTX) service.PaymentStore { return database.New(db) }
	walletStore := func(db database.DBTX) service.WalletStore { return database.New(db) }

	tracking := service.NewTrackingService(db, orderStore, cfg.Reconcile.AutoAdvance, notifier, logger)

	// Batch sync paces its own gateway reads on top of the client limiter.
	limit := rate.Inf
	if cfg.Tap.RatePerSec > 0 {
		limit = rate.Limit(cfg.Tap.RatePerSec)
	}
	limiter := rate.NewLimiter(limit, max(cfg.Tap.Burst, 1))

	return &Services{
		Tracking:  tracking,
		Payments:  service.NewPaymentService(db, paymentStore, gw, tracking, notifier, logger),
		Reconcile: service.NewReconcileService(db, paymentStore, gw, tracking, limiter, notifier, logger),
		Wallets:   service.NewWalletService(db, walletStore, gw, cfg.Tap.Currency, notifier, logger),
		Customers: database.New(db),
	}
}

// Routes adapts Services to the router's handler interfaces.
func (s *Services) Routes() router.Services {
	return router.Services{
		Orders:    s.Tracking,
		Payments:  s.Payments,
		Reconcile: s.Reconcile,
		Wallets:   s.Wallets,
		Customers: s.Customers,
	}
}

// NewNotifier builds the broker notifier named by cfg.NotifyTransport and
// fans it out together with extra (for example the websocket feed). The
// returned close func is never nil.
func NewNotifier(cfg *config.Config, logger *slog.Logger, extra ...notify.Notifier) (notify.Notifier, func(), error) {
	closeFn := func() {}
	multi := notify.Multi(extra)

	switch cfg.NotifyTransport {
	case config.TransportNATS:
		n, c, err := notify.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, n)
		closeFn = c
		logger.Info("notifications via nats", "url", cfg.NATSURL, "prefix", cfg.NATSSubject)
	case config.TransportKafka:
		k, c, err := notify.DialKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, k)
		closeFn = c
		logger.Info("notifications via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if len(multi) == 0 {
		return notify.Nop{}, closeFn, nil
	}
	return multi, closeFn, nil
}
