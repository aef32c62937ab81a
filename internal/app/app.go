package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/gateway/payos"
	"github.com/GlebRadaev/coursepay/internal/gateway/paypal"
	"github.com/GlebRadaev/coursepay/internal/gateway/stripe"
	"github.com/GlebRadaev/coursepay/internal/handlers"
	"github.com/GlebRadaev/coursepay/internal/jobs"
	"github.com/GlebRadaev/coursepay/internal/lms"
	"github.com/GlebRadaev/coursepay/internal/outbox"
	"github.com/GlebRadaev/coursepay/internal/payout"
	"github.com/GlebRadaev/coursepay/internal/pg"
	"github.com/GlebRadaev/coursepay/internal/repo"
	"github.com/GlebRadaev/coursepay/internal/service"
	"github.com/GlebRadaev/coursepay/internal/service/paymentservice"
	"github.com/GlebRadaev/coursepay/pkg/auth"
	"github.com/GlebRadaev/coursepay/pkg/broker"
	"github.com/GlebRadaev/coursepay/pkg/clients"
	"github.com/GlebRadaev/coursepay/pkg/idgen"
	"github.com/GlebRadaev/coursepay/pkg/lock"
	"github.com/GlebRadaev/coursepay/pkg/logger"
)

type ApplicationI interface {
	Start(ctx context.Context) error
	Wait(ctx context.Context, cancel context.CancelFunc) error
}

type closer interface {
	Close() error
}

type Application struct {
	cfg    *config.Config
	api    *handlers.Handlers
	srv    *service.Services
	repo   *repo.Repositories
	outbox *outbox.Dispatcher
	jobs   *jobs.Manager

	pool    *pgxpool.Pool
	closers []closer

	errCh chan error
	wg    sync.WaitGroup
	ready bool
}

func New() *Application {
	return &Application{
		errCh: make(chan error),
	}
}

func (a *Application) Start(ctx context.Context) error {
	cfg := config.New()

	err := logger.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("can't init logger: %w", err)
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	pool, err := getPgxpool(ctx, cfg)
	if err != nil {
		zap.L().Error("build pgx pool failed: ", zap.Error(err))
		return fmt.Errorf("can't build pgx pool: %w", err)
	}
	a.pool = pool
	if err := pg.RunMigrations(pool); err != nil {
		zap.L().Error("migrations failed: ", zap.Error(err))
		return fmt.Errorf("can't run migrations: %w", err)
	}
	txManager := pg.NewTXManager(pool)

	conn := pg.New(pool)
	a.cfg = cfg
	a.repo = repo.New(conn, txManager)

	httpClient := clients.NewHTTPClient()
	catalog := lms.New(cfg.LMSAddress, httpClient)

	numbers, err := idgen.New(cfg.NodeID)
	if err != nil {
		return fmt.Errorf("can't build order number generator: %w", err)
	}
	payouts, err := payout.New(cfg, httpClient)
	if err != nil {
		return fmt.Errorf("can't build payout provider: %w", err)
	}
	locker, err := newLocker(cfg)
	if err != nil {
		return fmt.Errorf("can't build checkout locker: %w", err)
	}
	if c, ok := locker.(closer); ok {
		a.closers = append(a.closers, c)
	}
	publisher, err := broker.New(cfg.Broker)
	if err != nil {
		return fmt.Errorf("can't build broker publisher: %w", err)
	}
	a.closers = append(a.closers, publisher)

	a.srv, err = service.New(cfg, a.repo, service.Deps{
		Catalog:  catalog,
		Numbers:  numbers,
		Gateways: newGateways(cfg, httpClient),
		Locker:   locker,
		Payouts:  payouts,
	})
	if err != nil {
		return fmt.Errorf("can't build services: %w", err)
	}
	a.api = handlers.New(a.srv, payouts, auth.NewJWTService(cfg.JWTSecret))

	a.outbox = outbox.New(cfg, a.repo.OutboxRepo, publisher)
	outbox.Register(a.outbox, catalog, a.srv.PaymentService)
	a.jobs = jobs.New(cfg, a.srv.WalletService, a.srv.PaymentService)

	if err = a.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("can't start http server: %w", err)
	}
	a.startOutbox(ctx)
	if err = a.startJobs(ctx); err != nil {
		return fmt.Errorf("can't start cron jobs: %w", err)
	}

	a.ready = true
	zap.L().Info("all systems started successfully")
	return nil
}

func getPgxpool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	cfgpool, err := pgxpool.ParseConfig(cfg.Database)
	if err != nil {
		return nil, err
	}
	dbpool, err := pgxpool.NewWithConfig(ctx, cfgpool)
	if err != nil {
		return nil, err
	}
	if err = dbpool.Ping(ctx); err != nil {
		return nil, err
	}
	return dbpool, nil
}

// newGateways registers only the providers whose webhook secret is configured.
func newGateways(cfg *config.Config, client clients.HTTPClientI) *gateway.Registry {
	tolerance := cfg.Checkout.WebhookTolerance
	var gateways []gateway.Gateway
	if cfg.Stripe.WebhookSecret != "" {
		gateways = append(gateways, stripe.New(cfg.Stripe, tolerance, client))
	} else {
		zap.L().Warn("stripe disabled: STRIPE_WEBHOOK_SECRET is not set")
	}
	if cfg.PayPal.WebhookID != "" {
		gateways = append(gateways, paypal.New(paypal.NewAPI(cfg.PayPal, tolerance, client)))
	} else {
		zap.L().Warn("paypal disabled: PAYPAL_WEBHOOK_ID is not set")
	}
	if cfg.PayOS.ChecksumKey != "" {
		gateways = append(gateways, payos.New(cfg.PayOS, client))
	} else {
		zap.L().Warn("payos disabled: PAYOS_CHECKSUM_KEY is not set")
	}
	return gateway.NewRegistry(gateways...)
}

// newLocker falls back to a no-op lock when Redis is not configured; the open-attempt
// uniqueness in the database still holds.
func newLocker(cfg *config.Config) (paymentservice.Locker, error) {
	if cfg.RedisURL == "" {
		zap.L().Info("redis not configured, checkout locks are local no-ops")
		return lock.Nop{}, nil
	}
	return lock.NewFromURL(cfg.RedisURL)
}

func (a *Application) startHTTPServer(ctx context.Context) error {
	router := chi.NewRouter()
	a.api.InitRoutes(router)
	server := http.Server{
		Addr:              a.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()

		sCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(sCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		zap.L().Info("starting http server on port", zap.String("port", a.cfg.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.errCh <- fmt.Errorf("http server exited with error: %w", err)
		}
	}()

	return nil
}

func (a *Application) startOutbox(ctx context.Context) {
	a.outbox.Start(ctx)
}

func (a *Application) startJobs(ctx context.Context) error {
	if err := a.jobs.Start(ctx); err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
		a.jobs.Stop()
	}()
	return nil
}

func (a *Application) Wait(ctx context.Context, cancel context.CancelFunc) error {
	var appErr error

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for err := range a.errCh {
			cancel()
			zap.L().Error(err.Error())
			appErr = err
		}
	}()

	<-ctx.Done()
	a.wg.Wait()
	close(a.errCh)
	wg.Wait()

	a.shutdown()
	return appErr
}

func (a *Application) shutdown() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			zap.L().Error("close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
