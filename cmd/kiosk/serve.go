package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"

	"github.com/simaogato/cryptokiosk-backend/internal/adapter/cache"
	grpcadapter "github.com/simaogato/cryptokiosk-backend/internal/adapter/grpc"
	"github.com/simaogato/cryptokiosk-backend/internal/adapter/notify"
	"github.com/simaogato/cryptokiosk-backend/internal/adapter/price"
	"github.com/simaogato/cryptokiosk-backend/internal/adapter/repository/memory"
	"github.com/simaogato/cryptokiosk-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/cryptokiosk-backend/internal/adapter/simulated"
	"github.com/simaogato/cryptokiosk-backend/internal/config"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/simaogato/cryptokiosk-backend/internal/metrics"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/fee"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/flow"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/ledger"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/quote"
	"github.com/simaogato/cryptokiosk-backend/internal/usecase/verification"
)

const codeStoreCleanup = time.Minute

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk gRPC server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, configPath)
			if err != nil {
				return err
			}

			logger, err := cfg.Log.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().String("server.addr", "", "gRPC listen address")
	cmd.Flags().String("metrics.addr", "", "Prometheus listen address")
	cmd.Flags().String("database.dsn", "", "Postgres connection string; empty keeps records in memory")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", "", "log format (json or console)")

	return cmd
}

// kiosk holds everything serve starts and must stop
type kiosk struct {
	controller *flow.Controller
	grpc       *grpclib.Server
	metrics    *http.Server
	closers    []func() error
}

// close releases storage handles in reverse order of creation
func (k *kiosk) close() error {
	var err error
	for i := len(k.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, k.closers[i]())
	}
	return err
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	k, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = k.close()
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.Addr))
		if err := k.grpc.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	if k.metrics != nil {
		go func() {
			logger.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
			if err := k.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(serveErr))
	}

	return multierr.Append(serveErr, shutdown(k, cfg.Server.ShutdownTimeout, logger))
}

func shutdownSignal() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	return sigChan
}

// shutdown stops accepting requests, then waits for in-flight kiosk operations before closing storage
func shutdown(k *kiosk, timeout time.Duration, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		k.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		k.grpc.Stop()
	}
	logger.Info("gRPC server stopped")

	var err error
	if k.metrics != nil {
		err = multierr.Append(err, k.metrics.Shutdown(ctx))
	}

	if settleErr := k.controller.Settle(ctx); settleErr != nil {
		logger.Warn("kiosk operations still running at shutdown", zap.Error(settleErr))
		err = multierr.Append(err, settleErr)
	}

	return multierr.Append(err, k.close())
}

// build wires the kiosk from configuration
// Logic:
//  1. Metrics registry
//  2. Transaction records: postgres when a DSN is set, memory otherwise
//  3. Verification codes and send limits: redis when addresses are set, memory otherwise
//  4. Code delivery: webhook gateway when a URL is set, log otherwise
//  5. Quotes, pricing, simulated hardware and payments
//  6. Flow controller and gRPC server
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*kiosk, error) {
	k := &kiosk{}
	fail := func(err error) (*kiosk, error) {
		return nil, multierr.Append(err, k.close())
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	fallbacks, err := cfg.Fallbacks()
	if err != nil {
		return nil, err
	}
	tickers, err := cfg.Tickers()
	if err != nil {
		return nil, err
	}

	// 1. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		k.metrics = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// 2. Records
	var records domain.TransactionRecordRepository
	if cfg.Database.DSN != "" {
		db, err := postgres.NewDB(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		k.closers = append(k.closers, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("failed to prepare database schema: %w", err))
		}
		records = postgres.NewTransactionRecordRepository(db)
		logger.Info("transaction records stored in postgres")
	} else {
		records = memory.NewTransactionRecordRepository()
		logger.Warn("no database configured, transaction records are kept in memory")
	}

	// 3. Codes and limits
	var (
		codes   domain.CodeStore
		limiter domain.SendLimiter
	)
	vc := cfg.Verification
	if len(cfg.Redis.Addrs) > 0 {
		rc := cache.NewRedisCache(cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.Cluster)
		k.closers = append(k.closers, rc.Close)

		if err := rc.Ping(ctx); err != nil {
			return fail(fmt.Errorf("failed to reach redis: %w", err))
		}
		codes = cache.NewRedisCodeStore(rc)
		limiter = cache.NewRedisLimiter(rc, vc.SendWindow, vc.SendMax, vc.SendCooldown)
	} else {
		codes = cache.NewMemoryCodeStore(codeStoreCleanup)
		limiter = cache.NewMemoryLimiter(vc.SendWindow, vc.SendMax, vc.SendCooldown)
	}

	// 4. Delivery
	var dispatcher domain.CodeDispatcher
	if vc.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(vc.WebhookURL, vc.WebhookToken, vc.WebhookTimeout, logger)
	} else {
		dispatcher = notify.NewLogDispatcher(logger)
	}

	verifier, err := verification.NewVerificationService(codes, dispatcher, limiter, cfg.VerificationSettings(), m, logger)
	if err != nil {
		return fail(err)
	}

	// 5. Quotes, pricing and simulated collaborators
	binance := price.NewBinanceClient(cfg.Quote.BaseURL, tickers, cfg.Quote.Timeout, logger)
	quotes := quote.NewProviderService(binance, fallbacks, cfg.Quote.Timeout, m, logger)
	pricer := fee.NewCalculator(policy)
	ledgerService := ledger.NewLedgerService(records, logger)

	sim := cfg.Simulation

	// 6. Controller and transport
	controller, err := flow.NewController(flow.Dependencies{
		Policy:     policy,
		Quotes:     quotes,
		Pricer:     pricer,
		Verifier:   verifier,
		Cash:       simulated.NewCashAcceptor(sim.CashAmount, sim.CashDelay, logger),
		Settlement: simulated.NewSettlementGateway(sim.SettlementDelay, logger),
		Invoices:   simulated.NewInvoiceGenerator(sim.LightningAddress, sim.TRC20Wallet),
		Payments:   simulated.NewPaymentConfirmer(sim.PaymentDelay, logger),
		Ledger:     ledgerService,
		Observer: flow.ObserverFunc(func(v flow.View) {
			logger.Debug("view",
				zap.String("screen", string(v.Screen)),
				zap.String("step", v.StepName),
				zap.String("pending", v.Pending),
				zap.String("last_error", v.LastError),
			)
		}),
		Metrics:          m,
		Logger:           logger,
		OperationTimeout: cfg.Flow.OperationTimeout,
	})
	if err != nil {
		return fail(err)
	}
	k.controller = controller

	k.grpc = grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(cfg.Server.APIToken),
		),
	)
	grpcadapter.RegisterKioskServiceServer(k.grpc, grpcadapter.NewServer(controller, quotes, pricer, ledgerService))

	return k, nil
}
