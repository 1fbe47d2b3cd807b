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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/agent/dify"
	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	repo "github.com/joseph-ayodele/essaycoach/internal/repository"
	"github.com/joseph-ayodele/essaycoach/internal/server"
)

func main() {
	var (
		debug    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:           "essaycoachd",
		Short:         "Serve gRPC health and Prometheus metrics for the essay pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			logger := common.NewLogger(os.Stdout, debug)
			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ValidateAgent(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
			if err != nil {
				return fmt.Errorf("creating DB pool: %w", err)
			}
			defer db.Close()
			if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
				return fmt.Errorf("DB health failed: %w", err)
			}
			if err := repo.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("DB health OK")

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			rec, err := metrics.New(reg)
			if err != nil {
				return err
			}

			providers := agent.NewRegistry()
			dify.Register(providers)
			essayAgent, err := providers.New(cfg.Agent.Provider, agent.Deps{
				Config:  cfg.Agent,
				Rubrics: repo.NewRubricRepository(db, logger),
				Metrics: rec,
				Logger:  logger,
			})
			if err != nil {
				return err
			}

			// gRPC server with health service
			grpcServer := grpc.NewServer()
			hs := health.NewServer()
			healthpb.RegisterHealthServer(grpcServer, hs)
			reflection.Register(grpcServer)

			monitor := server.NewHealthMonitor(hs, logger, interval,
				server.Check{Name: "database", Probe: func(ctx context.Context) bool { return db.HealthCheck(ctx, 3*time.Second) == nil }},
				server.Check{Name: essayAgent.ProviderName(), Probe: essayAgent.HealthCheck},
			)
			go monitor.Run(ctx)

			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			go func() {
				logger.Info("gRPC serving", "addr", cfg.Server.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("grpc serve", "error", err)
					stop()
				}
			}()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				logger.Info("metrics serving", "addr", cfg.Server.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics serve", "error", err)
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("shutting down...")
			hs.Shutdown()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics shutdown", "error", err)
			}
			grpcServer.GracefulStop()
			logger.Info("stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().DurationVar(&interval, "health-interval", 30*time.Second, "how often dependencies are probed")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
