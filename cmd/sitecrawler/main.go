// Command sitecrawler is the single binary shared by every rank in the
// cluster: rank 0 runs the master's HTTP front end, ranks 1..F run a
// farmer, and the remaining ranks run a worker under one of the farmers.
//
// Flag parsing, context cancellation on SIGINT/SIGTERM, and zap
// construction follow the same shape used for single-process entry
// points in this codebase, generalized into the rank-dispatching
// entry point that a master/farmer/worker cluster needs, using
// github.com/spf13/cobra for the flag surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cametumbling/sitecrawler/internal/cluster"
	"github.com/cametumbling/sitecrawler/internal/config"
	"github.com/cametumbling/sitecrawler/internal/httpapi"
	"github.com/cametumbling/sitecrawler/internal/node/farmer"
	"github.com/cametumbling/sitecrawler/internal/node/master"
	"github.com/cametumbling/sitecrawler/internal/node/worker"
	"github.com/cametumbling/sitecrawler/internal/platform/clock"
	"github.com/cametumbling/sitecrawler/internal/platform/httpclient"
	"github.com/cametumbling/sitecrawler/internal/submission"
)

var (
	flagConfigName string
	flagFarmers    int
	flagWorkers    int
)

var rootCmd = &cobra.Command{
	Use:   "sitecrawler",
	Short: "A distributed, rank-based site crawler",
	Long: `sitecrawler runs every rank of a master/farmer/worker cluster from
one binary. Rank 0 is the master's HTTP front end; ranks 1..F are
farmers; the rest are workers distributed evenly across the farmers.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigName, "config", "", "config file name (without extension), searched as YAML")
	rootCmd.PersistentFlags().IntVar(&flagFarmers, "farmers", 0, "farmer count (0 = use config/default)")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "workers per farmer (0 = use config/default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if flagFarmers > 0 {
		cfg.Farmers = flagFarmers
	}
	if flagWorkers > 0 {
		cfg.WorkersPerFarmer = flagWorkers
	}

	topology := cluster.Topology{Farmers: cfg.Farmers, WorkersPerFarmer: cfg.WorkersPerFarmer}
	if err := topology.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	clu, err := cluster.New(topology)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("sitecrawler: build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := httpclient.New(httpclient.Config{
		Timeout:     cfg.FetchTimeout,
		UserAgent:   cfg.UserAgent,
		MaxBodySize: cfg.MaxBodySize,
		RateLimit:   cfg.FetchRateLimit,
	})

	sugar.Infow("sitecrawler online", "farmers", topology.Farmers, "workers_per_farmer", topology.WorkersPerFarmer,
		"total_processes", topology.TotalProcesses())

	runMaster(ctx, cfg, clu, sugar)
	runFarmers(ctx, topology, clu, sugar)
	runWorkers(ctx, topology, clu, fetcher, sugar)

	<-ctx.Done()
	sugar.Info("shutdown signal received, terminating cluster")

	return nil
}

func runMaster(ctx context.Context, cfg config.Config, clu *cluster.Cluster, logger *zap.SugaredLogger) {
	m := &master.Master{
		Endpoint: clu.MasterEndpoint(),
		Farmers:  clu.Topology.Farmers,
		Sink:     &submission.Sink{ResultsRoot: cfg.ResultsDir, Clock: clock.System{}},
		Logger:   logger.Named("master"),
	}

	srv := httpapi.New(httpapi.Config{DataDir: cfg.DataDir, Addr: cfg.ListenAddr}, httpSubmitter{m}, logger.Named("http"))

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Errorw("http server exited with error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx := context.Background()
		m.Shutdown(shutdownCtx)
	}()
}

// httpSubmitter adapts master.Master's (context, string) Submit method
// (which also needs the caller to pass a request-scoped context) onto
// httpapi.Submitter.
type httpSubmitter struct {
	m *master.Master
}

func (h httpSubmitter) Submit(ctx context.Context, rawURLs string) []string {
	return h.m.Submit(ctx, rawURLs)
}

func runFarmers(ctx context.Context, topology cluster.Topology, clu *cluster.Cluster, logger *zap.SugaredLogger) {
	for i := 0; i < topology.Farmers; i++ {
		i := i
		f := &farmer.Farmer{
			MasterEndpoint: clu.FarmerMasterEndpoint(i),
			WorkerEndpoint: clu.FarmerWorkersEndpoint(i),
			Workers:        topology.WorkersPerFarmer,
			Logger:         logger.Named(fmt.Sprintf("farmer-%d", i+1)),
		}
		go func() {
			if err := f.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Errorw("farmer exited with error", "farmer", i+1, "error", err)
			}
		}()
	}
}

func runWorkers(ctx context.Context, topology cluster.Topology, clu *cluster.Cluster, fetcher worker.Fetcher, logger *zap.SugaredLogger) {
	for i := 0; i < topology.Farmers; i++ {
		for rank := 1; rank <= topology.WorkersPerFarmer; rank++ {
			i, rank := i, rank
			w := &worker.Worker{
				Rank:     rank,
				Endpoint: clu.WorkerEndpoint(i, rank),
				Fetcher:  fetcher,
				Logger:   logger.Named(fmt.Sprintf("worker-%d-%d", i+1, rank)),
			}
			go func() {
				if err := w.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Errorw("worker exited with error", "farmer", i+1, "worker", rank, "error", err)
				}
			}()
		}
	}
}
