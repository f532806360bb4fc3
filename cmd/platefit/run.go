package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cwbudde/platefit/internal/campaign"
	"github.com/cwbudde/platefit/internal/config"
	"github.com/cwbudde/platefit/internal/dispatch"
	"github.com/cwbudde/platefit/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	dataDir      string
	outDir       string
	runID        string
	parallelMode string
	workers      int
	rank         int
	nprocs       int
	exchangeDir  string
	resume       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization campaign",
	Long: `Runs every time step of the configured campaign, oldest to youngest,
committing the winning rotation of each step before the next one starts.`,
	RunE: runCampaign,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Campaign configuration file (required)")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "", "Override the configured data directory")
	runCmd.Flags().StringVar(&outDir, "out-dir", "./out", "Output directory for results and the working rotation model")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when empty; required in distributed mode)")
	runCmd.Flags().StringVar(&parallelMode, "parallel", "", "Override the parallel mode: none, pool, distributed")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Override the pool worker count")
	runCmd.Flags().IntVar(&rank, "rank", 0, "This process's rank in distributed mode")
	runCmd.Flags().IntVar(&nprocs, "nprocs", 1, "Total process count in distributed mode")
	runCmd.Flags().StringVar(&exchangeDir, "exchange-dir", "", "Shared exchange directory for distributed mode")
	runCmd.Flags().BoolVar(&resume, "resume", false, "Skip steps already committed for this run")

	runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if parallelMode != "" {
		cfg.Parallel.Mode = parallelMode
	}
	if workers > 0 {
		cfg.Parallel.Workers = workers
	}

	if runID == "" {
		if cfg.Parallel.Mode == "distributed" {
			return fmt.Errorf("--run-id is required in distributed mode so every rank shares one run")
		}
		runID = uuid.NewString()[:8]
	}

	results, err := store.NewFSResultStore(outDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	dispatcher, dist, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	coordinator := dist == nil || dist.IsCoordinator()

	workingRot, err := prepareWorkingModel(cfg, coordinator)
	if err != nil {
		return err
	}
	rotations := store.NewRotationStore(workingRot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := campaign.NewController(cfg, rotations, results, dispatcher, dist, runID, resume)

	start := time.Now()
	acc, err := controller.Run(ctx)
	if err != nil {
		return err
	}

	if coordinator {
		slog.Info("Run finished",
			"run", runID,
			"steps", acc.Steps(),
			"meanCost", acc.MeanCost(),
			"model", workingRot,
			"elapsed", time.Since(start).Round(time.Millisecond).String())
	}
	return nil
}

func newDispatcher(cfg *config.Config) (dispatch.Dispatcher, *dispatch.Distributed, error) {
	switch cfg.Parallel.Mode {
	case "none":
		return dispatch.NewSerial(), nil, nil
	case "pool":
		return dispatch.NewPool(cfg.Parallel.Workers), nil, nil
	case "distributed":
		if exchangeDir == "" {
			return nil, nil, fmt.Errorf("--exchange-dir is required in distributed mode")
		}
		dist, err := dispatch.NewDistributed(rank, nprocs, exchangeDir)
		if err != nil {
			return nil, nil, err
		}
		return dist, dist, nil
	default:
		return nil, nil, fmt.Errorf("unknown parallel mode: %s", cfg.Parallel.Mode)
	}
}

// prepareWorkingModel copies the input rotation model into the run's
// output directory so the campaign never mutates the source data. Worker
// ranks only resolve the path; the coordinator owns the copy.
func prepareWorkingModel(cfg *config.Config, coordinator bool) (string, error) {
	name := cfg.ModelName
	if name == "" {
		name = "optimized"
	}
	runDir := filepath.Join(outDir, "runs", runID)
	working := filepath.Join(runDir, name+".rot")

	if !coordinator {
		return working, nil
	}
	if resume {
		if _, err := os.Stat(working); err == nil {
			return working, nil
		}
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	src, err := os.Open(cfg.DataPath(cfg.Data.RotationFile))
	if err != nil {
		return "", fmt.Errorf("failed to open rotation model: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(working)
	if err != nil {
		return "", fmt.Errorf("failed to create working rotation model: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to copy rotation model: %w", err)
	}
	return working, nil
}
