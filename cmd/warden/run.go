package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/warden"
	"github.com/aretw0/warden/internal/logging"
	"github.com/aretw0/warden/pkg/domain"
	"github.com/aretw0/warden/pkg/observability"
	"github.com/aretw0/warden/pkg/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// counterResult is the demo task's persisted state.
type counterResult struct {
	Count int `json:"count"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a demo worker pool",
	Long: `Launches a pool whose task increments a persisted counter once per
spawned process and marks itself finished at the configured target. Each
worker is therefore spawned exactly count_to times, demonstrating the
respawn-until-finished lifecycle.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfgPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		verbose, _ := cmd.Flags().GetBool("verbose")

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

		cfg, err := loadPoolConfig(cfgPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		poll, err := duration(cfg.PollInterval, warden.DefaultPollInterval)
		if err != nil {
			fmt.Printf("Error in poll_interval: %v\n", err)
			os.Exit(1)
		}
		grace, err := duration(cfg.GracePeriod, warden.DefaultGracePeriod)
		if err != nil {
			fmt.Printf("Error in grace_period: %v\n", err)
			os.Exit(1)
		}
		limit, err := duration(cfg.TimeLimit, 0)
		if err != nil {
			fmt.Printf("Error in time_limit: %v\n", err)
			os.Exit(1)
		}

		opts := []warden.Option{
			warden.WithWorkers(cfg.Workers),
			warden.WithPollInterval(poll),
			warden.WithGracePeriod(grace),
			warden.WithTimeLimit(limit),
			warden.WithStoreConfig(cfg.Store),
			warden.WithLogger(logger),
			warden.WithTask(counterTask(cfg.CountTo)),
		}

		// Only the long-lived supervisor serves metrics; spawned children
		// re-enter this command and must not fight over the port.
		if metricsAddr != "" && !worker.InChildProcess() {
			metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
			opts = append(opts, warden.WithMetrics(metrics))
			go serveMetrics(metricsAddr, logger)
		}

		sup := warden.New(opts...)

		results, err := sup.Run(context.Background())
		if err != nil {
			fmt.Printf("Error running pool: %v\n", err)
			os.Exit(1)
		}

		for slot := 0; slot < cfg.Workers; slot++ {
			var res counterResult
			if err := domain.DecodeResult(results[slot], &res); err != nil {
				logger.Error("undecodable result", "slot", slot, "err", err)
				continue
			}
			fmt.Printf("slot %d: count=%d\n", slot, res.Count)
		}
	},
}

// counterTask builds the demo task: rehydrate the counter, bump it, and
// finish once the target is reached. One increment per spawned process.
func counterTask(target int) worker.Task {
	return func(w *worker.Worker) {
		ctx := context.Background()

		raw, err := w.SavedResult(ctx)
		if err != nil {
			fmt.Printf("worker %d: failed to load state: %v\n", w.Slot(), err)
			return
		}
		var res counterResult
		if err := domain.DecodeResult(raw, &res); err != nil {
			fmt.Printf("worker %d: corrupt state: %v\n", w.Slot(), err)
			return
		}

		res.Count++
		if err := w.SaveResult(ctx, res); err != nil {
			fmt.Printf("worker %d: failed to save state: %v\n", w.Slot(), err)
			return
		}

		if res.Count >= target {
			if err := w.MarkFinished(ctx); err != nil {
				fmt.Printf("worker %d: failed to mark finished: %v\n", w.Slot(), err)
			}
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "Path to a pool config YAML file")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :2112)")
}
