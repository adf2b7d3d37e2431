// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command prodctl runs the long-lived Controller sweep loop for one
// already-created production. Front-end commands (mc-production,
// reco-production) launch it detached by default; --foreground keeps it
// attached to the invoking terminal instead of redirecting its log
// output into the production directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/controller"
	"github.com/padme-exp/prodctl/internal/lockfile"
	"github.com/padme-exp/prodctl/internal/wiring"
	"github.com/padme-exp/prodctl/pkg/config"
	"github.com/padme-exp/prodctl/pkg/logging"
	"github.com/padme-exp/prodctl/pkg/metrics"
	"github.com/padme-exp/prodctl/pkg/pclock"
	"github.com/padme-exp/prodctl/pkg/statusstream"
)

var (
	productionName string
	foreground     bool
	ceFlavor       string
	statusAddr     string
)

var rootCmd = &cobra.Command{
	Use:   "prodctl",
	Short: "Run the production controller sweep loop",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&productionName, "production", "", "name of the production to drive (required)")
	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "keep logs attached to this terminal instead of appending them to <name>.log in the production directory; stderr is not redirected")
	rootCmd.Flags().StringVar(&ceFlavor, "ce-flavor", string(wiring.CeFlavorCLI), "CE adapter flavor: cli or htcondor")
	rootCmd.Flags().StringVar(&statusAddr, "status-addr", "", "if set, serve a live sweep status stream (GET /status, GET /status/ws) on this address")
	rootCmd.MarkFlagRequired("production")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("prodctl: load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := wiring.OpenCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("prodctl: open catalog: %w", err)
	}
	defer cat.Close()

	prodID, err := cat.GetProductionID(ctx, productionName)
	if err != nil {
		return fmt.Errorf("prodctl: production %q not found: %w", productionName, err)
	}
	prod, err := cat.GetProductionInfo(ctx, prodID)
	if err != nil {
		return fmt.Errorf("prodctl: load production %q: %w", productionName, err)
	}

	prodDir := prod.WorkingDir
	if prodDir == "" {
		prodDir = filepath.Join(cfg.WorkingRoot, prod.Version, prod.Name)
	}
	if err := os.MkdirAll(prodDir, 0o755); err != nil {
		return fmt.Errorf("prodctl: create production directory %s: %w", prodDir, err)
	}

	lock, err := lockfile.Acquire(filepath.Join(prodDir, prod.Name+".pid"))
	if err != nil {
		return fmt.Errorf("prodctl: acquire lock: %w", err)
	}
	defer lock.Release()

	logger := buildLogger(cfg, prodDir, prod.Name)

	r := wiring.NewCommandRunner(logger)
	clock := pclock.Real{}
	random := pclock.NewRandom(time.Now().UnixNano())

	delegatedPath := filepath.Join(prodDir, prod.Name+".voms")
	credMgr := wiring.NewCredentialManager(cfg, r, clock, delegatedPath)
	storage := wiring.NewStorageAdapter(cfg, r)

	ces, err := wiring.NewCeAdapters(cfg, r, prod.CeList, wiring.CeFlavor(ceFlavor))
	if err != nil {
		return fmt.Errorf("prodctl: build CE adapters: %w", err)
	}

	collector := metrics.NewInMemoryCollector()

	var publisher controller.StatusPublisher
	if statusAddr != "" {
		hub := statusstream.NewHub(logger.With("component", "statusstream"))
		publisher = hub
		srv := &http.Server{Addr: statusAddr, Handler: buildStatusRouter(cat, prodID, hub)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status-stream server exited", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		logger.Info("status-stream listening", "addr", statusAddr)
	}

	ctl, err := controller.New(ctx, cat, ces, credMgr, storage, logger, clock, random,
		prodID, prodDir, prod.StorageURI, cfg.ResubmitMax, cfg.ResubmitCancelled,
		controller.Cadence{
			SweepDelay:              cfg.SweepDelay,
			SweepJitter:             cfg.SweepJitter,
			QuitDelay:               cfg.QuitDelay,
			RenewalThreshold:        cfg.RenewalThreshold,
			UndefEscalatorThreshold: cfg.UndefEscalatorThreshold,
			WorkerPoolSize:          cfg.WorkerPoolSize,
		},
		collector,
		publisher,
	)
	if err != nil {
		return fmt.Errorf("prodctl: build controller: %w", err)
	}

	logger.Info("controller starting", "production", prod.Name, "jobs", prod.NJobs)
	runErr := ctl.Run(ctx)
	stats := collector.GetStats()
	logger.Info("controller exiting", "production", prod.Name, "sweeps", stats.TotalSweeps)
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("prodctl: sweep loop: %w", runErr)
	}
	return nil
}

// buildStatusRouter wires the status-stream endpoints a dashboard or
// report-jobs --watch session connects to: a JSON rollup snapshot and
// the WebSocket upgrade that streams live sweep events from hub.
func buildStatusRouter(cat catalog.Catalog, prodID int64, hub *statusstream.Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status/ws", hub.ServeWS)
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		prod, err := cat.GetProductionInfo(req.Context(), prodID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Name      string `json:"name"`
			NJobs     int    `json:"n_jobs"`
			NJobsOk   int    `json:"n_jobs_ok"`
			NJobsFail int    `json:"n_jobs_fail"`
			NEvents   int64  `json:"n_events"`
			Open      bool   `json:"open"`
		}{
			Name:      prod.Name,
			NJobs:     prod.NJobs,
			NJobsOk:   prod.NJobsOk,
			NJobsFail: prod.NJobsFail,
			NEvents:   prod.NEvents,
			Open:      prod.Open(),
		})
	}).Methods(http.MethodGet)
	return r
}

func buildLogger(cfg *config.Config, prodDir, name string) logging.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	out := os.Stdout
	if !foreground {
		if f, err := os.OpenFile(filepath.Join(prodDir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}

	return logging.NewLogger(&logging.Config{
		Level:     level,
		Format:    logging.FormatText,
		Output:    out,
		Component: "prodctl",
	})
}
