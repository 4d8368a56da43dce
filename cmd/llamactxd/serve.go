package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"llamactx/internal/common/fsutil"
	"llamactx/internal/config"
	"llamactx/internal/httpapi"
	"llamactx/internal/llm"
	"llamactx/internal/manager"
	"llamactx/internal/registry"
)

type serveFlags struct {
	addr          string
	modelsDir     string
	stateDir      string
	budgetMB      int
	marginMB      int
	defaultModel  string
	maxQueueDepth int
	corsOrigins   string
	gpuLayers     int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP inference server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			log, err := root.logger(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, f.gpuLayers, log)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8080")
	fl.StringVar(&f.modelsDir, "models-dir", "", "Directory to scan for *.gguf and *.toy model files")
	fl.StringVar(&f.stateDir, "state-dir", "", "Directory for snapshots and LRU metadata (empty string disables)")
	fl.IntVar(&f.budgetMB, "vram-budget-mb", 0, "VRAM budget in MB for all instances (0=unlimited)")
	fl.IntVar(&f.marginMB, "vram-margin-mb", 0, "Reserved VRAM margin in MB to keep free")
	fl.StringVar(&f.defaultModel, "default-model", "", "Default model id when request omits model")
	fl.IntVar(&f.maxQueueDepth, "max-queue-depth", 0, "Queued requests per session before 429")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed origins; enables CORS")
	fl.IntVar(&f.gpuLayers, "gpu-layers", llm.DefaultModelOptions().GPULayers, "Layers to offload to the GPU")
	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("addr") {
		cfg.Addr = f.addr
	}
	if set("models-dir") {
		cfg.ModelsDir = f.modelsDir
	}
	if set("state-dir") {
		cfg.StateDir = f.stateDir
	}
	if set("vram-budget-mb") {
		cfg.VRAMBudgetMB = f.budgetMB
	}
	if set("vram-margin-mb") {
		cfg.VRAMMarginMB = f.marginMB
	}
	if set("default-model") {
		cfg.DefaultModel = f.defaultModel
	}
	if set("max-queue-depth") {
		cfg.MaxQueueDepth = f.maxQueueDepth
	}
	if set("cors-origins") {
		cfg.CORS.Origins = splitCSV(f.corsOrigins)
		cfg.CORS.Enabled = len(cfg.CORS.Origins) > 0
	}
}

func serve(ctx context.Context, cfg config.Config, gpuLayers int, log zerolog.Logger) error {
	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return err
	}
	stateDir := cfg.StateDir
	if stateDir != "" {
		if stateDir, err = fsutil.ExpandHome(stateDir); err != nil {
			return err
		}
	}
	opts := llm.DefaultModelOptions()
	opts.GPULayers = gpuLayers

	mlog := log.With().Str("component", "manager").Logger()
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:      reg,
		BudgetMB:      cfg.VRAMBudgetMB,
		MarginMB:      cfg.VRAMMarginMB,
		DefaultModel:  cfg.DefaultModel,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       cfg.MaxWait.Duration,
		SessionTTL:    cfg.SessionTTL.Duration,
		StateDir:      stateDir,
		ModelOptions:  opts,
		Context:       cfg.Context,
		Generation:    cfg.Generation,
		Publisher:     eventLogger{log: mlog},
		Logger:        &mlog,
	})

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(int64(cfg.InferTimeoutSeconds))
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Int("models", len(reg)).Msg("llamactxd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	err = g.Wait()
	return multierr.Append(err, mgr.Close())
}

// eventLogger writes manager lifecycle events to the log.
type eventLogger struct{ log zerolog.Logger }

func (p eventLogger) Publish(e manager.Event) {
	ev := p.log.Debug().Str("event", e.Name).Str("model", e.ModelID)
	if e.SessionID != "" {
		ev = ev.Str("session", e.SessionID)
	}
	ev.Fields(e.Fields).Time("at", e.At).Msg("event")
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
