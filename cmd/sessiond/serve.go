package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sessiond/internal/config"
	"sessiond/internal/httpapi"
	"sessiond/internal/registry"
	"sessiond/internal/session"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr          string
		defaultModel  string
		preload       bool
		watch         bool
		corsEnabled   bool
		corsOrigins   string
		corsMethods   string
		corsHeaders   string
		maxBody       int64
		genTimeout    time.Duration
		shutdownGrace time.Duration
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API",
		Example: "  sessiond serve --models-dir ~/models --default-model gemma-2b-it-q4.gguf --preload\n  sessiond serve --engine server --server-url http://127.0.0.1:8081",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			fs := cmd.Flags()
			if fs.Changed("addr") {
				cfg.Addr = addr
			}
			if fs.Changed("default-model") {
				cfg.DefaultModel = defaultModel
			}
			if fs.Changed("max-body-bytes") {
				cfg.HTTP.MaxBodyBytes = maxBody
			}
			if fs.Changed("generate-timeout") {
				cfg.HTTP.GenerateTimeout = config.Duration{Duration: genTimeout}
			}
			if fs.Changed("cors") {
				cfg.HTTP.CORSEnabled = corsEnabled
			}
			if v := splitCSV(corsOrigins); len(v) > 0 {
				cfg.HTTP.CORSOrigins = v
			}
			if v := splitCSV(corsMethods); len(v) > 0 {
				cfg.HTTP.CORSMethods = v
			}
			if v := splitCSV(corsHeaders); len(v) > 0 {
				cfg.HTTP.CORSHeaders = v
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg, preload, watch, shutdownGrace)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", envOr("SESSIOND_ADDR", ":8080"), "HTTP listen address, e.g. :8080 (defaults SESSIOND_ADDR)")
	f.StringVar(&defaultModel, "default-model", "", "Model id or path loaded when /load names none")
	f.BoolVar(&preload, "preload", false, "Load the default model at startup")
	f.BoolVar(&watch, "watch", false, "Reload default sampling settings when the config file changes")
	f.BoolVar(&corsEnabled, "cors", false, "Enable CORS")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed origins")
	f.StringVar(&corsMethods, "cors-methods", "", "Comma-separated allowed methods")
	f.StringVar(&corsHeaders, "cors-headers", "", "Comma-separated allowed headers")
	f.Int64Var(&maxBody, "max-body-bytes", 0, "Maximum JSON request body size (0=1MiB)")
	f.DurationVar(&genTimeout, "generate-timeout", 0, "Per-request generate timeout on top of the controller timers (0=off)")
	f.DurationVar(&shutdownGrace, "shutdown-grace", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}

func (a *app) serve(parent context.Context, cfg config.Config, preload, watch bool, grace time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := a.log
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
	httpapi.SetGenerateTimeout(cfg.HTTP.GenerateTimeout.Duration)
	httpapi.SetCORSOptions(cfg.HTTP.CORSEnabled, cfg.HTTP.CORSOrigins, cfg.HTTP.CORSMethods, cfg.HTTP.CORSHeaders)

	ctrl := a.newController()
	defer func() { _ = ctrl.Release() }()

	reg := registry.New(cfg.ModelsDir, nil)
	if err := reg.Refresh(); err != nil {
		log.Warn().Str("dir", cfg.ModelsDir).Err(err).Msg("model scan failed")
	}
	svc := httpapi.NewControllerService(ctrl, reg, cfg.ModelConfig(), cfg.DefaultModel)

	if preload && cfg.DefaultModel != "" {
		path, err := reg.Resolve(cfg.DefaultModel)
		if err == nil {
			err = ctrl.LoadModel(ctx, path, cfg.ModelConfig())
		}
		if err != nil {
			log.Error().Str("event", "preload_error").Str("model", cfg.DefaultModel).Err(err).Msg("preload failed")
		}
	}

	if watch && a.configPath != "" {
		go func() {
			err := config.Watch(ctx, a.configPath, func(next config.Config) {
				svc.SetDefaults(next.ModelConfig())
				log.Info().Str("event", "config_reloaded").Str("path", a.configPath).Msg("default settings updated")
			}, func(err error) {
				log.Warn().Str("event", "config_reload_error").Err(err).Msg("config reload failed; keeping previous settings")
			})
			if err != nil {
				log.Error().Err(err).Msg("config watch stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Str("engine", cfg.Engine.Kind).Bool("llama_built", session.LlamaBuilt()).Msg("sessiond listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("sessiond stopped")
	return nil
}
