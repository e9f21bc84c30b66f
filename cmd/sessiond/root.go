package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sessiond/internal/config"
	"sessiond/internal/logging"
	"sessiond/internal/session"
)

// app carries state shared by subcommands after PersistentPreRunE.
type app struct {
	configPath string
	cfg        config.Config
	log        zerolog.Logger
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default(), log: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "sessiond",
		Short:         "On-device LLM inference session daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", os.Getenv("SESSIOND_CONFIG"), "Config file (.yaml|.yml|.json|.toml); defaults SESSIOND_CONFIG")
	pf.String("log-level", envOr("SESSIOND_LOG_LEVEL", ""), "Log level: trace|debug|info|warn|error|off (defaults SESSIOND_LOG_LEVEL or config)")
	pf.String("log-format", "", "Log format: auto|console|json")
	pf.String("log-file", "", "Also write JSON logs to this file (rotated)")
	pf.String("models-dir", envOr("SESSIOND_MODELS_DIR", ""), "Directory to scan for model files")
	pf.String("engine", "", "Inference engine: llama|server")
	pf.String("server-url", "", "llama.cpp server base URL (engine=server)")
	pf.String("api-key", os.Getenv("SESSIOND_API_KEY"), "Bearer token for the llama.cpp server")
	pf.String("lib-dir", "", "Directory holding ggml backend libraries (engine=llama)")
	pf.Int("ctx-size", 0, "Context size in tokens (engine=llama)")
	pf.Int("threads", 0, "Inference threads (engine=llama, 0=auto)")
	pf.Int("gpu-layers", 0, "Layers to offload in gpu mode (engine=llama, 0=all)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.configPath != "" {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
		}
		applyFlags(cmd, &a.cfg)
		if err := config.Validate(a.cfg); err != nil {
			return err
		}
		l, closer, err := logging.New(logging.Options{
			Level:      a.cfg.Log.Level,
			Format:     a.cfg.Log.Format,
			File:       a.cfg.Log.File,
			MaxSizeMB:  a.cfg.Log.MaxSizeMB,
			MaxBackups: a.cfg.Log.MaxBackups,
			MaxAgeDays: a.cfg.Log.MaxAgeDays,
		}, os.Stderr)
		if err != nil {
			return err
		}
		a.log, a.logCloser = l, closer
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a.logCloser != nil {
			_ = a.logCloser.Close()
		}
	}

	root.AddCommand(newServeCmd(a), newChatCmd(a), newModelsCmd(a), newModesCmd(a))
	return root
}

// applyFlags overrides config values with explicitly set flags, and with
// environment-provided flag defaults.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	str := func(name string, dst *string) {
		if f := fs.Lookup(name); f != nil && (f.Changed || f.DefValue != "") {
			*dst = f.Value.String()
		}
	}
	num := func(name string, dst *int) {
		if fs.Changed(name) {
			if v, err := fs.GetInt(name); err == nil {
				*dst = v
			}
		}
	}
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	str("log-file", &cfg.Log.File)
	str("models-dir", &cfg.ModelsDir)
	str("engine", &cfg.Engine.Kind)
	str("server-url", &cfg.Engine.ServerURL)
	str("api-key", &cfg.Engine.APIKey)
	str("lib-dir", &cfg.Engine.LibDir)
	num("ctx-size", &cfg.Engine.ContextSize)
	num("threads", &cfg.Engine.Threads)
	num("gpu-layers", &cfg.Engine.GPULayers)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// buildEngine constructs the configured inference engine.
func (a *app) buildEngine() session.Engine {
	e := a.cfg.Engine
	if strings.EqualFold(e.Kind, "server") {
		return session.NewServerEngine(e.ServerURL, e.APIKey, 0)
	}
	if !session.LlamaBuilt() {
		a.log.Warn().Str("event", "engine_unavailable").Msg("built without -tags=llama; model loads will fail (use --engine=server)")
	}
	return session.NewLlamaEngine(e.ContextSize, e.Threads, e.GPULayers, e.LibDir)
}

// newController builds a controller over the configured engine.
func (a *app) newController() *session.Controller {
	cc := a.cfg.ControllerConfig()
	cc.Engine = a.buildEngine()
	cc.Logger = &a.log
	return session.NewWithConfig(cc)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
