package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sessiond/internal/chat"
	"sessiond/internal/config"
	"sessiond/internal/registry"
	"sessiond/internal/session"
)

func newChatCmd(a *app) *cobra.Command {
	var (
		accel       string
		temperature float64
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "chat [model]",
		Short: "Interactive chat in the terminal",
		Long: "Loads a model and starts a multi-turn chat on stdin/stdout.\n" +
			"Commands: /reset clears history, /temp <v> and /accel <cpu|gpu> change settings, /modes, /quit.",
		Example: "  sessiond chat gemma-2b-it-q4.gguf --models-dir ~/models\n  sessiond chat ./model.gguf --accel gpu",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := a.cfg.DefaultModel
			if len(args) == 1 {
				ref = args[0]
			}
			if ref == "" {
				return fmt.Errorf("no model given and no default_model configured")
			}
			mc := a.cfg.ModelConfig()
			if cmd.Flags().Changed("accel") {
				v, err := session.ParseAcceleration(accel)
				if err != nil {
					return err
				}
				mc.Acceleration = v
			}
			if cmd.Flags().Changed("temperature") {
				mc.Temperature = temperature
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.chat(ctx, ref, mc, showMetrics, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&accel, "accel", "", "Acceleration: cpu|gpu")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature in [0,1]")
	cmd.Flags().BoolVar(&showMetrics, "metrics", true, "Print generation metrics after each reply")
	return cmd
}

func (a *app) chat(ctx context.Context, ref string, mc session.ModelConfig, showMetrics bool, in io.Reader, out io.Writer) error {
	reg := registry.New(a.cfg.ModelsDir, nil)
	if err := reg.Refresh(); err != nil {
		a.log.Warn().Str("dir", a.cfg.ModelsDir).Err(err).Msg("model scan failed")
	}
	path, err := reg.Resolve(ref)
	if err != nil {
		return err
	}
	ctrl := a.newController()
	defer func() { _ = ctrl.Release() }()

	fmt.Fprintf(out, "loading %s (%s)...\n", path, mc.Acceleration)
	if err := ctrl.LoadModel(ctx, path, mc); err != nil {
		return err
	}
	conv := chat.New(ctrl, mc, chat.WithLogger(a.log))

	if a.configPath != "" {
		go func() {
			_ = config.Watch(ctx, a.configPath, func(next config.Config) {
				if err := conv.ApplySettings(next.ModelConfig()); err != nil {
					a.log.Warn().Str("event", "settings_apply_error").Err(err).Msg("apply settings")
				}
			}, func(err error) {
				a.log.Warn().Str("event", "config_reload_error").Err(err).Msg("config reload failed")
			})
		}()
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := a.chatCommand(ctrl, conv, line, out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}
		reply, err := conv.Send(ctx, line, func(text string) { fmt.Fprint(out, text) })
		fmt.Fprintln(out)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		if !reply.Completed() {
			fmt.Fprintf(out, "[generation ended: %s]\n", reply.Reason)
		} else if showMetrics && reply.Metrics != nil {
			m := reply.Metrics
			fmt.Fprintf(out, "[%d tokens, %.1f tok/s, first token %dms, total %dms]\n",
				m.TotalTokensGenerated, m.TokensPerSecond, m.FirstTokenLatencyMs, m.TotalInferenceTimeMs)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// chatCommand runs a slash command and reports whether to quit.
func (a *app) chatCommand(ctrl *session.Controller, conv *chat.Conversation, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/reset":
		conv.Reset()
		fmt.Fprintln(out, "history cleared")
		return false, nil
	case "/modes":
		for _, m := range ctrl.AvailableAccelerationModes() {
			fmt.Fprintln(out, m)
		}
		return false, nil
	case "/temp":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /temp <0..1>")
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || v < 0 || v > 1 {
			return false, fmt.Errorf("temperature must be in [0,1]")
		}
		cfg := conv.Config()
		cfg.Temperature = v
		return false, conv.ApplySettings(cfg)
	case "/accel":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /accel <cpu|gpu>")
		}
		v, err := session.ParseAcceleration(fields[1])
		if err != nil {
			return false, err
		}
		cfg := conv.Config()
		cfg.Acceleration = v
		return false, conv.ApplySettings(cfg)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}
