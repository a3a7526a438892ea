// Package main provides the ai-racers CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/ai-racers/app"
	"github.com/upb/ai-racers/config"
	"github.com/upb/ai-racers/internal/observability"
	"github.com/upb/ai-racers/internal/render"
)

var version = "0.1.0"

// loader builds the dependency graph for one command invocation
type loader func(ctx context.Context, logLevel string) (*app.Dependencies, error)

// cli carries the state shared by every subcommand
type cli struct {
	load     loader
	deps     *app.Dependencies
	pretty   bool
	asJSON   bool
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(loadFromEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadFromEnv reads configuration from the environment (and .env) and wires
// every dependency
func loadFromEnv(ctx context.Context, logLevel string) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("env", cfg.Environment))

	return app.NewDependencies(ctx, cfg, logger)
}

func newRootCmd(load loader) *cobra.Command {
	c := &cli{load: load, pretty: true}

	rootCmd := &cobra.Command{
		Use:   "airacers",
		Short: "Race LLM providers against each other",
		Long: `ai-racers sends one prompt to several provider/model pairs at once and
compares the answers side by side: latency, token usage and estimated cost.

Provider keys are read from the environment (OPENAI_API_KEY, GEMINI_API_KEY,
ANTHROPIC_API_KEY, XAI_API_KEY, OPENROUTER_API_KEY) or a .env file.
Ollama is reached at OLLAMA_ENDPOINT and needs no key.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !c.pretty {
				color.NoColor = true
			}
			deps, err := c.load(cmd.Context(), c.logLevel)
			if err != nil {
				return err
			}
			c.deps = deps
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().BoolVar(&c.pretty, "pretty", true, "Colored output")
	rootCmd.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(
		compareCmd(c),
		modelsCmd(c),
		pricingCmd(c),
		historyCmd(c),
	)

	return rootCmd
}

func (c *cli) renderer(cmd *cobra.Command) *render.Renderer {
	return render.New(cmd.OutOrStdout(), c.pretty)
}

func (c *cli) close(ctx context.Context) error {
	if c.deps == nil {
		return nil
	}
	err := c.deps.Close(ctx)
	c.deps = nil
	return err
}
