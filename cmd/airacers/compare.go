package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upb/ai-racers/internal/render"
	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/comparison"
	"github.com/upb/ai-racers/services/pricing"
	"github.com/upb/ai-racers/services/prompt"
)

// compareOutput is the --json shape of a comparison
type compareOutput struct {
	RunID    string                           `json:"runId,omitempty"`
	Results  []models.ComparisonResult        `json:"results"`
	Costs    map[string]*pricing.CostEstimate `json:"costs,omitempty"`
	Rankings map[string][]string              `json:"rankings,omitempty"`
}

func compareCmd(c *cli) *cobra.Command {
	var (
		pairs    []string
		system   string
		userText string
		name     string
		save     bool
		stats    bool
		secrets  bool
		params   models.AdvancedParameters
		maxTok   int
		topK     int
		temp     float64
		topP     float64
		freqPen  float64
		presPen  float64
	)

	cmd := &cobra.Command{
		Use:   "compare [prompt...]",
		Short: "Send one prompt to several provider/model pairs",
		Long: `Send one prompt to every --pair concurrently and show the answers with
their latency, token usage and estimated cost. The fastest, slowest, cheapest
and most expensive results are marked.

The prompt comes from --prompt, the remaining arguments, or stdin when it is "-".`,
		Example: `  airacers compare --pair openai:gpt-4o-mini --pair anthropic:claude-3-5-haiku-20241022 "Explain CRDTs"
  echo "Summarize this" | airacers compare --pair ollama:llama3:8b -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userPrompt, err := readPrompt(cmd.InOrStdin(), userText, args)
			if err != nil {
				return err
			}

			if secrets {
				for _, text := range []string{system, userPrompt} {
					if redacted := prompt.Redact(text); redacted != text {
						fmt.Fprintf(cmd.ErrOrStderr(), "Warning: sending a prompt that appears to contain credentials: %s\n", redacted)
					}
				}
			} else if err := prompt.Check(system, userPrompt); err != nil {
				return err
			}

			sub := comparison.Submission{
				TestName:     name,
				SystemPrompt: system,
				UserPrompt:   userPrompt,
			}
			for _, p := range pairs {
				pair, err := models.ParsePair(p)
				if err != nil {
					return services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
				}
				if !pair.ProviderID.IsValid() {
					return fmt.Errorf("%w: %s", services.ErrUnknownProvider, pair.ProviderID)
				}
				sub.Pairs = append(sub.Pairs, pair)
			}

			flags := cmd.Flags()
			if flags.Changed("temperature") {
				params.Temperature = &temp
			}
			if flags.Changed("max-tokens") {
				params.MaxTokens = &maxTok
			}
			if flags.Changed("top-p") {
				params.TopP = &topP
			}
			if flags.Changed("top-k") {
				params.TopK = &topK
			}
			if flags.Changed("frequency-penalty") {
				params.FrequencyPenalty = &freqPen
			}
			if flags.Changed("presence-penalty") {
				params.PresencePenalty = &presPen
			}
			if !params.IsEmpty() {
				sub.AdvancedParameters = &params
			}

			if save && !c.deps.HasHistory() {
				return errNoHistory
			}

			results, err := c.deps.Orchestrator.Submit(cmd.Context(), sub)
			if err != nil {
				return err
			}
			rankings := comparison.Rank(results, c.deps.Pricing)

			var runID string
			if save {
				run := models.NewComparisonRun(name, system, userPrompt, sub.AdvancedParameters, results)
				if err := c.deps.Runs.Create(cmd.Context(), run); err != nil {
					return err
				}
				runID = run.ID.String()
			}

			if c.asJSON {
				return writeJSON(cmd.OutOrStdout(), compareOutput{
					RunID:    runID,
					Results:  results,
					Costs:    rankings.Costs,
					Rankings: rankingLabels(results, rankings),
				})
			}

			r := c.renderer(cmd)
			r.Results(results, rankings)
			if stats {
				r.Stats(c.deps.Metrics.Snapshot())
			}
			if runID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved as %s\n", runID)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&pairs, "pair", "p", nil, "provider:model pair to race (repeatable)")
	f.StringVarP(&system, "system", "s", "", "System prompt")
	f.StringVar(&userText, "prompt", "", "User prompt")
	f.StringVarP(&name, "name", "n", "", "Name for the comparison")
	f.BoolVar(&save, "save", false, "Store the comparison in run history")
	f.BoolVar(&stats, "stats", false, "Print per-provider statistics")
	f.BoolVar(&secrets, "allow-secrets", false, "Send prompts even when they appear to contain credentials")
	f.Float64Var(&temp, "temperature", 0, "Sampling temperature (0-2)")
	f.IntVar(&maxTok, "max-tokens", 0, "Maximum output tokens")
	f.Float64Var(&topP, "top-p", 0, "Nucleus sampling probability (0-1)")
	f.IntVar(&topK, "top-k", 0, "Top-k sampling")
	f.Float64Var(&freqPen, "frequency-penalty", 0, "Frequency penalty (-2 to 2)")
	f.Float64Var(&presPen, "presence-penalty", 0, "Presence penalty (-2 to 2)")
	f.StringSliceVar(&params.StopSequences, "stop", nil, "Stop sequences (comma separated or repeated)")
	_ = cmd.MarkFlagRequired("pair")

	return cmd
}

func readPrompt(stdin io.Reader, flag string, args []string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

// rankingLabels maps each ranked pair key to its badges
func rankingLabels(results []models.ComparisonResult, rankings *comparison.Rankings) map[string][]string {
	out := make(map[string][]string)
	for i := range results {
		key := results[i].Key()
		if labels := render.Badges(rankings, key); len(labels) > 0 {
			out[key] = labels
		}
	}
	return out
}
