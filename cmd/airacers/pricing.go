package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/pricing"
)

func pricingCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing [provider]",
		Short: "Show the pricing catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := c.deps.Pricing.Catalog()
			ids := models.AllProviders()
			if len(args) == 1 {
				id, err := parseProvider(args[0])
				if err != nil {
					return err
				}
				ids = []models.ProviderID{id}
			}

			if c.asJSON {
				out := make(map[models.ProviderID]map[string]pricing.PriceRecord, len(ids))
				for _, id := range ids {
					if entries := catalog.Models[string(id)]; len(entries) > 0 {
						out[id] = entries
					}
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			c.renderer(cmd).Pricing(catalog, ids)
			return nil
		},
	}

	cmd.AddCommand(estimateCmd(c))
	return cmd
}

func estimateCmd(c *cli) *cobra.Command {
	var input, output int

	cmd := &cobra.Command{
		Use:   "estimate provider:model",
		Short: "Estimate the cost of a response from its token counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := models.ParsePair(args[0])
			if err != nil {
				return err
			}
			if _, err := parseProvider(string(pair.ProviderID)); err != nil {
				return err
			}

			usage := &models.TokenUsage{PromptTokens: &input, CompletionTokens: &output}
			est := c.deps.Pricing.EstimateCost(pair.ProviderID, pair.ModelID, usage)
			if est == nil {
				return fmt.Errorf("no pricing known for %s", pair)
			}

			if c.asJSON {
				return writeJSON(cmd.OutOrStdout(), est)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d in, %d out)\n", pair, est.FormattedCost, input, output)
			return nil
		},
	}

	cmd.Flags().IntVar(&input, "input", 0, "Input tokens")
	cmd.Flags().IntVar(&output, "output", 0, "Output tokens")
	return cmd
}
