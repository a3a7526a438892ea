package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/comparison"
)

func historyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved comparisons",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if !c.deps.HasHistory() {
				return errNoHistory
			}
			return nil
		},
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved comparisons, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := c.deps.Runs.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if c.asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			c.renderer(cmd).Runs(runs)
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of runs to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved comparison with its rankings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.getRun(cmd, args[0])
			if err != nil {
				return err
			}
			if c.asJSON {
				return writeJSON(cmd.OutOrStdout(), run)
			}
			c.renderer(cmd).Run(run, comparison.Rank(run.Results, c.deps.Pricing))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if err := c.deps.Runs.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, deleteCmd)
	return cmd
}

func (c *cli) getRun(cmd *cobra.Command, arg string) (*models.ComparisonRun, error) {
	id, err := parseRunID(arg)
	if err != nil {
		return nil, err
	}
	return c.deps.Runs.GetByID(cmd.Context(), id)
}

func parseRunID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q: %w", arg, err)
	}
	return id, nil
}
