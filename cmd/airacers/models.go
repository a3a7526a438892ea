package main

import (
	"github.com/spf13/cobra"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/providers"
)

func modelsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "models [provider...]",
		Short: "Check provider credentials and list the models they can reach",
		Long: `Test the configured credentials of each provider and list the models it
reports. With no arguments every configured provider is checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := c.deps.Config.ConfiguredProviders()
			if len(args) > 0 {
				ids = make([]models.ProviderID, 0, len(args))
				for _, arg := range args {
					id, err := parseProvider(arg)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
			}

			results := make(map[models.ProviderID]*providers.ConnectionResult, len(ids))
			for _, id := range ids {
				creds, _ := c.deps.Config.Credentials(id)
				results[id] = c.deps.Router.TestConnection(cmd.Context(), id, creds)
			}

			if c.asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}

			r := c.renderer(cmd)
			for _, id := range ids {
				r.Connection(id, results[id])
			}
			return nil
		},
	}
}
