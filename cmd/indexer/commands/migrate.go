package commands

import (
	"context"
	"time"

	"guild-ranker/internal/app"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(app.ContainerOptions{}, func(ctx context.Context, c *app.Container) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			if err := c.Migrate(ctx); err != nil {
				return err
			}
			c.Log.Info("[CLI] migrations applied")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
