package commands

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/issuedeck/issuedeck/pkg/logging"
	"github.com/issuedeck/issuedeck/pkg/pagination"
	"github.com/issuedeck/issuedeck/pkg/refresh"
)

func (c *CLI) newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <key>",
		Short: "Fetch all records for a key and commit them to the cache",
		Long: "refresh is the background entry point spawned by search. It fetches " +
			"every page in parallel and commits the cache entry only when all pages " +
			"succeeded; any failure leaves the existing entry untouched and exits " +
			"non-zero.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := args[0]

			total, _ := cmd.Flags().GetInt("total")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			maxAge, _ := cmd.Flags().GetInt("max-age")

			logger := logging.NewLogger("refresh")
			logger.Debug().
				Str("key", key).
				Int("total", total).
				Int("max_age_seconds", maxAge).
				Msg("Refresh requested")

			if key == projectsKey {
				return c.refreshProjects(cmd)
			}

			cfg := pagination.Config{
				Workers: c.app.Config.Workers,
				Timeout: c.app.Config.Timeout,
			}
			return refresh.Run(ctx, c.app.Store, c.app.Gateway, cfg, key, total, pageSize)
		},
	}

	cmd.Flags().Int("total", 0, "Point-in-time record count reported by the tracker")
	cmd.Flags().Int("page-size", refresh.DefaultPageSize, "Records requested per page")
	cmd.Flags().Int("max-age", int(10*time.Minute/time.Second), "Freshness threshold in seconds, informational")
	_ = cmd.MarkFlagRequired("total")

	return cmd
}

// refreshProjects replaces the cached project list wholesale. The projects
// endpoint returns everything in one response, so pagination is not involved.
func (c *CLI) refreshProjects(cmd *cobra.Command) error {
	ctx := cmd.Context()

	projects, err := c.app.Gateway.Projects(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(projects)
	if err != nil {
		return err
	}
	return c.app.Store.Set(ctx, projectsKey, data)
}
