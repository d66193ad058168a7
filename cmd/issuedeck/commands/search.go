package commands

import (
	"github.com/spf13/cobra"

	"github.com/issuedeck/issuedeck/pkg/query"
)

func (c *CLI) newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search cached issues of the active project",
		Long: "Search answers from the local cache only. When the cached issues are " +
			"missing or stale a detached background refresh is started; the answer " +
			"carries a status flag (missing, stale, updating, fresh) so the caller " +
			"can tell how trustworthy the results are.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			projectKey, err := c.activeProject(ctx)
			if err != nil {
				return err
			}
			if projectKey == "" {
				// No active project yet, offer the project list instead.
				return c.runProjects(cmd, args)
			}

			result, err := c.app.Query.Answer(ctx, projectKey, c.spawnRefresh(ctx, projectKey))
			if err != nil {
				return err
			}
			if len(args) == 1 {
				result.Issues = query.FilterIssues(result.Issues, args[0])
			}
			return printJSON(cmd, result)
		},
	}
}
