package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/issuedeck/issuedeck/pkg/query"
)

func (c *CLI) newProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project <key>",
		Short: "Switch the active project",
		Long: "project switches the active project used by search. Selecting the " +
			"project that is already active resets the selection instead. Switching " +
			"invalidates the new project's cached issues so the next search starts " +
			"a refresh.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := args[0]

			current, err := c.activeProject(ctx)
			if err != nil {
				return err
			}

			if current == key {
				if err := c.app.Store.ClearSetting(ctx, settingActiveProject); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "active project reset\n")
				return nil
			}

			if err := c.app.Store.SaveSetting(ctx, settingActiveProject, key); err != nil {
				return err
			}
			if err := c.app.Store.Invalidate(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active project: %s\n", key)
			return nil
		},
	}
}

func (c *CLI) newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects [query]",
		Short: "List projects from the cached project list",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runProjects,
	}
}

// runProjects answers from the cached project list with the same freshness
// machinery as issue entries. search falls back here when no project is
// active.
func (c *CLI) runProjects(cmd *cobra.Command, args []string) error {
	result, err := c.app.Query.Projects(cmd.Context(), projectsKey, c.spawnProjectsRefresh())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		result.Projects = query.FilterProjects(result.Projects, args[0])
	}
	return printJSON(cmd, result)
}
