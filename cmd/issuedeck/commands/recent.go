package commands

import (
	"github.com/spf13/cobra"

	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/query"
)

func (c *CLI) newRecentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent [query]",
		Short: "List recently used issues, most recent first",
		Long: "recent resolves the recency list against the tracker. Issues that " +
			"no longer exist upstream are pruned from the persisted list.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := query.Recent(cmd.Context(), c.app.Recency, c.app.Gateway)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				issues = query.FilterIssues(issues, args[0])
			}
			return printJSON(cmd, struct {
				Issues []gateway.Issue `json:"issues"`
			}{Issues: issues})
		},
	}
}

func (c *CLI) newTouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <issue-key>",
		Short: "Record an issue as recently used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Recency.Touch(cmd.Context(), args[0])
		},
	}
}
