// Package commands implements the CLI commands for the issuedeck launcher.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/issuedeck/issuedeck/pkg/config"
	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/job"
	"github.com/issuedeck/issuedeck/pkg/query"
	"github.com/issuedeck/issuedeck/pkg/store"
)

const (
	// settingActiveProject is the settings slot holding the active project key.
	settingActiveProject = "project"

	// projectsKey is the cache entry holding the full project list. The
	// leading underscore keeps it out of the project key namespace.
	projectsKey = "_projects"
)

// App bundles the wired components the commands operate on.
type App struct {
	Config  *config.Config
	Store   *store.Store
	Recency *store.Recency
	Gateway *gateway.Client
	Jobs    *job.Supervisor
	Query   *query.Foreground
}

// CLI represents the command line interface for issuedeck.
type CLI struct {
	app     *App
	rootCmd *cobra.Command
}

// New creates a new CLI instance with the given app.
func New(app *App) *CLI {
	rootCmd := &cobra.Command{
		Use:           "issuedeck",
		Short:         "Cache-backed issue tracker launcher",
		Long:          "issuedeck answers issue searches from a local cache and keeps the cache warm with detached background refreshes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c := &CLI{
		app:     app,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newSearchCmd())
	rootCmd.AddCommand(c.newRefreshCmd())
	rootCmd.AddCommand(c.newRecentCmd())
	rootCmd.AddCommand(c.newTouchCmd())
	rootCmd.AddCommand(c.newProjectCmd())
	rootCmd.AddCommand(c.newProjectsCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// spawnRefresh builds the closure the job supervisor runs to start a
// detached refresh for key. It asks the tracker for the current issue total
// first, so the refresh process itself never has to.
func (c *CLI) spawnRefresh(ctx context.Context, key string) job.SpawnFunc {
	return func() (int, error) {
		total, err := c.app.Gateway.Total(ctx, key)
		if err != nil {
			return 0, err
		}
		return c.detachRefresh(key, total)
	}
}

// spawnProjectsRefresh starts a detached refresh of the project list. The
// projects endpoint is not paginated, so no total is fetched.
func (c *CLI) spawnProjectsRefresh() job.SpawnFunc {
	return func() (int, error) {
		return c.detachRefresh(projectsKey, 0)
	}
}

func (c *CLI) detachRefresh(key string, total int) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	return job.Detach(exe, "refresh", key,
		"--total="+strconv.Itoa(total),
		"--page-size="+strconv.Itoa(c.app.Config.PageSize))
}

// activeProject returns the configured active project key, or "" when none
// is set.
func (c *CLI) activeProject(ctx context.Context) (string, error) {
	var key string
	err := c.app.Store.LoadSetting(ctx, settingActiveProject, &key)
	if errors.Is(err, store.ErrMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}
