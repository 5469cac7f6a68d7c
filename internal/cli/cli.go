// Package cli implements the shipyard command line.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RevCBH/shipyard/internal/client"
	"github.com/RevCBH/shipyard/internal/config"
)

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd *cobra.Command

	// Flags shared by every command
	configPath string
	apiURL     string
	token      string
	verbose    bool

	// cfg is loaded on first use
	cfg *config.Config

	versionInfo VersionInfo
}

// VersionInfo is stamped in at build time.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// New creates a new CLI application
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// ExecuteContext runs the CLI with ctx available to every command.
func (a *App) ExecuteContext(ctx context.Context) error {
	return a.rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// Root returns the root command, mainly for tests.
func (a *App) Root() *cobra.Command {
	return a.rootCmd
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "shipyard",
		Short: "Build and run projects as containers",
		Long: `Shipyard turns source repositories into running containers.

It detects the project stack, generates a build recipe when none is
present, builds the image only when the source changed and keeps the
container reachable through a stable URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := a.rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ~/.shipyard/config.yaml)")
	flags.StringVar(&a.apiURL, "api", os.Getenv("SHIPYARD_API_URL"), "Daemon API URL (default from config)")
	flags.StringVar(&a.token, "token", os.Getenv("SHIPYARD_TOKEN"), "Bearer token for the daemon API")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")

	a.rootCmd.AddCommand(
		NewDaemonCmd(a),
		NewProjectCmd(a),
		NewOperationCmd(a, "start", "Build if needed and start a project"),
		NewOperationCmd(a, "stop", "Stop a project's container"),
		NewOperationCmd(a, "restart", "Restart a project's container"),
		NewStatusCmd(a),
		NewLogsCmd(a),
		NewAutoRestartCmd(a),
		NewEventsCmd(a),
		NewWatchCmd(a),
		NewTokenCmd(a),
		NewVersionCmd(a),
	)
}

// loadConfig loads configuration once per invocation.
func (a *App) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// client returns an API client for the configured daemon.
func (a *App) client() (*client.Client, error) {
	url := a.apiURL
	if url == "" {
		cfg, err := a.loadConfig()
		if err != nil {
			return nil, err
		}
		url = "http://" + cfg.Daemon.APIAddr
	}
	return client.New(url, client.WithToken(a.token)), nil
}

// requestContext bounds one API call made by a command.
func requestContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return client.WithDefaultTimeout(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
