package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := app.versionInfo
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shipyard version %s\n", orDefault(info.Version, "dev"))
			fmt.Fprintf(out, "commit: %s\n", orDefault(info.Commit, "unknown"))
			fmt.Fprintf(out, "built: %s\n", orDefault(info.Date, "unknown"))
			return nil
		},
	}
}
