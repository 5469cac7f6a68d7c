package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errOperationFailed is returned after an ERROR result has been printed.
var errOperationFailed = errors.New("operation failed")

// NewOperationCmd creates the start, stop and restart commands
func NewOperationCmd(a *App, op, short string) *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   op + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			// The daemon bounds the wait itself
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			res, err := c.Operation(ctx, args[0], op, async)
			if err != nil {
				return err
			}
			displayOperation(cmd.OutOrStdout(), op, res, useColor(cmd))
			if res.Status == "ERROR" {
				return errOperationFailed
			}
			if async {
				fmt.Fprintf(cmd.OutOrStdout(), "Follow progress with: shipyard watch %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Return immediately with PENDING instead of waiting")

	return cmd
}

// NewStatusCmd creates 'status <id>'
func NewStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a project's container status and URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			info, err := c.Status(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), FormatStatus(info.Status, useColor(cmd)))
			if info.ServerURL != "" {
				fmt.Fprintln(cmd.OutOrStdout(), info.ServerURL)
			}
			return nil
		},
	}
}

// NewLogsCmd creates 'logs <id>'
func NewLogsCmd(a *App) *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show a project's container output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			out, err := c.Logs(ctx, args[0], tail)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 100, "Number of lines to show")

	return cmd
}

// NewAutoRestartCmd creates 'autorestart <id> on|off'
func NewAutoRestartCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:       "autorestart <id> on|off",
		Short:     "Turn automatic restarts on or off",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "enable":
				enabled = true
			case "off", "false", "disable":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			if err := c.SetAutoRestart(ctx, args[0], enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Auto-restart %s for %s\n", onOff(enabled), args[0])
			return nil
		},
	}
}

// NewEventsCmd creates 'events <id>'
func NewEventsCmd(a *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Show a project's recent lifecycle events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			recorded, err := c.Events(ctx, args[0], limit)
			if err != nil {
				return err
			}
			// Oldest first reads naturally in a terminal
			for i := len(recorded) - 1; i >= 0; i-- {
				fmt.Fprintln(cmd.OutOrStdout(), FormatEvent(recorded[i]))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")

	return cmd
}

// useColor reports whether cmd writes to a terminal.
func useColor(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
