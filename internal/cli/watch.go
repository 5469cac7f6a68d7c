package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/RevCBH/shipyard/internal/cli/tui"
	"github.com/RevCBH/shipyard/internal/client"
	"github.com/RevCBH/shipyard/internal/events"
)

// NewWatchCmd creates the 'watch' command for following lifecycle events
func NewWatchCmd(a *App) *cobra.Command {
	var (
		jsonOut bool
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "watch [project-id]",
		Short: "Follow lifecycle events live",
		Long: `Watch build, start, stop and restart events as they happen.

On a terminal an interactive view is shown. When output is piped, or with
--json, events are written as JSON lines.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var projectID string
			if len(args) == 1 {
				projectID = args[0]
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			switch {
			case jsonOut || !useColor(cmd):
				return watchJSON(ctx, c, projectID, cmd.OutOrStdout())
			case plain:
				return watchPlain(ctx, c, projectID, cmd.OutOrStdout())
			default:
				return watchTUI(ctx, c, projectID)
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Write events as JSON lines")
	cmd.Flags().BoolVar(&plain, "plain", false, "Write one line per event instead of the interactive view")

	return cmd
}

func watchJSON(ctx context.Context, c *client.Client, projectID string, w io.Writer) error {
	emitter := events.NewJSONEmitter(w)
	return c.Watch(ctx, projectID, func(e events.Event) {
		emitter.Emit(e)
	})
}

func watchPlain(ctx context.Context, c *client.Client, projectID string, w io.Writer) error {
	return c.Watch(ctx, projectID, func(e events.Event) {
		fmt.Fprintln(w, FormatEvent(e))
	})
}

// watchTUI runs the interactive view until the user quits or ctx ends.
func watchTUI(ctx context.Context, c *client.Client, projectID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewModel(projectID), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge := tui.NewBridge(program, projectID)

	go func() {
		err := c.Watch(ctx, projectID, bridge.Handler())
		if ctx.Err() == nil {
			bridge.SendStreamClosed(streamEnd(err))
		}
	}()

	_, err := program.Run()
	if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func streamEnd(err error) error {
	if err == nil {
		return io.EOF
	}
	return err
}
