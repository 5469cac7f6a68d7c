package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RevCBH/shipyard/internal/client"
)

// NewProjectCmd creates the project command group
func NewProjectCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Create, list, inspect and delete projects",
	}

	cmd.AddCommand(newProjectCreateCmd(a))
	cmd.AddCommand(newProjectListCmd(a))
	cmd.AddCommand(newProjectShowCmd(a))
	cmd.AddCommand(newProjectDeleteCmd(a))

	return cmd
}

// newProjectCreateCmd creates 'project create <name>'
// Exactly one of --repo or --archive is required.
func newProjectCreateCmd(a *App) *cobra.Command {
	var (
		repo        string
		ref         string
		archive     string
		autoRestart bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project from a git repository or zip archive",
		Example: `  shipyard project create todo --repo https://github.com/acme/todo.git
  shipyard project create api --archive ./api.zip --auto-restart`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (repo == "") == (archive == "") {
				return errors.New("exactly one of --repo or --archive is required")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			// Cloning and classification can take a while
			ctx, cancel := requestContext(cmd, 10*time.Minute)
			defer cancel()

			var p *client.Project
			if repo != "" {
				p, err = c.CreateProject(ctx, client.CreateRequest{
					Name:        args[0],
					RepoURL:     repo,
					Ref:         ref,
					AutoRestart: autoRestart,
				})
			} else {
				p, err = c.UploadProject(ctx, args[0], archive, autoRestart)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.Name, p.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Stack: %s\n", p.Stack)
			fmt.Fprintf(cmd.OutOrStdout(), "Start it with: shipyard start %s\n", p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Git repository URL")
	cmd.Flags().StringVar(&ref, "ref", "", "Branch or tag to check out")
	cmd.Flags().StringVar(&archive, "archive", "", "Path to a zip archive of the source")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "Restart the container whenever it stops")

	return cmd
}

// newProjectListCmd creates 'project list'
func newProjectListCmd(a *App) *cobra.Command {
	var withStatus bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			projects, err := c.ListProjects(ctx)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects")
				return nil
			}

			var statuses map[string]string
			if withStatus {
				statuses = make(map[string]string, len(projects))
				for _, p := range projects {
					if info, err := c.Status(ctx, p.ID); err == nil {
						statuses[p.ID] = info.Status
					}
				}
			}
			displayProjects(cmd.OutOrStdout(), projects, statuses)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withStatus, "status", true, "Query each project's container status")

	return cmd
}

// newProjectShowCmd creates 'project show <id>'
func newProjectShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its live status and resource usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			details, err := c.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			displayDetails(cmd.OutOrStdout(), details, useColor(cmd))
			return nil
		},
	}
}

// newProjectDeleteCmd creates 'project delete <id>'
func newProjectDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Stop a project and remove its container, image and source",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, 0)
			defer cancel()

			if err := c.DeleteProject(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
			return nil
		},
	}
}
