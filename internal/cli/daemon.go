package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/RevCBH/shipyard/internal/client"
	"github.com/RevCBH/shipyard/internal/config"
	"github.com/RevCBH/shipyard/internal/daemon"
	"github.com/RevCBH/shipyard/internal/logging"
)

// NewDaemonCmd creates the daemon command group with start, stop, status, logs subcommands
func NewDaemonCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the shipyard daemon",
	}

	cmd.AddCommand(newDaemonStartCmd(a))
	cmd.AddCommand(newDaemonStopCmd(a))
	cmd.AddCommand(newDaemonStatusCmd(a))
	cmd.AddCommand(newDaemonLogsCmd(a))

	return cmd
}

// daemonLogPath is where a background daemon writes its output.
func daemonLogPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Daemon.PIDFile), "daemon.log")
}

// newDaemonStartCmd creates the 'daemon start' command
// By default, starts the daemon in the background after checking if it's already running.
// Use --foreground to run in blocking mode (useful for debugging or process managers).
func newDaemonStartCmd(a *App) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if pid, running := daemon.Running(cfg.Daemon.PIDFile); running {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon is already running (PID: %d)\n", pid)
				return nil
			}

			if foreground {
				return runForeground(cmd.Context(), cfg, a.verbose)
			}
			return a.startBackground(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run daemon in foreground (blocking)")

	return cmd
}

func runForeground(ctx context.Context, cfg *config.Config, verbose bool) error {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := NewSignalHandler(cancel, logger)
	signals.Start()
	defer signals.Stop()

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

// startBackground re-executes the binary with --foreground in its own
// process group so terminal signals do not reach it.
func (a *App) startBackground(cmd *cobra.Command, cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}
	logPath := daemonLogPath(cfg)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"daemon", "start", "--foreground"}
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := child.Process.Pid
	if err := child.Process.Release(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to release process: %v\n", err)
	}

	// Back off 100ms, 200ms, ... while the daemon comes up
	delay := 100 * time.Millisecond
	for i := 0; i < 6; i++ {
		time.Sleep(delay)
		if daemonServing(cmd.Context(), cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (PID: %d)\n", pid)
			fmt.Fprintf(cmd.OutOrStdout(), "API: http://%s\n", cfg.Daemon.APIAddr)
			fmt.Fprintf(cmd.OutOrStdout(), "Logs: %s\n", logPath)
			return nil
		}
		delay *= 2
	}
	return fmt.Errorf("daemon failed to start - check %s for details", logPath)
}

func daemonServing(ctx context.Context, cfg *config.Config) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	status, err := client.CheckDaemon(ctx, cfg.Daemon.HealthSocket)
	return err == nil && status == healthpb.HealthCheckResponse_SERVING
}

// newDaemonStopCmd creates the 'daemon stop' command
func newDaemonStopCmd(a *App) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			pid, running := daemon.Running(cfg.Daemon.PIDFile)
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon: %w", err)
			}

			deadline := time.Now().Add(timeout)
			for time.Now().Before(deadline) {
				if !daemon.IsProcessRunning(pid) {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("daemon (PID %d) still running after %s", pid, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "How long to wait for in-flight operations")

	return cmd
}

// newDaemonStatusCmd creates the 'daemon status' command
func newDaemonStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			pid, running := daemon.Running(cfg.Daemon.PIDFile)
			if !running {
				fmt.Fprintln(out, "Daemon Status: stopped")
				return nil
			}

			ctx, cancel := requestContext(cmd, 3*time.Second)
			defer cancel()
			health := "unreachable"
			if status, err := client.CheckDaemon(ctx, cfg.Daemon.HealthSocket); err == nil {
				health = healthLabel(status)
			}

			fmt.Fprintf(out, "Daemon Status: %s\n", health)
			fmt.Fprintf(out, "PID: %d\n", pid)
			fmt.Fprintf(out, "API: http://%s\n", cfg.Daemon.APIAddr)
			fmt.Fprintf(out, "Version: %s\n", orDefault(a.versionInfo.Version, "dev"))
			return nil
		},
	}
}

func healthLabel(status healthpb.HealthCheckResponse_ServingStatus) string {
	switch status {
	case healthpb.HealthCheckResponse_SERVING:
		return "healthy"
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return "shutting down"
	default:
		return "unknown"
	}
}

// newDaemonLogsCmd creates the 'daemon logs' command
func newDaemonLogsCmd(a *App) *cobra.Command {
	var (
		follow bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		Long:  `Display daemon log output. Use -f to follow logs in real-time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logPath := daemonLogPath(cfg)
			if _, err := os.Stat(logPath); os.IsNotExist(err) {
				return fmt.Errorf("no daemon logs found at %s", logPath)
			}

			if err := showLogs(cmd.OutOrStdout(), logPath, lines); err != nil {
				return err
			}
			if follow {
				return followLogs(cmd.Context(), cmd.OutOrStdout(), logPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show (0 for all)")

	return cmd
}

// showLogs writes the last n lines of the file at path, reading backwards
// in chunks so large logs are not loaded whole.
func showLogs(w io.Writer, path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if n == 0 {
		_, err = io.Copy(w, f)
		return err
	}

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	const chunk = 8192
	buf := make([]byte, chunk)
	newlines := 0
	var start int64
	pos := stat.Size()

scan:
	for pos > 0 {
		size := min(int64(chunk), pos)
		pos -= size
		if _, err := f.ReadAt(buf[:size], pos); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read log file: %w", err)
		}
		for i := size - 1; i >= 0; i-- {
			// The trailing newline ends the last line rather than starting a new one
			if buf[i] == '\n' && pos+i != stat.Size()-1 {
				newlines++
				if newlines == n {
					start = pos + i + 1
					break scan
				}
			}
		}
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	_, err = io.Copy(w, f)
	return err
}

// followLogs copies lines appended to path until ctx is done.
func followLogs(ctx context.Context, w io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of file: %w", err)
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			fmt.Fprint(w, line)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("error reading log file: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
