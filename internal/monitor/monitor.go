// Package monitor restarts stopped containers of projects that have
// auto-restart enabled.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/lifecycle"
	"github.com/RevCBH/shipyard/internal/logging"
	"github.com/RevCBH/shipyard/internal/project"
)

// Lifecycle is the part of lifecycle.Manager the monitor drives.
type Lifecycle interface {
	Status(ctx context.Context, projectID string) lifecycle.Status
	ExecuteOperation(ctx context.Context, projectID string, op lifecycle.Operation) *lifecycle.Future
	Pending(projectID string) bool
}

// Options configures a Monitor.
type Options struct {
	// Interval between ticks (default 1m)
	Interval time.Duration

	// RestartRate caps STARTs issued per second (default 2)
	RestartRate float64
}

// Monitor periodically reconciles observed container state with the
// auto-restart flag. Ticks never overlap.
type Monitor struct {
	repo     project.Repository
	lc       Lifecycle
	interval time.Duration
	limiter  *rate.Limiter
	bus      *events.Bus
	logger   *zap.Logger
}

// TickReport summarizes one reconciliation pass.
type TickReport struct {
	// Checked counts projects with auto-restart enabled
	Checked int `json:"checked"`

	// Restarted lists projects a START was issued for
	Restarted []string `json:"restarted,omitempty"`

	// Busy lists stopped projects skipped because an operation was already
	// queued or running
	Busy []string `json:"busy,omitempty"`

	// Failed maps project ids to the error that aborted their check
	Failed map[string]string `json:"failed,omitempty"`
}

// New creates a Monitor.
func New(repo project.Repository, lc Lifecycle, opts Options, bus *events.Bus, logger *zap.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.RestartRate <= 0 {
		opts.RestartRate = 2
	}
	return &Monitor{
		repo:     repo,
		lc:       lc,
		interval: opts.Interval,
		limiter:  rate.NewLimiter(rate.Limit(opts.RestartRate), 1),
		bus:      bus,
		logger:   logging.OrNop(logger),
	}
}

// Run ticks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Tick(ctx)

		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one reconciliation pass. Failures of one project never stop
// the pass for the others.
func (m *Monitor) Tick(ctx context.Context) TickReport {
	report := TickReport{Failed: make(map[string]string)}

	projects, err := m.repo.FindAll(ctx)
	if err != nil {
		m.logger.Error("monitor: list projects failed", zap.Error(err))
		report.Failed["*"] = err.Error()
		return report
	}

	for _, p := range projects {
		if ctx.Err() != nil {
			break
		}
		if !p.AutoRestartEnabled {
			continue
		}
		report.Checked++

		if err := m.check(ctx, p.ID, &report); err != nil {
			report.Failed[p.ID] = err.Error()
			m.logger.Warn("monitor: project check failed", zap.String("project", p.ID), zap.Error(err))
		}
	}

	if len(report.Restarted) > 0 || len(report.Failed) > 0 {
		m.logger.Info("monitor tick",
			zap.Int("checked", report.Checked),
			zap.Strings("restarted", report.Restarted),
			zap.Int("failed", len(report.Failed)))
	}
	m.bus.Emit(events.NewEvent(events.MonitorTick, "").WithPayload(report))
	return report
}

// check restarts projectID when it is observed STOPPED. RUNNING and ERROR
// projects are left alone.
func (m *Monitor) check(ctx context.Context, projectID string, report *TickReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if m.lc.Status(ctx, projectID) != lifecycle.StatusStopped {
		return nil
	}
	if m.lc.Pending(projectID) {
		report.Busy = append(report.Busy, projectID)
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	future := m.lc.ExecuteOperation(ctx, projectID, lifecycle.OpStart)
	report.Restarted = append(report.Restarted, projectID)
	m.bus.Emit(events.NewEvent(events.MonitorRestart, projectID))
	go m.logOutcome(projectID, future)
	return nil
}

func (m *Monitor) logOutcome(projectID string, future *lifecycle.Future) {
	r := future.Await(context.Background())
	if r.Err != nil {
		m.logger.Warn("monitor: restart failed",
			zap.String("project", projectID),
			zap.String("kind", string(r.Kind())),
			zap.Error(r.Err))
		return
	}
	m.logger.Info("monitor: restarted project",
		zap.String("project", projectID),
		zap.String("url", r.Info.ServerURL))
}
