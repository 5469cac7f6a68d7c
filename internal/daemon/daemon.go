// Package daemon wires the lifecycle core, supervisor and HTTP API into
// one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/RevCBH/shipyard/internal/api"
	"github.com/RevCBH/shipyard/internal/client"
	"github.com/RevCBH/shipyard/internal/config"
	"github.com/RevCBH/shipyard/internal/container"
	"github.com/RevCBH/shipyard/internal/dns"
	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/fingerprint"
	"github.com/RevCBH/shipyard/internal/git"
	"github.com/RevCBH/shipyard/internal/lifecycle"
	"github.com/RevCBH/shipyard/internal/logging"
	"github.com/RevCBH/shipyard/internal/monitor"
	"github.com/RevCBH/shipyard/internal/network"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/source"
	"github.com/RevCBH/shipyard/internal/store"
)

const (
	eventBufferSize = 1000

	// closeTimeout bounds draining in-flight operations on shutdown
	closeTimeout = 30 * time.Second
)

// Option customizes daemon wiring.
type Option func(*options)

type options struct {
	engine container.Engine
	cloner source.Cloner
}

// WithEngine replaces the CLI-backed container engine.
func WithEngine(e container.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithCloner replaces the git cloner used for new projects.
func WithCloner(c source.Cloner) Option {
	return func(o *options) { o.cloner = c }
}

// Daemon is the main process coordinator.
type Daemon struct {
	cfg    *config.Config
	logger *zap.Logger

	db      *store.DB
	bus     *events.Bus
	hub     *api.Hub
	manager *lifecycle.Manager
	monitor *monitor.Monitor
	server  *api.Server
	health  *health.Server
	pidFile *PIDFile
}

// New opens the database and wires every component. Nothing listens until
// Run is called.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Daemon, error) {
	logger = logging.OrNop(logger)
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := config.EnsureDirs(cfg); err != nil {
		return nil, err
	}

	engine := o.engine
	if engine == nil {
		runtime, err := container.ResolveRuntime(cfg.Engine.Runtime)
		if err != nil {
			return nil, err
		}
		logger.Info("container runtime selected", zap.String("runtime", runtime))
		engine = container.NewCLIEngine(container.NewRunner(runtime))
	}

	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		hub:     api.NewHub(),
		health:  health.NewServer(),
		pidFile: NewPIDFile(cfg.Daemon.PIDFile),
	}
	if err := d.wire(engine, o.cloner); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) wire(engine container.Engine, cloner source.Cloner) error {
	cfg, logger := d.cfg, d.logger

	d.bus = events.NewBus(eventBufferSize)
	d.bus.Subscribe(events.LogHandler(logger))
	d.bus.Subscribe(events.StoreHandler(d.db, func(err error) {
		logger.Warn("persist event failed", zap.Error(err))
	}))
	d.bus.Subscribe(d.hub.Handler())

	repo := d.db.Projects()
	storage := project.DirResolver{Root: cfg.Storage.ProjectsDir}
	routing := lifecycle.Routing{
		Mode:   lifecycle.RoutingMode(cfg.Routing.Mode),
		Scheme: cfg.Routing.Scheme,
		Host:   cfg.Routing.Host,
		Domain: cfg.Routing.Domain,
	}

	var publisher lifecycle.Publisher
	if cfg.DNS.Enabled {
		p, err := dns.NewCloudflare(cfg.DNS, routing, logger.Named("dns"))
		if err != nil {
			return fmt.Errorf("configure dns: %w", err)
		}
		publisher = p
	}

	manager, err := lifecycle.New(lifecycle.Options{
		Engine:                engine,
		Repo:                  repo,
		Storage:               storage,
		Cache:                 fingerprint.NewCache(cfg.Storage.StateDir, logger),
		Network:               network.NewProvisioner(engine, cfg.Network.Name, cfg.Network.Fallback, d.bus, logger),
		Publisher:             publisher,
		Routing:               routing,
		Bus:                   d.bus,
		Logger:                logger.Named("lifecycle"),
		Workers:               cfg.Engine.Workers,
		OperationTimeout:      cfg.OperationTimeoutDuration(),
		OnFailureRetries:      cfg.Engine.OnFailureRetries,
		ContainerPrefix:       cfg.Engine.ContainerPrefix,
		PortDiscoveryAttempts: cfg.Engine.PortDiscoveryAttempts,
		PortDiscoveryInterval: cfg.PortDiscoveryIntervalDuration(),
	})
	if err != nil {
		return err
	}
	d.manager = manager

	d.monitor = monitor.New(repo, manager, monitor.Options{
		Interval:    cfg.MonitorIntervalDuration(),
		RestartRate: cfg.Monitor.RestartRate,
	}, d.bus, logger.Named("monitor"))

	if cloner == nil {
		cloner = git.NewCloner(nil)
	}

	var auth *api.Authenticator
	if cfg.Auth.Enabled() {
		auth = api.NewAuthenticator(cfg.Auth.JWTSecret)
	}

	d.server = api.NewServer(api.Deps{
		Lifecycle: manager,
		Repo:      repo,
		Storage:   storage,
		Creator:   source.NewInitializer(repo, storage, cloner, d.bus, logger.Named("source")),
		History:   d.db,
		Hub:       d.hub,
		Auth:      auth,
		Bus:       d.bus,
	}, logger.Named("api"))
	return nil
}

// Handler exposes the HTTP API, mainly for tests.
func (d *Daemon) Handler() *api.Server {
	return d.server
}

// Run serves the API, the health socket and the monitor until ctx is
// cancelled, then drains in-flight operations and releases resources.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.pidFile.Acquire(); err != nil {
		d.shutdown()
		return err
	}
	defer func() {
		if err := d.pidFile.Release(); err != nil {
			d.logger.Warn("release pid file failed", zap.Error(err))
		}
	}()

	listener, err := listenUnix(d.cfg.Daemon.HealthSocket)
	if err != nil {
		d.shutdown()
		return err
	}
	defer os.Remove(d.cfg.Daemon.HealthSocket)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, d.health)
	d.health.SetServingStatus(client.ServiceName, healthpb.HealthCheckResponse_SERVING)

	d.logger.Info("daemon started",
		zap.Int("pid", os.Getpid()),
		zap.String("api", d.cfg.Daemon.APIAddr),
		zap.String("health_socket", d.cfg.Daemon.HealthSocket))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.hub.Run()
		return nil
	})
	g.Go(func() error {
		return d.server.ListenAndServe(gctx, d.cfg.Daemon.APIAddr)
	})
	g.Go(func() error {
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	if d.cfg.Monitor.Enabled {
		g.Go(func() error {
			return d.monitor.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("shutting down")
		d.health.Shutdown()
		grpcServer.GracefulStop()
		// Open event streams would otherwise hold the API shutdown open
		d.hub.Stop()
		return nil
	})

	err = g.Wait()
	d.shutdown()
	if err != nil {
		return err
	}
	d.logger.Info("daemon stopped")
	return nil
}

// shutdown drains the worker pool, flushes events and closes the database.
func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := d.manager.Close(ctx); err != nil {
		d.logger.Warn("lifecycle shutdown incomplete", zap.Error(err))
	}
	d.bus.Close()
	if err := d.db.Close(); err != nil {
		d.logger.Warn("close database failed", zap.Error(err))
	}
}

// listenUnix replaces any stale socket at path and restricts it to the
// current user.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return listener, nil
}
