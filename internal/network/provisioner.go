// Package network ensures the shared routing network exists before
// containers join it.
package network

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/RevCBH/shipyard/internal/container"
	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/logging"
)

// Engine is the subset of container.Engine the provisioner needs.
type Engine interface {
	NetworkExists(ctx context.Context, name string) (bool, error)
	CreateNetwork(ctx context.Context, name string) error
}

// Provisioner resolves the network containers attach to. It prefers the
// primary name, accepts an existing fallback network, and creates the
// primary only when neither exists.
type Provisioner struct {
	engine   Engine
	primary  string
	fallback string
	bus      *events.Bus
	logger   *zap.Logger

	group singleflight.Group
}

// NewProvisioner creates a Provisioner. fallback may be empty.
func NewProvisioner(engine Engine, primary, fallback string, bus *events.Bus, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		engine:   engine,
		primary:  primary,
		fallback: fallback,
		bus:      bus,
		logger:   logging.OrNop(logger),
	}
}

// EnsureNetwork returns the name of a network that exists. Concurrent
// callers share one in-flight check, and a create that loses a race
// ("already exists") counts as success.
func (p *Provisioner) EnsureNetwork(ctx context.Context) (string, error) {
	v, err, _ := p.group.Do(p.primary, func() (any, error) {
		return p.ensure(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provisioner) ensure(ctx context.Context) (string, error) {
	exists, err := p.engine.NetworkExists(ctx, p.primary)
	if err != nil {
		return "", fmt.Errorf("inspect network %s: %w", p.primary, err)
	}
	if exists {
		return p.primary, nil
	}

	if p.fallback != "" && p.fallback != p.primary {
		exists, err := p.engine.NetworkExists(ctx, p.fallback)
		if err != nil {
			return "", fmt.Errorf("inspect network %s: %w", p.fallback, err)
		}
		if exists {
			p.logger.Debug("using fallback network", zap.String("network", p.fallback))
			return p.fallback, nil
		}
	}

	if err := p.engine.CreateNetwork(ctx, p.primary); err != nil {
		if container.IsAlreadyExists(err) {
			return p.primary, nil
		}
		return "", fmt.Errorf("create network %s: %w", p.primary, err)
	}

	p.logger.Info("created network", zap.String("network", p.primary))
	p.bus.Emit(events.NewEvent(events.NetworkCreated, "").WithPayload(map[string]any{"name": p.primary}))
	return p.primary, nil
}
