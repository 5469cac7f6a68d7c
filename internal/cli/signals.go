package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/logging"
)

// SignalHandler turns SIGINT or SIGTERM into a cancelled daemon context.
// A second signal while the daemon drains exits with status 1.
type SignalHandler struct {
	cancel context.CancelFunc
	logger *zap.Logger

	sigs     chan os.Signal
	draining chan struct{}
	quit     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	exit func(int)
}

func NewSignalHandler(cancel context.CancelFunc, logger *zap.Logger) *SignalHandler {
	return &SignalHandler{
		cancel:   cancel,
		logger:   logging.OrNop(logger),
		sigs:     make(chan os.Signal, 2),
		draining: make(chan struct{}),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
		exit:     os.Exit,
	}
}

// Start subscribes to process signals and begins listening.
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify begins listening; with notify false only signals sent on
// the internal channel are seen.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.sigs, syscall.SIGINT, syscall.SIGTERM)
	}
	go h.listen()
}

func (h *SignalHandler) listen() {
	defer close(h.finished)
	for received := 0; ; {
		select {
		case sig := <-h.sigs:
			received++
			if received > 1 {
				h.logger.Warn("second signal while draining, exiting", zap.Stringer("signal", sig))
				h.exit(1)
				return
			}
			h.logger.Info("shutting down", zap.Stringer("signal", sig))
			if h.cancel != nil {
				h.cancel()
			}
			close(h.draining)
		case <-h.quit:
			return
		}
	}
}

// Stop unsubscribes and waits briefly for the listener to return.
func (h *SignalHandler) Stop() {
	signal.Stop(h.sigs)
	h.stopOnce.Do(func() { close(h.quit) })
	select {
	case <-h.finished:
	case <-time.After(100 * time.Millisecond):
	}
}
