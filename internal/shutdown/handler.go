package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yourusername/tmichat/internal/output"
)

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// Handler turns SIGINT/SIGTERM into context cancellation and runs cleanup
// steps once with a deadline.
type Handler struct {
	logger       output.Logger
	forceTimeout time.Duration

	mu    sync.Mutex
	steps []step

	signalChan   chan os.Signal
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewHandler creates a handler listening for SIGINT and SIGTERM
func NewHandler(logger output.Logger, forceTimeout time.Duration) *Handler {
	if logger == nil {
		logger = output.NopLogger{}
	}
	h := &Handler{
		logger:       logger,
		forceTimeout: forceTimeout,
		signalChan:   make(chan os.Signal, 1),
		shutdownChan: make(chan struct{}),
	}
	signal.Notify(h.signalChan, syscall.SIGINT, syscall.SIGTERM)
	return h
}

// Register adds a cleanup step. Steps run in the order they were registered.
func (h *Handler) Register(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step{name: name, fn: fn})
}

// Context returns a child of parent that is canceled when a signal arrives
func (h *Handler) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		select {
		case sig, ok := <-h.signalChan:
			if ok {
				h.logger.Info("Received signal: %v", sig)
			}
		case <-ctx.Done():
		case <-h.shutdownChan:
		}
	}()
	return ctx
}

// Shutdown runs the registered steps once. Steps still running when the
// force timeout expires are abandoned.
func (h *Handler) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.logger.Info("Initiating graceful shutdown...")

		ctx, cancel := context.WithTimeout(context.Background(), h.forceTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			h.runSteps(ctx)
			close(done)
		}()

		select {
		case <-done:
			h.logger.Success("Graceful shutdown completed")
		case <-ctx.Done():
			h.logger.Warning("Forced shutdown after %v", h.forceTimeout)
		}

		close(h.shutdownChan)
	})
}

func (h *Handler) runSteps(ctx context.Context) {
	h.mu.Lock()
	steps := append([]step(nil), h.steps...)
	h.mu.Unlock()

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			h.logger.Error("Shutdown step %q failed: %v", s.name, err)
		}
	}
}

// Done returns a channel that is closed when shutdown is complete
func (h *Handler) Done() <-chan struct{} {
	return h.shutdownChan
}

// Stop stops listening for signals
func (h *Handler) Stop() {
	signal.Stop(h.signalChan)
}
