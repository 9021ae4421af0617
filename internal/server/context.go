package server

import (
	"context"
	"sync"
)

// ServerContext carries the lifetime of a running server. Background work
// started on its Context stops when Shutdown is called.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context derived from ctx.
func NewServerContext(ctx context.Context) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown marks the server as shutting down and cancels its context.
// Calling it again is a no-op.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return
	}

	sc.shutdown = true
	sc.cancel()
}
