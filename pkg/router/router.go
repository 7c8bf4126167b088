package router

import (
	"context"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/dbtuneai/pgvacuum/pkg/sink"
	log "github.com/sirupsen/logrus"
)

// Router delivers every published event to all sinks, in order, on the
// caller's goroutine. A failing sink is logged and never stops the run.
type Router struct {
	sinks  []sink.Sink
	logger *log.Logger
}

// New creates a new router
func New(sinks []sink.Sink, logger *log.Logger) *Router {
	return &Router{
		sinks:  sinks,
		logger: logger,
	}
}

// Publish implements events.Publisher
func (r *Router) Publish(ctx context.Context, event events.Event) {
	for _, snk := range r.sinks {
		if err := snk.Process(ctx, event); err != nil {
			r.logger.Warnf("Sink %s error processing %s event: %v", snk.Name(), event.Type(), err)
		}
	}
}

// Len returns the number of sinks
func (r *Router) Len() int {
	return len(r.sinks)
}

// Close closes all sinks and returns the first error
func (r *Router) Close() error {
	r.logger.Debug("Closing all sinks")
	var firstErr error
	for _, snk := range r.sinks {
		if err := snk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
