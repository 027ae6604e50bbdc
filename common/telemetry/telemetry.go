package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/edgeless-project/edgeless/common/logger"
)

// Telemetry is the abstraction side-channel every control-plane task emits
// lifecycle events through (node joined, instance restarted, workflow
// orphaned, ...). It never talks to a concrete metrics sink itself; that is
// an out-of-scope external collaborator per the core's scope.
type Telemetry struct {
	log       *logger.Logger
	pprofAddr string
	enabled   bool
}

// New creates telemetry components.
func New(pprofPort int, enablePprof bool, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:       log,
		pprofAddr: fmt.Sprintf("localhost:%d", pprofPort),
		enabled:   enablePprof,
	}
}

// Start starts the pprof endpoint if enabled.
func (t *Telemetry) Start(ctx context.Context) error {
	if !t.enabled {
		return nil
	}
	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	return nil
}

// RecordDuration logs an operation's duration.
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// RecordEvent logs a structured lifecycle event. Every control-plane state
// transition (node join/loss, instance restart, workflow orphaned/re-placed,
// intent consumed, ...) is recorded through this single entry point so an
// external collector can be wired in later without touching call sites.
func (t *Telemetry) RecordEvent(event string, attrs map[string]any) {
	args := make([]any, 0, len(attrs)*2+2)
	args = append(args, "event", event)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	t.log.Info("telemetry_event", args...)
}
