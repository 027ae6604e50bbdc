package resource

import (
	"context"
	"fmt"
	"sync"
)

// MemLog is a reference resource provider of class_type "file-log" that
// appends to an in-memory ring buffer instead of an actual file — it
// exists so the node agent has at least one resource implementation to
// exercise in tests without depending on the filesystem. A real file-log
// resource is an external collaborator outside this scope (§1).
type MemLog struct {
	capacity int
}

func NewMemLog(capacity int) *MemLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemLog{capacity: capacity}
}

func (m *MemLog) ClassType() string { return "file-log" }
func (m *MemLog) Outputs() []string { return nil }

func (m *MemLog) Start(ctx context.Context, configuration map[string]string, out runtimeOutputFunc) (Instance, error) {
	return &memLogInstance{capacity: m.capacity, name: configuration["name"]}, nil
}

func (m *MemLog) Cast(ctx context.Context, inst Instance, channel string, payload []byte) error {
	log := inst.(*memLogInstance)
	log.append(payload)
	return nil
}

func (m *MemLog) Call(ctx context.Context, inst Instance, channel string, payload []byte) ([]byte, error) {
	log := inst.(*memLogInstance)
	log.append(payload)
	return []byte("ok"), nil
}

type memLogInstance struct {
	mu       sync.Mutex
	name     string
	capacity int
	lines    [][]byte
}

func (l *memLogInstance) append(payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, payload)
	if len(l.lines) > l.capacity {
		l.lines = l.lines[len(l.lines)-l.capacity:]
	}
}

// Lines returns a snapshot of the buffered log lines, used by tests.
func (l *memLogInstance) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	for i, line := range l.lines {
		out[i] = fmt.Sprintf("%s: %s", l.name, string(line))
	}
	return out
}

func (l *memLogInstance) Patch(ctx context.Context, out runtimeOutputFunc) error { return nil }
func (l *memLogInstance) Stop(ctx context.Context) error                        { return nil }

var _ Provider = (*MemLog)(nil)
