package api

// IntentKind tags the operator-authored directives a proxy queues for the
// orchestrator's refresh loop to consume (§4.3 Intents, GLOSSARY).
type IntentKind string

const (
	IntentMigrate   IntentKind = "migrate"
	IntentCordon    IntentKind = "cordon"
	IntentUncordon  IntentKind = "uncordon"
)

// Intent is one queued directive. Fields not relevant to Kind are zero.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	LID        ComponentID `json:"lid,omitempty"`        // Migrate
	Candidates []NodeID    `json:"candidates,omitempty"` // Migrate
	NodeID     NodeID      `json:"node_id,omitempty"`     // Cordon/Uncordon
}

// PerformanceSample is one point of the lightweight load signal a node
// self-reports alongside its registration heartbeat.
type PerformanceSample struct {
	Timestamp          int64   `json:"timestamp"`
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
}
