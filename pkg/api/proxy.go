package api

import "time"

// ProxyEntityKind tags what kind of record a proxy snapshot entry holds,
// since the proxy stores nodes, instances, and resource providers in one
// key space (§6).
type ProxyEntityKind string

const (
	ProxyEntityNode     ProxyEntityKind = "node"
	ProxyEntityInstance ProxyEntityKind = "instance"
	ProxyEntityResource ProxyEntityKind = "resource"
)

// ProxyEvent is published on the proxy's live subscriber feed (websocket)
// whenever the orchestrator's snapshot changes.
type ProxyEvent struct {
	Kind      ProxyEntityKind `json:"kind"`
	Key       string          `json:"key"`
	Removed   bool            `json:"removed"`
	Timestamp time.Time       `json:"timestamp"`
}
