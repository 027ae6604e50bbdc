// Package api holds the wire and domain types shared by the data plane,
// node agent, orchestrator, and controller (§3 and §6).
package api

import "github.com/google/uuid"

// NodeID identifies a node within a domain. 128-bit, opaque, globally
// unique, backed by uuid.UUID.
type NodeID = uuid.UUID

// ComponentID identifies a function or resource instance owned by an
// orchestrator. A "logical id" (LID) is a ComponentID that may map to one
// or more physical InstanceIDs over time (replication, restart).
type ComponentID = uuid.UUID

// WorkflowID identifies a workflow at the controller.
type WorkflowID = uuid.UUID

// LinkInstanceID identifies a data-plane all-of multicast link.
type LinkInstanceID = uuid.UUID

// DomainID identifies an orchestration domain at the controller. Domain
// ids are operator-chosen strings (e.g. "domain-0"), not uuids, mirroring
// the original Rust implementation where a domain is named, not minted.
type DomainID = string

// NewID mints a fresh 128-bit opaque identifier.
func NewID() uuid.UUID { return uuid.New() }

// ParseID parses the canonical string form of a 128-bit opaque identifier.
func ParseID(s string) (uuid.UUID, error) { return uuid.Parse(s) }

// InstanceID is the physical address of one running materialization of a
// component: which node it lives on, and its ComponentID on that node.
type InstanceID struct {
	Node      NodeID      `json:"node_id"`
	Component ComponentID `json:"component_id"`
}

func (i InstanceID) IsZero() bool {
	return i.Node == uuid.Nil && i.Component == uuid.Nil
}
