package api

import "time"

// ResourceCapacity describes the bounded capacity an orchestrator uses when
// filtering placement candidates (§4.3 placement policy).
type ResourceCapacity struct {
	CPU    int64 `json:"cpu"`
	Memory int64 `json:"memory"`
}

// NodeDescriptor is the orchestrator's registry record for one node agent.
type NodeDescriptor struct {
	NodeID        NodeID            `json:"node_id"`
	AgentURL      string            `json:"agent_url"`
	InvocationURL string            `json:"invocation_url"`
	Runtimes      []string          `json:"runtimes"`
	Labels        map[string]string `json:"labels"`
	Capacity      ResourceCapacity  `json:"capacity"`
	LastSeen      time.Time         `json:"last_seen"`
}

// IsStale reports whether the node has not refreshed within staleAfter of
// now.
func (n *NodeDescriptor) IsStale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(n.LastSeen) > staleAfter
}

// ResourceProviderRecord is the orchestrator's registry record for one
// resource provider a node agent has advertised.
type ResourceProviderRecord struct {
	ProviderID    string            `json:"provider_id"`
	ClassType     string            `json:"class_type"`
	NodeID        NodeID            `json:"node_id"`
	Outputs       []string          `json:"outputs"`
	Configuration map[string]string `json:"configuration"`
}

// ActiveInstance is the orchestrator's record of where one logical
// component (LID) currently runs.
type ActiveInstance struct {
	LID          ComponentID       `json:"lid"`
	Kind         ComponentKind     `json:"component_type"`
	ClassID      string            `json:"class_id,omitempty"`
	ProviderID   string            `json:"provider_id,omitempty"`
	Instance     InstanceID        `json:"instance"`
	Annotations  map[string]string `json:"annotations"`
	Dependencies map[string]ComponentID `json:"dependencies"` // output channel -> target LID
}

// UpdateNodeRequest is sent by a node agent on each registration heartbeat
// (§4.2/§4.3 node registration loop).
type UpdateNodeRequest struct {
	NodeID        NodeID            `json:"node_id"`
	Nonce         string            `json:"nonce"`
	Counter       uint64            `json:"counter"`
	AgentURL      string            `json:"agent_url"`
	InvocationURL string            `json:"invocation_url"`
	Runtimes      []string          `json:"runtimes"`
	Labels        map[string]string `json:"labels"`
	Capacity      ResourceCapacity  `json:"capacity"`
	Resources     []ResourceProviderRecord `json:"resources,omitempty"`
	Health        NodeHealth        `json:"health"`
}

// NodeHealth carries lightweight capability/load signals the node self
// reports; the orchestrator never pulls metrics out-of-band.
type NodeHealth struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	RunningInstances   int     `json:"running_instances"`
}

// UpdateNodeResponse acknowledges registration and carries the refresh
// interval the node should honor.
type UpdateNodeResponse struct {
	Accepted      bool          `json:"accepted"`
	RefreshEvery  time.Duration `json:"refresh_every"`
}

// UpdateDomainRequest is the orchestrator's periodic push of its domain
// capability snapshot to the controller (§4.3/§4.4).
type UpdateDomainRequest struct {
	DomainID       DomainID                    `json:"domain_id"`
	Nonce          string                      `json:"nonce"`
	Counter        uint64                      `json:"counter"`
	OrchestratorURL string                     `json:"orchestrator_url"`
	Runtimes       []string                    `json:"runtimes"`
	ResourceClasses []string                   `json:"resource_classes"`
	ReachableDomains []DomainID                `json:"reachable_domains,omitempty"`
	NodeCount      int                         `json:"node_count"`
	Capacity       ResourceCapacity            `json:"capacity"`
}

// UpdateDomainResponse acknowledges a domain capability push.
type UpdateDomainResponse struct {
	Accepted bool `json:"accepted"`
}
