package api

// SpawnWorkflowRequest is the external client-facing request to start a new
// workflow (§4.4, §6).
type SpawnWorkflowRequest struct {
	Workflow WorkflowRequest `json:"workflow"`
}

// SpawnWorkflowResponse returns the workflow id assigned by the controller
// together with where every entry landed (§6 WorkflowInstance).
type SpawnWorkflowResponse struct {
	WorkflowID WorkflowID                     `json:"workflow_id"`
	Mapping    map[string]*DomainMappingEntry `json:"domain_mapping"`
}

// WorkflowInfo is the read-model the controller returns for Inspect/List.
type WorkflowInfo struct {
	WorkflowID WorkflowID                    `json:"workflow_id"`
	Status     WorkflowStatus                `json:"status"`
	Mapping    map[string]*DomainMappingEntry `json:"domain_mapping"`
}

// WorkflowStatus summarizes whether a workflow is fully, partially, or not
// placed.
type WorkflowStatus string

const (
	WorkflowStatusActive  WorkflowStatus = "active"
	WorkflowStatusOrphan  WorkflowStatus = "orphan"
	WorkflowStatusUnknown WorkflowStatus = "unknown"
)

// MigrateWorkflowRequest asks the controller to move one workflow entry
// (function or resource) to a different domain, an operator intent (§4.3
// cordon/migrate, §4.4).
type MigrateWorkflowRequest struct {
	WorkflowID WorkflowID `json:"workflow_id"`
	EntryName  string     `json:"entry_name"`
	TargetDomain DomainID `json:"target_domain,omitempty"` // "" = let placement choose
}

// ListWorkflowsResponse enumerates every workflow id the controller knows
// about, placed or orphan (§6 list()).
type ListWorkflowsResponse struct {
	WorkflowIDs []WorkflowID `json:"workflow_ids"`
}

// DomainsResponse lists the domains a controller currently federates.
type DomainsResponse struct {
	Domains []DomainSummary `json:"domains"`
}

// DomainSummary is the controller's cached view of one orchestrator domain,
// refreshed by UpdateDomainRequest pushes.
type DomainSummary struct {
	DomainID        DomainID `json:"domain_id"`
	OrchestratorURL string   `json:"orchestrator_url"`
	Runtimes        []string `json:"runtimes"`
	ResourceClasses []string `json:"resource_classes"`
	ReachableDomains []DomainID `json:"reachable_domains,omitempty"`
	NodeCount       int      `json:"node_count"`
	Capacity        ResourceCapacity `json:"capacity"`
	Stale           bool     `json:"stale"`
}

// PortalDescriptor records one spliced cross-domain edge: a synthetic
// portal-ingress resource in the source domain paired with a portal-egress
// resource in the target domain, bridged by a monotonically increasing
// portal pair id (§4.4 portal splicing).
type PortalDescriptor struct {
	PairID       uint64     `json:"pair_id"`
	WorkflowID   WorkflowID `json:"workflow_id"`
	SourceDomain DomainID   `json:"source_domain"`
	SourceLID    ComponentID `json:"source_lid"`
	TargetDomain DomainID   `json:"target_domain"`
	TargetLID    ComponentID `json:"target_lid"`
	ChannelName  string     `json:"channel_name"`
}
