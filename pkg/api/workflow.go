package api

// ClassSpecification identifies a function or resource's code/class and how
// to run it.
type ClassSpecification struct {
	ID              string   `json:"id"`
	Version         string   `json:"version"`
	Format          string   `json:"format"` // runtime tag, e.g. "RUST_WASM"
	Code            []byte   `json:"code,omitempty"`
	Outputs         []string `json:"outputs"`
}

// StateSpecification controls whether a restarted instance should attempt
// to rehydrate its previous state. No state store exists in this core
// (out of scope); when Policy is StatePolicyTransfer and the refresh loop
// respawns the function after node loss, the orchestrator logs that state
// continuity could not be honored rather than silently dropping the request.
type StateSpecification struct {
	Policy StatePolicy `json:"policy"`
}

type StatePolicy string

const (
	StatePolicyNone     StatePolicy = "none"
	StatePolicyTransfer StatePolicy = "transfer"
)

// WorkflowFunction is one function entry in a workflow request.
type WorkflowFunction struct {
	Name            string              `json:"name"`
	Class           ClassSpecification  `json:"class_specification"`
	OutputMapping   map[string]string   `json:"output_mapping"` // channel name -> target entry name
	Annotations     map[string]string   `json:"annotations"`
	State           StateSpecification  `json:"state_specification"`
}

// WorkflowResource is one resource entry in a workflow request.
type WorkflowResource struct {
	Name          string            `json:"name"`
	ClassType     string            `json:"class_type"`
	OutputMapping map[string]string `json:"output_mapping"`
	Configuration map[string]string `json:"configuration"`
	Annotations   map[string]string `json:"annotations"`
}

// WorkflowRequest is the ordered collection of functions and resources a
// client submits to the controller.
type WorkflowRequest struct {
	Functions   []WorkflowFunction `json:"workflow_functions"`
	Resources   []WorkflowResource `json:"workflow_resources"`
	Annotations map[string]string  `json:"annotations"`
}

// AllEntryNames returns every entry name declared in the request, used to
// validate output_mapping references and name uniqueness (§3 invariants).
func (w *WorkflowRequest) AllEntryNames() map[string]bool {
	names := make(map[string]bool, len(w.Functions)+len(w.Resources))
	for _, f := range w.Functions {
		names[f.Name] = true
	}
	for _, r := range w.Resources {
		names[r.Name] = true
	}
	return names
}

// ComponentKind distinguishes a function entry from a resource entry.
type ComponentKind string

const (
	ComponentFunction ComponentKind = "function"
	ComponentResource ComponentKind = "resource"
)

// DomainMappingEntry records, for one workflow entry name, which component
// type it is, which domain it was placed in, and the LID the owning
// orchestrator assigned it.
type DomainMappingEntry struct {
	Name          string        `json:"name"`
	ComponentType ComponentKind `json:"component_type"`
	DomainID      DomainID      `json:"domain_id"` // "" marks the entry orphan
	LID           ComponentID   `json:"lid"`
	// LastDomainID remembers the domain this entry ran in before it was
	// orphaned, so the refresh loop can prefer that domain reappearing
	// over a fresh placement search (§4.4 orphan reconciliation).
	LastDomainID DomainID `json:"last_domain_id,omitempty"`
}

// ActiveWorkflow is the controller's record of one admitted workflow.
type ActiveWorkflow struct {
	WorkflowID    WorkflowID                    `json:"workflow_id"`
	DesiredState  WorkflowRequest                `json:"desired_state"`
	AugmentedSpec WorkflowRequest                `json:"augmented_spec"`
	DomainMapping map[string]*DomainMappingEntry `json:"domain_mapping"`
}

// IsOrphan reports whether any domain_mapping entry has an empty DomainID.
func (a *ActiveWorkflow) IsOrphan() bool {
	for _, e := range a.DomainMapping {
		if e.DomainID == "" {
			return true
		}
	}
	return false
}
