package api

// SpawnFunctionRequest is the orchestrator->node-agent Function Instance
// API "start" call (§4.2).
type SpawnFunctionRequest struct {
	LID           ComponentID         `json:"lid"`
	Class         ClassSpecification  `json:"class_specification"`
	Annotations   map[string]string   `json:"annotations"`
	State         StateSpecification  `json:"state_specification"`
	OutputMapping map[string]Link     `json:"output_mapping"`
}

// SpawnResourceRequest is the orchestrator->node-agent Resource
// Configuration API "start" call (§4.2).
type SpawnResourceRequest struct {
	LID           ComponentID       `json:"lid"`
	ClassType     string            `json:"class_type"`
	Configuration map[string]string `json:"configuration"`
	Annotations   map[string]string `json:"annotations"`
	OutputMapping map[string]Link   `json:"output_mapping"`
}

// StartComponentResponse is returned by the node agent in reply to either
// spawn request.
type StartComponentResponse struct {
	Instance InstanceID `json:"instance"`
}

// PatchRequest updates a running instance's output_mapping in place,
// without restarting it (§4.1 dependency changes, §4.2 Patch).
type PatchRequest struct {
	LID           ComponentID     `json:"lid"`
	OutputMapping map[string]Link `json:"output_mapping"`
}

// Link is one entry of an instance's resolved output mapping: either a
// single direct target, or an all-of fan-out to several.
type Link struct {
	Direct *InstanceID  `json:"direct,omitempty"`
	AllOf  []InstanceID `json:"all_of,omitempty"`
}

// IsAllOf reports whether this link fans out to multiple targets.
func (l Link) IsAllOf() bool { return len(l.AllOf) > 0 }

// DependencyGraph is the orchestrator's desired-state view of every
// instance's output_mapping, keyed by LID; patchdiff.ChangedLIDs compares
// two snapshots of it (§4.1/§4.3).
type DependencyGraph map[ComponentID]map[string]Link
