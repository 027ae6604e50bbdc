package api

// StartFunctionRequest is the controller->orchestrator Function Instance
// API "start" call (§4.3, §6). Output mapping is resolved afterward by a
// separate Patch call, once every sibling component in the workflow has
// been allocated a LID.
type StartFunctionRequest struct {
	Class       ClassSpecification  `json:"class_specification"`
	Annotations map[string]string   `json:"annotations"`
	State       StateSpecification  `json:"state_specification"`
}

// StartResourceRequest is the controller->orchestrator Resource
// Configuration API "start" call.
type StartResourceRequest struct {
	ClassType     string            `json:"class_type"`
	Configuration map[string]string `json:"configuration"`
	Annotations   map[string]string `json:"annotations"`
}

// StartLIDResponse returns the logical id the orchestrator assigned.
type StartLIDResponse struct {
	LID ComponentID `json:"lid"`
}

// LIDLink is one resolved entry of a logical patch: either a single
// target LID or an all-of fan-out to several, mirroring Link but at the
// logical (pre-InstanceID-resolution) level the controller/orchestrator
// boundary operates at.
type LIDLink struct {
	Direct *ComponentID  `json:"direct,omitempty"`
	AllOf  []ComponentID `json:"all_of,omitempty"`
}

// IsAllOf reports whether this link fans out to multiple targets.
func (l LIDLink) IsAllOf() bool { return len(l.AllOf) > 0 }

// LIDPatchRequest is the controller->orchestrator "patch" call: origin_lid
// plus its output_mapping_by_name, each channel resolved to the target
// LID(s) within the same domain (§4.3 Patch).
type LIDPatchRequest struct {
	LID           ComponentID        `json:"lid"`
	OutputMapping map[string]LIDLink `json:"output_mapping"`
}
