// Package validation implements the syntactic checks the controller runs
// on an incoming workflow request before attempting placement (§3 Data
// model invariants). It never checks domain compatibility — that is a
// Capacity-kind failure surfaced by placement, not a BadRequest.
package validation

import (
	"fmt"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// WorkflowValidator validates a WorkflowRequest's shape.
type WorkflowValidator struct{}

func NewWorkflowValidator() *WorkflowValidator { return &WorkflowValidator{} }

// Validate enforces: names unique within the workflow; every
// output_mapping target exists in the same workflow; every entry carries
// a non-empty name and class/resource tag.
func (v *WorkflowValidator) Validate(req *api.WorkflowRequest) error {
	names := make(map[string]bool, len(req.Functions)+len(req.Resources))

	for i, f := range req.Functions {
		if f.Name == "" {
			return fmt.Errorf("function %d: name must not be empty", i)
		}
		if names[f.Name] {
			return fmt.Errorf("function %d: duplicate name %q", i, f.Name)
		}
		names[f.Name] = true
		if f.Class.Format == "" {
			return fmt.Errorf("function %q: class_specification.format must not be empty", f.Name)
		}
	}
	for i, r := range req.Resources {
		if r.Name == "" {
			return fmt.Errorf("resource %d: name must not be empty", i)
		}
		if names[r.Name] {
			return fmt.Errorf("resource %d: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
		if r.ClassType == "" {
			return fmt.Errorf("resource %q: class_type must not be empty", r.Name)
		}
	}

	for _, f := range req.Functions {
		for channel, target := range f.OutputMapping {
			if !names[target] {
				return fmt.Errorf("function %q: output_mapping[%q] targets unknown entry %q", f.Name, channel, target)
			}
		}
	}
	for _, r := range req.Resources {
		for channel, target := range r.OutputMapping {
			if !names[target] {
				return fmt.Errorf("resource %q: output_mapping[%q] targets unknown entry %q", r.Name, channel, target)
			}
		}
	}
	return nil
}
