package ratelimit

import "github.com/edgeless-project/edgeless/pkg/api"

// WorkflowTier represents the rate limit tier based on workflow complexity.
type WorkflowTier string

const (
	TierSimple   WorkflowTier = "simple"   // functions only, no resources
	TierStandard WorkflowTier = "standard" // 1-2 resources
	TierHeavy    WorkflowTier = "heavy"    // 3+ resources
)

// WorkflowProfile summarizes a submitted workflow's shape for tiering.
type WorkflowProfile struct {
	Tier          WorkflowTier
	ResourceCount int
	FunctionCount int
}

// InspectWorkflow classifies req by its resource count: resources are the
// entries most likely to hold an external dependency (a broker, a file
// system, a portal bridge), so they drive the tier rather than raw
// function count.
func InspectWorkflow(req *api.WorkflowRequest) WorkflowProfile {
	profile := WorkflowProfile{
		FunctionCount: len(req.Functions),
		ResourceCount: len(req.Resources),
	}
	profile.Tier = determineTier(profile.ResourceCount)
	return profile
}

func determineTier(resourceCount int) WorkflowTier {
	switch {
	case resourceCount == 0:
		return TierSimple
	case resourceCount <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}

func (t WorkflowTier) String() string { return string(t) }
