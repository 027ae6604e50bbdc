package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeless-project/edgeless/pkg/api"
)

func domain(classes ...string) api.DomainSummary {
	return api.DomainSummary{ResourceClasses: classes}
}

func TestCompute_NoPortalAdvertisers(t *testing.T) {
	domains := map[api.DomainID]api.DomainSummary{
		"A": domain("RUST_WASM"),
		"B": domain("RUST_WASM"),
	}
	assert.Nil(t, Compute(domains))
}

func TestCompute_MembersMustAlsoAdvertisePortal(t *testing.T) {
	domains := map[api.DomainID]api.DomainSummary{
		"BAL": {ResourceClasses: []string{"portal"}, ReachableDomains: []api.DomainID{"A", "B"}},
		"A":   domain("RUST_WASM"), // does not advertise portal itself
		"B":   {ResourceClasses: []string{"portal"}},
	}
	// A is reachable but doesn't advertise portal, so only B would qualify,
	// leaving fewer than 2 members: no portal candidate.
	assert.Nil(t, Compute(domains))
}

func TestCompute_PicksLargestMemberSet(t *testing.T) {
	domains := map[api.DomainID]api.DomainSummary{
		"BAL1": {ResourceClasses: []string{"portal"}, ReachableDomains: []api.DomainID{"A", "B"}},
		"BAL2": {ResourceClasses: []string{"portal"}, ReachableDomains: []api.DomainID{"A", "B", "C"}},
		"A":    {ResourceClasses: []string{"portal"}},
		"B":    {ResourceClasses: []string{"portal"}},
		"C":    {ResourceClasses: []string{"portal"}},
	}
	d := Compute(domains)
	require.NotNil(t, d)
	assert.Equal(t, api.DomainID("BAL2"), d.DomainBal)
	assert.ElementsMatch(t, []api.DomainID{"A", "B", "C"}, d.Members)
}

func TestCompute_TieBreaksByLexicographicDomainID(t *testing.T) {
	domains := map[api.DomainID]api.DomainSummary{
		"BAL-Z": {ResourceClasses: []string{"portal"}, ReachableDomains: []api.DomainID{"A", "B"}},
		"BAL-A": {ResourceClasses: []string{"portal"}, ReachableDomains: []api.DomainID{"A", "B"}},
		"A":     {ResourceClasses: []string{"portal"}},
		"B":     {ResourceClasses: []string{"portal"}},
	}
	d := Compute(domains)
	require.NotNil(t, d)
	assert.Equal(t, api.DomainID("BAL-A"), d.DomainBal)
}

func simpleWorkflow() *api.WorkflowRequest {
	return &api.WorkflowRequest{
		Functions: []api.WorkflowFunction{
			{Name: "f1", OutputMapping: map[string]string{"out": "f2"}},
			{Name: "f2"},
		},
	}
}

func TestSplice_NoCrossDomainEdges_NoOp(t *testing.T) {
	req := simpleWorkflow()
	assignment := map[string]api.DomainID{"f1": "A", "f2": "A"}
	next, err := Splice(req, assignment, "BAL", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
	assert.Len(t, req.Resources, 0)
}

func TestSplice_CrossDomainEdgeInsertsFourResources(t *testing.T) {
	req := simpleWorkflow()
	assignment := map[string]api.DomainID{"f1": "A", "f2": "B"}

	next, err := Splice(req, assignment, "BAL", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)
	require.Len(t, req.Resources, 4)

	for _, r := range req.Resources {
		assert.Equal(t, "portal", r.ClassType)
	}

	sinkLocal := req.Resources[0]
	assert.Equal(t, "sink", sinkLocal.Configuration["role"])
	assert.Equal(t, "local", sinkLocal.Configuration["domain"])
	assert.Equal(t, "A", assignment[sinkLocal.Name])

	sinkPortal := req.Resources[1]
	assert.Equal(t, "sink", sinkPortal.Configuration["role"])
	assert.Equal(t, "portal", sinkPortal.Configuration["domain"])
	assert.Equal(t, "BAL", assignment[sinkPortal.Name])
	assert.Equal(t, "A", sinkPortal.Configuration["domain_name"])

	sourcePortal := req.Resources[2]
	assert.Equal(t, "source", sourcePortal.Configuration["role"])
	assert.Equal(t, "BAL", assignment[sourcePortal.Name])
	assert.Equal(t, "B", sourcePortal.Configuration["domain_name"])
	assert.Equal(t, sourcePortal.Name, sinkPortal.OutputMapping["out"])

	sourceLocal := req.Resources[3]
	assert.Equal(t, "source", sourceLocal.Configuration["role"])
	assert.Equal(t, "local", sourceLocal.Configuration["domain"])
	assert.Equal(t, "B", assignment[sourceLocal.Name])
	assert.Equal(t, "f2", sourceLocal.OutputMapping["out"])

	// origin's edge was rewritten to the local sink, not the original target.
	assert.Equal(t, sinkLocal.Name, req.Functions[0].OutputMapping["out"])
}

func TestSplice_MissingAssignmentErrors(t *testing.T) {
	req := simpleWorkflow()
	assignment := map[string]api.DomainID{"f1": "A"} // f2 unassigned
	_, err := Splice(req, assignment, "BAL", 1)
	assert.Error(t, err)
}
