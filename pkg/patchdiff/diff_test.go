package patchdiff

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeless-project/edgeless/pkg/api"
)

func TestChangedLIDs_NoDiffReturnsNoChanges(t *testing.T) {
	lid := uuid.New()
	target := api.InstanceID{Node: uuid.New(), Component: uuid.New()}
	graph := api.DependencyGraph{
		lid: {"out": {Direct: &target}},
	}
	changed, err := ChangedLIDs(graph, graph)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestChangedLIDs_DetectsChangedTarget(t *testing.T) {
	lid := uuid.New()
	before := api.InstanceID{Node: uuid.New(), Component: uuid.New()}
	after := api.InstanceID{Node: uuid.New(), Component: uuid.New()}

	beforeGraph := api.DependencyGraph{lid: {"out": {Direct: &before}}}
	afterGraph := api.DependencyGraph{lid: {"out": {Direct: &after}}}

	changed, err := ChangedLIDs(beforeGraph, afterGraph)
	require.NoError(t, err)
	assert.Equal(t, []api.ComponentID{lid}, changed)
}

func TestChangedLIDs_DetectsAddedAndRemovedLIDs(t *testing.T) {
	removedLID := uuid.New()
	addedLID := uuid.New()
	target := api.InstanceID{Node: uuid.New(), Component: uuid.New()}

	before := api.DependencyGraph{removedLID: {"out": {Direct: &target}}}
	after := api.DependencyGraph{addedLID: {"out": {Direct: &target}}}

	changed, err := ChangedLIDs(before, after)
	require.NoError(t, err)
	assert.ElementsMatch(t, []api.ComponentID{removedLID, addedLID}, changed)
}

func TestApplyRFC6902_AppliesPatchDocument(t *testing.T) {
	base := []byte(`{"name":"f1","annotations":{}}`)
	patch := []byte(`[{"op":"add","path":"/annotations/zone","value":"edge"}]`)

	result, err := ApplyRFC6902(base, patch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"f1","annotations":{"zone":"edge"}}`, string(result))
}

func TestApplyRFC6902_InvalidPatchErrors(t *testing.T) {
	_, err := ApplyRFC6902([]byte(`{}`), []byte(`not-json`))
	assert.Error(t, err)
}
