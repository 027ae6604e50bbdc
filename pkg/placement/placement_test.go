package placement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

func node(id api.NodeID, runtimes []string, labels map[string]string, cpu, mem int64) *api.NodeDescriptor {
	return &api.NodeDescriptor{
		NodeID:   id,
		Runtimes: runtimes,
		Labels:   labels,
		Capacity: api.ResourceCapacity{CPU: cpu, Memory: mem},
	}
}

func TestSelect_FiltersByRuntime(t *testing.T) {
	wasmNodeID := uuid.New()
	goNodeID := uuid.New()
	nodes := []*api.NodeDescriptor{
		node(wasmNodeID, []string{"RUST_WASM"}, nil, 4, 4096),
		node(goNodeID, []string{"GO_NATIVE"}, nil, 4, 4096),
	}
	p := NewPolicy(StrategyRandom)
	picked, err := p.Select(Request{Runtime: "GO_NATIVE"}, nodes)
	require.NoError(t, err)
	assert.Equal(t, goNodeID, picked.NodeID)
}

func TestSelect_NoFeasibleNodeReturnsCapacityError(t *testing.T) {
	nodes := []*api.NodeDescriptor{node(uuid.New(), []string{"RUST_WASM"}, nil, 4, 4096)}
	p := NewPolicy(StrategyRandom)
	_, err := p.Select(Request{Runtime: "GO_NATIVE"}, nodes)
	require.Error(t, err)
	assert.Equal(t, apierr.Capacity, apierr.KindOf(err))
}

func TestSelect_FiltersByLabelPredicate(t *testing.T) {
	edgeNodeID := uuid.New()
	cloudNodeID := uuid.New()
	nodes := []*api.NodeDescriptor{
		node(edgeNodeID, []string{"RUST_WASM"}, map[string]string{"zone": "edge"}, 4, 4096),
		node(cloudNodeID, []string{"RUST_WASM"}, map[string]string{"zone": "cloud"}, 4, 4096),
	}
	p := NewPolicy(StrategyRandom)
	picked, err := p.Select(Request{
		Runtime:     "RUST_WASM",
		Annotations: map[string]string{"label_predicate": `labels["zone"] == "edge"`},
	}, nodes)
	require.NoError(t, err)
	assert.Equal(t, edgeNodeID, picked.NodeID)
}

func TestSelect_InvalidLabelPredicateIsBadRequest(t *testing.T) {
	nodes := []*api.NodeDescriptor{node(uuid.New(), []string{"RUST_WASM"}, nil, 4, 4096)}
	p := NewPolicy(StrategyRandom)
	_, err := p.Select(Request{
		Runtime:     "RUST_WASM",
		Annotations: map[string]string{"label_predicate": `labels[`},
	}, nodes)
	require.Error(t, err)
	assert.Equal(t, apierr.BadRequest, apierr.KindOf(err))
}

func TestSelect_FiltersByCapacity(t *testing.T) {
	smallNodeID := uuid.New()
	bigNodeID := uuid.New()
	nodes := []*api.NodeDescriptor{
		node(smallNodeID, nil, nil, 1, 512),
		node(bigNodeID, nil, nil, 8, 8192),
	}
	p := NewPolicy(StrategyRandom)
	picked, err := p.Select(Request{
		Annotations: map[string]string{"cpu": "4", "memory": "4096"},
	}, nodes)
	require.NoError(t, err)
	assert.Equal(t, bigNodeID, picked.NodeID)
}

func TestSelect_RoundRobinCyclesThroughCandidatesInOrder(t *testing.T) {
	nodes := []*api.NodeDescriptor{node(uuid.New(), nil, nil, 4, 4096), node(uuid.New(), nil, nil, 4, 4096)}
	p := NewPolicy(StrategyRoundRobin)

	first, err := p.Select(Request{}, nodes)
	require.NoError(t, err)
	second, err := p.Select(Request{}, nodes)
	require.NoError(t, err)
	third, err := p.Select(Request{}, nodes)
	require.NoError(t, err)

	assert.Equal(t, first.NodeID, third.NodeID)
	assert.NotEqual(t, first.NodeID, second.NodeID)
}

func TestSelect_CompiledPredicateIsCachedAcrossCalls(t *testing.T) {
	nodes := []*api.NodeDescriptor{node(uuid.New(), nil, map[string]string{"zone": "edge"}, 4, 4096)}
	p := NewPolicy(StrategyRandom)
	expr := `labels["zone"] == "edge"`

	_, err := p.Select(Request{Annotations: map[string]string{"label_predicate": expr}}, nodes)
	require.NoError(t, err)
	assert.Len(t, p.cel.cache, 1)

	_, err = p.Select(Request{Annotations: map[string]string{"label_predicate": expr}}, nodes)
	require.NoError(t, err)
	assert.Len(t, p.cel.cache, 1)
}
