package resource

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeless-project/edgeless/pkg/api"
)

func TestMemLog_CastAppendsAndTruncatesToCapacity(t *testing.T) {
	m := NewMemLog(2)
	inst, err := m.Start(context.Background(), map[string]string{"name": "audit"}, nil)
	require.NoError(t, err)

	log := inst.(*memLogInstance)
	require.NoError(t, m.Cast(context.Background(), inst, "write", []byte("one")))
	require.NoError(t, m.Cast(context.Background(), inst, "write", []byte("two")))
	require.NoError(t, m.Cast(context.Background(), inst, "write", []byte("three")))

	lines := log.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "audit: two", lines[0])
	assert.Equal(t, "audit: three", lines[1])
}

func TestMemLog_NonPositiveCapacityFallsBackToDefault(t *testing.T) {
	m := NewMemLog(0)
	assert.Equal(t, 1000, m.capacity)
}

func TestMemLog_CallAppendsAndAcks(t *testing.T) {
	m := NewMemLog(10)
	inst, err := m.Start(context.Background(), map[string]string{"name": "audit"}, nil)
	require.NoError(t, err)

	reply, err := m.Call(context.Background(), inst, "write", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(reply))
	assert.Len(t, inst.(*memLogInstance).Lines(), 1)
}

func TestRegistry_LookupAndClassTypes(t *testing.T) {
	r := NewRegistry(NewMemLog(10), NewPortalAdvertiser())

	p, ok := r.Lookup("file-log")
	require.True(t, ok)
	assert.Equal(t, "file-log", p.ClassType())

	_, ok = r.Lookup("does-not-exist")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"file-log", "portal"}, r.ClassTypes())
}

func TestRegistry_AdvertiseAttachesConfigurationToRecords(t *testing.T) {
	r := NewRegistry(NewMemLog(10), NewPortalAdvertiser())
	r.Advertise("portal", map[string]string{"reachable_domains": "A,B"})

	nodeID := uuid.New()
	records := r.Records(nodeID)
	require.Len(t, records, 2)

	byClass := make(map[string]api.ResourceProviderRecord, len(records))
	for _, rec := range records {
		byClass[rec.ClassType] = rec
	}

	assert.Nil(t, byClass["file-log"].Configuration)
	assert.Equal(t, map[string]string{"reachable_domains": "A,B"}, byClass["portal"].Configuration)
	assert.Equal(t, "portal@"+nodeID.String(), byClass["portal"].ProviderID)
}
