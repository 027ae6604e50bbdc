package dataplane

import (
	"sync"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// PeerTable is the node-local mapping NodeId -> remote-transport-client
// (§4.1). Mutated by the node agent's Node Management API (add_peer,
// del_peer); read by every RemoteLink on send/call.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[api.NodeID]RemoteTransport
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[api.NodeID]RemoteTransport)}
}

// AddPeer installs or replaces the transport used to reach nodeID.
func (t *PeerTable) AddPeer(nodeID api.NodeID, transport RemoteTransport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[nodeID] = transport
}

// DelPeer removes a peer; sends to it subsequently fail.
func (t *PeerTable) DelPeer(nodeID api.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, nodeID)
}

func (t *PeerTable) get(nodeID api.NodeID) (RemoteTransport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	transport, ok := t.peers[nodeID]
	return transport, ok
}

// Snapshot returns the set of currently known peer node ids, used for
// catching up a newly added node with the existing peer set (§4.3 AddNode).
func (t *PeerTable) Snapshot() []api.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]api.NodeID, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	return ids
}
