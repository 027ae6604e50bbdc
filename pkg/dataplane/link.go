package dataplane

import (
	"context"
	"fmt"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// RemoteTransport is the peer-facing side of a remote link: deliver a cast
// or call to a specific instance hosted on another node. Implemented by
// pkg/dataplane/transport over HTTP.
type RemoteTransport interface {
	Send(ctx context.Context, ev Event) error
	Call(ctx context.Context, ev Event) (CallRet, error)
}

// Link is one entry in a handle's link chain (§4.1). TrySend/TryCall
// report whether this link was "Final" — terminating dispatch — so the
// chain stops trying further links once one claims the message.
type Link interface {
	TrySend(ctx context.Context, ev Event) (final bool, err error)
	TryCall(ctx context.Context, ev Event) (final bool, ret CallRet, err error)
}

// LocalLink short-circuits delivery to another instance hosted on this
// same node by looking it up directly in the node-local Registry, skipping
// any network transport.
type LocalLink struct {
	registry *Registry
}

func NewLocalLink(registry *Registry) *LocalLink {
	return &LocalLink{registry: registry}
}

func (l *LocalLink) TrySend(ctx context.Context, ev Event) (bool, error) {
	h, ok := l.registry.lookup(ev.Target)
	if !ok {
		return false, nil
	}
	h.deliver(ev)
	return true, nil
}

func (l *LocalLink) TryCall(ctx context.Context, ev Event) (bool, CallRet, error) {
	h, ok := l.registry.lookup(ev.Target)
	if !ok {
		return false, CallRet{}, nil
	}
	ret, err := h.deliverCall(ctx, ev)
	return true, ret, err
}

// RemoteLink dispatches to another node's invocation endpoint via a
// RemoteTransport obtained from the node's PeerTable.
type RemoteLink struct {
	peers *PeerTable
}

func NewRemoteLink(peers *PeerTable) *RemoteLink {
	return &RemoteLink{peers: peers}
}

func (l *RemoteLink) TrySend(ctx context.Context, ev Event) (bool, error) {
	transport, ok := l.peers.get(ev.Target.Node)
	if !ok {
		return true, fmt.Errorf("send to unknown peer %s", ev.Target.Node)
	}
	return true, transport.Send(ctx, ev)
}

func (l *RemoteLink) TryCall(ctx context.Context, ev Event) (bool, CallRet, error) {
	transport, ok := l.peers.get(ev.Target.Node)
	if !ok {
		return true, CallRet{}, fmt.Errorf("call to unknown peer %s", ev.Target.Node)
	}
	ret, err := transport.Call(ctx, ev)
	return true, ret, err
}

// AllOfLink fans a cast out to every member of a multicast set. Nothing in
// this tree constructs one: the node agent fans an all-of output mapping
// out itself, sending once per member instance.
type AllOfLink struct {
	members []api.InstanceID
	next    []Link
}

func NewAllOfLink(members []api.InstanceID, next []Link) *AllOfLink {
	return &AllOfLink{members: members, next: next}
}

func (l *AllOfLink) TrySend(ctx context.Context, ev Event) (bool, error) {
	var firstErr error
	for _, target := range l.members {
		fanned := ev
		fanned.Target = target
		for _, link := range l.next {
			final, err := link.TrySend(ctx, fanned)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if final {
				break
			}
		}
	}
	return true, firstErr
}

// TryCall is not meaningful for an all-of multicast; calls always target a
// single instance.
func (l *AllOfLink) TryCall(ctx context.Context, ev Event) (bool, CallRet, error) {
	return true, CallRet{}, fmt.Errorf("call not supported on all-of link")
}
