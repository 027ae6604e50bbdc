package dataplane

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// Logger is the minimal logging interface this package depends on.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

// Delivery is what ReceiveNext hands back to the owning instance's
// runtime loop: a cast or a call awaiting a reply (§4.1).
type Delivery struct {
	Source    api.InstanceID
	ChannelID uint64
	Payload   []byte
	Metadata  []byte
	Kind      Kind // KindCast or KindCall
	Created   time.Time
}

// Handle is the per-instance data-plane endpoint: cast/call/reply/
// receive_next over an ordered link chain (§4.1).
type Handle struct {
	id      api.InstanceID
	links   []Link
	inbox   chan Event
	pending *replyTable
	nextID  uint64
	log     Logger
}

// NewHandle creates a handle for instance id, dispatching sends/calls
// through the given link chain in order.
func NewHandle(id api.InstanceID, links []Link, log Logger) *Handle {
	return &Handle{
		id:      id,
		links:   links,
		inbox:   make(chan Event, 256),
		pending: newReplyTable(),
		log:     log,
	}
}

func (h *Handle) ID() api.InstanceID { return h.id }

// Send is fire-and-forget cast delivery. Transport errors are logged and
// dropped, never surfaced to the caller (§4.1 failure semantics).
func (h *Handle) Send(ctx context.Context, target api.InstanceID, payload []byte) {
	ev := Event{Source: h.id, Target: target, Kind: KindCast, Payload: payload, Created: now()}
	for _, link := range h.links {
		final, err := link.TrySend(ctx, ev)
		if err != nil {
			h.log.Warn("cast delivery failed", "target", target, "error", err)
		}
		if final {
			return
		}
	}
	h.log.Warn("cast delivery found no link", "target", target)
}

// Call sends a call and blocks for its reply, tried against the link chain
// in order. The first link to claim "final" determines the outcome.
func (h *Handle) Call(ctx context.Context, target api.InstanceID, payload []byte) (CallRet, error) {
	channelID := atomic.AddUint64(&h.nextID, 1)
	ev := Event{Source: h.id, Target: target, ChannelID: channelID, Kind: KindCall, Payload: payload, Created: now()}
	for _, link := range h.links {
		final, ret, err := link.TryCall(ctx, ev)
		if final {
			if err != nil {
				return CallRet{Kind: KindErr}, err
			}
			return ret, nil
		}
	}
	return CallRet{Kind: KindErr}, apierr.NewNotFound("no link could deliver call")
}

// deliverCall is invoked by a Link (local short-circuit, or the invocation
// server on behalf of a remote caller) when this handle is the target of a
// call. It pushes a Delivery onto the receive_next queue and suspends
// until Reply is called with the same (caller, channel_id), or ctx is
// cancelled.
func (h *Handle) deliverCall(ctx context.Context, ev Event) (CallRet, error) {
	slot := h.pending.register(ev.Source, ev.ChannelID)
	select {
	case h.inbox <- ev:
	case <-ctx.Done():
		h.pending.cancel(ev.Source, ev.ChannelID)
		return CallRet{Kind: KindErr}, ctx.Err()
	}
	select {
	case ret := <-slot:
		return ret, nil
	case <-ctx.Done():
		h.pending.cancel(ev.Source, ev.ChannelID)
		return CallRet{Kind: KindErr}, ctx.Err()
	}
}

// deliver pushes a cast onto the receive_next queue without waiting.
func (h *Handle) deliver(ev Event) {
	select {
	case h.inbox <- ev:
	default:
		h.log.Warn("inbox full, dropping cast", "target", ev.Target)
	}
}

// Reply fulfills a previously delivered call. The caller must pass the
// same source and channel_id that the delivered call carried. A reply for
// an unknown or already-fulfilled call is dropped with a warning — it is
// not an error (the caller's wait may have already been cancelled).
func (h *Handle) Reply(src api.InstanceID, channelID uint64, ret CallRet) {
	if !h.pending.fulfill(src, channelID, ret) {
		h.log.Warn("unmatched reply dropped", "source", src, "channel_id", channelID)
	}
}

// ReceiveNext blocks until the next cast or call arrives, or ctx is done.
func (h *Handle) ReceiveNext(ctx context.Context) (Delivery, bool) {
	select {
	case ev := <-h.inbox:
		return Delivery{
			Source:    ev.Source,
			ChannelID: ev.ChannelID,
			Payload:   ev.Payload,
			Metadata:  ev.Metadata,
			Kind:      ev.Kind,
			Created:   ev.Created,
		}, true
	case <-ctx.Done():
		return Delivery{}, false
	}
}

// DeliverInbound is the entry point the invocation server uses to hand a
// remotely-originated event to this handle, dispatching cast vs call the
// same way a LocalLink would.
func (h *Handle) DeliverInbound(ctx context.Context, ev Event) (CallRet, error) {
	switch ev.Kind {
	case KindCast:
		h.deliver(ev)
		return CallRet{}, nil
	case KindCall:
		return h.deliverCall(ctx, ev)
	default:
		return CallRet{}, apierr.NewBadRequest("unsupported inbound event kind", "")
	}
}

var timeNow = time.Now

func now() time.Time { return timeNow() }
