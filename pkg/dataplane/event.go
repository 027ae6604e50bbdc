// Package dataplane implements the per-instance handle described in §4.1:
// cast/call/reply/receive_next delivery over a link chain, with per-channel
// reply correlation. The in-process delivery loop generalizes a
// channel-backed topic queue into point-to-point instance mailboxes.
package dataplane

import (
	"time"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// Kind tags what a delivered event represents.
type Kind int

const (
	KindCast Kind = iota
	KindCall
	KindCallRet
	KindCallNoRet
	KindErr
)

// Event is one message moving through the data plane — a cast, the call
// side of a call/reply pair, or a reply to a previous call. Fields map onto
// §6's wire format; Source carries the full InstanceId (not just the
// 128-bit ComponentId the wire format names) because a reply must be
// routable back to the calling node, not just the calling component.
type Event struct {
	Source    api.InstanceID
	Target    api.InstanceID
	ChannelID uint64
	Kind      Kind
	Payload   []byte
	Metadata  []byte
	Created   time.Time
}

// CallRet is the outcome of a call, delivered either to the awaiting
// caller (via the reply correlation table) or returned synchronously by a
// local short-circuit link.
type CallRet struct {
	Kind    Kind // KindCallRet (Reply), KindCallNoRet (NoReply), or KindErr
	Payload []byte
}

func Reply(payload []byte) CallRet { return CallRet{Kind: KindCallRet, Payload: payload} }
func NoReply() CallRet             { return CallRet{Kind: KindCallNoRet} }
func Err() CallRet                 { return CallRet{Kind: KindErr} }

func (r CallRet) IsErr() bool { return r.Kind == KindErr }
