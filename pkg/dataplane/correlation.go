package dataplane

import (
	"sync"

	"github.com/edgeless-project/edgeless/pkg/api"
)

// replyKey identifies one outstanding inbound call a handle has accepted
// but not yet replied to. channel_id alone is only unique per sender
// (§4.1), so the pair (caller, channel_id) is the real key.
type replyKey struct {
	caller    api.InstanceID
	channelID uint64
}

// replyTable holds the single-shot slot each inbound call waits on between
// delivery (deliverCall pushes the event to receive_next and blocks) and
// reply (the function's logic calls Handle.Reply with the same channel_id
// it was given).
type replyTable struct {
	mu    sync.Mutex
	slots map[replyKey]chan CallRet
}

func newReplyTable() *replyTable {
	return &replyTable{slots: make(map[replyKey]chan CallRet)}
}

func (t *replyTable) register(caller api.InstanceID, channelID uint64) chan CallRet {
	slot := make(chan CallRet, 1)
	t.mu.Lock()
	t.slots[replyKey{caller, channelID}] = slot
	t.mu.Unlock()
	return slot
}

// fulfill delivers ret to the slot for (caller, channelID). It reports
// false if no such slot exists — an unmatched reply, logged and dropped by
// the caller (§4.1).
func (t *replyTable) fulfill(caller api.InstanceID, channelID uint64, ret CallRet) bool {
	t.mu.Lock()
	key := replyKey{caller, channelID}
	slot, ok := t.slots[key]
	if ok {
		delete(t.slots, key)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	slot <- ret
	return true
}

func (t *replyTable) cancel(caller api.InstanceID, channelID uint64) {
	t.mu.Lock()
	delete(t.slots, replyKey{caller, channelID})
	t.mu.Unlock()
}
