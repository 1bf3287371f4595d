package room

import (
	"time"

	"github.com/voxroom/voxroom/internal/fault"
)

// speakRequest is one queued claim on the room's floor.
type speakRequest struct {
	agentID  string
	text     string
	enqueued time.Time
	speak    SpeakFunc
}

// turnQueue is the room's FIFO of pending speak requests. Not safe for
// concurrent use; the arbiter serializes access.
type turnQueue struct {
	cap     int
	pending []speakRequest
}

func newTurnQueue(cap int) *turnQueue {
	if cap <= 0 {
		cap = 16
	}
	return &turnQueue{cap: cap}
}

// push appends a request, failing with a busy fault when the queue is full.
func (q *turnQueue) push(r speakRequest) error {
	if len(q.pending) >= q.cap {
		return fault.Errorf(fault.KindBusy, "room: turn queue full (%d)", q.cap)
	}
	q.pending = append(q.pending, r)
	return nil
}

// pop removes and returns the oldest request. ok is false when empty.
func (q *turnQueue) pop() (speakRequest, bool) {
	if len(q.pending) == 0 {
		return speakRequest{}, false
	}
	r := q.pending[0]
	q.pending = q.pending[1:]
	return r, true
}

// drop removes every queued request from the given agent, returning how many
// were removed.
func (q *turnQueue) drop(agentID string) int {
	kept := q.pending[:0]
	dropped := 0
	for _, r := range q.pending {
		if r.agentID == agentID {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	q.pending = kept
	return dropped
}

func (q *turnQueue) len() int {
	return len(q.pending)
}
