package mqtt

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultInboxSize bounds the messages held between two control cycles.
const DefaultInboxSize = 64

// inbox is a fixed-capacity FIFO filled by the MQTT client's delivery
// goroutine and drained by the control loop. When full, the oldest message
// is dropped: a newer level report supersedes an older one.
type inbox struct {
	mu       sync.Mutex
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newInbox(capacity int) *inbox {
	if capacity <= 0 {
		capacity = DefaultInboxSize
	}
	return &inbox{
		buf:      make([]Message, capacity),
		capacity: capacity,
	}
}

func (q *inbox) push(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		if !q.overflow {
			log.Warn().Int("capacity", q.capacity).Msg("mqtt inbox full, dropping oldest")
			q.overflow = true
		}
		// head already points at the oldest entry
		q.buf[q.head] = msg
		q.head = (q.head + 1) % q.capacity
		return
	}
	q.buf[q.head] = msg
	q.head = (q.head + 1) % q.capacity
	q.count++
}

func (q *inbox) drainAll() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	out := make([]Message, q.count)
	start := (q.head - q.count + q.capacity) % q.capacity
	for i := range out {
		out[i] = q.buf[(start+i)%q.capacity]
		q.buf[(start+i)%q.capacity] = Message{}
	}

	q.count = 0
	q.head = 0
	q.overflow = false
	return out
}
