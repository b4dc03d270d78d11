package server

import (
	"sync"

	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
)

// Event types streamed to websocket subscribers.
const (
	EventLog      = "log"
	EventStatus   = "status"
	EventProgress = "progress"
	EventDone     = "done"
)

// Event is one message on a run's event stream.
type Event struct {
	Type     string                 `json:"type"`
	Line     string                 `json:"line,omitempty"`
	Progress *optimization.Progress `json:"progress,omitempty"`
	Run      *runView               `json:"run,omitempty"`
}

// hub fans out the events of one run. Publishing never blocks the run: a
// subscriber whose buffer is full misses the event.
type hub struct {
	mu      sync.Mutex
	buffer  int
	subs    map[chan Event]struct{}
	closed  bool
	dropped int
}

func newHub(buffer int) *hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &hub{buffer: buffer, subs: make(map[chan Event]struct{})}
}

// subscribe returns a channel of future events and a function that detaches
// it. The channel is closed when the run ends or on detach. Subscribing to a
// finished run yields an already closed channel.
func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped++
		}
	}
}

// close ends the stream for every subscriber.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) droppedEvents() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
