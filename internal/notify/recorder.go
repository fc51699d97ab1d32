package notify

import "sync"

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *Recorder) Notify(event Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given kind were recorded for the
// endpoint. An empty endpoint matches all.
func (r *Recorder) Count(kind Kind, endpoint string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (endpoint == "" || e.Endpoint == endpoint) {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = nil
}
