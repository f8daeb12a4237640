package eventbus

import (
	"context"
	"sync"

	"github.com/jigged/shopfloor/pkg/events"
)

// Recorder is an in-memory EventPublisher that keeps every published event.
// Engines built without a bus publish into a Recorder.
type Recorder struct {
	mu        sync.Mutex
	published []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, _ string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.published = append(r.published, event)

	return nil
}

// Events returns a copy of the published events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.published...)
}

// Types returns the type of each published event in publish order.
func (r *Recorder) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]events.EventType, 0, len(r.published))
	for _, event := range r.published {
		types = append(types, event.GetType())
	}

	return types
}
