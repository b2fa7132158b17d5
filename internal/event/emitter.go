package event

import (
	"sync/atomic"
	"time"
)

// Emitter stamps payloads with the run identifier and a monotonically
// increasing sequence, then publishes them on the bus. It is safe for
// concurrent use; sequence numbers are unique but arrival order across
// concurrent emitters is not guaranteed beyond the sequence itself.
type Emitter struct {
	bus   *Bus
	runID string
	seq   atomic.Uint64
}

// NewEmitter creates an emitter for one run.
func NewEmitter(bus *Bus, runID string) *Emitter {
	return &Emitter{bus: bus, runID: runID}
}

// Emit publishes a payload wrapped in a sequenced envelope.
func (e *Emitter) Emit(p Payload) {
	env := Envelope{
		Seq:     e.seq.Add(1),
		RunID:   e.runID,
		Type:    p.EventType(),
		Time:    time.Now(),
		Payload: p,
	}
	e.bus.Publish(env)
}

// RunID returns the run identifier this emitter stamps.
func (e *Emitter) RunID() string {
	return e.runID
}
