package storage

import (
	"sync"

	"github.com/dougsko/antbridge/pkg/engine"
	"github.com/dougsko/antbridge/pkg/logging"
)

const recorderQueueSize = 128

// Recorder turns engine command events into CommandRecords and writes them
// from its own goroutine so the engine loop never waits on the database.
type Recorder struct {
	store *CommandStore
	log   *logging.ComponentLogger
	queue chan CommandRecord
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store *CommandStore, logger *logging.Logger) *Recorder {
	r := &Recorder{
		store: store,
		log:   logger.Component("storage"),
		queue: make(chan CommandRecord, recorderQueueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// RecordFromEvent maps command events to a record. Other events return false.
func RecordFromEvent(ev engine.Event) (CommandRecord, bool) {
	switch ev.Kind {
	case engine.EventCommandSent:
		return CommandRecord{
			Timestamp: ev.Time,
			Rig:       ev.Rig.String(),
			Command:   ev.Command,
			Origin:    string(ev.Origin),
			Outcome:   OutcomeSent,
		}, true
	case engine.EventSendFailed:
		origin := ev.Origin
		if origin == "" {
			origin = engine.OriginManual
		}
		return CommandRecord{
			Timestamp: ev.Time,
			Rig:       ev.Rig.String(),
			Command:   ev.Command,
			Origin:    string(origin),
			Outcome:   OutcomeFailed,
			Reason:    ev.Text,
		}, true
	}
	return CommandRecord{}, false
}

// HandleEvent queues command events for writing. It never blocks; records
// are dropped when the queue is full.
func (r *Recorder) HandleEvent(ev engine.Event) {
	rec, ok := RecordFromEvent(ev)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.log.Warn("Command audit queue full; record dropped", logging.Fields{"command": rec.Command})
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.queue {
		if _, err := r.store.Record(rec); err != nil {
			r.log.Error("Failed to record command", logging.Fields{"command": rec.Command, "error": err})
		}
	}
}

// Close writes any queued records and stops the recorder.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}
