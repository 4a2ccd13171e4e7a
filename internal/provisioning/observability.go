package provisioning

import (
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured events as the pipeline runs. Implementations
// must be safe for concurrent use: device steps emit progress from worker
// goroutines.
type Observer interface {
	Event(Event)
	Progress(step string, current, total int)
}

// EventType classifies pipeline events.
type EventType string

const (
	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventStepSkipped   EventType = "step.skipped"

	EventResourceCreating EventType = "resource.creating"
	EventResourceCreated  EventType = "resource.created"
	EventResourceExists   EventType = "resource.exists"

	EventRunPaused    EventType = "run.paused"
	EventRunCompleted EventType = "run.completed"
)

// Event is one structured pipeline occurrence.
type Event struct {
	Type      EventType
	Step      string
	Message   string
	Resource  string
	Timestamp time.Time
	Fields    map[string]string
}

// LogObserver forwards events to a logr sink. It is the default observer;
// the CLI swaps in a console renderer on interactive terminals.
type LogObserver struct {
	log logr.Logger
}

// NewLogObserver builds an Observer over a logr sink.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) Event(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	kv := []any{"type", string(e.Type)}
	if e.Step != "" {
		kv = append(kv, "step", e.Step)
	}
	if e.Resource != "" {
		kv = append(kv, "resource", e.Resource)
	}
	for k, v := range e.Fields {
		kv = append(kv, k, v)
	}
	o.log.Info(e.Message, kv...)
}

func (o *LogObserver) Progress(step string, current, total int) {
	o.log.V(1).Info("progress", "step", step, "current", current, "total", total)
}

// multiObserver fans events out to several observers.
type multiObserver []Observer

// MultiObserver combines observers, e.g. console rendering plus a log sink.
func MultiObserver(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) Event(e Event) {
	for _, o := range m {
		o.Event(e)
	}
}

func (m multiObserver) Progress(step string, current, total int) {
	for _, o := range m {
		o.Progress(step, current, total)
	}
}

// Helpers shared by the step implementations.

// LogResourceCreating emits a resource.creating event.
func LogResourceCreating(o Observer, step, resourceType, name string) {
	o.Event(Event{Type: EventResourceCreating, Step: step, Resource: name,
		Message: "creating " + resourceType, Fields: map[string]string{"type": resourceType}})
}

// LogResourceCreated emits a resource.created event.
func LogResourceCreated(o Observer, step, resourceType, name string) {
	o.Event(Event{Type: EventResourceCreated, Step: step, Resource: name,
		Message: resourceType + " created", Fields: map[string]string{"type": resourceType}})
}

// LogResourceExists emits a resource.exists event.
func LogResourceExists(o Observer, step, resourceType, name string) {
	o.Event(Event{Type: EventResourceExists, Step: step, Resource: name,
		Message: resourceType + " already exists", Fields: map[string]string{"type": resourceType}})
}
