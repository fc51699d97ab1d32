package heartbeat

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

const (
	StateIdle      = "idle"
	StateRetrying  = "retrying"
	StateCancelled = "cancelled"
)

const (
	eventEscalate = "escalate"
	eventConclude = "conclude"
	eventCancel   = "cancel"
)

type lifecycleContext struct {
	Endpoint string
}

// lifecycle is not safe for concurrent use; Task guards it with its mutex.
type lifecycle struct {
	interpreter *statekit.Interpreter[lifecycleContext]
}

func newLifecycle(endpoint string) (*lifecycle, error) {
	builder := statekit.NewMachine[lifecycleContext]("heartbeat").
		WithInitial(statekit.StateID(StateIdle)).
		WithContext(lifecycleContext{Endpoint: endpoint})

	builder.State(StateIdle).
		On(eventEscalate).Target(StateRetrying).
		On(eventCancel).Target(StateCancelled).
		Done()

	builder.State(StateRetrying).
		On(eventConclude).Target(StateIdle).
		On(eventCancel).Target(StateCancelled).
		Done()

	builder.State(StateCancelled).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build heartbeat lifecycle: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &lifecycle{interpreter: interpreter}, nil
}

// send reports whether the event moved the machine.
func (l *lifecycle) send(event string) bool {
	before := l.current()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	return l.current() != before
}

func (l *lifecycle) current() string {
	return string(l.interpreter.State().Value)
}
