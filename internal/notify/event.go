package notify

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindTaskStarted         Kind = "task_started"
	KindTaskStopped         Kind = "task_stopped"
	KindHTTPError           Kind = "http_error"
	KindTransportError      Kind = "transport_error"
	KindRetryAttempt        Kind = "retry_attempt"
	KindEscalationConcluded Kind = "escalation_concluded"
	KindHeartbeatSkipped    Kind = "heartbeat_skipped"
	KindCommand             Kind = "command"
	KindWarning             Kind = "warning"
)

type Event struct {
	Kind       Kind
	Time       time.Time
	Endpoint   string
	StatusCode int
	Attempt    int
	RunID      string
	Recovered  bool
	Err        error
	Message    string
}

// String renders the console line for the event.
func (e Event) String() string {
	var line string

	switch e.Kind {
	case KindHTTPError:
		line = fmt.Sprintf("Received HTTP code %d", e.StatusCode)
	case KindTransportError:
		line = "Could not open connection to server."
	case KindRetryAttempt:
		line = fmt.Sprintf("Attempting retry #%d.", e.Attempt)
	case KindEscalationConcluded:
		line = "Done with re-attempts. Continuing with the regularly scheduled pings"
	case KindHeartbeatSkipped:
		line = "Skipped heartbeat, re-attempts still in progress"
	default:
		line = e.Message
	}

	if e.Endpoint == "" {
		return line
	}
	return e.Endpoint + ": " + line
}

// Notifier receives events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Func adapts a function to a Notifier.
type Func func(Event)

func (f Func) Notify(e Event) {
	f(e)
}

// Discard drops every event.
var Discard Notifier = Func(func(Event) {})
