package notify

import (
	"context"
	"log/slog"
	"time"
)

// Collector is an asynchronous Notifier fanning events out to sinks.
type Collector struct {
	eventCh chan Event
	sinks   []Notifier
	logger  *slog.Logger
	done    chan struct{}
}

func NewCollector(bufferSize int, logger *slog.Logger, sinks ...Notifier) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &Collector{
		eventCh: make(chan Event, bufferSize),
		sinks:   sinks,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Notify queues the event. It never blocks; when the buffer is full the
// event is dropped.
func (c *Collector) Notify(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Notification dropped", slog.String("kind", string(event.Kind)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Done is closed once the collector has drained and stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case event := <-c.eventCh:
			c.deliver(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) deliver(event Event) {
	for _, sink := range c.sinks {
		c.safeNotify(sink, event)
	}
}

func (c *Collector) safeNotify(sink Notifier, event Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Notification sink panicked",
				slog.String("kind", string(event.Kind)),
				slog.Any("panic", r))
		}
	}()

	sink.Notify(event)
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.deliver(event)
		default:
			return
		}
	}
}
