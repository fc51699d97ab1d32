// Package notify carries human-readable status lines from the scheduler to
// whatever is listening: the console, the structured log, or a test recorder.
//
// Delivery is fire-and-forget. The Collector buffers events on a channel and
// fans them out to its sinks from a dedicated goroutine, so a slow or broken
// sink never blocks a heartbeat:
//
//	collector := notify.NewCollector(256, logger,
//		notify.NewConsole(os.Stdout, true),
//		notify.NewLogSink(logger),
//	)
//	collector.Start(ctx)
//
//	collector.Notify(notify.Event{Kind: notify.KindHTTPError, Endpoint: "ping", StatusCode: 503})
//
// Remaining events are drained when the context is cancelled.
package notify
