package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/http-heartbeat/internal/endpoint"
	"github.com/angeloszaimis/http-heartbeat/internal/notify"
	"github.com/angeloszaimis/http-heartbeat/internal/prober"
)

var ErrAlreadyCancelled = errors.New("heartbeat already cancelled")

// DefaultWarmup is the delay between scheduling a task and its first probe.
const DefaultWarmup = time.Second

type Options struct {
	// Unit is the length of one configured second.
	Unit   time.Duration
	Warmup time.Duration
}

func (o Options) withDefaults() Options {
	if o.Unit <= 0 {
		o.Unit = time.Second
	}
	if o.Warmup <= 0 {
		o.Warmup = DefaultWarmup
	}
	return o
}

// Task is the schedule of one endpoint.
type Task struct {
	cfg      endpoint.Config
	prober   prober.Prober
	notifier notify.Notifier
	logger   *slog.Logger
	opts     Options

	mutex     sync.Mutex
	policy    *endpoint.RetryPolicy
	lifecycle *lifecycle
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// escalation is one run of retries. It is owned by the task goroutine.
type escalation struct {
	runID   string
	policy  endpoint.RetryPolicy
	attempt int
	timer   *time.Timer
}

func New(
	cfg endpoint.Config,
	p prober.Prober,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts Options,
) (*Task, error) {
	lc, err := newLifecycle(cfg.Name)
	if err != nil {
		return nil, err
	}

	if notifier == nil {
		notifier = notify.Discard
	}

	return &Task{
		cfg:       cfg,
		prober:    p,
		notifier:  notifier,
		logger:    logger.With(slog.String("endpoint", cfg.Name)),
		opts:      opts.withDefaults(),
		lifecycle: lc,
		done:      make(chan struct{}),
	}, nil
}

func (t *Task) Config() endpoint.Config {
	return t.cfg
}

// Policy returns the attached retry policy, if any.
func (t *Task) Policy() (endpoint.RetryPolicy, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.policy == nil {
		return endpoint.RetryPolicy{}, false
	}
	return *t.policy, true
}

// SetPolicy attaches or replaces the retry policy without touching the
// regular schedule. A running escalation keeps the policy it started with.
func (t *Task) SetPolicy(policy endpoint.RetryPolicy) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.policy = &policy
}

// State returns the lifecycle state: idle, retrying or cancelled.
func (t *Task) State() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.lifecycle.current()
}

func (t *Task) Escalating() bool {
	return t.State() == StateRetrying
}

func (t *Task) Cancelled() bool {
	return t.State() == StateCancelled
}

// Start schedules the task. Starting twice, or after Cancel, does nothing.
func (t *Task) Start(ctx context.Context) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.started || t.lifecycle.current() == StateCancelled {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true

	go t.run(ctx)

	t.notifier.Notify(notify.Event{
		Kind:     notify.KindTaskStarted,
		Endpoint: t.cfg.Name,
		Message:  fmt.Sprintf("Scheduled %s %s every %ds", t.cfg.Method, t.cfg.URL, t.cfg.Interval),
	})
}

// Cancel stops the regular schedule and any running escalation. When it
// returns no further probe will start. An in-flight probe is interrupted.
func (t *Task) Cancel() error {
	t.mutex.Lock()
	if !t.lifecycle.send(eventCancel) {
		t.mutex.Unlock()
		return ErrAlreadyCancelled
	}
	started, cancel, done := t.started, t.cancel, t.done
	t.mutex.Unlock()

	if started {
		cancel()
		<-done
	}

	t.notifier.Notify(notify.Event{
		Kind:     notify.KindTaskStopped,
		Endpoint: t.cfg.Name,
		Message:  "Canceled",
	})
	return nil
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)

	warmup := time.NewTimer(t.opts.Warmup)
	defer warmup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-warmup.C:
	}

	ticker := time.NewTicker(t.cfg.Period(t.opts.Unit))
	defer ticker.Stop()

	var esc *escalation
	defer func() {
		if esc != nil {
			esc.timer.Stop()
		}
	}()

	esc = t.heartbeat(ctx, esc)

	for {
		var retryC <-chan time.Time
		if esc != nil {
			retryC = esc.timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			esc = t.heartbeat(ctx, esc)
		case <-retryC:
			esc = t.retry(ctx, esc)
		}
	}
}

// heartbeat runs one regular probe and returns the escalation that should
// be active afterwards.
func (t *Task) heartbeat(ctx context.Context, esc *escalation) *escalation {
	if esc != nil {
		t.logger.Warn("Heartbeat skipped, escalation still running",
			slog.String("run_id", esc.runID),
			slog.Int("attempt", esc.attempt))
		t.notifier.Notify(notify.Event{
			Kind:     notify.KindHeartbeatSkipped,
			Endpoint: t.cfg.Name,
			RunID:    esc.runID,
		})
		return esc
	}

	outcome := t.probe(ctx)
	if outcome.OK() || ctx.Err() != nil {
		return nil
	}

	policy, ok := t.Policy()
	if !ok || !policy.Enabled() {
		return nil
	}

	return t.escalate(policy)
}

func (t *Task) escalate(policy endpoint.RetryPolicy) *escalation {
	t.mutex.Lock()
	moved := t.lifecycle.send(eventEscalate)
	t.mutex.Unlock()

	if !moved {
		return nil
	}

	esc := &escalation{
		runID:  uuid.NewString(),
		policy: policy,
		timer:  time.NewTimer(policy.Delay(t.opts.Unit)),
	}

	t.logger.Debug("Escalation started",
		slog.String("run_id", esc.runID),
		slog.Int("max_retries", policy.MaxRetries),
		slog.Int("seconds_per_retry", policy.SecondsPerRetry))

	return esc
}

func (t *Task) retry(ctx context.Context, esc *escalation) *escalation {
	esc.attempt++

	t.notifier.Notify(notify.Event{
		Kind:     notify.KindRetryAttempt,
		Endpoint: t.cfg.Name,
		Attempt:  esc.attempt,
		RunID:    esc.runID,
	})

	outcome := t.probe(ctx)
	if ctx.Err() != nil {
		return esc
	}

	if outcome.OK() || esc.attempt >= esc.policy.MaxRetries {
		t.conclude(esc, outcome.OK())
		return nil
	}

	esc.timer.Reset(esc.policy.Delay(t.opts.Unit))
	return esc
}

func (t *Task) conclude(esc *escalation, recovered bool) {
	t.mutex.Lock()
	t.lifecycle.send(eventConclude)
	t.mutex.Unlock()

	t.notifier.Notify(notify.Event{
		Kind:      notify.KindEscalationConcluded,
		Endpoint:  t.cfg.Name,
		Attempt:   esc.attempt,
		RunID:     esc.runID,
		Recovered: recovered,
	})
}

func (t *Task) probe(ctx context.Context) prober.Outcome {
	outcome := t.prober.Probe(ctx, prober.Target{
		Name:   t.cfg.Name,
		URL:    t.cfg.URL,
		Method: t.cfg.Method,
	})

	t.logger.Debug("Heartbeat", slog.String("outcome", outcome.String()))
	return outcome
}
