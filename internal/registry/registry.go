package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/angeloszaimis/http-heartbeat/internal/endpoint"
	"github.com/angeloszaimis/http-heartbeat/internal/heartbeat"
	"github.com/angeloszaimis/http-heartbeat/internal/notify"
	"github.com/angeloszaimis/http-heartbeat/internal/prober"
	"github.com/angeloszaimis/http-heartbeat/internal/store"
)

var (
	ErrAlreadyExists = errors.New("endpoint already exists")
	ErrNotFound      = errors.New("endpoint not found")
	ErrClosed        = errors.New("registry shut down")
)

type Options struct {
	Prober   prober.Prober
	Store    store.Store
	Notifier notify.Notifier
	Logger   *slog.Logger
	Schedule heartbeat.Options
}

// Entry is a point-in-time view of one registered endpoint.
type Entry struct {
	Config endpoint.Config
	Policy *endpoint.RetryPolicy
	State  string
}

// Registry is single-use: after ShutdownAll it rejects new endpoints.
type Registry struct {
	mutex    sync.RWMutex
	tasks    map[string]*heartbeat.Task
	order    []string
	closed   bool
	prober   prober.Prober
	store    store.Store
	notifier notify.Notifier
	logger   *slog.Logger
	schedule heartbeat.Options

	// tasks outlive the request that created them
	baseCtx context.Context
	stop    context.CancelFunc

	// store writes happen in mutation order, outside mutex
	persistMutex sync.Mutex
}

func New(opts Options) *Registry {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		tasks:    make(map[string]*heartbeat.Task),
		prober:   opts.Prober,
		store:    opts.Store,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		schedule: opts.Schedule,
		baseCtx:  ctx,
		stop:     cancel,
	}
}

// Add registers and starts a heartbeat for cfg.
func (r *Registry) Add(ctx context.Context, cfg endpoint.Config) (*heartbeat.Task, error) {
	r.mutex.Lock()

	if r.closed {
		r.mutex.Unlock()
		return nil, ErrClosed
	}

	if _, exists := r.tasks[cfg.Name]; exists {
		r.mutex.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.Name)
	}

	task, err := r.start(cfg, nil)
	if err != nil {
		r.mutex.Unlock()
		return nil, err
	}

	r.persistMutex.Lock()
	r.mutex.Unlock()
	defer r.persistMutex.Unlock()

	r.persist(ctx, toRecord(cfg, nil))
	return task, nil
}

// Remove cancels and forgets the named heartbeat. The persisted entry is
// deleted in every case, including when the name is unknown. Removing a task
// that was already cancelled returns heartbeat.ErrAlreadyCancelled.
func (r *Registry) Remove(ctx context.Context, name string) error {
	name = endpoint.NormalizeName(name)

	r.mutex.Lock()
	task, exists := r.tasks[name]
	if exists {
		delete(r.tasks, name)
		r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	}
	r.persistMutex.Lock()
	r.mutex.Unlock()

	r.unpersist(ctx, name)
	r.persistMutex.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := task.Cancel(); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// SetRetryPolicy validates and attaches a retry policy to the named
// heartbeat. The regular schedule is not restarted.
func (r *Registry) SetRetryPolicy(ctx context.Context, name string, secondsPerRetry, maxRetries int) error {
	name = endpoint.NormalizeName(name)

	r.mutex.Lock()

	task, exists := r.tasks[name]
	if !exists {
		r.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	cfg := task.Config()
	policy, err := endpoint.NewRetryPolicy(cfg.Interval, secondsPerRetry, maxRetries)
	if err != nil {
		r.mutex.Unlock()
		return err
	}

	task.SetPolicy(policy)

	r.persistMutex.Lock()
	r.mutex.Unlock()
	defer r.persistMutex.Unlock()

	r.persist(ctx, toRecord(cfg, &policy))
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	task, exists := r.tasks[endpoint.NormalizeName(name)]
	if !exists {
		return Entry{}, false
	}
	return entryOf(task), true
}

// List returns every entry in insertion order.
func (r *Registry) List() []Entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entries := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, entryOf(r.tasks[name]))
	}
	return entries
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.tasks)
}

// Restore loads the persisted entries and starts them.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	records, err := r.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load endpoints: %w", err)
	}

	return r.LoadAll(records), nil
}

// LoadAll starts a heartbeat for every well-formed record. Malformed and
// duplicate entries are skipped with a warning. It returns how many were
// started. Nothing is written back to the store.
func (r *Registry) LoadAll(records []store.Record) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		r.warn("", "Registry is shut down, not loading endpoints", ErrClosed)
		return 0
	}

	loaded := 0
	for _, record := range records {
		name := endpoint.NormalizeName(record.Name)

		if _, exists := r.tasks[name]; exists {
			r.warn(name, fmt.Sprintf("A scheduled request named %q has already been created, skipping duplicate", name), nil)
			continue
		}

		cfg, err := endpoint.New(name, record.Seconds, record.Method, record.URL)
		if err != nil {
			r.warn(name, loadFailure(record, err), err)
			continue
		}

		var policy *endpoint.RetryPolicy
		if record.HasPolicy() {
			p, err := endpoint.NewRetryPolicy(cfg.Interval, *record.SecondsPerRetry, *record.NumRetries)
			if err != nil {
				r.warn(name, "Ignoring invalid retry policy: "+err.Error(), err)
			} else {
				policy = &p
			}
		}

		if _, err := r.start(cfg, policy); err != nil {
			r.warn(name, "Could not start heartbeat: "+err.Error(), err)
			continue
		}
		loaded++
	}

	return loaded
}

// ShutdownAll cancels every heartbeat and empties the registry. Later calls
// to Add and LoadAll are rejected.
func (r *Registry) ShutdownAll() {
	r.mutex.Lock()
	r.closed = true
	tasks := make([]*heartbeat.Task, 0, len(r.tasks))
	for _, name := range r.order {
		tasks = append(tasks, r.tasks[name])
	}
	r.tasks = make(map[string]*heartbeat.Task)
	r.order = nil
	r.mutex.Unlock()

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(t *heartbeat.Task) {
			defer wg.Done()
			_ = t.Cancel()
		}(task)
	}
	wg.Wait()

	r.stop()
	r.logger.Info("All heartbeats stopped", slog.Int("count", len(tasks)))
}

// start must be called with the mutex held.
func (r *Registry) start(cfg endpoint.Config, policy *endpoint.RetryPolicy) (*heartbeat.Task, error) {
	task, err := heartbeat.New(cfg, r.prober, r.notifier, r.logger, r.schedule)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		task.SetPolicy(*policy)
	}

	r.tasks[cfg.Name] = task
	r.order = append(r.order, cfg.Name)
	task.Start(r.baseCtx)

	return task, nil
}

func (r *Registry) persist(ctx context.Context, record store.Record) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, record); err != nil {
		r.warn(record.Name, "Could not save endpoint configuration", err)
	}
}

func (r *Registry) unpersist(ctx context.Context, name string) {
	if r.store == nil {
		return
	}
	if err := r.store.Delete(ctx, name); err != nil {
		r.warn(name, "Could not remove endpoint configuration", err)
	}
}

func (r *Registry) warn(name, message string, err error) {
	attrs := []any{slog.String("endpoint", name)}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	r.logger.Warn(message, attrs...)

	r.notifier.Notify(notify.Event{
		Kind:     notify.KindWarning,
		Endpoint: name,
		Message:  message,
		Err:      err,
	})
}

func loadFailure(record store.Record, err error) string {
	switch {
	case errors.Is(err, endpoint.ErrInvalidURL):
		return fmt.Sprintf("Invalid URL %q", record.URL)
	case errors.Is(err, endpoint.ErrInvalidInterval):
		return fmt.Sprintf("Invalid second value %d", record.Seconds)
	case errors.Is(err, endpoint.ErrInvalidMethod):
		return fmt.Sprintf("Invalid method %q", record.Method)
	default:
		return "Invalid entry: " + err.Error()
	}
}

func entryOf(task *heartbeat.Task) Entry {
	entry := Entry{
		Config: task.Config(),
		State:  task.State(),
	}
	if policy, ok := task.Policy(); ok {
		entry.Policy = &policy
	}
	return entry
}

func toRecord(cfg endpoint.Config, policy *endpoint.RetryPolicy) store.Record {
	record := store.Record{
		Name:    cfg.Name,
		Seconds: cfg.Interval,
		Method:  cfg.Method,
		URL:     cfg.URL.String(),
	}
	if policy != nil {
		record = record.WithPolicy(policy.SecondsPerRetry, policy.MaxRetries)
	}
	return record
}
