package heartbeat_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/http-heartbeat/internal/endpoint"
	"github.com/angeloszaimis/http-heartbeat/internal/heartbeat"
	"github.com/angeloszaimis/http-heartbeat/internal/notify"
	"github.com/angeloszaimis/http-heartbeat/internal/prober"
)

// One configured second lasts unit in these specs.
const unit = 10 * time.Millisecond

var _ = Describe("Task", func() {
	var (
		log      *slog.Logger
		ctx      context.Context
		cancel   context.CancelFunc
		recorder *notify.Recorder
		opts     heartbeat.Options
		cfg      endpoint.Config
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		recorder = &notify.Recorder{}
		opts = heartbeat.Options{Unit: unit, Warmup: unit}

		var err error
		cfg, err = endpoint.New("ping", 60, "GET", "http://x/health")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
	})

	newTask := func(p prober.Prober) *heartbeat.Task {
		task, err := heartbeat.New(cfg, p, recorder, log, opts)
		Expect(err).NotTo(HaveOccurred())
		return task
	}

	Describe("New", func() {
		It("should expose its configuration and no policy", func() {
			task := newTask(script(ok))
			Expect(task.Config()).To(Equal(cfg))
			_, attached := task.Policy()
			Expect(attached).To(BeFalse())
			Expect(task.State()).To(Equal(heartbeat.StateIdle))
		})
	})

	Describe("schedule", func() {
		It("should probe after the warm-up and then every period", func() {
			p := script(ok)
			task := newTask(p)
			task.Start(ctx)
			defer task.Cancel()

			Eventually(p.Calls, 200*time.Millisecond).Should(Equal(1))
			Eventually(p.Calls, time.Second).Should(Equal(2))

			times := p.Times()
			Expect(times[1].Sub(times[0])).To(BeNumerically("~", 600*time.Millisecond, 80*time.Millisecond))
		})

		It("should announce the start", func() {
			task := newTask(script(ok))
			task.Start(ctx)
			defer task.Cancel()

			Expect(recorder.Count(notify.KindTaskStarted, "ping")).To(Equal(1))
		})

		It("should ignore a second Start", func() {
			p := script(ok)
			task := newTask(p)
			task.Start(ctx)
			task.Start(ctx)
			defer task.Cancel()

			Eventually(p.Calls, 200*time.Millisecond).Should(Equal(1))
			Consistently(p.Calls, 300*time.Millisecond).Should(Equal(1))
			Expect(recorder.Count(notify.KindTaskStarted, "ping")).To(Equal(1))
		})
	})

	Describe("failure without retry policy", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))

			var err error
			cfg, err = endpoint.New("ping", 60, "GET", server.URL+"/health")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			server.Close()
		})

		It("should report one failure and wait for the next period", func() {
			p, err := prober.New(prober.Options{Timeout: time.Second}, recorder)
			Expect(err).NotTo(HaveOccurred())

			task := newTask(p)
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindHTTPError, "ping") }, 200*time.Millisecond).Should(Equal(1))
			Consistently(func() int { return recorder.Count(notify.KindHTTPError, "ping") }, 400*time.Millisecond).Should(Equal(1))
			Expect(recorder.Count(notify.KindRetryAttempt, "")).To(BeZero())
			Expect(task.Escalating()).To(BeFalse())

			Eventually(func() int { return recorder.Count(notify.KindHTTPError, "ping") }, time.Second).Should(Equal(2))
		})

		It("should not escalate with a disabled policy", func() {
			p, err := prober.New(prober.Options{Timeout: time.Second}, recorder)
			Expect(err).NotTo(HaveOccurred())

			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 5, MaxRetries: 0})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindHTTPError, "ping") }, 200*time.Millisecond).Should(Equal(1))
			Consistently(func() int { return recorder.Count(notify.KindRetryAttempt, "") }, 300*time.Millisecond).Should(BeZero())
		})
	})

	Describe("escalation", func() {
		It("should retry until the endpoint recovers", func() {
			p := script(fail, fail, ok)
			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 5, MaxRetries: 3})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindEscalationConcluded, "ping") }, 500*time.Millisecond).Should(Equal(1))
			Expect(recorder.Count(notify.KindRetryAttempt, "ping")).To(Equal(2))
			Expect(p.Calls()).To(Equal(3))
			Expect(task.Escalating()).To(BeFalse())

			var concluded notify.Event
			for _, e := range recorder.Events() {
				if e.Kind == notify.KindEscalationConcluded {
					concluded = e
				}
			}
			Expect(concluded.Recovered).To(BeTrue())
			Expect(concluded.RunID).NotTo(BeEmpty())

			Eventually(p.Calls, time.Second).Should(Equal(4))
			times := p.Times()
			Expect(times[1].Sub(times[0])).To(BeNumerically("~", 50*time.Millisecond, 30*time.Millisecond))
			Expect(times[3].Sub(times[0])).To(BeNumerically("~", 600*time.Millisecond, 80*time.Millisecond))
		})

		It("should stop after the attempt budget is spent", func() {
			p := script(fail)
			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 5, MaxRetries: 2})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindEscalationConcluded, "ping") }, 500*time.Millisecond).Should(Equal(1))
			Expect(recorder.Count(notify.KindRetryAttempt, "ping")).To(Equal(2))
			Consistently(p.Calls, 300*time.Millisecond).Should(Equal(3))

			for _, e := range recorder.Events() {
				if e.Kind == notify.KindEscalationConcluded {
					Expect(e.Recovered).To(BeFalse())
					Expect(e.Attempt).To(Equal(2))
				}
			}
		})

		It("should number retry attempts from one in every run", func() {
			p := script(fail)
			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 5, MaxRetries: 2})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindEscalationConcluded, "ping") }, 1500*time.Millisecond).Should(Equal(2))

			var attempts []int
			for _, e := range recorder.Events() {
				if e.Kind == notify.KindRetryAttempt {
					attempts = append(attempts, e.Attempt)
				}
			}
			Expect(attempts).To(Equal([]int{1, 2, 1, 2}))
		})

		It("should be reported as the retrying state while running", func() {
			p := script(fail, fail, fail, ok)
			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 10, MaxRetries: 3})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(task.State, 200*time.Millisecond).Should(Equal(heartbeat.StateRetrying))
			Eventually(task.State, 500*time.Millisecond).Should(Equal(heartbeat.StateIdle))
		})

		It("should never run two probes at once", func() {
			p := script(fail, fail, ok)
			p.delay = 20 * time.Millisecond
			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 1, MaxRetries: 3})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindEscalationConcluded, "ping") }, 500*time.Millisecond).Should(Equal(1))
			Expect(p.MaxInFlight()).To(Equal(1))
		})

		It("should skip a heartbeat that arrives while retries still run", func() {
			slowCfg, err := endpoint.New("ping", 10, "GET", "http://x/health")
			Expect(err).NotTo(HaveOccurred())

			p := script(fail)
			p.delay = 40 * time.Millisecond
			task, err := heartbeat.New(slowCfg, p, recorder, log, opts)
			Expect(err).NotTo(HaveOccurred())
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 3, MaxRetries: 3})
			task.Start(ctx)
			defer task.Cancel()

			Eventually(func() int { return recorder.Count(notify.KindHeartbeatSkipped, "ping") }, time.Second).Should(BeNumerically(">=", 1))
			Expect(p.MaxInFlight()).To(Equal(1))
		})

		It("should apply a new policy from the next run without restarting the timer", func() {
			p := script(fail)
			task := newTask(p)
			task.Start(ctx)
			defer task.Cancel()

			Eventually(p.Calls, 200*time.Millisecond).Should(Equal(1))
			first := p.Times()[0]

			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 5, MaxRetries: 1})
			policy, attached := task.Policy()
			Expect(attached).To(BeTrue())
			Expect(policy.MaxRetries).To(Equal(1))

			Eventually(func() int { return recorder.Count(notify.KindEscalationConcluded, "ping") }, time.Second).Should(Equal(1))
			Expect(p.Times()[1].Sub(first)).To(BeNumerically("~", 600*time.Millisecond, 80*time.Millisecond))
		})
	})

	Describe("Cancel", func() {
		It("should stop all further probes", func() {
			p := script(ok)
			task := newTask(p)
			task.Start(ctx)

			Eventually(p.Calls, 200*time.Millisecond).Should(Equal(1))
			Expect(task.Cancel()).To(Succeed())

			Consistently(p.Calls, 800*time.Millisecond).Should(Equal(1))
			Expect(task.Cancelled()).To(BeTrue())
		})

		It("should stop a running escalation", func() {
			p := script(fail)
			task := newTask(p)
			task.SetPolicy(endpoint.RetryPolicy{SecondsPerRetry: 10, MaxRetries: 5})
			task.Start(ctx)

			Eventually(task.Escalating, 200*time.Millisecond).Should(BeTrue())
			Expect(task.Cancel()).To(Succeed())
			calls := p.Calls()

			Consistently(p.Calls, 300*time.Millisecond).Should(Equal(calls))
			Expect(recorder.Count(notify.KindEscalationConcluded, "ping")).To(BeZero())
		})

		It("should interrupt an in-flight probe", func() {
			p := script(ok)
			p.delay = 5 * time.Second
			task := newTask(p)
			task.Start(ctx)

			Eventually(p.Calls, 200*time.Millisecond).Should(Equal(1))

			done := make(chan error)
			go func() { done <- task.Cancel() }()
			Eventually(done, 500*time.Millisecond).Should(Receive(BeNil()))
		})

		It("should report a second cancel distinctly", func() {
			task := newTask(script(ok))
			task.Start(ctx)

			Expect(task.Cancel()).To(Succeed())
			Expect(task.Cancel()).To(MatchError(heartbeat.ErrAlreadyCancelled))
		})

		It("should work on a task that never started", func() {
			p := script(ok)
			task := newTask(p)

			Expect(task.Cancel()).To(Succeed())
			task.Start(ctx)

			Consistently(p.Calls, 100*time.Millisecond).Should(BeZero())
		})

		It("should stop when the parent context ends", func() {
			p := script(ok)
			task := newTask(p)
			task.Start(ctx)

			Eventually(p.Calls, 200*time.Millisecond).Should(Equal(1))
			cancel()

			Consistently(p.Calls, 700*time.Millisecond).Should(Equal(1))
		})
	})

	It("should not let a slow endpoint delay another", func() {
		slow := script(ok)
		slow.delay = 5 * time.Second
		fast := script(ok)

		fastCfg, err := endpoint.New("fast", 10, "GET", "http://y/health")
		Expect(err).NotTo(HaveOccurred())

		slowTask := newTask(slow)
		fastTask, err := heartbeat.New(fastCfg, fast, recorder, log, opts)
		Expect(err).NotTo(HaveOccurred())

		slowTask.Start(ctx)
		fastTask.Start(ctx)
		defer slowTask.Cancel()
		defer fastTask.Cancel()

		Eventually(fast.Calls, time.Second).Should(BeNumerically(">=", 3))
		Expect(slow.Calls()).To(Equal(1))
	})
})
