// Package workpool implements the fixed-size named worker pool every
// CPU-heavy node (storage compression, algebra evaluation, image
// conversion) offloads onto instead of blocking its own ready callback
// (spec §4.5).
package workpool

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Job is a unit of work pushed onto a Pool. It runs on whichever worker
// goroutine picks it up next; jobs are never reordered relative to other
// jobs already waiting, but two jobs pushed concurrently from different
// goroutines race for a worker same as any producer/consumer queue.
type Job func()

// Pool is a fixed-size pool of named worker goroutines draining a single
// FIFO job queue, grounded on the original thread_pool.h: num_threads
// defaults to runtime.NumCPU, workers are named "<name>[<i>]", and
// Full/Idle report instantaneous busy-worker counts.
type Pool struct {
	name       string
	numThreads int

	mu         sync.Mutex
	cond       *sync.Cond
	running    bool
	jobs       []Job
	numBusy    int
	wg         sync.WaitGroup

	busyGauge prometheus.Gauge
	idleGauge prometheus.Gauge
	queueGauge prometheus.Gauge
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithThreads overrides the worker count (0 keeps the runtime.NumCPU default).
func WithThreads(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.numThreads = n
		}
	}
}

// WithRegisterer registers the pool's busy/idle/queue-depth gauges with reg,
// labeled by pool name, mirroring the teacher's per-component gauge
// registration in system_health_logging.go.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) {
		p.busyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "thalamus_workpool_busy_threads",
			Help:        "Number of worker goroutines currently running a job.",
			ConstLabels: prometheus.Labels{"pool": p.name},
		})
		p.idleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "thalamus_workpool_idle_threads",
			Help:        "Number of worker goroutines waiting for a job.",
			ConstLabels: prometheus.Labels{"pool": p.name},
		})
		p.queueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "thalamus_workpool_queue_depth",
			Help:        "Number of jobs waiting to be picked up by a worker.",
			ConstLabels: prometheus.Labels{"pool": p.name},
		})
		reg.MustRegister(p.busyGauge, p.idleGauge, p.queueGauge)
	}
}

// New builds a Pool. name defaults to "ThreadPool" when empty.
func New(name string, opts ...Option) *Pool {
	if name == "" {
		name = "ThreadPool"
	}
	p := &Pool{name: name, numThreads: runtime.NumCPU()}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Full reports whether every worker is currently busy.
func (p *Pool) Full() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numBusy == p.numThreads
}

// Idle reports how many workers are not currently running a job.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numThreads - p.numBusy
}

// QueueDepth reports how many jobs are waiting for a free worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// Push enqueues job. It never blocks and never drops a job: the queue
// is unbounded, so backpressure is the caller's responsibility.
func (p *Pool) Push(job Job) {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.reportLocked()
	p.mu.Unlock()
	p.cond.Signal()
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.numThreads; i++ {
		threadName := fmt.Sprintf("%s[%d]", p.name, i)
		p.wg.Add(1)
		go p.threadTarget(threadName)
	}
}

// Stop signals the workers to exit once the queue is empty (jobs already
// queued still run), and blocks until all have returned.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()

	p.mu.Lock()
	p.jobs = nil
	p.mu.Unlock()
}

func (p *Pool) threadTarget(name string) {
	_ = name // surfaced via pprof goroutine labels in a fuller build; kept for parity with the teacher's named-thread convention
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.jobs) == 0 && p.running {
			p.cond.Wait()
		}
		if len(p.jobs) == 0 && !p.running {
			p.mu.Unlock()
			return
		}
		job := p.jobs[0]
		p.jobs = p.jobs[1:]
		p.numBusy++
		p.reportLocked()
		p.mu.Unlock()

		job()

		p.mu.Lock()
		p.numBusy--
		p.reportLocked()
		p.mu.Unlock()
	}
}

func (p *Pool) reportLocked() {
	if p.busyGauge != nil {
		p.busyGauge.Set(float64(p.numBusy))
	}
	if p.idleGauge != nil {
		p.idleGauge.Set(float64(p.numThreads - p.numBusy))
	}
	if p.queueGauge != nil {
		p.queueGauge.Set(float64(len(p.jobs)))
	}
}
