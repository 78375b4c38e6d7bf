package integration

import (
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mkessler-dev/HostPulse/app/models"
	"github.com/mkessler-dev/HostPulse/internal/pkg/cache"
)

const (
	DefaultRecorderBuffer  = 1024
	DefaultRecorderWorkers = 2

	droppedCounterKey = "telemetry:dropped"
)

type write struct {
	kind  string
	apply func() error
}

// Recorder decouples request/cost/alert writes from the hot call path. Writes
// flow through a bounded channel drained by background workers; when the
// persistence layer is slow and the buffer fills up, writes are dropped and
// counted instead of growing memory without bound.
type Recorder struct {
	repo    Repository
	queue   chan write
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dropped atomic.Int64
}

// NewRecorder creates a recorder writing to repo. Zero buffer/workers use the
// package defaults.
func NewRecorder(repo Repository, buffer, workers int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	if workers <= 0 {
		workers = DefaultRecorderWorkers
	}
	return &Recorder{
		repo:    repo,
		queue:   make(chan write, buffer),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the writer workers.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	log.Infof("[Telemetry] Starting %d writer workers", r.workers)

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// Stop shuts the workers down after draining buffered writes.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)
	r.wg.Wait()
	log.Info("[Telemetry] Writer workers stopped")
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case w := <-r.queue:
					r.apply(w)
				default:
					return
				}
			}
		case w := <-r.queue:
			r.apply(w)
		}
	}
}

func (r *Recorder) apply(w write) {
	if err := w.apply(); err != nil {
		log.Errorf("[Telemetry] %s write failed: %v", w.kind, err)
	}
}

func (r *Recorder) enqueue(w write) {
	select {
	case r.queue <- w:
	default:
		r.dropped.Add(1)
		// Best effort: the shared counter survives restarts, the atomic
		// covers the case where Redis is down too.
		if _, err := cache.Incr(droppedCounterKey); err != nil {
			log.Debugf("[Telemetry] dropped-counter increment failed: %v", err)
		}
		log.Warnf("[Telemetry] buffer full, dropped %s write (total dropped: %d)", w.kind, r.dropped.Load())
	}
}

// RecordRequest queues an append-only request record write.
func (r *Recorder) RecordRequest(rec *models.RequestRecord) {
	r.enqueue(write{kind: "request_record", apply: func() error { return r.repo.CreateRequestRecord(rec) }})
}

// RecordCost queues an append-only cost record write.
func (r *Recorder) RecordCost(rec *models.CostRecord) {
	r.enqueue(write{kind: "cost_record", apply: func() error { return r.repo.CreateCostRecord(rec) }})
}

// RecordAlert queues an alert write.
func (r *Recorder) RecordAlert(alert *models.Alert) {
	r.enqueue(write{kind: "alert", apply: func() error { return r.repo.CreateAlert(alert) }})
}

// Dropped returns the number of writes lost to backpressure since start.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}
