package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is a unit of work. Jobs sharing a Key always land on the same worker,
// so they run one after another in dispatch order.
type Job struct {
	Key     string
	Handler func(ctx context.Context) error
}

type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveKeys      map[string]int `json:"active_keys"` // key -> worker_id
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// Pool is a fixed set of workers, each with its own queue, sharded by job key.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	started    int32
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64

	activeMu sync.Mutex
	active   map[string]int

	OnJobStart func(workerID int, key string)
	OnJobEnd   func(workerID int, key string, err error)
}

type worker struct {
	id            int
	queue         chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *Pool
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		active:     make(map[string]int),
	}
	for i := range p.workers {
		p.workers[i] = &worker{id: i, queue: make(chan Job, queueSize), pool: p}
	}
	return p
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return
	}
	for _, w := range p.workers {
		w.ctx, w.cancel = context.WithCancel(ctx)
		p.wg.Add(1)
		go w.run(&p.wg)
	}
	logrus.Infof("[WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch queues the job without blocking and reports whether it was accepted.
func (p *Pool) TryDispatch(job Job) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(job.Key)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].queue <- job:
			return true
		default:
			return false
		}
	}()
	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[WORKER_POOL] Worker %d queue full (or stopped), dropping job %s", shard, job.Key)
	return false
}

// Stop cancels the workers, lets them drain what is already queued and waits.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[WORKER_POOL] Stopping workers...")
		for _, w := range p.workers {
			if w.cancel != nil {
				w.cancel()
			}
			close(w.queue)
		}
		p.wg.Wait()
		logrus.Info("[WORKER_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) Stats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		busy := atomic.LoadInt32(&w.isProcessing) == 1
		if busy {
			activeWorkers++
		}
		workerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.queue),
			IsProcessing:  busy,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}

	p.activeMu.Lock()
	keys := make(map[string]int, len(p.active))
	for k, v := range p.active {
		keys[k] = v
	}
	p.activeMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
		ActiveKeys:      keys,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[WORKER_POOL] Worker %d started", w.id)
	for job := range w.queue {
		w.process(job)
	}
	logrus.Debugf("[WORKER_POOL] Worker %d shutting down", w.id)
}

func (w *worker) process(job Job) {
	p := w.pool
	var err error

	p.activeMu.Lock()
	p.active[job.Key] = w.id
	p.activeMu.Unlock()
	if p.OnJobStart != nil {
		p.OnJobStart(w.id, job.Key)
	}
	atomic.StoreInt32(&w.isProcessing, 1)

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.totalErrors, 1)
			logrus.Errorf("[WORKER_POOL] Worker %d panic for %s: %v", w.id, job.Key, r)
		}
		p.activeMu.Lock()
		delete(p.active, job.Key)
		p.activeMu.Unlock()
		if p.OnJobEnd != nil {
			p.OnJobEnd(w.id, job.Key, err)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&p.totalProcessed, 1)
	}()

	if err = job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&p.totalErrors, 1)
		logrus.WithError(err).Errorf("[WORKER_POOL] Worker %d job %s failed", w.id, job.Key)
	}
}
