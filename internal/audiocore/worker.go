package audiocore

import (
	"sync"
	"sync/atomic"
	"time"
)

type workKind uint8

const (
	workUpdateStats workKind = iota
	workResetStats
	workStartReporter
	workStopReporter
	workReporterTick
	workSync
	workSnapshot
)

// workItem carries only values; real-time goroutines never share buffer
// memory with the worker.
type workItem struct {
	kind   workKind
	dir    Direction
	peak   int16
	frames int
	gen    uint64
	at     time.Time

	done  chan struct{}
	reply chan StatsSnapshot
}

// worker runs handle for every posted item, one at a time, in FIFO order.
type worker struct {
	queue   chan workItem
	quit    chan struct{}
	stopped chan struct{}
	handle  func(workItem)

	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newWorker(queueSize int, handle func(workItem)) *worker {
	return &worker{
		queue:   make(chan workItem, queueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		handle:  handle,
	}
}

func (w *worker) start() {
	go w.run()
}

func (w *worker) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.quit:
			return
		case item := <-w.queue:
			w.handle(item)
		}
	}
}

// tryPost enqueues item without blocking. It returns false if the queue is
// full or the worker is closed; full-queue drops are counted.
func (w *worker) tryPost(item workItem) bool {
	select {
	case <-w.quit:
		return false
	default:
	}

	select {
	case w.queue <- item:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// post enqueues item, waiting for queue space. It returns false once the
// worker is closed.
func (w *worker) post(item workItem) bool {
	select {
	case <-w.quit:
		return false
	default:
	}

	select {
	case <-w.quit:
		return false
	case w.queue <- item:
		return true
	}
}

// flush waits until every item posted before the call has been handled.
func (w *worker) flush() bool {
	done := make(chan struct{})
	if !w.post(workItem{kind: workSync, done: done}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-w.stopped:
		return false
	}
}

// close stops the worker and waits for it to exit. Items still queued are
// discarded.
func (w *worker) close() {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	<-w.stopped
}

func (w *worker) droppedCount() uint64 {
	return w.dropped.Load()
}
