package worker

import (
	"sync"

	"github.com/home-express/finance-core/pkg/logger"
)

type WorkerHandler = func(workerIndex int, job interface{})

type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	quit           chan struct{}
	do             WorkerHandler
	waiter         *sync.WaitGroup
	once           sync.Once
}

// NewWorkerManager
// is a job manager based on go routines. Jobs published with Enqueue or
// TryEnqueue are distributed among numberOfWorkers goroutines. Stop drains
// nothing: queued jobs that were not picked up yet are dropped.
func NewWorkerManager(bufferSize, numberOfWorkers int, handler WorkerHandler) *WorkerManager {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan interface{}, bufferSize),
		quit:           make(chan struct{}),
		do:             handler,
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

// Enqueue
// Publishes a message onto the channel, blocking while the buffer is full
func (w *WorkerManager) Enqueue(val interface{}) {
	select {
	case w.jobChannel <- val:
	case <-w.quit:
	}
}

// TryEnqueue returns false instead of blocking when the buffer is full.
func (w *WorkerManager) TryEnqueue(val interface{}) bool {
	select {
	case w.jobChannel <- val:
		return true
	default:
		return false
	}
}

// Start
// starts off the workers as many as defined
// by w.numberOfWorker. It does not block.
func (w *WorkerManager) Start() {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.run(index, job)
				case <-w.quit:
					return
				}
			}
		}(i)
	}
}

func (w *WorkerManager) run(index int, job interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[worker] job panicked", "worker", index, "panic", r)
		}
	}()
	w.do(index, job)
}

// Stop signals every worker to exit and waits for in-flight jobs.
func (w *WorkerManager) Stop() {
	w.once.Do(func() {
		logger.Info("[worker] stopping worker manager", "workers", w.numberOfWorker)
		close(w.quit)
	})
	w.waiter.Wait()
}
