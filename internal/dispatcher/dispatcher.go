package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// MaxDeliveries bounds how many times a task is handed to a runner
// before it is dropped.
const MaxDeliveries = 3

// Task is one unit of cracking work flowing through a lane
type Task struct {
	JobID          string             `json:"job_id"`
	Hash           string             `json:"hash"`
	HashTypeID     int                `json:"hash_type_id"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	Priority       models.JobPriority `json:"priority"`
	Deliveries     int                `json:"deliveries"`
}

// Runner processes one task to completion. A non-nil error requests
// redelivery.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, task Task) error

func (f RunnerFunc) Run(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Producer enqueues tasks into the lane matching their priority
type Producer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Dispatcher is an in-process three-lane task queue. Workers always
// drain the high lane first, then normal, then low; a task is retried
// up to MaxDeliveries times and each attempt runs under the hard kill
// timeout.
type Dispatcher struct {
	high   chan Task
	normal chan Task
	low    chan Task

	runner      Runner
	concurrency int
	killTimeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given lane capacity and
// worker pool size
func NewDispatcher(runner Runner, concurrency, laneCapacity int, killTimeout time.Duration) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if laneCapacity < 1 {
		laneCapacity = 64
	}
	return &Dispatcher{
		high:        make(chan Task, laneCapacity),
		normal:      make(chan Task, laneCapacity),
		low:         make(chan Task, laneCapacity),
		runner:      runner,
		concurrency: concurrency,
		killTimeout: killTimeout,
	}
}

// Enqueue places the task into the lane matching its priority. Blocks
// when the lane is full until there is room or the context ends.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) error {
	lane := d.lane(task.Priority)
	select {
	case lane <- task:
		debug.Debug("Task %s enqueued (priority=%s)", task.JobID, task.Priority)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) lane(priority models.JobPriority) chan Task {
	switch priority {
	case models.PriorityHigh:
		return d.high
	case models.PriorityLow:
		return d.low
	default:
		return d.normal
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have drained their in-flight tasks.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	debug.Info("Dispatcher started with %d workers", d.concurrency)
}

// Wait blocks until all workers have exited
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		task, ok := d.next(ctx)
		if !ok {
			debug.Debug("Worker %d shutting down", id)
			return
		}
		d.dispatch(ctx, task)
	}
}

// next pulls the highest-priority available task. The nested selects
// keep the bias strict: normal is only consulted when high is empty,
// low only when both are.
func (d *Dispatcher) next(ctx context.Context) (Task, bool) {
	select {
	case task := <-d.high:
		return task, true
	default:
	}

	select {
	case task := <-d.high:
		return task, true
	case task := <-d.normal:
		return task, true
	default:
	}

	select {
	case task := <-d.high:
		return task, true
	case task := <-d.normal:
		return task, true
	case task := <-d.low:
		return task, true
	case <-ctx.Done():
		return Task{}, false
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, task Task) {
	task.Deliveries++
	debug.Info("Task %s: delivery %d/%d", task.JobID, task.Deliveries, MaxDeliveries)

	runCtx := ctx
	var cancel context.CancelFunc
	if d.killTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.killTimeout)
		defer cancel()
	}

	err := d.runner.Run(runCtx, task)
	if err == nil {
		return
	}

	debug.Warning("Task %s: delivery %d failed: %v", task.JobID, task.Deliveries, err)
	if task.Deliveries >= MaxDeliveries {
		debug.Error("Task %s: dropped after %d deliveries", task.JobID, task.Deliveries)
		return
	}

	// Redeliver without blocking the worker; a full lane drops the task.
	select {
	case d.lane(task.Priority) <- task:
	default:
		debug.Error("Task %s: lane full, dropping redelivery", task.JobID)
	}
}
