package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"knowtrace/internal/types"
)

// Dispatcher defaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Dispatcher fans interaction events out to a worker pool. Events are
// sharded to workers by learner id, so results for one learner come out in
// submission order; different learners proceed in parallel.
type Dispatcher struct {
	engine  *Engine
	queues  []chan types.InteractionEvent
	results chan types.UpdateResult
	group   *errgroup.Group
	log     *zap.Logger

	mu      sync.Mutex
	submits sync.WaitGroup
	stopped bool
}

// NewDispatcher starts a pool of workers draining sharded queues.
func NewDispatcher(e *Engine, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		engine:  e,
		queues:  make([]chan types.InteractionEvent, workers),
		results: make(chan types.UpdateResult, queueSize),
		group:   &errgroup.Group{},
		log:     logger,
	}
	for i := range d.queues {
		queue := make(chan types.InteractionEvent, queueSize)
		d.queues[i] = queue
		d.group.Go(func() error {
			d.work(queue)
			return nil
		})
	}
	return d
}

// Submit queues one event. It blocks while the learner's shard is full and
// fails once the dispatcher is stopped or the context is cancelled.
func (d *Dispatcher) Submit(ctx context.Context, ev types.InteractionEvent) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher: submit %s/%s: stopped", ev.LearnerID, ev.ConceptID)
	}
	d.submits.Add(1)
	d.mu.Unlock()
	defer d.submits.Done()

	select {
	case d.shard(ev.LearnerID) <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher: submit %s/%s: %w", ev.LearnerID, ev.ConceptID, types.ErrCancelled)
	}
}

// Results streams UpdateResults as workers finish. The channel closes after
// Stop has drained all queues.
func (d *Dispatcher) Results() <-chan types.UpdateResult {
	return d.results
}

// Stop rejects new submissions, waits for in-flight Submit calls to land,
// closes the queues, waits for the workers to drain them, and closes the
// results channel. Callers must keep draining Results until it closes.
// Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	// Queues close only after every in-flight Submit has either delivered
	// its event or bailed out on its context.
	d.submits.Wait()
	for _, q := range d.queues {
		close(q)
	}
	d.group.Wait()
	close(d.results)
}

func (d *Dispatcher) shard(learnerID string) chan types.InteractionEvent {
	h := fnv.New32a()
	h.Write([]byte(learnerID))
	return d.queues[int(h.Sum32())%len(d.queues)]
}

func (d *Dispatcher) work(queue <-chan types.InteractionEvent) {
	for ev := range queue {
		result, err := d.engine.Update(context.Background(), ev)
		if err != nil {
			d.log.Warn("update failed",
				zap.String("learner", ev.LearnerID),
				zap.String("concept", ev.ConceptID),
				zap.String("kind", result.ErrorKind))
		}
		d.results <- result
	}
}
