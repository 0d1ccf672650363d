package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned by Dispatch after Close.
var ErrQueueClosed = errors.New("queue is closed")

// Runner executes a dispatched stage.
type Runner interface {
	Run(ctx context.Context, task models.StageTask) (*models.Project, error)
}

// LocalQueue is an in-process Dispatcher. Tasks are sharded by project ID,
// so one project's stages run strictly one after another while different
// projects proceed in parallel.
type LocalQueue struct {
	shards  []*shard
	pending sync.WaitGroup
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	group  *errgroup.Group
}

type shard struct {
	mu    sync.Mutex
	tasks []models.StageTask
	wake  chan struct{}
}

func NewLocalQueue(workers int, logger *slog.Logger) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &LocalQueue{logger: logger, shards: make([]*shard, workers)}
	for i := range q.shards {
		q.shards[i] = &shard{wake: make(chan struct{}, 1)}
	}
	return q
}

// Start launches one worker per shard. It must be called once, before the
// first Wait.
func (q *LocalQueue) Start(ctx context.Context, runner Runner) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.group = g
	q.mu.Unlock()
	for _, s := range q.shards {
		g.Go(func() error {
			q.work(ctx, s, runner)
			return nil
		})
	}
}

func (q *LocalQueue) Dispatch(_ context.Context, task models.StageTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending.Add(1)
	s := q.shards[q.shardFor(task.ProjectID)]
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Wait blocks until every dispatched task, including tasks dispatched by
// running tasks, has finished.
func (q *LocalQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and stops the workers. Queued tasks that have
// not started are dropped.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	cancel, g := q.cancel, q.group
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

func (q *LocalQueue) shardFor(projectID string) int {
	h := fnv.New32a()
	h.Write([]byte(projectID))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *LocalQueue) work(ctx context.Context, s *shard, runner Runner) {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				q.drain(s)
				return
			}
		}
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		if _, err := runner.Run(ctx, task); err != nil {
			q.logger.Error("Stage run failed.", "projectId", task.ProjectID, "stage", task.Stage, "error", err)
		}
		q.pending.Done()
	}
}

func (q *LocalQueue) drain(s *shard) {
	s.mu.Lock()
	n := len(s.tasks)
	s.tasks = nil
	s.mu.Unlock()
	for range n {
		q.pending.Done()
	}
}
