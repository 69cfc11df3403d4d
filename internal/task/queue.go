package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skarde/beacon/internal/apperr"
)

// ErrClosed is returned for operations on a closed queue.
var ErrClosed = errors.New("task: queue closed")

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is the observable record of one background job.
type Job struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	State    JobState  `json:"state"`
	Error    string    `json:"error,omitempty"`
	Created  time.Time `json:"created"`
	Finished time.Time `json:"finished,omitzero"`
}

// JobFunc is the work a job performs. The context is canceled when the
// queue closes.
type JobFunc func(ctx context.Context) error

type enqueueReq struct {
	job Job
	fn  JobFunc
}

type workItem struct {
	id string
	fn JobFunc
}

type update struct {
	id      string
	state   JobState
	errText string
	at      time.Time
}

type stateReq struct {
	id    string
	reply chan *Job
}

// Queue runs background jobs one at a time, so index builds never
// contend for the single SQLite writer.
//
// Concurrency model: a single loop goroutine owns the job records and
// the backlog; public methods talk to it through channels. A separate
// worker goroutine executes the jobs.
type Queue struct {
	logger *slog.Logger

	enqueueCh chan enqueueReq
	updateCh  chan update
	stateCh   chan stateReq
	listCh    chan chan []Job
	work      chan workItem

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts the queue.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger:    logger,
		enqueueCh: make(chan enqueueReq),
		updateCh:  make(chan update),
		stateCh:   make(chan stateReq),
		listCh:    make(chan chan []Job),
		work:      make(chan workItem),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	go q.loop()
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *Queue) loop() {
	defer close(q.stopped)

	jobs := make(map[string]*Job)
	var backlog []workItem

	for {
		var dispatch chan workItem
		var next workItem
		if len(backlog) > 0 {
			dispatch = q.work
			next = backlog[0]
		}

		select {
		case <-q.stopCh:
			return

		case req := <-q.enqueueCh:
			j := req.job
			jobs[j.ID] = &j
			backlog = append(backlog, workItem{id: j.ID, fn: req.fn})

		case dispatch <- next:
			backlog = backlog[1:]

		case u := <-q.updateCh:
			j, ok := jobs[u.id]
			if !ok {
				continue
			}
			j.State = u.state
			j.Error = u.errText
			if u.state == JobDone || u.state == JobFailed {
				j.Finished = u.at
			}

		case req := <-q.stateCh:
			if j, ok := jobs[req.id]; ok {
				snapshot := *j
				req.reply <- &snapshot
			} else {
				req.reply <- nil
			}

		case reply := <-q.listCh:
			out := make([]Job, 0, len(jobs))
			for _, j := range jobs {
				out = append(out, *j)
			}
			sort.Slice(out, func(i, j int) bool {
				if !out[i].Created.Equal(out[j].Created) {
					return out[i].Created.Before(out[j].Created)
				}
				return out[i].ID < out[j].ID
			})
			reply <- out
		}
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case item := <-q.work:
			q.report(update{id: item.id, state: JobRunning, at: time.Now()})
			err := item.fn(q.ctx)
			u := update{id: item.id, state: JobDone, at: time.Now()}
			if err != nil {
				u.state = JobFailed
				u.errText = err.Error()
				q.logger.Warn("task: job failed", slog.String("job", item.id), slog.String("error", err.Error()))
			}
			q.report(u)
		}
	}
}

func (q *Queue) report(u update) {
	select {
	case q.updateCh <- u:
	case <-q.stopped:
	}
}

// Enqueue queues a job and returns its id.
func (q *Queue) Enqueue(kind string, fn JobFunc) (string, error) {
	if q.closed.Load() {
		return "", ErrClosed
	}
	req := enqueueReq{
		job: Job{ID: uuid.NewString(), Kind: kind, State: JobPending, Created: time.Now()},
		fn:  fn,
	}
	select {
	case q.enqueueCh <- req:
		return req.job.ID, nil
	case <-q.stopped:
		return "", ErrClosed
	}
}

// State returns a snapshot of one job.
func (q *Queue) State(id string) (Job, error) {
	req := stateReq{id: id, reply: make(chan *Job, 1)}
	select {
	case q.stateCh <- req:
	case <-q.stopped:
		return Job{}, ErrClosed
	}
	j := <-req.reply
	if j == nil {
		return Job{}, fmt.Errorf("task: no job %s: %w", id, apperr.ErrNotFound)
	}
	return *j, nil
}

// List returns a snapshot of every job, oldest first.
func (q *Queue) List() []Job {
	reply := make(chan []Job, 1)
	select {
	case q.listCh <- reply:
		return <-reply
	case <-q.stopped:
		return nil
	}
}

// Close cancels the running job, stops the workers, and shuts the
// queue down. Pending jobs never run.
func (q *Queue) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		<-q.stopped
		return
	}
	q.cancel()
	q.wg.Wait()
	close(q.stopCh)
	<-q.stopped
}
