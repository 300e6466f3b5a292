// Package queue is the queue runner of spec.md §4.7: it claims todo records
// and dispatches each to the pipeline under a bounded worker pool, in one of
// three modes (single-id, single-pass, or polling).
package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/logging"
	"github.com/nelsonpires5/sisifo/internal/metrics"
	"github.com/nelsonpires5/sisifo/internal/paths"
	"github.com/nelsonpires5/sisifo/internal/pipeline"
	"github.com/nelsonpires5/sisifo/internal/store"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 5 * time.Second

// Outcome is the per-task result of one dispatch.
type Outcome struct {
	TaskID string
	Err    error
}

// Config configures one Runner invocation.
type Config struct {
	MaxParallel  int
	PollInterval time.Duration
	Poll         bool // absence means single-pass, per spec.md §9
}

// Runner dispatches claimed records to a pipeline.Processor under a bounded
// worker pool. A new Runner should be constructed per invocation: its
// session id is generated once in New and stamped into every record it
// processes (spec.md §4.7 "Session identifier").
type Runner struct {
	cfg       Config
	store     *store.Store
	layout    *paths.Layout
	processor *pipeline.Processor
	sessionID string
}

// New returns a Runner. cfg.MaxParallel defaults to 1 when <= 0;
// cfg.PollInterval defaults to DefaultPollInterval when <= 0. processor is
// rebound to this invocation's session id via WithSessionID (spec.md §4.7
// "Session identifier").
func New(cfg Config, st *store.Store, layout *paths.Layout, processor *pipeline.Processor) *Runner {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	sessionID := uuid.NewString()[:8]
	logging.Infof("queue: session %s starting, max_parallel=%d poll=%v", sessionID, cfg.MaxParallel, cfg.Poll)
	return &Runner{cfg: cfg, store: st, layout: layout, processor: processor.WithSessionID(sessionID), sessionID: sessionID}
}

// RunOne implements single-id mode: claim exactly id, process it, and
// return its outcome. Fails fast if id is not currently todo.
func (r *Runner) RunOne(ctx context.Context, id string) (*Outcome, error) {
	claimed, err := r.store.ClaimTodoByID(id)
	if err != nil {
		return nil, fmt.Errorf("queue: claiming %s: %w", id, err)
	}
	if claimed == nil {
		return nil, core.New(core.KindUnknownTaskID, fmt.Sprintf("task %q is not in todo", id))
	}
	logging.Infof("queue[%s]: claimed %s (single-id mode)", r.sessionID, claimed.ID)
	err = r.processor.Process(ctx, claimed)
	if err != nil {
		logging.Warnf("queue[%s]: task %s finished with error: %v", r.sessionID, claimed.ID, err)
	} else {
		logging.Infof("queue[%s]: task %s finished ok", r.sessionID, claimed.ID)
	}
	return &Outcome{TaskID: claimed.ID, Err: err}, nil
}

// RunPass implements single-pass mode: claim up to MaxParallel todo records,
// process them concurrently via a bounded pool, and return every outcome.
// Empty when no todo records exist.
func (r *Runner) RunPass(ctx context.Context) ([]Outcome, error) {
	claimed, err := r.claimBatch()
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	logging.Infof("queue[%s]: claimed %d task(s) for dispatch", r.sessionID, len(claimed))
	return r.dispatch(ctx, claimed), nil
}

// RunPolling implements polling mode: repeatedly claim and dispatch batches,
// sleeping PollInterval between empty passes. The sleep is interrupted early
// by an fsnotify event on the tasks file's parent directory.
// Returns when ctx is cancelled.
func (r *Runner) RunPolling(ctx context.Context) error {
	logging.Infof("queue[%s]: polling started, interval=%s", r.sessionID, r.cfg.PollInterval)
	wake := r.watchTasksFile()
	defer close(wake.stop)

	for {
		if _, err := r.RunPass(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			logging.Infof("queue[%s]: polling stopped", r.sessionID)
			return ctx.Err()
		case <-wake.events:
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *Runner) claimBatch() ([]*core.TaskRecord, error) {
	if todo, err := r.store.ListByStatus(core.StatusTodo); err == nil {
		metrics.Current().RecordQueueDepth(context.Background(), len(todo))
	}

	var claimed []*core.TaskRecord
	for len(claimed) < r.cfg.MaxParallel {
		rec, err := r.store.ClaimFirstTodo()
		if err != nil {
			return claimed, fmt.Errorf("queue: claiming next todo: %w", err)
		}
		if rec == nil {
			break
		}
		claimed = append(claimed, rec)
	}
	return claimed, nil
}

// dispatch runs every claimed record through the pipeline concurrently,
// bounded to MaxParallel simultaneous tasks by a pond pool, with an errgroup
// supervising the fan-out so every dispatch goroutine is joined even if the
// caller's context is cancelled mid-batch.
func (r *Runner) dispatch(ctx context.Context, claimed []*core.TaskRecord) []Outcome {
	pool := pond.NewPool(r.cfg.MaxParallel)
	defer pool.StopAndWait()

	outcomes := make([]Outcome, len(claimed))
	group, gctx := errgroup.WithContext(ctx)

	for i, rec := range claimed {
		i, rec := i, rec
		group.Go(func() error {
			task := pool.SubmitErr(func() error {
				err := r.processor.Process(gctx, rec)
				outcomes[i] = Outcome{TaskID: rec.ID, Err: err}
				if err != nil {
					logging.Warnf("queue[%s]: task %s finished with error: %v", r.sessionID, rec.ID, err)
				} else {
					logging.Infof("queue[%s]: task %s finished ok", r.sessionID, rec.ID)
				}
				return err
			})
			// Per-task pipeline failures are reported via Outcome, not
			// propagated to the group: one task's failure must not cancel
			// its siblings (spec.md §4.7 "each task's outcome is independent").
			_ = task.Wait()
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

type tasksWatch struct {
	events <-chan struct{}
	stop   chan struct{}
}

// watchTasksFile watches the queue root for changes to tasks.jsonl and
// forwards a non-blocking wake signal on write/create events. Failures to set
// up the watcher degrade silently to plain interval polling.
func (r *Runner) watchTasksFile() tasksWatch {
	out := make(chan struct{}, 1)
	stop := make(chan struct{})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return tasksWatch{events: out, stop: stop}
	}
	if err := watcher.Add(r.layout.Root); err != nil {
		watcher.Close()
		return tasksWatch{events: out, stop: stop}
	}

	tasksFileName := filepath.Base(r.layout.TasksFile())
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != tasksFileName {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return tasksWatch{events: out, stop: stop}
}
