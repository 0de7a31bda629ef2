// Package scheduler implements the TaskScheduler (C7): a poll loop that
// reaps finished workers, promotes pending tasks up to a parallelism
// bound, and reconciles its advisory in-memory bookkeeping against the
// configuration store, which remains the source of truth for task state.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
	"backtest-orchestrator/internal/klinefetcher"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/klinestore"
	"backtest-orchestrator/internal/logging"
)

// ConfigStore is the subset of *configstore.Store the scheduler's poll
// loop and worker pipeline depend on, extracted so Run/tick can be
// exercised against an in-memory fake without a live Postgres — the same
// narrowing the HTTP façade applies in internal/api.ConfigStore.
type ConfigStore interface {
	GetTasks(ctx context.Context, id *int64) ([]configstore.Task, error)
	UpdateTaskState(ctx context.Context, id int64, fromStates []configstore.TaskState, newState configstore.TaskState) error
	GetMHObject(ctx context.Context, id int64) (*configstore.MHObject, error)
	GetCryptoList(ctx context.Context, id int64) (*configstore.CryptoListComplete, error)
	GetCryptoSymbols(ctx context.Context, ids []int64) ([]configstore.CryptoSymbol, error)
	GetIndicatorsInCombination(ctx context.Context, id int64) ([]configstore.IndicatorInCombination, error)
	CreateResult(ctx context.Context, results, otherParameters []byte) (int64, error)
	SetTaskResult(ctx context.Context, id int64, resultID int64) error
}

// workerStatus is a worker's self-reported progress, written only by the
// worker that owns it and read only by the scheduler's Reap phase.
type workerStatus struct {
	isComplete bool
	success    bool
	startTime  time.Time
	duration   time.Duration
	result     string
}

// Scheduler owns the pending/running/cancelling bookkeeping and the
// per-task cancel flags; it never blocks on worker completion itself.
type Scheduler struct {
	configStore ConfigStore
	klineStore  klines.Store
	fetcher     klines.Fetcher
	feed        *changefeed.Feed
	log         *logging.Logger

	maxThreads int
	pollEvery  time.Duration

	mu         sync.Mutex
	pending    map[int64]struct{}
	running    map[int64]struct{}
	cancelling map[int64]struct{}

	statusMu    sync.Mutex
	statuses    map[int64]*workerStatus
	cancelFlags map[int64]*atomic.Bool
}

// Config configures parallelism and poll cadence.
type Config struct {
	MaxThreads int
	PollEvery  time.Duration
}

// New builds a Scheduler. It does not start polling until Run is called.
func New(cs ConfigStore, ks klines.Store, fetcher klines.Fetcher, feed *changefeed.Feed, cfg Config, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Default()
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = 4
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	return &Scheduler{
		configStore: cs,
		klineStore:  ks,
		fetcher:     fetcher,
		feed:        feed,
		log:         log.WithComponent("scheduler"),
		maxThreads:  cfg.MaxThreads,
		pollEvery:   cfg.PollEvery,
		pending:     make(map[int64]struct{}),
		running:     make(map[int64]struct{}),
		cancelling:  make(map[int64]struct{}),
		statuses:    make(map[int64]*workerStatus),
		cancelFlags: make(map[int64]*atomic.Bool),
	}
}

// Run ticks the poll loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "max_threads", s.maxThreads, "poll_every", s.pollEvery.String())
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.reap(ctx)
	s.promote(ctx)
	s.scan(ctx)
}

// reap consumes every completed worker status (whether or not its task is
// still tracked in the running set — a cancelled task is removed from
// running immediately by scan, but its worker finishes later) and
// publishes the resulting transition.
func (s *Scheduler) reap(ctx context.Context) {
	s.statusMu.Lock()
	done := make(map[int64]*workerStatus)
	for id, st := range s.statuses {
		if st.isComplete {
			done[id] = st
		}
	}
	s.statusMu.Unlock()

	for id, st := range done {
		var newState configstore.TaskState
		if st.result == apperrors.CancelledMessage {
			newState = configstore.Cancelled
		} else if st.success {
			newState = configstore.Completed
		} else {
			newState = configstore.Failed
		}

		if err := s.configStore.UpdateTaskState(ctx, id, configstore.AllowedFromStates(newState), newState); err != nil {
			// A miss here is expected when scan already performed the
			// Cancelling->Cancelled transition ahead of this reap; see
			// DESIGN.md's CAS-miss decision.
			s.log.Debug("reap: state transition not applied", "task_id", id, "target_state", newState, "error", err)
		} else {
			s.publish(id, newState)
			s.log.Info("task reaped", "task_id", id, "state", newState, "duration", st.duration.String())
		}

		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()

		s.statusMu.Lock()
		delete(s.statuses, id)
		delete(s.cancelFlags, id)
		s.statusMu.Unlock()
	}
}

// promote starts workers for pending tasks up to maxThreads.
func (s *Scheduler) promote(ctx context.Context) {
	s.mu.Lock()
	var slots int
	if s.maxThreads > len(s.running) {
		slots = s.maxThreads - len(s.running)
	}
	candidates := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		candidates = append(candidates, id)
	}
	s.mu.Unlock()

	for _, id := range candidates {
		if slots <= 0 {
			return
		}
		if err := s.configStore.UpdateTaskState(ctx, id, configstore.AllowedFromStates(configstore.Running), configstore.Running); err != nil {
			s.log.Debug("promote: CAS to Running failed", "task_id", id, "error", err)
			continue
		}

		s.mu.Lock()
		delete(s.pending, id)
		s.running[id] = struct{}{}
		s.mu.Unlock()

		s.publish(id, configstore.Running)
		s.spawnWorker(id)
		slots--
	}
}

// scan reconciles in-memory bookkeeping against the config store, the
// source of truth: tasks seen for the first time in Pending/Cancelling
// are recorded, and Cancelling is handled to completion immediately
// (cancel flag set, state forced to Cancelled) rather than waiting on the
// worker to notice.
func (s *Scheduler) scan(ctx context.Context) {
	tasks, err := s.configStore.GetTasks(ctx, nil)
	if err != nil {
		s.log.Warn("scan: get_tasks failed", "error", err)
		return
	}

	for _, task := range tasks {
		switch task.State {
		case configstore.Pending:
			s.mu.Lock()
			_, known := s.pending[task.ID]
			if !known {
				s.pending[task.ID] = struct{}{}
			}
			s.mu.Unlock()

		case configstore.Cancelling:
			s.mu.Lock()
			_, known := s.cancelling[task.ID]
			if !known {
				s.cancelling[task.ID] = struct{}{}
			}
			s.mu.Unlock()
			if !known {
				s.handleCancelling(ctx, task.ID)
			}

		case configstore.Running:
			s.mu.Lock()
			_, tracked := s.running[task.ID]
			s.mu.Unlock()
			if !tracked {
				// Defensive: a scheduler restart left this task Running
				// with no worker behind it.
				if err := s.configStore.UpdateTaskState(ctx, task.ID, []configstore.TaskState{configstore.Running}, configstore.Failed); err == nil {
					s.publish(task.ID, configstore.Failed)
					s.log.Warn("scan: orphaned Running task marked Failed", "task_id", task.ID)
				}
			}
		}
	}
}

func (s *Scheduler) handleCancelling(ctx context.Context, id int64) {
	s.mu.Lock()
	if _, ok := s.pending[id]; ok {
		delete(s.pending, id)
	}
	_, wasRunning := s.running[id]
	if wasRunning {
		delete(s.running, id)
	}
	s.mu.Unlock()

	if wasRunning {
		s.statusMu.Lock()
		if flag, ok := s.cancelFlags[id]; ok {
			flag.Store(true)
		}
		s.statusMu.Unlock()
	}

	if err := s.configStore.UpdateTaskState(ctx, id, configstore.AllowedFromStates(configstore.Cancelled), configstore.Cancelled); err != nil {
		s.log.Debug("handleCancelling: CAS to Cancelled failed", "task_id", id, "error", err)
	} else {
		s.publish(id, configstore.Cancelled)
	}

	s.mu.Lock()
	delete(s.cancelling, id)
	s.mu.Unlock()
}

func (s *Scheduler) publish(taskID int64, state configstore.TaskState) {
	s.feed.Publish(changefeed.Update{TaskID: taskID, State: string(state)})
}

// *klinestore.Store and *klinefetcher.Fetcher satisfy klines.Store/Fetcher
// directly: they already implement the exact method sets those interfaces
// declare, which these assertions check at compile time.
var (
	_ klines.Store   = (*klinestore.Store)(nil)
	_ klines.Fetcher = (*klinefetcher.Fetcher)(nil)
)
