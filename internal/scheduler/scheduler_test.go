package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
)

// fakeConfigStore implements ConfigStore entirely in memory, the way
// internal/api's fakeStore stubs the same repository for handler tests.
type fakeConfigStore struct {
	mu    sync.Mutex
	tasks map[int64]*configstore.Task

	mhObject   *configstore.MHObject
	cryptoList *configstore.CryptoListComplete
	symbols    []configstore.CryptoSymbol
	members    []configstore.IndicatorInCombination
}

func newFakeConfigStore(tasks ...configstore.Task) *fakeConfigStore {
	f := &fakeConfigStore{tasks: make(map[int64]*configstore.Task)}
	for i := range tasks {
		t := tasks[i]
		f.tasks[t.ID] = &t
	}
	return f
}

func (f *fakeConfigStore) GetTasks(ctx context.Context, id *int64) ([]configstore.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != nil {
		t, ok := f.tasks[*id]
		if !ok {
			return nil, nil
		}
		return []configstore.Task{*t}, nil
	}
	out := make([]configstore.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeConfigStore) UpdateTaskState(ctx context.Context, id int64, fromStates []configstore.TaskState, newState configstore.TaskState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return apperrors.New("fakeConfigStore.UpdateTaskState", apperrors.ConfigNotFound, nil)
	}
	for _, from := range fromStates {
		if t.State == from {
			t.State = newState
			return nil
		}
	}
	return apperrors.New("fakeConfigStore.UpdateTaskState", apperrors.InvalidTransition, nil)
}

func (f *fakeConfigStore) GetMHObject(ctx context.Context, id int64) (*configstore.MHObject, error) {
	if f.mhObject != nil {
		return f.mhObject, nil
	}
	return nil, apperrors.New("fakeConfigStore.GetMHObject", apperrors.ConfigNotFound, nil)
}

func (f *fakeConfigStore) GetCryptoList(ctx context.Context, id int64) (*configstore.CryptoListComplete, error) {
	if f.cryptoList != nil {
		return f.cryptoList, nil
	}
	return nil, apperrors.New("fakeConfigStore.GetCryptoList", apperrors.ConfigNotFound, nil)
}

func (f *fakeConfigStore) GetCryptoSymbols(ctx context.Context, ids []int64) ([]configstore.CryptoSymbol, error) {
	return f.symbols, nil
}

func (f *fakeConfigStore) GetIndicatorsInCombination(ctx context.Context, id int64) ([]configstore.IndicatorInCombination, error) {
	return f.members, nil
}

func (f *fakeConfigStore) CreateResult(ctx context.Context, results, otherParameters []byte) (int64, error) {
	return 1, nil
}

func (f *fakeConfigStore) SetTaskResult(ctx context.Context, id int64, resultID int64) error {
	return nil
}

func (f *fakeConfigStore) state(id int64) configstore.TaskState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id].State
}

func newTestScheduler(store ConfigStore) *Scheduler {
	return New(store, nil, nil, changefeed.New(nil), Config{MaxThreads: 2, PollEvery: time.Hour}, nil)
}

func TestScanTracksPendingTasks(t *testing.T) {
	store := newFakeConfigStore(configstore.Task{ID: 1, State: configstore.Pending})
	s := newTestScheduler(store)

	s.scan(context.Background())

	s.mu.Lock()
	_, tracked := s.pending[1]
	s.mu.Unlock()
	assert.True(t, tracked)
}

func TestScanMarksOrphanedRunningTaskFailed(t *testing.T) {
	store := newFakeConfigStore(configstore.Task{ID: 1, State: configstore.Running})
	s := newTestScheduler(store)

	s.scan(context.Background())

	assert.Equal(t, configstore.Failed, store.state(1))
}

func TestPromoteStartsWorkerUpToMaxThreads(t *testing.T) {
	store := newFakeConfigStore(
		configstore.Task{ID: 1, State: configstore.Pending},
		configstore.Task{ID: 2, State: configstore.Pending},
		configstore.Task{ID: 3, State: configstore.Pending},
	)
	s := newTestScheduler(store)
	s.mu.Lock()
	s.pending[1] = struct{}{}
	s.pending[2] = struct{}{}
	s.pending[3] = struct{}{}
	s.mu.Unlock()

	s.promote(context.Background())

	s.mu.Lock()
	running := len(s.running)
	pending := len(s.pending)
	s.mu.Unlock()
	assert.Equal(t, 2, running)
	assert.Equal(t, 1, pending)
}

func TestReapMarksTaskFailedWhenReferencesAreMissing(t *testing.T) {
	store := newFakeConfigStore(configstore.Task{ID: 1, State: configstore.Pending})
	s := newTestScheduler(store)
	s.mu.Lock()
	s.pending[1] = struct{}{}
	s.mu.Unlock()

	s.promote(context.Background())
	require.Equal(t, configstore.Running, store.state(1))

	require.Eventually(t, func() bool {
		s.statusMu.Lock()
		defer s.statusMu.Unlock()
		st, ok := s.statuses[1]
		return ok && st.isComplete
	}, time.Second, time.Millisecond)

	s.reap(context.Background())
	assert.Equal(t, configstore.Failed, store.state(1))

	s.statusMu.Lock()
	_, stillTracked := s.statuses[1]
	s.statusMu.Unlock()
	assert.False(t, stillTracked)
}

func TestHandleCancellingSetsCancelFlagForRunningTask(t *testing.T) {
	store := newFakeConfigStore(configstore.Task{ID: 1, State: configstore.Cancelling})
	s := newTestScheduler(store)
	s.mu.Lock()
	s.running[1] = struct{}{}
	s.mu.Unlock()
	flag := &atomic.Bool{}
	s.statusMu.Lock()
	s.cancelFlags[1] = flag
	s.statusMu.Unlock()

	s.handleCancelling(context.Background(), 1)

	assert.True(t, flag.Load())
	assert.Equal(t, configstore.Cancelled, store.state(1))

	s.mu.Lock()
	_, stillRunning := s.running[1]
	s.mu.Unlock()
	assert.False(t, stillRunning)
}

func TestPublishSendsUpdateOnFeed(t *testing.T) {
	feed := changefeed.New(nil)
	s := New(newFakeConfigStore(), nil, nil, feed, Config{}, nil)

	s.publish(7, configstore.Completed)

	assert.Equal(t, changefeed.Update{TaskID: 7, State: string(configstore.Completed)}, feed.Latest())
}
