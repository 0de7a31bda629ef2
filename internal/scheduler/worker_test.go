package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
)

func TestExecuteFailsWithConfigNotFoundWhenTaskIsGone(t *testing.T) {
	store := newFakeConfigStore()
	s := New(store, nil, nil, changefeed.New(nil), Config{}, nil)

	_, err := s.execute(context.Background(), 99, &atomic.Bool{})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ConfigNotFound))
}

func TestExecuteFailsWithIntegrityViolationWhenTaskIsMissingReferences(t *testing.T) {
	store := newFakeConfigStore(configstore.Task{ID: 1, State: configstore.Running})
	s := New(store, nil, nil, changefeed.New(nil), Config{}, nil)

	_, err := s.execute(context.Background(), 1, &atomic.Bool{})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.IntegrityViolation))
}

func TestExecuteFailsWithIntegrityViolationWhenLimitCountGivesTooNarrowAWindow(t *testing.T) {
	mhID, listID, combinationID := int64(1), int64(1), int64(1)
	task := configstore.Task{
		ID:                     1,
		State:                  configstore.Running,
		MHObjectID:             &mhID,
		CryptoListID:           &listID,
		IndicatorCombinationID: &combinationID,
		// limit_count=1 against a 1m interval asks for a 1-minute window,
		// far short of any usable training/validation split.
		OtherParameters: []byte(`{"limit_count":1}`),
	}
	store := newFakeConfigStore(task)
	store.mhObject = &configstore.MHObject{ID: mhID, MHAlgorithmName: "nsga2", MHParameters: []byte(`{}`)}
	store.cryptoList = &configstore.CryptoListComplete{
		CryptoList:    configstore.CryptoList{ID: listID, Interval: "1m"},
		CryptoSymbols: []int64{1},
	}
	store.symbols = []configstore.CryptoSymbol{{ID: 1, Symbol: "BTCUSDT"}}
	store.members = []configstore.IndicatorInCombination{
		{ID: 1, IndicatorCombinationID: combinationID, StructName: "MovingAverage", Parameters: []byte(`{"period":5}`)},
	}
	s := New(store, nil, nil, changefeed.New(nil), Config{}, nil)

	_, err := s.execute(context.Background(), 1, &atomic.Bool{})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.IntegrityViolation))
}

func TestRunTaskReportsCancelledMessageWhenFlagIsAlreadySet(t *testing.T) {
	mhID, listID, combinationID := int64(1), int64(1), int64(1)
	store := newFakeConfigStore(configstore.Task{
		ID:                     1,
		State:                  configstore.Running,
		MHObjectID:             &mhID,
		CryptoListID:           &listID,
		IndicatorCombinationID: &combinationID,
	})
	s := New(store, nil, nil, changefeed.New(nil), Config{}, nil)

	flag := &atomic.Bool{}
	flag.Store(true)

	result, success := s.runTask(1, flag)

	assert.False(t, success)
	assert.Equal(t, apperrors.CancelledMessage, result)
}
