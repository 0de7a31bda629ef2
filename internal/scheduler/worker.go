package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/configstore"
	"backtest-orchestrator/internal/evaluator"
	"backtest-orchestrator/internal/indicator"
	"backtest-orchestrator/internal/interval"
	"backtest-orchestrator/internal/klines"
	"backtest-orchestrator/internal/logging"
	"backtest-orchestrator/internal/variable"
)

// taskOtherParameters is the subset of a task's free-form other_parameters
// object the worker pipeline consults, mirroring the attested defaults.
type taskOtherParameters struct {
	ForceFetch         bool    `json:"force_fetch"`
	TrainingPercentage float64 `json:"training_percentage"`
	LimitCount         int64   `json:"limit_count"`
}

func defaultOtherParameters() taskOtherParameters {
	return taskOtherParameters{ForceFetch: false, TrainingPercentage: 0.8, LimitCount: 500}
}

// minLimitMinutesFactor is the smallest multiple of the interval width that
// limit_minutes may be: any warmup-plus-window retrieval narrower than this
// can't leave room for an indicator's lookback on top of a usable training/
// validation split.
const minLimitMinutesFactor = 10

// spawnWorker starts the task execution pipeline for id in its own
// goroutine, recording start/finish status for the scheduler's Reap phase
// to consume. It never calls configStore.UpdateTaskState itself; only the
// scheduler transitions task state.
func (s *Scheduler) spawnWorker(id int64) {
	flag := &atomic.Bool{}
	start := time.Now()

	s.statusMu.Lock()
	s.cancelFlags[id] = flag
	s.statuses[id] = &workerStatus{isComplete: false, startTime: start}
	s.statusMu.Unlock()

	go func() {
		result, success := s.runTask(id, flag)
		s.statusMu.Lock()
		s.statuses[id] = &workerStatus{
			isComplete: true,
			success:    success,
			startTime:  start,
			duration:   time.Since(start),
			result:     result,
		}
		s.statusMu.Unlock()
	}()
}

// runTask is the worker's body: it builds everything the evaluator needs
// from the task's configuration, runs the chosen optimizer, and persists
// the result. It returns a human-readable outcome and whether it
// succeeded; a cancelled run reports apperrors.CancelledMessage.
func (s *Scheduler) runTask(id int64, cancelFlag *atomic.Bool) (string, bool) {
	log := logging.TaskContext(id, string(configstore.Running))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopWatch:
				return
			case <-ticker.C:
				if cancelFlag.Load() {
					cancel()
					return
				}
			}
		}
	}()

	result, err := s.execute(ctx, id, cancelFlag)
	if err != nil {
		if apperrors.Is(err, apperrors.Cancelled) || cancelFlag.Load() {
			log.Info("task cancelled")
			return apperrors.CancelledMessage, false
		}
		log.Warn("task failed", "error", err)
		return err.Error(), false
	}
	log.Info("task completed")
	return result, true
}

func (s *Scheduler) execute(ctx context.Context, id int64, cancelFlag *atomic.Bool) (string, error) {
	const op = "scheduler.execute"

	tasks, err := s.configStore.GetTasks(ctx, &id)
	if err != nil {
		return "", apperrors.New(op, apperrors.ConfigNotFound, err)
	}
	if len(tasks) == 0 {
		return "", apperrors.New(op, apperrors.ConfigNotFound, fmt.Errorf("task %d not found", id))
	}
	task := tasks[0]

	other := defaultOtherParameters()
	if len(task.OtherParameters) > 0 {
		var partial map[string]json.RawMessage
		if err := json.Unmarshal(task.OtherParameters, &partial); err == nil {
			if raw, ok := partial["force_fetch"]; ok {
				_ = json.Unmarshal(raw, &other.ForceFetch)
			}
			if raw, ok := partial["training_percentage"]; ok {
				_ = json.Unmarshal(raw, &other.TrainingPercentage)
			}
			if raw, ok := partial["limit_count"]; ok {
				_ = json.Unmarshal(raw, &other.LimitCount)
			}
		}
	}

	if task.MHObjectID == nil || task.CryptoListID == nil || task.IndicatorCombinationID == nil {
		return "", apperrors.New(op, apperrors.IntegrityViolation, fmt.Errorf("task %d is missing a required reference", id))
	}

	mhObject, err := s.configStore.GetMHObject(ctx, *task.MHObjectID)
	if err != nil {
		return "", apperrors.New(op, apperrors.ConfigNotFound, err)
	}

	cryptoList, err := s.configStore.GetCryptoList(ctx, *task.CryptoListID)
	if err != nil {
		return "", apperrors.New(op, apperrors.ConfigNotFound, err)
	}
	symbols, err := s.configStore.GetCryptoSymbols(ctx, cryptoList.CryptoSymbols)
	if err != nil {
		return "", apperrors.New(op, apperrors.ConfigNotFound, err)
	}
	if len(symbols) == 0 {
		return "", apperrors.New(op, apperrors.IntegrityViolation, fmt.Errorf("crypto list %d has no symbols", cryptoList.ID))
	}

	iv, err := interval.Parse(cryptoList.Interval)
	if err != nil {
		return "", apperrors.New(op, apperrors.IntegrityViolation, fmt.Errorf("crypto list %d has invalid interval %q: %w", cryptoList.ID, cryptoList.Interval, err))
	}

	members, err := s.configStore.GetIndicatorsInCombination(ctx, *task.IndicatorCombinationID)
	if err != nil {
		return "", apperrors.New(op, apperrors.ConfigNotFound, err)
	}
	if len(members) == 0 {
		return "", apperrors.New(op, apperrors.IntegrityViolation, fmt.Errorf("indicator combination %d has no members", *task.IndicatorCombinationID))
	}

	indicators := make([]indicator.Indicator, 0, len(members))
	perIndicatorDefs := make([][]variable.Definition, 0, len(members))
	for _, m := range members {
		ind, err := indicator.NewFromJSON(m.StructName, m.Parameters)
		if err != nil {
			return "", err
		}
		indicators = append(indicators, ind)
		perIndicatorDefs = append(perIndicatorDefs, ind.AllVariableDefinitions())
	}

	if cancelFlag.Load() {
		return "", apperrors.New(op, apperrors.Cancelled, fmt.Errorf("cancelled before retrieval"))
	}

	maxBefore := 0
	for _, ind := range indicators {
		if n := ind.NBeforeNeeded(); n > maxBefore {
			maxBefore = n
		}
	}

	limitMinutes := other.LimitCount * iv.Minutes()
	if limitMinutes < minLimitMinutesFactor*iv.Minutes() {
		return "", apperrors.New(op, apperrors.IntegrityViolation,
			fmt.Errorf("task %d: limit_minutes %d is below the minimum of %d times the interval", id, limitMinutes, minLimitMinutesFactor))
	}

	collections := make([]*klines.Collection, 0, len(symbols))
	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			return "", apperrors.New(op, apperrors.Cancelled, ctx.Err())
		default:
		}

		collection, err := klines.Retrieve(ctx, s.klineStore, s.fetcher, sym.Symbol, iv, limitMinutes, other.TrainingPercentage, other.ForceFetch)
		if err != nil {
			return "", apperrors.New(op, apperrors.UpstreamUnavailable, err)
		}
		if maxBefore > 0 {
			if err := collection.RetrieveExtended(ctx, s.klineStore, s.fetcher, maxBefore); err != nil {
				return "", apperrors.New(op, apperrors.UpstreamUnavailable, err)
			}
		}
		collections = append(collections, collection)
	}

	defs := make([]variable.Definition, 0)
	for _, d := range perIndicatorDefs {
		defs = append(defs, d...)
	}

	runner, budget, numObjectives, err := BuildRunner(mhObject.MHAlgorithmName, mhObject.MHParameters, defs)
	if err != nil {
		return "", err
	}

	var evalErr error
	evaluate := func(vars []variable.Variable) []float64 {
		if cancelFlag.Load() {
			evalErr = apperrors.New(op, apperrors.Cancelled, fmt.Errorf("cancelled during evaluation"))
			return make([]float64, numObjectives)
		}
		objectives, err := evaluator.Evaluate(ctx, vars, collections, indicators, perIndicatorDefs, nil, numObjectives)
		if err != nil {
			evalErr = err
			return make([]float64, numObjectives)
		}
		return objectives
	}

	solutions, err := runner.Run(ctx, budget, evaluate)
	if err != nil {
		if evalErr != nil {
			return "", evalErr
		}
		return "", apperrors.New(op, apperrors.Cancelled, err)
	}
	if evalErr != nil {
		return "", evalErr
	}

	payload, err := json.Marshal(solutions)
	if err != nil {
		return "", apperrors.New(op, apperrors.IntegrityViolation, err)
	}

	resultID, err := s.configStore.CreateResult(ctx, payload, task.OtherParameters)
	if err != nil {
		return "", apperrors.New(op, apperrors.IntegrityViolation, err)
	}
	if err := s.configStore.SetTaskResult(ctx, id, resultID); err != nil {
		return "", apperrors.New(op, apperrors.IntegrityViolation, err)
	}

	return "Task completed successfully", nil
}
