package configstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/logging"
)

// Store implements ConfigStore (C9) against a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// New builds a Store over pool.
func New(pool *pgxpool.Pool, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Default()
	}
	return &Store{pool: pool, log: log.WithComponent("configstore")}
}

func notFound(op string, err error) error {
	if err == pgx.ErrNoRows {
		return apperrors.New(op, apperrors.ConfigNotFound, err)
	}
	return apperrors.New(op, apperrors.UpstreamUnavailable, err)
}

// --- CryptoSymbol --- //

// ListCryptoSymbols returns every crypto_symbol row.
func (s *Store) ListCryptoSymbols(ctx context.Context) ([]CryptoSymbol, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, symbol, name, volume, last_updated, available FROM crypto_symbol ORDER BY id`)
	if err != nil {
		return nil, apperrors.New("configstore.ListCryptoSymbols", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []CryptoSymbol
	for rows.Next() {
		var c CryptoSymbol
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Name, &c.Volume, &c.LastUpdated, &c.Available); err != nil {
			return nil, apperrors.New("configstore.ListCryptoSymbols", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCryptoSymbols returns the rows matching ids, or every row when ids is
// empty — the scheduler's get_crypto_symbols(ids?) contract.
func (s *Store) GetCryptoSymbols(ctx context.Context, ids []int64) ([]CryptoSymbol, error) {
	var rows pgx.Rows
	var err error
	if len(ids) == 0 {
		rows, err = s.pool.Query(ctx, `SELECT id, symbol, name, volume, last_updated, available FROM crypto_symbol ORDER BY id`)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT id, symbol, name, volume, last_updated, available FROM crypto_symbol WHERE id = ANY($1) ORDER BY id`, ids)
	}
	if err != nil {
		return nil, apperrors.New("configstore.GetCryptoSymbols", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []CryptoSymbol
	for rows.Next() {
		var c CryptoSymbol
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Name, &c.Volume, &c.LastUpdated, &c.Available); err != nil {
			return nil, apperrors.New("configstore.GetCryptoSymbols", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCryptoSymbol inserts or refreshes a crypto_symbol row keyed by
// symbol, used by the /crypto_symbol/reload handler. On conflict it only
// refreshes volume/availability/last_updated — name is set once at
// insertion and otherwise left to whatever an operator has assigned it.
func (s *Store) UpsertCryptoSymbol(ctx context.Context, c CryptoSymbol) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crypto_symbol (symbol, name, volume, last_updated, available)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (symbol) DO UPDATE SET volume = $3, last_updated = NOW(), available = $4
	`, c.Symbol, c.Name, c.Volume, c.Available)
	if err != nil {
		return apperrors.New("configstore.UpsertCryptoSymbol", apperrors.UpstreamUnavailable, err)
	}
	return nil
}

// --- CryptoList --- //

// ListCryptoLists returns every non-hidden crypto_list row.
func (s *Store) ListCryptoLists(ctx context.Context) ([]CryptoList, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, hidden, name, interval, list_type FROM crypto_list WHERE NOT hidden ORDER BY id`)
	if err != nil {
		return nil, apperrors.New("configstore.ListCryptoLists", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []CryptoList
	for rows.Next() {
		var c CryptoList
		if err := rows.Scan(&c.ID, &c.Hidden, &c.Name, &c.Interval, &c.ListType); err != nil {
			return nil, apperrors.New("configstore.ListCryptoLists", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCryptoList fetches one crypto_list row plus its member symbol ids —
// the scheduler's get_crypto_list(id) contract.
func (s *Store) GetCryptoList(ctx context.Context, id int64) (*CryptoListComplete, error) {
	var c CryptoListComplete
	err := s.pool.QueryRow(ctx, `SELECT id, hidden, name, interval, list_type FROM crypto_list WHERE id = $1`, id).
		Scan(&c.ID, &c.Hidden, &c.Name, &c.Interval, &c.ListType)
	if err != nil {
		return nil, notFound("configstore.GetCryptoList", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT crypto_symbol_id FROM crypto_list_x_crypto_symbol WHERE crypto_list_id = $1`, id)
	if err != nil {
		return nil, apperrors.New("configstore.GetCryptoList", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var symbolID int64
		if err := rows.Scan(&symbolID); err != nil {
			return nil, apperrors.New("configstore.GetCryptoList", apperrors.UpstreamUnavailable, err)
		}
		c.CryptoSymbols = append(c.CryptoSymbols, symbolID)
	}
	return &c, rows.Err()
}

// CreateCryptoList inserts a crypto_list row and its member join rows in
// one transaction.
func (s *Store) CreateCryptoList(ctx context.Context, in CreateCryptoList) (*CryptoListComplete, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.New("configstore.CreateCryptoList", apperrors.UpstreamUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `INSERT INTO crypto_list (name, interval, list_type) VALUES ($1, $2, $3) RETURNING id`,
		in.Name, in.Interval, in.ListType).Scan(&id)
	if err != nil {
		return nil, apperrors.New("configstore.CreateCryptoList", apperrors.UpstreamUnavailable, err)
	}
	for _, symbolID := range in.CryptoSymbols {
		if _, err := tx.Exec(ctx, `INSERT INTO crypto_list_x_crypto_symbol (crypto_list_id, crypto_symbol_id) VALUES ($1, $2)`, id, symbolID); err != nil {
			return nil, apperrors.New("configstore.CreateCryptoList", apperrors.UpstreamUnavailable, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.New("configstore.CreateCryptoList", apperrors.UpstreamUnavailable, err)
	}
	return &CryptoListComplete{CryptoList: CryptoList{ID: id, Name: in.Name, Interval: in.Interval, ListType: in.ListType}, CryptoSymbols: in.CryptoSymbols}, nil
}

// HideCryptoList sets hidden=true on a crypto_list row.
func (s *Store) HideCryptoList(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE crypto_list SET hidden = TRUE WHERE id = $1`, id)
	if err != nil {
		return apperrors.New("configstore.HideCryptoList", apperrors.UpstreamUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New("configstore.HideCryptoList", apperrors.ConfigNotFound, fmt.Errorf("crypto_list %d not found", id))
	}
	return nil
}

// --- MHObject --- //

// ListMHObjects returns every non-hidden mh_object row.
func (s *Store) ListMHObjects(ctx context.Context) ([]MHObject, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, hidden, mh_algorithm_name, mh_parameters, other_parameters FROM mh_object WHERE NOT hidden ORDER BY id`)
	if err != nil {
		return nil, apperrors.New("configstore.ListMHObjects", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []MHObject
	for rows.Next() {
		var m MHObject
		if err := rows.Scan(&m.ID, &m.Hidden, &m.MHAlgorithmName, &m.MHParameters, &m.OtherParameters); err != nil {
			return nil, apperrors.New("configstore.ListMHObjects", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMHObject fetches one mh_object row — the scheduler's
// get_mh_object(id) contract.
func (s *Store) GetMHObject(ctx context.Context, id int64) (*MHObject, error) {
	var m MHObject
	err := s.pool.QueryRow(ctx, `SELECT id, hidden, mh_algorithm_name, mh_parameters, other_parameters FROM mh_object WHERE id = $1`, id).
		Scan(&m.ID, &m.Hidden, &m.MHAlgorithmName, &m.MHParameters, &m.OtherParameters)
	if err != nil {
		return nil, notFound("configstore.GetMHObject", err)
	}
	return &m, nil
}

// CreateMHObject inserts a mh_object row.
func (s *Store) CreateMHObject(ctx context.Context, in CreateMHObject) (*MHObject, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO mh_object (mh_algorithm_name, mh_parameters, other_parameters) VALUES ($1, $2, $3) RETURNING id`,
		in.MHAlgorithmName, in.MHParameters, in.OtherParameters).Scan(&id)
	if err != nil {
		return nil, apperrors.New("configstore.CreateMHObject", apperrors.UpstreamUnavailable, err)
	}
	return &MHObject{ID: id, MHAlgorithmName: in.MHAlgorithmName, MHParameters: in.MHParameters, OtherParameters: in.OtherParameters}, nil
}

// HideMHObject sets hidden=true on a mh_object row.
func (s *Store) HideMHObject(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE mh_object SET hidden = TRUE WHERE id = $1`, id)
	if err != nil {
		return apperrors.New("configstore.HideMHObject", apperrors.UpstreamUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New("configstore.HideMHObject", apperrors.ConfigNotFound, fmt.Errorf("mh_object %d not found", id))
	}
	return nil
}

// --- IndicatorCombination --- //

// ListIndicatorCombinations returns every non-hidden combination row.
func (s *Store) ListIndicatorCombinations(ctx context.Context) ([]IndicatorCombination, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, hidden, name FROM indicator_combination WHERE NOT hidden ORDER BY id`)
	if err != nil {
		return nil, apperrors.New("configstore.ListIndicatorCombinations", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []IndicatorCombination
	for rows.Next() {
		var c IndicatorCombination
		if err := rows.Scan(&c.ID, &c.Hidden, &c.Name); err != nil {
			return nil, apperrors.New("configstore.ListIndicatorCombinations", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetIndicatorCombination fetches one combination row — the scheduler's
// get_indicator_combination(id) contract.
func (s *Store) GetIndicatorCombination(ctx context.Context, id int64) (*IndicatorCombination, error) {
	var c IndicatorCombination
	err := s.pool.QueryRow(ctx, `SELECT id, hidden, name FROM indicator_combination WHERE id = $1`, id).
		Scan(&c.ID, &c.Hidden, &c.Name)
	if err != nil {
		return nil, notFound("configstore.GetIndicatorCombination", err)
	}
	return &c, nil
}

// GetIndicatorsInCombination returns every member row for id — the
// scheduler's get_indicators_in_combination(id) contract.
func (s *Store) GetIndicatorsInCombination(ctx context.Context, id int64) ([]IndicatorInCombination, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, indicator_combination_id, struct_name, parameters FROM indicator_in_combination WHERE indicator_combination_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, apperrors.New("configstore.GetIndicatorsInCombination", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []IndicatorInCombination
	for rows.Next() {
		var m IndicatorInCombination
		if err := rows.Scan(&m.ID, &m.IndicatorCombinationID, &m.StructName, &m.Parameters); err != nil {
			return nil, apperrors.New("configstore.GetIndicatorsInCombination", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateIndicatorCombination inserts a combination row and its members in
// one transaction.
func (s *Store) CreateIndicatorCombination(ctx context.Context, in CreateIndicatorCombination) (*IndicatorCombination, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.New("configstore.CreateIndicatorCombination", apperrors.UpstreamUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO indicator_combination (name) VALUES ($1) RETURNING id`, in.Name).Scan(&id); err != nil {
		return nil, apperrors.New("configstore.CreateIndicatorCombination", apperrors.UpstreamUnavailable, err)
	}
	for _, member := range in.Indicators {
		if _, err := tx.Exec(ctx, `INSERT INTO indicator_in_combination (indicator_combination_id, struct_name, parameters) VALUES ($1, $2, $3)`,
			id, member.StructName, member.Parameters); err != nil {
			return nil, apperrors.New("configstore.CreateIndicatorCombination", apperrors.UpstreamUnavailable, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.New("configstore.CreateIndicatorCombination", apperrors.UpstreamUnavailable, err)
	}
	return &IndicatorCombination{ID: id, Name: in.Name}, nil
}

// --- Result --- //

// CreateResult inserts a result row and returns its id.
func (s *Store) CreateResult(ctx context.Context, results, otherParameters []byte) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO result (results, other_parameters) VALUES ($1, $2) RETURNING id`, results, otherParameters).Scan(&id)
	if err != nil {
		return 0, apperrors.New("configstore.CreateResult", apperrors.UpstreamUnavailable, err)
	}
	return id, nil
}

// --- Task --- //

// GetTasks returns the task matching id, or every task when id is nil —
// the scheduler's get_tasks(id?) contract.
func (s *Store) GetTasks(ctx context.Context, id *int64) ([]Task, error) {
	var rows pgx.Rows
	var err error
	if id == nil {
		rows, err = s.pool.Query(ctx, `SELECT id, state, created_at, other_parameters, mh_object_id, crypto_list_id, indicator_combination_id, result_id FROM task ORDER BY id`)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT id, state, created_at, other_parameters, mh_object_id, crypto_list_id, indicator_combination_id, result_id FROM task WHERE id = $1`, *id)
	}
	if err != nil {
		return nil, apperrors.New("configstore.GetTasks", apperrors.UpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.State, &t.CreatedAt, &t.OtherParameters, &t.MHObjectID, &t.CryptoListID, &t.IndicatorCombinationID, &t.ResultID); err != nil {
			return nil, apperrors.New("configstore.GetTasks", apperrors.UpstreamUnavailable, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTask inserts a task row in the Created state.
func (s *Store) CreateTask(ctx context.Context, in CreateTask) (*Task, error) {
	var t Task
	err := s.pool.QueryRow(ctx, `
		INSERT INTO task (state, other_parameters, mh_object_id, crypto_list_id, indicator_combination_id)
		VALUES ('CREATED', $1, $2, $3, $4)
		RETURNING id, state, created_at, other_parameters, mh_object_id, crypto_list_id, indicator_combination_id, result_id
	`, in.OtherParameters, in.MHObjectID, in.CryptoListID, in.IndicatorCombinationID).
		Scan(&t.ID, &t.State, &t.CreatedAt, &t.OtherParameters, &t.MHObjectID, &t.CryptoListID, &t.IndicatorCombinationID, &t.ResultID)
	if err != nil {
		return nil, apperrors.New("configstore.CreateTask", apperrors.UpstreamUnavailable, err)
	}
	return &t, nil
}

// UpdateTaskState performs an atomic compare-and-set of task.state from
// any of fromStates to newState — the scheduler's update_task_state(id,
// new_state) contract. Returns apperrors.InvalidTransition on a CAS miss
// (the current state is not among fromStates, or the row does not exist).
func (s *Store) UpdateTaskState(ctx context.Context, id int64, fromStates []TaskState, newState TaskState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE task SET state = $1 WHERE id = $2 AND state = ANY($3)`, newState, id, fromStates)
	if err != nil {
		return apperrors.New("configstore.UpdateTaskState", apperrors.UpstreamUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New("configstore.UpdateTaskState", apperrors.InvalidTransition,
			fmt.Errorf("task %d: no row in state %v to transition to %s", id, fromStates, newState))
	}
	logging.DatabaseContext("UPDATE", "task").Debug("task state transitioned", "task_id", id, "new_state", newState)
	return nil
}

// SetTaskResult attaches a result row to a task, used when a worker
// finishes successfully.
func (s *Store) SetTaskResult(ctx context.Context, id int64, resultID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE task SET result_id = $1 WHERE id = $2`, resultID, id)
	if err != nil {
		return apperrors.New("configstore.SetTaskResult", apperrors.UpstreamUnavailable, err)
	}
	return nil
}

// PurgeHiddenOrphans deletes hidden crypto_list, mh_object, and
// indicator_combination rows that no task references.
func (s *Store) PurgeHiddenOrphans(ctx context.Context) (int64, error) {
	var total int64
	stmts := []string{
		`DELETE FROM crypto_list WHERE hidden AND id NOT IN (SELECT crypto_list_id FROM task WHERE crypto_list_id IS NOT NULL)`,
		`DELETE FROM mh_object WHERE hidden AND id NOT IN (SELECT mh_object_id FROM task WHERE mh_object_id IS NOT NULL)`,
		`DELETE FROM indicator_combination WHERE hidden AND id NOT IN (SELECT indicator_combination_id FROM task WHERE indicator_combination_id IS NOT NULL)`,
	}
	for _, stmt := range stmts {
		tag, err := s.pool.Exec(ctx, stmt)
		if err != nil {
			return total, apperrors.New("configstore.PurgeHiddenOrphans", apperrors.UpstreamUnavailable, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
