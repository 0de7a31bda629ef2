package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
	"backtest-orchestrator/internal/exchange"
)

// fakeStore implements ConfigStore entirely in memory, the way the
// teacher's handler tests stub BotAPI rather than hitting a real bot.
type fakeStore struct {
	cryptoSymbols []configstore.CryptoSymbol
	cryptoLists   []configstore.CryptoList
	mhObjects     []configstore.MHObject
	combinations  []configstore.IndicatorCombination
	members       map[int64][]configstore.IndicatorInCombination
	tasks         []configstore.Task
	nextTaskID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{members: make(map[int64][]configstore.IndicatorInCombination), nextTaskID: 1}
}

func (f *fakeStore) ListCryptoSymbols(ctx context.Context) ([]configstore.CryptoSymbol, error) {
	return f.cryptoSymbols, nil
}
func (f *fakeStore) UpsertCryptoSymbol(ctx context.Context, c configstore.CryptoSymbol) error {
	for i, existing := range f.cryptoSymbols {
		if existing.Symbol == c.Symbol {
			f.cryptoSymbols[i].Volume = c.Volume
			f.cryptoSymbols[i].Available = c.Available
			return nil
		}
	}
	f.cryptoSymbols = append(f.cryptoSymbols, c)
	return nil
}
func (f *fakeStore) ListCryptoLists(ctx context.Context) ([]configstore.CryptoList, error) {
	return f.cryptoLists, nil
}
func (f *fakeStore) CreateCryptoList(ctx context.Context, in configstore.CreateCryptoList) (*configstore.CryptoListComplete, error) {
	cl := configstore.CryptoList{ID: int64(len(f.cryptoLists) + 1), Name: in.Name, Interval: in.Interval, ListType: in.ListType}
	f.cryptoLists = append(f.cryptoLists, cl)
	return &configstore.CryptoListComplete{CryptoList: cl, CryptoSymbols: in.CryptoSymbols}, nil
}
func (f *fakeStore) HideCryptoList(ctx context.Context, id int64) error {
	for i := range f.cryptoLists {
		if f.cryptoLists[i].ID == id {
			f.cryptoLists[i].Hidden = true
			return nil
		}
	}
	return apperrors.New("fakeStore.HideCryptoList", apperrors.ConfigNotFound, nil)
}
func (f *fakeStore) ListMHObjects(ctx context.Context) ([]configstore.MHObject, error) {
	return f.mhObjects, nil
}
func (f *fakeStore) CreateMHObject(ctx context.Context, in configstore.CreateMHObject) (*configstore.MHObject, error) {
	m := configstore.MHObject{ID: int64(len(f.mhObjects) + 1), MHAlgorithmName: in.MHAlgorithmName, MHParameters: in.MHParameters}
	f.mhObjects = append(f.mhObjects, m)
	return &m, nil
}
func (f *fakeStore) HideMHObject(ctx context.Context, id int64) error {
	for i := range f.mhObjects {
		if f.mhObjects[i].ID == id {
			f.mhObjects[i].Hidden = true
			return nil
		}
	}
	return apperrors.New("fakeStore.HideMHObject", apperrors.ConfigNotFound, nil)
}
func (f *fakeStore) ListIndicatorCombinations(ctx context.Context) ([]configstore.IndicatorCombination, error) {
	return f.combinations, nil
}
func (f *fakeStore) CreateIndicatorCombination(ctx context.Context, in configstore.CreateIndicatorCombination) (*configstore.IndicatorCombination, error) {
	ic := configstore.IndicatorCombination{ID: int64(len(f.combinations) + 1), Name: in.Name}
	f.combinations = append(f.combinations, ic)
	members := make([]configstore.IndicatorInCombination, len(in.Indicators))
	for i, m := range in.Indicators {
		members[i] = configstore.IndicatorInCombination{ID: int64(i + 1), IndicatorCombinationID: ic.ID, StructName: m.StructName, Parameters: m.Parameters}
	}
	f.members[ic.ID] = members
	return &ic, nil
}
func (f *fakeStore) GetIndicatorsInCombination(ctx context.Context, id int64) ([]configstore.IndicatorInCombination, error) {
	return f.members[id], nil
}
func (f *fakeStore) GetTasks(ctx context.Context, id *int64) ([]configstore.Task, error) {
	if id == nil {
		return f.tasks, nil
	}
	for _, t := range f.tasks {
		if t.ID == *id {
			return []configstore.Task{t}, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) CreateTask(ctx context.Context, in configstore.CreateTask) (*configstore.Task, error) {
	t := configstore.Task{ID: f.nextTaskID, State: configstore.Created, OtherParameters: in.OtherParameters, MHObjectID: in.MHObjectID, CryptoListID: in.CryptoListID, IndicatorCombinationID: in.IndicatorCombinationID}
	f.nextTaskID++
	f.tasks = append(f.tasks, t)
	return &t, nil
}
func (f *fakeStore) UpdateTaskState(ctx context.Context, id int64, fromStates []configstore.TaskState, newState configstore.TaskState) error {
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		for _, from := range fromStates {
			if f.tasks[i].State == from {
				f.tasks[i].State = newState
				return nil
			}
		}
		return apperrors.New("fakeStore.UpdateTaskState", apperrors.InvalidTransition, nil)
	}
	return apperrors.New("fakeStore.UpdateTaskState", apperrors.ConfigNotFound, nil)
}
func (f *fakeStore) PurgeHiddenOrphans(ctx context.Context) (int64, error) { return 0, nil }

type fakeHealthChecker struct{ err error }

func (f fakeHealthChecker) HealthCheck(ctx context.Context) error { return f.err }

type fakeSymbolsSource struct{ symbols []exchange.SymbolInfo }

func (f fakeSymbolsSource) FetchAll(ctx context.Context) ([]exchange.SymbolInfo, error) {
	return f.symbols, nil
}

func newTestServer(store *fakeStore) (*Server, *changefeed.Feed) {
	feed := changefeed.New(nil)
	s := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, fakeHealthChecker{}, store, feed, fakeSymbolsSource{}, nil, "test")
	return s, feed
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointReportsHealthy(t *testing.T) {
	s, _ := newTestServer(newFakeStore())
	rec := doRequest(s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpointReportsUnhealthyOnDBError(t *testing.T) {
	store := newFakeStore()
	feed := changefeed.New(nil)
	s := NewServer(ServerConfig{}, fakeHealthChecker{err: assertError{}}, store, feed, fakeSymbolsSource{}, nil, "test")
	rec := doRequest(s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type assertError struct{}

func (assertError) Error() string { return "db unreachable" }

func TestCreateAndQueueAndCancelTask(t *testing.T) {
	store := newFakeStore()
	s, feed := newTestServer(store)
	_, updates, _ := feed.Subscribe()

	mhID := int64(1)
	rec := doRequest(s, http.MethodPost, "/api/task", configstore.CreateTask{MHObjectID: &mhID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created configstore.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, configstore.Created, created.State)

	rec = doRequest(s, http.MethodPut, "/api/task/1/queue", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, configstore.Pending, store.tasks[0].State)
	assert.Equal(t, changefeed.Update{TaskID: 1, State: "PENDING"}, <-updates)

	rec = doRequest(s, http.MethodPut, "/api/task/1/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, configstore.Cancelling, store.tasks[0].State)
	assert.Equal(t, changefeed.Update{TaskID: 1, State: "CANCELLING"}, <-updates)
}

func TestQueueTaskRejectsInvalidTransition(t *testing.T) {
	store := newFakeStore()
	store.tasks = []configstore.Task{{ID: 1, State: configstore.Running}}
	s, _ := newTestServer(store)

	rec := doRequest(s, http.MethodPut, "/api/task/1/queue", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCryptoSymbolReloadUpsertsFetchedSymbols(t *testing.T) {
	store := newFakeStore()
	feed := changefeed.New(nil)
	s := NewServer(ServerConfig{}, fakeHealthChecker{}, store, feed,
		fakeSymbolsSource{symbols: []exchange.SymbolInfo{{Symbol: "BTCUSDT", Volume: 123, Available: true}}}, nil, "test")

	rec := doRequest(s, http.MethodPost, "/api/crypto_symbol/reload", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.cryptoSymbols, 1)
	assert.Equal(t, "BTCUSDT", store.cryptoSymbols[0].Symbol)
}

func TestIndicatorCatalogListsAllVariants(t *testing.T) {
	s, _ := newTestServer(newFakeStore())
	rec := doRequest(s, http.MethodGet, "/api/indicators", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var names []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Len(t, names, 9)
}
