// Package configstore is the pgx-backed repository for every configuration
// entity: crypto symbols/lists, metaheuristic objects, indicator
// combinations, tasks, and results. It is the configuration store's single
// implementation and the only package besides klinestore that touches SQL.
package configstore

import "time"

// TaskState is one of the seven states in the task lifecycle.
type TaskState string

const (
	Created    TaskState = "CREATED"
	Pending    TaskState = "PENDING"
	Running    TaskState = "RUNNING"
	Cancelling TaskState = "CANCELLING"
	Cancelled  TaskState = "CANCELLED"
	Completed  TaskState = "COMPLETED"
	Failed     TaskState = "FAILED"
)

// CryptoSymbol mirrors one row of crypto_symbol.
type CryptoSymbol struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Volume      float64   `json:"volume"`
	LastUpdated time.Time `json:"last_updated"`
	Available   bool      `json:"available"`
}

// CryptoList mirrors one row of crypto_list.
type CryptoList struct {
	ID       int64  `json:"id"`
	Hidden   bool   `json:"hidden"`
	Name     string `json:"name"`
	Interval string `json:"interval"`
	ListType string `json:"type"`
}

// CryptoListComplete is a CryptoList with its member symbol ids resolved.
type CryptoListComplete struct {
	CryptoList
	CryptoSymbols []int64 `json:"crypto_symbols"`
}

// CreateCryptoList is the payload POST /crypto_list accepts.
type CreateCryptoList struct {
	Name          string  `json:"name"`
	Interval      string  `json:"interval"`
	ListType      string  `json:"type"`
	CryptoSymbols []int64 `json:"crypto_symbols"`
}

// MHObject mirrors one row of mh_object: a named metaheuristic algorithm
// bound to its JSON-encoded parameters.
type MHObject struct {
	ID              int64  `json:"id"`
	Hidden          bool   `json:"hidden"`
	MHAlgorithmName string `json:"mh_algorithm_name"`
	MHParameters    []byte `json:"mh_parameters"`
	OtherParameters []byte `json:"other_parameters,omitempty"`
}

// CreateMHObject is the payload POST /mh_object accepts.
type CreateMHObject struct {
	MHAlgorithmName string `json:"mh_algorithm_name"`
	MHParameters    []byte `json:"mh_parameters"`
	OtherParameters []byte `json:"other_parameters,omitempty"`
}

// IndicatorCombination mirrors one row of indicator_combination.
type IndicatorCombination struct {
	ID     int64  `json:"id"`
	Hidden bool   `json:"hidden"`
	Name   string `json:"name"`
}

// IndicatorInCombination mirrors one row of indicator_in_combination: one
// indicator variant and its parameters within a combination.
type IndicatorInCombination struct {
	ID                      int64  `json:"id"`
	IndicatorCombinationID  int64  `json:"indicator_combination_id"`
	StructName              string `json:"struct_name"`
	Parameters              []byte `json:"parameters"`
}

// CreateIndicatorCombination is the payload POST /indicator_combinations
// accepts: a name plus the member indicator descriptors.
type CreateIndicatorCombination struct {
	Name       string                        `json:"name"`
	Indicators []CreateIndicatorInCombination `json:"indicators"`
}

// CreateIndicatorInCombination is one member of CreateIndicatorCombination.
type CreateIndicatorInCombination struct {
	StructName string `json:"struct_name"`
	Parameters []byte `json:"parameters"`
}

// Result mirrors one row of result.
type Result struct {
	ID              int64  `json:"id"`
	Results         []byte `json:"results"`
	OtherParameters []byte `json:"other_parameters,omitempty"`
}

// Task mirrors one row of task.
type Task struct {
	ID                      int64     `json:"id"`
	State                   TaskState `json:"state"`
	CreatedAt               time.Time `json:"created_at"`
	OtherParameters         []byte    `json:"other_parameters,omitempty"`
	MHObjectID              *int64    `json:"mh_object_id,omitempty"`
	CryptoListID            *int64    `json:"crypto_list_id,omitempty"`
	IndicatorCombinationID  *int64    `json:"indicator_combination_id,omitempty"`
	ResultID                *int64    `json:"result_id,omitempty"`
}

// CreateTask is the payload POST /task accepts.
type CreateTask struct {
	OtherParameters        []byte `json:"other_parameters,omitempty"`
	MHObjectID             *int64 `json:"mh_object_id,omitempty"`
	CryptoListID           *int64 `json:"crypto_list_id,omitempty"`
	IndicatorCombinationID *int64 `json:"indicator_combination_id,omitempty"`
}
