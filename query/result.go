package query

import "time"

// Status describes whether a query has data.
type Status int

const (
	StatusPending Status = iota // no data yet
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// FetchStatus describes whether a fetch is running.
type FetchStatus int

const (
	FetchIdle FetchStatus = iota
	FetchFetching
)

func (f FetchStatus) String() string {
	if f == FetchFetching {
		return "fetching"
	}
	return "idle"
}

// Result is a point-in-time view of one cache slot. After a failed refetch
// Data still holds the last successful value.
type Result[T any] struct {
	Data        T
	Err         error
	Status      Status
	FetchStatus FetchStatus
	UpdatedAt   time.Time
	Invalidated bool
}

// IsLoading is true while the first fetch of a slot is running.
func (r Result[T]) IsLoading() bool {
	return r.Status == StatusPending && r.FetchStatus == FetchFetching
}

// IsInactive is true for a slot with no data and no fetch running, which is
// what a disabled query reports.
func (r Result[T]) IsInactive() bool {
	return r.Status == StatusPending && r.FetchStatus == FetchIdle
}

func (r Result[T]) IsFetching() bool { return r.FetchStatus == FetchFetching }
func (r Result[T]) IsSuccess() bool  { return r.Status == StatusSuccess }
func (r Result[T]) IsError() bool    { return r.Status == StatusError }

// LastError returns the error of a failed slot, or nil.
func (r Result[T]) LastError() error {
	if r.Status != StatusError {
		return nil
	}
	return r.Err
}

// State is the type-erased view derived queries combine.
type State interface {
	IsLoading() bool
	IsError() bool
	LastError() error
}

// Composite folds several query states into one loading/error facade.
// Errors are not merged: each constituent keeps its own.
type Composite []State

func Compose(states ...State) Composite {
	return Composite(states)
}

// IsLoading is the OR of every constituent's loading flag.
func (c Composite) IsLoading() bool {
	for _, s := range c {
		if s.IsLoading() {
			return true
		}
	}
	return false
}

// IsError is the OR of every constituent's error flag.
func (c Composite) IsError() bool {
	for _, s := range c {
		if s.IsError() {
			return true
		}
	}
	return false
}

// Errors lists the constituent errors in order, skipping healthy ones.
func (c Composite) Errors() []error {
	var errs []error
	for _, s := range c {
		if err := s.LastError(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
