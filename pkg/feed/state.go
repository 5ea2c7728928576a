package feed

import "time"

// State is the position of a list in its fetch lifecycle.
type State int

const (
	Idle State = iota
	NearEnd
	Fetching
	Exhausted
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case NearEnd:
		return "near_end"
	case Fetching:
		return "fetching"
	case Exhausted:
		return "exhausted"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether only a Reset can move the list on.
func (s State) Terminal() bool {
	return s == Exhausted || s == Error
}

// Outcome is what Complete did with a result.
type Outcome int

const (
	Appended Outcome = iota
	Failed
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Failed:
		return "failed"
	default:
		return "dropped"
	}
}

// FetchState is the per-list lifecycle seen by the view layer.
type FetchState struct {
	State            State
	IsFetchingNext   bool
	IsInitialLoading bool
	LastError        error
	Pages            int
	Items            int
	FreshItems       int
	Enabled          bool
}

// Snapshot pairs a FetchState with the flattened view it describes.
type Snapshot[T any] struct {
	FetchState
	Items []T
}

// Observer receives fetch lifecycle events, typically for metrics.
type Observer interface {
	FetchStarted(kind string)
	FetchFinished(kind string, elapsed time.Duration, err error)
	TriggerSuppressed(kind string)
	ResultDropped(kind string)
	DuplicatesDropped(kind string, n int)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) FetchStarted(string)                        {}
func (NopObserver) FetchFinished(string, time.Duration, error) {}
func (NopObserver) TriggerSuppressed(string)                   {}
func (NopObserver) ResultDropped(string)                       {}
func (NopObserver) DuplicatesDropped(string, int)              {}
