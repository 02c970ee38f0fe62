package pipeline

import "fmt"

// State is a stage of a run.
type State int

const (
	StateInit State = iota
	StateListingFetch
	StateFiltering
	StateBatchFetch
	StateAssembling
	StatePersisted
	StateAborted
)

var stateNames = [...]string{
	StateInit:         "init",
	StateListingFetch: "listing_fetch",
	StateFiltering:    "filtering",
	StateBatchFetch:   "batch_fetch",
	StateAssembling:   "assembling",
	StatePersisted:    "persisted",
	StateAborted:      "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateAborted
}
