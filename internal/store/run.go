package store

import (
	"errors"
	"time"
)

// Run is one recorded execution of a scenario.
type Run struct {
	ID         string
	Scenario   string        // Scenario name
	TreeHash   string        // Content hash of the tree document
	Source     string        // Scenario source, for replay
	Finished   bool          // FinishRun was called
	Done       bool          // Root element finished
	Result     bool          // Root result, meaningful when Done
	FinishedAt time.Duration // Virtual time at which the run ended
	Error      string        // Set if the run aborted
}

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")
