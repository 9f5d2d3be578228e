package service

// State is the refresh pipeline's position. Transitions are strictly
// forward; Failed is terminal and reachable from any non-terminal state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateDownloading
	StateParsing
	StatePersisting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDownloading:
		return "downloading"
	case StateParsing:
		return "parsing"
	case StatePersisting:
		return "persisting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Status is one observer-facing event from the refresh pipeline.
// Success is true only for the final Complete event; InProgress is true for
// every event before the pipeline settles.
type Status struct {
	Success    bool   `json:"success"`
	InProgress bool   `json:"inProgress"`
	Message    string `json:"message"`
}

// StatusFunc receives status events. Observers are advisory only; a
// panicking observer never aborts the pipeline.
type StatusFunc func(Status)
