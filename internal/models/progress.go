package models

// Progress is a purely advisory progress event. Percent is nil when the
// operation cannot compute one (e.g. unknown content length).
type Progress struct {
	Message string `json:"message"`
	Percent *int   `json:"percent,omitempty"`
}

// ProgressFunc receives progress events during a long-running operation.
type ProgressFunc func(Progress)

// Emit invokes the callback. Nil funcs and panicking observers are
// swallowed so a progress consumer can never abort the pipeline feeding it.
func (f ProgressFunc) Emit(message string, percent *int) {
	if f == nil {
		return
	}
	defer func() { _ = recover() }()
	f(Progress{Message: message, Percent: percent})
}

// Pct returns a pointer to n, for building Progress events inline.
func Pct(n int) *int { return &n }
