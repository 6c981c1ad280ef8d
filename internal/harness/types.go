package harness

// Trace event types.
const (
	TraceInject     = "inject"
	TraceEvents     = "events"
	TraceState      = "state"
	TraceTimeTravel = "time_travel"
)

// TraceEvent is one entry of a scenario trace: either an injection made by
// the harness or a message emitted by the subscription.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Events lists event labels ("A-0@1": stream, offset, lamport) for
	// inject and events entries.
	Events []string `json:"events,omitempty"`

	// Lower and Upper are the chunk bounds of an events entry.
	Lower map[string]uint64 `json:"lower,omitempty"`
	Upper map[string]uint64 `json:"upper,omitempty"`

	CaughtUp bool `json:"caught_up,omitempty"`

	// Key is the snapshot key of a state entry or the trigger of a
	// time_travel entry.
	Key string `json:"key,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds injections and emitted messages in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Phase is the subscription phase when the scenario finished.
	Phase string `json:"phase"`

	// Snapshots counts the cached snapshots left for the scenario's
	// semantics after the run.
	Snapshots int `json:"snapshots"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Delivered returns the labels of all events delivered by events entries,
// in delivery order.
func (r *Result) Delivered() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Type == TraceEvents {
			out = append(out, ev.Events...)
		}
	}
	return out
}
