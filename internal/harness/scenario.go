package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/evsync/internal/ir"
)

// Scenario defines a monotonic subscription scenario: a starting log, an
// optional resumption point or cached snapshot, a sequence of live
// injections and assertions on the resulting message trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the subscriber session id. Defaults to
	// "test-session-default".
	Session string `yaml:"session,omitempty"`

	// Where is a disjunction of tag conjunctions. Empty selects all events.
	Where [][]string `yaml:"where,omitempty"`

	// Log is written to the store before the subscription starts.
	Log []EventSpec `yaml:"log,omitempty"`

	// Start is the caller-asserted resumption point.
	Start *StartSpec `yaml:"start,omitempty"`

	// Snapshot is cached before the subscription starts. Ignored for
	// lookups when Start is set, as the subscription does.
	Snapshot *SnapshotSpec `yaml:"snapshot,omitempty"`

	// Steps inject live batches once the subscription has caught up.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// EventSpec describes one event. Offsets are assigned in order per stream.
type EventSpec struct {
	Stream  string   `yaml:"stream"`
	Lamport uint64   `yaml:"lamport"`
	Tags    []string `yaml:"tags,omitempty"`
	Payload any      `yaml:"payload,omitempty"`
}

// StartSpec is the YAML form of ir.FixedStart.
type StartSpec struct {
	From    map[string]uint64 `yaml:"from"`
	Latest  KeySpec           `yaml:"latest"`
	Horizon *KeySpec          `yaml:"horizon,omitempty"`
}

// KeySpec is the YAML form of ir.EventKey.
type KeySpec struct {
	Lamport uint64 `yaml:"lamport"`
	Stream  string `yaml:"stream"`
	Offset  uint64 `yaml:"offset"`
}

// Key returns the event key k describes.
func (k KeySpec) Key() ir.EventKey {
	return ir.EventKey{Lamport: ir.Lamport(k.Lamport), Stream: ir.StreamID(k.Stream), Offset: ir.Offset(k.Offset)}
}

// SnapshotSpec describes a cached state.
type SnapshotSpec struct {
	Semantics string            `yaml:"semantics"`
	Version   int               `yaml:"version"`
	Key       KeySpec           `yaml:"key"`
	Offsets   map[string]uint64 `yaml:"offsets"`
	Horizon   *KeySpec          `yaml:"horizon,omitempty"`
	State     string            `yaml:"state"`
}

// Step injects one batch of events into the store. All events of a step
// reach the subscription together.
type Step struct {
	Inject []EventSpec `yaml:"inject"`

	// Expect is the message type the step must produce: "events",
	// "time_travel" or "none". Defaults to "events".
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "delivered": events were delivered exactly in the given order
	// - "time_travel": the subscription time-travelled with the given trigger
	// - "message_count": Message appears exactly Count times
	// - "phase": the final phase equals Phase
	// - "snapshots": Count snapshots remain cached
	Type string `yaml:"type"`

	Events  []string `yaml:"events,omitempty"`
	Trigger *KeySpec `yaml:"trigger,omitempty"`
	Message string   `yaml:"message,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Phase   string   `yaml:"phase,omitempty"`
}

// Assertion type constants.
const (
	AssertDelivered    = "delivered"
	AssertTimeTravel   = "time_travel"
	AssertMessageCount = "message_count"
	AssertPhase        = "phase"
	AssertSnapshots    = "snapshots"
)

// Step expectations.
const (
	ExpectEvents     = "events"
	ExpectTimeTravel = "time_travel"
	ExpectNone       = "none"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, clause := range s.Where {
		if len(clause) == 0 {
			return fmt.Errorf("where[%d]: clause must name at least one tag", i)
		}
	}

	for i, e := range s.Log {
		if err := validateEvent(e); err != nil {
			return fmt.Errorf("log[%d]: %w", i, err)
		}
	}

	if s.Snapshot != nil {
		if s.Snapshot.Semantics == "" {
			return fmt.Errorf("snapshot: semantics is required")
		}
		if s.Snapshot.Offsets == nil {
			return fmt.Errorf("snapshot: offsets is required")
		}
	}

	if s.Start != nil && s.Start.From == nil {
		return fmt.Errorf("start: from is required (use {} to start from zero)")
	}

	for i, step := range s.Steps {
		if len(step.Inject) == 0 {
			return fmt.Errorf("steps[%d]: inject is required and must be non-empty", i)
		}
		for j, e := range step.Inject {
			if err := validateEvent(e); err != nil {
				return fmt.Errorf("steps[%d].inject[%d]: %w", i, j, err)
			}
		}
		switch step.Expect {
		case "", ExpectEvents, ExpectTimeTravel, ExpectNone:
		default:
			return fmt.Errorf("steps[%d]: unknown expect %q", i, step.Expect)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateEvent(e EventSpec) error {
	if e.Stream == "" {
		return fmt.Errorf("stream is required")
	}
	if e.Lamport == 0 {
		return fmt.Errorf("lamport is required and must be positive")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDelivered:
		if a.Events == nil {
			return fmt.Errorf("assertions[%d]: events list is required for delivered (use [] for none)", index)
		}
	case AssertTimeTravel:
		if a.Trigger == nil {
			return fmt.Errorf("assertions[%d]: trigger is required for time_travel", index)
		}
	case AssertMessageCount:
		switch a.Message {
		case TraceEvents, TraceState, TraceTimeTravel:
		default:
			return fmt.Errorf("assertions[%d]: message must be events, state or time_travel", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for message_count", index)
		}
	case AssertPhase:
		if a.Phase == "" {
			return fmt.Errorf("assertions[%d]: phase is required for phase", index)
		}
	case AssertSnapshots:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for snapshots", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
