package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case TraceInject, TraceEvents:
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Type, event.Events)
		default:
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Type, event.Key)
		}
	}

	return buf.String()
}

// assertDelivered checks that exactly the given events were delivered, in
// order, across all events messages.
func assertDelivered(result *Result, assertion Assertion) error {
	got := result.Delivered()
	if len(got) == 0 && len(assertion.Events) == 0 {
		return nil
	}
	if slices.Equal(got, assertion.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDelivered,
		Expected: fmt.Sprintf("%v", assertion.Events),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertTimeTravel checks that the trace ends in a time travel with the
// given trigger.
func assertTimeTravel(result *Result, assertion Assertion) error {
	want := keyLabel(assertion.Trigger.Key())
	actual := "no time travel"
	if n := len(result.Trace); n > 0 && result.Trace[n-1].Type == TraceTimeTravel {
		actual = "trigger " + result.Trace[n-1].Key
		if result.Trace[n-1].Key == want {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTimeTravel,
		Expected: "trigger " + want,
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertMessageCount checks that a message type appears exactly N times.
func assertMessageCount(result *Result, assertion Assertion) error {
	count := 0
	for _, event := range result.Trace {
		if event.Type == assertion.Message {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertMessageCount,
		Expected: fmt.Sprintf("%d %s messages", assertion.Count, assertion.Message),
		Actual:   fmt.Sprintf("%d %s messages", count, assertion.Message),
		Trace:    result.Trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDelivered:
			err = assertDelivered(result, assertion)
		case AssertTimeTravel:
			if assertion.Trigger == nil {
				err = fmt.Errorf("assertion[%d]: time_travel requires a trigger", i)
			} else {
				err = assertTimeTravel(result, assertion)
			}
		case AssertMessageCount:
			err = assertMessageCount(result, assertion)
		case AssertPhase:
			if result.Phase != assertion.Phase {
				err = &AssertionError{
					Type:     AssertPhase,
					Expected: assertion.Phase,
					Actual:   result.Phase,
					Trace:    result.Trace,
				}
			}
		case AssertSnapshots:
			if result.Snapshots != assertion.Count {
				err = &AssertionError{
					Type:     AssertSnapshots,
					Expected: fmt.Sprintf("%d cached snapshots", assertion.Count),
					Actual:   fmt.Sprintf("%d cached snapshots", result.Snapshots),
					Trace:    result.Trace,
				}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
