package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/evsync/internal/ir"
)

// GoldenStatus is the outcome of comparing a trace with its golden file.
type GoldenStatus string

const (
	GoldenMatch    GoldenStatus = "match"
	GoldenMismatch GoldenStatus = "mismatch"
	GoldenMissing  GoldenStatus = "missing"
	GoldenUpdated  GoldenStatus = "updated"
)

// canonical is the golden form of one trace entry. Only the fields that
// belong to the entry's type are present.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{"type": e.Type, "seq": e.Seq}
	switch e.Type {
	case TraceInject:
		m["events"] = e.Events
	case TraceEvents:
		m["events"] = e.Events
		m["lower"] = offsetObject(e.Lower)
		m["upper"] = offsetObject(e.Upper)
		m["caught_up"] = e.CaughtUp
	case TraceState:
		m["key"] = e.Key
		m["offsets"] = offsetObject(e.Upper)
	case TraceTimeTravel:
		m["trigger"] = e.Key
	}
	return m
}

func offsetObject(m map[string]uint64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalTrace renders a result as the canonical JSON stored in golden
// files: scenario name, final phase and every trace entry.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	entries := make([]any, len(result.Trace))
	for i, e := range result.Trace {
		entries[i] = e.canonical()
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"phase":         result.Phase,
		"trace":         entries,
	})
}

// GoldenPath returns the golden file of a scenario file: scenarios live in
// <dir>/scenarios and golden files in the sibling <dir>/golden.
func GoldenPath(scenarioPath, scenarioName string) string {
	return filepath.Join(filepath.Dir(filepath.Dir(scenarioPath)), "golden", scenarioName+".golden")
}

// CheckGolden compares trace with the golden file at path. With update
// set the file is (re)written instead.
func CheckGolden(path string, trace []byte, update bool) (GoldenStatus, error) {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, trace, 0644); err != nil {
			return "", fmt.Errorf("write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}

	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return GoldenMissing, nil
	case err != nil:
		return "", fmt.Errorf("read golden file: %w", err)
	case !bytes.Equal(want, trace):
		return GoldenMismatch, nil
	}
	return GoldenMatch, nil
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	trace, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, trace)
	return nil
}
