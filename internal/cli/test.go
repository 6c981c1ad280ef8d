package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioReport is the outcome of one scenario.
type ScenarioReport struct {
	Name   string               `json:"name"`
	Path   string               `json:"path"`
	Pass   bool                 `json:"pass"`
	Phase  string               `json:"phase,omitempty"`
	Golden harness.GoldenStatus `json:"golden,omitempty"`
	Errors []string             `json:"errors,omitempty"`
}

// SuiteReport is the output of the test command.
type SuiteReport struct {
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>...",
		Short: "Run monotonic subscription scenarios",
		Long: `Run YAML scenarios through the monotonic subscription state machine
against an in-memory store. A scenario passes when its assertions hold and
its trace matches the golden file in the sibling golden/ directory, if one
exists.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - no such file or invalid --filter

Examples:
  evsync test ./testdata/scenarios
  evsync test ./testdata/scenarios --filter "snapshot_*"
  evsync test ./testdata/scenarios --update
  evsync test ./testdata/scenarios/horizon.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	files, err := harness.FindScenarios(paths...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if files, err = filterScenarios(files, opts.Filter); err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}

	out := opts.formatter(cmd)
	report := SuiteReport{Scenarios: make([]ScenarioReport, 0, len(files))}
	for _, file := range files {
		r := opts.runScenario(cmd, file)
		report.Scenarios = append(report.Scenarios, r)
		if r.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		if opts.Format != "json" {
			printScenario(out, r)
		}
	}

	var failure *ExitError
	if report.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}

	if opts.Format == "json" {
		if failure == nil {
			return out.Success(report)
		}
		if err := out.Line(CLIResponse{
			Status: "error",
			Data:   report,
			Error:  &CLIError{Code: ErrorCode(failure), Message: failure.Message},
		}, ""); err != nil {
			return err
		}
		failure.Reported = true
		return failure
	}

	if len(files) == 0 {
		fmt.Fprintln(out.Writer, "No scenarios found.")
		return nil
	}
	fmt.Fprintf(out.Writer, "\n%d passed, %d failed, %d total\n", report.Passed, report.Failed, len(files))
	if failure != nil {
		return failure
	}
	fmt.Fprintln(out.Writer, "✓ All scenarios passed")
	return nil
}

// filterScenarios keeps files whose name without extension matches the
// glob.
func filterScenarios(files []string, glob string) ([]string, error) {
	if glob == "" {
		return files, nil
	}
	if _, err := filepath.Match(glob, ""); err != nil {
		return nil, err
	}
	var kept []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if ok, _ := filepath.Match(glob, name); ok {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// runScenario loads, runs and golden-checks one scenario file.
func (o *TestOptions) runScenario(cmd *cobra.Command, file string) ScenarioReport {
	r := ScenarioReport{Name: filepath.Base(file), Path: file}
	fail := func(format string, args ...any) ScenarioReport {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
		return r
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	r.Name = scenario.Name

	result, err := harness.RunContext(cmd.Context(), scenario)
	if err != nil {
		return fail("execution failed: %v", err)
	}
	r.Phase = result.Phase

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return fail("failed to marshal trace: %v", err)
	}
	r.Golden, err = harness.CheckGolden(harness.GoldenPath(file, scenario.Name), trace, o.Update)
	if err != nil {
		return fail("%v", err)
	}

	r.Errors = append(r.Errors, result.Errors...)
	if r.Golden == harness.GoldenMismatch {
		r.Errors = append(r.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	r.Pass = len(r.Errors) == 0
	return r
}

func printScenario(out *OutputFormatter, r ScenarioReport) {
	if !r.Pass {
		fmt.Fprintf(out.Writer, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(out.Writer, "  %s\n", e)
		}
		return
	}
	switch r.Golden {
	case harness.GoldenUpdated:
		fmt.Fprintf(out.Writer, "✓ %s (golden updated)\n", r.Name)
	case harness.GoldenMissing:
		fmt.Fprintf(out.Writer, "✓ %s (no golden file)\n", r.Name)
	default:
		fmt.Fprintf(out.Writer, "✓ %s\n", r.Name)
	}
	out.VerboseLog("  %s: phase %s", r.Path, r.Phase)
}
