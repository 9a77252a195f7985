package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/trace"
)

// Scenario defines a conformance test scenario: a program, the replay
// script it runs against, and what the run must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the inline program source. Exactly one of Program and
	// ProgramFile must be set.
	Program string `yaml:"program,omitempty"`

	// ProgramFile is a path to the program source, relative to the
	// scenario file.
	ProgramFile string `yaml:"program_file,omitempty"`

	// Entry is the flow to run. Empty means main when the program defines
	// one.
	Entry string `yaml:"entry,omitempty"`

	// Args are passed to the entry flow by parameter name.
	Args map[string]any `yaml:"args,omitempty"`

	// Script is the replay script: stdin, generations, shell, files and
	// allow_shell, in the same format as a standalone script file.
	Script map[string]any `yaml:"script,omitempty"`

	// TraceLevel is metrics (default) or full.
	TraceLevel string `yaml:"trace_level,omitempty"`

	// RunID is an optional fixed correlation id. When empty, ids are
	// derived from the scenario name.
	RunID string `yaml:"run_id,omitempty"`

	// Expect describes the outcome of the run.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions validate the recorded trace.
	// Supported types: trace_contains, trace_order, trace_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expect specifies the expected outcome. Unset fields are not checked.
type Expect struct {
	// Output is the exact list of lines written to stdout.
	Output []string `yaml:"output,omitempty"`

	// Result is the value returned by the entry flow, compared with
	// ir.Equal after conversion. Use a YAML null for None.
	Result any `yaml:"result,omitempty"`

	// ErrorKind is the category of the uncaught error, e.g. ValidationError.
	ErrorKind string `yaml:"error_kind,omitempty"`

	// ErrorContains is a substring of the uncaught error's message.
	ErrorContains string `yaml:"error_contains,omitempty"`

	// hasResult records whether result was present, so that `result: null`
	// can expect None.
	hasResult bool
}

// UnmarshalYAML records whether result was given. Unknown keys are
// rejected here because node.Decode does not inherit KnownFields.
func (e *Expect) UnmarshalYAML(node *yaml.Node) error {
	type plain Expect
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Expect(p)
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch key := node.Content[i].Value; key {
		case "result":
			e.hasResult = true
		case "output", "error_kind", "error_contains":
		default:
			return fmt.Errorf("line %d: field %s not found in expect", node.Content[i].Line, key)
		}
	}
	return nil
}

// ExpectsError reports whether the run is expected to fail.
func (e *Expect) ExpectsError() bool {
	return e != nil && (e.ErrorKind != "" || e.ErrorContains != "")
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Kind whose fields include Fields
	// - "trace_order": events of Kinds appear in this order
	// - "trace_count": exactly Count events of Kind (matching Fields)
	Type string `yaml:"type"`

	// Kind is the event kind (used by trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Fields are the expected event fields (used by trace_contains and
	// trace_count). Subset match - only specified fields are validated.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected event order (used by trace_order). Kinds may
	// repeat; other events may appear in between.
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative program_file is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving program_file relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.ProgramFile != "" && !filepath.IsAbs(scenario.ProgramFile) && basePath != "" {
		scenario.ProgramFile = filepath.Join(basePath, scenario.ProgramFile)
	}
	if scenario.ProgramFile != "" {
		if _, err := os.Stat(scenario.ProgramFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: program file not found: %s", scenario.ProgramFile)
		}
	}
	return scenario, nil
}

// ParseScenario decodes a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

	switch {
	case s.Program == "" && s.ProgramFile == "":
		return fmt.Errorf("one of program or program_file is required")
	case s.Program != "" && s.ProgramFile != "":
		return fmt.Errorf("program and program_file are mutually exclusive")
	}

	if _, err := trace.ParseLevel(s.TraceLevel); err != nil {
		return err
	}

	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	if e := s.Expect; e != nil && e.ErrorKind != "" && !knownErrorKind(e.ErrorKind) {
		return fmt.Errorf("expect: unknown error_kind %q", e.ErrorKind)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func knownErrorKind(kind string) bool {
	switch engine.ErrorKind(kind) {
	case engine.KindRuntime, engine.KindNotFound, engine.KindConcurrency,
		engine.KindValidation, engine.KindEffectExhausted, engine.KindEffectDenied,
		engine.KindCancelled:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
