package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/timeline/internal/timeline"
	"github.com/roach88/timeline/internal/tree"
)

// Scenario defines a conformance test scenario.
// A scenario runs one tree against a virtual clock, applies timed steps,
// and asserts on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TreeFile is a YAML or CUE tree document (or a directory of CUE files).
	// Relative paths resolve against the scenario file location.
	// Exactly one of TreeFile and Tree must be set.
	TreeFile string `yaml:"tree_file,omitempty"`

	// Tree defines the trees inline.
	Tree map[string]tree.Node `yaml:"tree,omitempty"`

	// Root overrides the document's entry tree.
	Root string `yaml:"root,omitempty"`

	// Flags sets environment flags before the tree is built.
	Flags map[string]bool `yaml:"flags,omitempty"`

	// Tick is the virtual time advanced per Simulate call. Defaults to 1.
	Tick int64 `yaml:"tick,omitempty"`

	// Until ends the run at a fixed virtual time. When unset the run
	// continues until the timeline is idle or DefaultHorizon is reached.
	Until *int64 `yaml:"until,omitempty"`

	// MaxSteps bounds the steps per tick. Zero keeps the timeline default.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Steps are external interventions applied at virtual times.
	// They must be listed in non-decreasing time order.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	doc *tree.Document
}

// Step is one external intervention. Exactly one of SoftStop, HardStop
// and SetFlag must be set.
type Step struct {
	// At is the virtual time the step applies at.
	At int64 `yaml:"at"`

	// SoftStop names an element to soft stop.
	SoftStop string `yaml:"soft_stop,omitempty"`

	// HardStop names an element to hard stop.
	HardStop string `yaml:"hard_stop,omitempty"`

	// SetFlag names an environment flag to set to Value.
	SetFlag string `yaml:"set_flag,omitempty"`
	Value   bool   `yaml:"value,omitempty"`

	// Expect is the expected SoftStop acceptance. Nil skips the check.
	Expect *bool `yaml:"expect,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "result": the element (default root) finished with Result
	// - "done": the root's completion state equals Done
	// - "trace_contains": an event for Element (of Kind, if set) exists
	// - "trace_order": Elements first appear in order (Kind defaults to run)
	// - "trace_count": Element has exactly Count events (Kind defaults to run)
	// - "finished_at": the element (default root) finished at virtual time At
	// - "counter": the environment counter Counter equals Count
	Type string `yaml:"type"`

	Element  string             `yaml:"element,omitempty"`
	Elements []string           `yaml:"elements,omitempty"`
	Kind     timeline.EventKind `yaml:"kind,omitempty"`
	Counter  string             `yaml:"counter,omitempty"`
	Count    *int               `yaml:"count,omitempty"`
	At       *int64             `yaml:"at,omitempty"`
	Result   *bool              `yaml:"result,omitempty"`
	Done     *bool              `yaml:"done,omitempty"`
}

// Assertion type constants.
const (
	AssertResult        = "result"
	AssertDone          = "done"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinishedAt    = "finished_at"
	AssertCounter       = "counter"
)

// LoadScenario reads and parses a scenario YAML file.
// Tree file paths resolve against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving tree_file relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := decodeScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.TreeFile != "" && !filepath.IsAbs(scenario.TreeFile) && basePath != "" {
		scenario.TreeFile = filepath.Join(basePath, scenario.TreeFile)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario parses a scenario from YAML bytes. A relative tree_file
// resolves against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	scenario, err := decodeScenario(data)
	if err != nil {
		return nil, err
	}
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// decodeScenario parses YAML with strict field validation so that typos
// like "assertion:" surface as errors.
func decodeScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// Document returns the scenario's tree document, loading tree_file on
// first use. The scenario's Root override is applied.
func (s *Scenario) Document() (*tree.Document, error) {
	if s.doc != nil {
		return s.doc, nil
	}

	var doc *tree.Document
	if s.TreeFile != "" {
		info, err := os.Stat(s.TreeFile)
		if err != nil {
			return nil, fmt.Errorf("tree file: %w", err)
		}
		if info.IsDir() {
			doc, err = tree.LoadDir(s.TreeFile)
		} else {
			doc, err = tree.LoadFile(s.TreeFile)
		}
		if err != nil {
			return nil, err
		}
	} else {
		doc = &tree.Document{Trees: s.Tree, Source: s.Name}
	}

	if s.Root != "" {
		doc.Root = s.Root
	}
	s.doc = doc
	return doc, nil
}

// Portable returns the scenario as YAML with its trees inlined, so that a
// recorded run can be replayed without the original tree file.
func (s *Scenario) Portable() ([]byte, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}

	out := *s
	out.TreeFile = ""
	out.Tree = doc.Trees
	out.Root = doc.Root
	out.doc = nil

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("encode scenario: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode scenario: %w", err)
	}
	return buf.Bytes(), nil
}

// tick returns the simulation step, defaulting to 1.
func (s *Scenario) tick() int64 {
	if s.Tick > 0 {
		return s.Tick
	}
	return 1
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
	case s.TreeFile == "" && len(s.Tree) == 0:
		return fmt.Errorf("one of tree_file or tree is required")
	case s.TreeFile != "" && len(s.Tree) > 0:
		return fmt.Errorf("tree_file and tree are mutually exclusive")
	}

	if s.TreeFile != "" {
		if _, err := os.Stat(s.TreeFile); os.IsNotExist(err) {
			return fmt.Errorf("tree file not found: %s", s.TreeFile)
		}
	}

	if s.Tick < 0 {
		return fmt.Errorf("tick must be non-negative")
	}
	if s.Until != nil && *s.Until < 0 {
		return fmt.Errorf("until must be non-negative")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	var last int64
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
		if step.At < last {
			return fmt.Errorf("steps[%d]: at %d is before the previous step (%d)", i, step.At, last)
		}
		last = step.At
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step names exactly one intervention.
func validateStep(index int, st *Step) error {
	if st.At < 0 {
		return fmt.Errorf("steps[%d]: at must be non-negative", index)
	}

	set := 0
	for _, v := range []string{st.SoftStop, st.HardStop, st.SetFlag} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of soft_stop, hard_stop, set_flag is required", index)
	}
	if st.Expect != nil && st.SoftStop == "" {
		return fmt.Errorf("steps[%d]: expect only applies to soft_stop", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Kind != "" && !a.Kind.Valid() {
		return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
	}

	switch a.Type {
	case AssertResult:
		if a.Result == nil {
			return fmt.Errorf("assertions[%d]: result is required for result", index)
		}
	case AssertDone:
		if a.Done == nil {
			return fmt.Errorf("assertions[%d]: done is required for done", index)
		}
	case AssertTraceContains:
		if a.Element == "" {
			return fmt.Errorf("assertions[%d]: element is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Elements) == 0 {
			return fmt.Errorf("assertions[%d]: elements list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Element == "" {
			return fmt.Errorf("assertions[%d]: element is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertFinishedAt:
		if a.At == nil {
			return fmt.Errorf("assertions[%d]: at is required for finished_at", index)
		}
	case AssertCounter:
		if a.Counter == "" {
			return fmt.Errorf("assertions[%d]: counter is required for counter", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for counter", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
