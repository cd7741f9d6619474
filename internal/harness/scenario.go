package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/routecast/routecast/internal/protocol"
)

// SeedDoc is a document created in the mediating store before any step
// runs. The ID becomes the document id in its collection.
type SeedDoc struct {
	ID  string         `yaml:"id"`
	Doc map[string]any `yaml:"doc"`
}

// Step is one operation submitted through the client.
type Step struct {
	Operation string         `yaml:"operation"`
	Payload   map[string]any `yaml:"payload"`

	// Expect is the envelope outcome the step requires: "completed" or
	// "error". Empty defaults to "completed".
	Expect string `yaml:"expect"`

	// ErrorContains, when set on an error step, must be a substring of
	// the reported error message.
	ErrorContains string `yaml:"error_contains"`
}

// Scenario is a declarative end-to-end exercise of the broker.
type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Routes      []SeedDoc `yaml:"routes"`
	Orders      []SeedDoc `yaml:"orders"`
	Steps       []Step    `yaml:"steps"`
}

// LoadScenario reads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks structural soundness before the scenario is run.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	for i, step := range s.Steps {
		if !protocol.Operation(step.Operation).Known() {
			return fmt.Errorf("step %d: unknown operation %q", i, step.Operation)
		}
		switch step.Expect {
		case "", "completed", "error":
		default:
			return fmt.Errorf("step %d: expect must be \"completed\" or \"error\", got %q", i, step.Expect)
		}
		if step.ErrorContains != "" && step.Expect != "error" {
			return fmt.Errorf("step %d: error_contains requires expect: error", i)
		}
	}
	return nil
}

// expectOutcome normalizes the Expect field.
func (st Step) expectOutcome() string {
	if st.Expect == "" {
		return "completed"
	}
	return st.Expect
}
