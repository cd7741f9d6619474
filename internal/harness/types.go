package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step      int            `json:"step"`
	Operation string         `json:"operation"`
	Status    string         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Scenario string
	Pass     bool
	Trace    []TraceEvent
	// Failures lists expectation mismatches, one message per failed step.
	Failures []string
}
