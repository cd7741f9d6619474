package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs the scenario and compares its trace against the
// golden file testdata/golden/<scenario name>.golden. Regenerate with
// `-update` as usual for goldie.
func RunWithGolden(t *testing.T, r *Runner, sc *Scenario) *Result {
	t.Helper()

	res, err := r.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	for _, f := range res.Failures {
		t.Error(f)
	}

	data, err := json.MarshalIndent(res.Trace, "", "  ")
	if err != nil {
		t.Fatalf("marshaling trace: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, sc.Name, data)
	return res
}
