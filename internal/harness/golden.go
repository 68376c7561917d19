package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pos/internal/attr"
)

// Snapshot captures what a scenario did and the master table it left.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot to bare values for canonical JSON.
// Tombstones are kept since they carry the sequence that hides stale
// inserts.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Result.Steps))
	for i, st := range s.Result.Steps {
		m := map[string]any{
			"index":   st.Index,
			"op":      st.Op,
			"outcome": st.Outcome,
		}
		if st.Store != "" {
			m["store"] = st.Store
		}
		if st.OrderID != "" {
			m["order_id"] = st.OrderID
		}
		if st.Seq != "" {
			m["seq"] = st.Seq
		}
		steps[i] = m
	}

	master := make([]any, len(s.Result.Master))
	for i, row := range s.Result.Master {
		m := map[string]any{
			"key":      row.Key,
			"sequence": row.Sequence,
			"source":   row.Source,
			"deleted":  row.Deleted,
		}
		if row.Record != nil {
			m["record"] = map[string]any(row.Record)
		}
		master[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"master":        master,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return attr.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Result: result}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
