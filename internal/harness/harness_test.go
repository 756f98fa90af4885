package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name: "shop_test",
		Source: SourceSpec{
			Name:          "shop",
			KeyFields:     []string{"title"},
			CompareFields: []string{"price"},
		},
		Steps: steps,
	}
}

func items(pairs ...string) []map[string]any {
	out := make([]map[string]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]any{"title": pairs[i], "price": pairs[i+1]})
	}
	return out
}

func TestRun_BaselineThenChanges(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$10", "Widget", "$5"), Expect: &Expect{Status: "baseline"}},
		Step{
			Records: items("Lamp", "$12", "Gadget", "$7"),
			Expect: &Expect{
				Status:   "changed",
				New:      []string{"Gadget"},
				Removed:  []string{"Widget"},
				Modified: []string{"Lamp"},
				Summary:  "1 new, 1 removed, 1 modified",
			},
		},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Trace, 2)

	assert.Equal(t, "shop_test-0001", result.Trace[0].RunID)
	assert.Equal(t, []string{"baseline"}, result.Trace[0].Events)
	assert.EqualValues(t, 1, result.Trace[0].SnapshotID)
	assert.EqualValues(t, 2, result.Trace[1].SnapshotID)
	assert.Equal(t, []string{"report"}, result.Trace[1].Events)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$10"), Expect: &Expect{Status: "changed"}},
		Step{Records: items("Lamp", "$10", "Gadget", "$7"), Expect: &Expect{Status: "changed", New: []string{"Widget"}}},
		Step{Records: items("Lamp", "$10", "Gadget", "$7"), Expect: &Expect{Status: "unchanged", Removed: []string{}}},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[0]: expected status changed, got baseline")
	assert.Contains(t, result.Errors[1], "steps[1]: expected new [Widget], got [Gadget]")
}

func TestRun_EmptyListRequiresEmptyBucket(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$10")},
		Step{Records: items("Lamp", "$10", "Gadget", "$7"), Expect: &Expect{Status: "changed", New: []string{}}},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected new [], got [Gadget]")
}

func TestRun_InjectedFailures(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$10"), Fail: FailSave, Expect: &Expect{Status: "failed"}},
		Step{Records: items("Lamp", "$10"), Expect: &Expect{Status: "baseline"}},
		Step{Records: items("Lamp", "$11"), Fail: FailLatest, Expect: &Expect{Status: "failed"}},
		Step{Records: items("Lamp", "$11"), Fail: FailPrune, Expect: &Expect{Status: "changed"}},
	)
	scenario.Assertions = []Assertion{
		{Type: AssertSnapshotCount, Count: 2},
		{Type: AssertNotificationCount, Kind: "baseline", Count: 1},
		{Type: AssertNotificationCount, Kind: "report", Count: 1},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	assert.Equal(t, "STORAGE", result.Trace[0].Error)
	assert.Empty(t, result.Trace[0].Events, "baseline notification is sent only after a successful save")
	assert.Equal(t, "STORAGE", result.Trace[2].Error)
	assert.Empty(t, result.Trace[3].Error)
	assert.Zero(t, result.Trace[3].Pruned)
}

func TestRun_CleaningAndSkipEmpty(t *testing.T) {
	scenario := shopScenario(
		Step{
			Records: []map[string]any{
				{"title": "Blue  Lamp", "price": "$10"},
				{"title": "Blue Lamp ", "price": "$11"},
				{"title": "  ", "price": "$3"},
			},
			Expect: &Expect{Status: "baseline"},
		},
		Step{Records: nil, Expect: &Expect{Status: "skipped"}},
		Step{Records: items("", "$9"), Expect: &Expect{Status: "skipped"}},
		Step{Records: items("Blue Lamp", "$12"), Expect: &Expect{Status: "changed", Modified: []string{"Blue Lamp"}}},
	)
	scenario.Source.RequiredFields = []string{"title"}
	scenario.Source.NormalizeFields = []string{"title"}
	scenario.Source.DedupeByKey = true
	scenario.Source.SkipEmpty = true
	scenario.Assertions = []Assertion{
		{Type: AssertSnapshotCount, Count: 2},
		{Type: AssertLatestIDs, IDs: []string{"Blue Lamp"}},
		{Type: AssertStatusSequence, Statuses: []string{"baseline", "skipped", "skipped", "changed"}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 1, result.Trace[0].Items)
	assert.Empty(t, result.Trace[1].Events, "skipped cycles notify nobody")
	assert.Zero(t, result.Trace[1].SnapshotID)
}

func TestRun_RetentionPrunes(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$1")},
		Step{Records: items("Lamp", "$2")},
		Step{Records: items("Lamp", "$3")},
		Step{Records: items("Lamp", "$4")},
	)
	scenario.Source.Retention = 2
	scenario.Assertions = []Assertion{
		{Type: AssertSnapshotCount, Count: 2},
		{Type: AssertStatusSequence, Statuses: []string{"baseline", "changed", "changed", "changed"}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.EqualValues(t, 1, result.Trace[2].Pruned)
	assert.EqualValues(t, 1, result.Trace[3].Pruned)
}

func TestRun_AssertionFailures(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$10", "Widget", "$5")},
	)
	scenario.Assertions = []Assertion{
		{Type: AssertSnapshotCount, Count: 3},
		{Type: AssertLatestIDs, IDs: []string{"Widget", "Lamp"}},
		{Type: AssertNotificationCount, Kind: "report", Count: 1},
		{Type: AssertStatusSequence, Statuses: []string{"changed"}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Expected: 3 snapshot(s)")
	assert.Contains(t, result.Errors[1], "Actual: [Lamp Widget]")
	assert.Contains(t, result.Errors[2], "Actual: 0 report event(s)")
	assert.Contains(t, result.Errors[3], "Expected: changed")
}

func TestRun_LatestIDsWithoutSnapshot(t *testing.T) {
	scenario := shopScenario(
		Step{Records: items("Lamp", "$10"), Fail: FailSave},
	)
	scenario.Assertions = []Assertion{{Type: AssertLatestIDs, IDs: []string{"Lamp"}}}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no snapshot")
}

func TestRun_RejectsMalformedRecords(t *testing.T) {
	scenario := shopScenario(
		Step{Records: []map[string]any{{"title": "Lamp", "tags": []any{"a"}}}},
	)

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
}

func TestRun_InvalidScenario(t *testing.T) {
	_, err := Run(context.Background(), nil)
	require.Error(t, err)

	_, err = Run(context.Background(), &Scenario{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scenario")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertSnapshotCount,
		Expected: "2 snapshot(s)",
		Actual:   "1 snapshot(s)",
		Trace: []TraceEvent{
			{Step: 1, RunID: "s-0001", Status: "baseline"},
			{Step: 2, RunID: "s-0002", Status: "failed", Summary: "1 new", Error: "STORAGE"},
		},
	}

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Assertion failed: snapshot_count\n"))
	assert.Contains(t, msg, "  Expected: 2 snapshot(s)\n")
	assert.Contains(t, msg, "  Actual: 1 snapshot(s)\n")
	assert.Contains(t, msg, "  [1] s-0001 baseline\n")
	assert.Contains(t, msg, "  [2] s-0002 failed (1 new) error=STORAGE\n")
}
