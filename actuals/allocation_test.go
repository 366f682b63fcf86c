package actuals_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/actuals-engine/actuals"
)

func activity(project, h string) actuals.MatchedActivity {
	return actuals.MatchedActivity{ActivityName: "work on " + project, ProjectName: project, Hours: hours(h), Confidence: 0.9}
}

func TestAggregate_SumsPerProject(t *testing.T) {
	got := actuals.Aggregate([]actuals.MatchedActivity{
		activity("A", "3"),
		activity("A", "2"),
		activity("B", "5"),
	})

	require.Len(t, got, 2)
	assert.True(t, got["A"].Equal(hours("5")))
	assert.True(t, got["B"].Equal(hours("5")))
	assert.Equal(t, []string{"A", "B"}, got.Projects())
}

func TestAggregate_MissingProjectGoesToUnassigned(t *testing.T) {
	got := actuals.Aggregate([]actuals.MatchedActivity{activity("", "1.5"), activity("", "0.25")})

	assert.True(t, got[actuals.UnassignedProject].Equal(hours("1.75")))
}

func TestAggregate_Empty(t *testing.T) {
	got := actuals.Aggregate(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNewAllocationDraft_PinnedBypassesAggregation(t *testing.T) {
	// GIVEN: Oracle returns activities on two projects, total 9h
	result := &actuals.MatchResult{
		MatchedActivities: []actuals.MatchedActivity{activity("A", "4"), activity("B", "3")},
		TotalMatchedHours: hours("9"),
	}

	// WHEN: The caller pinned project "A"
	draft := actuals.NewAllocationDraft(result, "A")

	// THEN: One entry, carrying the oracle's total, not the per-project sum
	assert.Equal(t, actuals.ModeSingle, draft.Mode())
	require.Len(t, draft.Allocation, 1)
	assert.True(t, draft.Allocation["A"].Equal(hours("9")))
}

func TestNewAllocationDraft_UnpinnedIsMultiEvenForOneProject(t *testing.T) {
	result := &actuals.MatchResult{
		MatchedActivities: []actuals.MatchedActivity{activity("A", "4")},
		TotalMatchedHours: hours("4"),
	}

	draft := actuals.NewAllocationDraft(result, "")

	assert.Equal(t, actuals.ModeMulti, draft.Mode(), "the pin flag decides the mode, not the data shape")
	assert.True(t, draft.Total().Equal(hours("4")))
}
