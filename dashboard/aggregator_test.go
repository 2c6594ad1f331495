package dashboard

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/sdlc"
	"github.com/yairfalse/valvo/types"
)

type fixedCounter int

func (c fixedCounter) PolicyCount() int { return int(c) }

func openTestLog(t *testing.T) *audit.Log {
	t.Helper()
	log, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func appendEvent(t *testing.T, log *audit.Log, policyID, action string, success bool) {
	t.Helper()
	err := log.Append(context.Background(), types.AuditEvent{
		Timestamp:   "2026-08-28T10:00:00Z",
		PolicyID:    policyID,
		RuleID:      "r1",
		ActionTaken: action,
		Success:     success,
	})
	require.NoError(t, err)
}

func TestSummarize_EmptyTrail(t *testing.T) {
	log := openTestLog(t)
	agg := NewAggregator(log, fixedCounter(3), nil)

	summary, err := agg.Summarize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalPolicies)
	assert.Equal(t, 0, summary.TotalEnforcement)
	assert.Equal(t, 0.0, summary.ComplianceRate)
	assert.Equal(t, "no_data", summary.ComplianceStatus)
	assert.Empty(t, summary.RecentEvents)
	assert.Nil(t, summary.SDLC)
	assert.NotEmpty(t, summary.GeneratedAt)
}

func TestSummarize_Breakdowns(t *testing.T) {
	log := openTestLog(t)
	agg := NewAggregator(log, fixedCounter(2), nil)

	appendEvent(t, log, "p1", "anonymize", true)
	appendEvent(t, log, "p1", "flag", true)
	appendEvent(t, log, "p1", "deny", false)
	appendEvent(t, log, "p2", "allow", true)

	summary, err := agg.Summarize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalEnforcement)
	assert.Equal(t, 3, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 75.0, summary.ComplianceRate)
	assert.Equal(t, "warning", summary.ComplianceStatus)

	assert.Equal(t, PolicyBreakdown{Total: 3, Success: 2, Failed: 1}, summary.PolicyStats["p1"])
	assert.Equal(t, PolicyBreakdown{Total: 1, Success: 1}, summary.PolicyStats["p2"])

	assert.Equal(t, 1, summary.ActionStats["anonymize"])
	assert.Equal(t, 1, summary.ActionStats["flag"])
	assert.Equal(t, 1, summary.ActionStats["deny"])
	assert.Equal(t, 1, summary.ActionStats["allow"])
}

func TestSummarize_RecentWindow(t *testing.T) {
	log := openTestLog(t)
	agg := NewAggregator(log, fixedCounter(1), nil)

	for i := 0; i < 15; i++ {
		appendEvent(t, log, fmt.Sprintf("p%d", i), "log", true)
	}

	summary, err := agg.Summarize(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.RecentEvents, 10)
	assert.Equal(t, "p5", summary.RecentEvents[0].PolicyID)
	assert.Equal(t, "p14", summary.RecentEvents[9].PolicyID)
}

func TestStatusBand(t *testing.T) {
	tests := []struct {
		rate  float64
		total int
		want  string
	}{
		{0, 0, "no_data"},
		{100, 10, "excellent"},
		{95, 10, "excellent"},
		{94.9, 10, "good"},
		{85, 10, "good"},
		{84.9, 10, "warning"},
		{70, 10, "warning"},
		{69.9, 10, "critical"},
		{0, 10, "critical"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusBand(tt.rate, tt.total), "rate %.1f total %d", tt.rate, tt.total)
	}
}

func TestSummarize_WithSDLC(t *testing.T) {
	log := openTestLog(t)
	registry := sdlc.NewRegistry()
	_, err := registry.CreateProject(context.Background(), sdlc.Project{Name: "fraud-model", Owner: "ml team"})
	require.NoError(t, err)

	agg := NewAggregator(log, fixedCounter(0), registry)
	summary, err := agg.Summarize(context.Background())
	require.NoError(t, err)

	require.NotNil(t, summary.SDLC)
	assert.Equal(t, 1, summary.SDLC.TotalProjects)
}
