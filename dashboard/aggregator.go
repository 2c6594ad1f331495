// Package dashboard derives compliance reporting from the audit trail.
// It never mutates the audit log or the policy store; every summary is
// recomputed on demand and safe for concurrent readers.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/sdlc"
	"github.com/yairfalse/valvo/types"
)

// recentWindow is how many trailing audit events a summary carries.
const recentWindow = 10

// PolicyCounter exposes the size of the policy store.
type PolicyCounter interface {
	PolicyCount() int
}

// PolicyBreakdown counts outcomes for one policy.
type PolicyBreakdown struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Summary is the compliance dashboard payload.
type Summary struct {
	TotalPolicies    int                        `json:"total_policies"`
	TotalEnforcement int                        `json:"total_enforcements"`
	Successful       int                        `json:"successful_enforcements"`
	Failed           int                        `json:"failed_enforcements"`
	ComplianceRate   float64                    `json:"compliance_rate"`
	ComplianceStatus string                     `json:"compliance_status"`
	PolicyStats      map[string]PolicyBreakdown `json:"policy_statistics"`
	ActionStats      map[string]int             `json:"action_statistics"`
	RecentEvents     []types.AuditEvent         `json:"recent_events"`
	SDLC             *sdlc.Stats                `json:"sdlc,omitempty"`
	GeneratedAt      string                     `json:"generated_at"`
}

// Aggregator builds summaries from the audit log and the policy store.
type Aggregator struct {
	audit    *audit.Log
	policies PolicyCounter
	sdlc     *sdlc.Registry // optional
}

// NewAggregator creates a dashboard aggregator. registry may be nil when
// SDLC reporting is not wanted.
func NewAggregator(log *audit.Log, policies PolicyCounter, registry *sdlc.Registry) *Aggregator {
	return &Aggregator{audit: log, policies: policies, sdlc: registry}
}

// Summarize recomputes the full dashboard from the audit trail.
func (a *Aggregator) Summarize(ctx context.Context) (Summary, error) {
	events, err := a.audit.ReadAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read audit log: %w", err)
	}

	summary := Summary{
		TotalPolicies:    a.policies.PolicyCount(),
		TotalEnforcement: len(events),
		PolicyStats:      make(map[string]PolicyBreakdown),
		ActionStats:      make(map[string]int),
		RecentEvents:     recent(events),
		GeneratedAt:      types.Timestamp(time.Now()),
	}

	for _, event := range events {
		breakdown := summary.PolicyStats[event.PolicyID]
		breakdown.Total++
		if event.Success {
			summary.Successful++
			breakdown.Success++
		} else {
			summary.Failed++
			breakdown.Failed++
		}
		summary.PolicyStats[event.PolicyID] = breakdown
		summary.ActionStats[event.ActionTaken]++
	}

	if summary.TotalEnforcement > 0 {
		summary.ComplianceRate = float64(summary.Successful) / float64(summary.TotalEnforcement) * 100
	}
	summary.ComplianceStatus = statusBand(summary.ComplianceRate, summary.TotalEnforcement)

	if a.sdlc != nil {
		stats := a.sdlc.Stats()
		summary.SDLC = &stats
	}
	return summary, nil
}

// recent returns the trailing window of events, newest last, without
// aliasing the source slice.
func recent(events []types.AuditEvent) []types.AuditEvent {
	start := 0
	if len(events) > recentWindow {
		start = len(events) - recentWindow
	}
	out := make([]types.AuditEvent, len(events)-start)
	copy(out, events[start:])
	return out
}

// statusBand maps a compliance rate to its reporting band. An empty trail
// carries no evidence either way and reports no_data rather than critical.
func statusBand(rate float64, total int) string {
	switch {
	case total == 0:
		return "no_data"
	case rate >= 95:
		return "excellent"
	case rate >= 85:
		return "good"
	case rate >= 70:
		return "warning"
	default:
		return "critical"
	}
}
