package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	log, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return NewEngine(log)
}

func registerTemplate(t *testing.T, e *Engine, tpl Template) {
	t.Helper()
	p, err := ParsePolicy(tpl.PolicyID, tpl)
	require.NoError(t, err)
	require.NoError(t, e.Register(context.Background(), p))
}

func privacyTemplate() Template {
	return Template{
		PolicyID: "data_privacy_001",
		Name:     "Customer Data Privacy",
		Version:  "1.0",
		Rules: []TemplateRule{
			{
				RuleID:      "pii_detection",
				Type:        "data_classification",
				Action:      "anonymize",
				Conditions:  map[string]any{"data_types": []any{"email", "phone"}},
				Enforcement: "real_time",
			},
			{
				RuleID:      "consent_check",
				Type:        "privacy",
				Action:      "require",
				Conditions:  map[string]any{"consent_required": true},
				Enforcement: "pre_decision",
			},
		},
		ComplianceFrameworks: []string{"GDPR"},
		AuditRequired:        true,
	}
}

func financialTemplate() Template {
	return Template{
		PolicyID: "financial_compliance_001",
		Name:     "Financial Transaction Compliance",
		Version:  "1.0",
		Rules: []TemplateRule{
			{
				RuleID:      "transaction_monitoring",
				Type:        "financial_compliance",
				Action:      "flag",
				Conditions:  map[string]any{"threshold_amounts": map[string]any{"cash": 10000.0, "wire": 10000.0}},
				Enforcement: "real_time",
			},
		},
		AuditRequired: true,
	}
}

func TestEnforce_UnknownPolicy(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.Enforce(context.Background(), "nope", map[string]any{}, nil)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
	assert.Nil(t, results)
}

func TestEnforce_OneResultPerRule(t *testing.T) {
	e := newTestEngine(t)
	registerTemplate(t, e, privacyTemplate())

	record := map[string]any{
		"customer_email":    "sarah.johnson@retailcorp.com",
		"phone_number":      "555-123-4567",
		"consent_timestamp": "2024-01-15T10:00:00Z",
	}

	results, err := e.Enforce(context.Background(), "data_privacy_001", record, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// first rule: PII present, anonymize fires
	assert.Equal(t, "pii_detection", results[0].RuleID)
	assert.Equal(t, types.ActionAnonymize, results[0].ActionTaken)
	assert.True(t, results[0].Success)

	assert.Equal(t, true, results[0].Metadata["anonymized"])
	assert.ElementsMatch(t, []string{"customer_email", "phone_number"}, results[0].Metadata["fields_anonymized"])

	// the input record is never mutated
	assert.Equal(t, "sarah.johnson@retailcorp.com", record["customer_email"])

	// second rule: consent present, condition does not hold, allow by default
	assert.Equal(t, "consent_check", results[1].RuleID)
	assert.Equal(t, types.ActionAllow, results[1].ActionTaken)
	assert.Equal(t, "Rule conditions not met, allowing by default", results[1].Message)
}

func TestEnforce_FinancialScenarios(t *testing.T) {
	e := newTestEngine(t)
	registerTemplate(t, e, financialTemplate())
	ctx := context.Background()

	results, err := e.Enforce(ctx, "financial_compliance_001", map[string]any{"wire_amount": 15000.0}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ActionFlag, results[0].ActionTaken)
	assert.True(t, results[0].Success)

	results, err = e.Enforce(ctx, "financial_compliance_001", map[string]any{"wire_amount": 500.0}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ActionAllow, results[0].ActionTaken)
}

func TestEnforce_RuleFailureDoesNotAbortBatch(t *testing.T) {
	log, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	e := NewEngine(log)
	ctx := context.Background()

	// Validate only checks rule ids, so an out-of-enum action slips into
	// the store and fails at execution time.
	conds, err := types.NewConditions(map[string]any{})
	require.NoError(t, err)
	p := &types.Policy{
		PolicyID: "mixed_001",
		Name:     "mixed",
		Rules: []types.PolicyRule{
			{RuleID: "broken", Action: types.PolicyAction("quarantine"), Conditions: conds, Enforcement: types.ModeRealTime},
			{RuleID: "always_log", Action: types.ActionLog, Conditions: conds, Enforcement: types.ModeRealTime},
		},
		AuditRequired: true,
	}
	require.NoError(t, e.Register(ctx, p))

	results, err := e.Enforce(ctx, "mixed_001", map[string]any{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, types.ActionDeny, results[0].ActionTaken)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Message, "Rule enforcement failed")
	assert.Contains(t, results[0].Message, "unhandled policy action")
	assert.NotNil(t, results[0].Metadata)

	// the rule after the failure still runs
	assert.Equal(t, types.ActionLog, results[1].ActionTaken)
	assert.True(t, results[1].Success)

	// both outcomes, failed one included, land in the audit trail
	events, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].Success)
	assert.True(t, events[1].Success)
}

func TestEnforce_AppendsAuditWhenRequired(t *testing.T) {
	log, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	e := NewEngine(log)
	registerTemplate(t, e, privacyTemplate())
	ctx := context.Background()

	_, err = e.Enforce(ctx, "data_privacy_001", map[string]any{"customer_email": "a@b.com"}, nil)
	require.NoError(t, err)

	events, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "pii_detection", events[0].RuleID)
	assert.Equal(t, "consent_check", events[1].RuleID)
	assert.Less(t, events[0].Sequence, events[1].Sequence)
}

func TestEnforce_NoAuditWhenNotRequired(t *testing.T) {
	log, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	e := NewEngine(log)

	tpl := privacyTemplate()
	tpl.AuditRequired = false
	registerTemplate(t, e, tpl)
	ctx := context.Background()

	_, err = e.Enforce(ctx, "data_privacy_001", map[string]any{"customer_email": "a@b.com"}, nil)
	require.NoError(t, err)

	events, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEnforce_UnknownPolicyLeavesAuditUntouched(t *testing.T) {
	log, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	e := NewEngine(log)

	_, err = e.Enforce(context.Background(), "ghost", map[string]any{}, nil)
	require.ErrorIs(t, err, ErrPolicyNotFound)

	events, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRegister_Duplicate(t *testing.T) {
	e := newTestEngine(t)
	registerTemplate(t, e, privacyTemplate())

	p, err := ParsePolicy("data_privacy_001", privacyTemplate())
	require.NoError(t, err)
	assert.ErrorContains(t, e.Register(context.Background(), p), "already registered")
	assert.Equal(t, 1, e.PolicyCount())
}

func TestCreateFromTemplate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tpl := privacyTemplate()
	id1, err := e.CreateFromTemplate(ctx, "data_privacy", tpl)
	require.NoError(t, err)
	assert.Contains(t, id1, "data_privacy_")

	p, ok := e.Policy(id1)
	require.True(t, ok)
	assert.NotEmpty(t, p.CreatedDate)

	// a second creation in the same second still gets a distinct id
	id2, err := e.CreateFromTemplate(ctx, "data_privacy", privacyTemplate())
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, e.PolicyCount())
}

func TestCreateFromTemplate_ConcurrentCreationsGetUniqueIDs(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = e.CreateFromTemplate(ctx, "data_privacy", privacyTemplate())
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "id %s assigned twice", ids[i])
		seen[ids[i]] = true
	}
	assert.Equal(t, n, e.PolicyCount())
}

func TestCreateFromTemplate_ParseFailureLeavesStoreUntouched(t *testing.T) {
	e := newTestEngine(t)

	tpl := privacyTemplate()
	tpl.Rules[0].Action = "quarantine"

	_, err := e.CreateFromTemplate(context.Background(), "data_privacy", tpl)
	var perr *TemplateParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, e.PolicyCount())
}

func TestPolicyStatus(t *testing.T) {
	e := newTestEngine(t)
	registerTemplate(t, e, financialTemplate())
	ctx := context.Background()

	_, err := e.Enforce(ctx, "financial_compliance_001", map[string]any{"wire_amount": 15000.0}, nil)
	require.NoError(t, err)
	_, err = e.Enforce(ctx, "financial_compliance_001", map[string]any{"wire_amount": 100.0}, nil)
	require.NoError(t, err)

	status, err := e.PolicyStatus(ctx, "financial_compliance_001")
	require.NoError(t, err)
	assert.Equal(t, "financial_compliance_001", status.PolicyID)
	assert.Equal(t, 2, status.TotalEnforcements)
	assert.Equal(t, 2, status.Successful)
	assert.Equal(t, 0, status.Failed)
	assert.NotEmpty(t, status.LastEnforcement)

	_, err = e.PolicyStatus(ctx, "ghost")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestEnforce_TimestampsAreRFC3339(t *testing.T) {
	e := newTestEngine(t)
	registerTemplate(t, e, financialTemplate())

	results, err := e.Enforce(context.Background(), "financial_compliance_001", map[string]any{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = time.Parse(time.RFC3339, results[0].Timestamp)
	assert.NoError(t, err)
}
