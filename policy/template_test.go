package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/valvo/types"
)

func validTemplate() Template {
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
		},
		ComplianceFrameworks: []string{"GDPR", "CCPA"},
		AuditRequired:        true,
	}
}

func TestParsePolicy_Valid(t *testing.T) {
	p, err := ParsePolicy("data_privacy", validTemplate())
	require.NoError(t, err)

	assert.Equal(t, "data_privacy_001", p.PolicyID)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, types.ActionAnonymize, p.Rules[0].Action)
	assert.Equal(t, types.ModeRealTime, p.Rules[0].Enforcement)
	assert.Equal(t, types.CondPII, p.Rules[0].Conditions.Kind)
}

func TestParsePolicy_UnknownAction(t *testing.T) {
	tpl := validTemplate()
	tpl.Rules[0].Action = "quarantine"

	_, err := ParsePolicy("data_privacy", tpl)
	var perr *TemplateParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "data_privacy", perr.Name)
	assert.Contains(t, err.Error(), "pii_detection")
}

func TestParsePolicy_UnknownEnforcementMode(t *testing.T) {
	tpl := validTemplate()
	tpl.Rules[0].Enforcement = "eventually"

	_, err := ParsePolicy("data_privacy", tpl)
	var perr *TemplateParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParsePolicy_MalformedConditions(t *testing.T) {
	tpl := validTemplate()
	tpl.Rules[0].Conditions = map[string]any{"consent_required": "yes"}

	_, err := ParsePolicy("data_privacy", tpl)
	var perr *TemplateParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "conditions")
}

func TestParsePolicy_DuplicateRuleIDs(t *testing.T) {
	tpl := validTemplate()
	tpl.Rules = append(tpl.Rules, tpl.Rules[0])

	_, err := ParsePolicy("data_privacy", tpl)
	assert.Error(t, err)
}

func TestParseTemplate_MalformedJSON(t *testing.T) {
	_, err := ParseTemplate("broken", []byte("{not json"))

	var perr *TemplateParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "broken", perr.Name)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestParseTemplate_RoundTripConditions(t *testing.T) {
	raw := []byte(`{
		"policy_id": "financial_compliance_001",
		"name": "Financial Transaction Compliance",
		"version": "1.0",
		"audit_required": true,
		"rules": [
			{
				"rule_id": "transaction_monitoring",
				"type": "financial_compliance",
				"action": "flag",
				"conditions": {"threshold_amounts": {"cash": 10000, "wire": 10000}},
				"enforcement": "real_time"
			}
		]
	}`)

	p, err := ParseTemplate("financial_compliance", raw)
	require.NoError(t, err)

	conds := p.Rules[0].Conditions
	assert.Equal(t, types.CondFinancial, conds.Kind)
	assert.Equal(t, 10000.0, conds.Thresholds["cash"])
	assert.Equal(t, 10000.0, conds.Thresholds["wire"])
}
