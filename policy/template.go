package policy

import (
	"encoding/json"
	"fmt"

	"github.com/yairfalse/valvo/types"
)

// Template is the wire format for policy templates. Action and enforcement
// tags are plain strings here; parsing validates them against the closed
// enums and fails fast on anything unknown.
type Template struct {
	PolicyID             string         `json:"policy_id"`
	Name                 string         `json:"name"`
	Version              string         `json:"version"`
	Description          string         `json:"description"`
	Rules                []TemplateRule `json:"rules"`
	ComplianceFrameworks []string       `json:"compliance_frameworks"`
	AuditRequired        bool           `json:"audit_required"`
	CreatedBy            string         `json:"created_by"`
	CreatedDate          string         `json:"created_date"`
}

// TemplateRule is one rule entry in a template.
type TemplateRule struct {
	RuleID      string         `json:"rule_id"`
	Type        string         `json:"type"`
	Action      string         `json:"action"`
	Conditions  map[string]any `json:"conditions"`
	Enforcement string         `json:"enforcement"`
}

// ParseTemplate decodes and validates raw template JSON. name is used only
// for error reporting.
func ParseTemplate(name string, data []byte) (*types.Policy, error) {
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, &TemplateParseError{Name: name, Err: err}
	}
	return ParsePolicy(name, tpl)
}

// ParsePolicy converts a decoded template into a Policy, validating every
// tag and decoding each rule's condition bag into its typed form.
func ParsePolicy(name string, tpl Template) (*types.Policy, error) {
	rules := make([]types.PolicyRule, 0, len(tpl.Rules))
	for i, r := range tpl.Rules {
		rule, err := parseRule(r)
		if err != nil {
			return nil, &TemplateParseError{Name: name, Err: fmt.Errorf("rule %d (%s): %w", i, r.RuleID, err)}
		}
		rules = append(rules, rule)
	}

	policy := &types.Policy{
		PolicyID:             tpl.PolicyID,
		Name:                 tpl.Name,
		Version:              tpl.Version,
		Description:          tpl.Description,
		Rules:                rules,
		ComplianceFrameworks: tpl.ComplianceFrameworks,
		AuditRequired:        tpl.AuditRequired,
		CreatedBy:            tpl.CreatedBy,
		CreatedDate:          tpl.CreatedDate,
	}

	if err := policy.Validate(); err != nil {
		return nil, &TemplateParseError{Name: name, Err: err}
	}
	return policy, nil
}

func parseRule(r TemplateRule) (types.PolicyRule, error) {
	action, err := types.ParseAction(r.Action)
	if err != nil {
		return types.PolicyRule{}, err
	}

	mode, err := types.ParseMode(r.Enforcement)
	if err != nil {
		return types.PolicyRule{}, err
	}

	conds, err := types.NewConditions(r.Conditions)
	if err != nil {
		return types.PolicyRule{}, fmt.Errorf("conditions: %w", err)
	}

	return types.PolicyRule{
		RuleID:      r.RuleID,
		Type:        r.Type,
		Action:      action,
		Conditions:  conds,
		Enforcement: mode,
	}, nil
}
