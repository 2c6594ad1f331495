package types

import (
	"fmt"
	"time"
)

// PolicyAction is a corrective action a rule takes when its condition holds.
// The set is closed - templates carrying any other tag fail to parse.
type PolicyAction string

const (
	ActionAllow     PolicyAction = "allow"
	ActionDeny      PolicyAction = "deny"
	ActionFlag      PolicyAction = "flag"
	ActionAnonymize PolicyAction = "anonymize"
	ActionEscalate  PolicyAction = "escalate"
	ActionRequire   PolicyAction = "require"
	ActionEncrypt   PolicyAction = "encrypt"
	ActionLog       PolicyAction = "log"
	ActionNotify    PolicyAction = "notify"
	ActionValidate  PolicyAction = "validate"
	ActionRestrict  PolicyAction = "restrict"
	ActionDelete    PolicyAction = "delete"
)

// AllActions lists every valid action tag in a stable order.
var AllActions = []PolicyAction{
	ActionAllow, ActionDeny, ActionFlag, ActionAnonymize,
	ActionEscalate, ActionRequire, ActionEncrypt, ActionLog,
	ActionNotify, ActionValidate, ActionRestrict, ActionDelete,
}

// ParseAction validates an action tag from a template.
func ParseAction(s string) (PolicyAction, error) {
	for _, a := range AllActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown policy action %q", s)
}

// EnforcementMode describes when a rule is meant to run. It does not change
// evaluation order; it round-trips through storage and API responses.
type EnforcementMode string

const (
	ModeRealTime       EnforcementMode = "real_time"
	ModePreProcessing  EnforcementMode = "pre_processing"
	ModePostProcessing EnforcementMode = "post_processing"
	ModeScheduled      EnforcementMode = "scheduled"
	ModePreDecision    EnforcementMode = "pre_decision"
)

var allModes = []EnforcementMode{
	ModeRealTime, ModePreProcessing, ModePostProcessing,
	ModeScheduled, ModePreDecision,
}

// ParseMode validates an enforcement mode tag from a template.
func ParseMode(s string) (EnforcementMode, error) {
	for _, m := range allModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown enforcement mode %q", s)
}

// PolicyRule pairs a condition with a corrective action. Rules are owned by
// their parent policy and immutable once loaded.
type PolicyRule struct {
	RuleID      string          `json:"rule_id"`
	Type        string          `json:"type"`
	Action      PolicyAction    `json:"action"`
	Conditions  Conditions      `json:"conditions"`
	Enforcement EnforcementMode `json:"enforcement"`
}

// Policy is a named, versioned, ordered set of rules plus compliance
// metadata. Rule order is evaluation order.
type Policy struct {
	PolicyID             string       `json:"policy_id"`
	Name                 string       `json:"name"`
	Version              string       `json:"version"`
	Description          string       `json:"description"`
	Rules                []PolicyRule `json:"rules"`
	ComplianceFrameworks []string     `json:"compliance_frameworks"`
	AuditRequired        bool         `json:"audit_required"`
	CreatedBy            string       `json:"created_by"`
	CreatedDate          string       `json:"created_date"`
}

// Validate ensures the policy has required fields and unique rule ids.
func (p *Policy) Validate() error {
	if p.PolicyID == "" {
		return fmt.Errorf("policy id cannot be empty")
	}
	if p.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if r.RuleID == "" {
			return fmt.Errorf("policy %s: rule id cannot be empty", p.PolicyID)
		}
		if seen[r.RuleID] {
			return fmt.Errorf("policy %s: duplicate rule id %q", p.PolicyID, r.RuleID)
		}
		seen[r.RuleID] = true
	}
	return nil
}

// Timestamp formats an audit/result timestamp. All enforcement timestamps
// are RFC3339 UTC strings.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
