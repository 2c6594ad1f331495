package types

// EnforcementResult is the outcome of evaluating one rule against one
// record. Never mutated after creation.
type EnforcementResult struct {
	PolicyID    string         `json:"policy_id"`
	RuleID      string         `json:"rule_id"`
	ActionTaken PolicyAction   `json:"action_taken"`
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	Timestamp   string         `json:"timestamp"`
	Metadata    map[string]any `json:"metadata"`
}

// AuditEvent is the persisted projection of an EnforcementResult. The audit
// log is append-only; sequence numbers are monotonic per process and define
// the canonical order.
type AuditEvent struct {
	Sequence    int64          `json:"sequence"`
	Timestamp   string         `json:"timestamp"`
	PolicyID    string         `json:"policy_id"`
	RuleID      string         `json:"rule_id"`
	ActionTaken string         `json:"action_taken"`
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AuditEventFrom flattens an enforcement result for the audit log.
// Sequence is assigned by the log on append.
func AuditEventFrom(r EnforcementResult) AuditEvent {
	return AuditEvent{
		Timestamp:   r.Timestamp,
		PolicyID:    r.PolicyID,
		RuleID:      r.RuleID,
		ActionTaken: string(r.ActionTaken),
		Success:     r.Success,
		Message:     r.Message,
		Metadata:    r.Metadata,
	}
}
