package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/valvo/audit"
	"github.com/yairfalse/valvo/executor"
	"github.com/yairfalse/valvo/telemetry"
	"github.com/yairfalse/valvo/types"
)

// Engine evaluates policies against input records and owns the policy
// store. The store is read-mostly: CreateFromTemplate and Register are the
// only mutators and are serialized against concurrent enforcement reads.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*types.Policy
	audit    *audit.Log
	logger   *telemetry.Logger
	tracer   trace.Tracer
}

// Status reports per-policy enforcement totals derived from the audit log.
type Status struct {
	PolicyID             string   `json:"policy_id"`
	PolicyName           string   `json:"policy_name"`
	TotalEnforcements    int      `json:"total_enforcements"`
	Successful           int      `json:"successful_enforcements"`
	Failed               int      `json:"failed_enforcements"`
	LastEnforcement      string   `json:"last_enforcement,omitempty"`
	ComplianceFrameworks []string `json:"compliance_frameworks"`
}

// NewEngine creates a policy engine backed by the given audit log.
func NewEngine(auditLog *audit.Log) *Engine {
	return &Engine{
		policies: make(map[string]*types.Policy),
		audit:    auditLog,
		logger:   telemetry.NewLogger("policy-engine"),
		tracer:   otel.Tracer("policy-engine"),
	}
}

// Register adds a parsed policy to the store.
func (e *Engine) Register(ctx context.Context, policy *types.Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[policy.PolicyID]; exists {
		return fmt.Errorf("policy %s already registered", policy.PolicyID)
	}
	e.policies[policy.PolicyID] = policy

	e.logger.LogPolicyLoaded(ctx, policy.PolicyID, policy.Name, len(policy.Rules))
	if telemetry.PoliciesLoaded != nil {
		telemetry.PoliciesLoaded.Record(ctx, int64(len(e.policies)))
	}
	return nil
}

// Policy returns a registered policy by id.
func (e *Engine) Policy(policyID string) (*types.Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[policyID]
	return p, ok
}

// PolicyCount returns the number of registered policies.
func (e *Engine) PolicyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// PolicyIDs returns the ids of all registered policies.
func (e *Engine) PolicyIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.policies))
	for id := range e.policies {
		ids = append(ids, id)
	}
	return ids
}

// Enforce evaluates every rule of a policy against a record, in rule
// order, and returns exactly one result per rule. A rule whose condition
// does not hold yields an allow result; a rule whose evaluation or
// execution fails yields a deny result carrying the error. The batch never
// aborts mid-policy.
//
// When the policy requires auditing, every result is appended to the audit
// log in result order. An append failure does not discard the computed
// results: they are returned together with an error wrapping ErrAuditWrite.
func (e *Engine) Enforce(ctx context.Context, policyID string, record, userCtx map[string]any) ([]types.EnforcementResult, error) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.enforce",
		trace.WithAttributes(attribute.String("policy.id", policyID)))
	defer span.End()

	start := time.Now()

	e.mu.RLock()
	policy, ok := e.policies[policyID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}

	results := make([]types.EnforcementResult, 0, len(policy.Rules))
	failed := 0
	for _, rule := range policy.Rules {
		result := e.enforceRule(ctx, policyID, rule, record, userCtx)
		if !result.Success {
			failed++
		}
		results = append(results, result)
	}

	var auditErr error
	if policy.AuditRequired {
		auditErr = e.appendAudit(ctx, policyID, results)
	}

	e.recordMetrics(ctx, policyID, failed, time.Since(start))
	e.logger.LogEnforcement(ctx, policyID, len(results), failed)

	if auditErr != nil {
		return results, fmt.Errorf("%w: %v", ErrAuditWrite, auditErr)
	}
	return results, nil
}

// enforceRule evaluates one rule and executes its action. Panics and
// execution errors become failed deny results so one bad rule never takes
// down the batch.
func (e *Engine) enforceRule(ctx context.Context, policyID string, rule types.PolicyRule, record, userCtx map[string]any) (result types.EnforcementResult) {
	timestamp := types.Timestamp(time.Now())

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.LogRuleFailure(ctx, policyID, rule.RuleID, err)
			result = e.failedResult(policyID, rule.RuleID, timestamp, err)
		}
	}()

	if !Evaluate(rule.Conditions, record, userCtx) {
		return types.EnforcementResult{
			PolicyID:    policyID,
			RuleID:      rule.RuleID,
			ActionTaken: types.ActionAllow,
			Success:     true,
			Message:     "Rule conditions not met, allowing by default",
			Timestamp:   timestamp,
			Metadata:    map[string]any{},
		}
	}

	out, err := executor.Execute(rule.Action, record, rule.Conditions)
	if err != nil {
		e.logger.LogRuleFailure(ctx, policyID, rule.RuleID, err)
		return e.failedResult(policyID, rule.RuleID, timestamp, err)
	}

	metadata := out.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return types.EnforcementResult{
		PolicyID:    policyID,
		RuleID:      rule.RuleID,
		ActionTaken: rule.Action,
		Success:     out.Success,
		Message:     out.Message,
		Timestamp:   timestamp,
		Metadata:    metadata,
	}
}

func (e *Engine) failedResult(policyID, ruleID, timestamp string, err error) types.EnforcementResult {
	return types.EnforcementResult{
		PolicyID:    policyID,
		RuleID:      ruleID,
		ActionTaken: types.ActionDeny,
		Success:     false,
		Message:     fmt.Sprintf("Rule enforcement failed: %v", err),
		Timestamp:   timestamp,
		Metadata:    map[string]any{},
	}
}

// appendAudit writes every result in order. On an append failure the
// remaining results are still written so the trail stays as complete as
// the store allows; the first error is reported.
func (e *Engine) appendAudit(ctx context.Context, policyID string, results []types.EnforcementResult) error {
	var firstErr error
	appended := 0
	for _, result := range results {
		if err := e.audit.Append(ctx, types.AuditEventFrom(result)); err != nil {
			e.logger.LogAuditError(ctx, policyID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		appended++
	}
	if telemetry.AuditEventsTotal != nil && appended > 0 {
		telemetry.AuditEventsTotal.Add(ctx, int64(appended),
			metric.WithAttributes(attribute.String("policy_id", policyID)))
	}
	return firstErr
}

func (e *Engine) recordMetrics(ctx context.Context, policyID string, failed int, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("policy_id", policyID))

	if telemetry.EnforcementsTotal != nil {
		telemetry.EnforcementsTotal.Add(ctx, 1, attrs)
	}
	if telemetry.RuleFailuresTotal != nil && failed > 0 {
		telemetry.RuleFailuresTotal.Add(ctx, int64(failed), attrs)
	}
	if telemetry.EnforceDuration != nil {
		telemetry.EnforceDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// CreateFromTemplate parses a template, assigns a fresh unique policy id
// derived from the template name and the creation time, and registers the
// policy. Parse failures leave the store untouched. The id is picked and
// inserted under one write lock so concurrent creations from the same
// template cannot race to the same id.
func (e *Engine) CreateFromTemplate(ctx context.Context, templateName string, tpl Template) (string, error) {
	now := time.Now().UTC()
	tpl.CreatedDate = types.Timestamp(now)

	e.mu.Lock()
	tpl.PolicyID = e.uniqueIDLocked(templateName, now)
	policy, err := ParsePolicy(templateName, tpl)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.policies[policy.PolicyID] = policy
	count := len(e.policies)
	e.mu.Unlock()

	e.logger.LogPolicyLoaded(ctx, policy.PolicyID, policy.Name, len(policy.Rules))
	if telemetry.PoliciesLoaded != nil {
		telemetry.PoliciesLoaded.Record(ctx, int64(count))
	}

	e.logger.WithContext(ctx).Info().
		Str("policy_id", policy.PolicyID).
		Str("template", templateName).
		Msg("created policy from template")

	return policy.PolicyID, nil
}

// uniqueIDLocked builds "<template>_<UTC timestamp>" and, when two
// creations land in the same second, appends a counter to keep ids unique
// within the process. Caller holds e.mu.
func (e *Engine) uniqueIDLocked(templateName string, now time.Time) string {
	base := fmt.Sprintf("%s_%s", templateName, now.Format("20060102_150405"))

	id := base
	for i := 2; ; i++ {
		if _, exists := e.policies[id]; !exists {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

// PolicyStatus reads the audit log and reports enforcement totals for one
// policy.
func (e *Engine) PolicyStatus(ctx context.Context, policyID string) (Status, error) {
	policy, ok := e.Policy(policyID)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}

	events, err := e.audit.ByPolicy(ctx, policyID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read audit log: %w", err)
	}

	status := Status{
		PolicyID:             policyID,
		PolicyName:           policy.Name,
		TotalEnforcements:    len(events),
		ComplianceFrameworks: policy.ComplianceFrameworks,
	}
	for _, event := range events {
		if event.Success {
			status.Successful++
		} else {
			status.Failed++
		}
	}
	if len(events) > 0 {
		status.LastEnforcement = events[len(events)-1].Timestamp
	}
	return status, nil
}
