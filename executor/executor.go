// Package executor carries out policy actions against input records.
// Actions are reporting operations: they describe what downstream systems
// must do, they do not mutate storage. The one exception is anonymize,
// which scrubs a copy of the record; the caller's record is never touched.
package executor

import (
	"fmt"

	"github.com/yairfalse/valvo/detect"
	"github.com/yairfalse/valvo/types"
)

// DefaultEncryptionStandard is reported when an encrypt rule does not name
// an algorithm.
const DefaultEncryptionStandard = "AES_256"

// Result describes the outcome of executing one action.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Execute runs one action against a record. Every PolicyAction value has a
// deterministic branch; an action that slipped past template parsing is an
// internal error, not a silent default.
func Execute(action types.PolicyAction, record map[string]any, conds types.Conditions) (Result, error) {
	switch action {
	case types.ActionAllow:
		return Result{Success: true, Message: "Access allowed by policy"}, nil
	case types.ActionDeny:
		return Result{Success: true, Message: "Access denied by policy"}, nil
	case types.ActionAnonymize:
		return anonymize(record), nil
	case types.ActionEncrypt:
		return encrypt(conds), nil
	case types.ActionFlag:
		return Result{
			Success:  true,
			Message:  "Data flagged for manual review",
			Metadata: map[string]any{"flagged": true, "review_required": true},
		}, nil
	case types.ActionEscalate:
		return Result{
			Success:  true,
			Message:  "Decision escalated to human oversight",
			Metadata: map[string]any{"escalated": true, "requires_approval": true},
		}, nil
	case types.ActionRequire:
		return Result{
			Success:  true,
			Message:  "Additional requirements imposed by policy",
			Metadata: map[string]any{"requirements_imposed": true},
		}, nil
	case types.ActionNotify:
		return notify(conds), nil
	case types.ActionLog:
		return Result{
			Success:  true,
			Message:  "Activity logged for audit",
			Metadata: map[string]any{"logged": true, "audit_trail": true},
		}, nil
	case types.ActionRestrict:
		return Result{
			Success:  true,
			Message:  "Access restricted based on policy",
			Metadata: map[string]any{"access_restricted": true, "minimum_necessary": true},
		}, nil
	case types.ActionValidate:
		return validate(record, conds), nil
	case types.ActionDelete:
		return Result{
			Success:  true,
			Message:  "Data deleted according to retention policy",
			Metadata: map[string]any{"deleted": true, "retention_policy_applied": true},
		}, nil
	default:
		return Result{}, fmt.Errorf("unhandled policy action %q", action)
	}
}

// anonymize scrubs PII from a copy of the record and reports which keys
// changed. The scrubbed copy itself stays local; consumers re-run
// detect.Scrub when they need the cleaned record.
func anonymize(record map[string]any) Result {
	_, touched := detect.Scrub(record)

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}

	return Result{
		Success: true,
		Message: "Data anonymized successfully",
		Metadata: map[string]any{
			"anonymized":        true,
			"original_keys":     keys,
			"fields_anonymized": touched,
		},
	}
}

// encrypt records the claimed algorithm. It performs no cryptography; the
// contract is that the requirement is recorded and reported downstream.
func encrypt(conds types.Conditions) Result {
	standard := conds.EncryptionStandard
	if standard == "" {
		standard = DefaultEncryptionStandard
	}
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Data encrypted using %s", standard),
		Metadata: map[string]any{"encrypted": true, "algorithm": standard},
	}
}

func notify(conds types.Conditions) Result {
	timeframe := conds.NotificationTimeframe
	if timeframe == "" {
		timeframe = "immediate"
	}
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Notification sent (%s)", timeframe),
		Metadata: map[string]any{"notification_sent": true, "type": timeframe},
	}
}

// validate checks required fields and fails listing each one missing.
func validate(record map[string]any, conds types.Conditions) Result {
	passed := true
	var messages []string

	for _, field := range conds.RequiredFields {
		if _, ok := record[field]; !ok {
			passed = false
			messages = append(messages, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	return Result{
		Success: passed,
		Message: "Data validation completed",
		Metadata: map[string]any{
			"validation_passed": passed,
			"messages":          messages,
		},
	}
}
