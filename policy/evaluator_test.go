package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/valvo/types"
)

func mustConditions(t *testing.T, raw map[string]any) types.Conditions {
	t.Helper()
	c, err := types.NewConditions(raw)
	require.NoError(t, err)
	return c
}

func TestEvaluate_PII(t *testing.T) {
	c := mustConditions(t, map[string]any{"data_types": []any{"email", "ssn"}})

	hit := map[string]any{"contact": "sarah@retailcorp.com"}
	miss := map[string]any{"contact": "call front desk"}
	wrongType := map[string]any{"contact": "555-123-4567"} // phone not in data_types

	assert.True(t, Evaluate(c, hit, nil))
	assert.False(t, Evaluate(c, miss, nil))
	assert.False(t, Evaluate(c, wrongType, nil))
}

func TestEvaluate_PHI(t *testing.T) {
	c := mustConditions(t, map[string]any{"data_types": []any{"medical_record"}})

	assert.True(t, Evaluate(c, map[string]any{"note": "patient diagnosis pending"}, nil))
	assert.False(t, Evaluate(c, map[string]any{"note": "invoice overdue"}, nil))
}

func TestEvaluate_Bias(t *testing.T) {
	c := mustConditions(t, map[string]any{
		"protected_attributes": []any{"approval_rate"},
		"bias_threshold":       0.1,
	})

	spread := map[string]any{"approval_rate": []any{0.9, 0.2, 0.85, 0.15}}
	flat := map[string]any{"approval_rate": []any{0.5, 0.5, 0.5}}
	single := map[string]any{"approval_rate": []any{0.9}}
	scalar := map[string]any{"approval_rate": 0.9}

	assert.True(t, Evaluate(c, spread, nil))
	assert.False(t, Evaluate(c, flat, nil))
	assert.False(t, Evaluate(c, single, nil), "a single value carries no spread")
	assert.False(t, Evaluate(c, scalar, nil))
}

func TestEvaluate_Consent(t *testing.T) {
	c := mustConditions(t, map[string]any{"consent_required": true})

	assert.True(t, Evaluate(c, map[string]any{"user_id": "u1"}, nil))
	assert.True(t, Evaluate(c, map[string]any{"consent_timestamp": nil}, nil))
	assert.True(t, Evaluate(c, map[string]any{"consent_timestamp": ""}, nil))
	assert.False(t, Evaluate(c, map[string]any{"consent_timestamp": "2024-01-15T10:00:00Z"}, nil))
}

// A present consent_timestamp satisfies the rule no matter how old it is,
// even when the rule configures consent_expiry.
func TestEvaluate_ConsentExpiryNotChecked(t *testing.T) {
	c := mustConditions(t, map[string]any{
		"consent_required": true,
		"consent_expiry":   "2_years",
	})

	ancient := map[string]any{"consent_timestamp": "2001-01-01T00:00:00Z"}
	assert.False(t, Evaluate(c, ancient, nil))
}

func TestEvaluate_Financial(t *testing.T) {
	c := mustConditions(t, map[string]any{
		"threshold_amounts": map[string]any{"cash": 10000.0, "wire": 10000.0},
	})

	tests := []struct {
		name   string
		record map[string]any
		want   bool
	}{
		{"wire over threshold", map[string]any{"wire_amount": 15000.0}, true},
		{"wire at threshold", map[string]any{"wire_amount": 10000.0}, true},
		{"wire under threshold", map[string]any{"wire_amount": 500.0}, false},
		{"cash over threshold", map[string]any{"cash_amount": 12000}, true},
		{"other amount key", map[string]any{"transfer_amount": 20000.0}, true},
		{"no amounts at all", map[string]any{"memo": "lunch"}, false},
		{"non-numeric amount", map[string]any{"wire_amount": "lots"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(c, tt.record, nil))
		})
	}
}

func TestEvaluate_CatchAll(t *testing.T) {
	c := mustConditions(t, map[string]any{})

	assert.True(t, Evaluate(c, map[string]any{}, nil))
	assert.True(t, Evaluate(c, map[string]any{"anything": "at all"}, nil))
}
