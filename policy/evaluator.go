package policy

import (
	"strings"

	"github.com/yairfalse/valvo/detect"
	"github.com/yairfalse/valvo/types"
)

// Evaluate decides whether a rule's action should fire for the given
// record. The predicate kind was fixed at template-parse time; a rule with
// no recognized condition key evaluates true so its action always fires.
//
// Known gap, preserved on purpose: consent rules accept a consent_expiry
// option but never check it. A present consent_timestamp always satisfies
// the rule regardless of age.
func Evaluate(c types.Conditions, record, userCtx map[string]any) bool {
	switch c.Kind {
	case types.CondPII:
		return evaluatePII(c, record)
	case types.CondPHI:
		return detect.ContainsPHI(record)
	case types.CondBias:
		return evaluateBias(c, record)
	case types.CondConsent:
		return evaluateConsent(c, record)
	case types.CondFinancial:
		return evaluateFinancial(c, record)
	case types.CondCatchAll:
		return true
	default:
		return true
	}
}

// evaluatePII fires when any configured data type is actually present in
// the record.
func evaluatePII(c types.Conditions, record map[string]any) bool {
	detected := detect.Scan(record)
	for _, want := range c.DataTypes {
		for _, got := range detected {
			if want == string(got) {
				return true
			}
		}
	}
	return false
}

// evaluateBias computes population variance over each protected attribute
// that arrives as a numeric sequence. A single value carries no spread, so
// sequences of length <= 1 are skipped.
func evaluateBias(c types.Conditions, record map[string]any) bool {
	for _, attr := range c.ProtectedAttributes {
		values, ok := numericSequence(record[attr])
		if !ok || len(values) <= 1 {
			continue
		}
		if variance(values) > c.BiasThreshold {
			return true
		}
	}
	return false
}

// evaluateConsent fires when consent is required but missing. An empty or
// nil consent_timestamp counts as missing.
func evaluateConsent(c types.Conditions, record map[string]any) bool {
	if !c.ConsentRequired {
		return true
	}
	v, ok := record["consent_timestamp"]
	if !ok || v == nil {
		return true
	}
	if s, isStr := v.(string); isStr && s == "" {
		return true
	}
	return false
}

// evaluateFinancial fires when any transaction amount meets a configured
// threshold. Beyond the canonical cash_amount/wire_amount fields, any key
// containing "amount" is checked against both thresholds.
func evaluateFinancial(c types.Conditions, record map[string]any) bool {
	if meetsThreshold(record["cash_amount"], c.Thresholds, "cash") {
		return true
	}
	if meetsThreshold(record["wire_amount"], c.Thresholds, "wire") {
		return true
	}
	for key, value := range record {
		if !strings.Contains(strings.ToLower(key), "amount") {
			continue
		}
		if meetsThreshold(value, c.Thresholds, "wire") || meetsThreshold(value, c.Thresholds, "cash") {
			return true
		}
	}
	return false
}

func meetsThreshold(value any, thresholds map[string]float64, kind string) bool {
	limit, ok := thresholds[kind]
	if !ok {
		return false
	}
	f, ok := asFloat(value)
	return ok && f >= limit
}

func asFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	default:
		return 0, false
	}
}

func numericSequence(v any) ([]float64, bool) {
	switch vv := v.(type) {
	case []float64:
		return vv, true
	case []int:
		out := make([]float64, len(vv))
		for i, n := range vv {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, 0, len(vv))
		for _, e := range vv {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}

func variance(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}
