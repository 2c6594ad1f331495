package types

import (
	"encoding/json"
	"fmt"
)

// ConditionKind discriminates the predicate a rule's conditions configure.
// The kind is fixed at template-parse time by key presence, checked in the
// engine's priority order, so a malformed bag fails the template instead of
// an enforcement call.
type ConditionKind string

const (
	CondPII       ConditionKind = "pii"
	CondPHI       ConditionKind = "phi"
	CondBias      ConditionKind = "bias"
	CondConsent   ConditionKind = "consent"
	CondFinancial ConditionKind = "financial"
	CondCatchAll  ConditionKind = "catch_all"
)

// DefaultBiasThreshold applies when a bias rule omits bias_threshold.
const DefaultBiasThreshold = 0.1

// Conditions is the decoded form of a rule's condition bag. The original
// map is retained so conditions serialize back byte-for-byte equivalent.
type Conditions struct {
	Kind ConditionKind `json:"-"`

	// pii / phi
	DataTypes []string `json:"-"`

	// bias
	ProtectedAttributes []string `json:"-"`
	BiasThreshold       float64  `json:"-"`

	// consent. ConsentExpiry is accepted from templates but never
	// evaluated; see policy.Evaluate.
	ConsentRequired bool   `json:"-"`
	ConsentExpiry   string `json:"-"`

	// financial
	Thresholds map[string]float64 `json:"-"`

	// action options, valid alongside any kind
	RequiredFields        []string `json:"-"`
	EncryptionStandard    string   `json:"-"`
	NotificationTimeframe string   `json:"-"`

	raw map[string]any
}

// NewConditions decodes a raw condition bag into its typed form.
func NewConditions(raw map[string]any) (Conditions, error) {
	c := Conditions{Kind: CondCatchAll, raw: raw}

	if err := c.decodeKind(raw); err != nil {
		return Conditions{}, err
	}
	if err := c.decodeOptions(raw); err != nil {
		return Conditions{}, err
	}
	return c, nil
}

// decodeKind picks the predicate kind by key presence, first match wins.
// The order mirrors the evaluator's dispatch priority.
func (c *Conditions) decodeKind(raw map[string]any) error {
	if v, ok := raw["data_types"]; ok {
		types, err := toStringSlice("data_types", v)
		if err != nil {
			return err
		}
		c.DataTypes = types
		c.Kind = CondPII
		for _, t := range types {
			if t == "medical_record" {
				c.Kind = CondPHI
				break
			}
		}
		return nil
	}

	if v, ok := raw["protected_attributes"]; ok {
		attrs, err := toStringSlice("protected_attributes", v)
		if err != nil {
			return err
		}
		c.ProtectedAttributes = attrs
		c.BiasThreshold = DefaultBiasThreshold
		if tv, ok := raw["bias_threshold"]; ok {
			f, ok := toFloat(tv)
			if !ok {
				return fmt.Errorf("bias_threshold must be numeric, got %T", tv)
			}
			c.BiasThreshold = f
		}
		c.Kind = CondBias
		return nil
	}

	if v, ok := raw["consent_required"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("consent_required must be a boolean, got %T", v)
		}
		c.ConsentRequired = b
		c.Kind = CondConsent
		return nil
	}

	if v, ok := raw["threshold_amounts"]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("threshold_amounts must be an object, got %T", v)
		}
		c.Thresholds = make(map[string]float64, len(m))
		for k, tv := range m {
			f, ok := toFloat(tv)
			if !ok {
				return fmt.Errorf("threshold_amounts.%s must be numeric, got %T", k, tv)
			}
			c.Thresholds[k] = f
		}
		c.Kind = CondFinancial
		return nil
	}

	return nil
}

func (c *Conditions) decodeOptions(raw map[string]any) error {
	if v, ok := raw["required_fields"]; ok {
		fields, err := toStringSlice("required_fields", v)
		if err != nil {
			return err
		}
		c.RequiredFields = fields
	}
	if v, ok := raw["consent_expiry"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("consent_expiry must be a string, got %T", v)
		}
		c.ConsentExpiry = s
	}
	if v, ok := raw["encryption_standard"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("encryption_standard must be a string, got %T", v)
		}
		c.EncryptionStandard = s
	}
	if v, ok := raw["notification_timeframe"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("notification_timeframe must be a string, got %T", v)
		}
		c.NotificationTimeframe = s
	}
	return nil
}

// Raw returns the original condition bag as loaded from the template.
func (c Conditions) Raw() map[string]any {
	return c.raw
}

// MarshalJSON emits the original bag so conditions round-trip unchanged.
func (c Conditions) MarshalJSON() ([]byte, error) {
	if c.raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.raw)
}

// UnmarshalJSON decodes and re-validates a condition bag.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := NewConditions(raw)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

func toStringSlice(key string, v any) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, v)
	}
}

func toFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case json.Number:
		f, err := vv.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
