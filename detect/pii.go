// Package detect finds personally identifiable information in arbitrary
// records. Detection is lexical: records are flattened to text and matched
// against a fixed set of patterns.
package detect

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies a class of detectable PII.
type Kind string

const (
	KindEmail      Kind = "email"
	KindPhone      Kind = "phone"
	KindSSN        Kind = "ssn"
	KindCreditCard Kind = "credit_card"
)

var patterns = map[Kind]*regexp.Regexp{
	KindEmail:      regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	KindPhone:      regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b|\(\d{3}\)\s*\d{3}-\d{4}`),
	KindSSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	KindCreditCard: regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

// placeholders replace matched PII during scrubbing. The tokens contain no
// digits or @, so scrubbing already-scrubbed text is a no-op.
var placeholders = map[Kind]string{
	KindEmail:      "[EMAIL]",
	KindPhone:      "[PHONE]",
	KindSSN:        "[SSN]",
	KindCreditCard: "[CARD]",
}

// scrubOrder: SSN before credit card would not matter lexically, but card
// numbers contain runs a phone/SSN pattern can partially match, so scrub
// the longest pattern first.
var scrubOrder = []Kind{KindCreditCard, KindSSN, KindPhone, KindEmail}

// phiIndicators is the protected-health-information vocabulary, matched
// case-insensitively as substrings.
var phiIndicators = []string{
	"medical_record", "patient_id", "diagnosis", "treatment",
	"prescription", "doctor", "hospital", "insurance",
}

// Flatten renders a record as text for lexical scanning. JSON keeps string
// values verbatim so the patterns see the same bytes the caller sent.
func Flatten(record map[string]any) string {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Sprintf("%v", record)
	}
	return string(data)
}

// Scan reports which PII kinds appear anywhere in the record.
func Scan(record map[string]any) []Kind {
	return ScanText(Flatten(record))
}

// ScanText reports which PII kinds appear in the given text.
func ScanText(text string) []Kind {
	var found []Kind
	for kind, re := range patterns {
		if re.MatchString(text) {
			found = append(found, kind)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found
}

// ContainsPHI reports whether the record contains protected health
// information indicators.
func ContainsPHI(record map[string]any) bool {
	text := strings.ToLower(Flatten(record))
	for _, indicator := range phiIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}

// Scrub returns a copy of the record with PII substrings in string-valued
// fields replaced by placeholder tokens, plus the keys that changed. The
// input record is never modified. Scrub is idempotent on its own output.
func Scrub(record map[string]any) (map[string]any, []string) {
	scrubbed := make(map[string]any, len(record))
	var touched []string

	for key, value := range record {
		s, ok := value.(string)
		if !ok {
			scrubbed[key] = value
			continue
		}
		clean := ScrubText(s)
		scrubbed[key] = clean
		if clean != s {
			touched = append(touched, key)
		}
	}

	sort.Strings(touched)
	return scrubbed, touched
}

// ScrubText replaces every PII match in text with its placeholder token.
func ScrubText(text string) string {
	for _, kind := range scrubOrder {
		text = patterns[kind].ReplaceAllString(text, placeholders[kind])
	}
	return text
}
