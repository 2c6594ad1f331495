package policy

import (
	"errors"
	"fmt"
)

// ErrPolicyNotFound means the requested policy id is not registered.
// Surfaced to the caller; nothing is evaluated or audited.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrAuditWrite means enforcement completed but one or more results could
// not be appended to the audit log. Callers receive the full result set
// alongside this error.
var ErrAuditWrite = errors.New("audit write failed")

// TemplateParseError reports a malformed policy template. The policy is
// not registered.
type TemplateParseError struct {
	Name string
	Err  error
}

func (e *TemplateParseError) Error() string {
	return fmt.Sprintf("invalid policy template %q: %v", e.Name, e.Err)
}

func (e *TemplateParseError) Unwrap() error {
	return e.Err
}
