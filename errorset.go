package userflow

import "sort"

// FieldNone collects failures that do not belong to a single field, e.g.
// INSUFFICIENT_DATA or DISABLED_ACCOUNT.
const FieldNone = "_schema"

// ErrorSet accumulates symbolic error codes keyed by field name. Checks keep
// running after a failure so callers see every problem at once; only checks
// that depend on an earlier field succeeding are skipped.
type ErrorSet map[string][]string

// Add appends a code for the given field.
func (e ErrorSet) Add(field, code string) {
	e[field] = append(e[field], code)
}

// Has reports whether the field accumulated at least one code.
func (e ErrorSet) Has(field string) bool {
	return len(e[field]) > 0
}

// Empty reports whether no code was recorded.
func (e ErrorSet) Empty() bool {
	return len(e) == 0
}

// Fields returns the affected field names in stable order.
func (e ErrorSet) Fields() []string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Err returns the set wrapped as a validation error, or nil when empty.
func (e ErrorSet) Err() error {
	if e.Empty() {
		return nil
	}
	return NewValidationError(e)
}
