package domain

import "fmt"

// ValidationError indicates bad input (empty text, invalid weights) rejected
// before any persistence call. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NotFoundError indicates a lookup by id for an entry that no longer exists.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// StoreError indicates a persistence gateway failure, carrying the failed
// operation and the entry id if one was involved.
type StoreError struct {
	Op      string
	EntryID int64
	Cause   error
}

func (e *StoreError) Error() string {
	if e.EntryID != 0 {
		return fmt.Sprintf("store error: %s (entry %d): %v", e.Op, e.EntryID, e.Cause)
	}
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// FormatError is scoped to a single malformed record during import. The
// import as a whole completes; these are aggregated into the report.
type FormatError struct {
	Unit    int // 1-based index of the offending unit in the stream
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: unit %d: %s", e.Unit, e.Message)
}
