package events

import "time"

// FieldResolved is emitted after a traced field resolver returns.
type FieldResolved struct {
	Path       string
	ParentType string
	FieldName  string
	ReturnType string
	Start      time.Time
	Duration   time.Duration
	Err        error
}
