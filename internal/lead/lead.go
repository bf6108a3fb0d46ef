package lead

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a lead as persisted in the store.
//
// Transitions are monotonic within a run: once a lead reaches StatusSent or
// StatusSkipped it is never reprocessed; StatusError leads may be retried on
// a later cycle.
type Status string

const (
	StatusNew        Status = "novo"
	StatusProcessing Status = "processando"
	StatusSent       Status = "enviado"
	StatusError      Status = "erro"
	StatusSkipped    Status = "pulado"
)

// Processed reports whether a lead in this status must not be dispatched
// again. StatusProcessing is not terminal: the store hands such rows back
// once they have been stale long enough to mean a crashed run.
func (s Status) Processed() bool {
	switch s {
	case StatusSent, StatusSkipped:
		return true
	default:
		return false
	}
}

// Lead is a customer inquiry pulled from the site database.
//
// Optional fields use the empty string as "absent"; PropertyPrice carries the
// raw column text so malformed values degrade instead of failing a scan.
type Lead struct {
	ID    string
	Name  string
	Phone string
	Email string

	// Message is the free-text inquiry body. May be empty.
	Message string

	PropertyTitle string
	PropertyType  string
	PropertySlug  string
	PropertyPrice string // raw text; see PriceValue

	Status    Status
	CreatedAt time.Time
}

// PriceValue parses the property price. ok is false when the field is absent
// or not numeric; callers must treat that as "no price", never as an error.
func (l Lead) PriceValue() (float64, bool) {
	s := strings.TrimSpace(l.PropertyPrice)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// HasMessage reports whether the lead carries a non-blank inquiry text.
func (l Lead) HasMessage() bool { return strings.TrimSpace(l.Message) != "" }
