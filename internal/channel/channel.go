// Package channel holds the outbound delivery transports.
//
// Each adapter owns exactly one external API's request/response shape and
// performs exactly one attempt per Send call; retry and fallback ordering
// live in internal/dispatch.
package channel

import "context"

// Outcome is the result of a single delivery attempt.
type Outcome struct {
	OK          bool
	RawResponse string
}

// Adapter is the uniform capability contract for one outbound transport.
type Adapter interface {
	Name() string
	// Send delivers text to the destination (a phone number or chat id,
	// adapter-specific). One attempt only; classification of the returned
	// error follows errors.go.
	Send(ctx context.Context, to, text string) (Outcome, error)
}
