package channel

import (
	"errors"
	"fmt"
)

// Kind classifies a channel failure so the dispatcher and the cycle can
// decide between retry, skip and alert.
type Kind string

const (
	// KindConfig: missing/invalid credential or target. Skip, never retry.
	KindConfig Kind = "config"
	// KindTransport: network/timeout failure reaching the endpoint.
	KindTransport Kind = "transport"
	// KindRemote: the endpoint answered with a non-success status.
	KindRemote Kind = "remote"
	// KindResponse: 2xx but the body wasn't what the API promises.
	KindResponse Kind = "response"
)

// Error is a classified channel failure.
type Error struct {
	Channel string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Channel, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(channel string, kind Kind, err error) *Error {
	return &Error{Channel: channel, Kind: kind, Err: err}
}

func configErr(channel, msg string) *Error {
	return newErr(channel, KindConfig, errors.New(msg))
}

// KindOf extracts the failure class; unclassified errors count as transport.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}

// IsConfig reports whether err is a configuration error, i.e. the adapter
// can't work until an operator fixes its settings.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }
