package domain

import (
	"context"
	"errors"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrAuthentication    = errors.New("authentication failed")
	ErrRejected          = errors.New("request rejected")
	ErrTransientFetch    = errors.New("transient fetch failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrAllSourcesFailed  = errors.New("all sources failed")
	ErrUnknownView       = errors.New("unknown view")
	ErrUnknownRepository = errors.New("unknown repository")
	ErrInvalidInput      = errors.New("invalid input")
)

type SourceFailure struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func NewSourceFailure(source string, err error) SourceFailure {
	return SourceFailure{Source: source, Kind: KindOf(err), Error: err.Error()}
}

// KindOf returns the taxonomy label for err.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrTransientFetch):
		return "transient"
	default:
		return "unknown"
	}
}
