// Package errors implements the pipeline's error taxonomy: each Kind
// carries a fixed propagation policy that the stage owning it applies.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the propagation policy its owning stage
// applies to it.
type Kind string

const (
	KindConfig      Kind = "ConfigError"      // fatal, abort before any stage starts
	KindSource      Kind = "SourceError"      // log and skip that source
	KindRateLimited Kind = "RateLimited"      // retry with next credential
	KindAuthFailure Kind = "AuthFailure"      // disable credential, continue
	KindCircuitOpen Kind = "CircuitOpen"      // pause scraper, other sources continue
	KindEnrich      Kind = "EnrichError"      // log and skip that URL, post proceeds
	KindLLM         Kind = "LLMError"         // mark post excluded, post proceeds
	KindWrite       Kind = "WriteError"       // retry once, else log and drop
)

// Error is a taxonomy-tagged error carrying the stage and source it
// originated from.
type Error struct {
	Kind    Kind
	Stage   string
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error.
func New(kind Kind, stage, source, message string) error {
	return &Error{Kind: kind, Stage: stage, Source: source, Message: message}
}

// Wrap attaches a taxonomy kind to an existing error.
func Wrap(kind Kind, stage, source string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Source: source, Message: err.Error(), Err: err}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// GetKind returns the taxonomy kind if err carries one.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Fatal reports whether err must abort the run before any stage starts.
func Fatal(err error) bool {
	return GetKind(err) == KindConfig
}
