package collector

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed probe.
type Kind int

const (
	// KindConfigRetrieval: the server list or client configuration could
	// not be fetched. Transient.
	KindConfigRetrieval Kind = iota + 1

	// KindNoServerFound: discovery succeeded but yielded no candidate.
	// Transient.
	KindNoServerFound

	// KindMeasurement: latency, download or upload failed against the
	// selected server. Transient.
	KindMeasurement

	// KindMalformedResult: the measurement capability returned a document
	// that does not match the expected shape. Fatal.
	KindMalformedResult
)

func (k Kind) String() string {
	switch k {
	case KindConfigRetrieval:
		return "ConfigRetrievalError"
	case KindNoServerFound:
		return "NoServerFound"
	case KindMeasurement:
		return "MeasurementError"
	case KindMalformedResult:
		return "MalformedResult"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Failure is the error returned by Probe and Validate.
type Failure struct {
	Kind  Kind
	Field string // offending key, or the phase that failed
	Err   error  // underlying cause, may be nil
}

func (f *Failure) Error() string {
	msg := f.Kind.String()
	if f.Field != "" {
		msg += " (" + f.Field + ")"
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches failures by kind, so errors.Is(err, ErrNoServerFound) holds
// for any wrapped NoServerFound failure.
func (f *Failure) Is(target error) bool {
	var t *Failure
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == f.Kind
}

// Transient reports whether retrying may help.
func (f *Failure) Transient() bool {
	switch f.Kind {
	case KindConfigRetrieval, KindNoServerFound, KindMeasurement:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is.
var (
	ErrConfigRetrieval = &Failure{Kind: KindConfigRetrieval}
	ErrNoServerFound   = &Failure{Kind: KindNoServerFound}
	ErrMeasurement     = &Failure{Kind: KindMeasurement}
	ErrMalformedResult = &Failure{Kind: KindMalformedResult}
)

// IsTransient reports whether err is a probe failure worth retrying.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var f *Failure
	return errors.As(err, &f) && f.Transient()
}
