package apperr

import (
	"errors"
	"fmt"
)

// User-facing messages.
const (
	MsgEmptyCity       = "Please enter a city name."
	MsgWeatherRemote   = "City not found or API key is invalid."
	MsgNarrativeRemote = "Failed to generate weather story."
	MsgInternal        = "Something went wrong while generating the weather story."
)

// Provider names used on remote and malformed-response errors.
const (
	ProviderWeather   = "weather"
	ProviderNarrative = "narrative"
)

// ValidationError is returned for bad user input detected before any network call.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

// RemoteError reports a failed provider call. Message is the fixed
// user-facing text; Status and Cause are kept for logs.
type RemoteError struct {
	Provider string
	Message  string
	Status   int
	Cause    error
}

func (e RemoteError) Error() string { return e.Message }

func (e RemoteError) Unwrap() error { return e.Cause }

// LogValue describes the failure for logs without leaking it to the user.
func (e RemoteError) LogValue() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s provider returned status %d", e.Provider, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("%s provider call failed: %v", e.Provider, e.Cause)
	default:
		return e.Provider + " provider call failed"
	}
}

// MalformedResponseError reports a 2xx response whose body lacks the expected fields.
type MalformedResponseError struct {
	Provider string
	Cause    error
}

func (e MalformedResponseError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("Unexpected response from the %s provider.", e.Provider)
	}
	return fmt.Sprintf("Unexpected response from the %s provider: %v.", e.Provider, e.Cause)
}

func (e MalformedResponseError) Unwrap() error { return e.Cause }

func Validation(msg string) error { return ValidationError{Message: msg} }

func Malformed(provider, format string, args ...any) error {
	return MalformedResponseError{Provider: provider, Cause: fmt.Errorf(format, args...)}
}

// Kind returns a short label for metrics and JSON: validation, remote, malformed or internal.
func Kind(err error) string {
	var ve ValidationError
	var re RemoteError
	var me MalformedResponseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &re):
		return "remote"
	case errors.As(err, &me):
		return "malformed"
	default:
		return "internal"
	}
}
