// Package apperr defines the error and warning types shared by the broadcast
// components. Validation problems are caught before any network call; remote
// failures are converted to TransportError at the gateway boundary.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed field detected locally.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransportError reports a network failure or a non-2xx response. A zero
// StatusCode means the request never got a response.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteStateDesyncError reports a dispatch failure against a session that
// was only acknowledged manually and may never have connected remotely.
type RemoteStateDesyncError struct {
	Session string
	Err     error
}

func (e *RemoteStateDesyncError) Error() string {
	return fmt.Sprintf("session %q is not connected on the gateway (re-initiate it): %v", e.Session, e.Err)
}

func (e *RemoteStateDesyncError) Unwrap() error { return e.Err }

// FileReadError reports an unreadable batch or attachment source.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read file %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a file whose type does not match the field.
type UnsupportedFormatError struct {
	Name string
	Want string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format for %s: want %s", e.Name, e.Want)
}

// IsValidation reports whether err is a locally detected input problem.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ue *UnsupportedFormatError
	var fe *FileReadError
	return errors.As(err, &ve) || errors.As(err, &ue) || errors.As(err, &fe)
}

// IsTransport reports whether err came from a remote call.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDesync reports whether err is a RemoteStateDesyncError.
func IsDesync(err error) bool {
	var de *RemoteStateDesyncError
	return errors.As(err, &de)
}
