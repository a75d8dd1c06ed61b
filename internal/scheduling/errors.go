package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is produced by the storage uniqueness constraint (or its
	// deterministic translation), never inferred from a preceding read.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrForbidden deliberately carries no detail about the target, so a
	// denied caller cannot probe which doctors or appointments exist.
	ErrForbidden = errors.New("not allowed")

	// ErrAppointmentClosed rejects transitions out of a terminal status.
	ErrAppointmentClosed = errors.New("appointment is in a terminal status")
)

// ValidationError carries field-level detail for client-correctable input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) add(field, msg string) {
	if _, dup := e.Fields[field]; !dup {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
