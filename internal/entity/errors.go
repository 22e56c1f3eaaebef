package entity

import (
	"fmt"
	"strings"
)

// AuthError means the credential exchange with the CRM failed.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError means the CRM could not be reached or its answer could not be read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is returned for inbound events that can never be delivered.
type RejectionError struct {
	Fields []string
	Err    error
}

func (e *RejectionError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("rejected: %v", e.Err)
}

func (e *RejectionError) Unwrap() error { return e.Err }

type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("failed lead %d not found", e.ID)
}

// StoreIOError is fatal for the operation that touched the store.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }
