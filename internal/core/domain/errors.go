// Package domain defines the core domain models for meshkv.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a node error with a structured error code.
//
// Codes follow the format MK-<AREA>-<NNNN>. The leading digit of the
// numeric part mirrors HTTP semantics: 4xxx for caller or configuration
// problems, 5xxx for failures of a collaborator (network, storage).
type DomainError struct {
	Code    string // Error code (e.g., "MK-NET-5030")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Store Errors (STORE)
// ============================================================================

var (
	// ErrStoreOpen indicates the replicated store could not be created or opened.
	ErrStoreOpen = NewDomainError("MK-STORE-5001", "open store failed")

	// ErrStoreLoad indicates the replicated store could not load its state.
	ErrStoreLoad = NewDomainError("MK-STORE-5002", "load store failed")

	// ErrStoreWrite indicates a local write could not be persisted.
	ErrStoreWrite = NewDomainError("MK-STORE-5003", "write store failed")

	// ErrNotAttached indicates a store operation before attachment succeeded.
	ErrNotAttached = NewDomainError("MK-STORE-4090", "store not attached")

	// ErrWriteDenied indicates the access policy forbids local writes.
	ErrWriteDenied = NewDomainError("MK-STORE-4030", "write not permitted by access policy")

	// ErrInvalidAddress indicates a malformed store address.
	ErrInvalidAddress = NewDomainError("MK-STORE-4000", "invalid store address")

	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = NewDomainError("MK-STORE-4100", "store closed")

	// ErrKeyNotFound indicates a lookup of a key with no visible value.
	ErrKeyNotFound = NewDomainError("MK-STORE-4040", "key not found")
)

// ============================================================================
// Network Errors (NET)
// ============================================================================

var (
	// ErrConnectFailed indicates a direct connection to a known peer failed.
	ErrConnectFailed = NewDomainError("MK-NET-5021", "connect to peer failed")

	// ErrAnnounceFailed indicates a provider record could not be published.
	ErrAnnounceFailed = NewDomainError("MK-NET-5030", "announce failed")

	// ErrNoRoutingPeers indicates the routing layer has no peers to publish to.
	ErrNoRoutingPeers = NewDomainError("MK-NET-5031", "no routing peers available")

	// ErrPeerUnknown indicates a direct message addressed an unknown peer.
	ErrPeerUnknown = NewDomainError("MK-NET-4040", "peer not found")
)

// ============================================================================
// Gate Errors (GATE)
// ============================================================================

var (
	// ErrGateTimeout indicates the minimum peer count was not reached in time.
	ErrGateTimeout = NewDomainError("MK-GATE-4080", "timed out waiting for peers")

	// ErrGateCancelled indicates the wait for peers was cancelled.
	ErrGateCancelled = NewDomainError("MK-GATE-4990", "wait for peers cancelled")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrInvalidConfig indicates invalid node configuration.
	ErrInvalidConfig = NewDomainError("MK-CONF-4000", "invalid configuration")
)

// ============================================================================
// Request Errors (ARG)
// ============================================================================

var (
	// ErrInvalidRequest indicates a malformed HTTP API request.
	ErrInvalidRequest = NewDomainError("MK-ARG-4000", "invalid request")
)

// fatalCodes lists the errors that abort node startup.
var fatalCodes = map[string]bool{
	ErrStoreOpen.Code:      true,
	ErrStoreLoad.Code:      true,
	ErrInvalidAddress.Code: true,
	ErrGateTimeout.Code:    true,
	ErrInvalidConfig.Code:  true,
}

// IsFatal reports whether err must terminate the node.
//
// Errors outside the domain taxonomy are treated as fatal; recoverable
// conditions (connect, announce) are always wrapped in a DomainError.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	code := GetErrorCode(err)
	if code == "" {
		return true
	}
	return fatalCodes[code]
}
