// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package errors provides structured error handling for the lite client.
// It defines error codes and utilities for consistent error management across
// the storage, query, and verification layers.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type.
type ErrorCode string

const (
	// Storage/query seam errors (recoverable by the caller).
	ErrorCodeStorageIO   ErrorCode = "STORAGE_IO"
	ErrorCodeSerdeError  ErrorCode = "SERDE_ERROR"
	ErrorCodeQueryFailed ErrorCode = "QUERY_FAILED"

	// Verification errors (fatal to the current verification attempt).
	ErrorCodeZerostateHashMismatch   ErrorCode = "ZEROSTATE_HASH_MISMATCH"
	ErrorCodeTrustedAnchorMismatch   ErrorCode = "TRUSTED_ANCHOR_MISMATCH"
	ErrorCodeProofVerificationFailed ErrorCode = "PROOF_VERIFICATION_FAILED"
	ErrorCodeChainGapOrFork          ErrorCode = "CHAIN_GAP_OR_FORK"
	ErrorCodeShardRootHashMismatch   ErrorCode = "SHARD_ROOT_HASH_MISMATCH"

	// Internal, retried with a delay inside the engine; never surfaces.
	ErrorCodeShardCommitNotYet ErrorCode = "SHARD_COMMIT_NOT_YET"

	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ClientError represents a structured error with a code and an optional cause.
type ClientError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// New creates a new ClientError.
func New(code ErrorCode, message string) *ClientError {
	return &ClientError{Code: code, Message: message}
}

// Newf creates a new ClientError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *ClientError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code ErrorCode, message string) *ClientError {
	return &ClientError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with a code and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ClientError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetails adds detailed information to the error.
func (e *ClientError) WithDetails(details string) *ClientError {
	e.Details = details
	return e
}

// As extracts a ClientError from an error chain.
func As(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCode checks whether the first ClientError in the chain carries the given
// code. ClientErrors wrapped beneath that one are not inspected.
func HasCode(err error, code ErrorCode) bool {
	if ce, ok := As(err); ok {
		return ce.Code == code
	}
	return false
}

// Internal wraps an unexpected error from a lower layer.
func Internal(err error, operation string) *ClientError {
	return Wrapf(err, ErrorCodeInternalError, "internal error during %s", operation)
}
