// Package errs provides structured, coded errors for memsess's ambient
// boundary: flag parsing, listener setup, and config-file decoding.
// Store and dispatcher operations never cross this boundary with a Go
// error; they return the wire Result enum instead (see internal/store).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package errs

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for memsess startup/config failures.
const (
	ErrCodeInvalidPort    errors.ErrorCode = "MEMSESS_INVALID_PORT"
	ErrCodeInvalidLimit   errors.ErrorCode = "MEMSESS_INVALID_LIMIT"
	ErrCodeInvalidThreads errors.ErrorCode = "MEMSESS_INVALID_THREADS"
	ErrCodeListenFailed   errors.ErrorCode = "MEMSESS_LISTEN_FAILED"
	ErrCodeConfigDecode   errors.ErrorCode = "MEMSESS_CONFIG_DECODE_FAILED"
)

const (
	msgInvalidPort    = "invalid port: must be between 1 and 65535"
	msgInvalidLimit   = "invalid session limit: must be between 0 (unlimited) and 4294967295"
	msgInvalidThreads = "invalid thread count: must be between 1 and the host's hardware concurrency"
	msgListenFailed   = "failed to bind listening socket"
	msgConfigDecode   = "failed to decode configuration"
)

// NewErrInvalidPort creates an error for a -p flag value outside 1..65535.
func NewErrInvalidPort(value int) error {
	return errors.NewWithField(ErrCodeInvalidPort, msgInvalidPort, "provided_port", value)
}

// NewErrInvalidLimit creates an error for a -l flag value outside
// 0..4294967295. A value of 0 is not rejected; it means unlimited.
func NewErrInvalidLimit(value int) error {
	return errors.NewWithField(ErrCodeInvalidLimit, msgInvalidLimit, "provided_limit", value)
}

// NewErrInvalidThreads creates an error for a -t flag value outside 1..NumCPU.
func NewErrInvalidThreads(value, max int) error {
	return errors.NewWithContext(ErrCodeInvalidThreads, msgInvalidThreads, map[string]interface{}{
		"provided_threads": value,
		"max_threads":      max,
	})
}

// NewErrListenFailed wraps a net.Listen failure.
func NewErrListenFailed(addr string, cause error) error {
	return errors.Wrap(cause, ErrCodeListenFailed, msgListenFailed).
		WithContext("addr", addr).
		AsRetryable()
}

// NewErrConfigDecode wraps a configuration decode failure: a CLI flag
// parse error or a hot-reload config file that cannot be watched.
func NewErrConfigDecode(path string, cause error) error {
	return errors.Wrap(cause, ErrCodeConfigDecode, msgConfigDecode).
		WithContext("path", path).
		WithSeverity("warning")
}

// IsRetryable reports whether err can reasonably be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// Code extracts the structured error code from err, if any.
func Code(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}
