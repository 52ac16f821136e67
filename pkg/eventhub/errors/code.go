// Package errors provides the error vocabulary shared by the event hub and its modules.
//
// Errors carry a dotted, hierarchical code. A code is-a every dotted prefix of
// itself, so "sharedstate.not_pending" is also "sharedstate":
//
//	if errors.CodeIs(err, errors.CodeInvalidArgument) { ... }
//
// The package also classifies failures (transient or permanent) so storage
// backends can retry with exponential backoff.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// CodeSeparator separates the segments of a hierarchical error code.
const CodeSeparator = "."

// Well-known error codes.
const (
	CodeOK               = "general.ok"
	CodeInvalidArgument  = "general.invalid_argument"
	CodeUnexpected       = "general.unexpected"
	CodeUnsupported      = "general.unsupported"
	CodeUnknownException = "general.unknown_exception"

	CodeModuleInvalidState = "module.invalid_state"
	CodeModuleNotFound     = "module.not_found"
	CodeModuleDuplicate    = "module.duplicate"

	CodeHubDisposed = "eventhub.disposed"
	CodeHubBooted   = "eventhub.already_booted"

	CodeSharedState           = "sharedstate"
	CodeSharedStateNotPending = "sharedstate.not_pending"
	CodeSharedStateNotFound   = "sharedstate.not_found"
	CodeSharedStateVersion    = "sharedstate.version"
	CodeSharedStateDelta      = "sharedstate.invalid_delta"

	CodeDataStore            = "datastore"
	CodeDataStoreNotFound    = "datastore.not_found"
	CodeDataStoreClosed      = "datastore.closed"
	CodeDataStoreType        = "datastore.type_mismatch"
	CodeDataStoreUnavailable = "datastore.unavailable"
)

// CodeIs reports whether code equals parent or is nested below it.
// "fruit.pear" is a "fruit"; "fruitcake" is not.
func CodeIs(code, parent string) bool {
	if parent == "" {
		return false
	}
	if code == parent {
		return true
	}
	return strings.HasPrefix(code, parent+CodeSeparator)
}

// SdkError is an error with a hierarchical code.
type SdkError struct {
	// Code is the dotted error code, e.g. "general.invalid_argument".
	Code string

	// Message describes the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// New creates an SdkError.
func New(code, message string) *SdkError {
	return &SdkError{Code: code, Message: message}
}

// Newf creates an SdkError with a formatted message.
func Newf(code, format string, args ...any) *SdkError {
	return &SdkError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an SdkError around an underlying cause.
func Wrap(err error, code, message string) *SdkError {
	return &SdkError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *SdkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SdkError) Unwrap() error {
	return e.Err
}

// Is matches another SdkError when this error's code is-a the target's code.
// Messages are ignored, which lets package-level sentinels act as code matchers.
func (e *SdkError) Is(target error) bool {
	var t *SdkError
	if !errors.As(target, &t) {
		return false
	}
	return CodeIs(e.Code, t.Code)
}

// CodeIsA reports whether this error's code is-a parent.
func (e *SdkError) CodeIsA(parent string) bool {
	return CodeIs(e.Code, parent)
}

// CodeOf returns the code of the first SdkError in err's chain.
// Nil yields CodeOK; an error without a code yields CodeUnknownException.
func CodeOf(err error) string {
	if err == nil {
		return CodeOK
	}
	var sdkErr *SdkError
	if errors.As(err, &sdkErr) {
		return sdkErr.Code
	}
	return CodeUnknownException
}

// HasCode reports whether any error in err's chain has a code that is-a parent.
func HasCode(err error, parent string) bool {
	for err != nil {
		var sdkErr *SdkError
		if !errors.As(err, &sdkErr) {
			return false
		}
		if CodeIs(sdkErr.Code, parent) {
			return true
		}
		err = sdkErr.Err
	}
	return false
}

// InvalidArgument creates a general.invalid_argument error.
func InvalidArgument(format string, args ...any) *SdkError {
	return Newf(CodeInvalidArgument, format, args...)
}

// PanicError is a recovered panic from a module callback.
type PanicError struct {
	// Where names the callback that panicked, e.g. "listener hub/booted".
	Where string

	// Value is the value passed to panic.
	Value any

	// Stack is the goroutine stack captured at recovery.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("panic in %s: %v", e.Where, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is makes every PanicError an unknown exception.
func (e *PanicError) Is(target error) bool {
	var t *SdkError
	if errors.As(target, &t) {
		return CodeIs(CodeUnknownException, t.Code)
	}
	return false
}
