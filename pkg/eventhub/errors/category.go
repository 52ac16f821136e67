package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category says whether repeating a failed storage operation can help.
type Category int

const (
	// CategoryTransient failures may pass on retry: timeouts, refused
	// connections, a locked database, a Redis server that is still loading.
	CategoryTransient Category = iota

	// CategoryPermanent failures repeat on retry: bad arguments, type
	// mismatches, closed stores, cancelled contexts.
	CategoryPermanent
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	}
	return "unknown"
}

// CategorizedError is a failure tagged with its Category. Retry wraps the
// last failure in one so callers can see how many attempts were made.
type CategorizedError struct {
	Err      error
	Category Category
	Attempts int
	Context  string
}

func (e *CategorizedError) Error() string {
	msg := e.Err.Error()
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("%s (%s, %d attempts)", msg, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Category)
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// Transient tags err as worth retrying.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent tags err as not worth retrying.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// Categorize classifies err. Explicit tags win, then SDK codes
// (CodeDataStoreUnavailable is the only transient code), then context and
// network errors. Anything else is permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var tagged *CategorizedError
	if errors.As(err, &tagged) {
		return tagged.Category
	}
	var sdk *SdkError
	if errors.As(err, &sdk) {
		if sdk.CodeIsA(CodeDataStoreUnavailable) {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryTransient
	}
	return CategoryPermanent
}

// IsRetryable reports whether Categorize considers err transient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
