// Package classify maps raw failures from external collaborators (AI vendors,
// media pipelines, browser clients) into structured, retry-relevant categories.
//
// Classification is total: Classify never fails and always returns a value,
// even for nil errors or inputs that are not structured errors at all. Many
// failures originate in third-party libraries with no typed errors, so the
// fallback layer matches on message heuristics; call boundaries that already
// know the category (an HTTP client that saw a 429) should use Tag instead so
// classification does not depend on string matching.
package classify

import (
	"context"
	"fmt"
	"strings"
)

// Category is the retry-relevant classification of a failure
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryPermission Category = "permission"
	CategoryAPI        Category = "api"
	CategoryResource   Category = "resource"
	CategoryBrowser    Category = "browser"
	CategorySession    Category = "session"
	CategoryUnknown    Category = "unknown"
)

// Retryable reports whether failures in this category are plausibly transient.
// Unknown fails open toward availability: an unclassified failure is assumed
// possibly transient rather than permanently fatal.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryAPI, CategoryUnknown:
		return true
	default:
		return false
	}
}

// CategorizedError is the structured result of classifying a failure.
// It is produced fresh per classification call and is never mutated after.
// UserMessage and RecoveryAction are returned as data; rendering is the
// caller's concern.
type CategorizedError struct {
	Category       Category `json:"category"`
	Message        string   `json:"message"`
	Retryable      bool     `json:"retryable"`
	UserMessage    string   `json:"user_message"`
	RecoveryAction string   `json:"recovery_action"`
	Err            error    `json:"-"` // original failure, nil for non-error inputs
}

// Error implements the error interface so a CategorizedError can travel
// through error-returning call chains without losing the original.
func (e *CategorizedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap exposes the original failure for errors.Is/As chains
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// categoryInfo carries the fixed user-facing strings per category
type categoryInfo struct {
	userMessage    string
	recoveryAction string
}

var categoryTable = map[Category]categoryInfo{
	CategoryNetwork: {
		userMessage:    "We're having trouble connecting. We'll retry automatically.",
		recoveryAction: "Check your internet connection and try again.",
	},
	CategoryPermission: {
		userMessage:    "Access to a required resource was denied.",
		recoveryAction: "Re-grant access permissions, then retry the job.",
	},
	CategoryAPI: {
		userMessage:    "The processing service returned an error. We'll retry automatically.",
		recoveryAction: "Retry; if the problem persists, contact support.",
	},
	CategorySession: {
		userMessage:    "Your session has expired.",
		recoveryAction: "Sign in again to continue.",
	},
	CategoryBrowser: {
		userMessage:    "Your browser doesn't support a required capability.",
		recoveryAction: "Switch to a recent version of Chrome or Edge.",
	},
	CategoryResource: {
		userMessage:    "A required resource is missing or no longer available.",
		recoveryAction: "Verify the resource still exists before retrying.",
	},
	CategoryUnknown: {
		userMessage:    "Something unexpected went wrong. We'll retry automatically.",
		recoveryAction: "Retry; if the problem persists, contact support.",
	},
}

// rateLimitedUserMessage replaces the generic api message when the failure is
// a vendor rate limit: the right move is waiting, not worrying.
const rateLimitedUserMessage = "The processing service is busy right now. We'll retry in a little while."

// Classify categorizes an error. It never panics and never returns a zero
// value: nil errors classify as unknown.
//
// Precedence (first match wins): tagged category, then
// permission > network > api > session > browser > resource > unknown.
func Classify(err error) *CategorizedError {
	if err == nil {
		return build(CategoryUnknown, "unknown error", nil, false)
	}

	// Boundary-tagged errors carry their category directly; no heuristics
	if cat, ok := CategoryOf(err); ok {
		rateLimited := cat == CategoryAPI && isRateLimited(strings.ToLower(err.Error()))
		return build(cat, err.Error(), err, rateLimited)
	}

	// context deadline failures behave like network timeouts
	if isContextTimeout(err) {
		return build(CategoryNetwork, err.Error(), err, false)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case matchesAny(lower, permissionSignals):
		return build(CategoryPermission, msg, err, false)
	case matchesAny(lower, networkSignals):
		return build(CategoryNetwork, msg, err, false)
	case matchesAny(lower, apiSignals):
		return build(CategoryAPI, msg, err, isRateLimited(lower))
	case matchesAny(lower, sessionSignals):
		return build(CategorySession, msg, err, false)
	case matchesAny(lower, browserSignals):
		return build(CategoryBrowser, msg, err, false)
	case matchesAny(lower, resourceSignals):
		return build(CategoryResource, msg, err, false)
	default:
		return build(CategoryUnknown, msg, err, false)
	}
}

// ClassifyValue categorizes an arbitrary recovered value (e.g. from a panic
// in a handler). Non-error inputs are stringified and classified by message.
func ClassifyValue(v interface{}) *CategorizedError {
	switch val := v.(type) {
	case nil:
		return build(CategoryUnknown, "unknown error", nil, false)
	case error:
		return Classify(val)
	case string:
		return Classify(stringError(val))
	default:
		return Classify(stringError(fmt.Sprintf("%v", val)))
	}
}

// stringError lets plain strings flow through the error-based matcher
type stringError string

func (s stringError) Error() string { return string(s) }

// Signal tables. Order within a table does not matter; order across tables is
// the classification precedence in Classify.
var (
	permissionSignals = []string{
		"permission denied",
		"permission revoked",
		"access denied",
		"access revoked",
		"not authorized",
		"forbidden",
		"notallowederror",
	}

	networkSignals = []string{
		"failed to fetch",
		"network",
		"connection refused",
		"connection reset",
		"connection closed",
		"no such host",
		"timeout",
		"timed out",
		"deadline exceeded",
		"broken pipe",
		"temporarily unreachable",
	}

	apiSignals = []string{
		"rate limit",
		"too many requests",
		"429",
		"quota exceeded",
		"500",
		"502",
		"503",
		"504",
		"internal server error",
		"bad gateway",
		"service unavailable",
		"overloaded",
	}

	sessionSignals = []string{
		"session expired",
		"session has expired",
		"401",
		"unauthorized",
		"token expired",
		"invalid token",
		"authentication required",
	}

	browserSignals = []string{
		"not supported",
		"notsupportederror",
		"unsupported browser",
		"getusermedia",
		"mediarecorder",
	}

	resourceSignals = []string{
		"not found",
		"404",
		"does not exist",
		"no longer available",
		"has been deleted",
		"gone",
	}

	rateLimitSignals = []string{
		"rate limit",
		"too many requests",
		"429",
		"quota exceeded",
	}
)

func matchesAny(lower string, signals []string) bool {
	for _, s := range signals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func isRateLimited(lower string) bool {
	return matchesAny(lower, rateLimitSignals)
}

func isContextTimeout(err error) bool {
	for e := err; e != nil; e = unwrap(e) {
		if e == context.DeadlineExceeded {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func build(cat Category, msg string, err error, rateLimited bool) *CategorizedError {
	info := categoryTable[cat]
	userMessage := info.userMessage
	message := msg
	if rateLimited {
		userMessage = rateLimitedUserMessage
		message = "rate limited: " + msg
	}
	return &CategorizedError{
		Category:       cat,
		Message:        message,
		Retryable:      cat.Retryable(),
		UserMessage:    userMessage,
		RecoveryAction: info.recoveryAction,
		Err:            err,
	}
}
