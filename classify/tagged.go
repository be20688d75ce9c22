package classify

import "github.com/skillvee/mend/errors"

// taggedError carries a category assigned at a call boundary that already
// knew what went wrong (an HTTP client that saw a 429, an auth layer that saw
// a revoked grant). Tagging beats string matching: message heuristics break
// silently across library upgrades, a tag does not.
type taggedError struct {
	err      error
	category Category
}

func (e *taggedError) Error() string {
	return e.err.Error()
}

func (e *taggedError) Unwrap() error {
	return e.err
}

// Tag wraps err with an explicit category. Classify short-circuits on tagged
// errors and skips the heuristic table entirely. Tagging a nil error returns nil.
func Tag(err error, category Category) error {
	if err == nil {
		return nil
	}
	return &taggedError{err: err, category: category}
}

// Tagf creates a new tagged error with a formatted message
func Tagf(category Category, format string, args ...interface{}) error {
	return &taggedError{err: errors.Newf(format, args...), category: category}
}

// CategoryOf reports the boundary-assigned category of err, if any.
// The innermost tag wins when tags are nested.
func CategoryOf(err error) (Category, bool) {
	var found *taggedError
	for e := err; e != nil; e = unwrap(e) {
		if t, ok := e.(*taggedError); ok {
			found = t
		}
	}
	if found == nil {
		return "", false
	}
	return found.category, true
}
