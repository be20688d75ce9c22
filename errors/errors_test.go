package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrappingPreservesIdentity(t *testing.T) {
	err := Wrap(ErrNotFound, "job abc123")
	assert.True(t, Is(err, ErrNotFound))
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsInvalidRequestError(err))
}

func TestNewNotFoundErrorFormats(t *testing.T) {
	err := NewNotFoundError("job not found: %s", "abc123")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "abc123")
}

func TestConflictSentinel(t *testing.T) {
	err := Wrap(ErrConflict, "status transition lost race")
	assert.True(t, IsConflictError(err))
	assert.False(t, IsNotFoundError(err))
}

func TestTimeoutSentinel(t *testing.T) {
	err := Wrapf(ErrTimeout, "goroutines still running after %s", "10s")
	assert.True(t, Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "10s")
}

func TestNilChecks(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsInvalidRequestError(nil))
	assert.False(t, IsConflictError(nil))
}
