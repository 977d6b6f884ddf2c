package dlerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
)

func TestIs_MatchesDirectKind(t *testing.T) {
	err := dlerrors.Invalid("bad value %d", 3)
	assert.True(t, dlerrors.Is(err, dlerrors.BadInput))
	assert.False(t, dlerrors.Is(err, dlerrors.NotFound))
}

func TestIs_WalksWrappedChain(t *testing.T) {
	base := dlerrors.NotFoundf("session %q not found", "abc")
	wrapped := fmt.Errorf("loading session: %w", base)

	assert.True(t, dlerrors.Is(wrapped, dlerrors.NotFound))
	assert.True(t, errors.Is(wrapped, base))
}

func TestGetKind_UnknownForNonTaxonomyError(t *testing.T) {
	assert.Equal(t, dlerrors.Unknown, dlerrors.GetKind(errors.New("plain error")))
}

func TestGetKind_ReturnsKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("context: %w", dlerrors.Conflictf("session already open"))
	assert.Equal(t, dlerrors.Conflict, dlerrors.GetKind(err))
}

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := dlerrors.Transientf(cause, "flush failed")
	assert.Contains(t, err.Error(), "Transient")
	assert.Contains(t, err.Error(), "flush failed")
	assert.Contains(t, err.Error(), "disk full")
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := dlerrors.Corruptf(cause, "bad frame")
	assert.Equal(t, cause, err.Unwrap())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "BadInput", dlerrors.BadInput.String())
	assert.Equal(t, "Unknown", dlerrors.Unknown.String())
}
