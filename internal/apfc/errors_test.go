package apfc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := newErr(ErrKindToolchain, "Workspace.runToolchain", fmt.Errorf("exit status 1"))
	require.EqualError(t, e, "Workspace.runToolchain: toolchain: exit status 1")

	bare := &Error{Kind: ErrKindPlanning, Op: "Planner.Plan"}
	assert.Equal(t, "Planner.Plan: planning", bare.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	e := newErr(ErrKindExternalCall, "op", cause)
	assert.True(t, errors.Is(e, cause))
}

func TestKindOf(t *testing.T) {
	e := newErr(ErrKindLayerPolicy, "op", fmt.Errorf("boom"))
	wrapped := fmt.Errorf("context: %w", e)

	assert.Equal(t, ErrKindLayerPolicy, KindOf(e))
	assert.Equal(t, ErrKindLayerPolicy, KindOf(wrapped))
	assert.Equal(t, ErrKind(""), KindOf(fmt.Errorf("plain error")))
	assert.Equal(t, ErrKind(""), KindOf(nil))
}
