package repoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"invalid argument", InvalidArgument("bad key %q", "a:b:c"), ErrInvalidArgument},
		{"bad method call", BadMethodCall("operator %q", "foo"), ErrBadMethodCall},
		{"unknown field", UnknownField("blog.Post", "nope"), ErrUnknownField},
		{"unknown association", UnknownAssociation("blog.Post", "tags"), ErrUnknownAssociation},
		{"unknown alias", UnknownAlias("x"), ErrUnknownAlias},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.kind))
			wrapped := fmt.Errorf("planning failed: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.kind))
		})
	}
}

func TestErrorKindsDoNotCrossMatch(t *testing.T) {
	err := InvalidArgument("x")
	assert.False(t, errors.Is(err, ErrBadMethodCall))
	assert.True(t, IsInvalidArgument(err))
	assert.False(t, IsBadMethodCall(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("decode failed")
	err := Wrap(ErrInvalidArgument, cause, "descriptor")

	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "invalid argument: descriptor: decode failed", err.Error())
}
