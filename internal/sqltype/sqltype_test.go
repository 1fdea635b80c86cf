package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDataType(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"int", KindInt},
		{"BIGINT", KindInt},
		{"int(11)", KindInt},
		{"decimal(10,2)", KindFloat},
		{"double", KindFloat},
		{"boolean", KindBool},
		{"datetime", KindTime},
		{"timestamp", KindTime},
		{"varbinary", KindBytes},
		{"blob", KindBytes},
		{"json", KindJSON},
		{"uuid", KindUUID},
		{"varchar(255)", KindString},
		{"enum('a','b')", KindString},
		{"geometry", KindString},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromDataType(tt.input))
		})
	}
}

func TestParseKind(t *testing.T) {
	for kind, name := range kindNames {
		parsed, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
		assert.Equal(t, name, kind.String())
	}

	parsed, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindString, parsed)

	parsed, err = ParseKind(" UUID ")
	require.NoError(t, err)
	assert.Equal(t, KindUUID, parsed)

	_, err = ParseKind("money")
	assert.Error(t, err)
}

func TestKeepsBytes(t *testing.T) {
	assert.True(t, KindBytes.KeepsBytes())
	assert.False(t, KindString.KeepsBytes())
	assert.False(t, KindUUID.KeepsBytes())
}
