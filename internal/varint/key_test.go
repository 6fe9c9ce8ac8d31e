package varint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKeyIntRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 31, 32, -32, 1000, -1000, 1 << 40, -(1 << 40)}
	for _, v := range values {
		tok := EncodeKeyInt(v)
		assert.NotContains(t, tok, " ")
		got, n, err := DecodeKeyInt(tok)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(tok), n)
	}
}

func TestEncodeKeyJoinsTokensWithSpaces(t *testing.T) {
	key := EncodeKey(1, -2, 3)
	assert.Equal(t, 3, len(splitSpaces(key)))
}

func splitSpaces(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func TestDecodeKeyIntRejectsMissingSign(t *testing.T) {
	_, _, err := DecodeKeyInt("0")
	assert.Error(t, err)
}
