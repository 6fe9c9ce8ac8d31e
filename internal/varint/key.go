package varint

import (
	"fmt"
	"strings"
)

// Legacy cache-key encoding: a single-byte sign header followed by 7-bit
// (here, 5-bit for printability) continuation groups, each biased onto a
// byte range that stays human-printable so several encoded integers can
// be joined with spaces into one composable cache-key string. Used
// nowhere else in the engine — the page/header/proto formats all use the
// unsigned/signed codec in varint.go.

const (
	finalAlphabet = "0123456789abcdefghijklmnopqrstuv"
	contAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ!#$%&*"
)

// EncodeKeyInt renders v as a printable, space-free token.
func EncodeKeyInt(v int64) string {
	var sb strings.Builder
	u := uint64(v)
	if v < 0 {
		sb.WriteByte('-')
		u = uint64(-v)
	} else {
		sb.WriteByte('+')
	}
	for {
		group := u & 0x1f
		u >>= 5
		if u != 0 {
			sb.WriteByte(contAlphabet[group])
		} else {
			sb.WriteByte(finalAlphabet[group])
			break
		}
	}
	return sb.String()
}

// DecodeKeyInt parses a token produced by EncodeKeyInt, returning the
// value and the number of bytes consumed from the front of s.
func DecodeKeyInt(s string) (int64, int, error) {
	if len(s) == 0 {
		return 0, 0, fmt.Errorf("empty key token")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
	case '+':
	default:
		return 0, 0, fmt.Errorf("key token missing sign header: %q", s)
	}

	var u uint64
	var shift uint
	i := 1
	for ; i < len(s); i++ {
		c := s[i]
		if idx := strings.IndexByte(contAlphabet, c); idx >= 0 {
			u |= uint64(idx) << shift
			shift += 5
			continue
		}
		if idx := strings.IndexByte(finalAlphabet, c); idx >= 0 {
			u |= uint64(idx) << shift
			i++
			if neg {
				return -int64(u), i, nil
			}
			return int64(u), i, nil
		}
		break
	}
	return 0, 0, fmt.Errorf("unterminated key token: %q", s)
}

// EncodeKey renders a tuple of integers as one space-separated,
// printable cache-key string.
func EncodeKey(parts ...int64) string {
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = EncodeKeyInt(p)
	}
	return strings.Join(tokens, " ")
}
