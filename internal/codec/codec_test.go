package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
)

func TestRoundTrip(t *testing.T) {
	c := New("test-key", "classattend")
	issued := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	token, err := c.Encode("session-123", issued)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "session-123", payload.SessionID)
	assert.True(t, payload.IssuedAt.Equal(issued))
}

func TestEncode_EmptySessionID(t *testing.T) {
	c := New("test-key", "classattend")
	_, err := c.Encode("", time.Now())
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestDecode_Malformed(t *testing.T) {
	c := New("test-key", "classattend")
	inputs := []string{
		"",
		"garbage",
		"a.b",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9.e30.",
		"!!!not-base64!!!.x.y",
	}
	for _, in := range inputs {
		_, err := c.Decode(in)
		assert.True(t, apperr.Is(err, apperr.Validation), "input %q should be malformed", in)
	}
}

func TestDecode_WrongKey(t *testing.T) {
	token, err := New("key-a", "classattend").Encode("session-1", time.Now())
	require.NoError(t, err)

	_, err = New("key-b", "classattend").Decode(token)
	assert.True(t, apperr.Is(err, apperr.Validation), "forged signature must be rejected as malformed")
}

func TestDecode_WrongIssuer(t *testing.T) {
	token, err := New("key", "other-app").Encode("session-1", time.Now())
	require.NoError(t, err)

	_, err = New("key", "classattend").Decode(token)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestDecode_Truncated(t *testing.T) {
	c := New("test-key", "classattend")
	token, err := c.Encode("session-1", time.Now())
	require.NoError(t, err)

	for i := 0; i < len(token); i += 7 {
		_, err := c.Decode(token[:i])
		assert.Error(t, err, "truncated token of length %d must not decode", i)
	}
}
