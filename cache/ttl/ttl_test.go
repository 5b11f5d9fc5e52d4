package ttl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

func TestEncodeHeaderFormat(t *testing.T) {
	now := time.Unix(1700000000, 500*int64(time.Millisecond))
	codec := NewCodec(fixedClock(now))

	encoded := codec.Encode(60, []byte("alice"))

	assert.Equal(t, "_$1700000060$_alice", string(encoded))
	assert.Len(t, encoded, HeaderLength+5)
}

func TestEncodeZeroPadsDeadline(t *testing.T) {
	codec := NewCodec(fixedClock(time.Unix(42, 0)))

	encoded := codec.Encode(0, []byte{})

	assert.Equal(t, "_$0000000042$_", string(encoded))
}

func TestRoundTrip(t *testing.T) {
	codec := NewCodec(nil)
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("hello world"),
		{0x00, 0xff, '_', '$', 0x10},
	}

	for _, ttl := range []int{0, 1, MIN, DAY, 1000000} {
		for _, payload := range payloads {
			encoded := codec.Encode(ttl, payload)
			assert.True(t, HasHeader(encoded))
			assert.Equal(t, payload, StripHeader(encoded))
		}
	}
}

func TestNoExpirationPassthrough(t *testing.T) {
	payload := []byte("no header here")

	encoded := Encode(NoExpiration, payload)

	assert.Equal(t, payload, encoded)
	assert.False(t, HasHeader(encoded))
	assert.False(t, IsExpired(encoded))
	assert.Equal(t, payload, StripHeader(encoded))
}

func TestHasHeader(t *testing.T) {
	assert.False(t, HasHeader(nil))
	assert.False(t, HasHeader([]byte("_$123$_")))
	assert.False(t, HasHeader([]byte("_$0000000000$")))
	assert.True(t, HasHeader([]byte("_$0000000000$_")))
	assert.False(t, HasHeader([]byte("_#0000000000$_")))
	assert.False(t, HasHeader([]byte("_$0000000000_$")))
}

func TestStripHeaderEmpty(t *testing.T) {
	assert.Equal(t, []byte{}, StripHeader(nil))
	assert.Equal(t, []byte{}, StripHeader([]byte{}))
}

func TestExpiryBoundary(t *testing.T) {
	start := time.Unix(1700000000, 0)
	now := start
	codec := NewCodec(func() time.Time {
		return now
	})

	shortLived := codec.Encode(0, []byte("a"))
	longLived := codec.Encode(1000000, []byte("b"))

	assert.False(t, codec.IsExpired(longLived))

	now = start.Add(time.Second)
	assert.True(t, codec.IsExpired(shortLived))
	assert.False(t, codec.IsExpired(longLived))
}

func TestExpiryExactDeadlineIsNotExpired(t *testing.T) {
	start := time.Unix(1700000000, 0)
	now := start
	codec := NewCodec(func() time.Time {
		return now
	})

	encoded := codec.Encode(10, []byte("a"))

	now = start.Add(10 * time.Second)
	assert.False(t, codec.IsExpired(encoded))

	now = now.Add(time.Millisecond)
	assert.True(t, codec.IsExpired(encoded))
}

// unparsable digits inside a well-formed header are treated as "no deadline"
func TestUnparsableDeadlineIsNotExpired(t *testing.T) {
	data := []byte("_$12345abcde$_payload")

	require.True(t, HasHeader(data))
	assert.False(t, IsExpired(data))

	_, ok := NewCodec(nil).Deadline(data)
	assert.False(t, ok)

	assert.Equal(t, []byte("payload"), StripHeader(data))
}

func TestDeadline(t *testing.T) {
	codec := NewCodec(fixedClock(time.Unix(1700000000, 0)))

	deadline, ok := codec.Deadline(codec.Encode(HOUR, []byte("v")))
	require.True(t, ok)
	assert.Equal(t, int64(1700003600), deadline.Unix())

	_, ok = codec.Deadline([]byte("v"))
	assert.False(t, ok)
}
