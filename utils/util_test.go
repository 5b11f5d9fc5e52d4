package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJavaStringHash(t *testing.T) {
	cases := map[string]int32{
		"":                   0,
		"a":                  97,
		"hello":              99162322,
		"user":               3599307,
		"polygenelubricants": -2147483648,
		"é":                  233,
		"😀":                  1772899,
	}

	for input, expected := range cases {
		assert.Equal(t, expected, JavaStringHash(input), "hash of %q", input)
	}
}

func TestTimeString(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01T12:30:00Z", MakeTimeToString(now))

	offset := time.FixedZone("KST", 9*60*60)
	assert.Equal(t, "2024-03-01T21:30:00+09:00", MakeTimeToString(now.In(offset)))
}
