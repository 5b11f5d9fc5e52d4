package utils

import (
	"time"
	"unicode/utf16"
)

func MakeTimeToString(t time.Time) string {
	return t.Format(time.RFC3339)
}

// JavaStringHash returns the 32-bit string hash used by the JVM (s[0]*31^(n-1) + ... + s[n-1]),
// computed over UTF-16 code units with int32 wrap-around.
// Cache file names depend on it, so files written by other implementations stay addressable.
func JavaStringHash(s string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(s)) {
		hash = 31*hash + int32(unit)
	}
	return hash
}
