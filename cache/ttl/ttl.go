// Package ttl attaches an absolute expiration time to a byte blob as a fixed-width text header.
//
// The header is 14 ASCII bytes: "_$", ten zero-padded digits of the deadline in epoch seconds, and "$_".
// Blobs without a header never expire. Deadlines that need more than ten digits are not validated;
// they produce a header that HasHeader does not recognize.
package ttl

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

const (
	// HeaderLength is the size of the expiration header in bytes
	HeaderLength int = 14
	// NoExpiration disables the expiration header
	NoExpiration int = -1

	SEC  int = 1
	MIN  int = 60
	HOUR int = 3600
	DAY  int = 86400
)

var (
	headerStartMarker = []byte("_$")
	headerEndMarker   = []byte("$_")
)

// Codec encodes and inspects expiration headers against a clock
type Codec struct {
	now func() time.Time
}

// NewCodec creates a new Codec, nil now uses the wall clock
func NewCodec(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}

	return &Codec{
		now: now,
	}
}

var defaultCodec = NewCodec(nil)

// Encode prefixes data with an expiration header when seconds >= 0, using the wall clock
func Encode(seconds int, data []byte) []byte {
	return defaultCodec.Encode(seconds, data)
}

// IsExpired tells if data carries an expiration header whose deadline has passed, using the wall clock
func IsExpired(data []byte) bool {
	return defaultCodec.IsExpired(data)
}

// Encode prefixes data with an expiration header for now + seconds.
// Negative seconds return data unchanged.
func (codec *Codec) Encode(seconds int, data []byte) []byte {
	if seconds < 0 {
		return data
	}

	deadline := codec.now().Unix() + int64(seconds)
	header := fmt.Sprintf("_$%010d$_", deadline)

	content := make([]byte, 0, len(header)+len(data))
	content = append(content, header...)
	content = append(content, data...)
	return content
}

// Deadline returns the deadline stored in the header.
// It returns false if there is no header or its digits cannot be parsed.
func (codec *Codec) Deadline(data []byte) (time.Time, bool) {
	if !HasHeader(data) {
		return time.Time{}, false
	}

	seconds, err := strconv.ParseInt(string(data[2:12]), 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(seconds, 0), true
}

// IsExpired tells if data carries an expiration header whose deadline has passed.
// A header with unparsable digits is treated as having no deadline.
func (codec *Codec) IsExpired(data []byte) bool {
	deadline, ok := codec.Deadline(data)
	if !ok {
		return false
	}

	return codec.now().UnixMilli() > deadline.Unix()*1000
}

// HasHeader tells if data starts with an expiration header
func HasHeader(data []byte) bool {
	return len(data) >= HeaderLength &&
		bytes.Equal(data[0:2], headerStartMarker) &&
		bytes.Equal(data[12:14], headerEndMarker)
}

// StripHeader returns data without its expiration header
func StripHeader(data []byte) []byte {
	if HasHeader(data) {
		return data[HeaderLength:]
	}

	if data == nil {
		return []byte{}
	}
	return data
}
