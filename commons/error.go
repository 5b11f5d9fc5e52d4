package commons

import (
	"errors"
	"fmt"
)

// CacheDirError contains cache directory error information
type CacheDirError struct {
	Path string
	Err  error
}

// NewCacheDirError creates an error for a cache directory that cannot be created or accessed
func NewCacheDirError(path string, err error) error {
	return &CacheDirError{
		Path: path,
		Err:  err,
	}
}

// Error returns error message
func (err *CacheDirError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("cache directory '%s' is not available - %v", err.Path, err.Err)
	}
	return fmt.Sprintf("cache directory '%s' is not available", err.Path)
}

// Is tests type of error
func (err *CacheDirError) Is(other error) bool {
	_, ok := other.(*CacheDirError)
	return ok
}

// Unwrap returns the underlying error
func (err *CacheDirError) Unwrap() error {
	return err.Err
}

// ToString stringifies the object
func (err *CacheDirError) ToString() string {
	return "<CacheDirError>"
}

// IsCacheDirError evaluates if the given error is cache directory error
func IsCacheDirError(err error) bool {
	return errors.Is(err, &CacheDirError{})
}

// ValueCodecError contains value encoding/decoding error information
type ValueCodecError struct {
	TypeTag string
	Err     error
}

// NewValueCodecError creates an error for a value that cannot be encoded or decoded
func NewValueCodecError(typeTag string, err error) error {
	return &ValueCodecError{
		TypeTag: typeTag,
		Err:     err,
	}
}

// Error returns error message
func (err *ValueCodecError) Error() string {
	return fmt.Sprintf("failed to convert value of type '%s' - %v", err.TypeTag, err.Err)
}

// Is tests type of error
func (err *ValueCodecError) Is(other error) bool {
	_, ok := other.(*ValueCodecError)
	return ok
}

// Unwrap returns the underlying error
func (err *ValueCodecError) Unwrap() error {
	return err.Err
}

// ToString stringifies the object
func (err *ValueCodecError) ToString() string {
	return "<ValueCodecError>"
}

// IsValueCodecError evaluates if the given error is value codec error
func IsValueCodecError(err error) bool {
	return errors.Is(err, &ValueCodecError{})
}
