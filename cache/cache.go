// Package cache composes the memory and disk tiers into one typed cache.
package cache

import (
	"image"

	"github.com/cyverse/cachekit/cache/disk"
	"google.golang.org/protobuf/proto"
)

// Cache is the typed key-value API shared by the disk cache and the two-tier cache.
// saveTime is in seconds, ttl.NoExpiration keeps a value until it is evicted.
type Cache interface {
	PutBytes(key string, value []byte, saveTime int) error
	GetBytes(key string, defaultValue []byte) []byte

	PutString(key string, value string, saveTime int) error
	GetString(key string, defaultValue string) string

	PutJSONObject(key string, value map[string]interface{}, saveTime int) error
	GetJSONObject(key string, defaultValue map[string]interface{}) map[string]interface{}

	PutJSONArray(key string, value []interface{}, saveTime int) error
	GetJSONArray(key string, defaultValue []interface{}) []interface{}

	PutBitmap(key string, value image.Image, saveTime int) error
	GetBitmap(key string, defaultValue image.Image) image.Image

	PutDrawable(key string, value image.Image, saveTime int) error
	GetDrawable(key string, defaultValue image.Image) image.Image

	PutParcelable(key string, value proto.Message, saveTime int) error
	GetParcelable(key string, value proto.Message) bool

	PutSerializable(key string, value interface{}, saveTime int) error
	GetSerializable(key string, value interface{}) bool

	Remove(key string) bool
	Clear() bool
}

var (
	_ Cache = (*disk.DiskCache)(nil)
	_ Cache = (*DoubleCache)(nil)
)
