package disk

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyverse/cachekit/cache/ttl"
	"github.com/cyverse/cachekit/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type testProfile struct {
	Name   string
	Age    int
	Emails []string
}

func newTestImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 200, A: 255})
		}
	}
	return img
}

func TestDiskCacheStringRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	require.NoError(t, cache.PutString("user", "alice", ttl.NoExpiration))

	assert.Equal(t, "alice", cache.GetString("user", "nobody"))
	assert.Equal(t, "nobody", cache.GetString("missing", "nobody"))
	assert.Equal(t, 1, cache.GetCacheCount())
	assert.EqualValues(t, 5, cache.GetCacheSize())
}

func TestDiskCacheBytesRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)
	payload := []byte{0x00, '_', '$', 0xff, 0x10}

	require.NoError(t, cache.PutBytes("raw", payload, ttl.HOUR))

	assert.Equal(t, payload, cache.GetBytes("raw", nil))
	assert.Nil(t, cache.GetBytes("missing", nil))
	assert.EqualValues(t, ttl.HeaderLength+len(payload), cache.GetCacheSize())
}

func TestDiskCacheEmptyValue(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	require.NoError(t, cache.PutString("empty", "", ttl.NoExpiration))
	require.NoError(t, cache.PutString("empty-ttl", "", ttl.MIN))

	assert.Equal(t, "", cache.GetString("empty", "default"))
	assert.Equal(t, "", cache.GetString("empty-ttl", "default"))
}

func TestDiskCacheJSONRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	object := map[string]interface{}{
		"name":  "alice",
		"age":   float64(30),
		"admin": true,
	}
	array := []interface{}{"a", float64(1), nil}

	require.NoError(t, cache.PutJSONObject("profile", object, ttl.NoExpiration))
	require.NoError(t, cache.PutJSONArray("list", array, ttl.NoExpiration))

	assert.Equal(t, object, cache.GetJSONObject("profile", nil))
	assert.Equal(t, array, cache.GetJSONArray("list", nil))
}

func TestDiskCacheImageRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)
	img := newTestImage()

	require.NoError(t, cache.PutBitmap("avatar", img, ttl.NoExpiration))
	require.NoError(t, cache.PutDrawable("avatar", img, ttl.NoExpiration))

	for _, got := range []image.Image{cache.GetBitmap("avatar", nil), cache.GetDrawable("avatar", nil)} {
		require.NotNil(t, got)
		assert.Equal(t, img.Bounds(), got.Bounds())

		r1, g1, b1, a1 := img.At(2, 1).RGBA()
		r2, g2, b2, a2 := got.At(2, 1).RGBA()
		assert.Equal(t, []uint32{r1, g1, b1, a1}, []uint32{r2, g2, b2, a2})
	}

	assert.Equal(t, 2, cache.GetCacheCount())
}

func TestDiskCacheParcelableRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	require.NoError(t, cache.PutParcelable("greeting", wrapperspb.String("hello"), ttl.NoExpiration))

	value := &wrapperspb.StringValue{}
	assert.True(t, cache.GetParcelable("greeting", value))
	assert.Equal(t, "hello", value.GetValue())

	assert.False(t, cache.GetParcelable("missing", &wrapperspb.StringValue{}))
}

func TestDiskCacheSerializableRoundTrip(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)
	profile := testProfile{
		Name:   "alice",
		Age:    30,
		Emails: []string{"alice@example.com"},
	}

	require.NoError(t, cache.PutSerializable("profile", profile, ttl.NoExpiration))

	got := testProfile{}
	assert.True(t, cache.GetSerializable("profile", &got))
	assert.Equal(t, profile, got)
}

func TestDiskCacheCompressedSerializable(t *testing.T) {
	codec, err := NewZstdCodec(GobCodec{}, 3)
	require.NoError(t, err)

	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount, WithCodec(TypeSerializable, codec))
	profile := testProfile{
		Name: "bob",
		Age:  41,
	}

	require.NoError(t, cache.PutSerializable("profile", profile, ttl.NoExpiration))

	got := testProfile{}
	assert.True(t, cache.GetSerializable("profile", &got))
	assert.Equal(t, profile, got)
}

func TestDiskCacheTypesAreNamespaced(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	require.NoError(t, cache.PutString("k", "text", ttl.NoExpiration))
	require.NoError(t, cache.PutBytes("k", []byte("bytes"), ttl.NoExpiration))

	assert.Equal(t, "text", cache.GetString("k", ""))
	assert.Equal(t, []byte("bytes"), cache.GetBytes("k", nil))
	assert.Nil(t, cache.GetJSONObject("k", nil))
	assert.Equal(t, 2, cache.GetCacheCount())
}

func TestDiskCacheRemoveAllTypes(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	require.NoError(t, cache.PutString("k", "text", ttl.NoExpiration))
	require.NoError(t, cache.PutBytes("k", []byte("bytes"), ttl.NoExpiration))
	require.NoError(t, cache.PutString("other", "stays", ttl.NoExpiration))

	assert.True(t, cache.Remove("k"))

	assert.Equal(t, "gone", cache.GetString("k", "gone"))
	assert.Nil(t, cache.GetBytes("k", nil))
	assert.Equal(t, "stays", cache.GetString("other", ""))
	assert.Equal(t, 1, cache.GetCacheCount())

	assert.True(t, cache.Remove("never-stored"))
}

func TestDiskCacheExpiration(t *testing.T) {
	clock := newTestClock()
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount, WithClock(clock.Now))

	require.NoError(t, cache.PutString("user", "alice", 60))
	assert.Equal(t, 1, cache.GetCacheCount())

	clock.Advance(59 * time.Second)
	assert.Equal(t, "alice", cache.GetString("user", "nobody"))

	clock.Advance(2 * time.Second)
	assert.Equal(t, "nobody", cache.GetString("user", "nobody"))
	assert.Equal(t, 0, cache.GetCacheCount())
	assert.EqualValues(t, 0, cache.GetCacheSize())

	metrics := cache.GetMetrics()
	assert.EqualValues(t, 1, metrics.Expired)
	assert.EqualValues(t, 1, metrics.Hits)
	assert.EqualValues(t, 1, metrics.Misses)
}

func TestDiskCacheZeroTTLExpiresAfterOneSecond(t *testing.T) {
	clock := newTestClock()
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount, WithClock(clock.Now))

	require.NoError(t, cache.PutString("flash", "now", 0))
	assert.Equal(t, "now", cache.GetString("flash", ""))

	clock.Advance(time.Second + time.Millisecond)
	assert.Equal(t, "", cache.GetString("flash", ""))
}

func TestDiskCacheEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newTestClock()
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, 2, WithClock(clock.Now))

	require.NoError(t, cache.PutString("A", "a", ttl.NoExpiration))
	clock.Advance(time.Second)
	require.NoError(t, cache.PutString("B", "b", ttl.NoExpiration))
	clock.Advance(time.Second)

	// reading A makes B the oldest
	assert.Equal(t, "a", cache.GetString("A", ""))
	clock.Advance(time.Second)

	require.NoError(t, cache.PutString("C", "c", ttl.NoExpiration))

	assert.Equal(t, "a", cache.GetString("A", ""))
	assert.Equal(t, "", cache.GetString("B", ""))
	assert.Equal(t, "c", cache.GetString("C", ""))
	assert.Equal(t, 2, cache.GetCacheCount())
}

func TestDiskCacheHoldsSizeLimit(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), 100, DefaultMaxCount)

	for i := 0; i < 50; i++ {
		require.NoError(t, cache.PutBytes(fmt.Sprintf("blob%d", i), make([]byte, 30), ttl.NoExpiration))
		assert.LessOrEqual(t, cache.GetCacheSize(), int64(100))
	}

	assert.Equal(t, 3, cache.GetCacheCount())
}

func TestDiskCacheUndecodableValueReturnsDefault(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	// raw bytes that no codec accepts
	require.NoError(t, cache.putBytes(TypeJSONObject+"broken", []byte("{not json"), ttl.NoExpiration))

	fallback := map[string]interface{}{"fallback": true}
	assert.Equal(t, fallback, cache.GetJSONObject("broken", fallback))

	require.NoError(t, cache.putBytes(TypeBitmap+"broken", []byte("not an image"), ttl.NoExpiration))
	assert.Nil(t, cache.GetBitmap("broken", nil))
}

func TestDiskCacheWritesExpectedFile(t *testing.T) {
	clock := newTestClock()
	dir := t.TempDir()
	cache := NewDiskCache(dir, DefaultMaxSize, DefaultMaxCount, WithClock(clock.Now))

	require.NoError(t, cache.PutString("user", "alice", 60))

	data, err := os.ReadFile(filepath.Join(dir, "cdu_st_3599307"))
	require.NoError(t, err)
	assert.Equal(t, "_$1700000060$_alice", string(data))
}

func TestDiskCacheInspect(t *testing.T) {
	clock := newTestClock()
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount, WithClock(clock.Now))

	require.NoError(t, cache.PutString("user", "alice", 60))
	require.NoError(t, cache.PutString("forever", "x", ttl.NoExpiration))

	info, ok := cache.Inspect(TypeString, "user")
	require.True(t, ok)
	assert.True(t, info.Expires)
	assert.Equal(t, time.Unix(1700000060, 0), info.Deadline)
	assert.EqualValues(t, ttl.HeaderLength+5, info.Size)

	info, ok = cache.Inspect(TypeString, "forever")
	require.True(t, ok)
	assert.False(t, info.Expires)

	_, ok = cache.Inspect(TypeString, "missing")
	assert.False(t, ok)
}

func TestDiskCacheClear(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), DefaultMaxSize, DefaultMaxCount)

	for i := 0; i < 5; i++ {
		require.NoError(t, cache.PutString(fmt.Sprintf("k%d", i), "v", ttl.NoExpiration))
	}

	assert.True(t, cache.Clear())
	assert.Equal(t, 0, cache.GetCacheCount())
	assert.EqualValues(t, 0, cache.GetCacheSize())
	assert.Equal(t, "", cache.GetString("k0", ""))
}

func TestDiskCacheRecreatesDeletedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	cache := NewDiskCache(dir, DefaultMaxSize, DefaultMaxCount)

	require.NoError(t, cache.PutString("a", "1", ttl.NoExpiration))
	require.NoError(t, os.RemoveAll(dir))

	require.NoError(t, cache.PutString("b", "2", ttl.NoExpiration))

	assert.DirExists(t, dir)
	assert.Equal(t, "2", cache.GetString("b", ""))
	assert.Equal(t, 1, cache.GetCacheCount())
}

func TestDiskCacheReopenSeesExistingFiles(t *testing.T) {
	dir := t.TempDir()

	first := NewDiskCache(dir, DefaultMaxSize, DefaultMaxCount)
	require.NoError(t, first.PutString("a", "1", ttl.NoExpiration))
	require.NoError(t, first.PutString("b", "22", ttl.NoExpiration))

	second := NewDiskCache(dir, DefaultMaxSize, DefaultMaxCount)
	assert.Equal(t, 2, second.GetCacheCount())
	assert.EqualValues(t, 3, second.GetCacheSize())
	assert.Equal(t, "22", second.GetString("b", ""))
}

func TestGetInstanceReturnsSameCache(t *testing.T) {
	dir := t.TempDir()

	first, err := GetInstance(dir, 1000, 10)
	require.NoError(t, err)

	second, err := GetInstance(filepath.Join(dir, "."), 1000, 10)
	require.NoError(t, err)

	other, err := GetInstance(dir, 1000, 11)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

func TestSetDefaultInstance(t *testing.T) {
	cache, err := GetInstance(t.TempDir(), 1000, 10)
	require.NoError(t, err)

	SetDefaultInstance(cache)
	defer SetDefaultInstance(nil)

	defaultCache, err := GetDefaultInstance()
	require.NoError(t, err)
	assert.Same(t, cache, defaultCache)

	SetDefaultInstance(nil)

	defaultCache, err = GetDefaultInstance()
	require.NoError(t, err)
	assert.NotSame(t, cache, defaultCache)
	assert.Equal(t, commons.CacheDirNameDefault, filepath.Base(defaultCache.GetRootPath()))
}

func TestDiskCacheLimits(t *testing.T) {
	cache := NewDiskCache(t.TempDir(), 1000, 10)

	assert.EqualValues(t, 1000, cache.GetSizeLimit())
	assert.Equal(t, 10, cache.GetCountLimit())
}

func TestDiskCachePurge(t *testing.T) {
	clock := newTestClock()
	dir := t.TempDir()
	cache := NewDiskCache(dir, DefaultMaxSize, DefaultMaxCount, WithClock(clock.Now))

	require.NoError(t, cache.PutString("short", "a", 10))
	require.NoError(t, cache.PutString("long", "b", ttl.HOUR))
	require.NoError(t, cache.PutBytes("forever", []byte("c"), ttl.NoExpiration))
	require.NoError(t, cache.PutBytes("tiny", []byte{}, ttl.NoExpiration))

	clock.Advance(time.Minute)

	purged, err := cache.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	assert.Equal(t, 3, cache.GetCacheCount())
	assert.NoFileExists(t, filepath.Join(dir, "cdu_st_109413500"))
	assert.Equal(t, "b", cache.GetString("long", ""))
	assert.Equal(t, []byte("c"), cache.GetBytes("forever", nil))
	assert.EqualValues(t, 1, cache.GetMetrics().Expired)
}
