package data

import (
	"testing"
	"time"

	"PuckRelay/internal/conf"

	"github.com/stretchr/testify/assert"
)

func TestUploadCache_GetAdd(t *testing.T) {
	cache := NewUploadCache(nil)

	_, ok := cache.Get("gemini", "abc")
	assert.False(t, ok)

	cache.Add("gemini", "abc", "https://files.example.com/v1beta/files/1")
	uri, ok := cache.Get("gemini", "abc")
	assert.True(t, ok)
	assert.Equal(t, "https://files.example.com/v1beta/files/1", uri)

	// uris are scoped to the provider that issued them
	_, ok = cache.Get("relay", "abc")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestUploadCache_Eviction(t *testing.T) {
	cache := NewUploadCache(&conf.Data{UploadCache: &conf.DataUploadCache{Size: 2, TTL: time.Hour}})

	cache.Add("gemini", "a", "uri-a")
	cache.Add("gemini", "b", "uri-b")
	cache.Add("gemini", "c", "uri-c")

	_, ok := cache.Get("gemini", "a")
	assert.False(t, ok, "least recently used entry should be evicted")
	assert.Equal(t, 2, cache.Len())
}

func TestUploadCache_Expiry(t *testing.T) {
	cache := NewUploadCache(&conf.Data{UploadCache: &conf.DataUploadCache{Size: 4, TTL: 20 * time.Millisecond}})

	cache.Add("gemini", "a", "uri-a")
	assert.Eventually(t, func() bool {
		_, ok := cache.Get("gemini", "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
