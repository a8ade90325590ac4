package data

import (
	"time"

	"PuckRelay/internal/conf"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultUploadCacheSize = 256
	// Providers retain uploaded files for 48h; entries expire before that.
	defaultUploadCacheTTL = 47 * time.Hour
)

// UploadCache implements biz.UploadCache with an expirable LRU.
type UploadCache struct {
	lru *expirable.LRU[string, string]
}

// NewUploadCache creates the uploaded-file uri cache.
func NewUploadCache(c *conf.Data) *UploadCache {
	size, ttl := defaultUploadCacheSize, defaultUploadCacheTTL
	if c != nil && c.UploadCache != nil {
		if c.UploadCache.Size > 0 {
			size = c.UploadCache.Size
		}
		if c.UploadCache.TTL > 0 {
			ttl = c.UploadCache.TTL
		}
	}
	return &UploadCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Get returns the uri uploaded to provider for the given content digest.
func (u *UploadCache) Get(provider, digest string) (string, bool) {
	return u.lru.Get(uploadCacheKey(provider, digest))
}

// Add records an uploaded uri.
func (u *UploadCache) Add(provider, digest, uri string) {
	u.lru.Add(uploadCacheKey(provider, digest), uri)
}

// Len returns the number of live entries.
func (u *UploadCache) Len() int {
	return u.lru.Len()
}

// uri 只在上传它的 provider 上有效
func uploadCacheKey(provider, digest string) string {
	return provider + ":" + digest
}
