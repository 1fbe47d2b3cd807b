package agent

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/joseph-ayodele/essaycoach/internal/metrics"
)

// UploadCache remembers upload ids by (owner, content hash). A nil cache never hits.
type UploadCache struct {
	lru     *expirable.LRU[string, string]
	metrics *metrics.Recorder
}

// NewUploadCache returns nil when size is not positive, which disables memoization.
func NewUploadCache(size int, ttl time.Duration, rec *metrics.Recorder) *UploadCache {
	if size <= 0 {
		return nil
	}
	return &UploadCache{
		lru:     expirable.NewLRU[string, string](size, nil, ttl),
		metrics: rec,
	}
}

// UploadKey is "owner:md5hex(content)".
func UploadKey(ownerID string, content []byte) string {
	sum := md5.Sum(content)
	return ownerID + ":" + hex.EncodeToString(sum[:])
}

func (c *UploadCache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	id, ok := c.lru.Get(key)
	c.metrics.RecordUploadCache(ok)
	return id, ok
}

func (c *UploadCache) Add(key, uploadID string) {
	if c == nil {
		return
	}
	c.lru.Add(key, uploadID)
}

func (c *UploadCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
