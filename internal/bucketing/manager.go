package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"

	"whispr-service/internal/config"
)

// BucketingManager maps user numbers onto a fixed number of stripes.
type BucketingManager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	return New(cfg.Bucketing.SessionStripes)
}

func New(buckets int) *BucketingManager {
	if buckets <= 0 {
		buckets = 1
	}
	return &BucketingManager{
		buckets: buckets,
		hasherPool: sync.Pool{
			New: func() any { return murmur3.New64() },
		},
	}
}

// GetBucket returns a stable bucket in [0, Buckets()) for key.
func (bm *BucketingManager) GetBucket(key string) int {
	return int(bm.getHash(key) % uint64(bm.buckets))
}

func (bm *BucketingManager) Buckets() int {
	return bm.buckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
