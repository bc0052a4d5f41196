package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBucketIsStableAndInRange(t *testing.T) {
	bm := New(16)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("+1201555%04d", i)
		b := bm.GetBucket(key)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		assert.Equal(t, b, bm.GetBucket(key))
	}
}

func TestGetBucketSpreadsKeys(t *testing.T) {
	bm := New(8)
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[bm.GetBucket(fmt.Sprintf("+44740012%04d", i))] = true
	}
	assert.Len(t, seen, 8)
}

func TestNonPositiveBucketsFallBackToOne(t *testing.T) {
	bm := New(0)
	assert.Equal(t, 1, bm.Buckets())
	assert.Equal(t, 0, bm.GetBucket("anything"))
}
