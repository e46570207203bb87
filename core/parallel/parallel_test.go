package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelize_CoversEveryItemOnce(t *testing.T) {
	hits := make([]int32, 1000)
	Parallelize(len(hits), func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		assert.Equal(t, int32(1), h, "item %d", i)
	}
}

func TestParallelizeWithThreshold_Sequential(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, int32(1), calls)
}

func TestParallelize_Empty(t *testing.T) {
	Parallelize(0, func(start, end int) { t.Fatal("must not be called") })
}
