package hnsw

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// visitedPool recycles visited sets between searches. Concurrent readers
// each take their own set.
var visitedPool = sync.Pool{
	New: func() any { return bitset.New(0) },
}

// acquireVisited returns a cleared set sized for n positions.
func acquireVisited(n int) *bitset.BitSet {
	b := visitedPool.Get().(*bitset.BitSet)
	b.ClearAll()
	if b.Len() < uint(n) {
		// Set grows the backing words; Clear keeps the bit unset.
		b.Set(uint(n)).Clear(uint(n))
	}
	return b
}

func releaseVisited(b *bitset.BitSet) {
	visitedPool.Put(b)
}
