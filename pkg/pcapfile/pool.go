package pcapfile

import "sync"

// Record buffer pools for common sizes. Only buffers that came from recGet
// (checked via capacity) go back to a pool.

const (
	recSmall = 2048
	recLarge = 16384
)

var (
	poolSmall = sync.Pool{New: func() any { b := make([]byte, recSmall); return &b }}
	poolLarge = sync.Pool{New: func() any { b := make([]byte, recLarge); return &b }}
)

func recGet(n int) []byte {
	switch {
	case n <= recSmall:
		p := poolSmall.Get().(*[]byte)
		return (*p)[:n]
	case n <= recLarge:
		p := poolLarge.Get().(*[]byte)
		return (*p)[:n]
	default:
		return make([]byte, n)
	}
}

func recPut(b []byte) {
	switch cap(b) {
	case recSmall:
		bb := b[:recSmall]
		poolSmall.Put(&bb)
	case recLarge:
		bb := b[:recLarge]
		poolLarge.Put(&bb)
	}
}
