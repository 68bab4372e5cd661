package scheduler

import "math/bits"

// bitset is a fixed-width view over an arena row.
type bitset []uint64

func (b bitset) set(i int)      { b[i>>6] |= 1 << uint(i&63) }
func (b bitset) clear(i int)    { b[i>>6] &^= 1 << uint(i&63) }
func (b bitset) has(i int) bool { return b[i>>6]&(1<<uint(i&63)) != 0 }

func (b bitset) fill(n int) {
	for i := 0; i < n; i++ {
		b.set(i)
	}
}

func (b bitset) count() int {
	total := 0
	for _, w := range b {
		total += bits.OnesCount64(w)
	}
	return total
}

// arena packs one bitset per entity into a single backing slice.
type arena struct {
	stride int
	words  []uint64
}

func newArena(width, rows int) arena {
	stride := (width + 63) / 64
	if stride == 0 {
		stride = 1
	}
	return arena{stride: stride, words: make([]uint64, stride*rows)}
}

func (a arena) row(i int) bitset {
	return bitset(a.words[i*a.stride : (i+1)*a.stride : (i+1)*a.stride])
}
