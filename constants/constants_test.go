package constants

import "testing"

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 255: 256, 256: 256, 257: 512, 65535: 65536}
	for in, want := range cases {
		if got := NextPowerOfTwo(in); got != want {
			t.Fatalf("NextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestCacheLinePadSize(t *testing.T) {
	if CacheLinePadSize < WordSize {
		t.Fatalf("unexpected cache line pad size %d", CacheLinePadSize)
	}
}
