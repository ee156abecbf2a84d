package bufpool

import "testing"

func TestGetBuffer_SizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize uint32
		expectCap   int
	}{
		{"32KB bucket - exact", 32 * 1024, 32 * 1024},
		{"32KB bucket - smaller", 16 * 1024, 32 * 1024},
		{"64KB bucket - exact", 64 * 1024, 64 * 1024},
		{"256KB bucket - smaller", 200 * 1024, 256 * 1024},
		{"512KB bucket - exact", 512 * 1024, 512 * 1024},
		{"512KB bucket - smaller", 400 * 1024, 512 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetBuffer(tt.requestSize)
			if len(buf) != int(tt.requestSize) {
				t.Errorf("GetBuffer(%d) returned len=%d, want %d", tt.requestSize, len(buf), tt.requestSize)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("GetBuffer(%d) returned cap=%d, want %d", tt.requestSize, cap(buf), tt.expectCap)
			}
			PutBuffer(buf)
		})
	}
}

func TestBufferPool_Reuse(t *testing.T) {
	buf1 := GetBuffer(32 * 1024)
	ptr1 := &buf1[0]
	PutBuffer(buf1)

	buf2 := GetBuffer(32 * 1024)
	ptr2 := &buf2[0]
	PutBuffer(buf2)

	if ptr1 == ptr2 {
		t.Log("buffer was reused from pool")
	} else {
		t.Log("buffer was not reused (sync.Pool GC behavior)")
	}
}

func TestPutBuffer_NonStandardCap(t *testing.T) {
	buf := make([]byte, 100*1024)
	PutBuffer(buf)
}

func BenchmarkGetBuffer_32KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := GetBuffer(32 * 1024)
		PutBuffer(buf)
	}
}

func BenchmarkGetBuffer_512KB(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := GetBuffer(512 * 1024)
		PutBuffer(buf)
	}
}
