package blockdev

import "testing"

func TestNewMemory(t *testing.T) {
	mem := NewMemory(512, 100)

	if mem.SectorSize() != 512 {
		t.Errorf("SectorSize() = %d, want 512", mem.SectorSize())
	}
	if mem.SectorCount() != 100 {
		t.Errorf("SectorCount() = %d, want 100", mem.SectorCount())
	}
	if len(mem.data) != 512*100 {
		t.Errorf("data length = %d, want %d", len(mem.data), 512*100)
	}
}

func TestMemoryReadWrite(t *testing.T) {
	mem := NewMemory(512, 10)

	write := make([]byte, 512)
	copy(write, []byte("hello sd card"))
	if err := mem.WriteSectors(0, 1, write); err != nil {
		t.Fatalf("WriteSectors failed: %v", err)
	}

	read := make([]byte, 512)
	if err := mem.ReadSectors(0, 1, read); err != nil {
		t.Fatalf("ReadSectors failed: %v", err)
	}
	if string(read) != string(write) {
		t.Errorf("ReadSectors got %q, want %q", read[:13], write[:13])
	}
}

func TestMemoryMultiSector(t *testing.T) {
	mem := NewMemory(512, 10)

	write := make([]byte, 512*3)
	for i := range write {
		write[i] = byte(i)
	}
	if err := mem.WriteSectors(2, 3, write); err != nil {
		t.Fatalf("WriteSectors failed: %v", err)
	}

	read := make([]byte, 512*3)
	if err := mem.ReadSectors(2, 3, read); err != nil {
		t.Fatalf("ReadSectors failed: %v", err)
	}
	for i := range write {
		if read[i] != write[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, read[i], write[i])
		}
	}
}

func TestMemoryBoundaryConditions(t *testing.T) {
	mem := NewMemory(512, 10)
	buf := make([]byte, 512)

	if err := mem.ReadSectors(9, 1, buf); err != nil {
		t.Errorf("ReadSectors at last sector failed: %v", err)
	}

	if err := mem.ReadSectors(9, 2, buf); err == nil {
		t.Error("ReadSectors past end should fail")
	}

	if err := mem.WriteSectors(10, 1, buf); err == nil {
		t.Error("WriteSectors starting past end should fail")
	}
}

func TestMemoryBufferTooSmall(t *testing.T) {
	mem := NewMemory(512, 10)
	buf := make([]byte, 100)

	if err := mem.ReadSectors(0, 1, buf); err == nil {
		t.Error("ReadSectors with undersized buffer should fail")
	}
}

func TestMemoryZero(t *testing.T) {
	mem := NewMemory(512, 4)
	write := make([]byte, 512)
	for i := range write {
		write[i] = 0xAB
	}
	mem.WriteSectors(0, 1, write)
	mem.Zero()

	read := make([]byte, 512)
	mem.ReadSectors(0, 1, read)
	for i, b := range read {
		if b != 0 {
			t.Fatalf("byte %d = %d after Zero(), want 0", i, b)
		}
	}
}

func BenchmarkMemoryRead(b *testing.B) {
	mem := NewMemory(512, 2048)
	buf := make([]byte, 512*8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lba := uint32(i*8) % (2048 - 8)
		mem.ReadSectors(lba, 8, buf)
	}
}

func BenchmarkMemoryWrite(b *testing.B) {
	mem := NewMemory(512, 2048)
	buf := make([]byte, 512*8)
	for i := range buf {
		buf[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lba := uint32(i*8) % (2048 - 8)
		mem.WriteSectors(lba, 8, buf)
	}
}
