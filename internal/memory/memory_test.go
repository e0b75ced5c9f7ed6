package memory

import "testing"

func TestTranslateNegativeWraps(t *testing.T) {
	if got := Translate(-1, 0); got != Size-1 {
		t.Fatalf("Translate(-1, 0) = %d, want %d", got, Size-1)
	}
}

func TestTranslateLinkerBase(t *testing.T) {
	const base = 0x10000000
	cases := []struct{ addr, want int64 }{
		{base, 0},
		{base + 42, 42},
		{100, 100}, // below the base, untouched
	}
	for _, c := range cases {
		if got := Translate(c.addr, base); got != c.want {
			t.Fatalf("Translate(%#x, %#x) = %d, want %d", c.addr, base, got, c.want)
		}
	}
}

func TestCheckAlignmentAndBounds(t *testing.T) {
	m := New()

	if _, ok := m.Check(0, 4); !ok {
		t.Fatalf("Check(0, 4) should be valid")
	}
	if _, ok := m.Check(Size-4, 4); !ok {
		t.Fatalf("Check(Size-4, 4) should be valid")
	}
	if _, ok := m.Check(Size-3, 4); ok {
		t.Fatalf("Check(Size-3, 4) should overflow and be rejected")
	}
	if _, ok := m.Check(1, 4); ok {
		t.Fatalf("Check(1, 4) should fail alignment")
	}
	if _, ok := m.Check(-100000, 4); ok {
		t.Fatalf("Check of a wildly out-of-range negative address should fail")
	}
}

func TestLoadBytesAndReadBack(t *testing.T) {
	m := New()
	program := []byte{0x13, 0x05, 0x70, 0x00} // addi x10, x0, 7

	if ok := m.LoadBytes(program); !ok {
		t.Fatalf("LoadBytes failed unexpectedly")
	}
	if got := m.Read32(0); got != 0x00700513 {
		t.Fatalf("Read32(0) = %#x, want %#x", got, 0x00700513)
	}
}

func TestLoadBytesRejectsOversize(t *testing.T) {
	m := New()
	oversized := make([]byte, Size+1)
	if ok := m.LoadBytes(oversized); ok {
		t.Fatalf("LoadBytes should reject a program larger than guest memory")
	}
}

func TestReadCString(t *testing.T) {
	m := New()
	copy(m.bytes[100:], []byte("hello\x00world"))

	s, ok := m.ReadCString(100, 128)
	if !ok || s != "hello" {
		t.Fatalf("ReadCString = (%q, %v), want (\"hello\", true)", s, ok)
	}
}

func TestSliceBoundsChecked(t *testing.T) {
	m := New()
	if _, ok := m.Slice(Size-4, 8); ok {
		t.Fatalf("Slice reaching past the end of memory should fail")
	}
	if _, ok := m.Slice(0, 16); !ok {
		t.Fatalf("Slice within bounds should succeed")
	}
}
