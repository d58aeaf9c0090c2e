package rsp

import "testing"

func TestRegValRoundTrip(t *testing.T) {
	widths := []int{1, 2, 4, 8}
	for _, w := range widths {
		var max uint64 = 0xffffffffffffffff
		if w < 8 {
			max = (uint64(1) << (uint(w) * 8)) - 1
		}
		for _, v := range []uint64{0, 1, max, max / 3} {
			for _, le := range []bool{true, false} {
				s := RegValToHex(v, w, le)
				got, err := HexToRegVal(s, le)
				if err != nil {
					t.Fatalf("width=%d le=%v val=%d: %v", w, le, v, err)
				}
				if got != v {
					t.Fatalf("width=%d le=%v: got %d want %d (hex %s)", w, le, got, v, s)
				}
			}
		}
	}
}

func TestHexEncodeDecodeRoundTrip(t *testing.T) {
	data := []byte{0x00, 0xff, 0x10, 0xde, 0xad, 0xbe, 0xef}
	s := HexEncode(data)
	got, err := HexDecode(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %x want %x", got, data)
	}
}

func TestHexDecodeOddLength(t *testing.T) {
	if _, err := HexDecode("abc"); err == nil {
		t.Fatal("expected error for odd-length hex string")
	}
}

func TestParseHexUint64(t *testing.T) {
	v, err := ParseHexUint64("2000")
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x2000 {
		t.Fatalf("got %x want 2000", v)
	}
}

func TestAsciiHexRoundTrip(t *testing.T) {
	s := "reset cold"
	h := AsciiToHex(s)
	got, err := HexToAscii(h)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("got %q want %q", got, s)
	}
}
