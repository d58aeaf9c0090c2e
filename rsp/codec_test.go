package rsp

import (
	"bytes"
	"io"
	"testing"
)

// pipeTransport is an in-memory Transport backed by two byte queues, used
// to drive Codec tests without a real net.Conn.
type pipeTransport struct {
	in     *bytes.Buffer
	out    *bytes.Buffer
	closed bool
}

func newPipeTransport(in string) *pipeTransport {
	return &pipeTransport{in: bytes.NewBufferString(in), out: &bytes.Buffer{}}
}

func (p *pipeTransport) GetByte() (byte, error) {
	b, err := p.in.ReadByte()
	if err != nil {
		return 0, io.EOF
	}
	return b, nil
}

func (p *pipeTransport) PutByte(b byte) error { return p.out.WriteByte(b) }
func (p *pipeTransport) Flush() error         { return nil }
func (p *pipeTransport) Close() error         { p.closed = true; return nil }
func (p *pipeTransport) IsOpen() bool         { return !p.closed }
func (p *pipeTransport) PollBreak() (bool, error) {
	return false, nil
}

func TestCodecReadPacketGoodChecksum(t *testing.T) {
	tr := newPipeTransport("$g#67")
	pkt := NewPacket(0)
	c := NewCodec(tr, pkt)

	res, err := c.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if res != RecvPacket {
		t.Fatalf("got %v want RecvPacket", res)
	}
	if string(pkt.Bytes()) != "g" {
		t.Fatalf("got %q want %q", pkt.Bytes(), "g")
	}
	if tr.out.String() != "+" {
		t.Fatalf("expected ack +, got %q", tr.out.String())
	}
}

func TestCodecReadPacketBadChecksumThenGood(t *testing.T) {
	tr := newPipeTransport("$g#00$g#67")
	pkt := NewPacket(0)
	c := NewCodec(tr, pkt)

	res, err := c.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if res != RecvPacket {
		t.Fatalf("got %v want RecvPacket", res)
	}
	if tr.out.String() != "-+" {
		t.Fatalf("expected nak then ack, got %q", tr.out.String())
	}
}

func TestCodecReadPacketBreak(t *testing.T) {
	tr := newPipeTransport("\x03$g#67")
	pkt := NewPacket(0)
	c := NewCodec(tr, pkt)

	res, err := c.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if res != RecvBreak {
		t.Fatalf("got %v want RecvBreak", res)
	}
}

func TestCodecReadPacketDisconnected(t *testing.T) {
	tr := newPipeTransport("")
	pkt := NewPacket(0)
	c := NewCodec(tr, pkt)

	res, err := c.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if res != RecvDisconnected {
		t.Fatalf("got %v want RecvDisconnected", res)
	}
}

func TestCodecSendPacketEscaping(t *testing.T) {
	tr := newPipeTransport("+")
	pkt := NewPacket(0)
	c := NewCodec(tr, pkt)

	payload := []byte("a#b$c}d*e")
	if err := c.SendPacket(payload); err != nil {
		t.Fatal(err)
	}

	wire := escapeEncode(payload)
	want := append([]byte{'$'}, wire...)
	want = append(want, '#')
	want = append(want, []byte(Checksum(wire))...)
	if !bytes.Equal(tr.out.Bytes(), want) {
		t.Fatalf("got %q want %q", tr.out.String(), want)
	}
}

func TestDecodeEscapeRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		in := []byte{byte(b)}
		enc := escapeEncode(in)
		dec, err := decodeEscapeRLE(enc)
		if err != nil {
			t.Fatalf("byte 0x%02x: %v", b, err)
		}
		if !bytes.Equal(dec, in) {
			t.Fatalf("byte 0x%02x: got %x want %x", b, dec, in)
		}
	}
}

func TestDecodeEscapeRLEMultipleBytes(t *testing.T) {
	in := []byte{'#', '$', '}', '*', 0x00, 0xff}
	enc := escapeEncode(in)
	dec, err := decodeEscapeRLE(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Fatalf("got %x want %x", dec, in)
	}
}

func TestChecksumFormula(t *testing.T) {
	payload := []byte("hello world")
	var sum uint8
	for _, b := range payload {
		sum += b
	}
	want := HexEncode([]byte{sum})
	if got := Checksum(payload); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// "a" followed by RLE token repeating it 3 more times (0x20-29=3).
	in := []byte{'a', '*', 0x20}
	out, err := decodeEscapeRLE(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "aaaa" {
		t.Fatalf("got %q want %q", out, "aaaa")
	}
}
