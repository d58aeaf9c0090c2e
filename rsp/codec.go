package rsp

import (
	"io"

	"github.com/pkg/errors"
)

// maxChecksumRetries bounds how many times the peer may NAK a packet
// before the sender gives up and treats the connection as dead.
const maxChecksumRetries = 5

// ErrTooManyRetries is returned by SendPacket when the peer keeps NAKing.
var ErrTooManyRetries = errors.New("rsp: too many retransmit attempts")

// RecvResult is the outcome of Codec.ReadPacket.
type RecvResult int

const (
	RecvPacket RecvResult = iota
	RecvBreak
	RecvDisconnected
)

// Codec frames bytes into RSP packets over a Transport, reusing one
// Packet buffer across requests; the dispatcher exclusively owns it.
type Codec struct {
	t   Transport
	pkt *Packet
}

// NewCodec wraps t, decoding/encoding into pkt.
func NewCodec(t Transport, pkt *Packet) *Codec {
	return &Codec{t: t, pkt: pkt}
}

// ReadPacket reads one frame into the Codec's Packet. On RecvPacket, the
// payload is available via Packet.Bytes(); on RecvBreak a bare 0x03 was
// seen outside a frame; on RecvDisconnected the transport has closed.
func (c *Codec) ReadPacket() (RecvResult, error) {
	for {
		raw, sig, err := c.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return RecvDisconnected, nil
			}
			return RecvDisconnected, err
		}
		if sig == RecvBreak {
			return RecvBreak, nil
		}

		decoded, err := decodeEscapeRLE(raw)
		if err != nil {
			// Malformed escape/RLE inside an already checksum-valid frame
			// has no NAK-equivalent recovery (the checksum was already
			// ACKed), so it is answered with E01 and the next frame is read.
			if err := c.SendPacket(replyE01); err != nil {
				return RecvDisconnected, err
			}
			continue
		}

		c.pkt.SetBytes(decoded)
		return RecvPacket, nil
	}
}

// readFrame skips to '$', collects payload bytes up to '#', reads the
// two-hex-digit checksum, verifies it against the raw (pre-unescape)
// wire bytes, and ACKs or NAKs accordingly. It returns the raw payload
// on success. A 0x03 byte seen while waiting for '$' is reported as
// RecvBreak without consuming further input.
func (c *Codec) readFrame() ([]byte, RecvResult, error) {
	var raw []byte

restart:
	raw = raw[:0]

	// Skip to start-of-packet, watching for a bare break byte and
	// silently consuming stray ack/nak characters left over from a
	// previous exchange.
	for {
		b, err := c.t.GetByte()
		if err != nil {
			return nil, RecvDisconnected, err
		}
		if b == 0x03 {
			return nil, RecvBreak, nil
		}
		if b == '$' {
			break
		}
		// '+', '-' and anything else outside a frame are ignored.
	}

	for {
		b, err := c.t.GetByte()
		if err != nil {
			return nil, RecvDisconnected, err
		}
		if b == '#' {
			break
		}
		raw = append(raw, b)
	}

	var sumHex [2]byte
	for i := range sumHex {
		b, err := c.t.GetByte()
		if err != nil {
			return nil, RecvDisconnected, err
		}
		sumHex[i] = b
	}

	if Checksum(raw) != string(sumHex[:]) {
		if err := c.sendAck(false); err != nil {
			return nil, RecvDisconnected, err
		}
		goto restart
	}

	if err := c.sendAck(true); err != nil {
		return nil, RecvDisconnected, err
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, RecvPacket, nil
}

func (c *Codec) sendAck(ok bool) error {
	b := byte('-')
	if ok {
		b = '+'
	}
	if err := c.t.PutByte(b); err != nil {
		return err
	}
	return c.t.Flush()
}

// SendPacket transmits payload as a normal ('$') RSP packet and waits
// for the peer's ack, retransmitting on NAK and giving up once the peer
// has NAKed maxChecksumRetries times.
func (c *Codec) SendPacket(payload []byte) error {
	return c.send('$', payload, true)
}

// SendNotification transmits payload as a '%' out-of-band stop
// notification (NonStop mode). Notifications are not acknowledged;
// they are fire-and-forget.
func (c *Codec) SendNotification(payload []byte) error {
	return c.send('%', payload, false)
}

func (c *Codec) send(marker byte, payload []byte, expectAck bool) error {
	wire := escapeEncode(payload)
	csum := Checksum(wire)

	for attempt := 0; ; attempt++ {
		if attempt >= maxChecksumRetries {
			return ErrTooManyRetries
		}

		if err := c.t.PutByte(marker); err != nil {
			return err
		}
		for _, b := range wire {
			if err := c.t.PutByte(b); err != nil {
				return err
			}
		}
		if err := c.t.PutByte('#'); err != nil {
			return err
		}
		for _, b := range []byte(csum) {
			if err := c.t.PutByte(b); err != nil {
				return err
			}
		}
		if err := c.t.Flush(); err != nil {
			return err
		}

		if !expectAck {
			return nil
		}

		ack, err := c.t.GetByte()
		if err != nil {
			return err
		}
		if ack == '+' {
			return nil
		}
		if ack != '-' {
			return errors.Errorf("rsp: unexpected ack byte 0x%02x", ack)
		}
	}
}
