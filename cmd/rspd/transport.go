package main

import (
	"bufio"
	"io"
	"net"
)

// connTransport adapts a net.Conn to rsp.Transport. A background
// reader goroutine feeds a buffered channel so PollBreak can check for
// a pending 0x03 without blocking the dispatcher's own GetByte calls.
type connTransport struct {
	conn   net.Conn
	w      *bufio.Writer
	bytesC chan byte
	errC   chan error
	closed chan struct{}
}

func newConnTransport(conn net.Conn) *connTransport {
	t := &connTransport{
		conn:   conn,
		w:      bufio.NewWriter(conn),
		bytesC: make(chan byte, 4096),
		errC:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *connTransport) readLoop() {
	r := bufio.NewReader(t.conn)
	for {
		b, err := r.ReadByte()
		if err != nil {
			select {
			case t.errC <- err:
			default:
			}
			close(t.bytesC)
			return
		}
		select {
		case t.bytesC <- b:
		case <-t.closed:
			return
		}
	}
}

func (t *connTransport) GetByte() (byte, error) {
	b, ok := <-t.bytesC
	if !ok {
		select {
		case err := <-t.errC:
			return 0, err
		default:
			return 0, io.EOF
		}
	}
	return b, nil
}

func (t *connTransport) PutByte(b byte) error {
	return t.w.WriteByte(b)
}

func (t *connTransport) Flush() error {
	return t.w.Flush()
}

func (t *connTransport) Close() error {
	close(t.closed)
	return t.conn.Close()
}

func (t *connTransport) IsOpen() bool {
	select {
	case <-t.closed:
		return false
	default:
		return true
	}
}

// PollBreak reports whether a 0x03 break byte is sitting at the front
// of the buffered channel, without consuming any other byte.
func (t *connTransport) PollBreak() (bool, error) {
	select {
	case b := <-t.bytesC:
		if b == 0x03 {
			return true, nil
		}
		// Not a break: put it back at the front for GetByte. A single
		// slot is enough since PollBreak only ever peeks one byte
		// ahead of the dispatcher's own reads.
		t.putBack(b)
		return false, nil
	default:
		return false, nil
	}
}

func (t *connTransport) putBack(b byte) {
	// bytesC has no "unread" primitive; rebuild it with b in front by
	// draining what's buffered and re-pushing, bounded by the channel's
	// own capacity so this never blocks forever.
	rest := make([]byte, 0, len(t.bytesC))
	for {
		select {
		case nb := <-t.bytesC:
			rest = append(rest, nb)
		default:
			goto drained
		}
	}
drained:
	t.bytesC <- b
	for _, nb := range rest {
		t.bytesC <- nb
	}
}
