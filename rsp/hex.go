package rsp

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// ErrOddHexLength is returned when a hex string has an odd number of digits.
var ErrOddHexLength = errors.New("rsp: odd-length hex string")

// HexEncode renders data as lowercase hex, matching the wire format used
// throughout RSP (memory dumps, register values, qRcmd replies).
func HexEncode(data []byte) string {
	return hex.EncodeToString(data)
}

// HexDecode parses a lowercase or uppercase hex string into bytes.
func HexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, ErrOddHexLength
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "rsp: decode hex %q", s)
	}
	return out, nil
}

// RegValToHex encodes val into numBytes worth of hex digits, honoring byte
// order. The target ISA this server talks to is little-endian, and the
// dispatcher's register packets always pass littleEndian=true; the
// big-endian form is available to other callers.
func RegValToHex(val uint64, numBytes int, littleEndian bool) string {
	buf := make([]byte, numBytes)
	for i := 0; i < numBytes; i++ {
		b := byte(val & 0xff)
		val >>= 8
		if littleEndian {
			buf[i] = b
		} else {
			buf[numBytes-1-i] = b
		}
	}
	return hex.EncodeToString(buf)
}

// HexToRegVal is the inverse of RegValToHex.
func HexToRegVal(s string, littleEndian bool) (uint64, error) {
	buf, err := HexDecode(s)
	if err != nil {
		return 0, err
	}
	var val uint64
	if littleEndian {
		for i := len(buf) - 1; i >= 0; i-- {
			val = (val << 8) | uint64(buf[i])
		}
	} else {
		for i := 0; i < len(buf); i++ {
			val = (val << 8) | uint64(buf[i])
		}
	}
	return val, nil
}

// ParseHexUint64 parses a plain hex integer as used in address/length fields
// (e.g. the A and L in "mA,L"), without the fixed-width padding RegValToHex
// assumes.
func ParseHexUint64(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("rsp: empty hex integer")
	}
	var val uint64
	for _, c := range []byte(s) {
		d, ok := hexDigit(c)
		if !ok {
			return 0, errors.Errorf("rsp: invalid hex digit %q in %q", c, s)
		}
		val = (val << 4) | uint64(d)
	}
	return val, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// AsciiToHex hex-encodes an ASCII string, used for qRcmd command payloads.
func AsciiToHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

// HexToAscii decodes a hex-encoded ASCII string, the inverse of AsciiToHex.
func HexToAscii(s string) (string, error) {
	buf, err := HexDecode(s)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
