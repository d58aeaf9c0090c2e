package rsp

import (
	"fmt"
	"strings"
)

// cmdQuery handles 'q' packets.
func (d *Dispatcher) cmdQuery(arg []byte) ([]byte, error) {
	s := string(arg)

	switch {
	case strings.HasPrefix(s, "Supported"):
		return d.qSupported(s[len("Supported"):]), nil
	case s == "fThreadInfo":
		d.nextProcessToReport = 0
		return d.qNextThreadInfo(), nil
	case s == "sThreadInfo":
		return d.qNextThreadInfo(), nil
	case s == "C":
		return []byte("QC" + d.currentPTID.Render(d.haveMultiprocess)), nil
	case strings.HasPrefix(s, "Attached"):
		return []byte("1"), nil
	case strings.HasPrefix(s, "Rcmd,"):
		return nil, d.handleMonitor(s[len("Rcmd,"):])
	case strings.HasPrefix(s, "Xfer:features:read:target.xml:"):
		return d.qXferFeatures(), nil
	default:
		return replyEmpty, nil
	}
}

// cmdSet handles 'Q' packets.
func (d *Dispatcher) cmdSet(arg []byte) ([]byte, error) {
	s := string(arg)
	switch {
	case s == "NonStop:0":
		d.stopMode = AllStop
		return replyOK, nil
	case s == "NonStop:1":
		d.stopMode = NonStop
		return replyOK, nil
	default:
		return replyEmpty, nil
	}
}

func (d *Dispatcher) qSupported(rest string) []byte {
	rest = strings.TrimPrefix(rest, ":")
	for _, feature := range strings.Split(rest, ";") {
		if feature == "multiprocess+" {
			d.haveMultiprocess = true
		}
	}

	features := []string{
		fmt.Sprintf("PacketSize=%x", d.pkt.Cap()),
		"qXfer:features:read+",
		"multiprocess+",
		"swbreak+",
		"vContSupported+",
		"QNonStop+",
	}
	return []byte(strings.Join(features, ";"))
}

// qNextThreadInfo paginates live cores as "mPID.1" entries, one entry
// per reply, terminating with "l" once every live core has been
// reported.
func (d *Dispatcher) qNextThreadInfo() []byte {
	for d.nextProcessToReport < d.cores.CoreCount() {
		core := d.nextProcessToReport
		d.nextProcessToReport++
		if !d.cores.Core(core).Live() {
			continue
		}
		ptid := PTID{PID: CoreToPID(core), TID: 1}
		return []byte("m" + ptid.Render(d.haveMultiprocess))
	}
	return []byte("l")
}

// qXferFeatures returns a static target.xml describing the 32 GPRs +
// PC, 4 bytes each, little-endian.
func (d *Dispatcher) qXferFeatures() []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><!DOCTYPE target SYSTEM "gdb-target.dtd"><target><architecture>riscv:rv32</architecture><feature name="org.gnu.gdb.riscv.cpu">`)
	for i := 0; i < d.target.RegisterCount()-1; i++ {
		fmt.Fprintf(&b, `<reg name="r%d" bitsize="32" type="int32"/>`, i)
	}
	b.WriteString(`<reg name="pc" bitsize="32" type="code_ptr"/>`)
	b.WriteString(`</feature></target>`)
	return []byte("l" + b.String())
}
