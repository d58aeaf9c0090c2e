package rsp

import (
	"strings"
	"testing"
)

func TestQSupportedNegotiatesMultiprocess(t *testing.T) {
	d, _, _ := newTestDispatcher(2, "")
	reply, err := d.cmdQuery([]byte("Supported:multiprocess+;swbreak+"))
	if err != nil {
		t.Fatal(err)
	}
	if !d.haveMultiprocess {
		t.Fatal("expected multiprocess to be negotiated")
	}
	s := string(reply)
	for _, want := range []string{"PacketSize=", "qXfer:features:read+", "multiprocess+", "swbreak+", "vContSupported+", "QNonStop+"} {
		if !strings.Contains(s, want) {
			t.Fatalf("reply %q missing %q", s, want)
		}
	}
}

func TestQThreadInfoPagination(t *testing.T) {
	d, _, _ := newTestDispatcher(3, "")
	d.haveMultiprocess = true
	d.cores.KillCore(1)

	first, err := d.cmdQuery([]byte("fThreadInfo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "mp1.1" {
		t.Fatalf("got %q want mp1.1", first)
	}

	second, err := d.cmdQuery([]byte("sThreadInfo"))
	if err != nil {
		t.Fatal(err)
	}
	// core 1 (pid 2) is dead, so the next live core is pid 3.
	if string(second) != "mp3.1" {
		t.Fatalf("got %q want mp3.1", second)
	}

	third, err := d.cmdQuery([]byte("sThreadInfo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(third) != "l" {
		t.Fatalf("got %q want l", third)
	}
}

func TestQCReportsCurrentThread(t *testing.T) {
	d, _, _ := newTestDispatcher(1, "")
	reply, err := d.cmdQuery([]byte("C"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(reply), "QC") {
		t.Fatalf("got %q", reply)
	}
}

func TestQNonStopToggle(t *testing.T) {
	d, _, _ := newTestDispatcher(1, "")
	reply, err := d.cmdSet([]byte("NonStop:1"))
	if err != nil || string(reply) != "OK" {
		t.Fatalf("got %q err=%v", reply, err)
	}
	if d.stopMode != NonStop {
		t.Fatal("expected NonStop mode")
	}

	reply, err = d.cmdSet([]byte("NonStop:0"))
	if err != nil || string(reply) != "OK" {
		t.Fatalf("got %q err=%v", reply, err)
	}
	if d.stopMode != AllStop {
		t.Fatal("expected AllStop mode")
	}
}

func TestQXferFeaturesDescribesRegisterFile(t *testing.T) {
	d, _, _ := newTestDispatcher(1, "")
	reply, err := d.cmdQuery([]byte("Xfer:features:read:target.xml:0,fff"))
	if err != nil {
		t.Fatal(err)
	}
	s := string(reply)
	if !strings.HasPrefix(s, "l<?xml") {
		t.Fatalf("got %q", s)
	}
	if !strings.Contains(s, `name="pc"`) {
		t.Fatalf("missing pc register in %q", s)
	}
}
