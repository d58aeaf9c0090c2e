package rsp

import "github.com/pkg/errors"

// Error taxonomy.
//
// Protocol and semantic errors are recoverable: the dispatcher replies
// with an Enn packet and keeps serving. Target failures produce a stop
// reply with TargetSignal UNKNOWN. Transport closure ends the serve
// loop cleanly. Internal invariant violations (nested syscalls,
// out-of-range core indices) are bugs, not recoverable protocol
// states: a nested syscall aborts the process via the dispatcher's
// logger, and an out-of-range core index panics in CoreManager.Core.
var (
	// ErrMalformedPacket covers bad hex, truncated fields, and other
	// parse failures within an already checksum-valid packet.
	ErrMalformedPacket = errors.New("rsp: malformed packet")

	// ErrUnknownRegister is a semantic error: register index out of
	// the target's declared RegisterCount.
	ErrUnknownRegister = errors.New("rsp: unknown register index")

	// ErrNoMatchingThread is logged by replyNoMatchingThread when a
	// vCont's PTID scope, or a legacy c/s's current thread, matches no
	// live core.
	ErrNoMatchingThread = errors.New("rsp: no matching thread")
)

// replyError renders a GDB Enn error reply. code is GDB's two-digit
// decimal error number (01 for generic protocol/semantic errors, 22
// for "no matching thread").
func replyError(code int) []byte {
	return []byte{'E', "0123456789"[code/10], "0123456789"[code%10]}
}

var (
	replyE01 = replyError(1)
	replyE22 = replyError(22)
	replyOK  = []byte("OK")
	replyEmpty = []byte{}
)

// replyNoMatchingThread sends the E22 reply for a vCont or resume
// request whose thread scope matched no live core.
func (d *Dispatcher) replyNoMatchingThread() error {
	d.log.WithError(ErrNoMatchingThread).Debug("rsp: no core matched the request's thread scope")
	return d.codec.SendPacket(replyE22)
}
