package rsp

import "encoding/binary"

// BreakInstr is the 32-bit EBREAK encoding written into memory for a
// software breakpoint, little-endian.
const BreakInstr uint32 = 0x00100073

type matchKey struct {
	kind MatchType
	addr uint64
}

type matchValue struct {
	savedBytes []byte
	kind       int
}

// MatchpointRegistry maps (MatchType, address) to metadata: the saved
// bytes under a software breakpoint, or just the watch size for a
// watchpoint.
type MatchpointRegistry struct {
	entries map[matchKey]matchValue
}

// NewMatchpointRegistry returns an empty registry.
func NewMatchpointRegistry() *MatchpointRegistry {
	return &MatchpointRegistry{entries: make(map[matchKey]matchValue)}
}

// Insert records a matchpoint. For SoftBreak it reads `size` bytes at
// addr from target, saves them, and writes the EBREAK encoding
// (truncated/padded to size) in their place. A duplicate insert is a
// no-op that returns ok=true, since GDB may legitimately resend a Z
// packet it's unsure was received.
func (r *MatchpointRegistry) Insert(target Target, kind MatchType, addr uint64, size int) (ok bool, err error) {
	key := matchKey{kind: kind, addr: addr}
	if _, exists := r.entries[key]; exists {
		return true, nil
	}

	val := matchValue{kind: size}
	if kind == SoftBreak {
		saved := make([]byte, size)
		if _, err := target.ReadMem(addr, saved); err != nil {
			return false, err
		}
		val.savedBytes = saved

		instr := make([]byte, size)
		var enc [4]byte
		binary.LittleEndian.PutUint32(enc[:], BreakInstr)
		copy(instr, enc[:])
		if _, err := target.WriteMem(addr, instr); err != nil {
			return false, err
		}
	}

	r.entries[key] = val
	return true, nil
}

// Remove undoes Insert: for SoftBreak it restores the saved bytes,
// trusting the stored copy even if memory was modified meanwhile.
// Removing an absent key returns ok=false ("not found"), a no-op.
func (r *MatchpointRegistry) Remove(target Target, kind MatchType, addr uint64) (ok bool, err error) {
	key := matchKey{kind: kind, addr: addr}
	val, exists := r.entries[key]
	if !exists {
		return false, nil
	}

	if kind == SoftBreak {
		if _, err := target.WriteMem(addr, val.savedBytes); err != nil {
			return false, err
		}
	}

	delete(r.entries, key)
	return true, nil
}

// ClearAll removes every matchpoint without restoring memory, used by
// the 'R' restart command (the target itself is being reset/reloaded).
func (r *MatchpointRegistry) ClearAll() {
	r.entries = make(map[matchKey]matchValue)
}

// Len reports how many matchpoints are currently registered (used by
// tests).
func (r *MatchpointRegistry) Len() int { return len(r.entries) }
