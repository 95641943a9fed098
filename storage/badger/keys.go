package badger

import (
	"encoding/binary"
)

// Key prefixes for different data types
const (
	manifestKey = "idxman"
	entryPrefix = "idxent:"
)

// makeEntryKey generates a key for an entry by sequence number.
// Format: prefix + big-endian seq, so lexicographic order is insertion order.
func makeEntryKey(seq uint64) []byte {
	prefixBytes := []byte(entryPrefix)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// seqFromEntryKey extracts the sequence number from an entry key.
func seqFromEntryKey(key []byte) (uint64, bool) {
	if len(key) != len(entryPrefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(entryPrefix):]), true
}
