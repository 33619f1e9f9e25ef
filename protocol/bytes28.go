package protocol

import (
	"encoding/hex"
	"errors"
	"strings"
)

// HashSize is the length of ledger credential and script hashes (blake2b-224).
const HashSize = 28

var errInvalidHex28 = errors.New("invalid 28-byte hex value")

func parseHex28(s string) ([HashSize]byte, error) {
	var out [HashSize]byte
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 2*HashSize {
		return out, errInvalidHex28
	}

	b, err := hex.DecodeString(s)
	if err != nil || len(b) != HashSize {
		return out, errInvalidHex28
	}

	copy(out[:], b)
	return out, nil
}

func hex28(b [HashSize]byte) string {
	return hex.EncodeToString(b[:])
}
