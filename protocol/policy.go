package protocol

import (
	"errors"

	"golang.org/x/crypto/blake2b"
)

const stagePolicyID = "policy_id"

// Blake2b224 hashes the concatenation of parts into 28 bytes.
// golang.org/x/crypto/blake2b has no Sum224.
func Blake2b224(parts ...[]byte) [HashSize]byte {
	h, _ := blake2b.New(HashSize, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Blake2b256 hashes the concatenation of parts into 32 bytes.
func Blake2b256(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ScriptHash is blake2b-224(tag(language) || script bytes). It needs no
// ledger connection, so policy ids can be computed and audited offline.
func ScriptHash(s Script) ([HashSize]byte, error) {
	if !s.Language.Valid() {
		return [HashSize]byte{}, NewError(KindHashing, stagePolicyID, errors.New("unknown script language"))
	}
	if len(s.Bytes) == 0 {
		return [HashSize]byte{}, NewError(KindHashing, stagePolicyID, errors.New("empty script"))
	}
	return Blake2b224(s.Language.hashPrefix(), s.Bytes), nil
}

// PolicyIDForScript derives the minting policy id of s. The language must be
// the one s is attached as; a mismatch yields an id no script on chain has.
func PolicyIDForScript(s Script) (PolicyID, error) {
	h, err := ScriptHash(s)
	return PolicyID(h), err
}

// KeyHash is the credential of a verification key.
func KeyHash(vkey []byte) Credential {
	return Credential(Blake2b224(vkey))
}
