package protocol

import (
	"errors"
	"fmt"
)

// Credential is a payment or stake credential hash. The operator identity
// baked into the minting policy is a Credential.
type Credential [HashSize]byte

func (c Credential) Hex() string { return hex28([HashSize]byte(c)) }

func (c Credential) String() string { return c.Hex() }

func ParseCredentialHex(s string) (Credential, error) {
	b, err := parseHex28(s)
	return Credential(b), err
}

// CredentialFromBytes copies exactly HashSize bytes into a Credential.
func CredentialFromBytes(b []byte) (Credential, error) {
	var out Credential
	if len(b) != HashSize {
		return out, fmt.Errorf("credential length %d, want %d", len(b), HashSize)
	}
	copy(out[:], b)
	return out, nil
}

// PolicyID identifies a minting policy: the hash of its parameterized script.
type PolicyID [HashSize]byte

func (p PolicyID) Hex() string { return hex28([HashSize]byte(p)) }

func (p PolicyID) String() string { return p.Hex() }

func ParsePolicyIDHex(s string) (PolicyID, error) {
	b, err := parseHex28(s)
	return PolicyID(b), err
}

// MaxAssetNameLen is the ledger's limit on asset name bytes.
const MaxAssetNameLen = 32

var ErrAssetNameTooLong = errors.New("asset name exceeds 32 bytes")

// AssetName is the raw token name; the ledger treats it as bytes, not text.
type AssetName []byte

func (n AssetName) Validate() error {
	if len(n) > MaxAssetNameLen {
		return ErrAssetNameTooLong
	}
	return nil
}

// Unit is the hex asset unit PolicyID ‖ AssetName, the form explorers and
// chain indexers key balances by.
func Unit(policy PolicyID, name AssetName) string {
	return policy.Hex() + fmt.Sprintf("%x", []byte(name))
}
