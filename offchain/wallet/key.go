package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

var ErrInvalidKey = errors.New("invalid signing key")

const (
	hrpSigningKey         = "ed25519_sk"
	hrpExtendedSigningKey = "ed25519e_sk"

	extendedKeySize = 64
	// cardano-cli's extended key: kL ‖ kR ‖ public key ‖ chain code.
	cliExtendedKeySize = 128
)

// Key is an Ed25519 payment signing key, either a 32-byte seed or a
// BIP32-Ed25519 extended key. Its String form is the key hash only.
type Key struct {
	pub ed25519.PublicKey

	seed ed25519.PrivateKey
	// kL ‖ kR for extended keys.
	ext []byte
}

var _ cardano.Signer = (*Key)(nil)

// NewKeyFromSeed wraps a 32-byte Ed25519 seed.
func NewKeyFromSeed(seed []byte) (*Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed length %d", ErrInvalidKey, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Key{pub: priv.Public().(ed25519.PublicKey), seed: priv}, nil
}

// NewExtendedKey wraps a 64-byte kL ‖ kR extended secret.
func NewExtendedKey(ext []byte) (*Key, error) {
	if len(ext) != extendedKeySize {
		return nil, fmt.Errorf("%w: extended key length %d", ErrInvalidKey, len(ext))
	}
	if ext[0]&0x07 != 0 || ext[31]&0x80 != 0 {
		return nil, fmt.Errorf("%w: extended key scalar is not clamped", ErrInvalidKey)
	}
	a, err := scalarFromKL(ext[:32])
	if err != nil {
		return nil, err
	}
	pub := new(edwards25519.Point).ScalarBaseMult(a).Bytes()
	return &Key{pub: ed25519.PublicKey(pub), ext: append([]byte(nil), ext...)}, nil
}

func scalarFromKL(kL []byte) (*edwards25519.Scalar, error) {
	wide := make([]byte, 64)
	copy(wide, kL)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return s, nil
}

func (k *Key) PublicKey() []byte { return append([]byte(nil), k.pub...) }

func (k *Key) KeyHash() protocol.Credential { return protocol.KeyHash(k.pub) }

// Address is the key's enterprise address on n.
func (k *Key) Address(n cardano.Network) (cardano.Address, error) {
	return cardano.EnterpriseAddress(n, k.KeyHash())
}

func (k *Key) String() string { return "wallet.Key(" + k.KeyHash().Hex() + ")" }

func (k *Key) GoString() string { return k.String() }

// Sign produces a standard Ed25519 signature over msg.
func (k *Key) Sign(msg []byte) ([]byte, error) {
	if k == nil || len(k.pub) != ed25519.PublicKeySize {
		return nil, errors.New("signing key not loaded")
	}
	if k.seed != nil {
		return ed25519.Sign(k.seed, msg), nil
	}
	return k.signExtended(msg)
}

// signExtended is RFC 8032 signing with the nonce prefix taken from kR
// instead of a hashed seed.
func (k *Key) signExtended(msg []byte) ([]byte, error) {
	a, err := scalarFromKL(k.ext[:32])
	if err != nil {
		return nil, err
	}

	h := sha512.New()
	h.Write(k.ext[32:])
	h.Write(msg)
	r, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(R)
	h.Write(k.pub)
	h.Write(msg)
	c, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	S := edwards25519.NewScalar().MultiplyAdd(c, a, r)

	sig := make([]byte, 0, ed25519.SignatureSize)
	sig = append(sig, R...)
	sig = append(sig, S.Bytes()...)
	return sig, nil
}

type textEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	CborHex     string `json:"cborHex"`
}

// ParseKey accepts a cardano-cli text envelope, a bech32 ed25519_sk or
// ed25519e_sk string, the envelope's bare cborHex, or plain hex.
func ParseKey(s string) (*Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	if strings.HasPrefix(s, "{") {
		var env textEnvelope
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			return nil, fmt.Errorf("%w: text envelope: %v", ErrInvalidKey, err)
		}
		if !strings.Contains(env.Type, "SigningKey") {
			return nil, fmt.Errorf("%w: envelope type %q is not a signing key", ErrInvalidKey, env.Type)
		}
		return parseCBORHex(env.CborHex)
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, hrpExtendedSigningKey+"1") || strings.HasPrefix(lower, hrpSigningKey+"1") {
		return parseBech32(s)
	}

	if k, err := parseCBORHex(s); err == nil {
		return k, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: unrecognized encoding", ErrInvalidKey)
	}
	return keyFromBytes(raw)
}

func parseBech32(s string) (*Key, error) {
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	switch hrp {
	case hrpSigningKey:
		return NewKeyFromSeed(raw)
	case hrpExtendedSigningKey:
		return NewExtendedKey(raw)
	default:
		return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidKey, hrp)
	}
}

func parseCBORHex(s string) (*Key, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: cborHex: %v", ErrInvalidKey, err)
	}
	var raw []byte
	if err := cbor.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: cborHex: %v", ErrInvalidKey, err)
	}
	return keyFromBytes(raw)
}

func keyFromBytes(raw []byte) (*Key, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return NewKeyFromSeed(raw)
	case extendedKeySize:
		return NewExtendedKey(raw)
	case cliExtendedKeySize:
		k, err := NewExtendedKey(raw[:extendedKeySize])
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(k.pub, raw[extendedKeySize:extendedKeySize+ed25519.PublicKeySize]) {
			return nil, fmt.Errorf("%w: embedded public key does not match", ErrInvalidKey)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: key length %d", ErrInvalidKey, len(raw))
	}
}

// EncodeBech32 renders a seed key as ed25519_sk and an extended key as
// ed25519e_sk.
func (k *Key) EncodeBech32() (string, error) {
	hrp, raw := hrpExtendedSigningKey, k.ext
	if k.seed != nil {
		hrp, raw = hrpSigningKey, k.seed.Seed()
	}
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, data)
}
