package cardano

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Abdullah1738/tokenwell/protocol"
)

var ErrMissingSigner = errors.New("missing signer for required signature")

// Map keys sorted, shortest integer heads, definite lengths only.
var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

const (
	redeemerTagMint = 1

	vkeySize      = 32
	signatureSize = 64
)

type txInput struct {
	_     struct{} `cbor:",toarray"`
	TxID  []byte
	Index uint32
}

type txOutput struct {
	Address []byte `cbor:"0,keyasint"`
	Value   Value  `cbor:"1,keyasint"`
}

type txBody struct {
	Inputs           []txInput                                     `cbor:"0,keyasint"`
	Outputs          []txOutput                                    `cbor:"1,keyasint"`
	Fee              uint64                                        `cbor:"2,keyasint"`
	Mint             map[cbor.ByteString]map[cbor.ByteString]int64 `cbor:"9,keyasint,omitempty"`
	ScriptDataHash   []byte                                        `cbor:"11,keyasint,omitempty"`
	Collateral       []txInput                                     `cbor:"13,keyasint,omitempty"`
	RequiredSigners  [][]byte                                      `cbor:"14,keyasint,omitempty"`
	CollateralReturn *txOutput                                     `cbor:"16,keyasint,omitempty"`
	TotalCollateral  uint64                                        `cbor:"17,keyasint,omitempty"`
}

type vkeyWitness struct {
	_         struct{} `cbor:",toarray"`
	VKey      []byte
	Signature []byte
}

type exUnits struct {
	_     struct{} `cbor:",toarray"`
	Mem   uint64
	Steps uint64
}

type redeemer struct {
	_       struct{} `cbor:",toarray"`
	Tag     uint8
	Index   uint32
	Data    cbor.RawMessage
	ExUnits exUnits
}

type witnessSet struct {
	VKeys           []vkeyWitness   `cbor:"0,keyasint,omitempty"`
	PlutusV1Scripts [][]byte        `cbor:"3,keyasint,omitempty"`
	Redeemers       cbor.RawMessage `cbor:"5,keyasint,omitempty"`
	PlutusV2Scripts [][]byte        `cbor:"6,keyasint,omitempty"`
	PlutusV3Scripts [][]byte        `cbor:"7,keyasint,omitempty"`
}

type transaction struct {
	_         struct{} `cbor:",toarray"`
	Body      cbor.RawMessage
	Witnesses cbor.RawMessage
	Valid     bool
	Auxiliary cbor.RawMessage
}

var cborNull = cbor.RawMessage{0xf6}

// Signer produces vkey witnesses.
type Signer interface {
	KeyHash() protocol.Credential
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
}

// UnsignedTx is a balanced transaction waiting for its vkey witnesses.
type UnsignedTx struct {
	ID       [32]byte
	Body     []byte
	Fee      uint64
	PolicyID protocol.PolicyID
	ExUnits  ExUnits
	// Inputs are the spent wallet UTxOs in ledger order.
	Inputs     []TxIn
	Collateral TxIn
	// Signers are the key hashes whose witnesses the ledger will demand:
	// owners of spent inputs and collateral, then the required signers.
	Signers []protocol.Credential

	script    protocol.Script
	redeemers []byte
}

func (u *UnsignedTx) Hash() string { return hex.EncodeToString(u.ID[:]) }

// Sign witnesses the transaction id with one signer per required key hash
// and returns the serialized transaction.
func (u *UnsignedTx) Sign(signers ...Signer) ([]byte, error) {
	byHash := make(map[protocol.Credential]Signer, len(signers))
	for _, s := range signers {
		byHash[s.KeyHash()] = s
	}

	vkeys := make([]vkeyWitness, 0, len(u.Signers))
	for _, kh := range u.Signers {
		s, ok := byHash[kh]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, kh)
		}
		sig, err := s.Sign(u.ID[:])
		if err != nil {
			return nil, err
		}
		if len(sig) != signatureSize {
			return nil, fmt.Errorf("signature length %d", len(sig))
		}
		vkeys = append(vkeys, vkeyWitness{VKey: s.PublicKey(), Signature: sig})
	}
	return u.assemble(vkeys)
}

// Draft serializes the transaction without vkey witnesses, the form script
// evaluators accept.
func (u *UnsignedTx) Draft() ([]byte, error) { return u.assemble(nil) }

// dummyWitnesses sizes the signed transaction for fee estimation.
func (u *UnsignedTx) dummyWitnesses() []vkeyWitness {
	out := make([]vkeyWitness, len(u.Signers))
	for i := range out {
		out[i] = vkeyWitness{VKey: make([]byte, vkeySize), Signature: make([]byte, signatureSize)}
	}
	return out
}

func (u *UnsignedTx) assemble(vkeys []vkeyWitness) ([]byte, error) {
	ws := witnessSet{VKeys: vkeys, Redeemers: u.redeemers}
	scripts := [][]byte{u.script.Bytes}
	switch u.script.Language {
	case protocol.LanguagePlutusV1:
		ws.PlutusV1Scripts = scripts
	case protocol.LanguagePlutusV2:
		ws.PlutusV2Scripts = scripts
	case protocol.LanguagePlutusV3:
		ws.PlutusV3Scripts = scripts
	default:
		return nil, fmt.Errorf("cannot witness %s script", u.script.Language)
	}
	wb, err := encMode.Marshal(ws)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(transaction{
		Body:      u.Body,
		Witnesses: wb,
		Valid:     true,
		Auxiliary: cborNull,
	})
}

// TxID is blake2b-256 of the serialized body.
func TxID(body []byte) [32]byte { return protocol.Blake2b256(body) }

// languageViewKey is the key of a Plutus language in the script integrity
// hash's cost model map.
func languageViewKey(l protocol.Language) (uint64, bool) {
	switch l {
	case protocol.LanguagePlutusV2:
		return 1, true
	case protocol.LanguagePlutusV3:
		return 2, true
	default:
		return 0, false
	}
}

// scriptDataHash is blake2b-256(redeemers || language views); the
// transaction carries no datums.
func scriptDataHash(redeemers []byte, lang protocol.Language, costs []int64) ([32]byte, error) {
	key, ok := languageViewKey(lang)
	if !ok {
		return [32]byte{}, fmt.Errorf("no language view for %s", lang)
	}
	views, err := encMode.Marshal(map[uint64][]int64{key: costs})
	if err != nil {
		return [32]byte{}, err
	}
	return protocol.Blake2b256(redeemers, views), nil
}
