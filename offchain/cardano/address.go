package cardano

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"

	"github.com/Abdullah1738/tokenwell/protocol"
)

const stageAddress = "address"

// AddressType is the high nibble of an address header byte.
type AddressType uint8

const (
	AddressBaseKeyKey       AddressType = 0
	AddressBaseScriptKey    AddressType = 1
	AddressBaseKeyScript    AddressType = 2
	AddressBaseScriptScript AddressType = 3
	AddressPointerKey       AddressType = 4
	AddressPointerScript    AddressType = 5
	AddressEnterpriseKey    AddressType = 6
	AddressEnterpriseScript AddressType = 7
	AddressByron            AddressType = 8
	AddressRewardKey        AddressType = 14
	AddressRewardScript     AddressType = 15
)

var (
	ErrInvalidAddress       = errors.New("invalid address")
	ErrNoPaymentCredential  = errors.New("address carries no payment credential")
	ErrAddressNetwork       = errors.New("address is for another network")
	errBadByronAddressCRC   = errors.New("byron address checksum mismatch")
	errBadByronAddressCBOR  = errors.New("malformed byron address")
	errTruncatedAddressBody = errors.New("truncated address")
)

// Address is a decoded payment address. Raw is the ledger encoding
// (header byte and credentials, or the Byron CBOR), Text the human form.
type Address struct {
	Raw  []byte
	Text string
}

// ParseAddress decodes a bech32 Shelley address or a base58 Byron address.
// Shelley addresses exceed bech32's 90-character limit, so the limit is not
// enforced.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, addressError(ErrInvalidAddress)
	}

	hrp, data, err := bech32.DecodeNoLimit(s)
	if err == nil {
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return Address{}, addressError(fmt.Errorf("%w: %v", ErrInvalidAddress, err))
		}
		return parseShelley(hrp, raw, s)
	}
	bechErr := err

	raw, err := base58.Decode(s)
	if err != nil || len(raw) == 0 {
		return Address{}, addressError(fmt.Errorf("%w: %v", ErrInvalidAddress, bechErr))
	}
	if err := checkByron(raw); err != nil {
		return Address{}, addressError(err)
	}
	return Address{Raw: raw, Text: s}, nil
}

func parseShelley(hrp string, raw []byte, text string) (Address, error) {
	if len(raw) == 0 {
		return Address{}, addressError(errTruncatedAddressBody)
	}
	a := Address{Raw: raw, Text: text}

	var wantLen int
	switch t := a.Type(); t {
	case AddressBaseKeyKey, AddressBaseScriptKey, AddressBaseKeyScript, AddressBaseScriptScript:
		wantLen = 1 + 2*protocol.HashSize
	case AddressEnterpriseKey, AddressEnterpriseScript, AddressRewardKey, AddressRewardScript:
		wantLen = 1 + protocol.HashSize
	case AddressPointerKey, AddressPointerScript:
		// Pointer: three variable-length naturals follow the credential.
		if len(raw) < 1+protocol.HashSize+3 {
			return Address{}, addressError(errTruncatedAddressBody)
		}
		wantLen = len(raw)
	default:
		return Address{}, addressError(fmt.Errorf("%w: header type %d", ErrInvalidAddress, t))
	}
	if len(raw) != wantLen {
		return Address{}, addressError(fmt.Errorf("%w: %d bytes for header type %d", ErrInvalidAddress, len(raw), a.Type()))
	}

	wantHRP := "addr"
	if a.IsReward() {
		wantHRP = "stake"
	}
	if a.NetworkID() == testnetID {
		wantHRP += "_test"
	}
	if hrp != wantHRP {
		return Address{}, addressError(fmt.Errorf("%w: prefix %q with network id %d", ErrInvalidAddress, hrp, a.NetworkID()))
	}
	return a, nil
}

type byronAddress struct {
	_       struct{} `cbor:",toarray"`
	Payload cbor.Tag
	CRC     uint32
}

func checkByron(raw []byte) error {
	var b byronAddress
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("%w: %v", errBadByronAddressCBOR, err)
	}
	payload, ok := b.Payload.Content.([]byte)
	if b.Payload.Number != 24 || !ok {
		return errBadByronAddressCBOR
	}
	if crc32.ChecksumIEEE(payload) != b.CRC {
		return errBadByronAddressCRC
	}
	return nil
}

func (a Address) Type() AddressType {
	if len(a.Raw) == 0 {
		return AddressByron
	}
	return AddressType(a.Raw[0] >> 4)
}

// NetworkID is the header's network nibble. Byron addresses report 0xff.
func (a Address) NetworkID() byte {
	if a.IsByron() {
		return 0xff
	}
	return a.Raw[0] & 0x0f
}

func (a Address) IsByron() bool { return a.Type() == AddressByron }

func (a Address) IsReward() bool {
	t := a.Type()
	return t == AddressRewardKey || t == AddressRewardScript
}

// IsScriptPayment reports whether the payment part is a script hash.
func (a Address) IsScriptPayment() bool {
	return a.Type() <= AddressEnterpriseScript && a.Type()&1 == 1
}

// PaymentCredential returns header bytes 1..29. Base, pointer and
// enterprise addresses have one; reward and Byron addresses do not.
func (a Address) PaymentCredential() (protocol.Credential, error) {
	if a.IsByron() || a.IsReward() || a.Type() > AddressEnterpriseScript {
		return protocol.Credential{}, addressError(fmt.Errorf("%w: header type %d", ErrNoPaymentCredential, a.Type()))
	}
	if len(a.Raw) < 1+protocol.HashSize {
		return protocol.Credential{}, addressError(errTruncatedAddressBody)
	}
	var out protocol.Credential
	copy(out[:], a.Raw[1:1+protocol.HashSize])
	return out, nil
}

func (a Address) String() string { return a.Text }

// PaymentCredentialOf parses s and returns its payment credential.
func PaymentCredentialOf(s string) (protocol.Credential, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return protocol.Credential{}, err
	}
	return a.PaymentCredential()
}

// EnterpriseAddress is the stake-less key address of cred on n.
func EnterpriseAddress(n Network, cred protocol.Credential) (Address, error) {
	raw := make([]byte, 0, 1+protocol.HashSize)
	raw = append(raw, byte(AddressEnterpriseKey)<<4|n.ID())
	raw = append(raw, cred[:]...)
	return encodeShelley(n.AddressHRP(), raw)
}

// BaseAddress is the key/key base address of (payment, stake) on n.
func BaseAddress(n Network, payment, stake protocol.Credential) (Address, error) {
	raw := make([]byte, 0, 1+2*protocol.HashSize)
	raw = append(raw, byte(AddressBaseKeyKey)<<4|n.ID())
	raw = append(raw, payment[:]...)
	raw = append(raw, stake[:]...)
	return encodeShelley(n.AddressHRP(), raw)
}

func encodeShelley(hrp string, raw []byte) (Address, error) {
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return Address{}, err
	}
	text, err := bech32.Encode(hrp, data)
	if err != nil {
		return Address{}, err
	}
	return Address{Raw: raw, Text: text}, nil
}

func addressError(err error) error {
	return protocol.NewError(protocol.KindAddressDecode, stageAddress, err)
}
