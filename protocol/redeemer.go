package protocol

import (
	"errors"
	"math/big"
)

const stageRedeemer = "redeemer"

var errNonPositiveQuantity = errors.New("quantity must be positive")

// MintRedeemer mirrors the validator's redeemer type:
//
//	Mint { token_name: ByteArray, quantity: Int, recipient: ByteArray }
//
// Field order is the constructor's declaration order and must not change.
type MintRedeemer struct {
	TokenName AssetName
	Quantity  *big.Int
	Recipient Credential
}

// MintConstrIndex is the constructor index of Mint in the redeemer type.
const MintConstrIndex = 0

func (r MintRedeemer) Data() (Data, error) {
	if r.Quantity == nil || r.Quantity.Sign() <= 0 {
		return nil, NewError(KindEncodingRange, stageRedeemer, errNonPositiveQuantity)
	}
	return Constr{
		Index: MintConstrIndex,
		Fields: []Data{
			Bytes(r.TokenName),
			BigInt(r.Quantity),
			Bytes(r.Recipient[:]),
		},
	}, nil
}

func (r MintRedeemer) Encode() ([]byte, error) {
	d, err := r.Data()
	if err != nil {
		return nil, err
	}
	return EncodeData(d), nil
}

// EncodeMintRedeemer encodes the raw UTF-8 token name, the quantity and the
// recipient's payment credential as the Mint redeemer.
func EncodeMintRedeemer(tokenName string, quantity *big.Int, recipient Credential) ([]byte, error) {
	return MintRedeemer{
		TokenName: AssetName(tokenName),
		Quantity:  quantity,
		Recipient: recipient,
	}.Encode()
}
