package cardano

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/Abdullah1738/tokenwell/protocol"
)

// MultiAsset maps policy -> raw asset name -> quantity.
type MultiAsset map[protocol.PolicyID]map[string]uint64

// Value is an amount of lovelace plus native assets.
type Value struct {
	Coin   uint64
	Assets MultiAsset
}

func (m MultiAsset) Add(policy protocol.PolicyID, name protocol.AssetName, qty uint64) {
	if qty == 0 {
		return
	}
	byName, ok := m[policy]
	if !ok {
		byName = make(map[string]uint64)
		m[policy] = byName
	}
	byName[string(name)] += qty
}

func (m MultiAsset) Quantity(policy protocol.PolicyID, name protocol.AssetName) uint64 {
	return m[policy][string(name)]
}

func (v Value) HasAssets() bool {
	for _, byName := range v.Assets {
		if len(byName) > 0 {
			return true
		}
	}
	return false
}

// Add returns v + o. Neither operand is modified.
func (v Value) Add(o Value) Value {
	out := Value{Coin: v.Coin + o.Coin, Assets: MultiAsset{}}
	for _, src := range []MultiAsset{v.Assets, o.Assets} {
		for p, byName := range src {
			for name, q := range byName {
				out.Assets.Add(p, protocol.AssetName(name), q)
			}
		}
	}
	return out
}

// Equal compares coin and every non-zero asset quantity.
func (v Value) Equal(o Value) bool {
	if v.Coin != o.Coin {
		return false
	}
	return v.Assets.contains(o.Assets) && o.Assets.contains(v.Assets)
}

func (m MultiAsset) contains(o MultiAsset) bool {
	for p, byName := range o {
		for name, q := range byName {
			if q != 0 && m[p][name] != q {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	s := fmt.Sprintf("%d lovelace", v.Coin)
	units := make([]string, 0)
	for p, byName := range v.Assets {
		for name, q := range byName {
			units = append(units, fmt.Sprintf("%d %s", q, protocol.Unit(p, protocol.AssetName(name))))
		}
	}
	sort.Strings(units)
	for _, u := range units {
		s += " + " + u
	}
	return s
}

type valueWithAssets struct {
	_      struct{} `cbor:",toarray"`
	Coin   uint64
	Assets map[cbor.ByteString]map[cbor.ByteString]uint64
}

// MarshalCBOR writes a bare coin when there are no assets, [coin, assets]
// otherwise.
func (v Value) MarshalCBOR() ([]byte, error) {
	if !v.HasAssets() {
		return encMode.Marshal(v.Coin)
	}
	assets := make(map[cbor.ByteString]map[cbor.ByteString]uint64, len(v.Assets))
	for p, byName := range v.Assets {
		inner := make(map[cbor.ByteString]uint64, len(byName))
		for name, q := range byName {
			if q != 0 {
				inner[cbor.ByteString(name)] = q
			}
		}
		if len(inner) > 0 {
			assets[cbor.ByteString(p[:])] = inner
		}
	}
	return encMode.Marshal(valueWithAssets{Coin: v.Coin, Assets: assets})
}

func (v *Value) UnmarshalCBOR(b []byte) error {
	var coin uint64
	if err := cbor.Unmarshal(b, &coin); err == nil {
		*v = Value{Coin: coin}
		return nil
	}
	var wa valueWithAssets
	if err := cbor.Unmarshal(b, &wa); err != nil {
		return err
	}
	out := Value{Coin: wa.Coin, Assets: MultiAsset{}}
	for p, byName := range wa.Assets {
		if len(p) != protocol.HashSize {
			return fmt.Errorf("policy id length %d", len(p))
		}
		var pid protocol.PolicyID
		copy(pid[:], p)
		for name, q := range byName {
			out.Assets.Add(pid, protocol.AssetName(name), q)
		}
	}
	*v = out
	return nil
}

// TxIn references a transaction output.
type TxIn struct {
	TxID  [32]byte
	Index uint32
}

func (in TxIn) String() string {
	return fmt.Sprintf("%s#%d", hex.EncodeToString(in.TxID[:]), in.Index)
}

func (in TxIn) less(o TxIn) bool {
	for i := range in.TxID {
		if in.TxID[i] != o.TxID[i] {
			return in.TxID[i] < o.TxID[i]
		}
	}
	return in.Index < o.Index
}

// UTxO is a spendable output.
type UTxO struct {
	In      TxIn
	Address string
	Value   Value
}
