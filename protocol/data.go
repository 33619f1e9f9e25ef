package protocol

import (
	"math/big"
)

// Data is a Plutus Data value: the only argument type a validator can pattern
// match on. Values encode to the canonical CBOR form the ledger's Data decoder
// accepts: definite-length arrays and maps, shortest integer heads, bignums
// only past 64 bits, byte strings chunked at 64 bytes.
type Data interface {
	appendCBOR(dst []byte) []byte
}

// Constr is a constructor application: a sum-type alternative plus its
// ordered fields.
type Constr struct {
	Index  uint64
	Fields []Data
}

// Int is an arbitrary-precision integer. A nil V encodes as zero.
type Int struct {
	V *big.Int
}

// Bytes is a byte string.
type Bytes []byte

// List is an ordered sequence of Data.
type List []Data

// Map keeps its pairs in the given order; the ledger does not sort them.
type Map []Pair

type Pair struct {
	Key   Data
	Value Data
}

func NewInt(v int64) Int { return Int{V: big.NewInt(v)} }

func BigInt(v *big.Int) Int { return Int{V: new(big.Int).Set(v)} }

// EncodeData returns the canonical CBOR encoding of d.
func EncodeData(d Data) []byte {
	return d.appendCBOR(make([]byte, 0, 64))
}

const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorArray    = 4
	majorMap      = 5
	majorTag      = 6

	// Byte strings longer than this are split into chunks inside an
	// indefinite-length byte string.
	maxBytesChunk = 64

	tagPositiveBignum = 2
	tagNegativeBignum = 3
	tagConstrGeneral  = 102
	tagConstr0        = 121
	tagConstr7        = 1280
)

func appendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= 0xff:
		return append(dst, m|24, byte(n))
	case n <= 0xffff:
		return append(dst, m|25, byte(n>>8), byte(n))
	case n <= 0xffff_ffff:
		return append(dst, m|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(dst, m|27,
			byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// ConstrTag returns the CBOR tag for constructor index i, and whether the
// index must be carried explicitly (general form, tag 102).
func ConstrTag(i uint64) (tag uint64, general bool) {
	switch {
	case i < 7:
		return tagConstr0 + i, false
	case i < 128:
		return tagConstr7 + (i - 7), false
	default:
		return tagConstrGeneral, true
	}
}

func (c Constr) appendCBOR(dst []byte) []byte {
	tag, general := ConstrTag(c.Index)
	dst = appendHead(dst, majorTag, tag)
	if general {
		dst = appendHead(dst, majorArray, 2)
		dst = appendHead(dst, majorUnsigned, c.Index)
	}
	dst = appendHead(dst, majorArray, uint64(len(c.Fields)))
	for _, f := range c.Fields {
		dst = f.appendCBOR(dst)
	}
	return dst
}

func (v Int) appendCBOR(dst []byte) []byte {
	n := v.V
	if n == nil {
		n = new(big.Int)
	}
	if n.Sign() >= 0 {
		if n.IsUint64() {
			return appendHead(dst, majorUnsigned, n.Uint64())
		}
		dst = appendHead(dst, majorTag, tagPositiveBignum)
		return appendBytes(dst, n.Bytes())
	}

	// CBOR negative integers carry -1 - n.
	m := new(big.Int).Neg(n)
	m.Sub(m, big.NewInt(1))
	if m.IsUint64() {
		return appendHead(dst, majorNegative, m.Uint64())
	}
	dst = appendHead(dst, majorTag, tagNegativeBignum)
	return appendBytes(dst, m.Bytes())
}

func (b Bytes) appendCBOR(dst []byte) []byte {
	return appendBytes(dst, b)
}

func appendBytes(dst []byte, b []byte) []byte {
	if len(b) <= maxBytesChunk {
		dst = appendHead(dst, majorBytes, uint64(len(b)))
		return append(dst, b...)
	}
	dst = append(dst, majorBytes<<5|31)
	for len(b) > 0 {
		n := len(b)
		if n > maxBytesChunk {
			n = maxBytesChunk
		}
		dst = appendHead(dst, majorBytes, uint64(n))
		dst = append(dst, b[:n]...)
		b = b[n:]
	}
	return append(dst, 0xff)
}

func (l List) appendCBOR(dst []byte) []byte {
	dst = appendHead(dst, majorArray, uint64(len(l)))
	for _, d := range l {
		dst = d.appendCBOR(dst)
	}
	return dst
}

func (m Map) appendCBOR(dst []byte) []byte {
	dst = appendHead(dst, majorMap, uint64(len(m)))
	for _, p := range m {
		dst = p.Key.appendCBOR(dst)
		dst = p.Value.appendCBOR(dst)
	}
	return dst
}
