package protocol

import (
	"errors"
	"math/big"
)

// Bit-level codec for the flat encoding used by serialized Plutus programs.
// Bits are written most significant first; variable-length naturals are
// little-endian 7-bit groups, each prefixed with a continuation bit.

var (
	errFlatEOF     = errors.New("flat: unexpected end of input")
	errFlatFiller  = errors.New("flat: malformed filler")
	errFlatTrailer = errors.New("flat: trailing bytes after program")
)

type bitReader struct {
	buf []byte
	pos int // in bits
}

func (r *bitReader) remaining() int { return len(r.buf)*8 - r.pos }

func (r *bitReader) bit() (bool, error) {
	if r.remaining() < 1 {
		return false, errFlatEOF
	}
	b := r.buf[r.pos/8]>>(7-uint(r.pos%8))&1 == 1
	r.pos++
	return b, nil
}

func (r *bitReader) bits(n int) (uint64, error) {
	if n > 64 || r.remaining() < n {
		return 0, errFlatEOF
	}
	var v uint64
	for i := 0; i < n; i++ {
		b, _ := r.bit()
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, nil
}

func (r *bitReader) word() (uint64, error) {
	var (
		v     uint64
		shift uint
	)
	for {
		chunk, err := r.bits(8)
		if err != nil {
			return 0, err
		}
		if shift > 63 {
			return 0, errors.New("flat: natural overflows 64 bits")
		}
		v |= (chunk & 0x7f) << shift
		if chunk&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
}

func (r *bitReader) natural() (*big.Int, error) {
	v := new(big.Int)
	var shift uint
	for {
		chunk, err := r.bits(8)
		if err != nil {
			return nil, err
		}
		part := new(big.Int).SetUint64(chunk & 0x7f)
		v.Or(v, part.Lsh(part, shift))
		if chunk&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
}

func (r *bitReader) integer() (*big.Int, error) {
	z, err := r.natural()
	if err != nil {
		return nil, err
	}
	// zigzag: even -> n/2, odd -> -(n+1)/2
	n := new(big.Int).Rsh(z, 1)
	if z.Bit(0) == 1 {
		n.Neg(n)
		n.Sub(n, big.NewInt(1))
	}
	return n, nil
}

func (r *bitReader) filler() error {
	for {
		b, err := r.bit()
		if err != nil {
			return errFlatFiller
		}
		if b {
			break
		}
	}
	if r.pos%8 != 0 {
		return errFlatFiller
	}
	return nil
}

func (r *bitReader) bytestring() ([]byte, error) {
	if err := r.filler(); err != nil {
		return nil, err
	}
	var out []byte
	for {
		if r.remaining() < 8 {
			return nil, errFlatEOF
		}
		n := int(r.buf[r.pos/8])
		r.pos += 8
		if n == 0 {
			return out, nil
		}
		if r.remaining() < n*8 {
			return nil, errFlatEOF
		}
		start := r.pos / 8
		out = append(out, r.buf[start:start+n]...)
		r.pos += n * 8
	}
}

type bitWriter struct {
	buf  []byte
	used int // bits used in the last byte, 0 means aligned
}

func (w *bitWriter) bit(b bool) {
	if w.used == 0 {
		w.buf = append(w.buf, 0)
	}
	if b {
		w.buf[len(w.buf)-1] |= 1 << (7 - uint(w.used))
	}
	w.used = (w.used + 1) % 8
}

func (w *bitWriter) bits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.bit(v>>uint(i)&1 == 1)
	}
}

func (w *bitWriter) word(v uint64) {
	for {
		chunk := v & 0x7f
		v >>= 7
		if v == 0 {
			w.bits(chunk, 8)
			return
		}
		w.bits(chunk|0x80, 8)
	}
}

func (w *bitWriter) natural(n *big.Int) {
	v := new(big.Int).Set(n)
	mask := big.NewInt(0x7f)
	for {
		chunk := new(big.Int).And(v, mask).Uint64()
		v.Rsh(v, 7)
		if v.Sign() == 0 {
			w.bits(chunk, 8)
			return
		}
		w.bits(chunk|0x80, 8)
	}
}

func (w *bitWriter) integer(n *big.Int) {
	z := new(big.Int).Lsh(n, 1)
	if n.Sign() < 0 {
		// -2n - 1
		z.Neg(z)
		z.Sub(z, big.NewInt(1))
	}
	w.natural(z)
}

// filler pads to the next byte boundary with 0*1; an aligned writer gets a
// whole 0x01 byte.
func (w *bitWriter) filler() {
	for w.used != 7 {
		if w.used == 0 {
			w.buf = append(w.buf, 0)
		}
		w.used++
	}
	w.bit(true)
}

func (w *bitWriter) bytestring(b []byte) {
	w.filler()
	for len(b) > 0 {
		n := len(b)
		if n > 255 {
			n = 255
		}
		w.buf = append(w.buf, byte(n))
		w.buf = append(w.buf, b[:n]...)
		b = b[n:]
	}
	w.buf = append(w.buf, 0)
}
