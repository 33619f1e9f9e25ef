package protocol

import (
	"errors"
	"fmt"
	"math/big"
)

// Untyped Plutus Core terms, enough of them to decode any deployed program,
// apply arguments to it and encode it back.

const (
	termVar      = 0
	termDelay    = 1
	termLambda   = 2
	termApply    = 3
	termConstant = 4
	termForce    = 5
	termError    = 6
	termBuiltin  = 7
	termConstr   = 8
	termCase     = 9

	termTagBits    = 4
	builtinTagBits = 7
	typeTagBits    = 4
)

// Constant type tags of the default universe.
const (
	TypeInteger    uint8 = 0
	TypeByteString uint8 = 1
	TypeString     uint8 = 2
	TypeUnit       uint8 = 3
	TypeBool       uint8 = 4
	typeProtoList  uint8 = 5
	typeProtoPair  uint8 = 6
	typeApply      uint8 = 7
	TypeData       uint8 = 8
)

type Term interface {
	isTerm()
}

type (
	Var        struct{ Index uint64 }
	Delay      struct{ Body Term }
	Lambda     struct{ Body Term }
	Apply      struct{ Fun, Arg Term }
	Force      struct{ Body Term }
	ErrorTerm  struct{}
	Builtin    struct{ Fn uint8 }
	ConstrTerm struct {
		Tag    uint64
		Fields []Term
	}
	Case struct {
		Scrutinee Term
		Branches  []Term
	}
	Constant struct {
		Type  ConstType
		Value any
	}
)

func (Var) isTerm()        {}
func (Delay) isTerm()      {}
func (Lambda) isTerm()     {}
func (Apply) isTerm()      {}
func (Force) isTerm()      {}
func (ErrorTerm) isTerm()  {}
func (Builtin) isTerm()    {}
func (ConstrTerm) isTerm() {}
func (Case) isTerm()       {}
func (Constant) isTerm()   {}

// ConstType is a constant's type. List carries one argument, Pair two.
type ConstType struct {
	Tag  uint8
	List bool
	Pair bool
	Args []ConstType
}

// RawData is a data constant kept as its CBOR bytes.
type RawData []byte

// Program is a versioned term.
type Program struct {
	Version [3]uint64
	Term    Term
}

// DataConstant wraps d as a data constant term.
func DataConstant(d Data) Constant {
	return Constant{Type: ConstType{Tag: TypeData}, Value: RawData(EncodeData(d))}
}

var errUnsupportedConstant = errors.New("flat: unsupported constant type")

func DecodeProgram(flat []byte) (*Program, error) {
	r := &bitReader{buf: flat}
	var p Program
	for i := range p.Version {
		v, err := r.word()
		if err != nil {
			return nil, fmt.Errorf("version: %w", err)
		}
		p.Version[i] = v
	}
	t, err := decodeTerm(r)
	if err != nil {
		return nil, err
	}
	if err := r.filler(); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, errFlatTrailer
	}
	p.Term = t
	return &p, nil
}

func EncodeProgram(p *Program) ([]byte, error) {
	w := &bitWriter{buf: make([]byte, 0, 256)}
	for _, v := range p.Version {
		w.word(v)
	}
	if err := encodeTerm(w, p.Term); err != nil {
		return nil, err
	}
	w.filler()
	return w.buf, nil
}

func decodeTerm(r *bitReader) (Term, error) {
	tag, err := r.bits(termTagBits)
	if err != nil {
		return nil, err
	}
	switch tag {
	case termVar:
		i, err := r.word()
		if err != nil {
			return nil, err
		}
		return Var{Index: i}, nil
	case termDelay:
		b, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		return Delay{Body: b}, nil
	case termLambda:
		b, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		return Lambda{Body: b}, nil
	case termApply:
		f, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		a, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		return Apply{Fun: f, Arg: a}, nil
	case termConstant:
		return decodeConstant(r)
	case termForce:
		b, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		return Force{Body: b}, nil
	case termError:
		return ErrorTerm{}, nil
	case termBuiltin:
		fn, err := r.bits(builtinTagBits)
		if err != nil {
			return nil, err
		}
		return Builtin{Fn: uint8(fn)}, nil
	case termConstr:
		t, err := r.word()
		if err != nil {
			return nil, err
		}
		fields, err := decodeTermList(r)
		if err != nil {
			return nil, err
		}
		return ConstrTerm{Tag: t, Fields: fields}, nil
	case termCase:
		s, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		branches, err := decodeTermList(r)
		if err != nil {
			return nil, err
		}
		return Case{Scrutinee: s, Branches: branches}, nil
	default:
		return nil, fmt.Errorf("flat: unknown term tag %d", tag)
	}
}

func decodeTermList(r *bitReader) ([]Term, error) {
	var out []Term
	for {
		more, err := r.bit()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		t, err := decodeTerm(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}

func decodeConstant(r *bitReader) (Term, error) {
	var tags []uint8
	for {
		more, err := r.bit()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		t, err := r.bits(typeTagBits)
		if err != nil {
			return nil, err
		}
		tags = append(tags, uint8(t))
	}
	typ, rest, err := parseConstType(tags)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("flat: %d unused type tags", len(rest))
	}
	v, err := decodeValue(r, typ)
	if err != nil {
		return nil, err
	}
	return Constant{Type: typ, Value: v}, nil
}

func parseConstType(tags []uint8) (ConstType, []uint8, error) {
	if len(tags) == 0 {
		return ConstType{}, nil, errors.New("flat: empty constant type")
	}
	switch tags[0] {
	case TypeInteger, TypeByteString, TypeString, TypeUnit, TypeBool, TypeData:
		return ConstType{Tag: tags[0]}, tags[1:], nil
	case typeApply:
		if len(tags) < 2 {
			return ConstType{}, nil, errors.New("flat: truncated type application")
		}
		switch tags[1] {
		case typeProtoList:
			elem, rest, err := parseConstType(tags[2:])
			if err != nil {
				return ConstType{}, nil, err
			}
			return ConstType{List: true, Args: []ConstType{elem}}, rest, nil
		case typeApply:
			if len(tags) < 3 || tags[2] != typeProtoPair {
				return ConstType{}, nil, errors.New("flat: malformed pair type")
			}
			a, rest, err := parseConstType(tags[3:])
			if err != nil {
				return ConstType{}, nil, err
			}
			b, rest, err := parseConstType(rest)
			if err != nil {
				return ConstType{}, nil, err
			}
			return ConstType{Pair: true, Args: []ConstType{a, b}}, rest, nil
		}
	}
	return ConstType{}, nil, fmt.Errorf("%w: tag %d", errUnsupportedConstant, tags[0])
}

func (t ConstType) tags() []uint8 {
	switch {
	case t.List:
		return append([]uint8{typeApply, typeProtoList}, t.Args[0].tags()...)
	case t.Pair:
		out := []uint8{typeApply, typeApply, typeProtoPair}
		out = append(out, t.Args[0].tags()...)
		return append(out, t.Args[1].tags()...)
	default:
		return []uint8{t.Tag}
	}
}

func decodeValue(r *bitReader, t ConstType) (any, error) {
	switch {
	case t.List:
		var out []any
		for {
			more, err := r.bit()
			if err != nil {
				return nil, err
			}
			if !more {
				return out, nil
			}
			v, err := decodeValue(r, t.Args[0])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	case t.Pair:
		a, err := decodeValue(r, t.Args[0])
		if err != nil {
			return nil, err
		}
		b, err := decodeValue(r, t.Args[1])
		if err != nil {
			return nil, err
		}
		return [2]any{a, b}, nil
	}

	switch t.Tag {
	case TypeInteger:
		return r.integer()
	case TypeByteString:
		return r.bytestring()
	case TypeString:
		b, err := r.bytestring()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case TypeUnit:
		return struct{}{}, nil
	case TypeBool:
		return r.bit()
	case TypeData:
		b, err := r.bytestring()
		if err != nil {
			return nil, err
		}
		return RawData(b), nil
	}
	return nil, fmt.Errorf("%w: tag %d", errUnsupportedConstant, t.Tag)
}

func encodeTerm(w *bitWriter, t Term) error {
	switch t := t.(type) {
	case Var:
		w.bits(termVar, termTagBits)
		w.word(t.Index)
	case Delay:
		w.bits(termDelay, termTagBits)
		return encodeTerm(w, t.Body)
	case Lambda:
		w.bits(termLambda, termTagBits)
		return encodeTerm(w, t.Body)
	case Apply:
		w.bits(termApply, termTagBits)
		if err := encodeTerm(w, t.Fun); err != nil {
			return err
		}
		return encodeTerm(w, t.Arg)
	case Force:
		w.bits(termForce, termTagBits)
		return encodeTerm(w, t.Body)
	case ErrorTerm:
		w.bits(termError, termTagBits)
	case Builtin:
		w.bits(termBuiltin, termTagBits)
		w.bits(uint64(t.Fn), builtinTagBits)
	case ConstrTerm:
		w.bits(termConstr, termTagBits)
		w.word(t.Tag)
		return encodeTermList(w, t.Fields)
	case Case:
		w.bits(termCase, termTagBits)
		if err := encodeTerm(w, t.Scrutinee); err != nil {
			return err
		}
		return encodeTermList(w, t.Branches)
	case Constant:
		w.bits(termConstant, termTagBits)
		for _, tag := range t.Type.tags() {
			w.bit(true)
			w.bits(uint64(tag), typeTagBits)
		}
		w.bit(false)
		return encodeValue(w, t.Type, t.Value)
	default:
		return fmt.Errorf("flat: cannot encode term %T", t)
	}
	return nil
}

func encodeTermList(w *bitWriter, ts []Term) error {
	for _, t := range ts {
		w.bit(true)
		if err := encodeTerm(w, t); err != nil {
			return err
		}
	}
	w.bit(false)
	return nil
}

func encodeValue(w *bitWriter, t ConstType, v any) error {
	switch {
	case t.List:
		items, ok := v.([]any)
		if !ok && v != nil {
			return fmt.Errorf("flat: list constant holds %T", v)
		}
		for _, it := range items {
			w.bit(true)
			if err := encodeValue(w, t.Args[0], it); err != nil {
				return err
			}
		}
		w.bit(false)
		return nil
	case t.Pair:
		p, ok := v.([2]any)
		if !ok {
			return fmt.Errorf("flat: pair constant holds %T", v)
		}
		if err := encodeValue(w, t.Args[0], p[0]); err != nil {
			return err
		}
		return encodeValue(w, t.Args[1], p[1])
	}

	switch t.Tag {
	case TypeInteger:
		n, ok := v.(*big.Int)
		if !ok {
			return fmt.Errorf("flat: integer constant holds %T", v)
		}
		w.integer(n)
	case TypeByteString:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("flat: bytestring constant holds %T", v)
		}
		w.bytestring(b)
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("flat: string constant holds %T", v)
		}
		w.bytestring([]byte(s))
	case TypeUnit:
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("flat: bool constant holds %T", v)
		}
		w.bit(b)
	case TypeData:
		d, ok := v.(RawData)
		if !ok {
			return fmt.Errorf("flat: data constant holds %T", v)
		}
		w.bytestring(d)
	default:
		return fmt.Errorf("%w: tag %d", errUnsupportedConstant, t.Tag)
	}
	return nil
}
