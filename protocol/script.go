package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const stageParameterize = "parameterize"

// Script is an executable script as the ledger stores it. For Plutus
// languages Bytes is the flat program wrapped once in a CBOR byte string.
type Script struct {
	Language Language
	Bytes    []byte
}

func (s Script) Hex() string { return hex.EncodeToString(s.Bytes) }

var errNotWrapped = errors.New("script is not a CBOR byte string")

// UnwrapScript strips every CBOR byte-string layer around a flat program.
// Blueprints carry one layer, text envelopes and some tools two.
func UnwrapScript(b []byte) ([]byte, error) {
	var inner []byte
	if err := cbor.Unmarshal(b, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotWrapped, err)
	}
	for {
		var next []byte
		if err := cbor.Unmarshal(inner, &next); err != nil {
			return inner, nil
		}
		inner = next
	}
}

// WrapScript wraps a flat program in exactly one CBOR byte string.
func WrapScript(flat []byte) []byte {
	out := make([]byte, 0, len(flat)+9)
	out = appendHead(out, majorBytes, uint64(len(flat)))
	return append(out, flat...)
}

// ApplyParams applies params, in order, to the program inside script and
// returns the new program wrapped once. Each parameter becomes a data
// constant: Apply(Apply(term, p1), p2)...
func ApplyParams(script []byte, params ...Data) ([]byte, error) {
	flat, err := UnwrapScript(script)
	if err != nil {
		return nil, NewError(KindParameterApplication, stageParameterize, err)
	}
	prog, err := DecodeProgram(flat)
	if err != nil {
		return nil, NewError(KindParameterApplication, stageParameterize, err)
	}
	for _, p := range params {
		if p == nil {
			return nil, Errorf(KindParameterApplication, stageParameterize, "nil parameter")
		}
		prog.Term = Apply{Fun: prog.Term, Arg: DataConstant(p)}
	}
	out, err := EncodeProgram(prog)
	if err != nil {
		return nil, NewError(KindParameterApplication, stageParameterize, err)
	}
	return WrapScript(out), nil
}

// ParameterizeMintingPolicy applies the operator credential as the single
// parameter of a Plutus minting policy.
func ParameterizeMintingPolicy(compiled []byte, lang Language, operator Credential) (Script, error) {
	if !lang.IsPlutus() {
		return Script{}, Errorf(KindParameterApplication, stageParameterize, "%s scripts take no parameters", lang)
	}
	b, err := ApplyParams(compiled, Bytes(operator[:]))
	if err != nil {
		return Script{}, err
	}
	return Script{Language: lang, Bytes: b}, nil
}
