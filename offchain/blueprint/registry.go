package blueprint

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Abdullah1738/tokenwell/protocol"
)

const stageBlueprint = "blueprint"

var (
	ErrNotFound     = errors.New("validator not found")
	ErrAmbiguous    = errors.New("validator pattern is ambiguous")
	ErrArity        = errors.New("parameter count mismatch")
	ErrHashMismatch = errors.New("compiled code does not match blueprint hash")
)

// Registry is a CIP-57 blueprint (plutus.json) as emitted by the Aiken
// compiler.
type Registry struct {
	Preamble   Preamble    `json:"preamble"`
	Validators []Validator `json:"validators"`
}

type Preamble struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Version       string `json:"version"`
	PlutusVersion string `json:"plutusVersion"`
	Compiler      struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	} `json:"compiler"`
}

type Validator struct {
	Title        string      `json:"title"`
	CompiledCode HexBytes    `json:"compiledCode"`
	Hash         string      `json:"hash"`
	Parameters   []Parameter `json:"parameters,omitempty"`

	// Language comes from the preamble's plutusVersion.
	Language protocol.Language `json:"-"`
}

type Parameter struct {
	Title  string          `json:"title"`
	Schema json.RawMessage `json:"schema"`
}

// HexBytes is a JSON hex string.
type HexBytes []byte

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*h = raw
	return nil
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("blueprint path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Registry, error) {
	var out Registry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	lang, err := protocol.ParseLanguage(out.Preamble.PlutusVersion)
	if err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	for i := range out.Validators {
		out.Validators[i].Language = lang
	}
	return &out, nil
}

func (r *Registry) Titles() []string {
	out := make([]string, len(r.Validators))
	for i, v := range r.Validators {
		out[i] = v.Title
	}
	return out
}

// Find selects one validator. A title equal to the single pattern wins;
// otherwise the validator must be the only one whose title contains every
// pattern fragment.
func (r *Registry) Find(patterns ...string) (Validator, error) {
	frags := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			frags = append(frags, p)
		}
	}
	if len(frags) == 0 {
		return Validator{}, notFound(fmt.Errorf("%w: empty pattern", ErrNotFound))
	}

	if len(frags) == 1 {
		for _, v := range r.Validators {
			if v.Title == frags[0] {
				return v, nil
			}
		}
	}

	var matches []Validator
	for _, v := range r.Validators {
		if containsAll(v.Title, frags) {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Validator{}, notFound(fmt.Errorf("%w: %q (available: %s)", ErrNotFound, frags, strings.Join(r.Titles(), ", ")))
	default:
		titles := make([]string, len(matches))
		for i, m := range matches {
			titles[i] = m.Title
		}
		sort.Strings(titles)
		return Validator{}, notFound(fmt.Errorf("%w: %q matches %s", ErrAmbiguous, frags, strings.Join(titles, ", ")))
	}
}

func containsAll(title string, frags []string) bool {
	for _, f := range frags {
		if !strings.Contains(title, f) {
			return false
		}
	}
	return true
}

// Apply parameterizes the validator. The blueprint's declared parameter
// list fixes the arity.
func (v Validator) Apply(params ...protocol.Data) (protocol.Script, error) {
	if len(params) != len(v.Parameters) {
		return protocol.Script{}, protocol.NewError(protocol.KindParameterApplication, "parameterize",
			fmt.Errorf("%w: %s declares %d, got %d", ErrArity, v.Title, len(v.Parameters), len(params)))
	}
	if len(params) == 0 {
		return v.Script(), nil
	}
	b, err := protocol.ApplyParams(v.CompiledCode, params...)
	if err != nil {
		return protocol.Script{}, err
	}
	return protocol.Script{Language: v.Language, Bytes: b}, nil
}

// Script is the validator as compiled, without parameters applied.
func (v Validator) Script() protocol.Script {
	return protocol.Script{Language: v.Language, Bytes: append([]byte(nil), v.CompiledCode...)}
}

// VerifyHash cross-checks the compiled code against the blueprint's hash.
// The hash describes the unparameterized script, so it only holds for
// validators without parameters.
func (v Validator) VerifyHash() error {
	if len(v.Parameters) != 0 || v.Hash == "" {
		return nil
	}
	want, err := protocol.ParsePolicyIDHex(v.Hash)
	if err != nil {
		return fmt.Errorf("%s: %w", v.Title, err)
	}
	got, err := protocol.PolicyIDForScript(v.Script())
	if err != nil {
		return err
	}
	if got != want {
		return protocol.NewError(protocol.KindHashing, "policy_id", fmt.Errorf("%w: %s has %s, blueprint says %s", ErrHashMismatch, v.Title, got, want))
	}
	return nil
}

func notFound(err error) error {
	return protocol.NewError(protocol.KindValidatorNotFound, stageBlueprint, err)
}
