package deployrecord

import (
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

var (
	ErrNotFound      = errors.New("deployment record not found")
	ErrInconsistent  = errors.New("deployment record is inconsistent")
	ErrMissingFields = errors.New("deployment record is missing fields")
)

const (
	recordByOperator byte = 0x01
	recordByPolicy   byte = 0x02
)

// Record is what provisioning learned about one parameterization of the
// minting validator.
type Record struct {
	Network         cardano.Network `json:"network"`
	Operator        string          `json:"operator_pkh"`
	OperatorAddress string          `json:"operator_address,omitempty"`
	PolicyID        string          `json:"policy_id"`
	ValidatorTitle  string          `json:"validator_title"`
	ValidatorHash   string          `json:"validator_hash,omitempty"`
	Language        string          `json:"plutus_version"`
	AppliedScript   string          `json:"applied_script"`
	CompiledAt      time.Time       `json:"compiled_at"`
}

// NewRecord describes script as the operator's parameterization of the
// validator titled title.
func NewRecord(n cardano.Network, operator protocol.Credential, operatorAddress, title, validatorHash string, script protocol.Script, at time.Time) (Record, error) {
	id, err := protocol.PolicyIDForScript(script)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Network:         n,
		Operator:        operator.Hex(),
		OperatorAddress: operatorAddress,
		PolicyID:        id.Hex(),
		ValidatorTitle:  title,
		ValidatorHash:   validatorHash,
		Language:        script.Language.String(),
		AppliedScript:   hex.EncodeToString(script.Bytes),
		CompiledAt:      at.UTC(),
	}, nil
}

// Script decodes the stored parameterized script.
func (r Record) Script() (protocol.Script, error) {
	lang, err := protocol.ParseLanguage(r.Language)
	if err != nil {
		return protocol.Script{}, err
	}
	b, err := hex.DecodeString(r.AppliedScript)
	if err != nil {
		return protocol.Script{}, errors.Wrap(err, "applied script")
	}
	return protocol.Script{Language: lang, Bytes: b}, nil
}

// Validate checks the record is complete and that its policy id is the
// hash of its applied script.
func (r Record) Validate() error {
	if !r.Network.Valid() || r.Operator == "" || r.PolicyID == "" || r.AppliedScript == "" {
		return ErrMissingFields
	}
	if _, err := protocol.ParseCredentialHex(r.Operator); err != nil {
		return errors.Wrap(err, "operator")
	}
	want, err := protocol.ParsePolicyIDHex(r.PolicyID)
	if err != nil {
		return errors.Wrap(err, "policy id")
	}
	s, err := r.Script()
	if err != nil {
		return err
	}
	got, err := protocol.PolicyIDForScript(s)
	if err != nil {
		return err
	}
	if got != want {
		return errors.Wrapf(ErrInconsistent, "script hashes to %s, record says %s", got, want)
	}
	return nil
}

// Store keeps the latest record per (network, operator) in Pebble, with a
// policy id index.
type Store struct {
	db     *pebble.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	return open(path, &pebble.Options{}, logger)
}

// OpenFS opens the store on an explicit filesystem, e.g. vfs.NewMem().
func OpenFS(fs vfs.FS, path string, logger *zap.Logger) (*Store, error) {
	return open(path, &pebble.Options{FS: fs}, logger)
}

func open(path string, opts *pebble.Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store path required")
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "open deployment store")
	}
	logger.Debug("deployment store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func operatorKey(n cardano.Network, operator protocol.Credential) []byte {
	key := []byte{recordByOperator, byte(n)}
	return append(key, operator[:]...)
}

// Policy ids do not depend on the network, so the index carries the
// network too.
func policyKey(id protocol.PolicyID, n cardano.Network) []byte {
	key := append([]byte{recordByPolicy}, id[:]...)
	return append(key, byte(n))
}

// Put stores rec, replacing the operator's previous record on the same
// network.
func (s *Store) Put(rec Record) error {
	if err := rec.Validate(); err != nil {
		return errors.Wrap(err, "put record")
	}
	operator, _ := protocol.ParseCredentialHex(rec.Operator)
	policy, _ := protocol.ParsePolicyIDHex(rec.PolicyID)

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "put record")
	}

	key := operatorKey(rec.Network, operator)
	b := s.db.NewBatch()
	defer b.Close()

	if prev, err := s.get(key); err == nil && prev.PolicyID != rec.PolicyID {
		oldPolicy, _ := protocol.ParsePolicyIDHex(prev.PolicyID)
		if err := b.Delete(policyKey(oldPolicy, rec.Network), nil); err != nil {
			return errors.Wrap(err, "put record")
		}
	}
	if err := b.Set(key, data, nil); err != nil {
		return errors.Wrap(err, "put record")
	}
	if err := b.Set(policyKey(policy, rec.Network), key, nil); err != nil {
		return errors.Wrap(err, "put record")
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "put record")
	}

	s.logger.Info(
		"deployment recorded",
		zap.String("network", rec.Network.String()),
		zap.String("operator", rec.Operator),
		zap.String("policy_id", rec.PolicyID),
	)
	return nil
}

// Get returns the operator's record on n.
func (s *Store) Get(n cardano.Network, operator protocol.Credential) (Record, error) {
	rec, err := s.get(operatorKey(n, operator))
	if err != nil {
		return Record{}, errors.Wrap(err, "get record")
	}
	return rec, nil
}

// ByPolicy returns every record whose applied script hashes to id, one per
// network it was recorded on.
func (s *Store) ByPolicy(id protocol.PolicyID) ([]Record, error) {
	lower := append([]byte{recordByPolicy}, id[:]...)
	upper := append(slices.Clone(lower), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "get record by policy")
	}
	defer iter.Close()

	var out []Record
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := s.get(slices.Clone(iter.Value()))
		if err != nil {
			return nil, errors.Wrapf(err, "get record by policy: key %x", iter.Key())
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "get record by policy")
	}
	if len(out) == 0 {
		return nil, errors.Wrap(ErrNotFound, "get record by policy")
	}
	return out, nil
}

// List returns every record on n, ordered by operator.
func (s *Store) List(n cardano.Network) ([]Record, error) {
	lower := []byte{recordByOperator, byte(n)}
	upper := []byte{recordByOperator, byte(n) + 1}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	defer iter.Close()

	var out []Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, errors.Wrapf(err, "list records: key %x", iter.Key())
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	return out, nil
}

func (s *Store) get(key []byte) (Record, error) {
	data, err := s.value(key)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) value(key []byte) ([]byte, error) {
	data, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	copied := slices.Clone(data)
	closer.Close()
	return copied, nil
}
