package deployrecord

import (
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

// (program 1.1.0 (lam x x)) wrapped once in CBOR.
var identityCode = []byte{0x46, 0x01, 0x01, 0x00, 0x20, 0x01, 0x01}

func operator(b byte) protocol.Credential {
	var c protocol.Credential
	for i := range c {
		c[i] = b
	}
	return c
}

func testRecord(t *testing.T, n cardano.Network, op protocol.Credential) Record {
	t.Helper()
	script, err := protocol.ParameterizeMintingPolicy(identityCode, protocol.LanguagePlutusV3, op)
	require.NoError(t, err)
	addr, err := cardano.EnterpriseAddress(n, op)
	require.NoError(t, err)
	rec, err := NewRecord(n, op, addr.String(), "tokenwell.tokenwell.mint", "", script, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	return rec
}

func openMem(t *testing.T, logger *zap.Logger) *Store {
	t.Helper()
	s, err := OpenFS(vfs.NewMem(), "deployments", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := openMem(t, zap.New(core))

	rec := testRecord(t, cardano.NetworkPreview, operator(0x11))
	require.NoError(t, s.Put(rec))

	got, err := s.Get(cardano.NetworkPreview, operator(0x11))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, "PlutusV3", got.Language)

	script, err := got.Script()
	require.NoError(t, err)
	id, err := protocol.PolicyIDForScript(script)
	require.NoError(t, err)
	assert.Equal(t, rec.PolicyID, id.Hex())

	byPolicy, err := s.ByPolicy(id)
	require.NoError(t, err)
	assert.Equal(t, []Record{rec}, byPolicy)

	_, err = s.Get(cardano.NetworkPreprod, operator(0x11))
	assert.True(t, errors.Is(err, ErrNotFound))

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "deployment recorded", logs.All()[0].Message)
	assert.Equal(t, rec.PolicyID, logs.All()[0].ContextMap()["policy_id"])
}

func TestStore_ReplaceDropsOldPolicyIndex(t *testing.T) {
	s := openMem(t, nil)

	first := testRecord(t, cardano.NetworkPreview, operator(0x11))
	require.NoError(t, s.Put(first))

	// A different validator under the same operator.
	other, err := protocol.ParameterizeMintingPolicy(identityCode, protocol.LanguagePlutusV2, operator(0x11))
	require.NoError(t, err)
	second, err := NewRecord(cardano.NetworkPreview, operator(0x11), "", "tokenwell.tokenwell.mint", "", other, time.Unix(1_700_000_100, 0))
	require.NoError(t, err)
	require.NotEqual(t, first.PolicyID, second.PolicyID)
	require.NoError(t, s.Put(second))

	got, err := s.Get(cardano.NetworkPreview, operator(0x11))
	require.NoError(t, err)
	assert.Equal(t, second.PolicyID, got.PolicyID)

	oldID, err := protocol.ParsePolicyIDHex(first.PolicyID)
	require.NoError(t, err)
	_, err = s.ByPolicy(oldID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_PolicyIndexIsPerNetwork(t *testing.T) {
	s := openMem(t, nil)

	preview := testRecord(t, cardano.NetworkPreview, operator(0x11))
	preprod := testRecord(t, cardano.NetworkPreprod, operator(0x11))
	require.Equal(t, preview.PolicyID, preprod.PolicyID)
	require.NoError(t, s.Put(preview))
	require.NoError(t, s.Put(preprod))

	id, err := protocol.ParsePolicyIDHex(preview.PolicyID)
	require.NoError(t, err)
	both, err := s.ByPolicy(id)
	require.NoError(t, err)
	assert.Equal(t, []Record{preview, preprod}, both)

	// Re-provision Preview with another validator; Preprod keeps the old policy.
	other, err := protocol.ParameterizeMintingPolicy(identityCode, protocol.LanguagePlutusV2, operator(0x11))
	require.NoError(t, err)
	moved, err := NewRecord(cardano.NetworkPreview, operator(0x11), "", "tokenwell.tokenwell.mint", "", other, time.Unix(1_700_000_100, 0))
	require.NoError(t, err)
	require.NoError(t, s.Put(moved))

	left, err := s.ByPolicy(id)
	require.NoError(t, err)
	assert.Equal(t, []Record{preprod}, left)

	movedID, err := protocol.ParsePolicyIDHex(moved.PolicyID)
	require.NoError(t, err)
	got, err := s.ByPolicy(movedID)
	require.NoError(t, err)
	assert.Equal(t, []Record{moved}, got)
}

func TestStore_List(t *testing.T) {
	s := openMem(t, nil)
	for _, b := range []byte{0x33, 0x11, 0x22} {
		require.NoError(t, s.Put(testRecord(t, cardano.NetworkPreview, operator(b))))
	}
	require.NoError(t, s.Put(testRecord(t, cardano.NetworkPreprod, operator(0x44))))

	preview, err := s.List(cardano.NetworkPreview)
	require.NoError(t, err)
	require.Len(t, preview, 3)
	assert.Equal(t, operator(0x11).Hex(), preview[0].Operator)
	assert.Equal(t, operator(0x33).Hex(), preview[2].Operator)

	preprod, err := s.List(cardano.NetworkPreprod)
	require.NoError(t, err)
	require.Len(t, preprod, 1)
}

func TestRecord_Validate(t *testing.T) {
	rec := testRecord(t, cardano.NetworkPreview, operator(0x11))
	require.NoError(t, rec.Validate())

	tampered := rec
	tampered.PolicyID = operator(0x99).Hex()
	assert.True(t, errors.Is(tampered.Validate(), ErrInconsistent))

	missing := rec
	missing.AppliedScript = ""
	assert.True(t, errors.Is(missing.Validate(), ErrMissingFields))

	s := openMem(t, nil)
	assert.Error(t, s.Put(tampered))
}
