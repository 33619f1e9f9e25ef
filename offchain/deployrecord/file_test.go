package deployrecord

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
)

func TestFile_WriteLoadFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy-config.json")
	preview := testRecord(t, cardano.NetworkPreview, operator(0x11))
	preprod := testRecord(t, cardano.NetworkPreprod, operator(0x11))
	require.NoError(t, WriteFile(path, []Record{preview, preprod}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"network": "Preprod"`)
	assert.Contains(t, string(raw), `"policy_id": "`+preview.PolicyID+`"`)

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Deployments, 2)

	got, err := f.Find(cardano.NetworkPreprod, operator(0x11))
	require.NoError(t, err)
	assert.Equal(t, preprod, got)
	require.NoError(t, got.Validate())

	_, err = f.Find(cardano.NetworkPreview, operator(0x22))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFile_Rejects(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile("")
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"schema_version": 2, "deployments": []}`), 0o600))
	_, err = LoadFile(future)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema 2")
}
