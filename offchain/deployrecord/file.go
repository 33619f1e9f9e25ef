package deployrecord

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

const fileSchemaVersion = 1

// File is the portable form of the store, handed to frontends and other
// deployments that need the policy id without opening Pebble.
type File struct {
	SchemaVersion int      `json:"schema_version"`
	Deployments   []Record `json:"deployments"`
}

func LoadFile(path string) (File, error) {
	var out File
	path = strings.TrimSpace(path)
	if path == "" {
		return File{}, errors.New("path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrap(err, "load deployment file")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return File{}, errors.Wrap(err, "load deployment file")
	}
	if out.SchemaVersion != fileSchemaVersion {
		return File{}, errors.Errorf("deployment file schema %d, want %d", out.SchemaVersion, fileSchemaVersion)
	}
	return out, nil
}

// WriteFile replaces path with recs.
func WriteFile(path string, recs []Record) error {
	raw, err := json.MarshalIndent(File{SchemaVersion: fileSchemaVersion, Deployments: recs}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return errors.Wrap(err, "write deployment file")
	}
	return errors.Wrap(os.Rename(tmp, path), "write deployment file")
}

func (f File) Find(n cardano.Network, operator protocol.Credential) (Record, error) {
	for _, r := range f.Deployments {
		if r.Network == n && r.Operator == operator.Hex() {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s %s", ErrNotFound, n, operator)
}
