package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

const (
	EnvSigningKey     = "PLATFORM_SIGNING_KEY"
	EnvSigningKeyFile = "PLATFORM_SIGNING_KEY_FILE"
)

var ErrNoKeySource = errors.New("no signing key source configured")

// Source returns the serialized signing key, in any form ParseKey accepts.
type Source func(ctx context.Context) (string, error)

// FromString is a fixed serialized key.
func FromString(s string) Source {
	return func(context.Context) (string, error) { return s, nil }
}

// FromFile reads a key file, typically a cardano-cli .skey envelope.
func FromFile(path string) Source {
	return func(context.Context) (string, error) {
		path = strings.TrimSpace(path)
		if path == "" {
			return "", errors.New("key file path required")
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// FromEnv reads PLATFORM_SIGNING_KEY, falling back to the file named by
// PLATFORM_SIGNING_KEY_FILE.
func FromEnv() Source {
	return func(ctx context.Context) (string, error) {
		if s := strings.TrimSpace(os.Getenv(EnvSigningKey)); s != "" {
			return s, nil
		}
		if p := strings.TrimSpace(os.Getenv(EnvSigningKeyFile)); p != "" {
			return FromFile(p)(ctx)
		}
		return "", fmt.Errorf("%w: set %s or %s", ErrNoKeySource, EnvSigningKey, EnvSigningKeyFile)
	}
}

// FromSecretManager reads a GCP Secret Manager version, e.g.
// projects/p/secrets/tokenwell-wallet/versions/latest.
func FromSecretManager(name string) Source {
	return func(ctx context.Context) (string, error) {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return "", fmt.Errorf("secretmanager.NewClient: %w", err)
		}
		defer client.Close()

		res, err := client.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return "", fmt.Errorf("access secret version %s: %w", name, err)
		}
		return string(res.GetPayload().GetData()), nil
	}
}

// loadTimeout bounds one key load, which ignores the caller's cancellation.
const loadTimeout = 30 * time.Second

// Wallet is the custodial signing capability. The key is loaded on first
// use and never changes afterwards. A failed load is retried by the next
// caller.
type Wallet struct {
	src Source
	log *zap.Logger

	mu  sync.Mutex
	key *Key
}

func New(src Source, log *zap.Logger) *Wallet {
	if log == nil {
		log = zap.NewNop()
	}
	return &Wallet{src: src, log: log}
}

// Key loads the key on the first successful call. Errors are SigningErrors
// and never include key material.
func (w *Wallet) Key(ctx context.Context) (*Key, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key != nil {
		return w.key, nil
	}
	if w.src == nil {
		return nil, protocol.NewError(protocol.KindSigning, "wallet", ErrNoKeySource)
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()
	s, err := w.src(loadCtx)
	if err != nil {
		w.log.Warn("wallet key load failed", zap.Error(err))
		return nil, protocol.NewError(protocol.KindSigning, "wallet", err)
	}
	k, err := ParseKey(s)
	if err != nil {
		return nil, protocol.NewError(protocol.KindSigning, "wallet", err)
	}
	w.key = k
	w.log.Info("wallet key loaded", zap.String("key_hash", k.KeyHash().Hex()))
	return k, nil
}

// Address is the wallet's enterprise address on n.
func (w *Wallet) Address(ctx context.Context, n cardano.Network) (cardano.Address, error) {
	k, err := w.Key(ctx)
	if err != nil {
		return cardano.Address{}, err
	}
	return k.Address(n)
}

// Sign witnesses tx with the wallet key.
func (w *Wallet) Sign(ctx context.Context, tx *cardano.UnsignedTx) ([]byte, error) {
	k, err := w.Key(ctx)
	if err != nil {
		return nil, err
	}
	signed, err := tx.Sign(k)
	if err != nil {
		return nil, protocol.NewError(protocol.KindSigning, "sign", err)
	}
	return signed, nil
}
