package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

func TestWallet_LoadsOnce(t *testing.T) {
	calls := 0
	src := func(context.Context) (string, error) {
		calls++
		return hex.EncodeToString(testSeed()), nil
	}
	w := New(src, nil)
	for i := 0; i < 3; i++ {
		if _, err := w.Key(context.Background()); err != nil {
			t.Fatalf("Key: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("source called %d times", calls)
	}

	addr, err := w.Address(context.Background(), cardano.NetworkPreprod)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	k, _ := NewKeyFromSeed(testSeed())
	want, _ := k.Address(cardano.NetworkPreprod)
	if addr.String() != want.String() {
		t.Fatalf("address=%s want %s", addr, want)
	}
}

func TestWallet_FailuresAreSigningErrors(t *testing.T) {
	type testCase struct {
		name string
		src  Source
	}
	cases := []testCase{
		{name: "nil_source", src: nil},
		{name: "source_error", src: func(context.Context) (string, error) { return "", errors.New("vault sealed") }},
		{name: "garbage", src: FromString("not a key")},
		{name: "missing_file", src: FromFile(filepath.Join(t.TempDir(), "missing.skey"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := New(tc.src, nil)
			_, err := w.Key(context.Background())
			if !errors.Is(err, protocol.ErrSigning) {
				t.Fatalf("err=%v want signing error", err)
			}
			if _, again := w.Key(context.Background()); !errors.Is(again, protocol.ErrSigning) {
				t.Fatalf("second load: err=%v want signing error", again)
			}
		})
	}
}

func TestWallet_RetriesAfterFailedLoad(t *testing.T) {
	calls := 0
	src := func(ctx context.Context) (string, error) {
		calls++
		if err := ctx.Err(); err != nil {
			t.Fatalf("load ran under a cancelled context: %v", err)
		}
		if calls == 1 {
			return "", errors.New("secret manager unavailable")
		}
		return hex.EncodeToString(testSeed()), nil
	}
	w := New(src, nil)

	if _, err := w.Key(context.Background()); !errors.Is(err, protocol.ErrSigning) {
		t.Fatalf("first load: err=%v want signing error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	k, err := w.Key(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	want, _ := NewKeyFromSeed(testSeed())
	if k.KeyHash() != want.KeyHash() {
		t.Fatalf("key mismatch")
	}

	if _, err := w.Key(context.Background()); err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if calls != 2 {
		t.Fatalf("source called %d times, want 2", calls)
	}
}

func TestFromEnv(t *testing.T) {
	seed := testSeed()
	path := filepath.Join(t.TempDir(), "payment.skey")
	envelope := fmt.Sprintf(`{"type":"PaymentSigningKeyShelley_ed25519","description":"","cborHex":"5820%x"}`, seed)
	if err := os.WriteFile(path, []byte(envelope), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	want, _ := NewKeyFromSeed(seed)

	t.Setenv(EnvSigningKey, "")
	t.Setenv(EnvSigningKeyFile, "")
	if _, err := FromEnv()(context.Background()); !errors.Is(err, ErrNoKeySource) {
		t.Fatalf("err=%v want ErrNoKeySource", err)
	}

	t.Setenv(EnvSigningKeyFile, path)
	k, err := New(FromEnv(), nil).Key(context.Background())
	if err != nil {
		t.Fatalf("Key from file: %v", err)
	}
	if k.KeyHash() != want.KeyHash() {
		t.Fatalf("file key mismatch")
	}

	other := make([]byte, 32)
	other[0] = 9
	t.Setenv(EnvSigningKey, hex.EncodeToString(other))
	k, err = New(FromEnv(), nil).Key(context.Background())
	if err != nil {
		t.Fatalf("Key from env: %v", err)
	}
	if k.KeyHash() == want.KeyHash() {
		t.Fatalf("%s should take precedence over %s", EnvSigningKey, EnvSigningKeyFile)
	}
}
