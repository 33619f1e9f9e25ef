package cardano

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/Abdullah1738/tokenwell/protocol"
)

type keySigner struct {
	priv ed25519.PrivateKey
}

func newKeySigner(seed byte) keySigner {
	return keySigner{priv: ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))}
}

func (k keySigner) PublicKey() []byte { return k.priv.Public().(ed25519.PublicKey) }

func (k keySigner) KeyHash() protocol.Credential { return protocol.KeyHash(k.PublicKey()) }

func (k keySigner) Sign(msg []byte) ([]byte, error) { return ed25519.Sign(k.priv, msg), nil }

func fillCred(b byte) protocol.Credential {
	var c protocol.Credential
	for i := range c {
		c[i] = b
	}
	return c
}

func txIn(b byte, idx uint32) TxIn {
	var in TxIn
	for i := range in.TxID {
		in.TxID[i] = b
	}
	in.Index = idx
	return in
}

type mintFixture struct {
	builder  *Builder
	spec     MintSpec
	wallet   keySigner
	walletAt Address
}

func newMintFixture(t *testing.T) *mintFixture {
	t.Helper()

	wallet := newKeySigner(0x01)
	walletAt, err := EnterpriseAddress(NetworkPreview, wallet.KeyHash())
	if err != nil {
		t.Fatalf("EnterpriseAddress: %v", err)
	}
	recipient, err := BaseAddress(NetworkPreview, fillCred(0x22), fillCred(0x33))
	if err != nil {
		t.Fatalf("BaseAddress: %v", err)
	}

	compiled := protocol.WrapScript([]byte{0x01, 0x01, 0x00, 0x20, 0x01, 0x01})
	script, err := protocol.ParameterizeMintingPolicy(compiled, protocol.LanguagePlutusV3, wallet.KeyHash())
	if err != nil {
		t.Fatalf("ParameterizeMintingPolicy: %v", err)
	}
	recipientCred, err := recipient.PaymentCredential()
	if err != nil {
		t.Fatalf("PaymentCredential: %v", err)
	}
	red, err := protocol.EncodeMintRedeemer("TestToken", big.NewInt(1000), recipientCred)
	if err != nil {
		t.Fatalf("EncodeMintRedeemer: %v", err)
	}

	var other protocol.PolicyID
	other[0] = 0x77
	tokens := MultiAsset{}
	tokens.Add(other, protocol.AssetName("Other"), 5)

	return &mintFixture{
		builder:  &Builder{Network: NetworkPreview, Params: testParams()},
		wallet:   wallet,
		walletAt: walletAt,
		spec: MintSpec{
			Script:    script,
			TokenName: protocol.AssetName("TestToken"),
			Quantity:  big.NewInt(1000),
			Redeemer:  red,
			ExUnits:   ExUnits{Mem: 1_000_000, Steps: 500_000_000},
			Recipient: recipient,
			Change:    walletAt,
			UTxOs: []UTxO{
				{In: txIn(0xaa, 0), Address: walletAt.String(), Value: Value{Coin: 5_000_000}},
				{In: txIn(0xbb, 1), Address: walletAt.String(), Value: Value{Coin: 20_000_000}},
				{In: txIn(0xcc, 0), Address: walletAt.String(), Value: Value{Coin: 2_000_000, Assets: tokens}},
			},
			RequiredSigners: []protocol.Credential{wallet.KeyHash()},
		},
	}
}

func decodeBody(t *testing.T, b []byte) txBody {
	t.Helper()
	var body txBody
	if err := cbor.Unmarshal(b, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestBuildMint_BalancedAndSigned(t *testing.T) {
	f := newMintFixture(t)
	tx, err := f.builder.BuildMint(f.spec)
	if err != nil {
		t.Fatalf("BuildMint: %v", err)
	}

	policy, err := protocol.PolicyIDForScript(f.spec.Script)
	if err != nil {
		t.Fatalf("PolicyIDForScript: %v", err)
	}
	if tx.PolicyID != policy {
		t.Fatalf("policy=%s want %s", tx.PolicyID, policy)
	}
	if tx.ID != protocol.Blake2b256(tx.Body) {
		t.Fatalf("tx id is not blake2b-256 of the body")
	}

	body := decodeBody(t, tx.Body)

	// Largest-first: the 20 ADA UTxO alone covers the mint.
	if len(body.Inputs) != 1 || !bytes.Equal(body.Inputs[0].TxID, bytes.Repeat([]byte{0xbb}, 32)) || body.Inputs[0].Index != 1 {
		t.Fatalf("inputs=%+v", body.Inputs)
	}
	if body.Fee != tx.Fee {
		t.Fatalf("body fee %d, tx fee %d", body.Fee, tx.Fee)
	}

	if len(body.Outputs) != 2 {
		t.Fatalf("outputs=%d", len(body.Outputs))
	}
	payout, change := body.Outputs[0], body.Outputs[1]
	if !bytes.Equal(payout.Address, f.spec.Recipient.Raw) {
		t.Fatalf("payout address mismatch")
	}
	if got := payout.Value.Assets.Quantity(policy, f.spec.TokenName); got != 1000 {
		t.Fatalf("payout quantity=%d", got)
	}
	payoutSize, _ := outputSize(payout)
	if payout.Value.Coin < f.builder.Params.MinUTxO(payoutSize) {
		t.Fatalf("payout below minimum: %d", payout.Value.Coin)
	}
	if !bytes.Equal(change.Address, f.walletAt.Raw) {
		t.Fatalf("change address mismatch")
	}
	if got, want := payout.Value.Coin+change.Value.Coin+body.Fee, uint64(20_000_000); got != want {
		t.Fatalf("coin not preserved: %d != %d", got, want)
	}

	mint := body.Mint[cbor.ByteString(policy[:])]
	if len(body.Mint) != 1 || mint[cbor.ByteString("TestToken")] != 1000 {
		t.Fatalf("mint=%v", body.Mint)
	}
	walletHash := f.wallet.KeyHash()
	if len(body.RequiredSigners) != 1 || !bytes.Equal(body.RequiredSigners[0], walletHash[:]) {
		t.Fatalf("required signers=%x", body.RequiredSigners)
	}

	if len(body.Collateral) != 1 || !bytes.Equal(body.Collateral[0].TxID, bytes.Repeat([]byte{0xbb}, 32)) {
		t.Fatalf("collateral=%+v", body.Collateral)
	}
	if want := f.builder.Params.Collateral(body.Fee); body.TotalCollateral != want {
		t.Fatalf("total collateral=%d want %d", body.TotalCollateral, want)
	}
	if body.CollateralReturn == nil || body.CollateralReturn.Value.Coin != 20_000_000-body.TotalCollateral {
		t.Fatalf("collateral return=%+v", body.CollateralReturn)
	}

	signed, err := tx.Sign(f.wallet)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if need := f.builder.Params.MinFee(len(signed), f.spec.ExUnits); body.Fee < need {
		t.Fatalf("fee %d below minimum %d for %d bytes", body.Fee, need, len(signed))
	}

	var decoded transaction
	if err := cbor.Unmarshal(signed, &decoded); err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if !bytes.Equal(decoded.Body, tx.Body) || !decoded.Valid || !bytes.Equal(decoded.Auxiliary, cborNull) {
		t.Fatalf("transaction envelope mismatch")
	}
	var ws witnessSet
	if err := cbor.Unmarshal(decoded.Witnesses, &ws); err != nil {
		t.Fatalf("decode witnesses: %v", err)
	}
	if len(ws.VKeys) != 1 || !ed25519.Verify(f.wallet.PublicKey(), tx.ID[:], ws.VKeys[0].Signature) {
		t.Fatalf("vkey witness does not verify")
	}
	if len(ws.PlutusV3Scripts) != 1 || !bytes.Equal(ws.PlutusV3Scripts[0], f.spec.Script.Bytes) {
		t.Fatalf("script witness mismatch")
	}
	sdh, err := scriptDataHash(ws.Redeemers, protocol.LanguagePlutusV3, f.builder.Params.CostModels[protocol.LanguagePlutusV3])
	if err != nil {
		t.Fatalf("scriptDataHash: %v", err)
	}
	if !bytes.Equal(body.ScriptDataHash, sdh[:]) {
		t.Fatalf("script data hash does not cover the witnessed redeemers")
	}

	var reds []redeemer
	if err := cbor.Unmarshal(ws.Redeemers, &reds); err != nil {
		t.Fatalf("decode redeemers: %v", err)
	}
	if len(reds) != 1 || reds[0].Tag != redeemerTagMint || reds[0].Index != 0 || !bytes.Equal(reds[0].Data, f.spec.Redeemer) {
		t.Fatalf("redeemers=%+v", reds)
	}
}

func TestBuildMint_Deterministic(t *testing.T) {
	f := newMintFixture(t)
	a, err := f.builder.BuildMint(f.spec)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	f.spec.UTxOs[0], f.spec.UTxOs[2] = f.spec.UTxOs[2], f.spec.UTxOs[0]
	b, err := f.builder.BuildMint(f.spec)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if !bytes.Equal(a.Body, b.Body) {
		t.Fatalf("UTxO order changed the transaction")
	}
}

func TestBuildMint_ChangeKeepsWalletTokens(t *testing.T) {
	f := newMintFixture(t)
	var other protocol.PolicyID
	other[0] = 0x77
	tokens := MultiAsset{}
	tokens.Add(other, protocol.AssetName("Other"), 5)
	f.spec.UTxOs = []UTxO{
		{In: txIn(0x01, 0), Value: Value{Coin: 1_500_000}},
		{In: txIn(0x02, 0), Value: Value{Coin: 10_000_000, Assets: tokens}},
	}

	tx, err := f.builder.BuildMint(f.spec)
	if err != nil {
		t.Fatalf("BuildMint: %v", err)
	}
	body := decodeBody(t, tx.Body)
	if got := body.Outputs[1].Value.Assets.Quantity(other, protocol.AssetName("Other")); got != 5 {
		t.Fatalf("change lost wallet tokens: %d", got)
	}
	if !bytes.Equal(body.Collateral[0].TxID, bytes.Repeat([]byte{0x01}, 32)) {
		t.Fatalf("collateral must be the pure-ADA UTxO")
	}
}

func TestBuildMint_Errors(t *testing.T) {
	type testCase struct {
		name   string
		mutate func(f *mintFixture)
		want   error
	}

	cases := []testCase{
		{
			name:   "no_utxos",
			mutate: func(f *mintFixture) { f.spec.UTxOs = nil },
			want:   protocol.ErrInsufficientFunds,
		},
		{
			name: "not_enough_lovelace",
			mutate: func(f *mintFixture) {
				f.spec.UTxOs = []UTxO{{In: txIn(0x01, 0), Value: Value{Coin: 1_000_000}}}
			},
			want: protocol.ErrInsufficientFunds,
		},
		{
			name: "no_collateral_candidate",
			mutate: func(f *mintFixture) {
				f.spec.UTxOs = f.spec.UTxOs[2:]
			},
			want: protocol.ErrTransactionBuild,
		},
		{
			name:   "asset_name_too_long",
			mutate: func(f *mintFixture) { f.spec.TokenName = bytes.Repeat([]byte{'x'}, 33) },
			want:   protocol.ErrTransactionBuild,
		},
		{
			name:   "quantity_beyond_int64",
			mutate: func(f *mintFixture) { f.spec.Quantity = new(big.Int).Lsh(big.NewInt(1), 63) },
			want:   protocol.ErrTransactionBuild,
		},
		{
			name:   "zero_quantity",
			mutate: func(f *mintFixture) { f.spec.Quantity = big.NewInt(0) },
			want:   protocol.ErrEncodingRange,
		},
		{
			name:   "missing_cost_model",
			mutate: func(f *mintFixture) { f.builder.Params.CostModels = nil },
			want:   protocol.ErrTransactionBuild,
		},
		{
			name:   "budget_over_limit",
			mutate: func(f *mintFixture) { f.spec.ExUnits.Mem = 20_000_000 },
			want:   protocol.ErrTransactionBuild,
		},
		{
			name: "recipient_on_mainnet",
			mutate: func(f *mintFixture) {
				raw := append([]byte{byte(AddressEnterpriseKey)<<4 | 1}, bytes.Repeat([]byte{0x22}, 28)...)
				f.spec.Recipient = Address{Raw: raw}
			},
			want: protocol.ErrAddressDecode,
		},
		{
			name: "reward_change_address",
			mutate: func(f *mintFixture) {
				raw := append([]byte{byte(AddressRewardKey) << 4}, bytes.Repeat([]byte{0x22}, 28)...)
				f.spec.Change = Address{Raw: raw}
			},
			want: protocol.ErrAddressDecode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newMintFixture(t)
			tc.mutate(f)
			_, err := f.builder.BuildMint(f.spec)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
			if protocol.StageOf(err) != stageAssemble && protocol.StageOf(err) != stageAddress {
				t.Fatalf("stage=%q", protocol.StageOf(err))
			}
		})
	}
}

func TestSign_MissingSigner(t *testing.T) {
	f := newMintFixture(t)
	operator := newKeySigner(0x02)
	f.spec.RequiredSigners = []protocol.Credential{operator.KeyHash()}

	tx, err := f.builder.BuildMint(f.spec)
	if err != nil {
		t.Fatalf("BuildMint: %v", err)
	}
	if len(tx.Signers) != 2 {
		t.Fatalf("signers=%d want wallet and operator", len(tx.Signers))
	}
	if _, err := tx.Sign(f.wallet); !errors.Is(err, ErrMissingSigner) {
		t.Fatalf("err=%v want ErrMissingSigner", err)
	}
	if _, err := tx.Sign(f.wallet, operator); err != nil {
		t.Fatalf("Sign with both keys: %v", err)
	}
}
