package cardano

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/Abdullah1738/tokenwell/protocol"
)

const (
	stageAssemble    = "assemble"
	maxFeeIterations = 8
)

var (
	ErrNoCollateral    = errors.New("no pure-ADA UTxO available as collateral")
	ErrValueMismatch   = errors.New("transaction does not preserve value")
	ErrFeeNotConverged = errors.New("fee did not converge")
)

// Builder assembles transactions against one network's parameters.
type Builder struct {
	Network Network
	Params  ProtocolParams
}

// MintSpec describes a single-asset mint paid out to one recipient.
type MintSpec struct {
	Script    protocol.Script
	TokenName protocol.AssetName
	Quantity  *big.Int
	// Redeemer is the CBOR Plutus Data passed to the policy.
	Redeemer []byte
	ExUnits  ExUnits

	Recipient Address
	// Change receives leftover funds and the collateral return. The
	// wallet's UTxOs must all sit at this address.
	Change Address
	UTxOs  []UTxO

	RequiredSigners []protocol.Credential
}

// BuildMint balances and prices a mint of spec.Quantity units of
// policy(spec.Script) || spec.TokenName paid to spec.Recipient.
func (b *Builder) BuildMint(spec MintSpec) (*UnsignedTx, error) {
	if err := spec.TokenName.Validate(); err != nil {
		return nil, buildError(err)
	}
	if spec.Quantity == nil || spec.Quantity.Sign() <= 0 {
		return nil, protocol.Errorf(protocol.KindEncodingRange, stageAssemble, "mint quantity must be positive, got %v", spec.Quantity)
	}
	if !spec.Quantity.IsInt64() {
		return nil, buildErrorf("mint quantity %s exceeds %d", spec.Quantity, int64(math.MaxInt64))
	}
	if len(spec.Redeemer) == 0 {
		return nil, buildErrorf("missing redeemer")
	}
	ex := spec.ExUnits
	if ex.Mem == 0 || ex.Steps == 0 {
		return nil, buildErrorf("missing execution units")
	}
	if lim := b.Params.MaxTxExUnits; (lim.Mem != 0 && ex.Mem > lim.Mem) || (lim.Steps != 0 && ex.Steps > lim.Steps) {
		return nil, buildErrorf("execution units %d/%d exceed the per-transaction limit %d/%d", ex.Mem, ex.Steps, lim.Mem, lim.Steps)
	}

	policy, err := protocol.PolicyIDForScript(spec.Script)
	if err != nil {
		return nil, err
	}
	lang := spec.Script.Language
	if _, ok := languageViewKey(lang); !ok {
		return nil, buildErrorf("unsupported script language %s", lang)
	}
	costs := b.Params.CostModels[lang]
	if len(costs) == 0 {
		return nil, buildErrorf("protocol parameters carry no %s cost model", lang)
	}

	if !spec.Recipient.IsByron() && spec.Recipient.NetworkID() != b.Network.ID() {
		return nil, protocol.NewError(protocol.KindAddressDecode, stageAssemble, fmt.Errorf("%w: recipient network id %d", ErrAddressNetwork, spec.Recipient.NetworkID()))
	}
	changeCred, err := spec.Change.PaymentCredential()
	if err != nil {
		return nil, err
	}
	if spec.Change.IsScriptPayment() {
		return nil, buildErrorf("change address %s is not a key address", spec.Change)
	}

	redeemers, err := encMode.Marshal([]redeemer{{
		Tag:     redeemerTagMint,
		Index:   0,
		Data:    cbor.RawMessage(spec.Redeemer),
		ExUnits: exUnits{Mem: ex.Mem, Steps: ex.Steps},
	}})
	if err != nil {
		return nil, buildError(err)
	}
	sdh, err := scriptDataHash(redeemers, lang, costs)
	if err != nil {
		return nil, buildError(err)
	}

	qty := spec.Quantity.Int64()
	minted := MultiAsset{}
	minted.Add(policy, spec.TokenName, uint64(qty))
	payout, err := b.minAdaOutput(spec.Recipient.Raw, Value{Assets: minted})
	if err != nil {
		return nil, buildError(err)
	}

	if len(spec.UTxOs) == 0 {
		return nil, protocol.Errorf(protocol.KindInsufficientFunds, stageAssemble, "wallet %s has no UTxOs", spec.Change)
	}
	utxos := largestFirst(spec.UTxOs)
	collateral, ok := pickCollateral(utxos)
	if !ok {
		return nil, buildError(ErrNoCollateral)
	}

	d := &mintDraft{
		b:          b,
		spec:       spec,
		policy:     policy,
		qty:        qty,
		payout:     payout,
		utxos:      utxos,
		collateral: collateral,
		sdh:        sdh,
		tx: &UnsignedTx{
			PolicyID:  policy,
			ExUnits:   ex,
			Signers:   dedupeCredentials(append([]protocol.Credential{changeCred}, spec.RequiredSigners...)),
			script:    spec.Script,
			redeemers: redeemers,
		},
	}

	var fee uint64
	for i := 0; i < maxFeeIterations; i++ {
		size, err := d.build(fee)
		if err != nil {
			return nil, err
		}
		if b.Params.MaxTxSize != 0 && uint64(size) > b.Params.MaxTxSize {
			return nil, buildErrorf("transaction size %d exceeds %d", size, b.Params.MaxTxSize)
		}
		need := b.Params.MinFee(size, ex)
		if need <= fee {
			return d.tx, nil
		}
		fee = need
	}
	return nil, buildError(ErrFeeNotConverged)
}

type mintDraft struct {
	b          *Builder
	spec       MintSpec
	policy     protocol.PolicyID
	qty        int64
	payout     txOutput
	utxos      []UTxO
	collateral UTxO
	sdh        [32]byte
	tx         *UnsignedTx
}

// build selects inputs for fee, fills d.tx and returns the signed size.
func (d *mintDraft) build(fee uint64) (int, error) {
	params := d.b.Params
	changeRaw := d.spec.Change.Raw

	var (
		selected []UTxO
		total    Value
		change   txOutput
		enough   bool
	)
	for _, u := range d.utxos {
		selected = append(selected, u)
		total = total.Add(u.Value)

		spend := d.payout.Value.Coin + fee
		if total.Coin < spend {
			continue
		}
		change = txOutput{Address: changeRaw, Value: Value{Coin: total.Coin - spend, Assets: total.Assets}}
		size, err := outputSize(change)
		if err != nil {
			return 0, buildError(err)
		}
		if change.Value.Coin >= params.MinUTxO(size) {
			enough = true
			break
		}
	}
	if !enough {
		return 0, protocol.Errorf(protocol.KindInsufficientFunds, stageAssemble,
			"wallet holds %d lovelace across %d UTxOs, mint needs %d plus fee %d and change",
			total.Coin, len(d.utxos), d.payout.Value.Coin, fee)
	}

	inputs := make([]TxIn, len(selected))
	for i, u := range selected {
		inputs[i] = u.In
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].less(inputs[j]) })

	totalCollateral := params.Collateral(fee)
	if d.collateral.Value.Coin < totalCollateral {
		return 0, buildErrorf("collateral %s holds %d lovelace, need %d", d.collateral.In, d.collateral.Value.Coin, totalCollateral)
	}
	var collReturn *txOutput
	ret := txOutput{Address: changeRaw, Value: Value{Coin: d.collateral.Value.Coin - totalCollateral}}
	retSize, err := outputSize(ret)
	if err != nil {
		return 0, buildError(err)
	}
	if ret.Value.Coin >= params.MinUTxO(retSize) {
		collReturn = &ret
	} else {
		totalCollateral = d.collateral.Value.Coin
	}

	body := txBody{
		Inputs:  toTxInputs(inputs),
		Outputs: []txOutput{d.payout, change},
		Fee:     fee,
		Mint: map[cbor.ByteString]map[cbor.ByteString]int64{
			cbor.ByteString(d.policy[:]): {cbor.ByteString(d.spec.TokenName): d.qty},
		},
		ScriptDataHash:   d.sdh[:],
		Collateral:       toTxInputs([]TxIn{d.collateral.In}),
		RequiredSigners:  credentialBytes(d.spec.RequiredSigners),
		CollateralReturn: collReturn,
		TotalCollateral:  totalCollateral,
	}
	if err := checkBalance(total, d.policy, d.spec.TokenName, d.qty, body); err != nil {
		return 0, buildError(err)
	}

	bb, err := encMode.Marshal(body)
	if err != nil {
		return 0, buildError(err)
	}
	d.tx.Body = bb
	d.tx.ID = TxID(bb)
	d.tx.Fee = fee
	d.tx.Inputs = inputs
	d.tx.Collateral = d.collateral.In

	full, err := d.tx.assemble(d.tx.dummyWitnesses())
	if err != nil {
		return 0, buildError(err)
	}
	return len(full), nil
}

// minAdaOutput gives assets at addr the least coin the ledger accepts.
func (b *Builder) minAdaOutput(addr []byte, v Value) (txOutput, error) {
	out := txOutput{Address: addr, Value: v}
	for i := 0; i < maxFeeIterations; i++ {
		size, err := outputSize(out)
		if err != nil {
			return txOutput{}, err
		}
		need := b.Params.MinUTxO(size)
		if need <= out.Value.Coin {
			return out, nil
		}
		out.Value.Coin = need
	}
	return txOutput{}, errors.New("minimum output value did not converge")
}

func outputSize(o txOutput) (int, error) {
	b, err := encMode.Marshal(o)
	return len(b), err
}

// checkBalance verifies inputs + mint == outputs + fee for coin and for
// every asset.
func checkBalance(in Value, policy protocol.PolicyID, name protocol.AssetName, qty int64, body txBody) error {
	consumed := in.Add(Value{Assets: MultiAsset{policy: {string(name): uint64(qty)}}})
	produced := Value{Coin: body.Fee}
	for _, o := range body.Outputs {
		produced = produced.Add(o.Value)
	}
	if !consumed.Equal(produced) {
		return fmt.Errorf("%w: consumed %s, produced %s", ErrValueMismatch, consumed, produced)
	}
	return nil
}

func largestFirst(utxos []UTxO) []UTxO {
	out := append([]UTxO(nil), utxos...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value.Coin != out[j].Value.Coin {
			return out[i].Value.Coin > out[j].Value.Coin
		}
		return out[i].In.less(out[j].In)
	})
	return out
}

// pickCollateral takes the largest UTxO holding only lovelace.
func pickCollateral(sorted []UTxO) (UTxO, bool) {
	for _, u := range sorted {
		if !u.Value.HasAssets() {
			return u, true
		}
	}
	return UTxO{}, false
}

func toTxInputs(ins []TxIn) []txInput {
	out := make([]txInput, len(ins))
	for i, in := range ins {
		id := in.TxID
		out[i] = txInput{TxID: id[:], Index: in.Index}
	}
	return out
}

func credentialBytes(creds []protocol.Credential) [][]byte {
	if len(creds) == 0 {
		return nil
	}
	out := make([][]byte, len(creds))
	for i := range creds {
		c := creds[i]
		out[i] = c[:]
	}
	return out
}

func dedupeCredentials(creds []protocol.Credential) []protocol.Credential {
	seen := make(map[protocol.Credential]bool, len(creds))
	out := make([]protocol.Credential, 0, len(creds))
	for _, c := range creds {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func buildError(err error) error {
	return protocol.NewError(protocol.KindTransactionBuild, stageAssemble, err)
}

func buildErrorf(format string, args ...any) error {
	return protocol.Errorf(protocol.KindTransactionBuild, stageAssemble, format, args...)
}
