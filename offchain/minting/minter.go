package minting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Abdullah1738/tokenwell/offchain/blueprint"
	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

const (
	stageRequest  = "request"
	stageChain    = "chain"
	stageEvaluate = "evaluate"
	stageSign     = "sign"
	stageSubmit   = "submit"

	defaultScriptCacheSize = 16
)

var ErrUnsupportedNetwork = errors.New("network not configured")

// DefaultExUnits is the mint budget used when the chain cannot evaluate
// scripts. The tokenwell policy runs well under it.
var DefaultExUnits = cardano.ExUnits{Mem: 1_000_000, Steps: 500_000_000}

// Chain is the ledger access a Minter needs for one network.
type Chain interface {
	ProtocolParameters(ctx context.Context) (cardano.ProtocolParams, error)
	AddressUTxOs(ctx context.Context, addr string) ([]cardano.UTxO, error)
	SubmitTx(ctx context.Context, tx []byte) (string, error)
}

// Evaluator is implemented by chains that can price a draft transaction's
// scripts.
type Evaluator interface {
	EvaluateTx(ctx context.Context, tx []byte) (cardano.ExUnits, error)
}

// Wallet is the custodial signer. Its key never leaves it.
type Wallet interface {
	Address(ctx context.Context, n cardano.Network) (cardano.Address, error)
	Sign(ctx context.Context, tx *cardano.UnsignedTx) ([]byte, error)
}

type Config struct {
	// Operator is baked into the minting policy and must co-sign every
	// mint.
	Operator  protocol.Credential
	Validator blueprint.Validator
	Chains    map[cardano.Network]Chain

	// ExUnits is the mint budget; zero means DefaultExUnits.
	ExUnits cardano.ExUnits
	// Evaluate re-prices the budget through chains implementing Evaluator.
	Evaluate bool

	ScriptCacheSize int
}

type Minter struct {
	cfg     Config
	wallet  Wallet
	scripts *lru.Cache[protocol.Credential, protocol.Script]
	logger  *zap.Logger
}

func New(cfg Config, w Wallet, logger *zap.Logger) (*Minter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Validator.CompiledCode) == 0 {
		return nil, errors.New("minting validator required")
	}
	if len(cfg.Chains) == 0 {
		return nil, errors.New("at least one chain required")
	}
	if w == nil {
		return nil, errors.New("wallet required")
	}
	if cfg.ExUnits == (cardano.ExUnits{}) {
		cfg.ExUnits = DefaultExUnits
	}
	size := cfg.ScriptCacheSize
	if size <= 0 {
		size = defaultScriptCacheSize
	}
	cache, err := lru.New[protocol.Credential, protocol.Script](size)
	if err != nil {
		return nil, err
	}
	return &Minter{cfg: cfg, wallet: w, scripts: cache, logger: logger}, nil
}

// Operator is the credential the minting policy is parameterized with.
func (m *Minter) Operator() protocol.Credential { return m.cfg.Operator }

// Policy returns the operator's parameterized script and its policy id.
func (m *Minter) Policy() (protocol.Script, protocol.PolicyID, error) {
	return m.PolicyFor(m.cfg.Operator)
}

// PolicyFor parameterizes the validator with operator.
func (m *Minter) PolicyFor(operator protocol.Credential) (protocol.Script, protocol.PolicyID, error) {
	script, ok := m.scripts.Get(operator)
	if !ok {
		var err error
		script, err = m.cfg.Validator.Apply(protocol.Bytes(operator[:]))
		if err != nil {
			return protocol.Script{}, protocol.PolicyID{}, err
		}
		scriptCacheMisses.Inc()
		m.scripts.Add(operator, script)
	}
	id, err := protocol.PolicyIDForScript(script)
	if err != nil {
		return protocol.Script{}, protocol.PolicyID{}, err
	}
	return script, id, nil
}

// EncodeRedeemer encodes the Mint redeemer for a recipient given as a
// bech32 or Byron address string.
func EncodeRedeemer(tokenName string, quantity *big.Int, recipientAddress string) ([]byte, error) {
	addr, err := cardano.ParseAddress(recipientAddress)
	if err != nil {
		return nil, err
	}
	return encodeRedeemer(tokenName, quantity, addr)
}

func encodeRedeemer(tokenName string, quantity *big.Int, recipient cardano.Address) ([]byte, error) {
	cred, err := recipient.PaymentCredential()
	if err != nil {
		return nil, err
	}
	return protocol.EncodeMintRedeemer(tokenName, quantity, cred)
}

type Request struct {
	TokenName        string
	Quantity         *big.Int
	RecipientAddress string
	Network          cardano.Network
}

// Prepared is a priced, unsigned mint.
type Prepared struct {
	Tx       *cardano.UnsignedTx
	Script   protocol.Script
	PolicyID protocol.PolicyID
	Unit     string
	Redeemer []byte
	Wallet   cardano.Address
	// Balance is what the wallet held before the mint.
	Balance cardano.Value
	Request Request
}

type Result struct {
	TxHash      string
	PolicyID    protocol.PolicyID
	Unit        string
	Fee         uint64
	Redeemer    []byte
	ExplorerURL string
}

// Prepare builds the mint transaction for req without signing it.
func (m *Minter) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	chain, ok := m.cfg.Chains[req.Network]
	if !ok {
		return nil, protocol.Errorf(protocol.KindTransactionBuild, stageRequest, "%w: %s", ErrUnsupportedNetwork, req.Network)
	}
	name := protocol.AssetName(req.TokenName)
	if err := name.Validate(); err != nil {
		return nil, protocol.NewError(protocol.KindTransactionBuild, stageRequest, err)
	}
	recipient, err := cardano.ParseAddress(req.RecipientAddress)
	if err != nil {
		return nil, err
	}

	script, policy, err := m.Policy()
	if err != nil {
		return nil, err
	}
	redeemer, err := encodeRedeemer(req.TokenName, req.Quantity, recipient)
	if err != nil {
		return nil, err
	}

	walletAddr, err := m.wallet.Address(ctx, req.Network)
	if err != nil {
		return nil, signingError(err)
	}

	var (
		params cardano.ProtocolParams
		utxos  []cardano.UTxO
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := chain.ProtocolParameters(gctx)
		if err != nil {
			return fmt.Errorf("protocol parameters: %w", err)
		}
		params = p
		return nil
	})
	g.Go(func() error {
		u, err := chain.AddressUTxOs(gctx, walletAddr.String())
		if err != nil {
			return fmt.Errorf("wallet utxos: %w", err)
		}
		utxos = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, protocol.NewError(protocol.KindSubmission, stageChain, err)
	}

	spec := cardano.MintSpec{
		Script:          script,
		TokenName:       name,
		Quantity:        req.Quantity,
		Redeemer:        redeemer,
		ExUnits:         m.cfg.ExUnits,
		Recipient:       recipient,
		Change:          walletAddr,
		UTxOs:           utxos,
		RequiredSigners: []protocol.Credential{m.cfg.Operator},
	}
	b := &cardano.Builder{Network: req.Network, Params: params}
	tx, err := b.BuildMint(spec)
	if err != nil {
		return nil, err
	}

	if ev, ok := chain.(Evaluator); ok && m.cfg.Evaluate {
		draft, err := tx.Draft()
		if err != nil {
			return nil, protocol.NewError(protocol.KindTransactionBuild, stageEvaluate, err)
		}
		ex, err := ev.EvaluateTx(ctx, draft)
		if err != nil {
			return nil, protocol.NewError(protocol.KindSubmission, stageEvaluate, classify(err))
		}
		spec.ExUnits = withMargin(ex)
		if tx, err = b.BuildMint(spec); err != nil {
			return nil, err
		}
	}

	var balance cardano.Value
	for _, u := range utxos {
		balance = balance.Add(u.Value)
	}

	return &Prepared{
		Tx:       tx,
		Script:   script,
		PolicyID: policy,
		Unit:     protocol.Unit(policy, name),
		Redeemer: redeemer,
		Wallet:   walletAddr,
		Balance:  balance,
		Request:  req,
	}, nil
}

// withMargin pads an evaluated budget by 10%; evaluation and the ledger can
// disagree slightly once vkey witnesses are attached.
func withMargin(ex cardano.ExUnits) cardano.ExUnits {
	return cardano.ExUnits{Mem: ex.Mem + ex.Mem/10, Steps: ex.Steps + ex.Steps/10}
}

// Mint builds, signs and submits a mint. Nothing is retried.
func (m *Minter) Mint(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	p, err := m.Prepare(ctx, req)
	if err != nil {
		m.observe(req.Network, start, m.logger.With(zap.String("network", req.Network.String())), err)
		return Result{}, err
	}
	return m.submit(ctx, p, start)
}

// Submit signs and submits a transaction returned by Prepare. The chain is
// not queried again, so the submitted transaction is exactly p.Tx.
func (m *Minter) Submit(ctx context.Context, p *Prepared) (Result, error) {
	if p == nil || p.Tx == nil {
		return Result{}, protocol.Errorf(protocol.KindTransactionBuild, stageRequest, "nothing prepared")
	}
	return m.submit(ctx, p, time.Now())
}

func (m *Minter) submit(ctx context.Context, p *Prepared, start time.Time) (res Result, err error) {
	req := p.Request
	logger := m.logger.With(
		zap.String("network", req.Network.String()),
		zap.String("policy_id", p.PolicyID.Hex()),
		zap.String("tx_hash", p.Tx.Hash()),
	)
	defer func() { m.observe(req.Network, start, logger, err) }()

	chain, ok := m.cfg.Chains[req.Network]
	if !ok {
		return Result{}, protocol.Errorf(protocol.KindTransactionBuild, stageRequest, "%w: %s", ErrUnsupportedNetwork, req.Network)
	}

	signed, err := m.wallet.Sign(ctx, p.Tx)
	if err != nil {
		return Result{}, signingError(err)
	}

	hash, err := chain.SubmitTx(ctx, signed)
	if err != nil {
		return Result{}, protocol.NewError(protocol.KindSubmission, stageSubmit, classify(err))
	}
	if hash == "" {
		hash = p.Tx.Hash()
	} else if hash != p.Tx.Hash() {
		logger.Warn("node returned a different transaction hash", zap.String("node_tx_hash", hash))
	}

	quantity := ""
	if req.Quantity != nil {
		quantity = req.Quantity.String()
	}
	txFeeLovelace.Observe(float64(p.Tx.Fee))
	logger.Info(
		"mint submitted",
		zap.String("unit", p.Unit),
		zap.String("quantity", quantity),
		zap.Uint64("fee", p.Tx.Fee),
	)

	return Result{
		TxHash:      hash,
		PolicyID:    p.PolicyID,
		Unit:        p.Unit,
		Fee:         p.Tx.Fee,
		Redeemer:    p.Redeemer,
		ExplorerURL: cardano.ExplorerTxURL(req.Network, hash),
	}, nil
}

func (m *Minter) observe(n cardano.Network, start time.Time, logger *zap.Logger, err error) {
	outcome := "submitted"
	if err != nil {
		outcome = protocol.KindOf(err).String()
		logger.Warn("mint failed", zap.String("stage", protocol.StageOf(err)), zap.Error(err))
	}
	mintRequestsTotal.WithLabelValues(n.String(), outcome).Inc()
	mintDuration.Observe(time.Since(start).Seconds())
}

func signingError(err error) error {
	if protocol.KindOf(err) == protocol.KindSigning {
		return err
	}
	return protocol.NewError(protocol.KindSigning, stageSign, err)
}
