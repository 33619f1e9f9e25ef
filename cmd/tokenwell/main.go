package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdullah1738/tokenwell/internal/config"
	"github.com/Abdullah1738/tokenwell/offchain/blockfrost"
	"github.com/Abdullah1738/tokenwell/offchain/blueprint"
	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/offchain/deployrecord"
	"github.com/Abdullah1738/tokenwell/offchain/minting"
	"github.com/Abdullah1738/tokenwell/offchain/wallet"
	"github.com/Abdullah1738/tokenwell/protocol"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(os.Stdout)
		return nil
	}

	switch argv[0] {
	case "pkh":
		return cmdPKH(argv[1:], os.Stdout)
	case "redeemer":
		return cmdRedeemer(argv[1:], os.Stdout)
	case "policy-id":
		return cmdPolicyID(argv[1:], os.Stdout)
	case "deployment":
		return cmdDeployment(argv[1:], os.Stdout)
	case "mint":
		return cmdMint(argv[1:], os.Stdout)
	case "serve":
		return cmdServe(argv[1:])
	default:
		return fmt.Errorf("unknown command: %s", argv[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "tokenwell: parameterized minting policy service")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tokenwell pkh --address <addr>")
	fmt.Fprintln(w, "  tokenwell redeemer --token-name <name> --quantity <n> --recipient <addr>")
	fmt.Fprintln(w, "  tokenwell policy-id [--config <file>] [--operator <pkh>] [--network Preview|Preprod] [--out <file>]")
	fmt.Fprintln(w, "  tokenwell deployment (--policy <id> [--store <dir>] | --file <file> --network Preview|Preprod --operator <pkh>)")
	fmt.Fprintln(w, "  tokenwell mint [--config <file>] --token-name <name> --quantity <n> --recipient <addr> [--network Preview|Preprod] [--dry-run]")
	fmt.Fprintln(w, "  tokenwell serve [--config <file>] [--listen <addr>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  pkh        Print the payment key hash of an address.")
	fmt.Fprintln(w, "  redeemer   Print the Mint redeemer as CBOR hex.")
	fmt.Fprintln(w, "  policy-id  Apply the operator to the minting validator, print the policy id and record the deployment.")
	fmt.Fprintln(w, "  deployment Look up recorded deployments by policy id or in a deployment file.")
	fmt.Fprintln(w, "  mint       Build, sign and submit one mint.")
	fmt.Fprintln(w, "  serve      Serve POST /api/mint and /metrics.")
}

func cmdPKH(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("pkh", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var address string
	fs.StringVar(&address, "address", "", "Shelley or Byron address")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if address == "" && fs.NArg() == 1 {
		address = fs.Arg(0)
	}
	if address == "" {
		return errors.New("--address is required")
	}

	cred, err := cardano.PaymentCredentialOf(address)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, cred.Hex())
	return nil
}

func cmdRedeemer(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("redeemer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		tokenName string
		quantity  string
		recipient string
	)
	fs.StringVar(&tokenName, "token-name", "", "Asset name (UTF-8)")
	fs.StringVar(&quantity, "quantity", "", "Quantity to mint (decimal)")
	fs.StringVar(&recipient, "recipient", "", "Recipient address")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if recipient == "" || quantity == "" {
		return errors.New("--quantity and --recipient are required")
	}

	q, err := parseQuantity(quantity)
	if err != nil {
		return err
	}
	b, err := minting.EncodeRedeemer(tokenName, q, recipient)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hex.EncodeToString(b))
	return nil
}

type policyOutput struct {
	Network        string `json:"network"`
	Operator       string `json:"operatorPkh"`
	ValidatorTitle string `json:"validatorTitle"`
	PolicyID       string `json:"policyId"`
	Language       string `json:"plutusVersion"`
	Recorded       bool   `json:"recorded"`
}

func cmdPolicyID(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("policy-id", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		operator   string
		network    string
		outPath    string
		noRecord   bool
	)
	fs.StringVar(&configPath, "config", "", "Config file (YAML)")
	fs.StringVar(&operator, "operator", "", "Operator payment key hash (overrides config)")
	fs.StringVar(&outPath, "out", "", "Also write the recorded deployments to this JSON file")
	fs.StringVar(&network, "network", "Preview", "Network the deployment is recorded under")
	fs.BoolVar(&noRecord, "no-record", false, "Do not persist the deployment record")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	n, err := cardano.ParseNetwork(network)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath, config.WithOperatorPKH(operator))
	if err != nil {
		return err
	}
	logger, closer, err := cfg.CreateLogger()
	if err != nil {
		return err
	}
	defer closer.Close()
	defer logger.Sync()

	op, err := cfg.Operator.Credential()
	if err != nil {
		return err
	}
	v, err := loadValidator(cfg)
	if err != nil {
		return err
	}
	script, err := v.Apply(protocol.Bytes(op[:]))
	if err != nil {
		return err
	}
	id, err := protocol.PolicyIDForScript(script)
	if err != nil {
		return err
	}

	res := policyOutput{
		Network:        n.String(),
		Operator:       op.Hex(),
		ValidatorTitle: v.Title,
		PolicyID:       id.Hex(),
		Language:       script.Language.String(),
	}
	rec, err := deployrecord.NewRecord(n, op, cfg.Operator.Address, v.Title, v.Hash, script, time.Now().UTC())
	if err != nil {
		return err
	}
	recs := []deployrecord.Record{rec}
	if !noRecord {
		if recs, err = recordDeployment(cfg.Store.Path, rec, logger); err != nil {
			return err
		}
		res.Recorded = true
	}
	if outPath != "" {
		if err := deployrecord.WriteFile(outPath, recs); err != nil {
			return err
		}
	}
	return printJSON(out, res)
}

// recordDeployment stores rec and returns every recorded deployment.
func recordDeployment(path string, rec deployrecord.Record, logger *zap.Logger) ([]deployrecord.Record, error) {
	store, err := deployrecord.Open(path, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Put(rec); err != nil {
		return nil, err
	}
	var all []deployrecord.Record
	for _, n := range []cardano.Network{cardano.NetworkPreview, cardano.NetworkPreprod} {
		recs, err := store.List(n)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

func cmdDeployment(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("deployment", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		storePath  string
		policy     string
		filePath   string
		network    string
		operator   string
	)
	fs.StringVar(&configPath, "config", "", "Config file (YAML), used for the store path")
	fs.StringVar(&storePath, "store", "", "Deployment store directory (overrides config)")
	fs.StringVar(&policy, "policy", "", "Policy id to look up in the store")
	fs.StringVar(&filePath, "file", "", "Deployment file written by policy-id --out")
	fs.StringVar(&network, "network", "Preview", "Network to look up in --file")
	fs.StringVar(&operator, "operator", "", "Operator payment key hash to look up in --file")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	switch {
	case policy != "" && filePath != "":
		return errors.New("--policy and --file are exclusive")
	case policy != "":
		id, err := protocol.ParsePolicyIDHex(strings.TrimSpace(policy))
		if err != nil {
			return err
		}
		if storePath == "" {
			cfg, err := config.Load(configPath, config.WithOperatorPKH(operator))
			if err != nil {
				return err
			}
			storePath = cfg.Store.Path
		}
		store, err := deployrecord.Open(storePath, zap.NewNop())
		if err != nil {
			return err
		}
		defer store.Close()
		recs, err := store.ByPolicy(id)
		if err != nil {
			return err
		}
		return printJSON(out, recs)
	case filePath != "":
		if operator == "" {
			return errors.New("--operator is required with --file")
		}
		n, err := cardano.ParseNetwork(network)
		if err != nil {
			return err
		}
		op, err := protocol.ParseCredentialHex(strings.TrimSpace(operator))
		if err != nil {
			return err
		}
		f, err := deployrecord.LoadFile(filePath)
		if err != nil {
			return err
		}
		rec, err := f.Find(n, op)
		if err != nil {
			return err
		}
		return printJSON(out, rec)
	default:
		return errors.New("--policy or --file is required")
	}
}

type mintOutput struct {
	TxHash      string `json:"txHash,omitempty"`
	PolicyID    string `json:"policyId"`
	Unit        string `json:"unit"`
	Fee         string `json:"feeAda"`
	Balance     string `json:"walletBalanceAda"`
	Wallet      string `json:"wallet"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	TxCBOR      string `json:"txCbor,omitempty"`
}

func cmdMint(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		tokenName  string
		quantity   string
		recipient  string
		network    string
		dryRun     bool
		timeout    time.Duration
	)
	fs.StringVar(&configPath, "config", "", "Config file (YAML)")
	fs.StringVar(&tokenName, "token-name", "", "Asset name (UTF-8)")
	fs.StringVar(&quantity, "quantity", "", "Quantity to mint (decimal)")
	fs.StringVar(&recipient, "recipient", "", "Recipient address")
	fs.StringVar(&network, "network", "Preview", "Preview or Preprod")
	fs.BoolVar(&dryRun, "dry-run", false, "Build and print the unsigned transaction without submitting")
	fs.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if recipient == "" || quantity == "" {
		return errors.New("--quantity and --recipient are required")
	}
	q, err := parseQuantity(quantity)
	if err != nil {
		return err
	}
	n, err := cardano.ParseNetwork(network)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, closer, err := cfg.CreateLogger()
	if err != nil {
		return err
	}
	defer closer.Close()
	defer logger.Sync()

	m, err := newMinter(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req := minting.Request{TokenName: tokenName, Quantity: q, RecipientAddress: recipient, Network: n}
	p, err := m.Prepare(ctx, req)
	if err != nil {
		return err
	}
	res := mintOutput{
		PolicyID: p.PolicyID.Hex(),
		Unit:     p.Unit,
		Fee:      cardano.LovelaceToADA(p.Tx.Fee).String(),
		Balance:  cardano.LovelaceToADA(p.Balance.Coin).String(),
		Wallet:   p.Wallet.String(),
	}
	if dryRun {
		draft, err := p.Tx.Draft()
		if err != nil {
			return err
		}
		res.TxHash = p.Tx.Hash()
		res.TxCBOR = hex.EncodeToString(draft)
		return printJSON(out, res)
	}

	r, err := m.Submit(ctx, p)
	if err != nil {
		return err
	}
	res.TxHash = r.TxHash
	res.Fee = cardano.LovelaceToADA(r.Fee).String()
	res.ExplorerURL = r.ExplorerURL
	return printJSON(out, res)
}

func loadValidator(cfg *config.Config) (blueprint.Validator, error) {
	reg, err := blueprint.Load(cfg.Blueprint.Path)
	if err != nil {
		return blueprint.Validator{}, err
	}
	v, err := reg.Find(cfg.Blueprint.Title...)
	if err != nil {
		return blueprint.Validator{}, err
	}
	if err := v.VerifyHash(); err != nil {
		return blueprint.Validator{}, err
	}
	return v, nil
}

func newChains(cfg *config.Config) (map[cardano.Network]minting.Chain, error) {
	chains := make(map[cardano.Network]minting.Chain)
	for _, n := range cfg.EnabledNetworks() {
		nc, _ := cfg.Network(n)
		c, err := blockfrost.ForNetwork(n, nc.BlockfrostURL, nc.ProjectID)
		if err != nil {
			return nil, err
		}
		chains[n] = c
	}
	if len(chains) == 0 {
		return nil, errors.New("no networks configured: set BLOCKFROST_API_KEY_PREVIEW or BLOCKFROST_API_KEY_PREPROD")
	}
	return chains, nil
}

func newMinter(cfg *config.Config, logger *zap.Logger) (*minting.Minter, error) {
	op, err := cfg.Operator.Credential()
	if err != nil {
		return nil, err
	}
	v, err := loadValidator(cfg)
	if err != nil {
		return nil, err
	}
	chains, err := newChains(cfg)
	if err != nil {
		return nil, err
	}
	w := wallet.New(cfg.WalletSource(), logger.Named("wallet"))
	return minting.New(minting.Config{
		Operator:        op,
		Validator:       v,
		Chains:          chains,
		ExUnits:         cfg.Mint.ExUnits(),
		Evaluate:        cfg.Mint.Evaluate,
		ScriptCacheSize: cfg.Mint.ScriptCacheSize,
	}, w, logger.Named("minting"))
}

func parseQuantity(s string) (*big.Int, error) {
	q, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, protocol.Errorf(protocol.KindEncodingRange, "request", "invalid quantity %q", s)
	}
	return q, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
