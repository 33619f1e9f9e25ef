package blockfrost

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

const pageSize = 100

var ErrEvaluation = errors.New("script evaluation failed")

type protocolParamsJSON struct {
	MinFeeA             uint64             `json:"min_fee_a"`
	MinFeeB             uint64             `json:"min_fee_b"`
	MaxTxSize           uint64             `json:"max_tx_size"`
	CoinsPerUTxOSize    string             `json:"coins_per_utxo_size"`
	PriceMem            decimal.Decimal    `json:"price_mem"`
	PriceStep           decimal.Decimal    `json:"price_step"`
	CollateralPercent   uint64             `json:"collateral_percent"`
	MaxCollateralInputs uint64             `json:"max_collateral_inputs"`
	MaxTxExMem          string             `json:"max_tx_ex_mem"`
	MaxTxExSteps        string             `json:"max_tx_ex_steps"`
	CostModelsRaw       map[string][]int64 `json:"cost_models_raw"`
}

// ProtocolParameters fetches the current epoch's parameters.
func (c *Client) ProtocolParameters(ctx context.Context) (cardano.ProtocolParams, error) {
	var raw protocolParamsJSON
	if err := c.get(ctx, "/epochs/latest/parameters", nil, &raw); err != nil {
		return cardano.ProtocolParams{}, err
	}

	coinsPerByte, err := parseUint(raw.CoinsPerUTxOSize, "coins_per_utxo_size")
	if err != nil {
		return cardano.ProtocolParams{}, err
	}
	maxMem, err := parseUint(raw.MaxTxExMem, "max_tx_ex_mem")
	if err != nil {
		return cardano.ProtocolParams{}, err
	}
	maxSteps, err := parseUint(raw.MaxTxExSteps, "max_tx_ex_steps")
	if err != nil {
		return cardano.ProtocolParams{}, err
	}

	costs := make(map[protocol.Language][]int64, len(raw.CostModelsRaw))
	for name, model := range raw.CostModelsRaw {
		lang, err := protocol.ParseLanguage(name)
		if err != nil {
			continue
		}
		costs[lang] = model
	}

	return cardano.ProtocolParams{
		MinFeeA:             raw.MinFeeA,
		MinFeeB:             raw.MinFeeB,
		MaxTxSize:           raw.MaxTxSize,
		CoinsPerUTxOByte:    coinsPerByte,
		PriceMem:            raw.PriceMem,
		PriceStep:           raw.PriceStep,
		CollateralPercent:   raw.CollateralPercent,
		MaxCollateralInputs: raw.MaxCollateralInputs,
		MaxTxExUnits:        cardano.ExUnits{Mem: maxMem, Steps: maxSteps},
		CostModels:          costs,
	}, nil
}

func parseUint(s, field string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

type amountJSON struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type utxoJSON struct {
	Address     string       `json:"address"`
	TxHash      string       `json:"tx_hash"`
	OutputIndex uint32       `json:"output_index"`
	Amount      []amountJSON `json:"amount"`
	DataHash    *string      `json:"data_hash"`
	InlineDatum *string      `json:"inline_datum"`
	RefScript   *string      `json:"reference_script_hash"`
}

// AddressUTxOs pages through every UTxO at addr. An address the chain has
// never seen has none.
func (c *Client) AddressUTxOs(ctx context.Context, addr string) ([]cardano.UTxO, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("address required")
	}

	var out []cardano.UTxO
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("count", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		var batch []utxoJSON
		err := c.get(ctx, "/addresses/"+url.PathEscape(addr)+"/utxos", q, &batch)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		for _, u := range batch {
			utxo, err := u.toUTxO()
			if errors.Is(err, errSkipUTxO) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("utxo %s#%d: %w", u.TxHash, u.OutputIndex, err)
			}
			out = append(out, utxo)
		}
		if len(batch) < pageSize {
			return out, nil
		}
	}
}

func (u utxoJSON) toUTxO() (cardano.UTxO, error) {
	// Outputs locked by datums or carrying reference scripts are left alone.
	if u.DataHash != nil || u.InlineDatum != nil || u.RefScript != nil {
		return cardano.UTxO{}, errSkipUTxO
	}
	id, err := hex.DecodeString(u.TxHash)
	if err != nil || len(id) != 32 {
		return cardano.UTxO{}, fmt.Errorf("bad tx hash %q", u.TxHash)
	}
	out := cardano.UTxO{Address: u.Address, Value: cardano.Value{Assets: cardano.MultiAsset{}}}
	copy(out.In.TxID[:], id)
	out.In.Index = u.OutputIndex

	for _, a := range u.Amount {
		qty, err := strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			return cardano.UTxO{}, fmt.Errorf("quantity %q: %w", a.Quantity, err)
		}
		if a.Unit == "lovelace" {
			out.Value.Coin += qty
			continue
		}
		if len(a.Unit) < 2*protocol.HashSize {
			return cardano.UTxO{}, fmt.Errorf("bad unit %q", a.Unit)
		}
		policy, err := protocol.ParsePolicyIDHex(a.Unit[:2*protocol.HashSize])
		if err != nil {
			return cardano.UTxO{}, err
		}
		name, err := hex.DecodeString(a.Unit[2*protocol.HashSize:])
		if err != nil {
			return cardano.UTxO{}, fmt.Errorf("bad asset name in %q", a.Unit)
		}
		out.Value.Assets.Add(policy, protocol.AssetName(name), qty)
	}
	return out, nil
}

var errSkipUTxO = errors.New("utxo not spendable by key")

// SubmitTx posts a signed transaction and returns its hash.
func (c *Client) SubmitTx(ctx context.Context, tx []byte) (string, error) {
	var hash string
	if err := c.call(ctx, http.MethodPost, "/tx/submit", "application/cbor", tx, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

type budgetJSON struct {
	Memory uint64 `json:"memory"`
	Steps  uint64 `json:"steps"`
}

type evaluationJSON struct {
	Result struct {
		EvaluationResult  map[string]budgetJSON `json:"EvaluationResult"`
		EvaluationFailure json.RawMessage       `json:"EvaluationFailure"`
	} `json:"result"`
	Fault json.RawMessage `json:"fault"`
}

// EvaluateTx runs the transaction's scripts and returns the budget of the
// mint redeemer at index 0.
func (c *Client) EvaluateTx(ctx context.Context, tx []byte) (cardano.ExUnits, error) {
	body := []byte(hex.EncodeToString(tx))
	var out evaluationJSON
	if err := c.call(ctx, http.MethodPost, "/utils/txs/evaluate", "application/cbor", body, &out); err != nil {
		return cardano.ExUnits{}, err
	}
	if len(out.Result.EvaluationFailure) > 0 {
		return cardano.ExUnits{}, fmt.Errorf("%w: %s", ErrEvaluation, out.Result.EvaluationFailure)
	}
	if len(out.Fault) > 0 && string(out.Fault) != "null" {
		return cardano.ExUnits{}, fmt.Errorf("%w: %s", ErrEvaluation, out.Fault)
	}
	budget, ok := out.Result.EvaluationResult["mint:0"]
	if !ok {
		return cardano.ExUnits{}, fmt.Errorf("%w: no budget for mint:0", ErrEvaluation)
	}
	return cardano.ExUnits{Mem: budget.Memory, Steps: budget.Steps}, nil
}
