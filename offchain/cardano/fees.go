package cardano

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Abdullah1738/tokenwell/protocol"
)

// ExUnits is a script execution budget.
type ExUnits struct {
	Mem   uint64
	Steps uint64
}

// ProtocolParams holds the subset of ledger parameters a mint needs.
type ProtocolParams struct {
	MinFeeA             uint64
	MinFeeB             uint64
	MaxTxSize           uint64
	CoinsPerUTxOByte    uint64
	PriceMem            decimal.Decimal
	PriceStep           decimal.Decimal
	CollateralPercent   uint64
	MaxCollateralInputs uint64
	MaxTxExUnits        ExUnits
	CostModels          map[protocol.Language][]int64
}

// Per-output overhead the ledger adds to the serialized size when pricing
// the minimum lovelace of an output.
const utxoEntryOverhead = 160

// MinFee is minFeeA*size + minFeeB + ceil(priceMem*mem + priceStep*steps).
func (p ProtocolParams) MinFee(size int, ex ExUnits) uint64 {
	base := p.MinFeeA*uint64(size) + p.MinFeeB
	return base + p.ScriptFee(ex)
}

// ScriptFee prices an execution budget, rounded up to whole lovelace.
func (p ProtocolParams) ScriptFee(ex ExUnits) uint64 {
	mem := p.PriceMem.Mul(decimalFromUint64(ex.Mem))
	steps := p.PriceStep.Mul(decimalFromUint64(ex.Steps))
	return mem.Add(steps).Ceil().BigInt().Uint64()
}

// MinUTxO is the minimum lovelace of an output serialized to outputSize bytes.
func (p ProtocolParams) MinUTxO(outputSize int) uint64 {
	return p.CoinsPerUTxOByte * uint64(utxoEntryOverhead+outputSize)
}

// Collateral is ceil(fee * collateralPercent / 100).
func (p ProtocolParams) Collateral(fee uint64) uint64 {
	pct := decimalFromUint64(p.CollateralPercent).Div(decimal.NewFromInt(100))
	return decimalFromUint64(fee).Mul(pct).Ceil().BigInt().Uint64()
}

// LovelaceToADA converts for display; 1 ADA is 10^6 lovelace.
func LovelaceToADA(lovelace uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lovelace), -6)
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
