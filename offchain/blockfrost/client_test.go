package blockfrost

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/protocol"
)

func TestClient_ProtocolParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/epochs/latest/parameters" {
			t.Fatalf("path=%q", r.URL.Path)
		}
		if r.Header.Get("project_id") != "preview123" {
			t.Fatalf("project_id=%q", r.Header.Get("project_id"))
		}
		_, _ = w.Write([]byte(`{
  "epoch": 900,
  "min_fee_a": 44,
  "min_fee_b": 155381,
  "max_tx_size": 16384,
  "coins_per_utxo_size": "4310",
  "price_mem": 0.0577,
  "price_step": 0.0000721,
  "collateral_percent": 150,
  "max_collateral_inputs": 3,
  "max_tx_ex_mem": "14000000",
  "max_tx_ex_steps": "10000000000",
  "cost_models_raw": {"PlutusV2": [1, 2], "PlutusV3": [100788, 420, -1]}
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "preview123", nil)
	p, err := c.ProtocolParameters(context.Background())
	if err != nil {
		t.Fatalf("ProtocolParameters: %v", err)
	}
	if p.MinFeeA != 44 || p.MinFeeB != 155381 || p.CoinsPerUTxOByte != 4310 || p.CollateralPercent != 150 {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.PriceMem.String() != "0.0577" || p.PriceStep.String() != "0.0000721" {
		t.Fatalf("prices: %s %s", p.PriceMem, p.PriceStep)
	}
	if p.MaxTxExUnits != (cardano.ExUnits{Mem: 14_000_000, Steps: 10_000_000_000}) {
		t.Fatalf("max ex units: %+v", p.MaxTxExUnits)
	}
	v3 := p.CostModels[protocol.LanguagePlutusV3]
	if len(v3) != 3 || v3[0] != 100788 || v3[2] != -1 {
		t.Fatalf("v3 cost model: %v", v3)
	}
}

func TestClient_AddressUTxOsPaginates(t *testing.T) {
	txHash := strings.Repeat("ab", 32)
	policy := strings.Repeat("cd", 28)

	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/addresses/addr_test1xyz/utxos") {
			t.Fatalf("path=%q", r.URL.Path)
		}
		atomic.AddInt32(&pages, 1)
		page := r.URL.Query().Get("page")
		n := 0
		switch page {
		case "1":
			n = pageSize
		case "2":
			n = 2
		default:
			t.Fatalf("unexpected page %q", page)
		}
		items := make([]string, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, fmt.Sprintf(`{
  "address": "addr_test1xyz",
  "tx_hash": %q,
  "output_index": %d,
  "amount": [{"unit": "lovelace", "quantity": "1000000"}, {"unit": %q, "quantity": "7"}],
  "data_hash": null,
  "inline_datum": null,
  "reference_script_hash": null
}`, txHash, i, policy+"4869"))
		}
		if page == "2" {
			items = append(items, fmt.Sprintf(`{"address":"addr_test1xyz","tx_hash":%q,"output_index":999,"amount":[{"unit":"lovelace","quantity":"5"}],"inline_datum":"d87980"}`, txHash))
		}
		_, _ = w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", nil)
	utxos, err := c.AddressUTxOs(context.Background(), "addr_test1xyz")
	if err != nil {
		t.Fatalf("AddressUTxOs: %v", err)
	}
	if len(utxos) != pageSize+2 {
		t.Fatalf("utxos=%d", len(utxos))
	}
	if pages != 2 {
		t.Fatalf("pages=%d", pages)
	}

	pid, _ := protocol.ParsePolicyIDHex(policy)
	u := utxos[0]
	if hex.EncodeToString(u.In.TxID[:]) != txHash || u.In.Index != 0 {
		t.Fatalf("in=%s", u.In)
	}
	if u.Value.Coin != 1_000_000 || u.Value.Assets.Quantity(pid, protocol.AssetName("Hi")) != 7 {
		t.Fatalf("value=%s", u.Value)
	}
}

func TestClient_AddressUTxOsUnknownAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code":404,"error":"Not Found","message":"The requested component has not been found."}`))
	}))
	defer srv.Close()

	utxos, err := New(srv.URL, "k", nil).AddressUTxOs(context.Background(), "addr_test1new")
	if err != nil {
		t.Fatalf("AddressUTxOs: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("utxos=%d", len(utxos))
	}
}

func TestClient_SubmitTx(t *testing.T) {
	tx := []byte{0x84, 0xa0, 0xa0, 0xf5, 0xf6}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tx/submit" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/cbor" {
			t.Fatalf("content-type=%q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(tx) {
			t.Fatalf("body=%x", body)
		}
		_, _ = w.Write([]byte(`"` + strings.Repeat("0f", 32) + `"`))
	}))
	defer srv.Close()

	hash, err := New(srv.URL, "k", nil).SubmitTx(context.Background(), tx)
	if err != nil {
		t.Fatalf("SubmitTx: %v", err)
	}
	if hash != strings.Repeat("0f", 32) {
		t.Fatalf("hash=%q", hash)
	}
}

func TestClient_SubmitTxRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status_code":400,"error":"Bad Request","message":"ValueNotConservedUTxO"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", nil).SubmitTx(context.Background(), []byte{0x80})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 || !strings.Contains(apiErr.Message, "ValueNotConserved") {
		t.Fatalf("err=%v", err)
	}
	if !errors.Is(err, ErrAPIError) {
		t.Fatalf("err=%v want ErrAPIError", err)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`"ok"`))
	}))
	defer srv.Close()

	hash, err := New(srv.URL, "k", nil).SubmitTx(context.Background(), []byte{0x80})
	if err != nil {
		t.Fatalf("SubmitTx: %v", err)
	}
	if hash != "ok" || calls != 2 {
		t.Fatalf("hash=%q calls=%d", hash, calls)
	}
}

func TestClient_EvaluateTx(t *testing.T) {
	tx := []byte{0x84, 0x01}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "8401" {
			t.Fatalf("body=%q", body)
		}
		_, _ = w.Write([]byte(`{"type":"jsonwsp/response","methodname":"EvaluateTx","result":{"EvaluationResult":{"mint:0":{"memory":1700,"steps":476468}}}}`))
	}))
	defer srv.Close()

	ex, err := New(srv.URL, "k", nil).EvaluateTx(context.Background(), tx)
	if err != nil {
		t.Fatalf("EvaluateTx: %v", err)
	}
	if ex != (cardano.ExUnits{Mem: 1700, Steps: 476468}) {
		t.Fatalf("ex=%+v", ex)
	}
}

func TestClient_EvaluateTxFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"EvaluationFailure":{"ScriptFailures":{"mint:0":[{"validatorFailed":{"error":"trace"}}]}}}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", nil).EvaluateTx(context.Background(), []byte{0x80})
	if !errors.Is(err, ErrEvaluation) || !strings.Contains(err.Error(), "ScriptFailures") {
		t.Fatalf("err=%v", err)
	}
}

func TestForNetwork(t *testing.T) {
	if _, err := ForNetwork(cardano.NetworkPreprod, "", "  "); !errors.Is(err, ErrMissingProjectID) || !strings.Contains(err.Error(), "BLOCKFROST_API_KEY_PREPROD") {
		t.Fatalf("err=%v", err)
	}
	c, err := ForNetwork(cardano.NetworkPreprod, "", "preprodKey")
	if err != nil {
		t.Fatalf("ForNetwork: %v", err)
	}
	if c.baseURL != "https://cardano-preprod.blockfrost.io/api/v0" || c.projectID != "preprodKey" {
		t.Fatalf("client=%+v", c)
	}
	c, err = ForNetwork(cardano.NetworkPreview, "http://localhost:3000/", "k")
	if err != nil {
		t.Fatalf("ForNetwork: %v", err)
	}
	if c.baseURL != "http://localhost:3000" {
		t.Fatalf("baseURL=%q", c.baseURL)
	}
	if _, err := ForNetwork(cardano.Network(9), "", "k"); err == nil {
		t.Fatalf("expected unsupported network error")
	}
}
