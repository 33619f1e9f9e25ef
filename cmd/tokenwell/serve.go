package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Abdullah1738/tokenwell/internal/config"
	"github.com/Abdullah1738/tokenwell/offchain/cardano"
	"github.com/Abdullah1738/tokenwell/offchain/minting"
	"github.com/Abdullah1738/tokenwell/protocol"
)

const maxRequestBody = 1 << 16

type minter interface {
	Mint(ctx context.Context, req minting.Request) (minting.Result, error)
}

// jsonQuantity accepts a JSON number or a decimal string.
type jsonQuantity struct{ *big.Int }

func (q *jsonQuantity) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return errors.New("quantity must be an integer")
	}
	q.Int = v
	return nil
}

type mintRequestJSON struct {
	TokenName        string          `json:"tokenName"`
	Quantity         jsonQuantity    `json:"quantity"`
	RecipientAddress string          `json:"recipientAddress"`
	Network          cardano.Network `json:"network"`
}

type mintResponseJSON struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash,omitempty"`
	PolicyID    string `json:"policyId,omitempty"`
	Unit        string `json:"unit,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

func newMux(m minter, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/mint", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeMintJSON(w, http.StatusMethodNotAllowed, mintResponseJSON{Error: "method not allowed"})
			return
		}
		defer r.Body.Close()

		var reqJSON mintRequestJSON
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		if err := dec.Decode(&reqJSON); err != nil {
			writeMintJSON(w, http.StatusBadRequest, mintResponseJSON{Error: "invalid request: " + err.Error()})
			return
		}
		if reqJSON.Quantity.Int == nil || reqJSON.RecipientAddress == "" {
			writeMintJSON(w, http.StatusBadRequest, mintResponseJSON{Error: "tokenName, quantity, recipientAddress and network are required"})
			return
		}

		res, err := m.Mint(r.Context(), minting.Request{
			TokenName:        reqJSON.TokenName,
			Quantity:         reqJSON.Quantity.Int,
			RecipientAddress: reqJSON.RecipientAddress,
			Network:          reqJSON.Network,
		})
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				logger.Error("mint request failed", zap.Int("status", status), zap.Error(err))
			}
			writeMintJSON(w, status, mintResponseJSON{Error: err.Error()})
			return
		}
		writeMintJSON(w, http.StatusOK, mintResponseJSON{
			Success:     true,
			TxHash:      res.TxHash,
			PolicyID:    res.PolicyID.Hex(),
			Unit:        res.Unit,
			ExplorerURL: res.ExplorerURL,
			Message:     "mint submitted",
		})
	})
	return mux
}

func statusFor(err error) int {
	if r, ok := minting.RejectionOf(err); ok && r.InsufficientFunds {
		return http.StatusPaymentRequired
	}
	if errors.Is(err, minting.ErrUnsupportedNetwork) {
		return http.StatusBadRequest
	}
	switch protocol.KindOf(err) {
	case protocol.KindEncodingRange, protocol.KindAddressDecode:
		return http.StatusBadRequest
	case protocol.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case protocol.KindSubmission:
		return http.StatusBadGateway
	case protocol.KindTransactionBuild:
		if protocol.StageOf(err) == "request" {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func writeMintJSON(w http.ResponseWriter, status int, v mintResponseJSON) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func cmdServe(argv []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		listenAddr string
	)
	fs.StringVar(&configPath, "config", "", "Config file (YAML)")
	fs.StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.HTTP.ListenAddr = listenAddr
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
	_, policy, err := m.Policy()
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           newMux(m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	logger.Info(
		"listening",
		zap.String("addr", cfg.HTTP.ListenAddr),
		zap.String("policy_id", policy.Hex()),
		zap.Stringers("networks", cfg.EnabledNetworks()),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
