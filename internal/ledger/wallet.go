package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"whispr-service/internal/config"
)

var ErrWalletUnavailable = errors.New("wallet gateway unavailable")

// HTTPWallet talks JSON to the payments gateway.
type HTTPWallet struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPWallet(cfg config.WalletConfig) *HTTPWallet {
	return &HTTPWallet{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type transferRequest struct {
	To         string `json:"to"`
	AmountPmob int64  `json:"amount_pmob"`
	Memo       string `json:"memo"`
}

func (w *HTTPWallet) Transfer(ctx context.Context, to string, pmob int64, memo string) (TransferResult, error) {
	body, err := json.Marshal(transferRequest{To: to, AmountPmob: pmob, Memo: memo})
	if err != nil {
		return TransferOK, err
	}
	payload, status, err := w.do(ctx, http.MethodPost, "/v1/transfers", body)
	if err != nil {
		return TransferOK, err
	}

	switch result := gjson.GetBytes(payload, "status").String(); result {
	case "ok", "succeeded":
		return TransferOK, nil
	case "payments_not_enabled":
		return TransferPaymentNotEnabled, nil
	case "insufficient_funds":
		return TransferInsufficientFunds, nil
	default:
		return TransferOK, fmt.Errorf("%w: status %d, result %q: %s",
			ErrWalletUnavailable, status, result, gjson.GetBytes(payload, "error").String())
	}
}

func (w *HTTPWallet) USDPerMOB(ctx context.Context) (decimal.Decimal, error) {
	payload, status, err := w.do(ctx, http.MethodGet, "/v1/rates/mob-usd", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: rate status %d", ErrWalletUnavailable, status)
	}
	rate, err := decimal.NewFromString(gjson.GetBytes(payload, "usd_per_mob").String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate: %w", err)
	}
	return rate, nil
}

func (w *HTTPWallet) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.client.Timeout+time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	res, err := w.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read wallet response: %w", err)
	}
	return payload, res.StatusCode, nil
}
