package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whispr-service/internal/config"
)

func newGateway(t *testing.T, status string) (*HTTPWallet, *transferRequest) {
	t.Helper()
	var got transferRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	})
	mux.HandleFunc("/v1/rates/mob-usd", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte(`{"usd_per_mob":"3.25"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewHTTPWallet(config.WalletConfig{URL: srv.URL, Token: "secret", Timeout: 5 * time.Second}), &got
}

func TestHTTPWalletTransfer(t *testing.T) {
	tests := []struct {
		status string
		want   TransferResult
	}{
		{"ok", TransferOK},
		{"payments_not_enabled", TransferPaymentNotEnabled},
		{"insufficient_funds", TransferInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			wallet, got := newGateway(t, tt.status)
			result, err := wallet.Transfer(context.Background(), "+12015550123", 42, "tip")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
			assert.Equal(t, transferRequest{To: "+12015550123", AmountPmob: 42, Memo: "tip"}, *got)
		})
	}
}

func TestHTTPWalletUnknownStatusIsAnError(t *testing.T) {
	wallet, _ := newGateway(t, "exploded")
	_, err := wallet.Transfer(context.Background(), "+12015550123", 42, "tip")
	assert.ErrorIs(t, err, ErrWalletUnavailable)
}

func TestHTTPWalletRate(t *testing.T) {
	wallet, _ := newGateway(t, "ok")
	rate, err := wallet.USDPerMOB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.25", rate.String())
}
