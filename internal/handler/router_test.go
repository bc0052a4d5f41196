package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whispr-service/internal/config"
	"whispr-service/internal/dispatch"
	"whispr-service/internal/events"
	"whispr-service/internal/graph"
	"whispr-service/internal/ledger"
	"whispr-service/internal/model"
	"whispr-service/internal/repository/memory"
	"whispr-service/internal/search"
	"whispr-service/internal/service"
	"whispr-service/internal/transport"
)

const webhookSecret = "gateway-secret"

const (
	alice = "+12015550101"
	bob   = "+12015550102"
	carol = "+12015550103"
)

type fakeSink struct {
	mu   sync.Mutex
	msgs []*model.Message
	err  error
}

func (f *fakeSink) Dispatch(msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fixture struct {
	router chi.Router
	store  *graph.Store
	index  *search.MemoryIndex
	sink   *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	store := graph.NewStore(memory.NewStore())
	index := search.NewMemoryIndex()

	for number, name := range map[string]string{alice: "alice", bob: "bob", carol: "carol"} {
		require.NoError(t, store.Reserve(ctx, number))
		_, err := store.SetDisplayName(ctx, number, name)
		require.NoError(t, err)
		require.NoError(t, index.IndexProfile(ctx, &model.UserProfile{Number: number, DisplayName: name}))
	}
	require.NoError(t, store.AddFollower(ctx, bob, alice))
	require.NoError(t, store.AddFollower(ctx, carol, bob))
	require.NoError(t, store.SetFollowPrice(ctx, bob, ledger.PmobPerMOB/2))

	services := service.NewServiceFactory(
		store,
		transport.NewRecorder(),
		ledger.NewMemoryBook(),
		ledger.NewStubWallet(decimal.NewFromInt(1)),
		events.NewMemory(),
		index,
		config.BotConfig{QuestionTimeout: time.Minute},
		logger,
	)
	sink := &fakeSink{}
	router := NewRouter(
		NewUserHandler(services.UserService(), logger),
		NewMessageHandler(sink, webhookSecret, logger),
		[]string{"*"},
		logger,
	)
	return &fixture{router: router, store: store, index: index, sink: sink}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

// post sends body to the message webhook signed with signer's secret.
func (f *fixture) post(t *testing.T, signer, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	if signer != "" {
		req.Header.Set(SignatureHeader, SignBody(signer, []byte(body)))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"whispr-service"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/users/alice", "")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "whispr_http_requests_total")
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/users/BOB", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, bob, data["number"])
	assert.Equal(t, "bob", data["display_name"])
	assert.EqualValues(t, 1, data["followers"])
	assert.EqualValues(t, 1, data["following"])
	assert.Equal(t, "0.5", data["follow_price_mob"])
}

func TestGetUserErrors(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/users/nobody", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "did you include the country code?")

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/+447400123456", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFollowerListings(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/users/bob/followers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"number": alice, "name": "alice"}}, resp.Data)
	assert.Equal(t, 1, resp.Meta.Total)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/users/alice/followers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, resp.Data)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/users/alice/following", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"number": bob, "name": "bob"}}, resp.Data)
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/users/alice/recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"number": carol, "name": "carol", "count": float64(1)}}, resp.Data)
}

func TestSearchUsers(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/users/search?q=CAR", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"number": carol, "display_name": "carol"}}, resp.Data)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/search?q=", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/search?q=a&limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessage(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.post(t, webhookSecret, `{"source":"`+alice+`","text":"/follow carol"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, resp.Success)

	require.Len(t, f.sink.msgs, 1)
	msg := f.sink.msgs[0]
	assert.Equal(t, "follow", msg.Command)
	assert.Equal(t, "carol", msg.Arg1)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, msg.ID, resp.Data.(map[string]any)["id"])
}

func TestPostMessageErrors(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.post(t, webhookSecret, `{"text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.post(t, webhookSecret, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.sink.err = dispatch.ErrClosed
	rec, _ = f.post(t, webhookSecret, `{"source":"`+alice+`","text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.sink.err = errors.New("boom")
	rec, _ = f.post(t, webhookSecret, `{"source":"`+alice+`","text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/messages", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPostMessageRequiresSignature(t *testing.T) {
	f := newFixture(t)
	body := `{"source":"` + alice + `","text":"/forceinvite bob"}`

	rec, resp := f.post(t, "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = f.post(t, "guessed", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set(SignatureHeader, "sha256=not-hex")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, f.sink.msgs)
}

func TestPostMessageDisabledWithoutSecret(t *testing.T) {
	sink := &fakeSink{}
	router := chi.NewRouter()
	NewMessageHandler(sink, "", zap.NewNop()).RegisterRoutes(router)

	body := `{"source":"` + alice + `","text":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
	req.Header.Set(SignatureHeader, SignBody("", []byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.msgs)
}

func TestPostMessageIgnoresPayments(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.post(t, webhookSecret, `{"source":"`+alice+`","text":"hi","payment_pmob":5000000000000}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.sink.msgs, 1)
	assert.Zero(t, f.sink.msgs[0].PaymentPmob)
}
