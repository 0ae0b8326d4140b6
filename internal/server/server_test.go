package server_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/cache/memory"
	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/engine"
	"github.com/alanyoungcy/easybet/internal/server"
	"github.com/alanyoungcy/easybet/internal/server/handler"
	"github.com/alanyoungcy/easybet/internal/service"
	"github.com/alanyoungcy/easybet/internal/store/sqlite"
)

const userKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	creator = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	alice   = common.HexToAddress("0x000000000000000000000000000000000000a11c")
)

type api struct {
	t      *testing.T
	srv    *httptest.Server
	engine *engine.Engine
}

func newAPI(t *testing.T, cfg server.Config, extra ...common.Address) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "easybet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	genesis := map[common.Address]*uint256.Int{
		creator: uint256.NewInt(10_000),
		alice:   uint256.NewInt(10_000),
	}
	for _, a := range extra {
		genesis[a] = uint256.NewInt(10_000)
	}
	eng, err := engine.New(engine.Config{ChainID: 1337, FaucetAmount: uint256.NewInt(1000), NativeGenesis: genesis},
		engine.WithJournal(st), engine.WithLogger(logger))
	require.NoError(t, err)

	svc := service.NewSettlementService(eng, memory.NewBus(0), nil, nil, st, nil, nil, service.Config{}, logger)
	h := server.NewHandler(cfg, server.Handlers{
		Health: handler.NewHealthHandler(eng, nil, "standalone", logger),
		Calls:  handler.NewCallHandler(svc, eng, logger),
		Query:  handler.NewQueryHandler(eng, logger),
		Events: handler.NewEventHandler(st, st, logger),
		Admin:  handler.NewAdminHandler(svc, st, nil, time.Hour, logger),
	}, nil, nil, nil, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv, engine: eng}
}

func (a *api) do(method, path string, as *common.Address, value uint64, body string, headers ...string) (int, map[string]any) {
	a.t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	require.NoError(a.t, err)
	if as != nil {
		req.Header.Set("X-Account", as.Hex())
	}
	if value > 0 {
		req.Header.Set("X-Value", strconv.FormatUint(value, 10))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 {
		require.NoError(a.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func projectBody() string {
	end := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	return `{"name":"final","options":["red","blue"],"end_time":"` + end + `","use_token":false}`
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t, server.Config{APIKey: "secret"})

	code, body := a.do(http.MethodPost, "/api/projects", &creator, 0, projectBody())
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, map[string]any{"project_id": float64(0)}, body["result"])

	code, body = a.do(http.MethodPost, "/api/projects/0/tickets", &alice, 40, `{"option_id":0,"amount":"40"}`)
	require.Equal(t, http.StatusOK, code, body)
	code, _ = a.do(http.MethodPost, "/api/projects/0/tickets", &creator, 60, `{"option_id":1,"amount":"60"}`)
	require.Equal(t, http.StatusOK, code)

	// Payment must match the stake.
	code, body = a.do(http.MethodPost, "/api/projects/0/tickets", &alice, 5, `{"option_id":0,"amount":"40"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "InsufficientPayment", body["code"])

	code, body = a.do(http.MethodPost, "/api/projects/0/end", &alice, 0, `{"winning_option":0}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NotCreator", body["code"])

	code, _ = a.do(http.MethodPost, "/api/projects/0/end", &creator, 0, `{"winning_option":0}`)
	require.Equal(t, http.StatusOK, code)

	code, body = a.do(http.MethodGet, "/api/projects/0/preview?account="+alice.Hex(), nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", body["payout"])

	code, body = a.do(http.MethodPost, "/api/projects/0/claim", &alice, 0, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "100", body["result"].(map[string]any)["payout"])

	code, _ = a.do(http.MethodPost, "/api/projects/0/claim", &alice, 0, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = a.do(http.MethodGet, "/api/projects/0", nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["finished"])

	code, body = a.do(http.MethodGet, "/api/events?project_id=0&kind=ticket_bought", nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["events"], 2)

	code, body = a.do(http.MethodGet, "/api/journal?after=1&limit=2", nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["entries"], 2)
}

func TestOrderRoutes(t *testing.T) {
	a := newAPI(t, server.Config{})
	acc := a.engine.Accounts()

	code, _ := a.do(http.MethodPost, "/api/projects", &creator, 0, projectBody())
	require.Equal(t, http.StatusOK, code)
	code, body := a.do(http.MethodPost, "/api/projects/0/tickets", &alice, 10, `{"option_id":1,"amount":"10"}`)
	require.Equal(t, http.StatusOK, code, body)

	code, _ = a.do(http.MethodPost, "/api/calls/ticketApprove", &alice, 0, `{"to":"`+acc.Book.Hex()+`","ticket_id":0}`)
	require.Equal(t, http.StatusOK, code)
	code, body = a.do(http.MethodPost, "/api/orders", &alice, 0, `{"ticket_id":0,"price":"25","project_id":0,"option_id":1,"use_token":false}`)
	require.Equal(t, http.StatusOK, code, body)

	code, body = a.do(http.MethodGet, "/api/projects/0/options/1/orders", nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "25", body["best_price"])

	// Only the seller may cancel.
	code, _ = a.do(http.MethodDelete, "/api/orders/0", &creator, 0, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(http.MethodPost, "/api/orders/0/fill", &creator, 25, `{"payment":"25"}`)
	require.Equal(t, http.StatusOK, code, body)

	code, body = a.do(http.MethodGet, "/api/tickets/0", nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, strings.ToLower(creator.Hex()), body["owner"])

	// The filled order stays readable but inactive.
	code, body = a.do(http.MethodGet, "/api/orders/0", nil, 0, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["active"])

	code, body = a.do(http.MethodGet, "/api/orders/9", nil, 0, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "OrderNotFound", body["code"])
}

func TestRequestValidation(t *testing.T) {
	a := newAPI(t, server.Config{APIKey: "secret"})

	code, _ := a.do(http.MethodPost, "/api/projects", nil, 0, projectBody())
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := a.do(http.MethodPost, "/api/calls/selfdestruct", &alice, 0, "{}")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "UnknownMethod", body["code"])

	code, _ = a.do(http.MethodPost, "/api/projects/0/tickets", &alice, 0, `{"option_id":0,"amount":"1","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(http.MethodGet, "/api/projects/7", nil, 0, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ProjectNotFound", body["code"])

	code, _ = a.do(http.MethodGet, "/api/accounts/nope", nil, 0, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(http.MethodPost, "/api/calls/claim", &alice, 0, "")
	require.Equal(t, http.StatusOK, code, body)
	code, body = a.do(http.MethodGet, "/api/accounts/"+alice.Hex(), nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1000", body["token"])
	assert.Equal(t, true, body["faucet_claimed"])

	code, _ = a.do(http.MethodGet, "/api/admin/audit", nil, 0, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodGet, "/api/admin/audit", nil, 0, "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPost, "/api/admin/archive", nil, 0, "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusNotImplemented, code)

	code, body = a.do(http.MethodGet, "/api/status", nil, 0, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["seq"])
}

func TestSignedCalls(t *testing.T) {
	signer, err := crypto.NewSigner(userKey)
	require.NoError(t, err)
	who := signer.Address()
	a := newAPI(t, server.Config{RequireSignatures: true, SignatureMaxSkew: time.Minute}, who)

	ts := time.Now().Unix()
	sig, err := signer.SignRequest(http.MethodPost, "/api/calls/claim", ts, []byte("{}"))
	require.NoError(t, err)

	code, body := a.do(http.MethodPost, "/api/calls/claim", &who, 0, "{}",
		"X-Timestamp", strconv.FormatInt(ts, 10),
		"X-Signature", hexutil.Encode(sig))
	require.Equal(t, http.StatusOK, code, body)
	assert.True(t, a.engine.HasClaimed(who))

	// The same signed request cannot be sent twice.
	code, body = a.do(http.MethodPost, "/api/calls/claim", &who, 0, "{}",
		"X-Timestamp", strconv.FormatInt(ts, 10),
		"X-Signature", hexutil.Encode(sig))
	assert.Equal(t, http.StatusUnauthorized, code, body)

	// Unsigned calls are refused.
	code, _ = a.do(http.MethodPost, "/api/calls/claim", &alice, 0, "{}")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{domain.ErrNotOwner, http.StatusForbidden},
		{domain.ErrTicketNotFound, http.StatusNotFound},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{domain.ErrAlreadyListed, http.StatusConflict},
		{domain.ErrInvalidPrice, http.StatusBadRequest},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("engine: %w: %w", domain.ErrJournalWrite, errors.New("disk")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.want, handler.StatusFor(tc.err), tc.err.Error())
	}
}
