package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/cache/memory"
	"github.com/alanyoungcy/easybet/internal/crypto"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		addr, ok := CallerFrom(r.Context())
		if !ok {
			w.Write([]byte("anonymous|" + string(body)))
			return
		}
		w.Write([]byte(addr.Hex() + "|" + string(body)))
	})
}

func signedRequest(t *testing.T, s *crypto.Signer, ts int64, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(body))
	sig, err := s.SignRequest(http.MethodPost, "/api/projects", ts, []byte(body))
	require.NoError(t, err)
	req.Header.Set("X-Account", s.Address().Hex())
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", hexutil.Encode(sig))
	return req
}

func TestCallerAuthSigned(t *testing.T) {
	s, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	now := time.Unix(1_800_000_000, 0)
	h := CallerAuth(CallerConfig{RequireSignatures: true, MaxSkew: 30 * time.Second, Now: func() time.Time { return now }})(echoCaller())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, s, now.Unix(), `{"name":"x"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.Address().Hex()+`|{"name":"x"}`, rec.Body.String())

	// Stale timestamp.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, s, now.Add(-time.Minute).Unix(), `{}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Body altered after signing.
	req := signedRequest(t, s, now.Unix(), `{"a":1}`)
	req.Body = io.NopCloser(strings.NewReader(`{"a":2}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Claiming someone else's account.
	req = signedRequest(t, s, now.Unix(), `{}`)
	req.Header.Set("X-Account", common.HexToAddress("0xa11c").Hex())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallerAuthRejectsReplay(t *testing.T) {
	s, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	start := time.Unix(1_800_000_000, 0)
	now := start
	h := CallerAuth(CallerConfig{
		RequireSignatures: true,
		MaxSkew:           30 * time.Second,
		Replay:            memory.NewReplayGuard(),
		Now:               func() time.Time { return now },
	})(echoCaller())

	send := func(ts int64, body string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, s, ts, body))
		return rec.Code
	}

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, send(start.Unix(), `{"ticket":1}`))
		now = now.Add(5 * time.Second)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusUnauthorized, http.StatusUnauthorized}, codes)

	// A fresh timestamp is a new request.
	assert.Equal(t, http.StatusOK, send(now.Unix(), `{"ticket":1}`))
	// So is a different body under the old timestamp.
	assert.Equal(t, http.StatusOK, send(start.Unix(), `{"ticket":2}`))
}

func TestCallerAuthTrustedAndAnonymous(t *testing.T) {
	h := CallerAuth(CallerConfig{})(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Account", "0x000000000000000000000000000000000000a11c")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, common.HexToAddress("0xa11c").Hex()+"|", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous|", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Account", "bob")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	for _, tc := range []struct {
		name   string
		key    string
		header func(*http.Request)
		want   int
	}{
		{"disabled", "", func(*http.Request) {}, http.StatusForbidden},
		{"missing", "k", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong", "k", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusUnauthorized},
		{"bearer", "k", func(r *http.Request) { r.Header.Set("Authorization", "Bearer k") }, http.StatusTeapot},
		{"header", "k", func(r *http.Request) { r.Header.Set("X-API-Key", "k") }, http.StatusTeapot},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
			tc.header(req)
			rec := httptest.NewRecorder()
			APIKey(tc.key)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimitPerIP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RateLimit(memory.NewRateLimiter(), 2, time.Minute, logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	codes := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, codes("1.1.1.1"))
	assert.Equal(t, http.StatusOK, codes("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, codes("1.1.1.1"))
	assert.Equal(t, http.StatusOK, codes("2.2.2.2"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight reached handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Signature")
}
