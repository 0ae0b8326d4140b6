package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
)

// maxBodyBytes bounds request bodies read for signature checks.
const maxBodyBytes = 1 << 20

type callerKey struct{}

// CallerConfig controls how the acting account is established.
type CallerConfig struct {
	// RequireSignatures makes X-Signature mandatory. When false, X-Account
	// is trusted as sent.
	RequireSignatures bool
	MaxSkew           time.Duration
	// Replay rejects a signed request seen before within the skew window.
	Replay domain.ReplayGuard
	Now    func() time.Time
}

// CallerAuth resolves X-Account into the request context. With signatures
// required, the request must carry X-Timestamp (unix seconds) and an
// X-Signature over crypto.RequestDigest that recovers to X-Account, and each
// signed digest is accepted once. Requests without X-Account pass through anonymously.
func CallerAuth(cfg CallerConfig) func(http.Handler) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := r.Header.Get("X-Account")
			if account == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(account) {
				writeStatus(w, http.StatusBadRequest, "malformed X-Account")
				return
			}
			addr := common.HexToAddress(account)

			if cfg.RequireSignatures {
				if status, msg := verifyRequest(r, addr, cfg); status != 0 {
					writeStatus(w, status, msg)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, addr)))
		})
	}
}

// verifyRequest returns a non-zero status and message when r is refused.
func verifyRequest(r *http.Request, addr common.Address, cfg CallerConfig) (int, string) {
	ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	if err != nil {
		return http.StatusUnauthorized, "malformed X-Timestamp"
	}
	skew := cfg.Now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if cfg.MaxSkew > 0 && skew > cfg.MaxSkew {
		return http.StatusUnauthorized, "request timestamp outside allowed skew"
	}
	sig, err := hexutil.Decode(r.Header.Get("X-Signature"))
	if err != nil {
		return http.StatusUnauthorized, "malformed X-Signature"
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return http.StatusUnauthorized, "read body"
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	digest := crypto.RequestDigest(r.Method, r.URL.Path, ts, body)
	signer, err := crypto.Recover(digest, sig)
	if err != nil || signer != addr {
		return http.StatusUnauthorized, "signature does not match X-Account"
	}

	if cfg.Replay != nil {
		// Keyed on the digest so a re-encoded signature is still a replay.
		// A timestamp is accepted for MaxSkew on either side of now.
		fresh, err := cfg.Replay.Claim(r.Context(), addr.Hex()+":"+hexutil.Encode(digest), 2*cfg.MaxSkew)
		if err != nil {
			return http.StatusServiceUnavailable, "replay check unavailable"
		}
		if !fresh {
			return http.StatusUnauthorized, "signed request already used"
		}
	}
	return 0, ""
}

// CallerFrom returns the authenticated account, if any.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}
