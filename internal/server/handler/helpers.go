package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/server/middleware"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps err to a status. Settlement errors carry their kind and
// code so clients can branch on them.
func writeFailure(w http.ResponseWriter, err error) {
	if se, ok := domain.AsSettlementError(err); ok {
		writeJSON(w, StatusFor(err), map[string]string{
			"error": se.Error(),
			"kind":  string(se.Kind),
			"code":  se.Code,
		})
		return
	}
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, msg)
}

// StatusFor returns the HTTP status for an engine or service error.
func StatusFor(err error) int {
	if se, ok := domain.AsSettlementError(err); ok {
		switch {
		case se.Kind == domain.KindAuthorization:
			return http.StatusForbidden
		case strings.HasSuffix(se.Code, "NotFound"):
			return http.StatusNotFound
		case se.Kind == domain.KindState:
			return http.StatusConflict
		case se.Kind == domain.KindValidation:
			return http.StatusBadRequest
		case se.Kind == domain.KindFunds:
			return http.StatusUnprocessableEntity
		}
	}
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrJournalWrite):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// parseListOpts extracts pagination and time window parameters.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{Limit: limit, Offset: offset}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

// pathParam extracts a named path parameter.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(pathParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	v := pathParam(r, name)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s", name)
	}
	return common.HexToAddress(v), nil
}

func queryUint(r *http.Request, name string) (*uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &n, nil
}

// callValue reads the native value attached to a call from X-Value.
func callValue(r *http.Request) (*uint256.Int, error) {
	v := strings.TrimSpace(r.Header.Get("X-Value"))
	if v == "" {
		return nil, nil
	}
	n, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid X-Value: %w", err)
	}
	return n, nil
}

// readBody returns the raw request body, or "{}" when empty.
func readBody(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return body, nil
}

// decodeBody decodes the request body into v, refusing unknown fields.
func decodeBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed body: %w", err)
	}
	return nil
}

// caller returns the authenticated account or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Account required")
	}
	return addr, ok
}
