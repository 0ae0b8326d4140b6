package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	ctx := context.Background()
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventLargeClaim}, quietLogger())

	require.NoError(t, n.Notify(ctx, EventProjectFinished, "skip", ""))
	require.NoError(t, n.Notify(ctx, EventLargeClaim, "keep", ""))
	assert.Equal(t, []string{"keep"}, s.titles)

	all := NewNotifier([]Sender{s}, nil, quietLogger())
	assert.True(t, all.Enabled(EventJournalFailure))

	var none *Notifier
	assert.False(t, none.Enabled(EventLargeClaim))
	require.NoError(t, none.Notify(ctx, EventLargeClaim, "x", "y"))
}

func TestNotifierReportsFailuresButDeliversRest(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("down")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), EventJournalFailure, "t", "m")
	require.ErrorContains(t, err, "bad: down")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.ErrorContains(t, err, "discord: unexpected status 429")
}

func TestFormatAmount(t *testing.T) {
	v, err := uint256.FromDecimal("1500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1.5", FormatAmount(v, 18))
	assert.Equal(t, "25", FormatAmount(uint256.NewInt(25), 0))
	assert.Equal(t, "0", FormatAmount(nil, 18))

	title, msg := LargeClaim(3, "0xabc", v, 2, "LTK", 18)
	assert.Equal(t, "Large claim on project #3", title)
	assert.Equal(t, "0xabc claimed 1.5 LTK over 2 ticket(s)", msg)
}
