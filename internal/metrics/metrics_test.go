package metrics

import (
	"testing"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopMetricsAcceptsLabels(t *testing.T) {
	m := NopMetrics()
	assert.NotPanics(t, func() {
		m.Calls.With("method", "buyTicket", "outcome", "ok").Add(1)
		m.CallDuration.With("method", "buyTicket").Observe(0.01)
		m.JournalSeq.Set(7)
	})
}

func TestPrometheusMetricsRegisters(t *testing.T) {
	m := PrometheusMetrics("easybet_test")
	m.Calls.With("method", "claim", "outcome", "ok").Add(2)
	m.JournalSeq.Set(42)

	families, err := stdprometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	assert.True(t, found["easybet_test_settlement_calls_total"])
	assert.True(t, found["easybet_test_settlement_journal_seq"])
}
