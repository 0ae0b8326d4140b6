package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/exchange"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/market"
	"github.com/alanyoungcy/easybet/internal/registry"
)

// State is the full engine content at one point of the journal.
type State struct {
	Seq      uint64         `json:"seq"`
	Head     common.Hash    `json:"head"`
	Token    ledger.State   `json:"token"`
	Native   ledger.State   `json:"native"`
	Registry registry.State `json:"registry"`
	Market   market.State   `json:"market"`
	Book     exchange.State `json:"book"`
}

// Snapshot captures the current state.
func (e *Engine) Snapshot() (domain.Snapshot, error) {
	e.mu.RLock()
	st := State{
		Seq:      e.seq,
		Head:     e.head,
		Token:    e.token.Export(),
		Native:   e.native.Export(),
		Registry: e.registry.Export(),
		Market:   e.market.Export(),
		Book:     e.book.Export(),
	}
	e.mu.RUnlock()

	raw, err := json.Marshal(st)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("engine: encode snapshot: %w", err)
	}
	return domain.Snapshot{
		Seq:     st.Seq,
		Hash:    st.Head,
		TakenAt: e.now().UTC(),
		State:   raw,
	}, nil
}

// Restore replaces the whole state with a snapshot. It is meant to run
// before any call is submitted.
func (e *Engine) Restore(snap domain.Snapshot) error {
	var st State
	if err := json.Unmarshal(snap.State, &st); err != nil {
		return fmt.Errorf("engine: decode snapshot: %w", err)
	}
	if st.Seq != snap.Seq || st.Head != snap.Hash {
		return fmt.Errorf("engine: snapshot header seq %d does not match body seq %d: %w", snap.Seq, st.Seq, domain.ErrHashMismatch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.token.Import(st.Token)
	e.native.Import(st.Native)
	e.registry.Import(st.Registry)
	e.market.Import(st.Market)
	e.book.Import(st.Book)
	e.seq = st.Seq
	e.head = st.Head
	return nil
}
