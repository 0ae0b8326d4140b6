// Package store holds the flat row form of journal entries shared by the
// SQL backends.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// EntryRow is a journal entry as stored in a SQL table. Params and Events
// stay text so the hashed bytes survive a round trip.
type EntryRow struct {
	Seq       int64
	Method    string
	Caller    string
	Value     string
	Params    string
	At        time.Time
	Events    string
	PrevHash  []byte
	Hash      []byte
	Signature []byte
}

// EventRow is one indexed event.
type EventRow struct {
	Seq       int64
	Index     int
	Kind      string
	ProjectID *int64
	TicketID  *int64
	Data      string
	At        time.Time
}

// ToRow flattens an entry.
func ToRow(e domain.JournalEntry) (EntryRow, []EventRow, error) {
	events, err := json.Marshal(e.Events)
	if err != nil {
		return EntryRow{}, nil, fmt.Errorf("store: encode events of %d: %w", e.Call.Seq, err)
	}
	value := "0"
	if e.Call.Value != nil {
		value = e.Call.Value.Dec()
	}
	row := EntryRow{
		Seq:       int64(e.Call.Seq),
		Method:    string(e.Call.Method),
		Caller:    e.Call.Caller.Hex(),
		Value:     value,
		Params:    string(e.Call.Params),
		At:        e.Call.At.UTC(),
		Events:    string(events),
		PrevHash:  e.PrevHash.Bytes(),
		Hash:      e.Hash.Bytes(),
		Signature: e.Signature,
	}

	rows := make([]EventRow, 0, len(e.Events))
	for _, ev := range e.Events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return EntryRow{}, nil, fmt.Errorf("store: encode %s: %w", ev.Kind, err)
		}
		pid, tid := domain.EventRefs(ev.Data)
		rows = append(rows, EventRow{
			Seq:       int64(ev.Seq),
			Index:     ev.Index,
			Kind:      string(ev.Kind),
			ProjectID: toInt64(pid),
			TicketID:  toInt64(tid),
			Data:      string(data),
			At:        ev.At.UTC(),
		})
	}
	return row, rows, nil
}

// FromRow rebuilds an entry.
func FromRow(r EntryRow) (domain.JournalEntry, error) {
	value, err := uint256.FromDecimal(r.Value)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("store: value of %d: %w", r.Seq, err)
	}
	var events []domain.EventRecord
	if err := json.Unmarshal([]byte(r.Events), &events); err != nil {
		return domain.JournalEntry{}, fmt.Errorf("store: events of %d: %w", r.Seq, err)
	}
	return domain.JournalEntry{
		Call: domain.Call{
			Seq:    uint64(r.Seq),
			Method: domain.Method(r.Method),
			Caller: common.HexToAddress(r.Caller),
			Value:  value,
			Params: json.RawMessage(r.Params),
			At:     r.At.UTC(),
		},
		Events:    events,
		PrevHash:  common.BytesToHash(r.PrevHash),
		Hash:      common.BytesToHash(r.Hash),
		Signature: r.Signature,
	}, nil
}

// FromEventRow converts an indexed event.
func FromEventRow(r EventRow) domain.StoredEvent {
	return domain.StoredEvent{
		Seq:       uint64(r.Seq),
		Index:     r.Index,
		Kind:      domain.EventKind(r.Kind),
		ProjectID: toUint64(r.ProjectID),
		TicketID:  toUint64(r.TicketID),
		Data:      json.RawMessage(r.Data),
		At:        r.At.UTC(),
	}
}

func toInt64(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func toUint64(v *int64) *uint64 {
	if v == nil {
		return nil
	}
	n := uint64(*v)
	return &n
}
