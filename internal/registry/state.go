package registry

import (
	"github.com/ethereum/go-ethereum/common"
)

// AssetState is one entry of the asset arena.
type AssetState struct {
	ProjectID uint64         `json:"project_id"`
	OptionID  uint64         `json:"option_id"`
	Owner     common.Address `json:"owner"`
	Burned    bool           `json:"burned,omitempty"`
}

// State is the serializable content of a Registry. Enumeration indexes are
// derived from the arena on import.
type State struct {
	Assets    []AssetState                               `json:"assets"`
	Approvals map[uint64]common.Address                  `json:"approvals"`
	Operators map[common.Address]map[common.Address]bool `json:"operators"`
	Nonces    map[uint64]uint64                          `json:"nonces"`
}

// Export copies the registry content.
func (r *Registry) Export() State {
	s := State{
		Assets:    make([]AssetState, len(r.assets)),
		Approvals: make(map[uint64]common.Address, len(r.approvals)),
		Operators: make(map[common.Address]map[common.Address]bool, len(r.operators)),
		Nonces:    make(map[uint64]uint64, len(r.nonces)),
	}
	for i, a := range r.assets {
		s.Assets[i] = AssetState{ProjectID: a.tag.ProjectID, OptionID: a.tag.OptionID, Owner: a.owner, Burned: a.burned}
	}
	for id, a := range r.approvals {
		s.Approvals[id] = a
	}
	for owner, ops := range r.operators {
		if len(ops) == 0 {
			continue
		}
		m := make(map[common.Address]bool, len(ops))
		for op, ok := range ops {
			m[op] = ok
		}
		s.Operators[owner] = m
	}
	for id, n := range r.nonces {
		s.Nonces[id] = n
	}
	return s
}

// Import replaces the registry content with s and rebuilds the indexes.
func (r *Registry) Import(s State) {
	r.assets = make([]asset, len(s.Assets))
	r.byOwner = make(map[common.Address][]uint64)
	r.live = nil
	r.approvals = make(map[uint64]common.Address, len(s.Approvals))
	r.operators = make(map[common.Address]map[common.Address]bool, len(s.Operators))
	r.nonces = make(map[uint64]uint64, len(s.Nonces))

	for i, a := range s.Assets {
		id := uint64(i)
		r.assets[i] = asset{tag: Tag{ProjectID: a.ProjectID, OptionID: a.OptionID}, owner: a.Owner, burned: a.Burned}
		if a.Burned {
			continue
		}
		// Ids ascend, so appending keeps every index sorted.
		r.live = append(r.live, id)
		r.byOwner[a.Owner] = append(r.byOwner[a.Owner], id)
	}
	for id, a := range s.Approvals {
		r.approvals[id] = a
	}
	for owner, ops := range s.Operators {
		m := make(map[common.Address]bool, len(ops))
		for op, ok := range ops {
			if ok {
				m[op] = true
			}
		}
		r.operators[owner] = m
	}
	for id, n := range s.Nonces {
		r.nonces[id] = n
	}
}
