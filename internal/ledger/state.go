package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is the serializable content of a Ledger. Configuration is not part
// of it; a snapshot is restored into a ledger built from the same config.
type State struct {
	Balances   map[common.Address]*uint256.Int                    `json:"balances"`
	Allowances map[common.Address]map[common.Address]*uint256.Int `json:"allowances"`
	Claimed    map[common.Address]bool                            `json:"claimed"`
	Nonces     map[common.Address]uint64                          `json:"nonces"`
	Supply     *uint256.Int                                       `json:"supply"`
}

// Export copies the ledger content.
func (l *Ledger) Export() State {
	s := State{
		Balances:   make(map[common.Address]*uint256.Int, len(l.balances)),
		Allowances: make(map[common.Address]map[common.Address]*uint256.Int, len(l.allowances)),
		Claimed:    make(map[common.Address]bool, len(l.claimed)),
		Nonces:     make(map[common.Address]uint64, len(l.nonces)),
		Supply:     l.supply.Clone(),
	}
	for a, v := range l.balances {
		if !v.IsZero() {
			s.Balances[a] = v.Clone()
		}
	}
	for owner, m := range l.allowances {
		inner := make(map[common.Address]*uint256.Int, len(m))
		for spender, v := range m {
			if !v.IsZero() {
				inner[spender] = v.Clone()
			}
		}
		if len(inner) > 0 {
			s.Allowances[owner] = inner
		}
	}
	for a, ok := range l.claimed {
		if ok {
			s.Claimed[a] = true
		}
	}
	for a, n := range l.nonces {
		s.Nonces[a] = n
	}
	return s
}

// Import replaces the ledger content with s.
func (l *Ledger) Import(s State) {
	l.balances = make(map[common.Address]*uint256.Int, len(s.Balances))
	l.allowances = make(map[common.Address]map[common.Address]*uint256.Int, len(s.Allowances))
	l.claimed = make(map[common.Address]bool, len(s.Claimed))
	l.nonces = make(map[common.Address]uint64, len(s.Nonces))
	l.supply = orZero(s.Supply).Clone()

	for a, v := range s.Balances {
		l.balances[a] = orZero(v).Clone()
	}
	for owner, m := range s.Allowances {
		inner := make(map[common.Address]*uint256.Int, len(m))
		for spender, v := range m {
			inner[spender] = orZero(v).Clone()
		}
		l.allowances[owner] = inner
	}
	for a, ok := range s.Claimed {
		if ok {
			l.claimed[a] = true
		}
	}
	for a, n := range s.Nonces {
		l.nonces[a] = n
	}
}
