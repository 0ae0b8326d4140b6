// Package registry is the ticket asset registry: unique, enumerable assets
// tagged with the (project, option) they stake on, with ownership, single
// and operator approvals, burning and signed permits.
package registry

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/txn"
)

// Config describes the registry.
type Config struct {
	Name    string
	ChainID uint64
	// Address is the registry's own account and permit verifying contract.
	Address common.Address
	// Manager is the only account allowed to mint.
	Manager common.Address
	// Custody lists system accounts that hold tickets on behalf of users,
	// such as the exchange escrow. Only the account itself may move a
	// ticket into it.
	Custody []common.Address
}

// Tag binds an asset to the outcome it stakes on. It never changes.
type Tag struct {
	ProjectID uint64 `json:"project_id"`
	OptionID  uint64 `json:"option_id"`
}

type asset struct {
	tag    Tag
	owner  common.Address
	burned bool
}

// Registry owns every ticket asset. Ids are sequential from 0 and are never
// reused, including after a burn.
type Registry struct {
	cfg    Config
	domain crypto.Domain

	assets    []asset
	byOwner   map[common.Address][]uint64 // sorted ascending
	live      []uint64                    // sorted ascending
	approvals map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
	nonces    map[uint64]uint64
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	return &Registry{
		cfg: cfg,
		domain: crypto.Domain{
			Name:              cfg.Name,
			Version:           "1",
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		},
		byOwner:   make(map[common.Address][]uint64),
		approvals: make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		nonces:    make(map[uint64]uint64),
	}
}

// Address is the registry's own account.
func (r *Registry) Address() common.Address { return r.cfg.Address }

// Manager is the account allowed to mint.
func (r *Registry) Manager() common.Address { return r.cfg.Manager }

// Domain is the EIP-712 domain ticket permits are signed under.
func (r *Registry) Domain() crypto.Domain { return r.domain }

// NextID is the id the next mint will receive.
func (r *Registry) NextID() uint64 { return uint64(len(r.assets)) }

// Exists reports whether id was minted and not burned.
func (r *Registry) Exists(id uint64) bool {
	return id < uint64(len(r.assets)) && !r.assets[id].burned
}

// OwnerOf returns the current owner of id.
func (r *Registry) OwnerOf(id uint64) (common.Address, error) {
	if !r.Exists(id) {
		return common.Address{}, domain.ErrTicketNotFound
	}
	return r.assets[id].owner, nil
}

// TicketInfo returns the immutable tag of id.
func (r *Registry) TicketInfo(id uint64) (Tag, error) {
	if !r.Exists(id) {
		return Tag{}, domain.ErrTicketNotFound
	}
	return r.assets[id].tag, nil
}

// BalanceOf is the number of assets owner holds.
func (r *Registry) BalanceOf(owner common.Address) uint64 {
	return uint64(len(r.byOwner[owner]))
}

// TokenOfOwnerByIndex returns the i-th asset of owner in ascending id order.
func (r *Registry) TokenOfOwnerByIndex(owner common.Address, i uint64) (uint64, error) {
	ids := r.byOwner[owner]
	if i >= uint64(len(ids)) {
		return 0, domain.ErrIndexOutOfRange
	}
	return ids[i], nil
}

// TicketsOf returns a copy of owner's asset ids.
func (r *Registry) TicketsOf(owner common.Address) []uint64 {
	return slices.Clone(r.byOwner[owner])
}

// TotalSupply is the number of live (unburned) assets.
func (r *Registry) TotalSupply() uint64 { return uint64(len(r.live)) }

// TokenByIndex returns the i-th live asset in ascending id order.
func (r *Registry) TokenByIndex(i uint64) (uint64, error) {
	if i >= uint64(len(r.live)) {
		return 0, domain.ErrIndexOutOfRange
	}
	return r.live[i], nil
}

// GetApproved returns the single approved account of id, or the zero address.
func (r *Registry) GetApproved(id uint64) (common.Address, error) {
	if !r.Exists(id) {
		return common.Address{}, domain.ErrTicketNotFound
	}
	return r.approvals[id], nil
}

// IsApprovedForAll reports whether operator may manage all of owner's assets.
func (r *Registry) IsApprovedForAll(owner, operator common.Address) bool {
	return r.operators[owner][operator]
}

// Nonce is the next permit nonce of id.
func (r *Registry) Nonce(id uint64) uint64 { return r.nonces[id] }

// IsAuthorized reports whether spender may move id: the owner, the approved
// account, or an operator of the owner.
func (r *Registry) IsAuthorized(spender common.Address, id uint64) bool {
	if !r.Exists(id) {
		return false
	}
	owner := r.assets[id].owner
	if spender == owner || r.operators[owner][spender] {
		return true
	}
	approved, ok := r.approvals[id]
	return ok && approved == spender
}

// Mint creates a new asset for to. Only the manager may mint.
func (r *Registry) Mint(tx *txn.Tx, caller, to common.Address, tag Tag) (uint64, error) {
	if caller != r.cfg.Manager {
		return 0, domain.ErrNotManager
	}
	if to == (common.Address{}) {
		return 0, domain.ErrInvalidRecipient
	}

	id := uint64(len(r.assets))
	r.assets = append(r.assets, asset{tag: tag, owner: to})
	tx.OnRollback(func() { r.assets = r.assets[:id] })
	r.addLive(tx, id)
	r.addToOwner(tx, to, id)

	tx.Emit(domain.TicketTransfer{To: to, TicketID: id})
	return id, nil
}

// TransferFrom moves id from from to to on behalf of caller. The single
// approval is cleared. A custody account only receives tickets it moves
// itself.
func (r *Registry) TransferFrom(tx *txn.Tx, caller, from, to common.Address, id uint64) error {
	if to == (common.Address{}) || (caller != to && slices.Contains(r.cfg.Custody, to)) {
		return domain.ErrInvalidRecipient
	}
	if !r.Exists(id) {
		return domain.ErrTicketNotFound
	}
	if !r.IsAuthorized(caller, id) {
		return domain.ErrNotApproved
	}
	if r.assets[id].owner != from {
		return domain.ErrNotOwner
	}

	r.clearApproval(tx, id)
	r.setOwner(tx, id, to)
	tx.Emit(domain.TicketTransfer{From: from, To: to, TicketID: id})
	return nil
}

// Approve sets the single approved account of id. Only the owner or one of
// its operators may approve.
func (r *Registry) Approve(tx *txn.Tx, caller, to common.Address, id uint64) error {
	if !r.Exists(id) {
		return domain.ErrTicketNotFound
	}
	owner := r.assets[id].owner
	if caller != owner && !r.operators[owner][caller] {
		return domain.ErrNotOwner
	}
	r.setApproval(tx, id, to)
	tx.Emit(domain.TicketApproval{Owner: owner, Approved: to, TicketID: id})
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of owner's
// assets.
func (r *Registry) SetApprovalForAll(tx *txn.Tx, owner, operator common.Address, approved bool) error {
	if operator == (common.Address{}) || operator == owner {
		return domain.ErrInvalidRecipient
	}
	m, ok := r.operators[owner]
	if !ok {
		m = make(map[common.Address]bool)
		r.operators[owner] = m
	}
	old, had := m[operator]
	tx.OnRollback(func() {
		if had {
			m[operator] = old
		} else {
			delete(m, operator)
		}
	})
	if approved {
		m[operator] = true
	} else {
		delete(m, operator)
	}
	tx.Emit(domain.OperatorApproval{Owner: owner, Operator: operator, Approved: approved})
	return nil
}

// Burn destroys id. The id is not reused.
func (r *Registry) Burn(tx *txn.Tx, caller common.Address, id uint64) error {
	if !r.Exists(id) {
		return domain.ErrTicketNotFound
	}
	if !r.IsAuthorized(caller, id) {
		return domain.ErrNotApproved
	}
	owner := r.assets[id].owner

	r.clearApproval(tx, id)
	r.removeFromOwner(tx, owner, id)
	r.removeLive(tx, id)
	r.assets[id].burned = true
	tx.OnRollback(func() { r.assets[id].burned = false })

	tx.Emit(domain.TicketTransfer{From: owner, TicketID: id})
	return nil
}

// Permit verifies a signed ticket permit and approves its spender. The
// signer must be the owner or an operator of the owner. The ticket's nonce
// is consumed.
func (r *Registry) Permit(tx *txn.Tx, p domain.TicketPermit) error {
	if !r.Exists(p.TicketID) {
		return domain.ErrTicketNotFound
	}
	if uint64(tx.Now().Unix()) > p.Deadline {
		return domain.ErrPermitExpired
	}
	nonce := r.nonces[p.TicketID]
	digest := crypto.TicketPermitDigest(r.domain, p.Spender, p.TicketID, nonce, p.Deadline)
	signer, err := crypto.Recover(digest, p.Signature)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	owner := r.assets[p.TicketID].owner
	if signer != owner && !r.operators[owner][signer] {
		return domain.ErrInvalidSignature
	}

	r.nonces[p.TicketID] = nonce + 1
	tx.OnRollback(func() { r.nonces[p.TicketID] = nonce })

	r.setApproval(tx, p.TicketID, p.Spender)
	tx.Emit(domain.TicketApproval{Owner: owner, Approved: p.Spender, TicketID: p.TicketID})
	return nil
}

func (r *Registry) setOwner(tx *txn.Tx, id uint64, to common.Address) {
	from := r.assets[id].owner
	if from == to {
		return
	}
	r.removeFromOwner(tx, from, id)
	r.addToOwner(tx, to, id)
	r.assets[id].owner = to
	tx.OnRollback(func() { r.assets[id].owner = from })
}

func (r *Registry) setApproval(tx *txn.Tx, id uint64, to common.Address) {
	old, had := r.approvals[id]
	tx.OnRollback(func() {
		if had {
			r.approvals[id] = old
		} else {
			delete(r.approvals, id)
		}
	})
	if to == (common.Address{}) {
		delete(r.approvals, id)
	} else {
		r.approvals[id] = to
	}
}

func (r *Registry) clearApproval(tx *txn.Tx, id uint64) {
	if _, ok := r.approvals[id]; ok {
		r.setApproval(tx, id, common.Address{})
	}
}

func (r *Registry) addToOwner(tx *txn.Tx, owner common.Address, id uint64) {
	r.setOwnerIndex(owner, insertSorted(r.byOwner[owner], id))
	tx.OnRollback(func() { r.setOwnerIndex(owner, deleteSorted(r.byOwner[owner], id)) })
}

func (r *Registry) removeFromOwner(tx *txn.Tx, owner common.Address, id uint64) {
	r.setOwnerIndex(owner, deleteSorted(r.byOwner[owner], id))
	tx.OnRollback(func() { r.setOwnerIndex(owner, insertSorted(r.byOwner[owner], id)) })
}

func (r *Registry) addLive(tx *txn.Tx, id uint64) {
	r.live = insertSorted(r.live, id)
	tx.OnRollback(func() { r.live = deleteSorted(r.live, id) })
}

func (r *Registry) removeLive(tx *txn.Tx, id uint64) {
	r.live = deleteSorted(r.live, id)
	tx.OnRollback(func() { r.live = insertSorted(r.live, id) })
}

func (r *Registry) setOwnerIndex(owner common.Address, ids []uint64) {
	if len(ids) == 0 {
		delete(r.byOwner, owner)
		return
	}
	r.byOwner[owner] = ids
}

func insertSorted(s []uint64, id uint64) []uint64 {
	i, found := slices.BinarySearch(s, id)
	if found {
		return s
	}
	return slices.Insert(s, i, id)
}

func deleteSorted(s []uint64, id uint64) []uint64 {
	i, found := slices.BinarySearch(s, id)
	if !found {
		return s
	}
	return slices.Delete(s, i, i+1)
}
