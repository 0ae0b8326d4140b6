// Package market manages betting projects: creation with an optional seed,
// ticket purchases into per-option pools, resolution and proportional prize
// claims.
package market

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/registry"
	"github.com/alanyoungcy/easybet/internal/txn"
)

// Stake is the manager-side record of a ticket. The owner lives in the
// registry.
type Stake struct {
	ProjectID uint64       `json:"project_id"`
	OptionID  uint64       `json:"option_id"`
	Amount    *uint256.Int `json:"amount"`
	Claimed   bool         `json:"claimed"`
}

type optionKey struct {
	project uint64
	option  uint64
}

// Manager holds every project and custody of every pool. Pool funds sit in
// the manager's account on the ledger of the project's currency.
type Manager struct {
	addr     common.Address
	token    *ledger.Ledger
	native   *ledger.Ledger
	registry *registry.Registry

	projects      []*domain.Project
	stakes        []Stake
	optionTickets map[optionKey][]uint64
}

// NewManager creates a manager that custodies pools at addr and mints
// tickets through reg. The registry must name addr as its manager.
func NewManager(addr common.Address, token, native *ledger.Ledger, reg *registry.Registry) *Manager {
	return &Manager{
		addr:          addr,
		token:         token,
		native:        native,
		registry:      reg,
		optionTickets: make(map[optionKey][]uint64),
	}
}

// Address is the manager's custody account.
func (m *Manager) Address() common.Address { return m.addr }

// CreateProjectInput holds the arguments of CreateProject.
type CreateProjectInput struct {
	Name     string
	Options  []string
	EndTime  time.Time
	UseToken bool
	Seed     *uint256.Int
}

// CreateProject opens a project. A non-zero seed is paid by the creator and
// counts toward the total pool only.
func (m *Manager) CreateProject(tx *txn.Tx, creator common.Address, value *uint256.Int, in CreateProjectInput) (uint64, error) {
	if len(in.Options) < 2 {
		return 0, domain.ErrInvalidOptions
	}
	if !in.EndTime.After(tx.Now()) {
		return 0, domain.ErrInvalidDeadline
	}
	seed := orZero(in.Seed)
	if err := m.collect(tx, in.UseToken, creator, value, seed); err != nil {
		return 0, err
	}

	id := uint64(len(m.projects))
	pools := make([]*uint256.Int, len(in.Options))
	for i := range pools {
		pools[i] = new(uint256.Int)
	}
	p := &domain.Project{
		ID:          id,
		Name:        in.Name,
		Options:     slices.Clone(in.Options),
		EndTime:     in.EndTime,
		TotalPool:   seed.Clone(),
		Seed:        seed.Clone(),
		OptionPools: pools,
		Creator:     creator,
		UseToken:    in.UseToken,
	}
	m.projects = append(m.projects, p)
	tx.OnRollback(func() { m.projects = m.projects[:id] })

	tx.Emit(domain.ProjectCreated{
		ProjectID: id,
		Name:      p.Name,
		Options:   slices.Clone(p.Options),
		EndTime:   p.EndTime,
		TotalPool: p.TotalPool.Clone(),
		UseToken:  p.UseToken,
		Creator:   creator,
	})
	return id, nil
}

// BuyTicket stakes amount on one option and mints a ticket to the buyer.
func (m *Manager) BuyTicket(tx *txn.Tx, buyer common.Address, value *uint256.Int, projectID, optionID uint64, amount *uint256.Int) (uint64, error) {
	p, err := m.project(projectID)
	if err != nil {
		return 0, err
	}
	if p.Finished {
		return 0, domain.ErrProjectFinished
	}
	if !tx.Now().Before(p.EndTime) {
		return 0, domain.ErrProjectExpired
	}
	if optionID >= uint64(len(p.Options)) {
		return 0, domain.ErrInvalidOption
	}
	if amount == nil || amount.IsZero() {
		return 0, domain.ErrInvalidAmount
	}
	if err := m.collect(tx, p.UseToken, buyer, value, amount); err != nil {
		return 0, err
	}

	id, err := m.registry.Mint(tx, m.addr, buyer, registry.Tag{ProjectID: projectID, OptionID: optionID})
	if err != nil {
		return 0, fmt.Errorf("market: mint ticket: %w", err)
	}
	if id != uint64(len(m.stakes)) {
		return 0, fmt.Errorf("market: ticket id %d out of step with %d stakes", id, len(m.stakes))
	}
	m.stakes = append(m.stakes, Stake{ProjectID: projectID, OptionID: optionID, Amount: amount.Clone()})
	tx.OnRollback(func() { m.stakes = m.stakes[:id] })

	key := optionKey{projectID, optionID}
	m.optionTickets[key] = append(m.optionTickets[key], id)
	tx.OnRollback(func() {
		ids := m.optionTickets[key]
		ids = ids[:len(ids)-1]
		if len(ids) == 0 {
			delete(m.optionTickets, key)
			return
		}
		m.optionTickets[key] = ids
	})

	oldPool, oldTotal := p.OptionPools[optionID], p.TotalPool
	p.OptionPools[optionID] = new(uint256.Int).Add(oldPool, amount)
	p.TotalPool = new(uint256.Int).Add(oldTotal, amount)
	tx.OnRollback(func() {
		p.OptionPools[optionID] = oldPool
		p.TotalPool = oldTotal
	})

	tx.Emit(domain.TicketBought{
		User:      buyer,
		ProjectID: projectID,
		OptionID:  optionID,
		TicketID:  id,
		Amount:    amount.Clone(),
		UseToken:  p.UseToken,
	})
	return id, nil
}

// SetResult resolves a project after its deadline.
func (m *Manager) SetResult(tx *txn.Tx, caller common.Address, projectID, winningOption uint64) error {
	return m.resolve(tx, caller, projectID, winningOption, false)
}

// EndProject resolves a project before its deadline.
func (m *Manager) EndProject(tx *txn.Tx, caller common.Address, projectID, winningOption uint64) error {
	return m.resolve(tx, caller, projectID, winningOption, true)
}

func (m *Manager) resolve(tx *txn.Tx, caller common.Address, projectID, winningOption uint64, early bool) error {
	p, err := m.project(projectID)
	if err != nil {
		return err
	}
	if caller != p.Creator {
		return domain.ErrNotCreator
	}
	if p.Finished {
		return domain.ErrAlreadyFinished
	}
	beforeEnd := tx.Now().Before(p.EndTime)
	if early && !beforeEnd {
		return domain.ErrTooLate
	}
	if !early && beforeEnd {
		return domain.ErrTooEarly
	}
	if winningOption >= uint64(len(p.Options)) {
		return domain.ErrInvalidOption
	}

	p.Finished = true
	win := winningOption
	p.WinningOption = &win
	tx.OnRollback(func() {
		p.Finished = false
		p.WinningOption = nil
	})

	tx.Emit(domain.ProjectFinished{ProjectID: projectID, WinningOption: winningOption, Early: early})
	return nil
}

// ClaimPrize pays the caller for every unclaimed winning ticket it currently
// owns in the project. It returns the total payout and the tickets claimed.
func (m *Manager) ClaimPrize(tx *txn.Tx, caller common.Address, projectID uint64) (*uint256.Int, []uint64, error) {
	p, err := m.project(projectID)
	if err != nil {
		return nil, nil, err
	}
	if !p.Finished {
		return nil, nil, domain.ErrProjectNotFinished
	}
	ids, payouts := m.winnings(p, caller)
	if len(ids) == 0 {
		return nil, nil, domain.ErrNothingToClaim
	}

	total := new(uint256.Int)
	for i, id := range ids {
		m.stakes[id].Claimed = true
		tx.OnRollback(func() { m.stakes[id].Claimed = false })
		total.Add(total, payouts[i])
		tx.Emit(domain.RewardClaimed{
			User:      caller,
			ProjectID: projectID,
			TicketID:  id,
			Amount:    payouts[i].Clone(),
			UseToken:  p.UseToken,
		})
	}

	if err := m.ledgerFor(p.UseToken).Transfer(tx, m.addr, caller, total); err != nil {
		return nil, nil, fmt.Errorf("market: pay out: %w", err)
	}
	return total, ids, nil
}

// PreviewClaim reports what ClaimPrize would pay account now.
func (m *Manager) PreviewClaim(projectID uint64, account common.Address) (domain.ClaimPreview, error) {
	p, err := m.project(projectID)
	if err != nil {
		return domain.ClaimPreview{}, err
	}
	preview := domain.ClaimPreview{ProjectID: projectID, Account: account, TicketIDs: []uint64{}, Payout: new(uint256.Int)}
	if !p.Finished {
		return preview, nil
	}
	ids, payouts := m.winnings(p, account)
	preview.TicketIDs = append(preview.TicketIDs, ids...)
	for _, v := range payouts {
		preview.Payout.Add(preview.Payout, v)
	}
	return preview, nil
}

// winnings lists the unclaimed winning tickets account owns in p and the
// payout of each: amount * totalPool / winningPool, truncated.
func (m *Manager) winnings(p *domain.Project, account common.Address) ([]uint64, []*uint256.Int) {
	win := *p.WinningOption
	winPool := p.OptionPools[win]
	if winPool.IsZero() {
		return nil, nil
	}
	var (
		ids     []uint64
		payouts []*uint256.Int
	)
	for _, id := range m.registry.TicketsOf(account) {
		s := m.stakes[id]
		if s.ProjectID != p.ID || s.OptionID != win || s.Claimed {
			continue
		}
		// amount <= winPool, so the quotient never exceeds totalPool.
		v, _ := new(uint256.Int).MulDivOverflow(s.Amount, p.TotalPool, winPool)
		ids = append(ids, id)
		payouts = append(payouts, v)
	}
	return ids, payouts
}

// collect moves amount from payer into the manager account. Native calls
// must attach at least amount; token calls must have approved the manager
// for at least amount.
func (m *Manager) collect(tx *txn.Tx, useToken bool, payer common.Address, value, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if useToken {
		if m.token.Allowance(payer, m.addr).Lt(amount) {
			return domain.ErrInsufficientPayment
		}
		return m.token.TransferFrom(tx, m.addr, payer, m.addr, amount)
	}
	if orZero(value).Lt(amount) {
		return domain.ErrInsufficientPayment
	}
	return m.native.Deposit(tx, m.addr, payer, amount)
}

func (m *Manager) ledgerFor(useToken bool) *ledger.Ledger {
	if useToken {
		return m.token
	}
	return m.native
}

func (m *Manager) project(id uint64) (*domain.Project, error) {
	if id >= uint64(len(m.projects)) {
		return nil, domain.ErrProjectNotFound
	}
	return m.projects[id], nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
