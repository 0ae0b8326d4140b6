// Package ledger implements the fungible balance ledger: transfers, the
// approve-then-pull allowance pattern, a one-shot faucet, owner minting and
// signed single-use permits. The same type backs the native value ledger.
package ledger

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/txn"
)

// Config describes one ledger.
type Config struct {
	// Asset is the symbol carried in transfer events.
	Asset    string
	Name     string
	Decimals uint8
	ChainID  uint64
	// Address is the ledger's own account; it is the permit verifying contract.
	Address common.Address
	// Owner may mint. The zero address disables minting.
	Owner common.Address
	// Faucet is the amount credited by Claim. Nil or zero disables the faucet.
	Faucet *uint256.Int
	// Custody lists system accounts whose balances back open positions.
	// Only the account itself may move funds into it.
	Custody []common.Address
}

// Ledger holds balances for one asset. It is not safe for concurrent use;
// the engine serializes access.
type Ledger struct {
	cfg        Config
	domain     crypto.Domain
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	claimed    map[common.Address]bool
	nonces     map[common.Address]uint64
	supply     *uint256.Int
}

// New creates an empty ledger.
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg: cfg,
		domain: crypto.Domain{
			Name:              cfg.Name,
			Version:           "1",
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		},
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		claimed:    make(map[common.Address]bool),
		nonces:     make(map[common.Address]uint64),
		supply:     new(uint256.Int),
	}
}

// Asset is the symbol carried in transfer events.
func (l *Ledger) Asset() string { return l.cfg.Asset }

// Name is the display name, also the permit domain name.
func (l *Ledger) Name() string { return l.cfg.Name }

// Decimals is the display precision of amounts.
func (l *Ledger) Decimals() uint8 { return l.cfg.Decimals }

// Address is the ledger's own account.
func (l *Ledger) Address() common.Address { return l.cfg.Address }

// Domain is the EIP-712 domain permits for this ledger are signed under.
func (l *Ledger) Domain() crypto.Domain { return l.domain }

// FaucetAmount returns the per-account faucet credit (zero when disabled).
func (l *Ledger) FaucetAmount() *uint256.Int {
	if l.cfg.Faucet == nil {
		return new(uint256.Int)
	}
	return l.cfg.Faucet.Clone()
}

// BalanceOf returns a copy of the balance of a.
func (l *Ledger) BalanceOf(a common.Address) *uint256.Int {
	if b, ok := l.balances[a]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns how much spender may still pull from owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	if v, ok := l.allowances[owner][spender]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply is the sum of all balances.
func (l *Ledger) TotalSupply() *uint256.Int { return l.supply.Clone() }

// HasClaimed reports whether a already used the faucet.
func (l *Ledger) HasClaimed(a common.Address) bool { return l.claimed[a] }

// Nonce is the next permit nonce for owner.
func (l *Ledger) Nonce(owner common.Address) uint64 { return l.nonces[owner] }

// Claim credits the faucet amount to who, once per account.
func (l *Ledger) Claim(tx *txn.Tx, who common.Address) error {
	if l.cfg.Faucet == nil || l.cfg.Faucet.IsZero() {
		return domain.ErrInvalidAmount
	}
	if l.claimed[who] {
		return domain.ErrAlreadyClaimed
	}
	l.claimed[who] = true
	tx.OnRollback(func() { delete(l.claimed, who) })

	if err := l.credit(tx, who, l.cfg.Faucet); err != nil {
		return err
	}
	tx.Emit(domain.FaucetClaimed{Account: who, Amount: l.cfg.Faucet.Clone()})
	return nil
}

// Mint creates amount for to. Only the configured owner may mint.
func (l *Ledger) Mint(tx *txn.Tx, caller, to common.Address, amount *uint256.Int) error {
	if l.cfg.Owner == (common.Address{}) || caller != l.cfg.Owner {
		return domain.ErrNotMinter
	}
	if to == (common.Address{}) {
		return domain.ErrInvalidRecipient
	}
	return l.credit(tx, to, amount)
}

// Credit creates amount for to without an authorization check. It is used
// for genesis allocations.
func (l *Ledger) Credit(tx *txn.Tx, to common.Address, amount *uint256.Int) error {
	return l.credit(tx, to, amount)
}

// Transfer moves amount from from to to. Custody accounts are refused as
// recipients; they are funded through Deposit.
func (l *Ledger) Transfer(tx *txn.Tx, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) || (from != to && l.isCustody(to)) {
		return domain.ErrInvalidRecipient
	}
	return l.move(tx, from, to, amount)
}

// Deposit moves amount from payer into the custody account custodian, on
// the custodian's behalf.
func (l *Ledger) Deposit(tx *txn.Tx, custodian, payer common.Address, amount *uint256.Int) error {
	if custodian == (common.Address{}) {
		return domain.ErrInvalidRecipient
	}
	return l.move(tx, payer, custodian, amount)
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(tx *txn.Tx, owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return domain.ErrInvalidRecipient
	}
	l.setAllowance(tx, owner, spender, orZero(amount))
	tx.Emit(domain.TokenApproval{Asset: l.cfg.Asset, Owner: owner, Spender: spender, Amount: orZero(amount).Clone()})
	return nil
}

// TransferFrom pulls amount from from to to on behalf of spender, consuming
// allowance.
func (l *Ledger) TransferFrom(tx *txn.Tx, spender, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) || (spender != to && l.isCustody(to)) {
		return domain.ErrInvalidRecipient
	}
	amount = orZero(amount)
	allowed := l.Allowance(from, spender)
	if allowed.Lt(amount) {
		return domain.ErrInsufficientAllowance
	}
	if l.BalanceOf(from).Lt(amount) {
		return domain.ErrInsufficientBalance
	}
	l.setAllowance(tx, from, spender, new(uint256.Int).Sub(allowed, amount))
	return l.move(tx, from, to, amount)
}

// Permit verifies a signed permit and sets the allowance it grants. The
// owner's nonce is consumed, so a permit can be used once.
func (l *Ledger) Permit(tx *txn.Tx, p domain.TokenPermit) error {
	if uint64(tx.Now().Unix()) > p.Deadline {
		return domain.ErrPermitExpired
	}
	nonce := l.nonces[p.Owner]
	digest := crypto.TokenPermitDigest(l.domain, p.Owner, p.Spender, orZero(p.Value), nonce, p.Deadline)
	signer, err := crypto.Recover(digest, p.Signature)
	if err != nil || signer != p.Owner {
		return domain.ErrInvalidSignature
	}

	l.nonces[p.Owner] = nonce + 1
	tx.OnRollback(func() { l.nonces[p.Owner] = nonce })

	return l.Approve(tx, p.Owner, p.Spender, p.Value)
}

func (l *Ledger) credit(tx *txn.Tx, to common.Address, amount *uint256.Int) error {
	amount = orZero(amount)
	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return domain.ErrInvalidAmount
	}
	bal, overflow := new(uint256.Int).AddOverflow(l.BalanceOf(to), amount)
	if overflow {
		return domain.ErrInvalidAmount
	}
	old := l.supply
	l.supply = supply
	tx.OnRollback(func() { l.supply = old })
	l.setBalance(tx, to, bal)
	tx.Emit(domain.TokenTransfer{Asset: l.cfg.Asset, To: to, Amount: amount.Clone()})
	return nil
}

func (l *Ledger) isCustody(a common.Address) bool {
	return slices.Contains(l.cfg.Custody, a)
}

func (l *Ledger) move(tx *txn.Tx, from, to common.Address, amount *uint256.Int) error {
	amount = orZero(amount)
	fromBal := l.BalanceOf(from)
	if fromBal.Lt(amount) {
		return domain.ErrInsufficientBalance
	}
	if from != to {
		l.setBalance(tx, from, new(uint256.Int).Sub(fromBal, amount))
		// Cannot overflow: the sum of balances equals supply.
		l.setBalance(tx, to, new(uint256.Int).Add(l.BalanceOf(to), amount))
	}
	tx.Emit(domain.TokenTransfer{Asset: l.cfg.Asset, From: from, To: to, Amount: amount.Clone()})
	return nil
}

func (l *Ledger) setBalance(tx *txn.Tx, a common.Address, v *uint256.Int) {
	old, had := l.balances[a]
	tx.OnRollback(func() {
		if had {
			l.balances[a] = old
		} else {
			delete(l.balances, a)
		}
	})
	l.balances[a] = v
}

func (l *Ledger) setAllowance(tx *txn.Tx, owner, spender common.Address, v *uint256.Int) {
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	old, had := m[spender]
	tx.OnRollback(func() {
		if had {
			m[spender] = old
		} else {
			delete(m, spender)
		}
	})
	m[spender] = v.Clone()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
