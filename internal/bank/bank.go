// Package bank holds the authoritative account for every agent and
// serializes balance changes per agent.
package bank

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

var (
	// ErrAccountExists is returned when opening an account twice.
	ErrAccountExists = errors.New("bank: account already exists")

	// ErrNoAccount is returned for operations on an unknown agent.
	ErrNoAccount = errors.New("bank: no such account")
)

// entry pairs an account value with the lock serializing its updates.
type entry struct {
	mu   sync.Mutex
	acct asset.Account
}

// Bank maps agent ids to accounts. Accounts are immutable values; every
// update reads the current value, computes a replacement, and swaps it in
// under the agent's lock, so a failed update leaves the account untouched.
type Bank struct {
	mu       sync.RWMutex
	accounts map[int64]*entry
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{accounts: make(map[int64]*entry)}
}

// Open creates an account for agentID seeded with the given cash.
func (b *Bank) Open(agentID int64, monies decimal.Decimal) (asset.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[agentID]; ok {
		return asset.Account{}, ErrAccountExists
	}
	acct := asset.NewAccount(agentID).Add(monies, nil)
	b.accounts[agentID] = &entry{acct: acct}
	return acct, nil
}

// Get returns the current account value for agentID.
func (b *Bank) Get(agentID int64) (asset.Account, error) {
	e, err := b.entry(agentID)
	if err != nil {
		return asset.Account{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

// Agents returns every agent id with an account, in no particular order.
func (b *Bank) Agents() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]int64, 0, len(b.accounts))
	for id := range b.accounts {
		ids = append(ids, id)
	}
	return ids
}

// Update applies fn to agentID's account under its lock. The replacement
// is installed only when fn succeeds; on error the account is unchanged.
func (b *Bank) Update(agentID int64, fn func(asset.Account) (asset.Account, error)) (asset.Account, error) {
	e, err := b.entry(agentID)
	if err != nil {
		return asset.Account{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.acct)
	if err != nil {
		return asset.Account{}, err
	}
	e.acct = next
	return next, nil
}

// Transfer applies fn to two accounts atomically. Locks are taken in
// ascending agent-id order so concurrent transfers cannot deadlock. Both
// replacements install together or not at all.
func (b *Bank) Transfer(fromID, toID int64, fn func(from, to asset.Account) (asset.Account, asset.Account, error)) (asset.Account, asset.Account, error) {
	if fromID == toID {
		return asset.Account{}, asset.Account{}, ErrNoAccount
	}
	fromE, err := b.entry(fromID)
	if err != nil {
		return asset.Account{}, asset.Account{}, err
	}
	toE, err := b.entry(toID)
	if err != nil {
		return asset.Account{}, asset.Account{}, err
	}

	first, second := fromE, toE
	if toID < fromID {
		first, second = toE, fromE
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	nextFrom, nextTo, err := fn(fromE.acct, toE.acct)
	if err != nil {
		return asset.Account{}, asset.Account{}, err
	}
	fromE.acct = nextFrom
	toE.acct = nextTo
	return nextFrom, nextTo, nil
}

func (b *Bank) entry(agentID int64) (*entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.accounts[agentID]
	if !ok {
		return nil, ErrNoAccount
	}
	return e, nil
}
