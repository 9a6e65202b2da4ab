package asset

import "sync"

// Ledger is the append-only transaction history for one instrument.
// Entries are never modified or deleted.
type Ledger struct {
	mu      sync.RWMutex
	typ     FullType
	entries []Transaction
}

// NewLedger creates an empty ledger for the given instrument.
func NewLedger(typ FullType) *Ledger {
	return &Ledger{typ: typ}
}

// Type returns the instrument this ledger records.
func (l *Ledger) Type() FullType { return l.typ }

// Add appends a transaction.
func (l *Ledger) Add(tx Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, tx)
}

// Entries returns a copy of the history in append order.
func (l *Ledger) Entries() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded transactions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
