package treasury

import (
	"errors"
	"fmt"
	"sync"

	"patentvault/internal/models"
)

var (
	ErrNoFeesToWithdraw     = errors.New("no fees to withdraw")
	ErrInsufficientTreasury = errors.New("treasury balance insufficient")
)

// PayoutSink is the value-transfer primitive refunds and withdrawals go
// through. A transfer that returns an error must leave no trace; the treasury
// only debits its balance after the sink accepted the transfer.
type PayoutSink interface {
	Transfer(to models.Principal, amount models.Amount) error
}

// LedgerSink is the default payout sink: an in-process ledger crediting
// principals. A deployment wires a real payment provider here instead.
type LedgerSink struct {
	mu       sync.Mutex
	credited map[models.Principal]models.Amount
}

// NewLedgerSink creates an empty payout ledger
func NewLedgerSink() *LedgerSink {
	return &LedgerSink{credited: make(map[models.Principal]models.Amount)}
}

// Transfer credits amount to the principal
func (s *LedgerSink) Transfer(to models.Principal, amount models.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credited[to] += amount
	return nil
}

// Credited returns the total amount transferred to a principal
func (s *LedgerSink) Credited(p models.Principal) models.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credited[p]
}

// Treasury tracks collected application fees and pays out refunds and
// administrative withdrawals.
type Treasury struct {
	mu      sync.Mutex
	balance models.Amount
	payouts PayoutSink
}

// New creates a treasury paying out through the given sink
func New(payouts PayoutSink) *Treasury {
	return &Treasury{payouts: payouts}
}

// Deposit records a collected fee
func (t *Treasury) Deposit(amount models.Amount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance += amount
}

// Balance returns the current collected balance
func (t *Treasury) Balance() models.Amount {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// Refund transfers amount to the principal. The transfer happens before the
// balance is debited so a failed transfer leaves the treasury unchanged.
func (t *Treasury) Refund(to models.Principal, amount models.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount > t.balance {
		return ErrInsufficientTreasury
	}
	if err := t.payouts.Transfer(to, amount); err != nil {
		return fmt.Errorf("refund transfer failed: %w", err)
	}
	t.balance -= amount
	return nil
}

// WithdrawAll transfers the full balance to the principal and returns the
// amount moved. Fails if the balance is zero.
func (t *Treasury) WithdrawAll(to models.Principal) (models.Amount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance <= 0 {
		return 0, ErrNoFeesToWithdraw
	}
	amount := t.balance
	if err := t.payouts.Transfer(to, amount); err != nil {
		return 0, fmt.Errorf("withdrawal transfer failed: %w", err)
	}
	t.balance = 0
	return amount, nil
}

// State is the serializable form of the treasury
type State struct {
	Balance models.Amount `json:"balance"`
}

// Snapshot exports the treasury balance
func (t *Treasury) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Balance: t.balance}
}

// Restore replaces the balance with a previously exported state
func (t *Treasury) Restore(st State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance = st.Balance
}
