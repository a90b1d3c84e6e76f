package notify

import (
	"cryptoswap/internal/model"
)

// Sink receives state changes after they are committed. Implementations must
// not block the caller and must swallow delivery failures.
type Sink interface {
	OrderPending(o *model.Order)
	OrderDecided(o *model.Order)
	WithdrawalRequested(w *model.Withdrawal)
	WithdrawalResolved(w *model.Withdrawal)
}

// Nop drops every notification
type Nop struct{}

func (Nop) OrderPending(*model.Order) {}
func (Nop) OrderDecided(*model.Order) {}
func (Nop) WithdrawalRequested(*model.Withdrawal) {}
func (Nop) WithdrawalResolved(*model.Withdrawal) {}
