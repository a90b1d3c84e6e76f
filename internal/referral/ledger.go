package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoswap/internal/database"
	"cryptoswap/internal/metrics"
	"cryptoswap/internal/model"
	"cryptoswap/internal/notify"

	"github.com/dchest/uniuri"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrReferrerNotFound   = errors.New("referral code not found")
	ErrSelfReferral       = errors.New("cannot refer yourself")
	ErrAlreadyReferred    = errors.New("referrer already set")
	ErrNothingToWithdraw  = errors.New("nothing to withdraw")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrAlreadyResolved    = errors.New("withdrawal request already resolved")
	ErrInvalidOutcome     = errors.New("outcome must be completed or rejected")
	ErrNegativeCredit     = errors.New("referral credit must not be negative")
)

const (
	codePrefix    = "REF"
	codeSuffixLen = 8
	codeAttempts  = 5
)

// Ledger owns users' referral relationships, earnings and withdrawals
type Ledger struct {
	db     *database.Database
	sink   notify.Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(db *database.Database, sink notify.Sink, logger *zap.Logger, now func() time.Time) *Ledger {
	if sink == nil {
		sink = notify.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, sink: sink, logger: logger, now: now}
}

// EnsureUser returns the user with id, creating it with a fresh referral code
// on first contact. Display names are refreshed on every call.
func (l *Ledger) EnsureUser(ctx context.Context, id int64, username, firstName string) (*model.User, error) {
	user, err := l.db.GetUser(ctx, id)
	if err == nil {
		if (username != "" && username != user.Username) || (firstName != "" && firstName != user.FirstName) {
			if err := l.db.UpdateUserNames(ctx, id, username, firstName); err != nil {
				return nil, err
			}
			return l.db.GetUser(ctx, id)
		}
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		user = &model.User{
			ID:           id,
			Username:     username,
			FirstName:    firstName,
			ReferralCode: newReferralCode(id),
			CreatedAt:    l.now().UTC(),
		}
		err = l.db.InsertUser(ctx, user)
		if err == nil {
			l.logger.Info("user registered", zap.Int64("user_id", id), zap.String("referral_code", user.ReferralCode))
			return l.db.GetUser(ctx, id)
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
		// either the id was registered concurrently or the code collided
		if existing, getErr := l.db.GetUser(ctx, id); getErr == nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("register user %d: %w", id, err)
}

func newReferralCode(id int64) string {
	return fmt.Sprintf("%s%d%s", codePrefix, id, uniuri.NewLen(codeSuffixLen))
}

func (l *Ledger) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := l.db.GetUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// AttachReferrer links userID to the owner of code. The link can be made
// only once and never to oneself.
func (l *Ledger) AttachReferrer(ctx context.Context, userID int64, code string) (*model.User, error) {
	referrer, err := l.db.GetUserByReferralCode(ctx, strings.TrimSpace(code))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrReferrerNotFound
	}
	if err != nil {
		return nil, err
	}
	if referrer.ID == userID {
		return nil, ErrSelfReferral
	}

	ok, err := l.db.SetReferrer(ctx, userID, referrer.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := l.GetUser(ctx, userID); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyReferred
	}

	l.logger.Info("referrer attached", zap.Int64("user_id", userID), zap.Int64("referrer_id", referrer.ID))
	return referrer, nil
}

// CreditReferral records an earning for referrerID from orderID and adds it
// to the referrer's balance and lifetime total in one transaction.
func (l *Ledger) CreditReferral(ctx context.Context, referrerID, orderID int64, amount decimal.Decimal) (*model.ReferralTransaction, error) {
	var rt *model.ReferralTransaction
	err := l.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		rt, err = l.CreditTx(ctx, tx, referrerID, orderID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.ReferralCredited.Inc()
	return rt, nil
}

// CreditTx is CreditReferral inside a caller's transaction
func (l *Ledger) CreditTx(ctx context.Context, tx *database.Tx, referrerID, orderID int64, amount decimal.Decimal) (*model.ReferralTransaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeCredit
	}
	rt, err := tx.InsertReferralTransaction(ctx, referrerID, orderID, amount, l.now())
	if err != nil {
		return nil, err
	}
	if err := tx.CreditUser(ctx, referrerID, amount); err != nil {
		return nil, err
	}
	return rt, nil
}

// RequestWithdrawal moves the whole referral balance into a pending request
func (l *Ledger) RequestWithdrawal(ctx context.Context, userID int64) (*model.Withdrawal, error) {
	var w *model.Withdrawal
	err := l.db.WithTx(ctx, func(tx *database.Tx) error {
		amount, err := tx.TakeBalance(ctx, userID)
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrNothingToWithdraw
		}
		w, err = tx.InsertWithdrawal(ctx, userID, amount, l.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalEvents.WithLabelValues("requested").Inc()
	l.logger.Info("withdrawal requested",
		zap.Int64("withdrawal_id", w.ID), zap.Int64("user_id", userID), zap.String("amount", w.Amount.String()))
	l.sink.WithdrawalRequested(w)
	return w, nil
}

// ResolveWithdrawal settles a pending request. A rejected request puts its
// amount back on the user's current balance.
func (l *Ledger) ResolveWithdrawal(ctx context.Context, id int64, outcome model.WithdrawalStatus) (*model.Withdrawal, error) {
	if outcome != model.WithdrawalCompleted && outcome != model.WithdrawalRejected {
		return nil, ErrInvalidOutcome
	}

	var w *model.Withdrawal
	err := l.db.WithTx(ctx, func(tx *database.Tx) error {
		current, err := tx.GetWithdrawal(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return ErrWithdrawalNotFound
		}
		if err != nil {
			return err
		}

		ok, err := tx.ResolveWithdrawal(ctx, id, outcome)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyResolved
		}
		if outcome == model.WithdrawalRejected {
			if err := tx.RestoreBalance(ctx, current.UserID, current.Amount); err != nil {
				return err
			}
		}

		w, err = tx.GetWithdrawal(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalEvents.WithLabelValues(string(outcome)).Inc()
	l.logger.Info("withdrawal resolved", zap.Int64("withdrawal_id", id), zap.String("status", string(outcome)))
	l.sink.WithdrawalResolved(w)
	return w, nil
}

// Summary is what a user sees about their own referral program
func (l *Ledger) Summary(ctx context.Context, userID int64) (*model.ReferralSummary, error) {
	user, err := l.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	referred, err := l.db.CountReferred(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.ReferralSummary{
		ReferralCode:  user.ReferralCode,
		ReferredUsers: referred,
		Balance:       user.Balance,
		TotalEarned:   user.TotalEarned,
	}, nil
}

func (l *Ledger) Earnings(ctx context.Context, referrerID int64) ([]model.ReferralTransaction, error) {
	return l.db.ListReferralTransactions(ctx, referrerID)
}

func (l *Ledger) GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error) {
	w, err := l.db.GetWithdrawal(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

func (l *Ledger) ListPendingWithdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	return l.db.ListWithdrawals(ctx, model.WithdrawalPending, 0)
}

func (l *Ledger) ListUserWithdrawals(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	return l.db.ListWithdrawals(ctx, "", userID)
}
