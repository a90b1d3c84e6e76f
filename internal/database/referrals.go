package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptoswap/internal/model"

	"github.com/shopspring/decimal"
)

// InsertReferralTransaction records an earning. An order can only ever earn
// one referral, so a second insert for it is ErrDuplicate.
func (t *Tx) InsertReferralTransaction(ctx context.Context, referrerID, orderID int64, amount decimal.Decimal, now time.Time) (*model.ReferralTransaction, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO referral_transactions (referrer_id, order_id, amount, created_at) VALUES (?, ?, ?, ?)`,
		referrerID, orderID, amount.String(), toMillis(now))
	if isDuplicate(err) {
		return nil, fmt.Errorf("referral for order %d: %w", orderID, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("insert referral transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.ReferralTransaction{
		ID:         id,
		ReferrerID: referrerID,
		OrderID:    orderID,
		Amount:     amount,
		CreatedAt:  fromMillis(toMillis(now)),
	}, nil
}

// ListReferralTransactions returns a referrer's earnings, newest first
func (c conn) ListReferralTransactions(ctx context.Context, referrerID int64) ([]model.ReferralTransaction, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, referrer_id, order_id, amount, created_at
		FROM referral_transactions
		WHERE referrer_id = ?
		ORDER BY created_at DESC, id DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]model.ReferralTransaction, 0)
	for rows.Next() {
		var (
			rt        model.ReferralTransaction
			createdAt int64
		)
		if err := rows.Scan(&rt.ID, &rt.ReferrerID, &rt.OrderID, &rt.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral transaction: %w", err)
		}
		rt.CreatedAt = fromMillis(createdAt)
		txs = append(txs, rt)
	}
	return txs, rows.Err()
}

const withdrawalColumns = `w.id, w.user_id, w.amount, w.status, w.created_at,
	COALESCE(u.username, ''), COALESCE(u.first_name, ''), COALESCE(u.referral_balance, '0')`

const withdrawalFrom = ` FROM withdrawal_requests w LEFT JOIN users u ON u.id = w.user_id `

func scanWithdrawal(row scanner) (*model.Withdrawal, error) {
	var (
		w         model.Withdrawal
		createdAt int64
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &createdAt, &w.Username, &w.FirstName, &w.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt = fromMillis(createdAt)
	return &w, nil
}

// InsertWithdrawal creates a pending withdrawal request for amount
func (t *Tx) InsertWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, now time.Time) (*model.Withdrawal, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (user_id, amount, status, created_at) VALUES (?, ?, ?, ?)`,
		userID, amount.String(), model.WithdrawalPending, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("insert withdrawal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return t.GetWithdrawal(ctx, id)
}

func (c conn) GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+withdrawalFrom+`WHERE w.id = ?`, id)
	return scanWithdrawal(row)
}

// ResolveWithdrawal moves a pending request to status. Reports false when
// the request was not pending.
func (c conn) ResolveWithdrawal(ctx context.Context, id int64, status model.WithdrawalStatus) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE withdrawal_requests SET status = ? WHERE id = ? AND status = ?`,
		status, id, model.WithdrawalPending)
	if err != nil {
		return false, fmt.Errorf("update withdrawal %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// ListWithdrawals returns requests with status, oldest first. An empty status
// lists every request of userID; userID 0 means all users.
func (c conn) ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, userID int64) ([]model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + withdrawalFrom + `WHERE 1 = 1`
	var args []any
	if status != "" {
		query += ` AND w.status = ?`
		args = append(args, status)
	}
	if userID != 0 {
		query += ` AND w.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY w.created_at ASC, w.id ASC`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal requests: %w", err)
	}
	defer rows.Close()

	withdrawals := make([]model.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal requests: %w", err)
	}
	return withdrawals, nil
}
