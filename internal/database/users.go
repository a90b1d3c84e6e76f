package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptoswap/internal/model"

	"github.com/shopspring/decimal"
)

const userColumns = `id, username, first_name, referral_code, referred_by, referral_balance, total_earned, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		user       model.User
		referredBy sql.NullInt64
		createdAt  int64
	)
	err := row.Scan(&user.ID, &user.Username, &user.FirstName, &user.ReferralCode,
		&referredBy, &user.Balance, &user.TotalEarned, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if referredBy.Valid {
		ref := referredBy.Int64
		user.ReferredBy = &ref
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

// InsertUser stores a new user. ErrDuplicate is returned when the id or the
// referral code is taken.
func (c conn) InsertUser(ctx context.Context, user *model.User) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO users (id, username, first_name, referral_code, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.FirstName, user.ReferralCode, toMillis(user.CreatedAt))
	if isDuplicate(err) {
		return fmt.Errorf("insert user %d: %w", user.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert user %d: %w", user.ID, err)
	}
	return nil
}

// UpdateUserNames refreshes the display fields; empty values are kept
func (c conn) UpdateUserNames(ctx context.Context, id int64, username, firstName string) error {
	_, err := c.q.ExecContext(ctx, `
		UPDATE users
		SET username = CASE WHEN ? = '' THEN username ELSE ? END,
			first_name = CASE WHEN ? = '' THEN first_name ELSE ? END
		WHERE id = ?`,
		username, username, firstName, firstName, id)
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	return nil
}

// GetUser retrieves a user by their ID
func (c conn) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByReferralCode retrieves a user by their referral code
func (c conn) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = ?`, code)
	return scanUser(row)
}

// SetReferrer links userID to referrerID unless a referrer is already set.
// Reports whether the link was made.
func (c conn) SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE users SET referred_by = ? WHERE id = ? AND referred_by IS NULL AND id != ?`,
		referrerID, userID, referrerID)
	if err != nil {
		return false, fmt.Errorf("set referrer of %d: %w", userID, err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (c conn) CountReferred(ctx context.Context, referrerID int64) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = ?`, referrerID).Scan(&n)
	return n, err
}

// CreditUser adds amount to both the referral balance and lifetime earnings
func (t *Tx) CreditUser(ctx context.Context, userID int64, amount decimal.Decimal) error {
	user, err := t.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("credit user %d: %w", userID, err)
	}
	return t.writeBalances(ctx, userID, user.Balance.Add(amount), user.TotalEarned.Add(amount))
}

// RestoreBalance adds amount back to the referral balance only
func (t *Tx) RestoreBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	user, err := t.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("restore balance of %d: %w", userID, err)
	}
	return t.writeBalances(ctx, userID, user.Balance.Add(amount), user.TotalEarned)
}

// TakeBalance zeroes the referral balance and returns what it was
func (t *Tx) TakeBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := t.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("take balance of %d: %w", userID, err)
	}
	if err := t.writeBalances(ctx, userID, decimal.Zero, user.TotalEarned); err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func (t *Tx) writeBalances(ctx context.Context, userID int64, balance, earned decimal.Decimal) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE users SET referral_balance = ?, total_earned = ? WHERE id = ?`,
		balance.String(), earned.String(), userID)
	if err != nil {
		return fmt.Errorf("update balances of %d: %w", userID, err)
	}
	return nil
}

func (c conn) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
