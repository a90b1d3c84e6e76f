package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptoswap/internal/model"
)

const orderColumns = `o.id, o.user_id, o.asset, o.crypto_amount, o.net_crypto, o.local_amount,
	o.payment_method, o.payment_details, o.network, o.fee, o.net_amount, o.status, o.tx_ref,
	o.wallet_address, o.expires_at, o.created_at, COALESCE(u.username, ''), COALESCE(u.first_name, '')`

const orderFrom = ` FROM orders o LEFT JOIN users u ON u.id = o.user_id `

func scanOrder(row scanner) (*model.Order, error) {
	var (
		o                    model.Order
		txRef                sql.NullString
		expiresAt, createdAt int64
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Asset, &o.CryptoAmount, &o.NetCrypto, &o.LocalAmount,
		&o.PaymentMethod, &o.PaymentDetails, &o.Network, &o.Fee, &o.NetAmount, &o.Status, &txRef,
		&o.WalletAddress, &expiresAt, &createdAt, &o.Username, &o.FirstName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if txRef.Valid {
		o.TxRef = txRef.String
	}
	o.ExpiresAt = fromMillis(expiresAt)
	o.CreatedAt = fromMillis(createdAt)
	return &o, nil
}

func (c conn) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// InsertDraft stores o as a new draft and sets its ID
func (c conn) InsertDraft(ctx context.Context, o *model.Order) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO orders (user_id, asset, crypto_amount, net_crypto, local_amount, payment_method,
			payment_details, network, fee, net_amount, status, wallet_address, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.Asset, o.CryptoAmount.String(), o.NetCrypto.String(), o.LocalAmount.String(),
		o.PaymentMethod, o.PaymentDetails, o.Network, o.Fee.String(), o.NetAmount.String(),
		model.OrderDraft, o.WalletAddress, toMillis(o.ExpiresAt), toMillis(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	o.ID = id
	o.Status = model.OrderDraft
	return nil
}

func (c conn) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+orderColumns+orderFrom+`WHERE o.id = ?`, id)
	return scanOrder(row)
}

// MarkPending moves a draft to pending with its transaction reference.
// Reports false when the order is no longer a draft or does not exist.
func (c conn) MarkPending(ctx context.Context, id int64, txRef string) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE orders SET status = ?, tx_ref = ? WHERE id = ? AND status = ?`,
		model.OrderPending, txRef, id, model.OrderDraft)
	if err != nil {
		return false, fmt.Errorf("confirm order %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// SetOrderStatus overwrites the status of a confirmed order and returns the
// previous one. Drafts are not touched and report ErrNotFound.
func (c conn) SetOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.OrderStatus, error) {
	var prev model.OrderStatus
	err := c.q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) || prev == model.OrderDraft {
		return "", fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("order %d: %w", id, err)
	}

	_, err = c.q.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status != ?`, status, id, model.OrderDraft)
	if err != nil {
		return "", fmt.Errorf("update order %d: %w", id, err)
	}
	return prev, nil
}

// DeleteDraft removes a draft owned by userID. Reports whether it did.
func (c conn) DeleteDraft(ctx context.Context, id, userID int64) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM orders WHERE id = ? AND user_id = ? AND status = ?`, id, userID, model.OrderDraft)
	if err != nil {
		return false, fmt.Errorf("delete draft %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// DeleteExpiredDrafts removes drafts whose expiry is strictly before now
func (c conn) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM orders WHERE status = ? AND expires_at < ?`, model.OrderDraft, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired drafts: %w", err)
	}
	return rowsAffected(res)
}

// ListOrdersByStatus returns orders with status, oldest first
func (c conn) ListOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	return c.queryOrders(ctx,
		`SELECT `+orderColumns+orderFrom+`WHERE o.status = ? ORDER BY o.created_at ASC, o.id ASC`, status)
}

// ListUserOrders returns the newest submitted orders of a user. Drafts are
// left out.
func (c conn) ListUserOrders(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	return c.queryOrders(ctx,
		`SELECT `+orderColumns+orderFrom+`WHERE o.user_id = ? AND o.status != ? ORDER BY o.created_at DESC, o.id DESC LIMIT ?`,
		userID, model.OrderDraft, limit)
}

// SearchOrders matches a numeric term against order and user ids, anything
// else against usernames and first names
func (c conn) SearchOrders(ctx context.Context, term string, limit int) ([]model.Order, error) {
	term = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(term), "#"))
	if term == "" {
		return []model.Order{}, nil
	}

	if id, err := strconv.ParseInt(term, 10, 64); err == nil {
		return c.queryOrders(ctx,
			`SELECT `+orderColumns+orderFrom+`WHERE o.id = ? OR o.user_id = ? ORDER BY o.id DESC LIMIT ?`,
			id, id, limit)
	}

	pattern := "%" + escapeLike(strings.TrimPrefix(term, "@")) + "%"
	return c.queryOrders(ctx,
		`SELECT `+orderColumns+orderFrom+`
		WHERE u.username LIKE ? ESCAPE '\' OR u.first_name LIKE ? ESCAPE '\'
		ORDER BY o.id DESC LIMIT ?`,
		pattern, pattern, limit)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
