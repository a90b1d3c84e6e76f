package database

import (
	"context"
	"fmt"

	"cryptoswap/internal/model"

	"github.com/shopspring/decimal"
)

// Stats aggregates the admin panel numbers. Drafts are not counted as orders.
// Sums are taken in Go because amounts are stored as exact decimal text.
func (c conn) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{
		TotalVolume: decimal.Zero,
		TotalFees:   decimal.Zero,
	}

	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE status != ?`, model.OrderDraft).Scan(&stats.TotalOrders)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := c.q.QueryContext(ctx,
		`SELECT local_amount, fee FROM orders WHERE status = ?`, model.OrderCompleted)
	if err != nil {
		return nil, fmt.Errorf("sum completed orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var local, fee decimal.Decimal
		if err := rows.Scan(&local, &fee); err != nil {
			return nil, fmt.Errorf("sum completed orders: %w", err)
		}
		stats.CompletedOrders++
		stats.TotalVolume = stats.TotalVolume.Add(local)
		stats.TotalFees = stats.TotalFees.Add(fee)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if stats.TotalUsers, err = c.CountUsers(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	err = c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE status = ?`, model.WithdrawalPending).Scan(&stats.PendingWithdrawals)
	if err != nil {
		return nil, fmt.Errorf("count pending withdrawals: %w", err)
	}

	return stats, nil
}
