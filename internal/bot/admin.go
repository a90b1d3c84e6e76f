package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cryptoswap/internal/fee"
	"cryptoswap/internal/model"
	"cryptoswap/internal/notify"
	"cryptoswap/internal/order"
	"cryptoswap/internal/referral"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	cbAdminStats       = "adm:stats"
	cbAdminOrders      = "adm:orders"
	cbAdminWithdrawals = "adm:withdrawals"

	adminListLimit = 10
)

func (b *Bot) isAdmin(chatID, userID int64) bool {
	return b.cfg.AdminChatID != 0 && (chatID == b.cfg.AdminChatID || userID == b.cfg.AdminChatID)
}

func (b *Bot) adminPanel(ctx context.Context, chatID, userID int64) {
	if !b.isAdmin(chatID, userID) {
		b.reply(chatID, "Access denied.")
		return
	}
	if _, err := b.orders.SweepNow(ctx); err != nil {
		b.logger.Warn("sweep from admin panel failed", zap.Error(err))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Stats", cbAdminStats),
			tgbotapi.NewInlineKeyboardButtonData("Pending orders", cbAdminOrders),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Withdrawal requests", cbAdminWithdrawals),
		),
	)
	b.send(chatID, "Admin panel\n\nUse /find <order id, user id or name> to search orders.", keyboard)
}

// handleAdminCallback reports whether q was an admin action, handled or refused
func (b *Bot) handleAdminCallback(ctx context.Context, chatID, userID int64, q *tgbotapi.CallbackQuery) bool {
	var (
		action func(id int64)
		rest   string
	)
	switch {
	case q.Data == cbAdminStats || q.Data == cbAdminOrders || q.Data == cbAdminWithdrawals:
	case strings.HasPrefix(q.Data, notify.ApproveOrderData):
		rest = strings.TrimPrefix(q.Data, notify.ApproveOrderData)
		action = func(id int64) { b.decideOrder(ctx, chatID, id, model.OrderCompleted) }
	case strings.HasPrefix(q.Data, notify.RejectOrderData):
		rest = strings.TrimPrefix(q.Data, notify.RejectOrderData)
		action = func(id int64) { b.decideOrder(ctx, chatID, id, model.OrderRejected) }
	case strings.HasPrefix(q.Data, notify.ApproveWithdrawalData):
		rest = strings.TrimPrefix(q.Data, notify.ApproveWithdrawalData)
		action = func(id int64) { b.resolveWithdrawal(ctx, chatID, id, model.WithdrawalCompleted) }
	case strings.HasPrefix(q.Data, notify.RejectWithdrawalData):
		rest = strings.TrimPrefix(q.Data, notify.RejectWithdrawalData)
		action = func(id int64) { b.resolveWithdrawal(ctx, chatID, id, model.WithdrawalRejected) }
	default:
		return false
	}

	if !b.isAdmin(chatID, userID) {
		b.logger.Warn("admin action refused", zap.Int64("user_id", userID), zap.String("data", q.Data))
		b.reply(chatID, "Access denied.")
		return true
	}

	switch q.Data {
	case cbAdminStats:
		b.adminStats(ctx, chatID)
		return true
	case cbAdminOrders:
		b.adminPendingOrders(ctx, chatID)
		return true
	case cbAdminWithdrawals:
		b.adminPendingWithdrawals(ctx, chatID)
		return true
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return true
	}
	b.clearButtons(chatID, q.Message.MessageID)
	action(id)
	return true
}

// decideOrder only acts on pending orders, so a stale button cannot flip a
// settled order
func (b *Bot) decideOrder(ctx context.Context, chatID, orderID int64, outcome model.OrderStatus) {
	current, err := b.orders.Get(ctx, orderID)
	if err == nil && current.Status != model.OrderPending {
		if current.Status == model.OrderDraft {
			err = order.ErrOrderNotFound
		} else {
			b.reply(chatID, fmt.Sprintf("Order #%d was already %s.", orderID, current.Status))
			return
		}
	}
	var (
		o    *model.Order
		prev model.OrderStatus
	)
	if err == nil {
		o, prev, err = b.orders.Decide(ctx, orderID, outcome)
	}
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		b.reply(chatID, fmt.Sprintf("Order #%d not found.", orderID))
	case err != nil:
		b.logger.Error("decide failed", zap.Int64("order_id", orderID), zap.Error(err))
		b.reply(chatID, fmt.Sprintf("Could not update order #%d.", orderID))
	case prev != model.OrderPending:
		b.reply(chatID, fmt.Sprintf("Order #%d was already %s.", orderID, prev))
	default:
		b.reply(chatID, fmt.Sprintf("Order #%d %s. Payout: %s %s via %s.",
			o.ID, o.Status, fee.Money(o.NetAmount), b.cfg.Currency, o.PaymentMethod))
	}
}

func (b *Bot) resolveWithdrawal(ctx context.Context, chatID, withdrawalID int64, outcome model.WithdrawalStatus) {
	w, err := b.ledger.ResolveWithdrawal(ctx, withdrawalID, outcome)
	switch {
	case errors.Is(err, referral.ErrWithdrawalNotFound):
		b.reply(chatID, fmt.Sprintf("Withdrawal #%d not found.", withdrawalID))
	case errors.Is(err, referral.ErrAlreadyResolved):
		b.reply(chatID, fmt.Sprintf("Withdrawal #%d was already resolved.", withdrawalID))
	case err != nil:
		b.logger.Error("resolve withdrawal failed", zap.Int64("withdrawal_id", withdrawalID), zap.Error(err))
		b.reply(chatID, fmt.Sprintf("Could not update withdrawal #%d.", withdrawalID))
	default:
		b.reply(chatID, fmt.Sprintf("Withdrawal #%d %s.", w.ID, w.Status))
	}
}

func (b *Bot) adminStats(ctx context.Context, chatID int64) {
	s, err := b.orders.Stats(ctx)
	if err != nil {
		b.logger.Error("stats failed", zap.Error(err))
		b.reply(chatID, "Could not load stats.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Orders: %d (completed %d)\nVolume: %s %s\nFees: %s %s\nUsers: %d\nPending withdrawals: %d",
		s.TotalOrders, s.CompletedOrders, fee.Money(s.TotalVolume), b.cfg.Currency,
		fee.Money(s.TotalFees), b.cfg.Currency, s.TotalUsers, s.PendingWithdrawals))
}

func (b *Bot) adminPendingOrders(ctx context.Context, chatID int64) {
	orders, err := b.orders.ListPending(ctx)
	if err != nil {
		b.logger.Error("list pending failed", zap.Error(err))
		b.reply(chatID, "Could not load pending orders.")
		return
	}
	b.sendOrders(chatID, orders, "No pending orders.")
}

func (b *Bot) adminPendingWithdrawals(ctx context.Context, chatID int64) {
	ws, err := b.ledger.ListPendingWithdrawals(ctx)
	if err != nil {
		b.logger.Error("list withdrawals failed", zap.Error(err))
		b.reply(chatID, "Could not load withdrawal requests.")
		return
	}
	if len(ws) == 0 {
		b.reply(chatID, "No pending withdrawals.")
		return
	}
	if len(ws) > adminListLimit {
		ws = ws[:adminListLimit]
	}
	for i := range ws {
		b.send(chatID, notify.FormatWithdrawal(&ws[i], b.cfg.Currency), notify.WithdrawalDecisionKeyboard(ws[i].ID))
	}
}

func (b *Bot) adminSearch(ctx context.Context, chatID, userID int64, term string) {
	if !b.isAdmin(chatID, userID) {
		b.reply(chatID, "Access denied.")
		return
	}
	if strings.TrimSpace(term) == "" {
		b.reply(chatID, "Usage: /find <order id, user id or name>")
		return
	}
	orders, err := b.orders.Search(ctx, term)
	if err != nil {
		b.logger.Error("search failed", zap.String("term", term), zap.Error(err))
		b.reply(chatID, "Search failed.")
		return
	}
	b.sendOrders(chatID, orders, "No orders found.")
}

// sendOrders sends one message per order, with decision buttons on pending ones
func (b *Bot) sendOrders(chatID int64, orders []model.Order, empty string) {
	if len(orders) == 0 {
		b.reply(chatID, empty)
		return
	}
	if len(orders) > adminListLimit {
		orders = orders[:adminListLimit]
	}
	for i := range orders {
		o := &orders[i]
		if o.Status == model.OrderPending {
			b.send(chatID, notify.FormatOrder(o, b.cfg.Currency), notify.OrderDecisionKeyboard(o.ID))
			continue
		}
		b.reply(chatID, notify.FormatOrder(o, b.cfg.Currency))
	}
}

func (b *Bot) clearButtons(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Debug("clear buttons failed", zap.Error(err))
	}
}
