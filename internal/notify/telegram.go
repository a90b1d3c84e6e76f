package notify

import (
	"fmt"
	"strconv"
	"strings"

	"cryptoswap/internal/config"
	"cryptoswap/internal/fee"
	"cryptoswap/internal/metrics"
	"cryptoswap/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Callback payloads carried by the decision buttons on admin messages,
// followed by the order or withdrawal id
const (
	ApproveOrderData      = "approve:"
	RejectOrderData       = "reject:"
	ApproveWithdrawalData = "wd_paid:"
	RejectWithdrawalData  = "wd_reject:"
)

// OrderDecisionKeyboard is attached to pending orders shown to the admin
func OrderDecisionKeyboard(orderID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(orderID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Approve", ApproveOrderData+id),
		tgbotapi.NewInlineKeyboardButtonData("Reject", RejectOrderData+id),
	))
}

func WithdrawalDecisionKeyboard(withdrawalID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(withdrawalID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Paid", ApproveWithdrawalData+id),
		tgbotapi.NewInlineKeyboardButtonData("Reject", RejectWithdrawalData+id),
	))
}

// Sender is the part of *tgbotapi.BotAPI used to deliver messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers notifications to the admin chat, the admin channel and
// users through a worker pool. Nothing is retried.
type Telegram struct {
	sender      Sender
	pool        *Pool
	logger      *zap.Logger
	adminChatID int64
	channel     string
	currency    string
}

func NewTelegram(sender Sender, cfg config.TelegramConfig, currency string, logger *zap.Logger) *Telegram {
	return &Telegram{
		sender:      sender,
		pool:        NewPool(cfg.Workers, cfg.QueueSize),
		logger:      logger,
		adminChatID: cfg.AdminChatID,
		channel:     cfg.AdminChannel,
		currency:    strings.ToUpper(currency),
	}
}

type delivery struct {
	t      *Telegram
	msg    tgbotapi.MessageConfig
	target string
}

func (d delivery) Execute() {
	if _, err := d.t.sender.Send(d.msg); err != nil {
		metrics.NotificationFailures.Inc()
		d.t.logger.Warn("notification not delivered", zap.String("target", d.target), zap.Error(err))
	}
}

func (t *Telegram) enqueue(msg tgbotapi.MessageConfig, target string) {
	if !t.pool.TryExec(delivery{t: t, msg: msg, target: target}) {
		metrics.NotificationFailures.Inc()
		t.logger.Warn("notification dropped, queue full", zap.String("target", target))
	}
}

func (t *Telegram) toAdmin(text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if t.adminChatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(t.adminChatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	t.enqueue(msg, "admin")
}

func (t *Telegram) toChannel(text string) {
	if t.channel != "" {
		t.enqueue(tgbotapi.NewMessageToChannel(t.channel, text), "channel")
	}
}

func (t *Telegram) toUser(userID int64, text string) {
	t.enqueue(tgbotapi.NewMessage(userID, text), "user")
}

func (t *Telegram) OrderPending(o *model.Order) {
	text := "New order to review\n\n" + FormatOrder(o, t.currency)
	keyboard := OrderDecisionKeyboard(o.ID)
	t.toAdmin(text, &keyboard)
	t.toChannel(text)
}

func (t *Telegram) OrderDecided(o *model.Order) {
	t.toUser(o.UserID, t.formatDecisionForUser(o))
	t.toChannel(fmt.Sprintf("Order #%d %s by admin", o.ID, o.Status))
}

func (t *Telegram) WithdrawalRequested(w *model.Withdrawal) {
	text := "New withdrawal to review\n\n" + FormatWithdrawal(w, t.currency)
	keyboard := WithdrawalDecisionKeyboard(w.ID)
	t.toAdmin(text, &keyboard)
	t.toChannel(text)
}

func (t *Telegram) WithdrawalResolved(w *model.Withdrawal) {
	var text string
	switch w.Status {
	case model.WithdrawalCompleted:
		text = fmt.Sprintf("Your withdrawal of %s %s has been paid.", fee.Money(w.Amount), t.currency)
	default:
		text = fmt.Sprintf("Your withdrawal of %s %s was rejected. The amount is back on your referral balance.",
			fee.Money(w.Amount), t.currency)
	}
	t.toUser(w.UserID, text)
}

// Close stops accepting notifications and waits for queued ones to be sent
func (t *Telegram) Close() {
	t.pool.Close()
	t.pool.Wait()
}

// FormatWithdrawal renders a withdrawal request for the admin
func FormatWithdrawal(w *model.Withdrawal, currency string) string {
	return fmt.Sprintf("Withdrawal #%d [%s]\nUser: %s (%d)\nAmount: %s %s",
		w.ID, w.Status, displayName(w.Username, w.FirstName, w.UserID), w.UserID, fee.Money(w.Amount), currency)
}

// FormatOrder renders an order for the admin
func FormatOrder(o *model.Order, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d [%s]\n", o.ID, o.Status)
	fmt.Fprintf(&b, "User: %s (%d)\n", displayName(o.Username, o.FirstName, o.UserID), o.UserID)
	fmt.Fprintf(&b, "Sell: %s %s (%s)\n", fee.Crypto(o.CryptoAmount), o.Asset, o.Network)
	fmt.Fprintf(&b, "Receives: %s %s\n", fee.Crypto(o.NetCrypto), o.Asset)
	fmt.Fprintf(&b, "Payout: %s %s via %s\n", fee.Money(o.NetAmount), currency, o.PaymentMethod)
	fmt.Fprintf(&b, "Details: %s\n", o.PaymentDetails)
	fmt.Fprintf(&b, "Fee: %s %s\n", fee.Money(o.Fee), currency)
	fmt.Fprintf(&b, "Proof: %s", o.TxRef)
	return b.String()
}

func (t *Telegram) formatDecisionForUser(o *model.Order) string {
	if o.Status == model.OrderCompleted {
		return fmt.Sprintf("Order #%d completed. %s %s has been sent via %s.",
			o.ID, fee.Money(o.NetAmount), t.currency, o.PaymentMethod)
	}
	return fmt.Sprintf("Order #%d was rejected. Contact support if you think this is a mistake.", o.ID)
}

func displayName(username, firstName string, id int64) string {
	u := model.User{ID: id, Username: username, FirstName: firstName}
	return u.DisplayName()
}
