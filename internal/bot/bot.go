package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cryptoswap/internal/fee"
	"cryptoswap/internal/model"
	"cryptoswap/internal/order"
	"cryptoswap/internal/referral"
	"cryptoswap/internal/swapflow"
	"cryptoswap/internal/wallet"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// API is the subset of *tgbotapi.BotAPI the bot needs
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const (
	cbAsset   = "asset:"
	cbMethod  = "method:"
	cbNetwork = "net:"
	cbCancel  = "cancel:"
	cbSwap    = "swap"
)

type Config struct {
	Username       string // bot username, used for referral links
	Currency       string
	SupportContact string
	AdminChatID    int64 // zero disables the admin commands
}

// Bot turns chat updates into calls on the order manager and the referral
// ledger. All business rules live there.
type Bot struct {
	api      API
	orders   *order.Manager
	ledger   *referral.Ledger
	sessions *swapflow.Sessions
	cfg      Config
	logger   *zap.Logger
}

func New(api API, orders *order.Manager, ledger *referral.Ledger, cfg Config, logger *zap.Logger) *Bot {
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &Bot{
		api:      api,
		orders:   orders,
		ledger:   ledger,
		sessions: swapflow.NewSessions(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run polls for updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot polling started", zap.String("username", b.cfg.Username))
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if _, err := b.ledger.EnsureUser(ctx, userID, msg.From.UserName, msg.From.FirstName); err != nil {
		b.logger.Error("failed to register user", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "Something went wrong, please try again later.")
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.start(ctx, chatID, userID, msg.CommandArguments())
		case "swap":
			b.startSwap(chatID, userID)
		case "orders":
			b.listOrders(ctx, chatID, userID)
		case "myref":
			b.referralInfo(ctx, chatID, userID)
		case "withdraw":
			b.withdraw(ctx, chatID, userID)
		case "support":
			b.reply(chatID, "Contact support: "+b.cfg.SupportContact)
		case "cancel":
			b.cancel(ctx, chatID, userID)
		case "admin":
			b.adminPanel(ctx, chatID, userID)
		case "find":
			b.adminSearch(ctx, chatID, userID, msg.CommandArguments())
		default:
			b.reply(chatID, "Unknown command. Use /swap to start.")
		}
		return
	}

	flow, ok := b.sessions.Get(userID)
	if !ok {
		b.reply(chatID, "Use /swap to sell crypto.")
		return
	}

	switch flow.State() {
	case swapflow.AwaitingAmount:
		if err := flow.EnterAmount(msg.Text); err != nil {
			b.reply(chatID, "Please enter a positive number, e.g. 100 or 0.5")
			return
		}
		b.send(chatID, "Choose how you want to be paid:", methodKeyboard())
	case swapflow.AwaitingPaymentDetails:
		if err := flow.EnterPaymentDetails(msg.Text); err != nil {
			b.reply(chatID, "Please send your payment details.")
			return
		}
		b.send(chatID, fmt.Sprintf("Which network will you send %s on?", flow.Asset()), networkKeyboard(flow.Networks()))
	case swapflow.AwaitingTxProof:
		b.submitProof(ctx, chatID, userID, flow, msg.Text)
	default:
		b.reply(chatID, "Please use the buttons above.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Debug("callback answer failed", zap.Error(err))
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID
	userID := q.From.ID

	if q.Data == cbSwap {
		b.startSwap(chatID, userID)
		return
	}
	if strings.HasPrefix(q.Data, cbCancel) {
		id, err := strconv.ParseInt(strings.TrimPrefix(q.Data, cbCancel), 10, 64)
		if err == nil {
			b.cancelOrder(ctx, chatID, userID, id)
		}
		return
	}
	if b.handleAdminCallback(ctx, chatID, userID, q) {
		return
	}

	flow, ok := b.sessions.Get(userID)
	if !ok {
		b.reply(chatID, "This swap has ended. Use /swap to start a new one.")
		return
	}

	switch {
	case strings.HasPrefix(q.Data, cbAsset):
		if err := flow.SelectAsset(strings.TrimPrefix(q.Data, cbAsset)); err != nil {
			b.reply(chatID, "Please follow the current step.")
			return
		}
		b.reply(chatID, fmt.Sprintf("How much %s do you want to sell?", flow.Asset()))
	case strings.HasPrefix(q.Data, cbMethod):
		if err := flow.SelectPaymentMethod(strings.TrimPrefix(q.Data, cbMethod)); err != nil {
			b.reply(chatID, "Please follow the current step.")
			return
		}
		b.reply(chatID, "Send your payment details (UPI id, account number and IFSC, or phone number).")
	case strings.HasPrefix(q.Data, cbNetwork):
		if err := flow.SelectNetwork(strings.TrimPrefix(q.Data, cbNetwork)); err != nil {
			b.reply(chatID, "Please follow the current step.")
			return
		}
		b.createDraft(ctx, chatID, userID, flow)
	}
}

func (b *Bot) start(ctx context.Context, chatID, userID int64, code string) {
	if code = strings.TrimSpace(code); code != "" {
		referrer, err := b.ledger.AttachReferrer(ctx, userID, code)
		switch {
		case err == nil:
			b.reply(chatID, fmt.Sprintf("You were invited by %s.", referrer.DisplayName()))
		case errors.Is(err, referral.ErrAlreadyReferred), errors.Is(err, referral.ErrSelfReferral):
		case errors.Is(err, referral.ErrReferrerNotFound):
			b.reply(chatID, "That invite code is not valid.")
		default:
			b.logger.Error("attach referrer failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Sell crypto", cbSwap)),
	)
	b.send(chatID, "Welcome! Sell USDT, BTC or ETH and get paid in "+b.cfg.Currency+".\n\n"+
		"/swap - start a swap\n/orders - your orders\n/myref - referral program\n/withdraw - withdraw referral earnings\n/support - contact support",
		keyboard)
}

func (b *Bot) startSwap(chatID, userID int64) {
	b.sessions.Start(userID)
	b.send(chatID, "Which crypto do you want to sell?", assetKeyboard())
}

func (b *Bot) createDraft(ctx context.Context, chatID, userID int64, flow *swapflow.Flow) {
	req, err := flow.Request()
	if err != nil {
		b.reply(chatID, "Please complete every step first.")
		return
	}

	breakdown, err := b.orders.CreateDraft(ctx, req)
	if err != nil {
		b.sessions.End(userID)
		if errors.Is(err, wallet.ErrAddressNotConfigured) {
			b.logger.Error("wallet missing", zap.String("asset", string(req.Asset)), zap.String("network", string(req.Network)))
			b.reply(chatID, "This network is temporarily unavailable. Please choose another one with /swap.")
			return
		}
		b.logger.Error("create draft failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "Could not create your order. Please try again.")
		return
	}
	if err := flow.AttachOrder(breakdown.OrderID); err != nil {
		b.logger.Error("attach order to flow", zap.Error(err))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Cancel order", cbCancel+strconv.FormatInt(breakdown.OrderID, 10))),
	)
	b.send(chatID, b.formatBreakdown(breakdown), keyboard)
}

func (b *Bot) submitProof(ctx context.Context, chatID, userID int64, flow *swapflow.Flow, text string) {
	orderID, proof, err := flow.SubmitProof(text)
	if err != nil {
		b.reply(chatID, "Please send the transaction link or hash.")
		return
	}

	ok, err := b.orders.ConfirmDraft(ctx, orderID, proof)
	if err != nil {
		b.logger.Error("confirm failed", zap.Int64("order_id", orderID), zap.Error(err))
		b.reply(chatID, "Could not submit your proof. Please try again.")
		return
	}
	b.sessions.End(userID)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Order #%d has expired or was already submitted. Use /swap to start again.", orderID))
		return
	}
	b.reply(chatID, fmt.Sprintf("Order #%d submitted. We will notify you once it is reviewed.", orderID))
}

func (b *Bot) cancel(ctx context.Context, chatID, userID int64) {
	flow, ok := b.sessions.Get(userID)
	if !ok {
		b.reply(chatID, "Nothing to cancel.")
		return
	}
	if id := flow.OrderID(); id != 0 {
		b.cancelOrder(ctx, chatID, userID, id)
		return
	}
	b.sessions.End(userID)
	b.reply(chatID, "Swap cancelled.")
}

func (b *Bot) cancelOrder(ctx context.Context, chatID, userID, orderID int64) {
	ok, err := b.orders.CancelDraft(ctx, orderID, userID)
	if err != nil {
		b.logger.Error("cancel failed", zap.Int64("order_id", orderID), zap.Error(err))
		b.reply(chatID, "Could not cancel the order. Please try again.")
		return
	}
	if flow, found := b.sessions.Get(userID); found && flow.OrderID() == orderID {
		b.sessions.End(userID)
	}
	if !ok {
		b.reply(chatID, fmt.Sprintf("Order #%d can no longer be cancelled.", orderID))
		return
	}
	b.reply(chatID, fmt.Sprintf("Order #%d cancelled.", orderID))
}

func (b *Bot) listOrders(ctx context.Context, chatID, userID int64) {
	orders, err := b.orders.ListByUser(ctx, userID, 10)
	if err != nil {
		b.logger.Error("list orders failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "Could not load your orders.")
		return
	}
	if len(orders) == 0 {
		b.reply(chatID, "You have no orders yet. Use /swap to start.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your recent orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n#%d %s %s -> %s %s [%s]", o.ID, fee.Crypto(o.CryptoAmount), o.Asset,
			fee.Money(o.NetAmount), b.cfg.Currency, o.Status)
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) referralInfo(ctx context.Context, chatID, userID int64) {
	s, err := b.ledger.Summary(ctx, userID)
	if err != nil {
		b.logger.Error("referral summary failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "Could not load your referral info.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Your invite link: https://t.me/%s?start=%s\n\nInvited users: %d\nBalance: %s %s\nTotal earned: %s %s",
		b.cfg.Username, s.ReferralCode, s.ReferredUsers,
		fee.Money(s.Balance), b.cfg.Currency, fee.Money(s.TotalEarned), b.cfg.Currency))
}

func (b *Bot) withdraw(ctx context.Context, chatID, userID int64) {
	w, err := b.ledger.RequestWithdrawal(ctx, userID)
	if errors.Is(err, referral.ErrNothingToWithdraw) {
		b.reply(chatID, "Your referral balance is empty.")
		return
	}
	if err != nil {
		b.logger.Error("withdrawal failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "Could not request a withdrawal. Please try again.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Withdrawal #%d of %s %s requested. An admin will process it soon.",
		w.ID, fee.Money(w.Amount), b.cfg.Currency))
}

func (b *Bot) formatBreakdown(br *model.Breakdown) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Order #%d\n\n", br.OrderID)
	fmt.Fprintf(&sb, "Amount: %s %s\n", fee.Crypto(br.CryptoAmount), br.Asset)
	fmt.Fprintf(&sb, "Fee: %s %s (%s %s)\n", fee.Crypto(br.CryptoFee), br.Asset, fee.Money(br.Fee), b.cfg.Currency)
	fmt.Fprintf(&sb, "Send exactly: %s %s\n", fee.Crypto(br.NetCrypto), br.Asset)
	fmt.Fprintf(&sb, "You receive: %s %s\n\n", fee.Money(br.NetAmount), b.cfg.Currency)
	fmt.Fprintf(&sb, "Send to (%s):\n%s\n\n", br.Network, br.WalletAddress)
	fmt.Fprintf(&sb, "This order expires at %s UTC. Reply with the transaction link or hash once sent.",
		br.ExpiresAt.UTC().Format("15:04"))
	return sb.String()
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) send(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func assetKeyboard() tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(model.Assets))
	for _, a := range model.Assets {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(string(a), cbAsset+string(a)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func methodKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(model.PaymentMethods))
	for _, m := range model.PaymentMethods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(string(m), cbMethod+string(m))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func networkKeyboard(networks []model.Network) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(networks))
	for _, n := range networks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(string(n), cbNetwork+string(n))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
