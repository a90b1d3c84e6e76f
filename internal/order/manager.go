package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoswap/internal/database"
	"cryptoswap/internal/fee"
	"cryptoswap/internal/metrics"
	"cryptoswap/internal/model"
	"cryptoswap/internal/notify"
	"cryptoswap/internal/referral"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrInvalidOutcome = errors.New("outcome must be completed or rejected")
	ErrEmptyTxRef     = errors.New("transaction reference is required")
)

const searchLimit = 50

// PriceSource supplies the current unit price of an asset. It never fails.
type PriceSource interface {
	GetUnitPrice(asset model.Asset) decimal.Decimal
}

// AddressBook resolves the receiving wallet for an asset on a network
type AddressBook interface {
	Resolve(asset model.Asset, network model.Network) (string, error)
}

type Options struct {
	DraftTTL     time.Duration
	ReferralRate decimal.Decimal
	Now          func() time.Time
}

// Manager owns every order state transition. Drafts become pending at most
// once; cancelled and expired drafts are deleted.
type Manager struct {
	db           *database.Database
	calc         *fee.Calculator
	prices       PriceSource
	wallets      AddressBook
	ledger       *referral.Ledger
	sink         notify.Sink
	logger       *zap.Logger
	ttl          time.Duration
	referralRate decimal.Decimal
	now          func() time.Time
}

func NewManager(db *database.Database, calc *fee.Calculator, prices PriceSource, wallets AddressBook,
	ledger *referral.Ledger, sink notify.Sink, logger *zap.Logger, opts Options) *Manager {
	if sink == nil {
		sink = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		db:           db,
		calc:         calc,
		prices:       prices,
		wallets:      wallets,
		ledger:       ledger,
		sink:         sink,
		logger:       logger,
		ttl:          opts.DraftTTL,
		referralRate: opts.ReferralRate,
		now:          opts.Now,
	}
}

// CreateDraft prices req and stores it as a draft that expires after the
// configured TTL
func (m *Manager) CreateDraft(ctx context.Context, req model.DraftRequest) (*model.Breakdown, error) {
	if !req.Amount.IsPositive() {
		return nil, fee.ErrInvalidAmount
	}
	asset, err := model.ParseAsset(string(req.Asset))
	if err != nil {
		return nil, err
	}
	network, err := model.ParseNetwork(asset, string(req.Network))
	if err != nil {
		return nil, err
	}
	method, err := model.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return nil, err
	}
	address, err := m.wallets.Resolve(asset, network)
	if err != nil {
		return nil, err
	}

	if _, err := m.db.GetUser(ctx, req.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, referral.ErrUserNotFound
		}
		return nil, err
	}

	price := m.prices.GetUnitPrice(asset)
	quote, err := m.calc.Calculate(req.Amount, price)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	o := &model.Order{
		UserID:         req.UserID,
		Asset:          asset,
		CryptoAmount:   req.Amount,
		NetCrypto:      quote.NetCrypto,
		LocalAmount:    quote.LocalAmount,
		PaymentMethod:  method,
		PaymentDetails: strings.TrimSpace(req.PaymentDetails),
		Network:        network,
		Fee:            quote.FeeValue,
		NetAmount:      quote.NetAmount,
		WalletAddress:  address,
		ExpiresAt:      now.Add(m.ttl),
		CreatedAt:      now,
	}
	if err := m.db.InsertDraft(ctx, o); err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues("created").Inc()
	m.logger.Info("draft created",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.String("asset", string(asset)),
		zap.String("amount", req.Amount.String()),
	)

	return &model.Breakdown{
		OrderID:       o.ID,
		Asset:         asset,
		Network:       network,
		CryptoAmount:  req.Amount,
		CryptoFee:     quote.CryptoFee,
		NetCrypto:     quote.NetCrypto,
		UnitPrice:     price,
		LocalAmount:   quote.LocalAmount,
		Fee:           quote.FeeValue,
		NetAmount:     quote.NetAmount,
		WalletAddress: address,
		ExpiresAt:     o.ExpiresAt,
	}, nil
}

// ConfirmDraft attaches txRef to a draft and makes it pending. It reports
// false when the order is no longer a draft, which covers expired, cancelled
// and already confirmed orders. The referrer, if any, is credited in the
// same transaction.
func (m *Manager) ConfirmDraft(ctx context.Context, id int64, txRef string) (bool, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return false, ErrEmptyTxRef
	}

	var (
		confirmed bool
		o         *model.Order
		credit    *model.ReferralTransaction
	)
	err := m.db.WithTx(ctx, func(tx *database.Tx) error {
		ok, err := tx.MarkPending(ctx, id, txRef)
		if err != nil || !ok {
			return err
		}
		confirmed = true

		if o, err = tx.GetOrder(ctx, id); err != nil {
			return err
		}
		owner, err := tx.GetUser(ctx, o.UserID)
		if err != nil {
			return fmt.Errorf("owner of order %d: %w", id, err)
		}
		if owner.ReferredBy == nil {
			return nil
		}
		credit, err = m.ledger.CreditTx(ctx, tx, *owner.ReferredBy, o.ID, o.Fee.Mul(m.referralRate))
		return err
	})
	if err != nil {
		return false, err
	}
	if !confirmed {
		m.logger.Info("confirm ignored, order is not a draft", zap.Int64("order_id", id))
		return false, nil
	}

	metrics.OrderTransitions.WithLabelValues("confirmed").Inc()
	fields := []zap.Field{zap.Int64("order_id", id), zap.Int64("user_id", o.UserID)}
	if credit != nil {
		metrics.ReferralCredited.Inc()
		fields = append(fields, zap.Int64("referrer_id", credit.ReferrerID), zap.String("referral_amount", credit.Amount.String()))
	}
	m.logger.Info("order pending", fields...)
	m.sink.OrderPending(o)
	return true, nil
}

// CancelDraft deletes a draft owned by userID. Reports whether it did.
func (m *Manager) CancelDraft(ctx context.Context, id, userID int64) (bool, error) {
	ok, err := m.db.DeleteDraft(ctx, id, userID)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.OrderTransitions.WithLabelValues("cancelled").Inc()
		m.logger.Info("draft cancelled", zap.Int64("order_id", id), zap.Int64("user_id", userID))
	}
	return ok, nil
}

// Decide sets a confirmed order to outcome and returns it with its previous
// status. Drafts cannot be decided. Notifications go out only when the order
// leaves pending, so repeating a decision has no side effects.
func (m *Manager) Decide(ctx context.Context, id int64, outcome model.OrderStatus) (*model.Order, model.OrderStatus, error) {
	if !outcome.Terminal() {
		return nil, "", ErrInvalidOutcome
	}

	var (
		prev model.OrderStatus
		o    *model.Order
	)
	err := m.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		if prev, err = tx.SetOrderStatus(ctx, id, outcome); err != nil {
			return err
		}
		o, err = tx.GetOrder(ctx, id)
		return err
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, "", ErrOrderNotFound
	}
	if err != nil {
		return nil, "", err
	}

	if prev == model.OrderPending {
		metrics.OrderTransitions.WithLabelValues(string(outcome)).Inc()
		m.logger.Info("order decided",
			zap.Int64("order_id", id), zap.Int64("user_id", o.UserID), zap.String("status", string(outcome)))
		m.sink.OrderDecided(o)
	} else {
		m.logger.Warn("decision repeated on settled order",
			zap.Int64("order_id", id), zap.String("previous", string(prev)), zap.String("status", string(outcome)))
	}
	return o, prev, nil
}

// Sweep deletes drafts that expired strictly before now and returns how many
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.db.DeleteExpiredDrafts(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.OrderTransitions.WithLabelValues("expired").Add(float64(n))
		m.logger.Info("expired drafts removed", zap.Int64("count", n))
	}
	return n, nil
}

// SweepNow sweeps with the manager's clock
func (m *Manager) SweepNow(ctx context.Context) (int64, error) {
	return m.Sweep(ctx, m.now())
}

func (m *Manager) Get(ctx context.Context, id int64) (*model.Order, error) {
	o, err := m.db.GetOrder(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (m *Manager) ListPending(ctx context.Context) ([]model.Order, error) {
	return m.db.ListOrdersByStatus(ctx, model.OrderPending)
}

func (m *Manager) ListByUser(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	return m.db.ListUserOrders(ctx, userID, limit)
}

func (m *Manager) Search(ctx context.Context, term string) ([]model.Order, error) {
	return m.db.SearchOrders(ctx, term, searchLimit)
}

func (m *Manager) Stats(ctx context.Context) (*model.Stats, error) {
	return m.db.Stats(ctx)
}
