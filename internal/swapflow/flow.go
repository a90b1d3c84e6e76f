package swapflow

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"cryptoswap/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrUnexpectedInput = errors.New("input not expected at this step")
	ErrInvalidAmount   = errors.New("amount must be a positive number")
	ErrEmptyDetails    = errors.New("payment details are required")
	ErrIncomplete      = errors.New("swap details are not complete")
	ErrNoOrder         = errors.New("no order is waiting for a transaction proof")
)

// State is the step a chat is at while collecting a swap
type State int

const (
	SelectingAsset State = iota
	AwaitingAmount
	AwaitingPaymentMethod
	AwaitingPaymentDetails
	AwaitingNetwork
	AwaitingTxProof
)

func (s State) String() string {
	switch s {
	case SelectingAsset:
		return "selecting_asset"
	case AwaitingAmount:
		return "awaiting_amount"
	case AwaitingPaymentMethod:
		return "awaiting_payment_method"
	case AwaitingPaymentDetails:
		return "awaiting_payment_details"
	case AwaitingNetwork:
		return "awaiting_network"
	case AwaitingTxProof:
		return "awaiting_tx_proof"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Flow collects one swap request. Each step only accepts input in its own
// state; a rejected input leaves the state unchanged.
type Flow struct {
	userID  int64
	state   State
	asset   model.Asset
	amount  decimal.Decimal
	method  model.PaymentMethod
	details string
	network model.Network
	orderID int64
}

func New(userID int64) *Flow {
	return &Flow{userID: userID, state: SelectingAsset}
}

func (f *Flow) State() State {
	return f.state
}

func (f *Flow) Asset() model.Asset {
	return f.asset
}

// OrderID is the draft created for this flow, zero until attached
func (f *Flow) OrderID() int64 {
	return f.orderID
}

func (f *Flow) expect(s State) error {
	if f.state != s {
		return fmt.Errorf("%w: at %s, expected %s", ErrUnexpectedInput, f.state, s)
	}
	return nil
}

func (f *Flow) SelectAsset(input string) error {
	if err := f.expect(SelectingAsset); err != nil {
		return err
	}
	asset, err := model.ParseAsset(input)
	if err != nil {
		return err
	}
	f.asset = asset
	f.state = AwaitingAmount
	return nil
}

func (f *Flow) EnterAmount(input string) error {
	if err := f.expect(AwaitingAmount); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	f.amount = amount
	f.state = AwaitingPaymentMethod
	return nil
}

func (f *Flow) SelectPaymentMethod(input string) error {
	if err := f.expect(AwaitingPaymentMethod); err != nil {
		return err
	}
	method, err := model.ParsePaymentMethod(input)
	if err != nil {
		return err
	}
	f.method = method
	f.state = AwaitingPaymentDetails
	return nil
}

func (f *Flow) EnterPaymentDetails(input string) error {
	if err := f.expect(AwaitingPaymentDetails); err != nil {
		return err
	}
	details := strings.TrimSpace(input)
	if details == "" {
		return ErrEmptyDetails
	}
	f.details = details
	f.state = AwaitingNetwork
	return nil
}

// Networks lists the choices for the selected asset
func (f *Flow) Networks() []model.Network {
	return model.NetworksFor(f.asset)
}

func (f *Flow) SelectNetwork(input string) error {
	if err := f.expect(AwaitingNetwork); err != nil {
		return err
	}
	network, err := model.ParseNetwork(f.asset, input)
	if err != nil {
		return err
	}
	f.network = network
	f.state = AwaitingTxProof
	return nil
}

// Request returns the collected swap once every field is set
func (f *Flow) Request() (model.DraftRequest, error) {
	if f.state != AwaitingTxProof {
		return model.DraftRequest{}, ErrIncomplete
	}
	return model.DraftRequest{
		UserID:         f.userID,
		Asset:          f.asset,
		Amount:         f.amount,
		PaymentMethod:  f.method,
		PaymentDetails: f.details,
		Network:        f.network,
	}, nil
}

// AttachOrder records the draft created from Request
func (f *Flow) AttachOrder(orderID int64) error {
	if err := f.expect(AwaitingTxProof); err != nil {
		return err
	}
	f.orderID = orderID
	return nil
}

// SubmitProof returns the order the proof belongs to
func (f *Flow) SubmitProof(input string) (int64, string, error) {
	if err := f.expect(AwaitingTxProof); err != nil {
		return 0, "", err
	}
	if f.orderID == 0 {
		return 0, "", ErrNoOrder
	}
	proof := strings.TrimSpace(input)
	if proof == "" {
		return 0, "", ErrUnexpectedInput
	}
	return f.orderID, proof, nil
}

// Sessions keeps one flow per chat
type Sessions struct {
	mu    sync.Mutex
	flows map[int64]*Flow
}

func NewSessions() *Sessions {
	return &Sessions{flows: make(map[int64]*Flow)}
}

// Start replaces any flow for userID with a fresh one
func (s *Sessions) Start(userID int64) *Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := New(userID)
	s.flows[userID] = f
	return f
}

func (s *Sessions) Get(userID int64) (*Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[userID]
	return f, ok
}

func (s *Sessions) End(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, userID)
}
