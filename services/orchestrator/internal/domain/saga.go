package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateStarted           State = "STARTED"
	StateInventoryReserved State = "INVENTORY_RESERVED"
	StateOrderCreated      State = "ORDER_CREATED"
	StatePaymentRequested  State = "PAYMENT_REQUESTED"
	StateCompleted         State = "COMPLETED"
	StateCompensating      State = "COMPENSATING"
	StateCompensated       State = "COMPENSATED"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCompensated
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemReserved  ItemStatus = "reserved"
	ItemFailed    ItemStatus = "failed"
	ItemReleasing ItemStatus = "releasing"
	ItemReleased  ItemStatus = "released"
)

type OrderStatus string

const (
	OrderNone       OrderStatus = ""
	OrderRequested  OrderStatus = "requested"
	OrderCreated    OrderStatus = "created"
	OrderFailed     OrderStatus = "failed"
	OrderCancelling OrderStatus = "cancelling"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentRequested PaymentStatus = "requested"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunding PaymentStatus = "refunding"
	PaymentRefunded  PaymentStatus = "refunded"
)

var (
	ErrNoLineItems     = fmt.Errorf("%w: checkout needs at least one line item", aggregate.ErrInvalidArgument)
	ErrInvalidQuantity = fmt.Errorf("%w: line item quantity must be positive", aggregate.ErrInvalidArgument)
	ErrInvalidProduct  = fmt.Errorf("%w: line item product id is required", aggregate.ErrInvalidArgument)
	ErrSagaTerminal    = fmt.Errorf("%w: saga already finished", aggregate.ErrInvalidStateTransition)
	ErrNotCompensating = fmt.Errorf("%w: saga is not compensating", aggregate.ErrInvalidStateTransition)
)

// Policy bounds how long a saga waits on a step and how often compensation
// is re-driven before the saga is reported stuck.
type Policy struct {
	StepTimeout         time.Duration
	CompensationTimeout time.Duration
	MaxCompensations    int
}

func DefaultPolicy() Policy {
	return Policy{
		StepTimeout:         30 * time.Second,
		CompensationTimeout: 30 * time.Second,
		MaxCompensations:    5,
	}
}

var sagaNamespace = uuid.MustParse("3b241101-e2bb-4255-8caf-4136c566a962")

// SagaIDFor derives the saga id from a client idempotency key so a repeated
// checkout request lands on the same saga.
func SagaIDFor(idempotencyKey string) string {
	return uuid.NewSHA1(sagaNamespace, []byte("checkout/"+idempotencyKey)).String()
}

type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Status    ItemStatus      `json:"status"`
}

// Saga is the Create-Order saga instance. It is stored like any other
// aggregate; every mutation records a SagaUpdated event for the read side.
type Saga struct {
	aggregate.Root

	ConsumerID    string          `json:"consumerId"`
	CartID        string          `json:"cartId,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []Item          `json:"items"`
	State         State           `json:"state"`
	OrderID       string          `json:"orderId"`
	PaymentID     string          `json:"paymentId"`
	Total         decimal.Decimal `json:"total"`
	OrderStatus   OrderStatus     `json:"orderStatus,omitempty"`
	PaymentStatus PaymentStatus   `json:"paymentStatus,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	Deadline      time.Time       `json:"deadline"`
	Attempts      int             `json:"attempts"`
	Stuck         bool            `json:"stuck"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func NewSaga(id string) *Saga {
	return &Saga{Root: aggregate.Root{AggregateID: id}}
}

func (s *Saga) IsArchived() bool {
	return s.State.Terminal()
}

// Start validates the line items, merging repeated products, and issues one
// ReserveInventory per product.
func (s *Saga) Start(
	consumerID, cartID, paymentMethod string,
	lineItems []generalDomain.LineItem,
	policy Policy,
	now time.Time,
) ([]messaging.Message, error) {
	if len(lineItems) == 0 {
		return nil, ErrNoLineItems
	}

	var items []Item
	index := make(map[string]int)
	for _, li := range lineItems {
		if li.ProductID == "" {
			return nil, ErrInvalidProduct
		}
		if li.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, li.ProductID)
		}

		if i, ok := index[li.ProductID]; ok {
			items[i].Quantity += li.Quantity
			continue
		}

		index[li.ProductID] = len(items)
		items = append(items, Item{ProductID: li.ProductID, Quantity: li.Quantity, Status: ItemPending})
	}

	s.ConsumerID = consumerID
	s.CartID = cartID
	s.PaymentMethod = paymentMethod
	s.Items = items
	s.State = StateStarted
	s.OrderID = uuid.NewSHA1(sagaNamespace, []byte(s.ID()+"/order")).String()
	s.PaymentID = uuid.NewSHA1(sagaNamespace, []byte(s.ID()+"/payment")).String()
	s.Deadline = now.Add(policy.StepTimeout)
	s.CreatedAt = now

	cmds := make([]messaging.Message, 0, len(items))
	for _, item := range items {
		cmd, err := s.command(
			generalDomain.InventoryCommands,
			generalDomain.ReserveInventory,
			generalDomain.AggregateInventory,
			item.ProductID,
			item.ProductID,
			generalDomain.ReserveInventoryCommand{
				ReservationID: s.ReservationID(item.ProductID),
				ProductID:     item.ProductID,
				Quantity:      item.Quantity,
			},
		)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	return cmds, s.record(now)
}

// Apply advances the saga with a participant reply. Replies that do not match
// the step the saga waits on are ignored and reported as unchanged.
func (s *Saga) Apply(env messaging.Envelope, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	if env.CorrelationID != s.ID() || s.State.Terminal() {
		return nil, false, nil
	}

	var (
		cmds    []messaging.Message
		changed bool
		err     error
	)

	switch env.Type {
	case generalDomain.InventoryReserved:
		cmds, changed, err = s.onInventoryReserved(env, policy, now)
	case generalDomain.InventoryReservationFailed:
		cmds, changed, err = s.onReservationFailed(env, policy, now)
	case generalDomain.InventoryReleased:
		changed, err = s.onInventoryReleased(env)
	case generalDomain.OrderCreated:
		cmds, changed, err = s.onOrderCreated(env, policy, now)
	case generalDomain.OrderCreationFailed:
		cmds, changed, err = s.onOrderCreationFailed(env, policy, now)
	case generalDomain.OrderCancelled:
		changed = s.onOrderCancelled(env)
	case generalDomain.PaymentCreated:
		changed = s.onPaymentCreated(env, policy, now)
	case generalDomain.PaymentCompleted:
		cmds, changed, err = s.onPaymentCompleted(env)
	case generalDomain.PaymentFailed:
		cmds, changed, err = s.onPaymentFailed(env, policy, now)
	case generalDomain.PaymentRefunded:
		changed = s.onPaymentRefunded(env)
	}

	if err != nil || !changed {
		return nil, false, err
	}

	s.settle()

	return cmds, true, s.record(now)
}

// Expire enforces the current deadline. A forward step that timed out starts
// compensation; a compensation that timed out is re-driven until the retry
// budget is spent and the saga is marked stuck.
func (s *Saga) Expire(policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	if s.State.Terminal() || s.Stuck || now.Before(s.Deadline) {
		return nil, false, nil
	}

	var (
		cmds []messaging.Message
		err  error
	)

	if s.State == StateCompensating {
		s.Attempts++
		if s.Attempts >= policy.MaxCompensations {
			s.Stuck = true
		} else {
			s.Deadline = now.Add(policy.CompensationTimeout)
			cmds, err = s.compensations()
		}
	} else {
		cmds, err = s.compensate(fmt.Sprintf("step %s timed out", s.State), policy, now)
	}
	if err != nil {
		return nil, false, err
	}

	return cmds, true, s.record(now)
}

// Abort drives a running saga to compensation on operator request. Aborting a
// saga that is already compensating changes nothing.
func (s *Saga) Abort(reason string, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	switch {
	case s.State.Terminal():
		return nil, false, fmt.Errorf("%w: %s is %s", ErrSagaTerminal, s.ID(), s.State)
	case s.State == StateCompensating:
		return nil, false, nil
	}

	if reason == "" {
		reason = "operator request"
	}

	cmds, err := s.compensate("aborted: "+reason, policy, now)
	if err != nil {
		return nil, false, err
	}

	return cmds, true, s.record(now)
}

// Retry re-issues every outstanding compensation with a fresh retry budget.
// wasStuck reports whether the saga had been marked stuck.
func (s *Saga) Retry(policy Policy, now time.Time) (cmds []messaging.Message, wasStuck bool, err error) {
	if s.State != StateCompensating {
		return nil, false, fmt.Errorf("%w: %s is %s", ErrNotCompensating, s.ID(), s.State)
	}

	wasStuck = s.Stuck
	s.Stuck = false
	s.Attempts = 0
	s.Deadline = now.Add(policy.CompensationTimeout)

	cmds, err = s.compensations()
	if err != nil {
		return nil, false, err
	}

	return cmds, wasStuck, s.record(now)
}

func (s *Saga) Payload() generalDomain.SagaPayload {
	return generalDomain.SagaPayload{
		SagaID:        s.ID(),
		ConsumerID:    s.ConsumerID,
		State:         string(s.State),
		Terminal:      s.State.Terminal(),
		Stuck:         s.Stuck,
		OrderID:       s.visibleOrderID(),
		Total:         s.Total,
		FailureReason: s.FailureReason,
		UpdatedAt:     s.UpdatedAt,
	}
}

// ReservationID names the reservation the saga holds on one product.
func (s *Saga) ReservationID(productID string) string {
	return s.ID() + ":" + productID
}

// Key is the idempotency key of a saga step, optionally scoped to a product.
func (s *Saga) Key(step, productID string) string {
	if productID == "" {
		return s.ID() + ":" + step
	}

	return s.ID() + ":" + step + ":" + productID
}

func (s *Saga) onInventoryReserved(env messaging.Envelope, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	var p generalDomain.ReservationPayload
	if err := env.Decode(&p); err != nil {
		return nil, false, err
	}

	item := s.reservation(p)
	if item == nil || s.State != StateStarted || item.Status != ItemPending {
		return nil, false, nil
	}

	item.Status = ItemReserved
	item.Name = p.Name
	item.UnitPrice = p.UnitPrice

	for _, it := range s.Items {
		if it.Status != ItemReserved {
			return nil, true, nil
		}
	}

	lineItems := make([]generalDomain.LineItem, 0, len(s.Items))
	total := decimal.Zero
	for _, it := range s.Items {
		lineItems = append(lineItems, generalDomain.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}

	s.State = StateInventoryReserved
	s.Total = total
	s.OrderStatus = OrderRequested
	s.Deadline = now.Add(policy.StepTimeout)

	cmd, err := s.command(
		generalDomain.OrderCommands,
		generalDomain.CreateOrder,
		generalDomain.AggregateOrder,
		s.OrderID,
		"",
		generalDomain.CreateOrderCommand{
			OrderID:    s.OrderID,
			ConsumerID: s.ConsumerID,
			Items:      lineItems,
			Total:      total,
		},
	)
	if err != nil {
		return nil, false, err
	}

	return []messaging.Message{cmd}, true, nil
}

func (s *Saga) onReservationFailed(env messaging.Envelope, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	var p generalDomain.ReservationPayload
	if err := env.Decode(&p); err != nil {
		return nil, false, err
	}

	item := s.reservation(p)
	if item == nil || s.State != StateStarted || item.Status != ItemPending {
		return nil, false, nil
	}

	item.Status = ItemFailed

	cmds, err := s.compensate(fmt.Sprintf("reservation of %s failed: %s", p.ProductID, p.Reason), policy, now)
	if err != nil {
		return nil, false, err
	}

	return cmds, true, nil
}

func (s *Saga) onInventoryReleased(env messaging.Envelope) (bool, error) {
	var p generalDomain.ReservationPayload
	if err := env.Decode(&p); err != nil {
		return false, err
	}

	item := s.reservation(p)
	if item == nil || s.State != StateCompensating || item.Status != ItemReleasing {
		return false, nil
	}

	item.Status = ItemReleased

	return true, nil
}

func (s *Saga) onOrderCreated(env messaging.Envelope, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	if env.AggregateID != s.OrderID || s.State != StateInventoryReserved {
		return nil, false, nil
	}

	s.State = StateOrderCreated
	s.OrderStatus = OrderCreated
	s.PaymentStatus = PaymentRequested
	s.Deadline = now.Add(policy.StepTimeout)

	cmd, err := s.command(
		generalDomain.PaymentCommands,
		generalDomain.ProcessPayment,
		generalDomain.AggregatePayment,
		s.PaymentID,
		"",
		generalDomain.ProcessPaymentCommand{
			PaymentID:  s.PaymentID,
			OrderID:    s.OrderID,
			ConsumerID: s.ConsumerID,
			Amount:     s.Total,
			Method:     s.PaymentMethod,
		},
	)
	if err != nil {
		return nil, false, err
	}

	return []messaging.Message{cmd}, true, nil
}

func (s *Saga) onOrderCreationFailed(env messaging.Envelope, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	if env.AggregateID != s.OrderID || s.State != StateInventoryReserved {
		return nil, false, nil
	}

	var p generalDomain.OrderPayload
	if err := env.Decode(&p); err != nil {
		return nil, false, err
	}

	s.OrderStatus = OrderFailed

	cmds, err := s.compensate("order creation failed: "+p.Reason, policy, now)
	if err != nil {
		return nil, false, err
	}

	return cmds, true, nil
}

func (s *Saga) onOrderCancelled(env messaging.Envelope) bool {
	if env.AggregateID != s.OrderID || s.OrderStatus != OrderCancelling {
		return false
	}

	s.OrderStatus = OrderCancelled

	return true
}

func (s *Saga) onPaymentCreated(env messaging.Envelope, policy Policy, now time.Time) bool {
	if env.AggregateID != s.PaymentID || s.State != StateOrderCreated {
		return false
	}

	s.State = StatePaymentRequested
	s.Deadline = now.Add(policy.StepTimeout)

	return true
}

func (s *Saga) onPaymentCompleted(env messaging.Envelope) ([]messaging.Message, bool, error) {
	if env.AggregateID != s.PaymentID || !s.awaitingPayment() {
		return nil, false, nil
	}

	s.State = StateCompleted
	s.PaymentStatus = PaymentCompleted
	s.Deadline = time.Time{}

	cmds := make([]messaging.Message, 0, len(s.Items)+2)

	cmd, err := s.command(
		generalDomain.OrderCommands,
		generalDomain.ConfirmOrder,
		generalDomain.AggregateOrder,
		s.OrderID,
		"",
		generalDomain.ConfirmOrderCommand{OrderID: s.OrderID},
	)
	if err != nil {
		return nil, false, err
	}
	cmds = append(cmds, cmd)

	for _, item := range s.Items {
		cmd, err := s.command(
			generalDomain.InventoryCommands,
			generalDomain.ConfirmInventory,
			generalDomain.AggregateInventory,
			item.ProductID,
			item.ProductID,
			generalDomain.ConfirmInventoryCommand{
				ReservationID: s.ReservationID(item.ProductID),
				ProductID:     item.ProductID,
			},
		)
		if err != nil {
			return nil, false, err
		}
		cmds = append(cmds, cmd)
	}

	if s.CartID != "" {
		cmd, err := s.command(
			generalDomain.CartCommands,
			generalDomain.CheckOutCart,
			generalDomain.AggregateCart,
			s.CartID,
			"",
			generalDomain.CheckOutCartCommand{CartID: s.CartID, SagaID: s.ID()},
		)
		if err != nil {
			return nil, false, err
		}
		cmds = append(cmds, cmd)
	}

	return cmds, true, nil
}

func (s *Saga) onPaymentFailed(env messaging.Envelope, policy Policy, now time.Time) ([]messaging.Message, bool, error) {
	if env.AggregateID != s.PaymentID {
		return nil, false, nil
	}

	if s.State == StateCompensating && s.PaymentStatus == PaymentRefunding {
		s.PaymentStatus = PaymentFailed
		return nil, true, nil
	}

	if !s.awaitingPayment() {
		return nil, false, nil
	}

	var p generalDomain.PaymentPayload
	if err := env.Decode(&p); err != nil {
		return nil, false, err
	}

	s.PaymentStatus = PaymentFailed

	cmds, err := s.compensate("payment failed: "+p.Reason, policy, now)
	if err != nil {
		return nil, false, err
	}

	return cmds, true, nil
}

func (s *Saga) onPaymentRefunded(env messaging.Envelope) bool {
	if env.AggregateID != s.PaymentID || s.PaymentStatus != PaymentRefunding {
		return false
	}

	s.PaymentStatus = PaymentRefunded

	return true
}

func (s *Saga) awaitingPayment() bool {
	return s.State == StateOrderCreated || s.State == StatePaymentRequested
}

// compensate marks every step that may have taken effect for undoing and
// issues the compensating commands.
func (s *Saga) compensate(reason string, policy Policy, now time.Time) ([]messaging.Message, error) {
	s.State = StateCompensating
	s.FailureReason = reason
	s.Attempts = 0
	s.Deadline = now.Add(policy.CompensationTimeout)

	for i := range s.Items {
		if s.Items[i].Status == ItemPending || s.Items[i].Status == ItemReserved {
			s.Items[i].Status = ItemReleasing
		}
	}

	if s.OrderStatus == OrderRequested || s.OrderStatus == OrderCreated {
		s.OrderStatus = OrderCancelling
	}

	if s.PaymentStatus == PaymentRequested || s.PaymentStatus == PaymentCompleted {
		s.PaymentStatus = PaymentRefunding
	}

	s.settle()
	if s.State != StateCompensating {
		return nil, nil
	}

	return s.compensations()
}

// compensations builds the commands for every compensation still awaiting
// acknowledgement. Keys are stable so participants treat re-issues as
// duplicates.
func (s *Saga) compensations() ([]messaging.Message, error) {
	var cmds []messaging.Message

	for _, item := range s.Items {
		if item.Status != ItemReleasing {
			continue
		}

		cmd, err := s.command(
			generalDomain.InventoryCommands,
			generalDomain.ReleaseInventory,
			generalDomain.AggregateInventory,
			item.ProductID,
			item.ProductID,
			generalDomain.ReleaseInventoryCommand{
				ReservationID: s.ReservationID(item.ProductID),
				ProductID:     item.ProductID,
			},
		)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	if s.OrderStatus == OrderCancelling {
		cmd, err := s.command(
			generalDomain.OrderCommands,
			generalDomain.CancelOrder,
			generalDomain.AggregateOrder,
			s.OrderID,
			"",
			generalDomain.CancelOrderCommand{OrderID: s.OrderID, Reason: s.FailureReason},
		)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	if s.PaymentStatus == PaymentRefunding {
		cmd, err := s.command(
			generalDomain.PaymentCommands,
			generalDomain.RefundPayment,
			generalDomain.AggregatePayment,
			s.PaymentID,
			"",
			generalDomain.RefundPaymentCommand{PaymentID: s.PaymentID, OrderID: s.OrderID, Reason: s.FailureReason},
		)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	return cmds, nil
}

// settle finishes compensation once nothing is left to undo.
func (s *Saga) settle() {
	if s.State != StateCompensating {
		return
	}

	for _, item := range s.Items {
		if item.Status == ItemReleasing {
			return
		}
	}

	if s.OrderStatus == OrderCancelling || s.PaymentStatus == PaymentRefunding {
		return
	}

	s.State = StateCompensated
	s.Stuck = false
	s.Deadline = time.Time{}
}

func (s *Saga) reservation(p generalDomain.ReservationPayload) *Item {
	if p.ReservationID != s.ReservationID(p.ProductID) {
		return nil
	}

	for i := range s.Items {
		if s.Items[i].ProductID == p.ProductID {
			return &s.Items[i]
		}
	}

	return nil
}

func (s *Saga) visibleOrderID() string {
	if s.OrderStatus == OrderNone || s.OrderStatus == OrderRequested || s.OrderStatus == OrderFailed {
		return ""
	}

	return s.OrderID
}

func (s *Saga) command(topic, messageType, aggregateType, aggregateID, productID string, payload any) (messaging.Message, error) {
	return generalDomain.NewCommand(topic, messageType, aggregateType, aggregateID, s.ID(), s.Key(messageType, productID), payload)
}

func (s *Saga) record(now time.Time) error {
	s.UpdatedAt = now

	return s.Record(generalDomain.AggregateSaga, generalDomain.SagaUpdated, s.Payload())
}

// IsBusinessError reports errors that must not be retried.
func IsBusinessError(err error) bool {
	return errors.Is(err, aggregate.ErrInvalidArgument) || errors.Is(err, aggregate.ErrInvalidStateTransition)
}
