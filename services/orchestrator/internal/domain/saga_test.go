package domain

import (
	"testing"
	"time"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	policy = Policy{StepTimeout: time.Minute, CompensationTimeout: 10 * time.Second, MaxCompensations: 3}
)

func start(t *testing.T) *Saga {
	t.Helper()

	sg := NewSaga("saga-1")
	cmds, err := sg.Start("consumer-1", "", "card", []generalDomain.LineItem{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 1},
	}, policy, t0)
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	return sg
}

func reply(sg *Saga, messageType, aggregateID string, payload any) messaging.Envelope {
	msg, err := generalDomain.NewReply("test.events", messageType, "", aggregateID, payload)
	if err != nil {
		panic(err)
	}

	env := msg.Envelope
	env.CorrelationID = sg.ID()

	return env
}

func reservation(sg *Saga, messageType, productID string, price int64) messaging.Envelope {
	return reply(sg, messageType, productID, generalDomain.ReservationPayload{
		ReservationID: sg.ReservationID(productID),
		ProductID:     productID,
		Name:          "product " + productID,
		UnitPrice:     decimal.NewFromInt(price),
		Reason:        "insufficient stock",
	})
}

func apply(t *testing.T, sg *Saga, env messaging.Envelope) ([]messaging.Message, bool) {
	t.Helper()

	cmds, changed, err := sg.Apply(env, policy, t0)
	require.NoError(t, err)

	return cmds, changed
}

func types(cmds []messaging.Message) []string {
	out := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, cmd.Envelope.Type)
	}

	return out
}

func reserveAll(t *testing.T, sg *Saga) []messaging.Message {
	t.Helper()

	apply(t, sg, reservation(sg, generalDomain.InventoryReserved, "a", 2))
	cmds, _ := apply(t, sg, reservation(sg, generalDomain.InventoryReserved, "b", 5))

	return cmds
}

func TestSaga_StartMergesLineItems(t *testing.T) {
	sg := start(t)

	require.Len(t, sg.Items, 2)
	assert.Equal(t, int64(3), sg.Items[0].Quantity)
	assert.Equal(t, StateStarted, sg.State)
	assert.Equal(t, t0.Add(policy.StepTimeout), sg.Deadline)
	assert.Equal(t, int64(1), sg.Version())

	events := sg.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, generalDomain.SagaUpdated, events[0].Kind)
}

func TestSaga_StartValidation(t *testing.T) {
	_, err := NewSaga("s").Start("c", "", "card", nil, policy, t0)
	assert.ErrorIs(t, err, ErrNoLineItems)

	_, err = NewSaga("s").Start("c", "", "card", []generalDomain.LineItem{{ProductID: "a"}}, policy, t0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSaga_HappyPath(t *testing.T) {
	sg := start(t)
	sg.CartID = "cart-1"

	cmds := reserveAll(t, sg)
	require.Equal(t, []string{generalDomain.CreateOrder}, types(cmds))
	assert.Equal(t, StateInventoryReserved, sg.State)
	assert.True(t, sg.Total.Equal(decimal.NewFromInt(11)))

	var create generalDomain.CreateOrderCommand
	require.NoError(t, cmds[0].Envelope.Decode(&create))
	assert.True(t, create.Total.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, "saga-1:CreateOrder", cmds[0].Envelope.IdempotencyKey)
	assert.Equal(t, "saga-1", cmds[0].Envelope.CorrelationID)

	cmds, _ = apply(t, sg, reply(sg, generalDomain.OrderCreated, sg.OrderID, nil))
	require.Equal(t, []string{generalDomain.ProcessPayment}, types(cmds))
	assert.Equal(t, StateOrderCreated, sg.State)

	_, changed := apply(t, sg, reply(sg, generalDomain.PaymentCreated, sg.PaymentID, nil))
	assert.True(t, changed)
	assert.Equal(t, StatePaymentRequested, sg.State)

	cmds, _ = apply(t, sg, reply(sg, generalDomain.PaymentCompleted, sg.PaymentID, nil))
	assert.Equal(t, []string{
		generalDomain.ConfirmOrder,
		generalDomain.ConfirmInventory,
		generalDomain.ConfirmInventory,
		generalDomain.CheckOutCart,
	}, types(cmds))
	assert.Equal(t, StateCompleted, sg.State)
	assert.True(t, sg.IsArchived())
	assert.Equal(t, sg.OrderID, sg.Payload().OrderID)

	_, changed = apply(t, sg, reply(sg, generalDomain.PaymentCompleted, sg.PaymentID, nil))
	assert.False(t, changed)
}

func TestSaga_PriceCapturedAtReservation(t *testing.T) {
	sg := start(t)
	reserveAll(t, sg)

	assert.True(t, sg.Items[0].UnitPrice.Equal(decimal.NewFromInt(2)))
	assert.True(t, sg.Items[1].UnitPrice.Equal(decimal.NewFromInt(5)))
}

func TestSaga_PaymentFailedCompensates(t *testing.T) {
	sg := start(t)
	reserveAll(t, sg)
	apply(t, sg, reply(sg, generalDomain.OrderCreated, sg.OrderID, nil))

	cmds, _ := apply(t, sg, reply(sg, generalDomain.PaymentFailed, sg.PaymentID, generalDomain.PaymentPayload{Reason: "declined"}))
	assert.Equal(t, []string{generalDomain.ReleaseInventory, generalDomain.ReleaseInventory, generalDomain.CancelOrder}, types(cmds))
	assert.Equal(t, StateCompensating, sg.State)
	assert.Equal(t, "payment failed: declined", sg.FailureReason)

	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "a", 2))
	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "b", 5))
	assert.Equal(t, StateCompensating, sg.State)

	apply(t, sg, reply(sg, generalDomain.OrderCancelled, sg.OrderID, nil))
	assert.Equal(t, StateCompensated, sg.State)
	assert.True(t, sg.IsArchived())
}

func TestSaga_ReservationFailureReleasesReserved(t *testing.T) {
	sg := start(t)

	apply(t, sg, reservation(sg, generalDomain.InventoryReserved, "a", 2))
	cmds, _ := apply(t, sg, reservation(sg, generalDomain.InventoryReservationFailed, "b", 5))

	require.Equal(t, []string{generalDomain.ReleaseInventory}, types(cmds))
	assert.Equal(t, "saga-1:ReleaseInventory:a", cmds[0].Envelope.IdempotencyKey)
	assert.Equal(t, ItemFailed, sg.Items[1].Status)

	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "a", 2))
	assert.Equal(t, StateCompensated, sg.State)
}

func TestSaga_SingleFailedReservationCompensatesImmediately(t *testing.T) {
	sg := NewSaga("saga-2")
	_, err := sg.Start("c", "", "card", []generalDomain.LineItem{{ProductID: "a", Quantity: 1}}, policy, t0)
	require.NoError(t, err)

	cmds, changed := apply(t, sg, reservation(sg, generalDomain.InventoryReservationFailed, "a", 1))
	assert.True(t, changed)
	assert.Empty(t, cmds)
	assert.Equal(t, StateCompensated, sg.State)
}

func TestSaga_IgnoresRepliesOutOfStep(t *testing.T) {
	sg := start(t)

	_, changed := apply(t, sg, reservation(sg, generalDomain.InventoryReserved, "a", 2))
	assert.True(t, changed)

	_, changed = apply(t, sg, reservation(sg, generalDomain.InventoryReserved, "a", 2))
	assert.False(t, changed)

	_, changed = apply(t, sg, reply(sg, generalDomain.OrderCreated, sg.OrderID, nil))
	assert.False(t, changed)

	foreign := reservation(sg, generalDomain.InventoryReserved, "b", 5)
	foreign.CorrelationID = "other-saga"
	_, changed = apply(t, sg, foreign)
	assert.False(t, changed)

	_, changed = apply(t, sg, reply(sg, generalDomain.InventoryConfirmed, "a", nil))
	assert.False(t, changed)

	assert.Equal(t, int64(2), sg.Version())
}

func TestSaga_StepTimeoutThenStuck(t *testing.T) {
	sg := start(t)

	_, changed, err := sg.Expire(policy, t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	now := t0.Add(policy.StepTimeout)
	cmds, changed, err := sg.Expire(policy, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateCompensating, sg.State)
	assert.Equal(t, "step STARTED timed out", sg.FailureReason)
	assert.Equal(t, []string{generalDomain.ReleaseInventory, generalDomain.ReleaseInventory}, types(cmds))

	first := cmds[0].Envelope

	for attempt := 1; attempt < policy.MaxCompensations; attempt++ {
		now = now.Add(policy.CompensationTimeout)
		cmds, changed, err = sg.Expire(policy, now)
		require.NoError(t, err)
		require.True(t, changed)
		require.Len(t, cmds, 2)
		assert.Equal(t, attempt, sg.Attempts)
		assert.Equal(t, first.IdempotencyKey, cmds[0].Envelope.IdempotencyKey)
		assert.NotEqual(t, first.ID, cmds[0].Envelope.ID)
	}

	now = now.Add(policy.CompensationTimeout)
	cmds, changed, err = sg.Expire(policy, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, cmds)
	assert.True(t, sg.Stuck)
	assert.False(t, sg.IsArchived())

	_, changed, err = sg.Expire(policy, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	cmds, wasStuck, err := sg.Retry(policy, now)
	require.NoError(t, err)
	assert.True(t, wasStuck)
	assert.False(t, sg.Stuck)
	assert.Zero(t, sg.Attempts)
	assert.Len(t, cmds, 2)
}

func TestSaga_TimeoutAfterPaymentRequestedRefunds(t *testing.T) {
	sg := start(t)
	reserveAll(t, sg)
	apply(t, sg, reply(sg, generalDomain.OrderCreated, sg.OrderID, nil))

	cmds, _, err := sg.Expire(policy, t0.Add(policy.StepTimeout))
	require.NoError(t, err)
	assert.Equal(t, []string{
		generalDomain.ReleaseInventory,
		generalDomain.ReleaseInventory,
		generalDomain.CancelOrder,
		generalDomain.RefundPayment,
	}, types(cmds))

	_, changed := apply(t, sg, reply(sg, generalDomain.PaymentCompleted, sg.PaymentID, nil))
	assert.False(t, changed)

	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "a", 2))
	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "b", 5))
	apply(t, sg, reply(sg, generalDomain.OrderCancelled, sg.OrderID, nil))
	assert.Equal(t, StateCompensating, sg.State)

	apply(t, sg, reply(sg, generalDomain.PaymentRefunded, sg.PaymentID, nil))
	assert.Equal(t, StateCompensated, sg.State)
	assert.Equal(t, PaymentRefunded, sg.PaymentStatus)
}

func TestSaga_AbortRules(t *testing.T) {
	sg := start(t)

	_, _, err := sg.Retry(policy, t0)
	assert.ErrorIs(t, err, ErrNotCompensating)

	cmds, changed, err := sg.Abort("customer called", policy, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, cmds, 2)
	assert.Equal(t, "aborted: customer called", sg.FailureReason)

	_, changed, err = sg.Abort("again", policy, t0)
	require.NoError(t, err)
	assert.False(t, changed)

	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "a", 2))
	apply(t, sg, reservation(sg, generalDomain.InventoryReleased, "b", 5))
	require.Equal(t, StateCompensated, sg.State)

	_, _, err = sg.Abort("late", policy, t0)
	assert.ErrorIs(t, err, ErrSagaTerminal)
}

func TestSagaIDFor_IsDeterministic(t *testing.T) {
	assert.Equal(t, SagaIDFor("k1"), SagaIDFor("k1"))
	assert.NotEqual(t, SagaIDFor("k1"), SagaIDFor("k2"))
}
