package domain

const (
	InventoryCommands = "inventory.commands"
	OrderCommands     = "order.commands"
	PaymentCommands   = "payment.commands"
	CartCommands      = "cart.commands"

	InventoryEvents = "inventory.events"
	OrderEvents     = "order.events"
	PaymentEvents   = "payment.events"
	CartEvents      = "cart.events"
	RatingEvents    = "rating.events"
	SagaEvents      = "saga.events"
)

const (
	AggregateInventory = "Inventory"
	AggregateOrder     = "Order"
	AggregatePayment   = "Payment"
	AggregateCart      = "Cart"
	AggregateRating    = "Rating"
	AggregateSaga      = "CheckoutSaga"
)

// Commands.
const (
	ReserveInventory = "ReserveInventory"
	ReleaseInventory = "ReleaseInventory"
	ConfirmInventory = "ConfirmInventory"
	CreateOrder      = "CreateOrder"
	ConfirmOrder     = "ConfirmOrder"
	CancelOrder      = "CancelOrder"
	ProcessPayment   = "ProcessPayment"
	RefundPayment    = "RefundPayment"
	CheckOutCart     = "CheckOutCart"
)

// Domain events and replies.
const (
	ProductCreated             = "ProductCreated"
	InventoryRestocked         = "InventoryRestocked"
	ProductPriceChanged        = "ProductPriceChanged"
	InventoryReserved          = "InventoryReserved"
	InventoryReservationFailed = "InventoryReservationFailed"
	InventoryReleased          = "InventoryReleased"
	InventoryConfirmed         = "InventoryConfirmed"

	OrderCreated        = "OrderCreated"
	OrderCreationFailed = "OrderCreationFailed"
	OrderConfirmed      = "OrderConfirmed"
	OrderCancelled      = "OrderCancelled"

	PaymentCreated   = "PaymentCreated"
	PaymentCompleted = "PaymentCompleted"
	PaymentFailed    = "PaymentFailed"
	PaymentRefunded  = "PaymentRefunded"

	CartCreated             = "CartCreated"
	CartItemAdded           = "CartItemAdded"
	CartItemRemoved         = "CartItemRemoved"
	CartItemQuantityChanged = "CartItemQuantityChanged"
	CartCheckedOut          = "CartCheckedOut"
	CartCheckOutRejected    = "CartCheckOutRejected"

	RatingSubmitted = "RatingSubmitted"
	RatingUpdated   = "RatingUpdated"

	SagaUpdated = "SagaUpdated"
)

// EventTopics are the topics carrying participant events and replies.
var EventTopics = []string{InventoryEvents, OrderEvents, PaymentEvents, CartEvents}

// ProjectedTopics are the topics the read side consumes.
var ProjectedTopics = []string{InventoryEvents, OrderEvents, PaymentEvents, CartEvents, RatingEvents, SagaEvents}
