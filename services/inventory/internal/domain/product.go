package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationReleased = errors.New("reservation already released")
	ErrUnknownReservation  = errors.New("unknown reservation")
	ErrProductExists       = fmt.Errorf("%w: product already exists", aggregate.ErrInvalidStateTransition)
	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be positive", aggregate.ErrInvalidArgument)
	ErrInvalidPrice        = fmt.Errorf("%w: unit price must be positive", aggregate.ErrInvalidArgument)
	ErrInvalidName         = fmt.Errorf("%w: name is required", aggregate.ErrInvalidArgument)
)

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "HELD"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
)

// Reservation holds units for one saga. The unit price is captured when the
// units are reserved and never follows later price changes.
type Reservation struct {
	Quantity  int64             `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unitPrice"`
	Status    ReservationStatus `json:"status"`
}

// Product is the inventory aggregate. Reserved units stay part of Available
// until their reservation is confirmed.
type Product struct {
	aggregate.Root

	Name         string                  `json:"name"`
	UnitPrice    decimal.Decimal         `json:"unitPrice"`
	Available    int64                   `json:"available"`
	Reserved     int64                   `json:"reserved"`
	Reservations map[string]*Reservation `json:"reservations"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func NewProduct(id string) *Product {
	return &Product{
		Root:         aggregate.Root{AggregateID: id},
		Reservations: make(map[string]*Reservation),
	}
}

func (p *Product) Free() int64 {
	return p.Available - p.Reserved
}

func (p *Product) Stock() generalDomain.Stock {
	return generalDomain.Stock{Available: p.Available, Reserved: p.Reserved}
}

func (p *Product) Create(name string, unitPrice decimal.Decimal, available int64) error {
	if p.Version() > 0 {
		return ErrProductExists
	}

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ErrInvalidName
	case !unitPrice.IsPositive():
		return ErrInvalidPrice
	case available < 0:
		return ErrInvalidQuantity
	}

	p.Name = name
	p.UnitPrice = unitPrice
	p.Available = available
	p.CreatedAt = time.Now().UTC()

	return p.Record(generalDomain.AggregateInventory, generalDomain.ProductCreated, p.payload())
}

// Restock adjusts available units by delta. Stock held by reservations
// cannot be removed.
func (p *Product) Restock(delta int64) error {
	if delta == 0 {
		return ErrInvalidQuantity
	}

	if p.Available+delta < p.Reserved {
		return fmt.Errorf("%w: %d reserved, %d available, delta %d", ErrInsufficientStock, p.Reserved, p.Available, delta)
	}

	p.Available += delta

	return p.Record(generalDomain.AggregateInventory, generalDomain.InventoryRestocked, p.payload())
}

func (p *Product) ChangePrice(unitPrice decimal.Decimal) error {
	if !unitPrice.IsPositive() {
		return ErrInvalidPrice
	}

	p.UnitPrice = unitPrice

	return p.Record(generalDomain.AggregateInventory, generalDomain.ProductPriceChanged, p.payload())
}

// Reserve holds quantity units under reservationID. It reports false when
// the reservation was already held, in which case nothing is recorded.
func (p *Product) Reserve(reservationID string, quantity int64) (*Reservation, bool, error) {
	if quantity <= 0 {
		return nil, false, ErrInvalidQuantity
	}

	p.ensureReservations()

	if res, ok := p.Reservations[reservationID]; ok {
		if res.Status == ReservationReleased {
			return nil, false, fmt.Errorf("%w: %s", ErrReservationReleased, reservationID)
		}

		return res, false, nil
	}

	if p.Free() < quantity {
		return nil, false, fmt.Errorf("%w: requested %d, free %d", ErrInsufficientStock, quantity, p.Free())
	}

	res := &Reservation{
		Quantity:  quantity,
		UnitPrice: p.UnitPrice,
		Status:    ReservationHeld,
	}
	p.Reservations[reservationID] = res
	p.Reserved += quantity

	err := p.Record(generalDomain.AggregateInventory, generalDomain.InventoryReserved, p.reservationPayload(reservationID, res))

	return res, true, err
}

// Release returns held units. An unknown reservation is stored as released
// with zero units so a reservation arriving after its release is refused.
// It reports false when the reservation was already released.
func (p *Product) Release(reservationID string) (*Reservation, bool, error) {
	p.ensureReservations()

	res, ok := p.Reservations[reservationID]
	switch {
	case !ok:
		res = &Reservation{Status: ReservationReleased}
		p.Reservations[reservationID] = res
	case res.Status == ReservationReleased:
		return res, false, nil
	case res.Status == ReservationConfirmed:
		return nil, false, fmt.Errorf("%w: reservation %s already confirmed", aggregate.ErrInvalidStateTransition, reservationID)
	default:
		p.Reserved -= res.Quantity
		res.Status = ReservationReleased
	}

	err := p.Record(generalDomain.AggregateInventory, generalDomain.InventoryReleased, p.reservationPayload(reservationID, res))

	return res, true, err
}

// Confirm consumes held units. It reports false when already confirmed.
func (p *Product) Confirm(reservationID string) (*Reservation, bool, error) {
	res, ok := p.Reservations[reservationID]
	switch {
	case !ok:
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownReservation, reservationID)
	case res.Status == ReservationConfirmed:
		return res, false, nil
	case res.Status == ReservationReleased:
		return nil, false, fmt.Errorf("%w: %s", ErrReservationReleased, reservationID)
	}

	p.Available -= res.Quantity
	p.Reserved -= res.Quantity
	res.Status = ReservationConfirmed

	err := p.Record(generalDomain.AggregateInventory, generalDomain.InventoryConfirmed, p.reservationPayload(reservationID, res))

	return res, true, err
}

func (p *Product) ensureReservations() {
	if p.Reservations == nil {
		p.Reservations = make(map[string]*Reservation)
	}
}

func (p *Product) payload() generalDomain.ProductPayload {
	return generalDomain.ProductPayload{
		ProductID: p.ID(),
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Stock:     p.Stock(),
	}
}

func (p *Product) reservationPayload(reservationID string, res *Reservation) generalDomain.ReservationPayload {
	return generalDomain.ReservationPayload{
		ReservationID: reservationID,
		ProductID:     p.ID(),
		Name:          p.Name,
		Quantity:      res.Quantity,
		UnitPrice:     res.UnitPrice,
		Stock:         p.Stock(),
	}
}

// IsBusinessError reports errors that are a legitimate outcome of a command
// rather than an infrastructure failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrReservationReleased) ||
		errors.Is(err, ErrUnknownReservation) ||
		errors.Is(err, aggregate.ErrInvalidArgument) ||
		errors.Is(err, aggregate.ErrInvalidStateTransition)
}
