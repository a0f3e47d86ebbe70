package projection

import (
	"context"

	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
	"github.com/sakashimaa/fulfillment/pkg/messaging"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/shopspring/decimal"
)

type Catalog struct{}

func (Catalog) AggregateType() string { return generalDomain.AggregateInventory }

func (Catalog) View() string { return domain.ViewCatalog }

func (Catalog) Project(_ context.Context, _ repository.RowStore, row *domain.Row, env messaging.Envelope) error {
	var item domain.CatalogItem
	if err := row.Decode(&item); err != nil {
		return err
	}
	item.ProductID = env.AggregateID

	switch env.Type {
	case generalDomain.ProductCreated, generalDomain.InventoryRestocked, generalDomain.ProductPriceChanged:
		var p generalDomain.ProductPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		item.Name = p.Name
		item.UnitPrice = p.UnitPrice
		item.SetStock(p.Stock)

	case generalDomain.InventoryReserved, generalDomain.InventoryReleased, generalDomain.InventoryConfirmed:
		var p generalDomain.ReservationPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		if item.Name == "" {
			item.Name = p.Name
		}
		item.SetStock(p.Stock)
	}

	return row.Encode(item)
}

type productState struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Available int64           `json:"available"`
	Reserved  int64           `json:"reserved"`
}

func (Catalog) Rebuild(_ context.Context, _ repository.RowStore, row *domain.Row, snap aggregate.Snapshot) error {
	var state productState
	if err := decodeState(snap, &state); err != nil {
		return err
	}

	item := domain.CatalogItem{
		ProductID: snap.AggregateID,
		Name:      state.Name,
		UnitPrice: state.UnitPrice,
	}
	item.SetStock(generalDomain.Stock{Available: state.Available, Reserved: state.Reserved})

	return row.Encode(item)
}
