package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestResolveMutation_TrailLimitFillsFromCurrentOrder(t *testing.T) {
	current := &LiveOrder{
		OrderID:        42,
		Action:         OrderActionSell,
		TotalQuantity:  10,
		OrderType:      OrderTypeTrailLimit,
		TrailStopPrice: 12.50,
		LmtPrice:       12.00,
	}

	// Payload omite ambos campos de precio requeridos.
	spec, err := ResolveMutation(current, OrderTypeTrailLimit, MutationPayload{})
	require.NoError(t, err)

	require.NotNil(t, spec.TrailStopPrice)
	require.NotNil(t, spec.LmtPrice)
	assert.Equal(t, 12.50, *spec.TrailStopPrice)
	assert.Equal(t, 12.00, *spec.LmtPrice)
	assert.Nil(t, spec.AuxPrice)
	assert.Equal(t, int64(42), spec.OrderID)
}

func TestResolveMutation_PayloadOverridesCurrent(t *testing.T) {
	current := &LiveOrder{
		OrderID:        7,
		Action:         OrderActionBuy,
		TotalQuantity:  5,
		OrderType:      OrderTypeLimit,
		LmtPrice:       100,
	}

	spec, err := ResolveMutation(current, OrderTypeLimit, MutationPayload{
		LmtPrice: floatPtr(101.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 101.5, *spec.LmtPrice)
}

func TestResolveMutation_UnresolvedFieldRejected(t *testing.T) {
	current := &LiveOrder{
		OrderID:       9,
		Action:        OrderActionSell,
		TotalQuantity: 3,
		OrderType:     OrderTypeStopLimit,
		LmtPrice:      50,
		// AuxPrice nunca conocido (sentinel del broker)
		AuxPrice: UnsetDouble,
	}

	_, err := ResolveMutation(current, OrderTypeStopLimit, MutationPayload{})
	require.Error(t, err)
	assert.Equal(t, ErrMissingRequiredPriceField, CodeOf(err))

	var re *RelayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, string(PriceFieldAux), re.Details["field"])
}

func TestResolveMutation_SentinelInPayloadTreatedAsUnset(t *testing.T) {
	// Un caller nunca debería mandar el sentinel, pero si lo hace no debe
	// propagarse: se resuelve desde la orden actual o se rechaza.
	current := &LiveOrder{
		OrderID:       3,
		Action:        OrderActionBuy,
		TotalQuantity: 1,
		OrderType:     OrderTypeStop,
		AuxPrice:      25.25,
	}

	spec, err := ResolveMutation(current, OrderTypeStop, MutationPayload{
		AuxPrice: floatPtr(UnsetDouble),
	})
	require.NoError(t, err)
	assert.Equal(t, 25.25, *spec.AuxPrice)

	_, err = ResolveMutation(nil, OrderTypeStop, MutationPayload{
		TotalQuantity: floatPtr(1),
		Action:        actionPtr(OrderActionBuy),
		AuxPrice:      floatPtr(UnsetDouble),
	})
	require.Error(t, err)
	assert.Equal(t, ErrMissingRequiredPriceField, CodeOf(err))
}

func TestResolveMutation_MarketNeedsNoPriceFields(t *testing.T) {
	spec, err := ResolveMutation(nil, OrderTypeMarket, MutationPayload{
		Action:        actionPtr(OrderActionBuy),
		TotalQuantity: floatPtr(2),
	})
	require.NoError(t, err)
	assert.Nil(t, spec.LmtPrice)
	assert.Nil(t, spec.AuxPrice)
	assert.Nil(t, spec.TrailStopPrice)
}

func TestResolveMutation_UnknownOrderType(t *testing.T) {
	_, err := ResolveMutation(nil, OrderType("MIDPRICE"), MutationPayload{})
	require.Error(t, err)
	assert.Equal(t, ErrUnknownOrderType, CodeOf(err))
}

func TestResolveMutation_InvalidQuantity(t *testing.T) {
	_, err := ResolveMutation(nil, OrderTypeMarket, MutationPayload{
		Action: actionPtr(OrderActionBuy),
	})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidQuantity, CodeOf(err))
}

func actionPtr(a OrderAction) *OrderAction { return &a }
