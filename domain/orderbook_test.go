package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trailLimitOrder(orderID, permID int64) LiveOrder {
	return LiveOrder{
		OrderID: orderID,
		PermID:  permID,
		Contract: Contract{
			Symbol:   "ABCD",
			SecType:  "OPT",
			Expiry:   "20261218",
			Strike:   25,
			Right:    "C",
			Exchange: "SMART",
			Currency: "USD",
		},
		Action:         OrderActionSell,
		TotalQuantity:  10,
		OrderType:      OrderTypeTrailLimit,
		LmtPrice:       12.00,
		AuxPrice:       0,
		TrailStopPrice: 12.50,
		Status:         "Submitted",
		Account:        "U000001",
	}
}

func TestDedupLiveOrders_SamePermIDKeepsGreatestOrderID(t *testing.T) {
	a := trailLimitOrder(5, 982942036)
	b := trailLimitOrder(9, 982942036)
	c := trailLimitOrder(7, 982942036)

	out := DedupLiveOrders([]LiveOrder{a, b, c})

	require.Len(t, out, 1)
	assert.Equal(t, int64(9), out[0].OrderID)
	assert.Equal(t, int64(982942036), out[0].PermID)
}

func TestDedupLiveOrders_ZeroPermIDContentFingerprint(t *testing.T) {
	a := trailLimitOrder(-3, 0)
	b := trailLimitOrder(-2, 0)

	out := DedupLiveOrders([]LiveOrder{a, b})

	require.Len(t, out, 1)
	assert.Equal(t, int64(-2), out[0].OrderID)
}

func TestDedupLiveOrders_ReconnectRedeliveryCollapsed(t *testing.T) {
	// El broker re-entrega la misma orden física tras una reconexión con
	// permId y orderId nuevos: la pasada por permId no puede colapsarlas,
	// la pasada por fingerprint sí.
	first := trailLimitOrder(-16, 982942036)
	second := trailLimitOrder(-17, 982942364)

	out := DedupLiveOrders([]LiveOrder{first, second})

	require.Len(t, out, 1)
	assert.Equal(t, int64(-16), out[0].OrderID, "greatest orderId wins")
}

func TestDedupLiveOrders_DistinctOrdersSurvive(t *testing.T) {
	a := trailLimitOrder(1, 111)
	b := trailLimitOrder(2, 222)
	b.Contract.Strike = 30 // contrato distinto → orden distinta

	c := trailLimitOrder(3, 0)
	c.Action = OrderActionBuy

	out := DedupLiveOrders([]LiveOrder{a, b, c})

	assert.Len(t, out, 3)
}

func TestDedupLiveOrders_Idempotent(t *testing.T) {
	input := []LiveOrder{
		trailLimitOrder(-16, 982942036),
		trailLimitOrder(-17, 982942364),
		trailLimitOrder(4, 555),
		trailLimitOrder(8, 555),
		trailLimitOrder(-1, 0),
	}

	once := DedupLiveOrders(input)
	twice := DedupLiveOrders(once)

	assert.Equal(t, once, twice)
}

func TestDedupLiveOrders_DoesNotMutateInput(t *testing.T) {
	input := []LiveOrder{
		trailLimitOrder(4, 555),
		trailLimitOrder(8, 555),
	}

	_ = DedupLiveOrders(input)

	assert.Equal(t, int64(4), input[0].OrderID)
	assert.Equal(t, int64(8), input[1].OrderID)
}

func TestDedupLiveOrders_Empty(t *testing.T) {
	assert.Nil(t, DedupLiveOrders(nil))
	assert.Nil(t, DedupLiveOrders([]LiveOrder{}))
}
