package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

func liveTrailLimit(orderID int64) domain.LiveOrder {
	return domain.LiveOrder{
		OrderID:        orderID,
		PermID:         9000 + orderID,
		Contract:       domain.Contract{Symbol: "MA", SecType: "OPT", Expiry: "20260918", Strike: 110, Right: "C"},
		Action:         domain.OrderActionSell,
		TotalQuantity:  5,
		OrderType:      domain.OrderTypeTrailLimit,
		LmtPrice:       1.15,
		TrailStopPrice: 1.40,
		AuxPrice:       domain.UnsetDouble,
		Status:         "Submitted",
	}
}

func sessionWithOrder(t *testing.T, order domain.LiveOrder) *AgentSession {
	t.Helper()
	sess := newTestSession("agent-1", "u_1001")
	sess.ReplaceOrders([]domain.LiveOrder{order})
	return sess
}

func TestGuardFillsMissingFieldsFromCurrentOrder(t *testing.T) {
	guard := NewMutationGuard(newTestTelemetryClient(t), newTestRelayMetrics(t))
	sess := sessionWithOrder(t, liveTrailLimit(42))

	// El payload solo ajusta el trail stop; el lmt_price viene del estado
	// actual para que el venue no reciba jamás el sentinel.
	trail := 1.55
	spec, err := guard.Resolve(context.Background(), sess, 42, domain.MutationPayload{
		TrailStopPrice: &trail,
	})
	if err != nil {
		t.Fatalf("resolve should succeed: %v", err)
	}
	if spec.TrailStopPrice == nil || *spec.TrailStopPrice != 1.55 {
		t.Fatalf("payload trail stop must win, got %v", spec.TrailStopPrice)
	}
	if spec.LmtPrice == nil || *spec.LmtPrice != 1.15 {
		t.Fatalf("lmt_price must fill from current order, got %v", spec.LmtPrice)
	}
	if spec.AuxPrice != nil {
		t.Fatalf("aux_price does not apply to TRAIL LIMIT")
	}
	if spec.Action != domain.OrderActionSell || spec.TotalQuantity != 5 {
		t.Fatalf("action and quantity must carry from current order")
	}
}

func TestGuardRejectsUnresolvableField(t *testing.T) {
	guard := NewMutationGuard(newTestTelemetryClient(t), newTestRelayMetrics(t))

	// Orden viva sin lmt_price conocido (sentinel del broker).
	order := liveTrailLimit(42)
	order.LmtPrice = domain.UnsetDouble
	sess := sessionWithOrder(t, order)

	trail := 1.55
	_, err := guard.Resolve(context.Background(), sess, 42, domain.MutationPayload{
		TrailStopPrice: &trail,
	})
	if domain.CodeOf(err) != domain.ErrMissingRequiredPriceField {
		t.Fatalf("expected MISSING_REQUIRED_PRICE_FIELD, got %v", err)
	}

	var relayErr *domain.RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("expected *domain.RelayError")
	}
	if relayErr.Details["field"] != string(domain.PriceFieldLimit) {
		t.Fatalf("rejection must name the unresolved field, got %v", relayErr.Details["field"])
	}
}

func TestGuardRejectsSentinelInPayload(t *testing.T) {
	guard := NewMutationGuard(newTestTelemetryClient(t), newTestRelayMetrics(t))

	order := liveTrailLimit(42)
	order.LmtPrice = domain.UnsetDouble
	sess := sessionWithOrder(t, order)

	// Payload con el sentinel explícito: cuenta como "sin valor".
	sentinel := domain.UnsetDouble
	trail := 1.55
	_, err := guard.Resolve(context.Background(), sess, 42, domain.MutationPayload{
		LmtPrice:       &sentinel,
		TrailStopPrice: &trail,
	})
	if domain.CodeOf(err) != domain.ErrMissingRequiredPriceField {
		t.Fatalf("broker sentinel must never pass through, got %v", err)
	}
}

func TestGuardRejectsUnknownOrder(t *testing.T) {
	guard := NewMutationGuard(newTestTelemetryClient(t), newTestRelayMetrics(t))
	sess := newTestSession("agent-1", "u_1001")

	trail := 1.55
	_, err := guard.Resolve(context.Background(), sess, 42, domain.MutationPayload{
		TrailStopPrice: &trail,
	})
	if domain.CodeOf(err) != domain.ErrMalformedContract {
		t.Fatalf("mutation against an unknown order must be rejected, got %v", err)
	}
}

func TestGuardPassThroughWhenPayloadComplete(t *testing.T) {
	guard := NewMutationGuard(newTestTelemetryClient(t), newTestRelayMetrics(t))
	sess := sessionWithOrder(t, liveTrailLimit(42))

	lmt := 1.20
	trail := 1.60
	spec, err := guard.Resolve(context.Background(), sess, 42, domain.MutationPayload{
		LmtPrice:       &lmt,
		TrailStopPrice: &trail,
	})
	if err != nil {
		t.Fatalf("resolve should succeed: %v", err)
	}
	if *spec.LmtPrice != 1.20 || *spec.TrailStopPrice != 1.60 {
		t.Fatalf("payload values must win over current order")
	}
}
