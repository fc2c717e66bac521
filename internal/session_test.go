package internal

import (
	"testing"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

func TestSessionCloseIdempotent(t *testing.T) {
	sess := newTestSession("agent-1", "u_1001")

	sess.Close()
	sess.Close() // segundo Close no debe entrar en pánico

	select {
	case <-sess.Done():
	default:
		t.Fatalf("done channel should be closed")
	}
	if sess.Status() != domain.SessionStatusDisconnected {
		t.Fatalf("closed session should report disconnected")
	}
}

func TestSessionApplyOrderEventUpsertAndTerminal(t *testing.T) {
	sess := newTestSession("agent-1", "u_1001")

	order := rawOrder(101, 7001)
	sess.ApplyOrderEvent(order)

	got, ok := sess.OrderByID(101)
	if !ok || got.Status != "Submitted" {
		t.Fatalf("order event should upsert into the book")
	}

	// Update de status sobre la misma orden.
	order.Status = "PreSubmitted"
	sess.ApplyOrderEvent(order)
	got, _ = sess.OrderByID(101)
	if got.Status != "PreSubmitted" {
		t.Fatalf("order event should replace the existing entry")
	}

	// Un estado terminal retira la orden del libro.
	order.Status = "Filled"
	sess.ApplyOrderEvent(order)
	if _, ok := sess.OrderByID(101); ok {
		t.Fatalf("terminal order must leave the book")
	}
}

func TestSessionOrdersCopySorted(t *testing.T) {
	sess := newTestSession("agent-1", "u_1001")
	sess.ReplaceOrders([]domain.LiveOrder{
		rawOrder(300, 7003),
		rawOrder(101, 7001),
		rawOrder(205, 7002),
	})

	view := sess.OrdersCopy()
	if len(view) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(view))
	}
	for i := 1; i < len(view); i++ {
		if view[i-1].OrderID >= view[i].OrderID {
			t.Fatalf("orders copy must be sorted by order_id")
		}
	}
}

func TestSessionRemoveOrder(t *testing.T) {
	sess := newTestSession("agent-1", "u_1001")
	sess.ApplyOrderEvent(rawOrder(101, 7001))

	sess.RemoveOrder(101)
	if sess.OrderCount() != 0 {
		t.Fatalf("removed order should leave the book")
	}

	// Remover un id inexistente es un no-op.
	sess.RemoveOrder(999)
}
