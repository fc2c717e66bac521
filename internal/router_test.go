package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

func newTestRouter(t *testing.T) (*Router, *SessionRegistry) {
	t.Helper()
	tel := newTestTelemetryClient(t)
	metrics := newTestRelayMetrics(t)
	registry := NewSessionRegistry(tel, metrics)
	router := NewRouter(registry, newTestConfig(), tel, metrics)
	return router, registry
}

// respondFromSession simula un agente: lee el siguiente comando del canal de
// la sesión y responde con el resultado dado, correlacionado.
func respondFromSession(t *testing.T, router *Router, sess *AgentSession, result json.RawMessage, wireErr *domain.WireError) {
	t.Helper()
	go func() {
		select {
		case cmd := <-sess.SendCh:
			router.HandleResponse(context.Background(), sess.AgentID, &domain.AgentMessage{
				Type:          domain.AgentMsgResponse,
				CorrelationID: cmd.CorrelationID,
				Result:        result,
				Error:         wireErr,
			})
		case <-time.After(2 * time.Second):
		}
	}()
}

func TestRouteNoActiveSessionStrict(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	// Hay una sesión conectada de OTRO usuario: no puede servir de fallback
	// para una operación account-scoped.
	other := newTestSession("agent-2", "u_2002")
	registry.Register(ctx, other)

	_, err := router.Route(ctx, domain.OpLiveOrders, RouteScope{UserID: "u_1001"}, nil)
	if domain.CodeOf(err) != domain.ErrNoActiveSession {
		t.Fatalf("expected NO_ACTIVE_SESSION, got %v", err)
	}
}

func TestRouteMutationWithoutUserIDRejected(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	// Una mutación con scope anyConnected jamás debe resolver: el scope
	// estricto es obligatorio para operaciones de cuenta.
	_, err := router.Route(ctx, domain.OpPlaceOrder, RouteScope{AnyConnected: true}, nil)
	if domain.CodeOf(err) != domain.ErrNoActiveSession {
		t.Fatalf("expected NO_ACTIVE_SESSION for unscoped mutation, got %v", err)
	}
}

func TestRouteMarketDataAnyConnectedFallback(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	respondFromSession(t, router, sess, json.RawMessage(`{"bid":1.25,"ask":1.30}`), nil)

	result, err := router.Route(ctx, domain.OpQuote, RouteScope{AnyConnected: true}, json.RawMessage(`{"ticker":"MA"}`))
	if err != nil {
		t.Fatalf("quote via anyConnected should succeed: %v", err)
	}
	if string(result) != `{"bid":1.25,"ask":1.30}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestRouteCorrelatedResponseDelivered(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	respondFromSession(t, router, sess, json.RawMessage(`[{"order_id":7}]`), nil)

	result, err := router.Route(ctx, domain.OpLiveOrders, RouteScope{UserID: "u_1001"}, nil)
	if err != nil {
		t.Fatalf("route should succeed: %v", err)
	}
	if string(result) != `[{"order_id":7}]` {
		t.Fatalf("unexpected result: %s", result)
	}
	if router.PendingCount() != 0 {
		t.Fatalf("pending map should drain after response")
	}
}

func TestRouteAgentErrorRelayedVerbatim(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	respondFromSession(t, router, sess, nil, &domain.WireError{
		BrokerCode: 201,
		Message:    "Order rejected - reason: insufficient margin",
	})

	_, err := router.Route(ctx, domain.OpPlaceOrder, RouteScope{UserID: "u_1001"}, json.RawMessage(`{}`))
	if domain.CodeOf(err) != domain.ErrBrokerRejected {
		t.Fatalf("expected BROKER_REJECTED, got %v", err)
	}

	var relayErr *domain.RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("expected *domain.RelayError")
	}
	if relayErr.Details["broker_code"] != 201 {
		t.Fatalf("broker code must relay verbatim, got %v", relayErr.Details["broker_code"])
	}
}

func TestRouteTimeoutMarksSessionUnhealthy(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	// Drenar el comando sin responder jamás.
	go func() { <-sess.SendCh }()

	start := time.Now()
	_, err := router.Route(ctx, domain.OpLiveOrders, RouteScope{UserID: "u_1001"}, nil)
	if domain.CodeOf(err) != domain.ErrTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("route returned before deadline: %v", elapsed)
	}

	if sess.TimeoutCount() != 1 {
		t.Fatalf("timeout should be noted on the session")
	}
	// Los timeouts repetidos NO desconectan la sesión.
	if sess.Status() != domain.SessionStatusConnected {
		t.Fatalf("session must remain connected after a timeout")
	}
	if _, ok := registry.Lookup("u_1001"); !ok {
		t.Fatalf("session must remain registered after a timeout")
	}
}

func TestRouteSupersededFailsPending(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	first := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, first)

	// Drenar el despacho para que el request quede en vuelo.
	dispatched := make(chan struct{})
	go func() {
		<-first.SendCh
		close(dispatched)
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := router.Route(ctx, domain.OpLiveOrders, RouteScope{UserID: "u_1001"}, nil)
		errCh <- err
	}()

	<-dispatched

	// La reconexión del mismo usuario supersede la sesión y debe fallar el
	// request pendiente de inmediato, sin esperar el deadline.
	second := newTestSession("agent-2", "u_1001")
	registry.Register(ctx, second)

	select {
	case err := <-errCh:
		if domain.CodeOf(err) != domain.ErrSuperseded {
			t.Fatalf("expected SUPERSEDED, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending request not failed on supersede")
	}
}

func TestHandleResponseWrongSessionDropped(t *testing.T) {
	router, registry := newTestRouter(t)
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	go func() {
		cmd := <-sess.SendCh
		// Respuesta con el correlation_id correcto pero desde otro agente:
		// debe descartarse y el route vencer por deadline.
		router.HandleResponse(context.Background(), "agent-impostor", &domain.AgentMessage{
			Type:          domain.AgentMsgResponse,
			CorrelationID: cmd.CorrelationID,
			Result:        json.RawMessage(`[]`),
		})
	}()

	_, err := router.Route(ctx, domain.OpLiveOrders, RouteScope{UserID: "u_1001"}, nil)
	if domain.CodeOf(err) != domain.ErrTimeout {
		t.Fatalf("cross-session response must not resolve the request, got %v", err)
	}
}

func TestHandleResponseUncorrelatedIgnored(t *testing.T) {
	router, _ := newTestRouter(t)

	// No debe entrar en pánico ni registrar nada.
	router.HandleResponse(context.Background(), "agent-1", &domain.AgentMessage{
		Type:          domain.AgentMsgResponse,
		CorrelationID: "corr-desconocido",
	})
	if router.PendingCount() != 0 {
		t.Fatalf("pending map should stay empty")
	}
}
