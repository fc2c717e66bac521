package internal

import (
	"context"
	"testing"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

func newTestSession(agentID, userID string) *AgentSession {
	return NewAgentSession(agentID, userID, nil, 8)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewSessionRegistry(newTestTelemetryClient(t), newTestRelayMetrics(t))
	ctx := context.Background()

	sess := newTestSession("agent-1", "u_1001")
	if old := registry.Register(ctx, sess); old != nil {
		t.Fatalf("expected no superseded session, got %s", old.AgentID)
	}

	got, ok := registry.Lookup("u_1001")
	if !ok || got != sess {
		t.Fatalf("expected to look up registered session")
	}

	if _, ok := registry.Lookup("u_other"); ok {
		t.Fatalf("lookup for unknown user must not resolve to another session")
	}
}

func TestRegistrySupersedeClosesOldSession(t *testing.T) {
	registry := NewSessionRegistry(newTestTelemetryClient(t), newTestRelayMetrics(t))
	ctx := context.Background()

	var supersededID string
	registry.OnSupersede(func(old *AgentSession) {
		supersededID = old.AgentID
	})

	first := newTestSession("agent-1", "u_1001")
	second := newTestSession("agent-2", "u_1001")

	registry.Register(ctx, first)
	old := registry.Register(ctx, second)

	if old != first {
		t.Fatalf("expected first session to be superseded")
	}
	if supersededID != "agent-1" {
		t.Fatalf("expected supersede hook for agent-1, got %q", supersededID)
	}
	if first.Status() != domain.SessionStatusDisconnected {
		t.Fatalf("superseded session should be disconnected, got %s", first.Status())
	}

	select {
	case <-first.Done():
	default:
		t.Fatalf("superseded session should be closed")
	}

	got, ok := registry.Lookup("u_1001")
	if !ok || got != second {
		t.Fatalf("registry should resolve to the new session")
	}
}

func TestRegistryUnregisterIgnoresStaleSession(t *testing.T) {
	registry := NewSessionRegistry(newTestTelemetryClient(t), newTestRelayMetrics(t))
	ctx := context.Background()

	first := newTestSession("agent-1", "u_1001")
	second := newTestSession("agent-2", "u_1001")

	registry.Register(ctx, first)
	registry.Register(ctx, second)

	// La desconexión tardía de la sesión vieja no debe tumbar a la nueva.
	if removed := registry.Unregister(ctx, first); removed {
		t.Fatalf("unregistering a superseded session must be a no-op")
	}

	got, ok := registry.Lookup("u_1001")
	if !ok || got != second {
		t.Fatalf("new session should survive stale unregister")
	}

	if removed := registry.Unregister(ctx, second); !removed {
		t.Fatalf("unregistering the current session should succeed")
	}
	if _, ok := registry.Lookup("u_1001"); ok {
		t.Fatalf("user should have no session after unregister")
	}
}

func TestRegistryAnyConnected(t *testing.T) {
	registry := NewSessionRegistry(newTestTelemetryClient(t), newTestRelayMetrics(t))
	ctx := context.Background()

	if _, ok := registry.AnyConnected(); ok {
		t.Fatalf("empty registry must not return a session")
	}

	sess := newTestSession("agent-1", "u_1001")
	registry.Register(ctx, sess)

	got, ok := registry.AnyConnected()
	if !ok || got != sess {
		t.Fatalf("expected the only connected session")
	}

	sess.SetStatus(domain.SessionStatusDisconnected)
	if _, ok := registry.AnyConnected(); ok {
		t.Fatalf("disconnected session must not be eligible")
	}
}
