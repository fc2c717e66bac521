package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

func newTestArbiter(t *testing.T) *SnapshotArbiter {
	t.Helper()
	return NewSnapshotArbiter(newTestConfig(), nil, newTestTelemetryClient(t), newTestRelayMetrics(t))
}

func testSnapshot(ticker, agentID string, agentMs int64) *domain.PriceSnapshot {
	return &domain.PriceSnapshot{
		Ticker:            ticker,
		AgentID:           agentID,
		AgentTimestampMs:  agentMs,
		SpotPrice:         102.50,
		DealPrice:         110.00,
		ExpectedCloseDate: time.Now().UTC().AddDate(0, 0, 30).Format("2006-01-02"),
		Contracts: []domain.OptionContract{
			{Expiry: "2026-09-18", Strike: 105, Right: "C", Bid: 1.20, Ask: 1.30},
			{Expiry: "2026-09-18", Strike: 110, Right: "C", Bid: 0.45, Ask: 0.55},
			{Expiry: "2026-10-16", Strike: 110, Right: "C", Bid: 1.05, Ask: 1.20},
		},
	}
}

func TestIngestAcceptSealsSnapshot(t *testing.T) {
	arbiter := newTestArbiter(t)
	base := time.Now()
	arbiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	accepted, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.UnixMilli()))
	if err != nil {
		t.Fatalf("ingest should accept: %v", err)
	}
	if accepted.SnapshotID == "" {
		t.Fatalf("accepted snapshot must carry a snapshot_id")
	}
	if accepted.ServerTimestampMs != base.UnixMilli() {
		t.Fatalf("server timestamp must be authoritative")
	}
	if accepted.ExpirationCount != 2 || accepted.StrikeCount != 2 {
		t.Fatalf("chain counts not derived: expirations=%d strikes=%d",
			accepted.ExpirationCount, accepted.StrikeCount)
	}
	if accepted.DaysToClose < 29 || accepted.DaysToClose > 30 {
		t.Fatalf("days_to_close should derive from expected close date, got %d", accepted.DaysToClose)
	}

	latest, ok := arbiter.Latest(ctx, "MA")
	if !ok || latest.SnapshotID != accepted.SnapshotID {
		t.Fatalf("latest should return the accepted snapshot")
	}
}

func TestIngestConflictWithinFreshnessWindow(t *testing.T) {
	arbiter := newTestArbiter(t)
	base := time.Now()
	arbiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	winner, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.UnixMilli()))
	if err != nil {
		t.Fatalf("first ingest should accept: %v", err)
	}

	// Segundo reporte 10s después, dentro de la ventana de 60s: rechazar
	// referenciando al ganador.
	arbiter.nowFunc = func() time.Time { return base.Add(10 * time.Second) }
	_, err = arbiter.Ingest(ctx, testSnapshot("MA", "agent-2", base.Add(10*time.Second).UnixMilli()))
	if domain.CodeOf(err) != domain.ErrStaleSnapshot {
		t.Fatalf("expected STALE_SNAPSHOT, got %v", err)
	}

	var relayErr *domain.RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("expected *domain.RelayError")
	}
	if relayErr.Details["winning_snapshot_id"] != winner.SnapshotID {
		t.Fatalf("rejection must reference the winning snapshot")
	}
	if relayErr.Details["winning_agent_id"] != "agent-1" {
		t.Fatalf("rejection must reference the winning agent")
	}

	// El snapshot perdedor no queda como versión del ticker.
	latest, ok := arbiter.Latest(ctx, "MA")
	if !ok || latest.AgentID != "agent-1" {
		t.Fatalf("losing snapshot must not persist")
	}
}

func TestIngestAcceptAfterWindowElapsed(t *testing.T) {
	arbiter := newTestArbiter(t)
	base := time.Now()
	arbiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	if _, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.UnixMilli())); err != nil {
		t.Fatalf("first ingest should accept: %v", err)
	}

	// 90s después la ventana ya venció: el nuevo reporte gana.
	later := base.Add(90 * time.Second)
	arbiter.nowFunc = func() time.Time { return later }
	accepted, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-2", later.UnixMilli()))
	if err != nil {
		t.Fatalf("ingest after window should accept: %v", err)
	}
	if accepted.AgentID != "agent-2" {
		t.Fatalf("new snapshot should replace the expired one")
	}

	latest, _ := arbiter.Latest(ctx, "MA")
	if latest.SnapshotID != accepted.SnapshotID {
		t.Fatalf("latest should advance to the new snapshot")
	}
}

func TestIngestTickersArbitratedIndependently(t *testing.T) {
	arbiter := newTestArbiter(t)
	base := time.Now()
	arbiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	if _, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.UnixMilli())); err != nil {
		t.Fatalf("MA ingest should accept: %v", err)
	}
	// Otro ticker dentro de la misma ventana no conflictúa.
	if _, err := arbiter.Ingest(ctx, testSnapshot("V", "agent-2", base.UnixMilli())); err != nil {
		t.Fatalf("V ingest should accept: %v", err)
	}
}

func TestIngestClockSkewRejected(t *testing.T) {
	arbiter := newTestArbiter(t)
	base := time.Now()
	arbiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	// 65s POR DELANTE del servidor: sobre el máximo de 60s, rechazar.
	_, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.Add(65*time.Second).UnixMilli()))
	if domain.CodeOf(err) != domain.ErrClockSkew {
		t.Fatalf("expected CLOCK_SKEW for agent clock ahead, got %v", err)
	}

	// Nada quedó persistido tras el rechazo.
	if _, ok := arbiter.Latest(ctx, "MA"); ok {
		t.Fatalf("rejected snapshots must leave no trace")
	}

	// 59s por delante queda dentro del máximo.
	if _, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.Add(59*time.Second).UnixMilli())); err != nil {
		t.Fatalf("skew under the maximum should accept: %v", err)
	}
}

func TestIngestLaggingAgentTimestampAccepted(t *testing.T) {
	arbiter := newTestArbiter(t)
	base := time.Now()
	arbiter.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	// Quedar por detrás es normal: el scan de la cadena y la subida ponen
	// el timestamp del agente antes de la recepción. Incluso un rezago
	// grande no es motivo de rechazo.
	accepted, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", base.Add(-5*time.Minute).UnixMilli()))
	if err != nil {
		t.Fatalf("lagging agent timestamp must be accepted: %v", err)
	}
	if accepted.ServerTimestampMs != base.UnixMilli() {
		t.Fatalf("server timestamp stays authoritative")
	}
}

func TestIngestZeroAgentTimestampSkipsSkewCheck(t *testing.T) {
	arbiter := newTestArbiter(t)
	ctx := context.Background()

	// Agentes viejos no reportan timestamp: no hay base para medir skew.
	if _, err := arbiter.Ingest(ctx, testSnapshot("MA", "agent-1", 0)); err != nil {
		t.Fatalf("ingest without agent timestamp should accept: %v", err)
	}
}

func TestLatestUnknownTicker(t *testing.T) {
	arbiter := newTestArbiter(t)

	if _, ok := arbiter.Latest(context.Background(), "NOPE"); ok {
		t.Fatalf("unknown ticker must not resolve")
	}
}
