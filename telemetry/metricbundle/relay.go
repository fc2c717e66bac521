package metricbundle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RelayMetrics bundle de métricas para el relay de trading.
//
// Incluye métricas del ciclo completo de enrutado y reconciliación:
// - Sesiones registradas/supersedidas/desconectadas
// - Operaciones enrutadas y su resultado
// - Reconciliación del libro de órdenes vivas
// - Decisiones del guard de mutación
// - Snapshots de precios aceptados/en conflicto
//
// # Métricas de Conteo
//
//   - relay.session.registered: Sesiones de agente registradas
//   - relay.session.superseded: Sesiones reemplazadas por una nueva conexión
//   - relay.session.disconnected: Sesiones dadas de baja
//   - relay.route.dispatched: Operaciones enviadas a un agente
//   - relay.route.completed: Respuestas recibidas (success/rejected)
//   - relay.route.timeout: Operaciones vencidas por deadline
//   - relay.route.unrouted: Operaciones sin sesión elegible
//   - relay.orderbook.reconciled: Reconciliaciones del libro ejecutadas
//   - relay.orderbook.duplicates: Duplicados eliminados al reconciliar
//   - relay.guard.decision: Decisiones del guard (fill_from_current/pass_through/reject)
//   - relay.snapshot.accepted: Snapshots de precios aceptados
//   - relay.snapshot.conflict: Snapshots rechazados por ventana de frescura
//   - relay.snapshot.skew_rejected: Snapshots rechazados por desfase de reloj
//
// # Métricas de Latencia
//
//   - relay.latency.route: Latencia request→response por el agente
//   - relay.latency.agent_rtt: RTT de heartbeat con el agente
//
// # Uso
//
//	client, _ := telemetry.New(ctx, "ma-relay", "production")
//
//	metrics := client.RelayMetrics()
//
//	// Registrar operación enrutada
//	metrics.RecordRouteDispatched(ctx,
//	    attribute.String("relay.operation", "live_orders"),
//	    attribute.String("relay.user_id", "u_1001"),
//	)
//
//	// Registrar latencia de ruta
//	metrics.RecordRouteLatency(ctx, 85.5,
//	    attribute.String("relay.operation", "live_orders"),
//	)
type RelayMetrics struct {
	// Counters
	SessionRegistered   metric.Int64Counter
	SessionSuperseded   metric.Int64Counter
	SessionDisconnected metric.Int64Counter
	RouteDispatched     metric.Int64Counter
	RouteCompleted      metric.Int64Counter
	RouteTimeout        metric.Int64Counter
	RouteUnrouted       metric.Int64Counter
	OrderbookReconciled metric.Int64Counter
	OrderbookDuplicates metric.Int64Counter
	GuardDecision       metric.Int64Counter
	SnapshotAccepted    metric.Int64Counter
	SnapshotConflict    metric.Int64Counter
	SnapshotSkew        metric.Int64Counter

	// Histograms
	RouteLatency  metric.Float64Histogram
	AgentRTT      metric.Float64Histogram
	OrderbookSize metric.Float64Histogram
}

// NewRelayMetrics crea un nuevo bundle de métricas del relay.
func NewRelayMetrics(meter metric.Meter) (*RelayMetrics, error) {
	// Counters
	sessionRegistered, err := meter.Int64Counter(
		"relay.session.registered",
		metric.WithDescription("Sesiones de agente registradas"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	sessionSuperseded, err := meter.Int64Counter(
		"relay.session.superseded",
		metric.WithDescription("Sesiones reemplazadas por una nueva conexión del mismo usuario"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	sessionDisconnected, err := meter.Int64Counter(
		"relay.session.disconnected",
		metric.WithDescription("Sesiones de agente dadas de baja"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	routeDispatched, err := meter.Int64Counter(
		"relay.route.dispatched",
		metric.WithDescription("Operaciones enviadas a un agente"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	routeCompleted, err := meter.Int64Counter(
		"relay.route.completed",
		metric.WithDescription("Respuestas de agente correladas con su request"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	routeTimeout, err := meter.Int64Counter(
		"relay.route.timeout",
		metric.WithDescription("Operaciones vencidas por deadline"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	routeUnrouted, err := meter.Int64Counter(
		"relay.route.unrouted",
		metric.WithDescription("Operaciones sin sesión elegible"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	orderbookReconciled, err := meter.Int64Counter(
		"relay.orderbook.reconciled",
		metric.WithDescription("Reconciliaciones del libro de órdenes vivas"),
		metric.WithUnit("{reconcile}"),
	)
	if err != nil {
		return nil, err
	}

	orderbookDuplicates, err := meter.Int64Counter(
		"relay.orderbook.duplicates",
		metric.WithDescription("Duplicados eliminados al reconciliar"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	guardDecision, err := meter.Int64Counter(
		"relay.guard.decision",
		metric.WithDescription("Decisiones del guard de mutación de órdenes"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	snapshotAccepted, err := meter.Int64Counter(
		"relay.snapshot.accepted",
		metric.WithDescription("Snapshots de precios aceptados"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}

	snapshotConflict, err := meter.Int64Counter(
		"relay.snapshot.conflict",
		metric.WithDescription("Snapshots rechazados por ventana de frescura"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}

	snapshotSkew, err := meter.Int64Counter(
		"relay.snapshot.skew_rejected",
		metric.WithDescription("Snapshots rechazados por desfase de reloj"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}

	// Histograms
	routeLatency, err := meter.Float64Histogram(
		"relay.latency.route",
		metric.WithDescription("Latencia request→response por el agente"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	agentRTT, err := meter.Float64Histogram(
		"relay.latency.agent_rtt",
		metric.WithDescription("RTT de heartbeat con el agente"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	orderbookSize, err := meter.Float64Histogram(
		"relay.orderbook.size",
		metric.WithDescription("Órdenes vivas tras reconciliar"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	return &RelayMetrics{
		SessionRegistered:   sessionRegistered,
		SessionSuperseded:   sessionSuperseded,
		SessionDisconnected: sessionDisconnected,
		RouteDispatched:     routeDispatched,
		RouteCompleted:      routeCompleted,
		RouteTimeout:        routeTimeout,
		RouteUnrouted:       routeUnrouted,
		OrderbookReconciled: orderbookReconciled,
		OrderbookDuplicates: orderbookDuplicates,
		GuardDecision:       guardDecision,
		SnapshotAccepted:    snapshotAccepted,
		SnapshotConflict:    snapshotConflict,
		SnapshotSkew:        snapshotSkew,
		RouteLatency:        routeLatency,
		AgentRTT:            agentRTT,
		OrderbookSize:       orderbookSize,
	}, nil
}

// Métodos helper para registrar métricas

func (m *RelayMetrics) RecordSessionRegistered(ctx context.Context, attrs ...attribute.KeyValue) {
	m.SessionRegistered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordSessionSuperseded(ctx context.Context, attrs ...attribute.KeyValue) {
	m.SessionSuperseded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordSessionDisconnected(ctx context.Context, attrs ...attribute.KeyValue) {
	m.SessionDisconnected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordRouteDispatched(ctx context.Context, attrs ...attribute.KeyValue) {
	m.RouteDispatched.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordRouteCompleted(ctx context.Context, attrs ...attribute.KeyValue) {
	m.RouteCompleted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordRouteTimeout(ctx context.Context, attrs ...attribute.KeyValue) {
	m.RouteTimeout.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordRouteUnrouted(ctx context.Context, attrs ...attribute.KeyValue) {
	m.RouteUnrouted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconcile registra una reconciliación: cuántas órdenes quedaron vivas
// y cuántos duplicados se eliminaron.
func (m *RelayMetrics) RecordReconcile(ctx context.Context, live, removed int, attrs ...attribute.KeyValue) {
	opts := metric.WithAttributes(attrs...)
	m.OrderbookReconciled.Add(ctx, 1, opts)
	if removed > 0 {
		m.OrderbookDuplicates.Add(ctx, int64(removed), opts)
	}
	m.OrderbookSize.Record(ctx, float64(live), opts)
}

// RecordGuardDecision registra una decisión del guard de mutación
// (fill_from_current/pass_through/reject).
func (m *RelayMetrics) RecordGuardDecision(ctx context.Context, decision string, attrs ...attribute.KeyValue) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String("relay.decision", decision),
	}, attrs...)
	m.GuardDecision.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

func (m *RelayMetrics) RecordSnapshotAccepted(ctx context.Context, attrs ...attribute.KeyValue) {
	m.SnapshotAccepted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordSnapshotConflict(ctx context.Context, attrs ...attribute.KeyValue) {
	m.SnapshotConflict.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordSnapshotSkew(ctx context.Context, attrs ...attribute.KeyValue) {
	m.SnapshotSkew.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordRouteLatency(ctx context.Context, latencyMs float64, attrs ...attribute.KeyValue) {
	m.RouteLatency.Record(ctx, latencyMs, metric.WithAttributes(attrs...))
}

func (m *RelayMetrics) RecordAgentRTT(ctx context.Context, rttMs float64, attrs ...attribute.KeyValue) {
	m.AgentRTT.Record(ctx, rttMs, metric.WithAttributes(attrs...))
}
