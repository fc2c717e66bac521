package internal

import (
	"context"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
)

// Reconciler consolida snapshots live_orders del broker en una vista única.
//
// El broker renumera los order_id a través de reconexiones, así que el
// mismo pedido lógico puede aparecer dos veces en un snapshot: una con el
// id de la sesión anterior y otra con el nuevo. La reducción es en dos
// pasadas (perm_id y luego huella de contenido) y vive en el paquete
// domain; aquí se orquesta sobre la sesión y se instrumenta.
//
// Idempotente: reconciliar un libro ya reconciliado no lo cambia.
type Reconciler struct {
	telemetry *telemetry.Client
	metrics   *metricbundle.RelayMetrics
}

// NewReconciler crea un reconciliador.
func NewReconciler(tel *telemetry.Client, metrics *metricbundle.RelayMetrics) *Reconciler {
	return &Reconciler{
		telemetry: tel,
		metrics:   metrics,
	}
}

// Reconcile deduplica un snapshot crudo y reemplaza el libro de la sesión
// con el resultado. Retorna la vista consolidada.
func (r *Reconciler) Reconcile(ctx context.Context, sess *AgentSession, raw []domain.LiveOrder) []domain.LiveOrder {
	ctx, span := r.telemetry.StartSpan(ctx, "relay.reconciler.reconcile")
	defer span.End()

	deduped := domain.DedupLiveOrders(raw)
	removed := len(raw) - len(deduped)

	sess.ReplaceOrders(deduped)

	r.telemetry.Info(ctx, "Live order book reconciled",
		semconv.Relay.AgentID.String(sess.AgentID),
		semconv.Relay.UserID.String(sess.UserID),
		semconv.Relay.OrderCount.Int(len(deduped)),
		semconv.Relay.RemovedCount.Int(removed),
	)
	r.metrics.RecordReconcile(ctx, len(deduped), removed,
		semconv.Relay.UserID.String(sess.UserID),
	)

	return deduped
}
