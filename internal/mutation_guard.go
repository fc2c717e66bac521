package internal

import (
	"context"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
)

// MutationGuard valida y completa mutaciones de órdenes antes de que
// viajen al venue.
//
// El broker usa DBL_MAX como sentinel de "campo sin valor"; enviar ese
// sentinel en un modify es la clase de error conocida que este guard
// elimina: los campos de precio requeridos que el payload omite se
// rellenan desde el último estado conocido de la orden, y si tampoco ahí
// hay valor la mutación se rechaza completa con
// MISSING_REQUIRED_PRICE_FIELD — nunca se reenvía a medias.
type MutationGuard struct {
	telemetry *telemetry.Client
	metrics   *metricbundle.RelayMetrics
}

// NewMutationGuard crea el guard de mutaciones.
func NewMutationGuard(tel *telemetry.Client, metrics *metricbundle.RelayMetrics) *MutationGuard {
	return &MutationGuard{
		telemetry: tel,
		metrics:   metrics,
	}
}

// Resolve construye el OrderSpec completo para un modify sobre la orden
// viva con orderID en la sesión del usuario.
//
// La orden debe existir en el libro reconciliado de la sesión; de lo
// contrario no hay estado desde el cual completar campos y la mutación
// se rechaza.
func (g *MutationGuard) Resolve(ctx context.Context, sess *AgentSession, orderID int64, payload domain.MutationPayload) (*domain.OrderSpec, error) {
	ctx, span := g.telemetry.StartSpan(ctx, "relay.guard.resolve")
	defer span.End()

	current, ok := sess.OrderByID(orderID)
	if !ok {
		err := domain.NewError(domain.ErrMalformedContract, "order not present in live book").
			WithDetail("order_id", orderID)
		g.telemetry.Warn(ctx, "Mutation rejected, unknown order",
			semconv.Relay.UserID.String(sess.UserID),
			semconv.Relay.OrderID.Int64(orderID),
		)
		g.metrics.RecordGuardDecision(ctx, "reject",
			semconv.Relay.ErrorCode.String(string(domain.ErrMalformedContract)),
		)
		return nil, err
	}

	spec, err := domain.ResolveMutation(&current, current.OrderType, payload)
	if err != nil {
		code := domain.CodeOf(err)
		g.telemetry.Warn(ctx, "Mutation rejected by guard",
			semconv.Relay.UserID.String(sess.UserID),
			semconv.Relay.OrderID.Int64(orderID),
			semconv.Relay.OrderType.String(string(current.OrderType)),
			semconv.Relay.ErrorCode.String(string(code)),
		)
		g.metrics.RecordGuardDecision(ctx, "reject",
			semconv.Relay.ErrorCode.String(string(code)),
		)
		g.telemetry.RecordError(ctx, err)
		return nil, err
	}

	decision := g.classify(payload, spec)
	g.telemetry.Debug(ctx, "Mutation resolved",
		semconv.Relay.UserID.String(sess.UserID),
		semconv.Relay.OrderID.Int64(orderID),
		semconv.Relay.OrderType.String(string(current.OrderType)),
		semconv.Relay.Reason.String(decision),
	)
	g.metrics.RecordGuardDecision(ctx, decision,
		semconv.Relay.OrderType.String(string(current.OrderType)),
	)

	return spec, nil
}

// classify distingue un pass-through (el payload traía todos los campos)
// de un fill desde el estado actual, para las métricas.
func (g *MutationGuard) classify(payload domain.MutationPayload, spec *domain.OrderSpec) string {
	filled := false
	if spec.LmtPrice != nil && payload.LmtPrice == nil {
		filled = true
	}
	if spec.AuxPrice != nil && payload.AuxPrice == nil {
		filled = true
	}
	if spec.TrailStopPrice != nil && payload.TrailStopPrice == nil {
		filled = true
	}
	if filled {
		return "fill_from_current"
	}
	return "pass_through"
}
