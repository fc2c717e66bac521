package internal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
	"github.com/donkeithross3-commits/ma-tracker-relay/utils"
)

// RouteScope indica contra qué sesión resolver una operación.
//
// Exactamente uno de los dos campos debe estar presente:
//   - UserID: resolución estricta por usuario (orders, positions, mutaciones).
//   - AnyConnected: cualquier sesión conectada (SOLO market-data).
type RouteScope struct {
	UserID       string
	AnyConnected bool
}

// routeOutcome resultado interno de una operación correlacionada.
type routeOutcome struct {
	result json.RawMessage
	err    *domain.RelayError
}

// pendingRequest request en vuelo esperando respuesta del agente.
type pendingRequest struct {
	correlationID string
	operation     string
	session       *AgentSession
	outcomeCh     chan *routeOutcome
	startedAt     time.Time
}

// Router despacha operaciones hacia agentes y correlaciona sus respuestas.
//
// Responsabilidades:
//   - Resolver la sesión destino según el scope (estricto o anyConnected)
//   - Asignar correlation_id (UUIDv7) y deadline a cada despacho
//   - Suspender al caller hasta respuesta correlacionada o timeout
//   - Fallar requests pendientes cuando una sesión es supersedida o cae
//
// Las operaciones que mutan órdenes son at-most-once: el router nunca
// reintenta por su cuenta. Los timeouts repetidos marcan la sesión como
// no saludable vía NoteTimeout pero no la desconectan.
type Router struct {
	registry *SessionRegistry
	config   *Config

	// correlation_id → request en vuelo
	pending   map[string]*pendingRequest
	pendingMu sync.Mutex

	telemetry *telemetry.Client
	metrics   *metricbundle.RelayMetrics
}

// NewRouter crea un router y engancha el hook de supersede al registry.
func NewRouter(registry *SessionRegistry, cfg *Config, tel *telemetry.Client, metrics *metricbundle.RelayMetrics) *Router {
	r := &Router{
		registry:  registry,
		config:    cfg,
		pending:   make(map[string]*pendingRequest),
		telemetry: tel,
		metrics:   metrics,
	}

	registry.OnSupersede(func(old *AgentSession) {
		r.FailPendingForSession(old, domain.ErrSuperseded)
	})

	return r
}

// Route despacha una operación hacia la sesión que resuelva el scope y
// espera la respuesta correlacionada.
//
// Política de resolución:
//   - Operaciones account-scoped: Lookup(userId) estricto. Sin sesión →
//     NO_ACTIVE_SESSION. Sin fallback, nunca: una orden de un usuario no
//     puede viajar por la sesión de otro.
//   - Market-data con AnyConnected: cualquier sesión conectada.
//
// Retorna el resultado crudo del agente, o un error tipado
// (NO_ACTIVE_SESSION, TIMEOUT, SUPERSEDED, BROKER_REJECTED...).
func (r *Router) Route(ctx context.Context, operation string, scope RouteScope, payload json.RawMessage) (json.RawMessage, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "relay.router.route")
	defer span.End()

	sess, err := r.resolve(operation, scope)
	if err != nil {
		r.telemetry.Warn(ctx, "No eligible session for operation",
			semconv.Relay.Operation.String(operation),
			semconv.Relay.UserID.String(scope.UserID),
			semconv.Relay.ErrorCode.String(string(domain.CodeOf(err))),
		)
		r.metrics.RecordRouteUnrouted(ctx,
			semconv.Relay.Operation.String(operation),
		)
		return nil, err
	}

	correlationID := utils.GenerateUUIDv7()
	deadline := r.deadlineFor(operation)

	ctx = telemetry.AppendEventAttrs(ctx,
		semconv.Relay.CorrelationID.String(correlationID),
		semconv.Relay.Operation.String(operation),
		semconv.Relay.AgentID.String(sess.AgentID),
	)

	pending := &pendingRequest{
		correlationID: correlationID,
		operation:     operation,
		session:       sess,
		outcomeCh:     make(chan *routeOutcome, 1),
		startedAt:     time.Now(),
	}

	r.pendingMu.Lock()
	r.pending[correlationID] = pending
	r.pendingMu.Unlock()

	cmd := &domain.RelayCommand{
		Type:          domain.RelayMsgRequest,
		CorrelationID: correlationID,
		Operation:     operation,
		DeadlineMs:    time.Now().Add(deadline).UnixMilli(),
		Payload:       payload,
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	// Enviar sin bloquear en una sesión muerta
	select {
	case sess.SendCh <- cmd:
		r.telemetry.Debug(ctx, "Operation dispatched to agent",
			semconv.Relay.DeadlineMs.Int64(cmd.DeadlineMs),
		)
		r.metrics.RecordRouteDispatched(ctx,
			semconv.Relay.Operation.String(operation),
			semconv.Relay.UserID.String(sess.UserID),
		)

	case <-sess.Done():
		r.removePending(correlationID)
		return nil, domain.NewError(domain.ErrSuperseded, "session closed before dispatch")

	case <-timer.C:
		r.removePending(correlationID)
		return nil, r.timeoutError(ctx, pending, deadline)

	case <-ctx.Done():
		r.removePending(correlationID)
		return nil, domain.WrapError(domain.ErrTimeout, "caller cancelled before dispatch", ctx.Err())
	}

	// Esperar respuesta correlacionada
	select {
	case outcome := <-pending.outcomeCh:
		latencyMs := float64(utils.ElapsedMsSince(pending.startedAt))
		status := semconv.StatusValues.Success
		if outcome.err != nil {
			status = semconv.StatusValues.Rejected
		}

		r.metrics.RecordRouteCompleted(ctx,
			semconv.Relay.Operation.String(operation),
			semconv.Relay.Status.String(status),
		)
		r.metrics.RecordRouteLatency(ctx, latencyMs,
			semconv.Relay.Operation.String(operation),
		)
		r.telemetry.Debug(ctx, "Route completed",
			semconv.Relay.Status.String(status),
			attribute.Float64("latency_ms", latencyMs),
		)

		if outcome.err != nil {
			r.telemetry.RecordError(ctx, outcome.err)
			return nil, outcome.err
		}
		return outcome.result, nil

	case <-timer.C:
		r.removePending(correlationID)
		return nil, r.timeoutError(ctx, pending, deadline)

	case <-ctx.Done():
		r.removePending(correlationID)
		return nil, domain.WrapError(domain.ErrTimeout, "caller cancelled while waiting for agent", ctx.Err())
	}
}

// HandleResponse entrega la respuesta de un agente al caller suspendido.
//
// Respuestas sin request pendiente (deadline ya vencido, o sesión
// supersedida) se descartan con un log.
func (r *Router) HandleResponse(ctx context.Context, agentID string, msg *domain.AgentMessage) {
	r.pendingMu.Lock()
	pending, ok := r.pending[msg.CorrelationID]
	if ok {
		delete(r.pending, msg.CorrelationID)
	}
	r.pendingMu.Unlock()

	if !ok {
		r.telemetry.Debug(ctx, "Uncorrelated agent response dropped",
			semconv.Relay.AgentID.String(agentID),
			semconv.Relay.CorrelationID.String(msg.CorrelationID),
		)
		return
	}

	if pending.session.AgentID != agentID {
		// La respuesta llegó por una sesión distinta de la que originó
		// el request: descartar, no debe cruzar sesiones.
		r.telemetry.Warn(ctx, "Agent response from wrong session dropped",
			semconv.Relay.AgentID.String(agentID),
			semconv.Relay.CorrelationID.String(msg.CorrelationID),
		)
		return
	}

	outcome := &routeOutcome{result: msg.Result}
	if msg.Error != nil {
		outcome.err = msg.Error.ToRelayError()
	}

	pending.outcomeCh <- outcome
}

// FailPendingForSession falla con el código dado todos los requests en
// vuelo de una sesión. Se invoca en supersede y en desconexión.
func (r *Router) FailPendingForSession(sess *AgentSession, code domain.ErrorCode) {
	r.pendingMu.Lock()
	var failed []*pendingRequest
	for id, pending := range r.pending {
		if pending.session == sess {
			failed = append(failed, pending)
			delete(r.pending, id)
		}
	}
	r.pendingMu.Unlock()

	for _, pending := range failed {
		pending.outcomeCh <- &routeOutcome{
			err: domain.NewError(code, "session no longer owns this request").
				WithDetail("operation", pending.operation),
		}
	}
}

// PendingCount retorna cuántos requests hay en vuelo (diagnóstico).
func (r *Router) PendingCount() int {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return len(r.pending)
}

// resolve determina la sesión destino según operación y scope.
func (r *Router) resolve(operation string, scope RouteScope) (*AgentSession, error) {
	if domain.AccountScopedOperation(operation) || scope.UserID != "" {
		sess, ok := r.registry.Lookup(scope.UserID)
		if !ok || scope.UserID == "" {
			return nil, domain.NewError(domain.ErrNoActiveSession, "no active session for user").
				WithDetail("user_id", scope.UserID)
		}
		return sess, nil
	}

	if scope.AnyConnected {
		sess, ok := r.registry.AnyConnected()
		if !ok {
			return nil, domain.NewError(domain.ErrNoActiveSession, "no connected sessions")
		}
		return sess, nil
	}

	return nil, domain.NewError(domain.ErrNoActiveSession, "empty route scope")
}

// deadlineFor retorna el deadline configurado por operación.
// Los scans de cadenas de opciones mueven mucho más payload.
func (r *Router) deadlineFor(operation string) time.Duration {
	if operation == domain.OpScanChain {
		return r.config.ScanTimeout
	}
	return r.config.RouteTimeout
}

// timeoutError registra el timeout y marca la sesión.
func (r *Router) timeoutError(ctx context.Context, pending *pendingRequest, deadline time.Duration) error {
	count := pending.session.NoteTimeout()

	r.telemetry.Warn(ctx, "Route deadline elapsed",
		semconv.Relay.Operation.String(pending.operation),
		semconv.Relay.AgentID.String(pending.session.AgentID),
		attribute.Int("session_timeouts", count),
	)
	r.metrics.RecordRouteTimeout(ctx,
		semconv.Relay.Operation.String(pending.operation),
	)

	return domain.NewError(domain.ErrTimeout, "agent did not respond within deadline").
		WithDetail("operation", pending.operation).
		WithDetail("deadline_ms", deadline.Milliseconds())
}

func (r *Router) removePending(correlationID string) {
	r.pendingMu.Lock()
	delete(r.pending, correlationID)
	r.pendingMu.Unlock()
}
