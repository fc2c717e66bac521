package internal

import (
	"context"
	"sync"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
)

// SessionRegistry mantiene el mapeo userId → sesión activa.
//
// Thread-safe. Operaciones:
//   - Register: registra la sesión de un usuario; supersede la anterior si existe.
//   - Unregister: da de baja una sesión SOLO si sigue siendo la actual.
//   - Lookup: retorna la sesión activa de un usuario.
//   - AnyConnected: retorna cualquier sesión conectada (sólo market-data).
//
// Invariante: a lo sumo UNA sesión activa por userId. Una conexión nueva
// del mismo usuario reemplaza a la vieja (last-writer-wins): el registry
// notifica al hook para que sus requests pendientes fallen con SUPERSEDED
// y después la cierra.
type SessionRegistry struct {
	// user_id → sesión activa
	userToSession map[string]*AgentSession
	// agent_id → sesión (índice para diagnóstico y respuestas)
	agentToSession map[string]*AgentSession

	mu        sync.RWMutex
	telemetry *telemetry.Client
	metrics   *metricbundle.RelayMetrics

	// onSupersede se invoca FUERA del lock con la sesión desplazada,
	// antes de cerrar su canal. Lo engancha el router.
	onSupersede func(old *AgentSession)
}

// NewSessionRegistry crea un nuevo registry.
func NewSessionRegistry(tel *telemetry.Client, metrics *metricbundle.RelayMetrics) *SessionRegistry {
	return &SessionRegistry{
		userToSession:  make(map[string]*AgentSession),
		agentToSession: make(map[string]*AgentSession),
		telemetry:      tel,
		metrics:        metrics,
	}
}

// OnSupersede registra el hook invocado con la sesión desplazada.
func (r *SessionRegistry) OnSupersede(fn func(old *AgentSession)) {
	r.mu.Lock()
	r.onSupersede = fn
	r.mu.Unlock()
}

// Register registra la sesión activa de un usuario.
//
// Si el usuario ya tiene una sesión, la nueva la supersede: la vieja pasa
// a DISCONNECTED, sus requests pendientes fallan vía hook y se cierra
// aquí. Retorna la sesión desplazada, o nil.
func (r *SessionRegistry) Register(ctx context.Context, sess *AgentSession) *AgentSession {
	r.mu.Lock()

	old := r.userToSession[sess.UserID]
	r.userToSession[sess.UserID] = sess
	r.agentToSession[sess.AgentID] = sess
	if old != nil {
		delete(r.agentToSession, old.AgentID)
	}
	hook := r.onSupersede

	r.mu.Unlock()

	r.telemetry.Info(ctx, "Agent session registered",
		semconv.Relay.UserID.String(sess.UserID),
		semconv.Relay.AgentID.String(sess.AgentID),
	)
	r.metrics.RecordSessionRegistered(ctx,
		semconv.Relay.UserID.String(sess.UserID),
	)

	if old == nil {
		return nil
	}

	// Supersede: la conexión vieja deja de ser dueña de la identidad.
	old.SetStatus(domain.SessionStatusDisconnected)

	r.telemetry.Warn(ctx, "Agent session superseded by new connection",
		semconv.Relay.UserID.String(sess.UserID),
		semconv.Relay.AgentID.String(old.AgentID),
		semconv.Relay.Status.String(semconv.StatusValues.Superseded),
	)
	r.metrics.RecordSessionSuperseded(ctx,
		semconv.Relay.UserID.String(sess.UserID),
	)

	if hook != nil {
		hook(old)
	}
	old.Close()

	return old
}

// Unregister da de baja una sesión.
//
// No-op si la sesión ya fue reemplazada por otra (supersede): en ese caso
// la desconexión de la vieja no debe tocar a la nueva. Retorna true si
// la sesión era la actual y fue dada de baja.
func (r *SessionRegistry) Unregister(ctx context.Context, sess *AgentSession) bool {
	r.mu.Lock()

	current, ok := r.userToSession[sess.UserID]
	if !ok || current != sess {
		r.mu.Unlock()
		return false
	}
	delete(r.userToSession, sess.UserID)
	delete(r.agentToSession, sess.AgentID)

	r.mu.Unlock()

	sess.SetStatus(domain.SessionStatusDisconnected)

	r.telemetry.Info(ctx, "Agent session unregistered",
		semconv.Relay.UserID.String(sess.UserID),
		semconv.Relay.AgentID.String(sess.AgentID),
	)
	r.metrics.RecordSessionDisconnected(ctx,
		semconv.Relay.UserID.String(sess.UserID),
	)

	return true
}

// Lookup retorna la sesión activa de un usuario.
//
// Retorna (nil, false) si el usuario no tiene sesión. Las operaciones
// account-scoped NUNCA deben caer a otra sesión: si no hay sesión del
// usuario, el router falla con NO_ACTIVE_SESSION.
func (r *SessionRegistry) Lookup(userID string) (*AgentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.userToSession[userID]
	return sess, ok
}

// LookupByAgent retorna la sesión con ese agent_id, si sigue registrada.
func (r *SessionRegistry) LookupByAgent(agentID string) (*AgentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.agentToSession[agentID]
	return sess, ok
}

// AnyConnected retorna cualquier sesión conectada.
//
// SOLO para operaciones de market-data: mantiene cotizaciones disponibles
// para usuarios sin agente propio. Nunca usar para operaciones de cuenta.
func (r *SessionRegistry) AnyConnected() (*AgentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sess := range r.userToSession {
		if sess.Status() == domain.SessionStatusConnected {
			return sess, true
		}
	}
	return nil, false
}

// Sessions retorna una copia de las sesiones activas (diagnóstico).
func (r *SessionRegistry) Sessions() []*AgentSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*AgentSession, 0, len(r.userToSession))
	for _, sess := range r.userToSession {
		result = append(result, sess)
	}
	return result
}

// Stats retorna estadísticas del registry (diagnóstico/métricas).
func (r *SessionRegistry) Stats() (totalSessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.userToSession)
}
