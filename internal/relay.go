package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
	"github.com/donkeithross3-commits/ma-tracker-relay/utils"
)

// Parámetros del canal WebSocket con los agentes.
const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 * 1024 // snapshots de cadenas de opciones son grandes
)

// Relay es el servicio principal: acepta sesiones de agentes por
// WebSocket, expone la superficie HTTP al backend web y orquesta
// registry, router, reconciliador, guard y árbitro de snapshots.
type Relay struct {
	config *Config

	// Componentes
	registry   *SessionRegistry
	router     *Router
	reconciler *Reconciler
	guard      *MutationGuard
	arbiter    *SnapshotArbiter

	// Persistencia
	repos domain.RepositoryFactory

	// HTTP
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// Telemetría
	telemetry *telemetry.Client
	metrics   *metricbundle.RelayMetrics

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Estado
	mu     sync.RWMutex
	closed bool
}

// New crea una nueva instancia del Relay.
//
// Example:
//
//	cfg, err := internal.LoadConfig(ctx)
//	if err != nil {
//	    return err
//	}
//	relay, err := internal.New(ctx, cfg, repos)
//	if err != nil {
//	    return err
//	}
//	defer relay.Shutdown()
func New(ctx context.Context, config *Config, repos domain.RepositoryFactory) (*Relay, error) {
	if config == nil {
		config = DefaultConfig()
	}

	relayCtx, cancel := context.WithCancel(ctx)

	telOpts := []telemetry.Option{
		telemetry.WithVersion(config.ServiceVersion),
	}
	if config.OTLPEndpoint != "" {
		telOpts = append(telOpts, telemetry.WithOTLPEndpoint(config.OTLPEndpoint))
	}
	if config.MetricsEndpoint != "" {
		telOpts = append(telOpts, telemetry.WithMetricsEndpoint(config.MetricsEndpoint))
	}

	telClient, err := telemetry.New(
		relayCtx,
		config.ServiceName,
		config.Environment,
		telOpts...,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	metrics := telClient.RelayMetrics()
	if metrics == nil {
		cancel()
		telClient.Shutdown(relayCtx)
		return nil, fmt.Errorf("failed to get RelayMetrics bundle")
	}

	relayCtx = telemetry.AppendCommonAttrs(relayCtx,
		semconv.Relay.Component.String(semconv.ComponentValues.API),
	)

	registry := NewSessionRegistry(telClient, metrics)

	var snapshotRepo domain.SnapshotRepository
	if repos != nil {
		snapshotRepo = repos.SnapshotRepository()
	}

	relay := &Relay{
		config:     config,
		registry:   registry,
		router:     NewRouter(registry, config, telClient, metrics),
		reconciler: NewReconciler(telClient, metrics),
		guard:      NewMutationGuard(telClient, metrics),
		arbiter:    NewSnapshotArbiter(config, snapshotRepo, telClient, metrics),
		repos:      repos,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Los agentes son procesos de escritorio, no browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		telemetry: telClient,
		metrics:   metrics,
		ctx:       relayCtx,
		cancel:    cancel,
	}

	telClient.Info(relayCtx, "Relay initialized",
		attribute.Int("http_port", config.HTTPPort),
		attribute.Int64("route_timeout_ms", config.RouteTimeout.Milliseconds()),
		attribute.Int64("snapshot_freshness_ms", config.FreshnessWindow.Milliseconds()),
	)

	return relay, nil
}

// Start levanta el servidor HTTP (API + admisión WebSocket).
func (r *Relay) Start() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("relay already closed")
	}
	r.mu.Unlock()

	addr := fmt.Sprintf(":%d", r.config.HTTPPort)
	r.httpServer = &http.Server{
		Addr:    addr,
		Handler: r.newHTTPHandler(),
	}

	r.telemetry.Info(r.ctx, "HTTP server listening",
		attribute.String("address", addr),
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.telemetry.Error(r.ctx, "HTTP server failed", err)
		}
	}()

	r.telemetry.Info(r.ctx, "Relay started successfully")
	return nil
}

// handleAgentSocket admite la conexión de un agente.
//
// La credencial providerKey viaja en Authorization: Bearer. Se valida
// contra el identity store ANTES del upgrade: un auth fallido nunca crea
// sesión. Al autenticar, la sesión queda ligada al userId resuelto de
// por vida y se registra (supersediendo la anterior si existía).
func (r *Relay) handleAgentSocket(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	providerKey := bearerToken(req)
	if providerKey == "" {
		http.Error(w, "missing provider key", http.StatusUnauthorized)
		return
	}

	userID, err := r.repos.IdentityRepository().ResolveProviderKey(ctx, providerKey)
	if err != nil {
		r.telemetry.Error(ctx, "Identity store lookup failed", err)
		http.Error(w, "identity store unavailable", http.StatusServiceUnavailable)
		return
	}
	if userID == "" {
		r.telemetry.Warn(ctx, "Agent rejected, unknown or revoked provider key")
		http.Error(w, "invalid provider key", http.StatusUnauthorized)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.telemetry.Error(ctx, "WebSocket upgrade failed", err,
			semconv.Relay.UserID.String(userID),
		)
		return
	}

	agentID := fmt.Sprintf("agent_%s", utils.GenerateUUIDv7())
	sess := NewAgentSession(agentID, userID, conn, r.config.SendBufferSize)

	r.telemetry.Info(r.ctx, "Agent connected",
		semconv.Relay.AgentID.String(agentID),
		semconv.Relay.UserID.String(userID),
	)

	r.registry.Register(r.ctx, sess)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.writePump(sess)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readPump(sess)
	}()
}

// readPump lee frames del agente y los despacha. Actúa de watchdog de la
// conexión: al salir da de baja la sesión y falla sus requests en vuelo.
func (r *Relay) readPump(sess *AgentSession) {
	conn := sess.conn
	defer func() {
		wasCurrent := r.registry.Unregister(r.ctx, sess)
		if wasCurrent {
			r.router.FailPendingForSession(sess, domain.ErrNoActiveSession)
		}
		sess.Close()
		conn.Close()
		r.telemetry.Info(r.ctx, "Agent disconnected",
			semconv.Relay.AgentID.String(sess.AgentID),
			semconv.Relay.UserID.String(sess.UserID),
		)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		sess.Touch()
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.telemetry.Warn(r.ctx, "Agent socket error",
					semconv.Relay.AgentID.String(sess.AgentID),
					attribute.String("error", err.Error()),
				)
			}
			return
		}

		var msg domain.AgentMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.telemetry.Warn(r.ctx, "Malformed agent frame dropped",
				semconv.Relay.AgentID.String(sess.AgentID),
				attribute.String("error", err.Error()),
			)
			continue
		}

		sess.Touch()
		r.dispatchAgentMessage(sess, &msg)
	}
}

// dispatchAgentMessage procesa un frame según su tipo.
func (r *Relay) dispatchAgentMessage(sess *AgentSession, msg *domain.AgentMessage) {
	switch msg.Type {
	case domain.AgentMsgResponse:
		r.router.HandleResponse(r.ctx, sess.AgentID, msg)

	case domain.AgentMsgOrderUpdate:
		if msg.Order == nil {
			return
		}
		sess.ApplyOrderEvent(*msg.Order)
		r.appendOrderAudit(sess, msg.Order)

	case domain.AgentMsgOrderRemoved:
		sess.RemoveOrder(msg.OrderID)

	case domain.AgentMsgHeartbeat:
		// Touch ya ocurrió; el heartbeat solo refresca liveness.

	default:
		r.telemetry.Warn(r.ctx, "Unknown agent message type",
			semconv.Relay.AgentID.String(sess.AgentID),
			attribute.String("type", msg.Type),
		)
	}
}

// appendOrderAudit persiste el callback crudo en el audit trail.
func (r *Relay) appendOrderAudit(sess *AgentSession, order *domain.LiveOrder) {
	if !r.config.AuditEnabled || r.repos == nil {
		return
	}
	if err := r.repos.OrderEventRepository().Append(r.ctx, sess.UserID, order); err != nil {
		r.telemetry.Warn(r.ctx, "Failed to append order audit event",
			semconv.Relay.UserID.String(sess.UserID),
			semconv.Relay.OrderID.Int64(order.OrderID),
			attribute.String("error", err.Error()),
		)
	}
}

// pingInterval retorna el período de ping del write pump: el
// HeartbeatInterval configurado, siempre que quede por debajo de pongWait
// para que el watchdog de lectura no venza entre pings.
func pingInterval(cfg *Config) time.Duration {
	if cfg != nil && cfg.HeartbeatInterval > 0 && cfg.HeartbeatInterval < pongWait {
		return cfg.HeartbeatInterval
	}
	return pingPeriod
}

// writePump serializa las escrituras al socket del agente y mantiene el
// ping de liveness.
func (r *Relay) writePump(sess *AgentSession) {
	conn := sess.conn
	ticker := time.NewTicker(pingInterval(r.config))
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case cmd := <-sess.SendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(cmd); err != nil {
				r.telemetry.Warn(r.ctx, "Failed to write to agent",
					semconv.Relay.AgentID.String(sess.AgentID),
					attribute.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sess.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"))
			return

		case <-r.ctx.Done():
			return
		}
	}
}

// Shutdown detiene el Relay gracefully.
func (r *Relay) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.telemetry.Info(r.ctx, "Relay shutting down...")

	// Detener aceptación de HTTP primero
	if r.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.telemetry.Warn(r.ctx, "HTTP server shutdown error",
				attribute.String("error", err.Error()),
			)
		}
		shutdownCancel()
	}

	// Cerrar sesiones activas
	for _, sess := range r.registry.Sessions() {
		sess.Close()
	}

	r.cancel()
	r.wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown telemetry: %w", err)
	}

	return nil
}

// bearerToken extrae la credencial del header Authorization.
func bearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return ""
	}
	return auth[len(prefix):]
}
