package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/utils"
)

// newHTTPHandler construye el router gin: superficie HTTP para el backend
// web y admisión WebSocket de agentes.
//
// El backend web llega ya autenticado y user-scoped; el relay confía en
// el userId que viene en la ruta. Los agentes en cambio se autentican
// aquí con su providerKey.
func (r *Relay) newHTTPHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Admisión de agentes
	engine.GET("/ws/agent", func(c *gin.Context) {
		r.handleAgentSocket(c.Writer, c.Request)
	})

	api := engine.Group("/api/v1")
	{
		// Market data
		api.POST("/market/snapshots", r.handleIngestSnapshot)
		api.GET("/market/snapshots/:ticker", r.handleLatestSnapshot)

		// Routing genérico
		api.POST("/relay/route", r.handleRoute)

		// Órdenes por cuenta
		api.GET("/accounts/:userID/orders", r.handleLiveOrders)
		api.POST("/accounts/:userID/orders", r.handlePlaceOrder)
		api.POST("/accounts/:userID/orders/:orderID/modify", r.handleModifyOrder)
		api.POST("/accounts/:userID/orders/:orderID/cancel", r.handleCancelOrder)

		// Diagnóstico
		api.GET("/sessions", r.handleSessions)
		api.GET("/health", r.handleHealth)
	}

	return engine
}

// abortWithRelayError responde el error tipado con su status HTTP.
func abortWithRelayError(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	body := gin.H{
		"error": gin.H{
			"code":    string(code),
			"message": err.Error(),
		},
	}
	var re *domain.RelayError
	if errors.As(err, &re) && len(re.Details) > 0 {
		body["error"].(gin.H)["details"] = re.Details
	}
	c.JSON(domain.HTTPStatus(code), body)
}

// handleIngestSnapshot ingesta un snapshot de precios de un agente.
//
// El agente se autentica con su providerKey igual que en la admisión
// WebSocket. 201 en aceptación; 409 si ya hay un snapshot fresco del
// ticker; 400 si el reloj del agente está desfasado; 401 con credencial
// inválida.
func (r *Relay) handleIngestSnapshot(c *gin.Context) {
	providerKey := bearerToken(c.Request)
	if providerKey == "" {
		abortWithRelayError(c, domain.NewError(domain.ErrAuthFailed, "missing provider key"))
		return
	}
	userID, err := r.repos.IdentityRepository().ResolveProviderKey(c.Request.Context(), providerKey)
	if err != nil || userID == "" {
		abortWithRelayError(c, domain.NewError(domain.ErrAuthFailed, "invalid provider key"))
		return
	}

	var snapshot domain.PriceSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "malformed snapshot payload", err))
		return
	}
	if snapshot.Ticker == "" {
		abortWithRelayError(c, domain.NewError(domain.ErrMalformedContract, "ticker is required"))
		return
	}

	accepted, err := r.arbiter.Ingest(c.Request.Context(), &snapshot)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	c.JSON(http.StatusCreated, accepted)
}

// handleLatestSnapshot retorna el último snapshot aceptado de un ticker.
func (r *Relay) handleLatestSnapshot(c *gin.Context) {
	ticker := c.Param("ticker")

	snapshot, ok := r.arbiter.Latest(c.Request.Context(), ticker)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "no accepted snapshot for ticker",
			},
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// routeRequest payload del endpoint genérico de routing.
type routeRequest struct {
	Operation string `json:"operation" binding:"required"`
	Scope     struct {
		UserID       string `json:"user_id,omitempty"`
		AnyConnected bool   `json:"any_connected,omitempty"`
	} `json:"scope"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleRoute despacha una operación arbitraria vía el router.
//
// Las operaciones account-scoped exigen scope.user_id; market-data puede
// pedir any_connected.
func (r *Relay) handleRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "malformed route request", err))
		return
	}

	result, err := r.router.Route(c.Request.Context(), req.Operation, RouteScope{
		UserID:       req.Scope.UserID,
		AnyConnected: req.Scope.AnyConnected,
	}, req.Payload)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// handleLiveOrders pide al agente del usuario su snapshot live_orders,
// lo reconcilia y retorna la vista deduplicada.
func (r *Relay) handleLiveOrders(c *gin.Context) {
	userID := c.Param("userID")

	sess, ok := r.registry.Lookup(userID)
	if !ok {
		abortWithRelayError(c, domain.NewError(domain.ErrNoActiveSession, "no active session for user").
			WithDetail("user_id", userID))
		return
	}

	result, err := r.router.Route(c.Request.Context(), domain.OpLiveOrders, RouteScope{UserID: userID}, nil)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	var raw []domain.LiveOrder
	if err := json.Unmarshal(result, &raw); err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "agent returned malformed order list", err))
		return
	}

	orders := r.reconciler.Reconcile(c.Request.Context(), sess, raw)
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// handlePlaceOrder valida una orden nueva con el guard y la rutea.
type placeOrderRequest struct {
	Contract  domain.Contract        `json:"contract" binding:"required"`
	OrderType domain.OrderType       `json:"order_type" binding:"required"`
	Payload   domain.MutationPayload `json:"order"`
}

func (r *Relay) handlePlaceOrder(c *gin.Context) {
	userID := c.Param("userID")

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "malformed place request", err))
		return
	}
	if req.Contract.Symbol == "" || req.Contract.SecType == "" {
		abortWithRelayError(c, domain.NewError(domain.ErrMalformedContract, "contract symbol and sec_type are required"))
		return
	}

	// Una orden nueva no tiene estado previo: el payload debe traer
	// todos los campos requeridos por el tipo.
	spec, err := domain.ResolveMutation(nil, req.OrderType, req.Payload)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	payload, _ := json.Marshal(gin.H{
		"contract": req.Contract,
		"order":    spec,
	})

	result, err := r.router.Route(c.Request.Context(), domain.OpPlaceOrder, RouteScope{UserID: userID}, payload)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// handleModifyOrder completa la mutación con el guard y la rutea.
//
// Un modify jamás viaja al venue con campos de precio en el sentinel
// "unset" del broker: o se resuelven todos, o la mutación se rechaza.
func (r *Relay) handleModifyOrder(c *gin.Context) {
	userID := c.Param("userID")
	orderID, err := strconv.ParseInt(c.Param("orderID"), 10, 64)
	if err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "invalid order id", err))
		return
	}

	var payload domain.MutationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "malformed mutation payload", err))
		return
	}

	sess, ok := r.registry.Lookup(userID)
	if !ok {
		abortWithRelayError(c, domain.NewError(domain.ErrNoActiveSession, "no active session for user").
			WithDetail("user_id", userID))
		return
	}

	spec, err := r.guard.Resolve(c.Request.Context(), sess, orderID, payload)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	body, _ := json.Marshal(spec)
	result, err := r.router.Route(c.Request.Context(), domain.OpModifyOrder, RouteScope{UserID: userID}, body)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// handleCancelOrder rutea una cancelación por order_id.
func (r *Relay) handleCancelOrder(c *gin.Context) {
	userID := c.Param("userID")
	orderID, err := strconv.ParseInt(c.Param("orderID"), 10, 64)
	if err != nil {
		abortWithRelayError(c, domain.WrapError(domain.ErrMalformedContract, "invalid order id", err))
		return
	}

	body, _ := json.Marshal(gin.H{"order_id": orderID})
	result, err := r.router.Route(c.Request.Context(), domain.OpCancelOrder, RouteScope{UserID: userID}, body)
	if err != nil {
		abortWithRelayError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// handleSessions retorna las sesiones activas (diagnóstico).
func (r *Relay) handleSessions(c *gin.Context) {
	sessions := r.registry.Sessions()

	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, gin.H{
			"agent_id":     sess.AgentID,
			"user_id":      sess.UserID,
			"status":       sess.Status(),
			"connected_at": sess.ConnectedAt.Format(time.RFC3339),
			"last_seen_ms": sess.LastSeenMs(),
			"timeouts":     sess.TimeoutCount(),
			"live_orders":  sess.OrderCount(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// handleHealth liveness del relay.
func (r *Relay) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"sessions":     r.registry.Stats(),
		"pending":      r.router.PendingCount(),
		"timestamp_ms": utils.NowUnixMilli(),
	})
}
