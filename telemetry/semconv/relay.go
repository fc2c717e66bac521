package semconv

import "go.opentelemetry.io/otel/attribute"

// Relay contiene atributos semánticos específicos del relay de trading.
//
// # Identificadores
//
//   - relay.user_id: ID del usuario propietario de la sesión
//   - relay.agent_id: ID del agente conectado (UUIDv7)
//   - relay.correlation_id: UUID de correlación request/response (UUIDv7)
//   - relay.account_id: Cuenta de broker asociada a la operación
//
// # Trading
//
//   - relay.ticker: Símbolo del instrumento (SPY, AAPL, etc.)
//   - relay.operation: Operación solicitada (live_orders/place_order/...)
//   - relay.order_id: ID local de la orden
//   - relay.perm_id: ID permanente asignado por el broker
//   - relay.order_type: Tipo de orden (MKT/LMT/STP/...)
//
// # Estado
//
//   - relay.status: Estado de la operación (success/rejected/timeout/superseded)
//   - relay.error_code: Código de error si aplica
//   - relay.component: Componente (registry/router/reconciler/guard/arbiter/api)
//
// # Uso
//
//	import "github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
//
//	// Logs
//	client.Info(ctx, "Route completed",
//	    semconv.Relay.CorrelationID.String("01HKQV8Y..."),
//	    semconv.Relay.Operation.String("live_orders"),
//	    semconv.Relay.Status.String(semconv.StatusValues.Success),
//	)
//
//	// Métricas
//	metrics.RecordRouteDispatched(ctx,
//	    semconv.Relay.UserID.String("u_1001"),
//	    semconv.Relay.Operation.String("place_order"),
//	)
var Relay = relayAttributes{
	// Identificadores
	UserID:        attribute.Key("relay.user_id"),
	AgentID:       attribute.Key("relay.agent_id"),
	CorrelationID: attribute.Key("relay.correlation_id"),
	AccountID:     attribute.Key("relay.account_id"),

	// Trading
	Ticker:    attribute.Key("relay.ticker"),
	Operation: attribute.Key("relay.operation"),
	OrderID:   attribute.Key("relay.order_id"),
	PermID:    attribute.Key("relay.perm_id"),
	OrderType: attribute.Key("relay.order_type"),
	Action:    attribute.Key("relay.action"),
	Quantity:  attribute.Key("relay.quantity"),

	// Estado
	Status:    attribute.Key("relay.status"),
	ErrorCode: attribute.Key("relay.error_code"),
	Component: attribute.Key("relay.component"),

	// Adicionales
	Reason:        attribute.Key("relay.reason"),
	Field:         attribute.Key("relay.field"),
	SnapshotAgeMs: attribute.Key("relay.snapshot.age_ms"),
	SkewMs:        attribute.Key("relay.snapshot.skew_ms"),
	OrderCount:    attribute.Key("relay.order_count"),
	RemovedCount:  attribute.Key("relay.removed_count"),
	DeadlineMs:    attribute.Key("relay.deadline_ms"),
}

type relayAttributes struct {
	// Identificadores
	UserID        attribute.Key // ID del usuario propietario
	AgentID       attribute.Key // ID del agente (UUIDv7)
	CorrelationID attribute.Key // UUID de correlación (UUIDv7)
	AccountID     attribute.Key // Cuenta de broker

	// Trading
	Ticker    attribute.Key // Símbolo del instrumento
	Operation attribute.Key // Operación solicitada
	OrderID   attribute.Key // ID local de la orden
	PermID    attribute.Key // ID permanente del broker
	OrderType attribute.Key // Tipo de orden (MKT/LMT/...)
	Action    attribute.Key // Lado de la orden (BUY/SELL)
	Quantity  attribute.Key // Cantidad de la orden

	// Estado
	Status    attribute.Key // Estado (success/rejected/timeout/superseded)
	ErrorCode attribute.Key // Código de error
	Component attribute.Key // Componente (registry/router/reconciler/guard/arbiter/api)

	// Adicionales
	Reason        attribute.Key // Razón asociada a una decisión
	Field         attribute.Key // Campo de precio involucrado (lmt/aux/trail)
	SnapshotAgeMs attribute.Key // Edad del snapshot vigente en ms
	SkewMs        attribute.Key // Desfase de reloj detectado en ms
	OrderCount    attribute.Key // Órdenes vivas tras reconciliar
	RemovedCount  attribute.Key // Duplicados eliminados al reconciliar
	DeadlineMs    attribute.Key // Deadline de la operación en ms
}

// Values pre-definidos para atributos comunes

// ComponentValues valores válidos para relay.component
var ComponentValues = struct {
	Registry   string
	Router     string
	Reconciler string
	Guard      string
	Arbiter    string
	API        string
	Agent      string
}{
	Registry:   "registry",
	Router:     "router",
	Reconciler: "reconciler",
	Guard:      "guard",
	Arbiter:    "arbiter",
	API:        "api",
	Agent:      "agent",
}

// StatusValues valores válidos para relay.status
var StatusValues = struct {
	Success    string
	Rejected   string
	Timeout    string
	Pending    string
	Superseded string
	Conflict   string
}{
	Success:    "success",
	Rejected:   "rejected",
	Timeout:    "timeout",
	Pending:    "pending",
	Superseded: "superseded",
	Conflict:   "conflict",
}

// ActionValues valores válidos para relay.action
var ActionValues = struct {
	Buy  string
	Sell string
}{
	Buy:  "BUY",
	Sell: "SELL",
}

// Helper functions para crear atributos comunes

// RouteAttributes crea un conjunto de atributos para una operación enrutada.
//
// Example:
//
//	attrs := semconv.RouteAttributes("01HKQV8Y...", "u_1001", "live_orders")
//	client.Info(ctx, "Route dispatched", attrs...)
func RouteAttributes(correlationID, userID, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		Relay.CorrelationID.String(correlationID),
		Relay.UserID.String(userID),
		Relay.Operation.String(operation),
	}
}

// OrderAttributes crea un conjunto de atributos para una orden.
func OrderAttributes(orderID int64, permID int64, ticker string) []attribute.KeyValue {
	return []attribute.KeyValue{
		Relay.OrderID.Int64(orderID),
		Relay.PermID.Int64(permID),
		Relay.Ticker.String(ticker),
	}
}

// SnapshotAttributes crea un conjunto de atributos para un snapshot de precios.
func SnapshotAttributes(ticker, userID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		Relay.Ticker.String(ticker),
		Relay.UserID.String(userID),
	}
}
