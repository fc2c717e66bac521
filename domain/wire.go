package domain

import "encoding/json"

// Tipos de mensaje del canal WebSocket Agent ↔ Relay.
//
// El canal entrega un envelope JSON por frame. El relay correlaciona
// request/response con correlation_id (UUIDv7); los eventos push del broker
// (order_update, order_removed) no llevan correlación.
const (
	// Agent → Relay
	AgentMsgResponse     = "response"
	AgentMsgOrderUpdate  = "order_update"
	AgentMsgOrderRemoved = "order_removed"
	AgentMsgHeartbeat    = "heartbeat"

	// Relay → Agent
	RelayMsgRequest = "request"
)

// Operaciones ruteables hacia un Agent.
const (
	OpLiveOrders  = "live_orders"
	OpPositions   = "positions"
	OpPlaceOrder  = "place_order"
	OpModifyOrder = "modify_order"
	OpCancelOrder = "cancel_order"
	OpQuote       = "quote"
	OpScanChain   = "scan_chain"
)

// AccountScopedOperation indica si una operación exige resolución estricta
// por userId (sin fallback a otra sesión, nunca).
func AccountScopedOperation(op string) bool {
	switch op {
	case OpLiveOrders, OpPositions, OpPlaceOrder, OpModifyOrder, OpCancelOrder:
		return true
	default:
		return false
	}
}

// MutatingOperation indica si una operación muta órdenes (at-most-once).
func MutatingOperation(op string) bool {
	switch op {
	case OpPlaceOrder, OpModifyOrder, OpCancelOrder:
		return true
	default:
		return false
	}
}

// WireError transporta un error tipado (o un rechazo verbatim del broker) por
// el canal del Agent.
type WireError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	BrokerCode int    `json:"broker_code,omitempty"` // código del venue, relayed verbatim
}

// AgentMessage es el envelope de todo frame Agent → Relay.
type AgentMessage struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// Type == response
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`

	// Type == order_update
	Order *LiveOrder `json:"order,omitempty"`

	// Type == order_removed (ack de fill/cancel)
	OrderID int64 `json:"order_id,omitempty"`
}

// RelayCommand es el envelope de todo frame Relay → Agent.
type RelayCommand struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Operation     string          `json:"operation"`
	DeadlineMs    int64           `json:"deadline_ms"` // unix ms; el Agent descarta trabajo vencido
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ToRelayError convierte un WireError en el error tipado equivalente.
// Los rechazos del broker se preservan verbatim en los detalles.
func (w *WireError) ToRelayError() *RelayError {
	if w == nil {
		return nil
	}
	if w.BrokerCode != 0 {
		return NewError(ErrBrokerRejected, w.Message).
			WithDetail("broker_code", w.BrokerCode).
			WithDetail("broker_message", w.Message)
	}
	code := ErrorCode(w.Code)
	if code == "" {
		code = ErrUnknown
	}
	return NewError(code, w.Message)
}
