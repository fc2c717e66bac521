// Package domain provee modelos de dominio y lógica de negocio para el relay.
package domain

import (
	"math"
	"time"
)

// SessionStatus representa el estado de una sesión de Agent.
type SessionStatus string

const (
	SessionStatusDisconnected   SessionStatus = "DISCONNECTED"
	SessionStatusAuthenticating SessionStatus = "AUTHENTICATING"
	SessionStatusConnected      SessionStatus = "CONNECTED"
)

// OrderAction representa la dirección de una orden.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

// OrderType representa el tipo de orden soportado por el terminal del broker.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MKT"
	OrderTypeLimit      OrderType = "LMT"
	OrderTypeStop       OrderType = "STP"
	OrderTypeStopLimit  OrderType = "STP LMT"
	OrderTypeTrail      OrderType = "TRAIL"
	OrderTypeTrailLimit OrderType = "TRAIL LIMIT"
)

// UnsetDouble es el sentinel numérico que el broker usa para "sin valor".
//
// Enviar este valor en un campo de precio requerido provoca rechazo duro del
// lado del venue (ej. IB error 321, "Please enter a stop price"). Nunca debe
// salir del relay en una orden.
const UnsetDouble = math.MaxFloat64 // 1.7976931348623157e+308

// IsUnset indica si un valor de precio es el sentinel "sin valor" del broker.
func IsUnset(v float64) bool {
	return v >= UnsetDouble
}

// Contract identifica un instrumento en el terminal del broker.
type Contract struct {
	Symbol   string  `json:"symbol" db:"symbol"`
	SecType  string  `json:"sec_type" db:"sec_type"`   // STK, OPT, FUT...
	Expiry   string  `json:"expiry" db:"expiry"`       // YYYYMMDD, vacío para STK
	Strike   float64 `json:"strike" db:"strike"`       // 0 para STK
	Right    string  `json:"right" db:"right"`         // C/P, vacío para STK
	Exchange string  `json:"exchange" db:"exchange"`   // SMART, etc.
	Currency string  `json:"currency" db:"currency"`
}

// LiveOrder representa un registro crudo de orden reportado por el broker
// a través del stream de callbacks de una sesión.
//
// Identificadores:
//   - OrderID: asignado por sesión; valores negativos son placeholders locales
//     previos a la asignación real del broker.
//   - PermID: id permanente del broker, estable entre reconexiones; 0 hasta
//     que el broker lo asigna.
type LiveOrder struct {
	OrderID  int64    `json:"order_id" db:"order_id"`
	PermID   int64    `json:"perm_id" db:"perm_id"`
	Contract Contract `json:"contract" db:"contract"`

	Action        OrderAction `json:"action" db:"action"`
	TotalQuantity float64     `json:"total_quantity" db:"total_quantity"`
	OrderType     OrderType   `json:"order_type" db:"order_type"`

	// Campos de precio según tipo de orden. UnsetDouble cuando el broker
	// reporta "sin valor".
	LmtPrice       float64 `json:"lmt_price" db:"lmt_price"`
	AuxPrice       float64 `json:"aux_price" db:"aux_price"`
	TrailStopPrice float64 `json:"trail_stop_price" db:"trail_stop_price"`

	Status  string `json:"status" db:"status"`
	Account string `json:"account" db:"account"`

	UpdatedAtMs int64 `json:"updated_at_ms" db:"updated_at_ms"`
}

// IsTerminalStatus indica si el status reportado por el broker es terminal
// (la orden puede retirarse de la tabla cruda de la sesión).
func IsTerminalStatus(status string) bool {
	switch status {
	case "Filled", "Cancelled", "ApiCancelled", "Inactive":
		return true
	default:
		return false
	}
}

// OptionContract es una entrada de la cadena de opciones dentro de un snapshot.
type OptionContract struct {
	Expiry string  `json:"expiry"`
	Strike float64 `json:"strike"`
	Right  string  `json:"right"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// PriceSnapshot representa una unidad de market data ingerida para un ticker.
// Corresponde a la tabla `relay.snapshots` en PostgreSQL.
//
// ServerTimestampMs es autoritativo (asignado al recibir); AgentTimestampMs es
// informacional y solo se usa para detectar clock skew.
type PriceSnapshot struct {
	SnapshotID string `json:"snapshot_id" db:"snapshot_id"` // UUIDv7
	Ticker     string `json:"ticker" db:"ticker"`

	SpotPrice float64 `json:"spot_price" db:"spot_price"`
	DealPrice float64 `json:"deal_price" db:"deal_price"`

	// ExpectedCloseDate (YYYY-MM-DD) viene del agente; DaysToClose se
	// deriva contra el timestamp del servidor al aceptar.
	ExpectedCloseDate string `json:"expected_close_date,omitempty" db:"expected_close_date"`
	DaysToClose       int    `json:"days_to_close" db:"days_to_close"`

	Contracts []OptionContract `json:"contracts" db:"contracts"` // JSONB

	AgentID           string `json:"agent_id" db:"agent_id"`
	AgentTimestampMs  int64  `json:"agent_timestamp_ms" db:"agent_timestamp_ms"`
	ServerTimestampMs int64  `json:"server_timestamp_ms" db:"server_timestamp_ms"`

	// Derivados al aceptar
	ExpirationCount int `json:"expiration_count" db:"expiration_count"`
	StrikeCount     int `json:"strike_count" db:"strike_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DeriveChainCounts calcula ExpirationCount y StrikeCount a partir de la
// cadena de contratos del snapshot.
func (s *PriceSnapshot) DeriveChainCounts() {
	expiries := make(map[string]struct{})
	strikes := make(map[float64]struct{})
	for _, c := range s.Contracts {
		if c.Expiry != "" {
			expiries[c.Expiry] = struct{}{}
		}
		if c.Strike > 0 {
			strikes[c.Strike] = struct{}{}
		}
	}
	s.ExpirationCount = len(expiries)
	s.StrikeCount = len(strikes)
}

// DaysUntil calcula días calendario entre el timestamp del servidor y la fecha
// esperada de cierre del deal (formato YYYY-MM-DD). Retorna 0 si la fecha es
// inválida o pasada.
func DaysUntil(serverTimestampMs int64, closeDate string) int {
	target, err := time.Parse("2006-01-02", closeDate)
	if err != nil {
		return 0
	}
	now := time.UnixMilli(serverTimestampMs).UTC().Truncate(24 * time.Hour)
	days := int(target.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// String implementa fmt.Stringer para OrderAction.
func (a OrderAction) String() string {
	return string(a)
}

// String implementa fmt.Stringer para OrderType.
func (t OrderType) String() string {
	return string(t)
}

// String implementa fmt.Stringer para SessionStatus.
func (s SessionStatus) String() string {
	return string(s)
}
