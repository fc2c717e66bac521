package domain

import "fmt"

// PriceField identifica un campo de precio de una orden.
type PriceField string

const (
	PriceFieldLimit     PriceField = "lmt_price"
	PriceFieldAux       PriceField = "aux_price"
	PriceFieldTrailStop PriceField = "trail_stop_price"
)

// requiredPriceFields enumera exactamente los campos de precio que cada tipo
// de orden exige. Un tipo ausente del mapa es desconocido para el relay.
var requiredPriceFields = map[OrderType][]PriceField{
	OrderTypeMarket:     {},
	OrderTypeLimit:      {PriceFieldLimit},
	OrderTypeStop:       {PriceFieldAux},
	OrderTypeStopLimit:  {PriceFieldAux, PriceFieldLimit},
	OrderTypeTrail:      {PriceFieldTrailStop},
	OrderTypeTrailLimit: {PriceFieldTrailStop, PriceFieldLimit},
}

// RequiredPriceFields retorna los campos de precio requeridos por un tipo de
// orden y si el tipo es conocido.
func RequiredPriceFields(t OrderType) ([]PriceField, bool) {
	fields, ok := requiredPriceFields[t]
	return fields, ok
}

// MutationPayload es el payload parcial de un modify/place recibido del
// backend web. Punteros nil = campo omitido.
type MutationPayload struct {
	Action         *OrderAction `json:"action,omitempty"`
	TotalQuantity  *float64     `json:"total_quantity,omitempty"`
	LmtPrice       *float64     `json:"lmt_price,omitempty"`
	AuxPrice       *float64     `json:"aux_price,omitempty"`
	TrailStopPrice *float64     `json:"trail_stop_price,omitempty"`
}

// OrderSpec es la variante etiquetada de una orden lista para enviarse al
// venue: por tipo de orden, exactamente sus campos requeridos resueltos.
//
// Un campo de precio nil significa "no aplica para este tipo"; un campo
// presente nunca contiene el sentinel UnsetDouble.
type OrderSpec struct {
	OrderID       int64       `json:"order_id"`
	OrderType     OrderType   `json:"order_type"`
	Action        OrderAction `json:"action"`
	TotalQuantity float64     `json:"total_quantity"`

	LmtPrice       *float64 `json:"lmt_price,omitempty"`
	AuxPrice       *float64 `json:"aux_price,omitempty"`
	TrailStopPrice *float64 `json:"trail_stop_price,omitempty"`
}

// ResolveMutation construye un OrderSpec completo a partir de un payload
// parcial y el último estado conocido de la orden.
//
// Resolución por campo requerido: valor del payload si viene y no es el
// sentinel; si no, el último valor conocido de currentOrder; si sigue sin
// resolverse, ErrMissingRequiredPriceField — la mutación NO debe reenviarse.
func ResolveMutation(current *LiveOrder, orderType OrderType, payload MutationPayload) (*OrderSpec, error) {
	fields, ok := RequiredPriceFields(orderType)
	if !ok {
		return nil, NewError(ErrUnknownOrderType,
			fmt.Sprintf("unsupported order type %q", orderType)).
			WithDetail("order_type", string(orderType))
	}

	spec := &OrderSpec{
		OrderType: orderType,
	}

	if current != nil {
		spec.OrderID = current.OrderID
		spec.Action = current.Action
		spec.TotalQuantity = current.TotalQuantity
	}
	if payload.Action != nil {
		spec.Action = *payload.Action
	}
	if payload.TotalQuantity != nil {
		spec.TotalQuantity = *payload.TotalQuantity
	}
	if spec.TotalQuantity <= 0 {
		return nil, NewError(ErrInvalidQuantity, "total quantity must be positive").
			WithDetail("total_quantity", spec.TotalQuantity)
	}

	for _, field := range fields {
		value, ok := resolvePriceField(field, current, payload)
		if !ok {
			return nil, NewError(ErrMissingRequiredPriceField,
				fmt.Sprintf("order type %s requires %s and no value could be resolved", orderType, field)).
				WithDetail("order_type", string(orderType)).
				WithDetail("field", string(field))
		}
		v := value
		switch field {
		case PriceFieldLimit:
			spec.LmtPrice = &v
		case PriceFieldAux:
			spec.AuxPrice = &v
		case PriceFieldTrailStop:
			spec.TrailStopPrice = &v
		}
	}

	return spec, nil
}

// resolvePriceField aplica la cadena payload → última orden conocida.
// El sentinel del broker cuenta como "sin valor" en ambos orígenes.
func resolvePriceField(field PriceField, current *LiveOrder, payload MutationPayload) (float64, bool) {
	var fromPayload *float64
	var fromCurrent float64

	switch field {
	case PriceFieldLimit:
		fromPayload = payload.LmtPrice
		if current != nil {
			fromCurrent = current.LmtPrice
		}
	case PriceFieldAux:
		fromPayload = payload.AuxPrice
		if current != nil {
			fromCurrent = current.AuxPrice
		}
	case PriceFieldTrailStop:
		fromPayload = payload.TrailStopPrice
		if current != nil {
			fromCurrent = current.TrailStopPrice
		}
	}

	if fromPayload != nil && !IsUnset(*fromPayload) && *fromPayload != 0 {
		return *fromPayload, true
	}
	if current != nil && !IsUnset(fromCurrent) && fromCurrent != 0 {
		return fromCurrent, true
	}
	return 0, false
}
