package domain

import "sort"

// orderFingerprint es la clave de contenido usada en la segunda pasada de
// deduplicación: identidad de contrato + parámetros que definen la orden.
//
// PermID y OrderID quedan fuera a propósito: el broker puede re-entregar la
// misma orden física tras una reconexión bajo un permId y orderId nuevos.
type orderFingerprint struct {
	contract Contract
	action   OrderAction
	quantity float64
	ordType  OrderType
	lmt      float64
	aux      float64
}

func fingerprintOf(o LiveOrder) orderFingerprint {
	return orderFingerprint{
		contract: o.Contract,
		action:   o.Action,
		quantity: o.TotalQuantity,
		ordType:  o.OrderType,
		lmt:      o.LmtPrice,
		aux:      o.AuxPrice,
	}
}

// DedupLiveOrders colapsa registros crudos de órdenes en una vista lógica con
// a lo sumo una entrada por orden real. Dos pasadas, en orden:
//
//  1. Por permId: registros con el mismo permId != 0 se agrupan y sobrevive
//     el de mayor orderId (el asignado más recientemente).
//  2. Por fingerprint de contenido sobre los sobrevivientes: registros que
//     comparten (contrato, action, cantidad, tipo, lmtPrice, auxPrice) se
//     colapsan, de nuevo con el mayor orderId.
//
// La segunda pasada es la que atrapa la re-entrega post-reconexión: los dos
// registros sobreviven la pasada 1 porque sus permIds difieren genuinamente.
//
// La función no muta su entrada y es idempotente: DedupLiveOrders aplicada a
// su propia salida es un no-op.
func DedupLiveOrders(orders []LiveOrder) []LiveOrder {
	if len(orders) == 0 {
		return nil
	}

	// Pasada 1: por permId (solo permId != 0; los permId == 0 pasan directo).
	byPerm := make(map[int64]LiveOrder)
	var residual []LiveOrder
	for _, o := range orders {
		if o.PermID == 0 {
			residual = append(residual, o)
			continue
		}
		if kept, ok := byPerm[o.PermID]; !ok || o.OrderID > kept.OrderID {
			byPerm[o.PermID] = o
		}
	}

	survivors := residual
	for _, o := range byPerm {
		survivors = append(survivors, o)
	}

	// Pasada 2: por fingerprint de contenido sobre todos los sobrevivientes.
	byContent := make(map[orderFingerprint]LiveOrder)
	for _, o := range survivors {
		key := fingerprintOf(o)
		if kept, ok := byContent[key]; !ok || o.OrderID > kept.OrderID {
			byContent[key] = o
		}
	}

	out := make([]LiveOrder, 0, len(byContent))
	for _, o := range byContent {
		out = append(out, o)
	}

	// Orden determinístico para la vista externa.
	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderID < out[j].OrderID
	})

	return out
}
