package domain

import "context"

// IdentityRepository resuelve providerKeys contra el identity store.
//
// Implementaciones:
//   - PostgreSQL: en internal/repository/postgres.go
type IdentityRepository interface {
	// ResolveProviderKey resuelve una credencial opaca al userId dueño.
	// Retorna "" si la credencial es desconocida o está revocada.
	ResolveProviderKey(ctx context.Context, providerKey string) (string, error)
}

// SnapshotRepository define persistencia para snapshots de precios aceptados.
//
// Solo se persisten snapshots ACEPTADOS por el Arbiter; una submission
// rechazada jamás se almacena como versión de la historia del ticker.
type SnapshotRepository interface {
	// Insert inserta un snapshot aceptado.
	Insert(ctx context.Context, snapshot *PriceSnapshot) error

	// LatestByTicker obtiene el último snapshot aceptado de un ticker.
	// Retorna nil si no existe.
	LatestByTicker(ctx context.Context, ticker string) (*PriceSnapshot, error)
}

// OrderEventRepository define el audit trail append-only de callbacks de
// órdenes del broker. Los registros crudos nunca se reescriben.
type OrderEventRepository interface {
	// Append agrega un evento crudo reportado por la sesión de un usuario.
	Append(ctx context.Context, userID string, order *LiveOrder) error
}

// RepositoryFactory agrupa los repositorios del relay.
type RepositoryFactory interface {
	IdentityRepository() IdentityRepository
	SnapshotRepository() SnapshotRepository
	OrderEventRepository() OrderEventRepository
}
