// Package repository provee implementaciones de persistencia para el relay.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // Driver PostgreSQL

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

// PostgresFactory implementa domain.RepositoryFactory para PostgreSQL.
type PostgresFactory struct {
	db *sql.DB

	// Repositorios inicializados lazy
	identityRepo   domain.IdentityRepository
	snapshotRepo   domain.SnapshotRepository
	orderEventRepo domain.OrderEventRepository
}

// NewPostgresFactory crea un factory de repositorios PostgreSQL.
//
// Uso:
//
//	db, err := sql.Open("postgres", cfg.PostgresConnStr())
//	factory := repository.NewPostgresFactory(db)
//	identityRepo := factory.IdentityRepository()
func NewPostgresFactory(db *sql.DB) *PostgresFactory {
	return &PostgresFactory{
		db: db,
	}
}

// IdentityRepository retorna el repositorio de identidades.
func (f *PostgresFactory) IdentityRepository() domain.IdentityRepository {
	if f.identityRepo == nil {
		f.identityRepo = &postgresIdentityRepo{db: f.db}
	}
	return f.identityRepo
}

// SnapshotRepository retorna el repositorio de snapshots.
func (f *PostgresFactory) SnapshotRepository() domain.SnapshotRepository {
	if f.snapshotRepo == nil {
		f.snapshotRepo = &postgresSnapshotRepo{db: f.db}
	}
	return f.snapshotRepo
}

// OrderEventRepository retorna el audit trail de órdenes.
func (f *PostgresFactory) OrderEventRepository() domain.OrderEventRepository {
	if f.orderEventRepo == nil {
		f.orderEventRepo = &postgresOrderEventRepo{db: f.db}
	}
	return f.orderEventRepo
}

// ===========================================================================
// postgresIdentityRepo
// ===========================================================================

type postgresIdentityRepo struct {
	db *sql.DB
}

// ResolveProviderKey resuelve la credencial de un agente a su userId.
// Retorna "" si no existe o fue revocada: el caller rechaza la admisión.
func (r *postgresIdentityRepo) ResolveProviderKey(ctx context.Context, providerKey string) (string, error) {
	query := `
		SELECT user_id
		FROM relay.agent_keys
		WHERE provider_key = $1
		  AND revoked_at IS NULL
	`
	var userID string
	err := r.db.QueryRowContext(ctx, query, providerKey).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve provider key: %w", err)
	}
	return userID, nil
}

// ===========================================================================
// postgresSnapshotRepo
// ===========================================================================

type postgresSnapshotRepo struct {
	db *sql.DB
}

func (r *postgresSnapshotRepo) Insert(ctx context.Context, snapshot *domain.PriceSnapshot) error {
	contracts, err := json.Marshal(snapshot.Contracts)
	if err != nil {
		return fmt.Errorf("failed to marshal contracts: %w", err)
	}

	query := `
		INSERT INTO relay.snapshots (
			snapshot_id, ticker, spot_price, deal_price,
			expected_close_date, days_to_close,
			contracts, agent_id, agent_timestamp_ms, server_timestamp_ms,
			expiration_count, strike_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		snapshot.SnapshotID,
		snapshot.Ticker,
		snapshot.SpotPrice,
		snapshot.DealPrice,
		snapshot.ExpectedCloseDate,
		snapshot.DaysToClose,
		contracts,
		snapshot.AgentID,
		snapshot.AgentTimestampMs,
		snapshot.ServerTimestampMs,
		snapshot.ExpirationCount,
		snapshot.StrikeCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *postgresSnapshotRepo) LatestByTicker(ctx context.Context, ticker string) (*domain.PriceSnapshot, error) {
	query := `
		SELECT snapshot_id, ticker, spot_price, deal_price,
		       expected_close_date, days_to_close,
		       contracts, agent_id, agent_timestamp_ms, server_timestamp_ms,
		       expiration_count, strike_count, created_at
		FROM relay.snapshots
		WHERE ticker = $1
		ORDER BY server_timestamp_ms DESC
		LIMIT 1
	`
	var snapshot domain.PriceSnapshot
	var contracts []byte
	err := r.db.QueryRowContext(ctx, query, ticker).Scan(
		&snapshot.SnapshotID,
		&snapshot.Ticker,
		&snapshot.SpotPrice,
		&snapshot.DealPrice,
		&snapshot.ExpectedCloseDate,
		&snapshot.DaysToClose,
		&contracts,
		&snapshot.AgentID,
		&snapshot.AgentTimestampMs,
		&snapshot.ServerTimestampMs,
		&snapshot.ExpirationCount,
		&snapshot.StrikeCount,
		&snapshot.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	if len(contracts) > 0 {
		if err := json.Unmarshal(contracts, &snapshot.Contracts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contracts: %w", err)
		}
	}

	return &snapshot, nil
}

// ===========================================================================
// postgresOrderEventRepo
// ===========================================================================

type postgresOrderEventRepo struct {
	db *sql.DB
}

// Append agrega el callback crudo al audit trail. Append-only: los
// eventos nunca se reescriben ni se borran.
func (r *postgresOrderEventRepo) Append(ctx context.Context, userID string, order *domain.LiveOrder) error {
	contract, err := json.Marshal(order.Contract)
	if err != nil {
		return fmt.Errorf("failed to marshal contract: %w", err)
	}

	query := `
		INSERT INTO relay.order_events (
			user_id, order_id, perm_id, contract, action, total_quantity,
			order_type, lmt_price, aux_price, trail_stop_price,
			status, account, updated_at_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		userID,
		order.OrderID,
		order.PermID,
		contract,
		order.Action,
		order.TotalQuantity,
		order.OrderType,
		order.LmtPrice,
		order.AuxPrice,
		order.TrailStopPrice,
		order.Status,
		order.Account,
		order.UpdatedAtMs,
	)
	if err != nil {
		return fmt.Errorf("failed to append order event: %w", err)
	}
	return nil
}
