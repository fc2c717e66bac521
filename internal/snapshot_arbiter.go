package internal

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/semconv"
	"github.com/donkeithross3-commits/ma-tracker-relay/utils"
)

// SnapshotArbiter arbitra ingestas concurrentes de snapshots de precios.
//
// Varios agentes pueden reportar el mismo ticker a la vez. La regla es
// first-writer-wins dentro de la ventana de frescura: si ya existe un
// snapshot aceptado con menos de FreshnessWindow de antigüedad, la
// ingesta nueva se rechaza con STALE_SNAPSHOT (advisory, no fatal)
// referenciando al ganador. El check-then-insert es atómico por ticker.
//
// El timestamp autoritativo es SIEMPRE el del servidor, asignado aquí al
// recibir. El timestamp del agente es informacional: si adelanta al reloj
// del servidor más de ClockSkewMax, la ingesta se rechaza con CLOCK_SKEW
// y no se persiste nada.
type SnapshotArbiter struct {
	freshnessWindow time.Duration
	clockSkewMax    time.Duration

	// Serializa check-then-insert por ticker.
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	latest  map[string]*domain.PriceSnapshot
	nowFunc func() time.Time

	repo      domain.SnapshotRepository
	telemetry *telemetry.Client
	metrics   *metricbundle.RelayMetrics
}

// NewSnapshotArbiter crea el árbitro de snapshots.
//
// repo puede ser nil (sin persistencia, la vista vive en memoria).
func NewSnapshotArbiter(cfg *Config, repo domain.SnapshotRepository, tel *telemetry.Client, metrics *metricbundle.RelayMetrics) *SnapshotArbiter {
	return &SnapshotArbiter{
		freshnessWindow: cfg.FreshnessWindow,
		clockSkewMax:    cfg.ClockSkewMax,
		locks:           make(map[string]*sync.Mutex),
		latest:          make(map[string]*domain.PriceSnapshot),
		nowFunc:         time.Now,
		repo:            repo,
		telemetry:       tel,
		metrics:         metrics,
	}
}

// Ingest arbitra un snapshot entrante.
//
// En aceptación asigna snapshot_id (UUIDv7), server_timestamp_ms y los
// conteos derivados de la cadena, y persiste best-effort. En rechazo no
// queda NINGÚN rastro del snapshot perdedor como versión del ticker.
func (a *SnapshotArbiter) Ingest(ctx context.Context, snapshot *domain.PriceSnapshot) (*domain.PriceSnapshot, error) {
	ctx, span := a.telemetry.StartSpan(ctx, "relay.arbiter.ingest")
	defer span.End()

	now := a.nowFunc()
	serverMs := now.UnixMilli()

	attrs := []attribute.KeyValue{
		semconv.Relay.Ticker.String(snapshot.Ticker),
		semconv.Relay.AgentID.String(snapshot.AgentID),
	}

	// Skew de reloj: un timestamp de agente POR DELANTE del servidor delata
	// un reloj roto. Quedar por detrás es normal: el scan de la cadena y la
	// subida siempre ponen el timestamp del agente antes de la recepción.
	if snapshot.AgentTimestampMs != 0 {
		skewMs := snapshot.AgentTimestampMs - serverMs
		if time.Duration(skewMs)*time.Millisecond > a.clockSkewMax {
			err := domain.NewError(domain.ErrClockSkew, "agent clock skew exceeds maximum").
				WithDetail("skew_ms", skewMs).
				WithDetail("agent_timestamp_ms", snapshot.AgentTimestampMs).
				WithDetail("server_timestamp_ms", serverMs)

			a.telemetry.Warn(ctx, "Snapshot rejected, agent clock skew",
				append(attrs, semconv.Relay.SkewMs.Int64(skewMs))...)
			a.metrics.RecordSnapshotSkew(ctx, attrs...)
			return nil, err
		}
	}

	lock := a.tickerLock(snapshot.Ticker)
	lock.Lock()
	defer lock.Unlock()

	// Ventana de frescura: first-writer-wins contra la última aceptada.
	if current := a.latestLocked(ctx, snapshot.Ticker); current != nil {
		ageMs := serverMs - current.ServerTimestampMs
		if time.Duration(ageMs)*time.Millisecond < a.freshnessWindow {
			err := domain.NewError(domain.ErrStaleSnapshot, "a fresh snapshot already exists for ticker").
				WithDetail("winning_snapshot_id", current.SnapshotID).
				WithDetail("winning_agent_id", current.AgentID).
				WithDetail("winning_timestamp_ms", current.ServerTimestampMs).
				WithDetail("age_ms", ageMs)

			a.telemetry.Info(ctx, "Snapshot rejected, fresh snapshot exists",
				append(attrs, semconv.Relay.SnapshotAgeMs.Int64(ageMs))...)
			a.metrics.RecordSnapshotConflict(ctx, attrs...)
			return nil, err
		}
	}

	// Aceptado: sellar con identidad y timestamp autoritativo.
	accepted := *snapshot
	accepted.SnapshotID = utils.GenerateUUIDv7()
	accepted.ServerTimestampMs = serverMs
	accepted.CreatedAt = now
	accepted.DeriveChainCounts()
	if accepted.ExpectedCloseDate != "" {
		accepted.DaysToClose = domain.DaysUntil(serverMs, accepted.ExpectedCloseDate)
	}

	a.mu.Lock()
	a.latest[accepted.Ticker] = &accepted
	a.mu.Unlock()

	a.telemetry.Info(ctx, "Snapshot accepted",
		append(attrs,
			attribute.String("snapshot_id", accepted.SnapshotID),
			attribute.Int("contracts", len(accepted.Contracts)),
		)...)
	a.metrics.RecordSnapshotAccepted(ctx, attrs...)

	// Persistencia best-effort: la vista en memoria ya es autoritativa.
	if a.repo != nil {
		if err := a.repo.Insert(ctx, &accepted); err != nil {
			a.telemetry.Error(ctx, "Failed to persist accepted snapshot", err, attrs...)
		}
	}

	result := accepted
	return &result, nil
}

// Latest retorna el último snapshot aceptado de un ticker, consultando el
// repositorio si la memoria no lo tiene (arranque en frío).
func (a *SnapshotArbiter) Latest(ctx context.Context, ticker string) (*domain.PriceSnapshot, bool) {
	lock := a.tickerLock(ticker)
	lock.Lock()
	defer lock.Unlock()

	current := a.latestLocked(ctx, ticker)
	if current == nil {
		return nil, false
	}
	copied := *current
	return &copied, true
}

// latestLocked obtiene la última versión aceptada. DEBE llamarse con el
// lock del ticker adquirido.
func (a *SnapshotArbiter) latestLocked(ctx context.Context, ticker string) *domain.PriceSnapshot {
	a.mu.Lock()
	current := a.latest[ticker]
	a.mu.Unlock()

	if current != nil {
		return current
	}

	if a.repo == nil {
		return nil
	}
	persisted, err := a.repo.LatestByTicker(ctx, ticker)
	if err != nil || persisted == nil {
		return nil
	}

	a.mu.Lock()
	a.latest[ticker] = persisted
	a.mu.Unlock()
	return persisted
}

// tickerLock retorna el mutex del ticker, creándolo si no existe.
func (a *SnapshotArbiter) tickerLock(ticker string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[ticker]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[ticker] = lock
	}
	return lock
}
