package internal

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/donkeithross3-commits/ma-tracker-relay/domain"
)

// AgentSession representa la sesión viva de un agente de escritorio.
//
// Cada sesión está ligada a UN userId durante toda su vida (resuelto en
// la autenticación del providerKey) y transporta:
//   - Comandos relay → agente por SendCh (serializa escrituras al socket)
//   - El libro de órdenes vivas reportado por el broker de ese usuario
//
// El estado es thread-safe; el websocket lo manejan los pumps del Relay.
type AgentSession struct {
	AgentID string
	UserID  string

	ConnectedAt time.Time

	// SendCh serializa los envíos al agente. Nunca se cierra: los
	// productores seleccionan contra Done() para no bloquear en una
	// sesión muerta.
	SendCh chan *domain.RelayCommand

	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}

	mu         sync.RWMutex
	status     domain.SessionStatus
	lastSeenMs int64
	timeouts   int

	// Libro de órdenes vivas: order_id → orden.
	// Lo alimenta el stream de callbacks del broker vía el agente.
	orders map[int64]domain.LiveOrder
}

// NewAgentSession crea una sesión para un agente autenticado.
//
// conn puede ser nil en tests; los pumps sólo corren con socket real.
func NewAgentSession(agentID, userID string, conn *websocket.Conn, sendBuffer int) *AgentSession {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &AgentSession{
		AgentID:     agentID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		SendCh:      make(chan *domain.RelayCommand, sendBuffer),
		conn:        conn,
		done:        make(chan struct{}),
		status:      domain.SessionStatusConnected,
		lastSeenMs:  time.Now().UnixMilli(),
		orders:      make(map[int64]domain.LiveOrder),
	}
}

// Close marca la sesión como terminada (supersede o cierre de socket).
// Idempotente. Desbloquea a los pumps y a cualquier productor en espera.
func (s *AgentSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.SetStatus(domain.SessionStatusDisconnected)
}

// Done retorna el canal cerrado cuando la sesión termina.
func (s *AgentSession) Done() <-chan struct{} {
	return s.done
}

// Status retorna el estado actual de la sesión.
func (s *AgentSession) Status() domain.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus actualiza el estado de la sesión.
func (s *AgentSession) SetStatus(status domain.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Touch actualiza el instante del último mensaje recibido (heartbeat o datos).
func (s *AgentSession) Touch() {
	s.mu.Lock()
	s.lastSeenMs = time.Now().UnixMilli()
	s.mu.Unlock()
}

// LastSeenMs retorna el timestamp epoch ms del último mensaje del agente.
func (s *AgentSession) LastSeenMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeenMs
}

// NoteTimeout registra un timeout de routing sobre esta sesión y retorna
// el acumulado. Timeouts repetidos marcan la sesión como no saludable,
// pero no la desconectan: sólo el cierre del socket o un supersede lo hacen.
func (s *AgentSession) NoteTimeout() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts++
	return s.timeouts
}

// TimeoutCount retorna cuántos timeouts acumula la sesión.
func (s *AgentSession) TimeoutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeouts
}

// ApplyOrderEvent aplica un callback de orden del broker al libro.
//
// Upsert por order_id. Si la orden llega en estado terminal
// (fill/cancel confirmado) se elimina del libro.
func (s *AgentSession) ApplyOrderEvent(order domain.LiveOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if domain.IsTerminalStatus(order.Status) {
		delete(s.orders, order.OrderID)
		return
	}
	s.orders[order.OrderID] = order
}

// RemoveOrder elimina una orden del libro (ack de fill/cancel por order_id).
func (s *AgentSession) RemoveOrder(orderID int64) {
	s.mu.Lock()
	delete(s.orders, orderID)
	s.mu.Unlock()
}

// ReplaceOrders sustituye el libro completo por el conjunto reconciliado.
//
// Se invoca tras un snapshot live_orders ya pasado por el reconciliador.
func (s *AgentSession) ReplaceOrders(orders []domain.LiveOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[int64]domain.LiveOrder, len(orders))
	for _, o := range orders {
		s.orders[o.OrderID] = o
	}
}

// OrdersCopy retorna una copia del libro ordenada por order_id.
func (s *AgentSession) OrdersCopy() []domain.LiveOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LiveOrder, 0, len(s.orders))
	for _, o := range s.orders {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OrderID < result[j].OrderID
	})
	return result
}

// OrderByID retorna la orden viva con ese order_id, si existe.
func (s *AgentSession) OrderByID(orderID int64) (domain.LiveOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	return order, ok
}

// OrderCount retorna cuántas órdenes vivas tiene el libro.
func (s *AgentSession) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
