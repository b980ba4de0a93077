package websocket

import (
	"context"
	"sync"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// Типы сообщений для клиентов
const (
	MessageAlert      = "alert"
	MessageHealth     = "health"
	MessageDeployment = "deployment"
)

// Message представляет сообщение для отправки клиенту
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub управляет WebSocket клиентами и рассылает сообщения.
// Реализует интерфейс port.NotificationService
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	logger *logger.Logger
}

// NewHub создает новый WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run обслуживает hub до отмены ctx (запускать в отдельной goroutine)
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.stopped) })
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.subscription.Accepts(message) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Канал клиента заполнен, закрываем соединение
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Register регистрирует нового клиента; после остановки hub - no-op
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
	}
}

// Unregister удаляет клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastAlert отправляет алерт всем клиентам
func (h *Hub) BroadcastAlert(alert entity.Alert) {
	h.enqueue(Message{Type: MessageAlert, Data: alert})
}

// BroadcastHealth отправляет статус здоровья всем клиентам
func (h *Hub) BroadcastHealth(status entity.HealthStatus) {
	h.enqueue(Message{Type: MessageHealth, Data: status})
}

// BroadcastDeployment отправляет решение о деплое всем клиентам
func (h *Hub) BroadcastDeployment(result entity.DeploymentValidationResult) {
	h.enqueue(Message{Type: MessageDeployment, Data: result})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stopped сообщает, что Run завершился
func (h *Hub) Stopped() bool {
	select {
	case <-h.stopped:
		return true
	default:
		return false
	}
}
