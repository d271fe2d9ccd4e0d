package websocket

import (
	"context"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/egor/dealercrm/metrics"
)

// Hub рассылает события всем подключенным дашбордам.
// Множеством клиентов владеет только горутина Run.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub создает новый Hub
func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		metrics:    m,
	}
}

// Run обслуживает хаб до отмены контекста, затем закрывает все соединения
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
			h.metrics.AddWebsocketClients(1)
			h.log.Debug().Str("subscriber", client.ID).Int64("total", h.count.Load()).Msg("dashboard connected")
		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.log.Debug().Str("subscriber", client.ID).Int64("total", h.count.Load()).Msg("dashboard disconnected")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// медленный подписчик
					h.drop(client)
					h.log.Warn().Str("subscriber", client.ID).Msg("slow dashboard dropped")
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.count.Add(-1)
	h.metrics.AddWebsocketClients(-1)
}

// ClientCount - число подключенных дашбордов
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// Publish ставит событие в очередь рассылки. Не блокирует: если очередь
// переполнена или хаб остановлен, событие теряется.
func (h *Hub) Publish(event []byte, err error) {
	if h == nil {
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("websocket event encoding failed")
		return
	}
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.log.Warn().Msg("websocket broadcast queue full, event dropped")
	}
}

// ServeConn регистрирует соединение и запускает его насосы
func (h *Hub) ServeConn(conn *websocket.Conn, id string) {
	client := newClient(h, conn, id)
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
