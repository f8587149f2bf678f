package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

const (
	writeWait      = 5 * time.Second
	broadcastQueue = 64
)

// Hub рассылает подписчикам /ws/history запись о каждом новом артефакте.
// Соединениями владеет только горутина Run.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewHub создаёт хаб; origins в том же формате, что и CORS_ORIGINS
func NewHub(origins string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := parseOrigins(origins)
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowed["*"] || origin == "" || allowed[origin]
			},
		},
		logger:     logger,
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, broadcastQueue),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]struct{}),
	}
}

// Run обслуживает подписчиков до отмены ctx, затем закрывает все соединения
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("history subscriber connected", "total", total)

		case conn := <-h.unregister:
			h.drop(conn)

		case message := <-h.broadcast:
			for _, conn := range h.snapshot() {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("history subscriber write failed", "error", err)
					h.drop(conn)
				}
			}
		}
	}
}

// Notify ставит запись в очередь рассылки; при переполнении запись теряется
func (h *Hub) Notify(entry entity.HistoryEntry) {
	message, err := json.Marshal(entry)
	if err != nil {
		h.logger.Error("marshal history entry", "error", err)
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("history broadcast queue is full, dropping entry", "filename", entry.Filename)
	}
}

// Clients возвращает число подключённых подписчиков
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve переводит запрос в websocket и держит соединение до отключения клиента
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-c.Request.Context().Done():
		conn.Close()
		return
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			// входящие сообщения не нужны, чтение только ловит закрытие
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("history subscriber error", "error", err)
				}
				return
			}
		}
	}()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

var _ port.ArtifactNotifier = (*Hub)(nil)
