package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/metrics"
	"sleeplog-backend/internal/models"
)

// Channel carries ledger and notification events between server instances.
const Channel = "sleep_updates"

const writeTimeout = 10 * time.Second

var ErrNoClients = errors.New("no websocket clients connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier validates the ?token= session token and returns its subject.
type TokenVerifier func(token string) (string, error)

// Hub fans events out to the owner's open dashboards. With a Redis client,
// events go through pub/sub so every instance sees them; without one they
// are broadcast in-process.
type Hub struct {
	mu          sync.Mutex
	connections []*websocket.Conn
	redisClient *redis.Client
	verify      TokenVerifier
	cancel      context.CancelFunc
}

func NewHub(redisClient *redis.Client, verify TokenVerifier) *Hub {
	return &Hub{
		redisClient: redisClient,
		verify:      verify,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subject, err := h.verify(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.registerConnection(subject, conn)

	go func() {
		defer h.unregisterConnection(subject, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(subject string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections = append(h.connections, conn)
	metrics.ActiveWebsockets.Set(float64(len(h.connections)))

	// First connection starts the pub/sub subscription.
	if len(h.connections) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.subscribeToPubSub(ctx)
	}

	log.Info().Str("subject", subject).Int("total", len(h.connections)).Msg("websocket connected")
}

func (h *Hub) unregisterConnection(subject string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	for i, c := range h.connections {
		if c == conn {
			h.connections = append(h.connections[:i], h.connections[i+1:]...)
			break
		}
	}
	metrics.ActiveWebsockets.Set(float64(len(h.connections)))

	if len(h.connections) == 0 && h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}

	log.Info().Str("subject", subject).Msg("websocket disconnected")
}

func (h *Hub) subscribeToPubSub(ctx context.Context) {
	pubsub := h.redisClient.Subscribe(ctx, Channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

// broadcast writes to every connection and returns how many accepted it.
// Writes are serialized by mu; gorilla connections allow one writer.
func (h *Hub) broadcast(data []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, conn := range h.connections {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Publish sends an event to every connected dashboard.
func (h *Hub) Publish(ctx context.Context, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode websocket message: %w", err)
	}

	if h.redisClient != nil {
		if err := h.redisClient.Publish(ctx, Channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish websocket message: %w", err)
		}
		return nil
	}

	h.broadcast(data)
	return nil
}

func (h *Hub) Name() string { return "websocket" }

// Send delivers a notification as a websocket event. It fails when nobody is
// listening so the dispatcher does not count it as a delivery.
func (h *Hub) Send(ctx context.Context, n models.Notification) error {
	if h.ClientCount() == 0 && h.redisClient == nil {
		return ErrNoClients
	}
	return h.Publish(ctx, models.WSMessage{Type: models.WSTypeNotification, Payload: n})
}
