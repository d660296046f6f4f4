package websocket

import (
	"net/http"
	"sync"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// busSubscriptionID names the server's subscription on the notification bus
const busSubscriptionID notify.SubscriptionID = "websocket"

// Server upgrades connections and pushes bus notifications to them
type Server struct {
	hub      *Hub
	bus      *notify.Bus
	upgrader websocket.Upgrader
	bridged  sync.WaitGroup
	logger   *zap.Logger
}

// NewServer creates a server relaying every notification published on bus.
// A nil bus yields a server whose clients only receive control frames.
// observer may be nil.
func NewServer(bus *notify.Bus, allowedOrigins []string, observer ClientObserver, logger *zap.Logger) *Server {
	logger = logger.Named("websocket")
	s := &Server{
		hub:    NewHub(logger),
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	if observer != nil {
		s.hub.SetObserver(observer)
	}
	go s.hub.Run()

	if bus != nil {
		sub := bus.Subscribe(busSubscriptionID, nil, constants.DefaultSubscriberBuffer)
		if sub == nil {
			logger.Warn("notification bus unavailable, websocket clients will receive no notifications")
		} else {
			s.bridged.Add(1)
			go s.bridge(sub)
		}
	}
	return s
}

func (s *Server) bridge(sub *notify.Subscription) {
	defer s.bridged.Done()
	for n := range sub.Channel {
		s.hub.Publish(n)
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(s.hub, conn, s.logger)
	if !s.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable"))
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	s.logger.Debug("new websocket connection", zap.String("remote_addr", r.RemoteAddr))
}

// Hub returns the underlying hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stop detaches from the bus and closes all clients
func (s *Server) Stop() {
	if s.bus != nil {
		s.bus.Unsubscribe(busSubscriptionID)
	}
	s.bridged.Wait()
	s.hub.Stop()
}
