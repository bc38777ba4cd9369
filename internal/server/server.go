package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markettraveler/internal/event"
	"markettraveler/internal/history"
	"markettraveler/internal/traveler"
)

// Controller is the run surface the status server exposes.
type Controller interface {
	StateName() string
	CurrentWorld() string
	IsRunning() bool
	CurrentActiveItem() *traveler.ShoppingItem
	Stop()
}

// Shopper is the purchasing surface the status server exposes.
type Shopper interface {
	StateName() string
	SessionPurchased() int
	RequestStep()
}

// Server is a loopback HTTP server for observing and poking a run: status
// and history reads, a live event stream over websocket, a stop control and
// the step trigger used in step mode.
type Server struct {
	addr       string
	controller Controller
	shopper    Shopper
	store      *history.Store
	logger     *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func New(addr string, controller Controller, shopper Shopper, store *history.Store, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		controller: controller,
		shopper:    shopper,
		store:      store,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // loopback only
		},
		clients: map[*websocket.Conn]chan []byte{},
	}
}

// EventHandler returns a bus handler that fans events out to connected
// websocket clients.
func (s *Server) EventHandler() event.Handler {
	return func(e event.Event) {
		payload, err := json.Marshal(wireEvent{
			Type:       eventType(e),
			Message:    e.Message(),
			OccurredAt: e.OccurredAt(),
		})
		if err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for conn, out := range s.clients {
			select {
			case out <- payload:
			default:
				// Slow consumer: drop the connection rather than the run.
				close(out)
				delete(s.clients, conn)
			}
		}
	}
}

type wireEvent struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

func eventType(e event.Event) string {
	switch e.(type) {
	case event.RunStartedEvent:
		return "run_started"
	case event.RunFinishedEvent:
		return "run_finished"
	case event.WorldSkippedEvent:
		return "world_skipped"
	case event.WorldSummaryEvent:
		return "world_summary"
	case event.ItemPurchasedEvent:
		return "item_purchased"
	}
	return "log"
}

// Handler builds the full route table behind the loopback guard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/step", s.handleStep)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/ws", s.handleWS)
	return s.guard(mux)
}

// Listen serves until ctx is done.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Status server listening", slog.String("addr", s.addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// guard rejects non-loopback callers; the server carries run controls.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type statusResponse struct {
	Running          bool   `json:"running"`
	TravelState      string `json:"travel_state"`
	ShopperState     string `json:"shopper_state"`
	CurrentWorld     string `json:"current_world,omitempty"`
	ActiveItemID     uint32 `json:"active_item_id,omitempty"`
	ActivePurchased  int    `json:"active_purchased,omitempty"`
	ActiveTarget     int    `json:"active_target,omitempty"`
	SessionPurchased int    `json:"session_purchased"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Running:          s.controller.IsRunning(),
		TravelState:      s.controller.StateName(),
		ShopperState:     s.shopper.StateName(),
		CurrentWorld:     s.controller.CurrentWorld(),
		SessionPurchased: s.shopper.SessionPurchased(),
	}
	if item := s.controller.CurrentActiveItem(); item != nil {
		resp.ActiveItemID = item.ItemID
		resp.ActivePurchased = item.PurchasedQty
		resp.ActiveTarget = item.TargetQty
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}

	purchases, err := s.store.RecentPurchases(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(purchases)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.shopper.RequestStep()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.controller.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	out := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = out
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[conn]; ok {
			close(out)
			delete(s.clients, conn)
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	// Drain and discard client reads so pings and close frames are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	for payload := range out {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
