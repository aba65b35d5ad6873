// Package gateway exposes the chat engine over a websocket: one connection
// per authenticated member, JSON commands in, view snapshots and arrival
// events out.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"govibe/internal/auth"
	"govibe/internal/chat"
	"govibe/internal/common"
	"govibe/internal/media"
	"govibe/internal/store"
)

type Server struct {
	st       store.Store
	jwt      *auth.JWTManager
	uploader media.Uploader
	opts     chat.Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewServer(st store.Store, jwt *auth.JWTManager, uploader media.Uploader, opts chat.Options, log zerolog.Logger) *Server {
	return &Server{
		st:       st,
		jwt:      jwt,
		uploader: uploader,
		opts:     opts,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway is origin-agnostic; auth happens via the token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/login", s.handleLogin).Methods("POST")
	router.HandleFunc("/ws", s.handleWS).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	return router
}

// handleLogin issues a token for a member id. There is no password check;
// identity verification is delegated to whatever sits in front of the
// gateway in production.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string `json:"member_id"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := common.ValidateMemberID(req.MemberID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.MemberID
	}

	token, err := s.jwt.Generate(req.MemberID, req.Name)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"token": token}); err != nil {
		s.log.Warn().Err(err).Msg("login response write error")
	}
}

// handleWS authenticates the token from the query string, upgrades, and
// hands the socket to a connection handler that owns the member's session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = cutBearer(r.Header.Get("Authorization"))
	}

	claims, err := s.jwt.Validate(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	me := chat.User{ID: claims.UserID, Name: claims.Name}
	conn := newConn(ws, s.st, me, s.uploader, s.opts, s.log.With().Str("member", me.ID).Logger())
	go conn.writePump()
	go conn.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func cutBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}
