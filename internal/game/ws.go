package game

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"example.com/sb-mvp/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // MVP
}

type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// sendEnvelope queues a frame without blocking; a client that cannot keep
// up gets frames dropped rather than stalling the registry.
func sendEnvelope(conn *ClientConn, env Envelope) {
	if conn == nil {
		return
	}
	b, _ := json.Marshal(env)
	select {
	case conn.send <- b:
	default:
	}
}

// TokenVerifier checks an optional bearer token on the ws handshake.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// handleWS is the single session entry point: /ws.
//
// Identity: a valid token (Authorization header or ?token=) pins the stable
// player id and display name from its claims. Guests may present a
// previously issued ?playerId= to reconnect, otherwise they get a fresh id,
// echoed back in every room ack.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	name := r.URL.Query().Get("playerName")

	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token != "" {
		claims, err := s.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		playerID = claims.UserID
		if name == "" {
			name = claims.DisplayName
		}
	}
	if playerID == "" {
		playerID = uuid.NewString()
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cc := &ClientConn{ws: ws, send: make(chan []byte, 64)}

	// writer loop
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-cc.send:
				if !ok {
					return
				}
				_ = ws.WriteMessage(websocket.TextMessage, msg)
			case <-ticker.C:
				_ = ws.WriteMessage(websocket.PingMessage, []byte{})
			}
		}
	}()

	s.readLoop(cc, playerID, name)

	s.registry.Disconnect(playerID, cc)
	cc.Close()
}

func (s *Server) readLoop(cc *ClientConn, playerID, defaultName string) {
	for {
		_, data, err := cc.ws.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			sendEnvelope(cc, Envelope{Type: "error", Payload: mustJSON(ErrorAck{Error: "invalid json"})})
			continue
		}
		s.dispatch(cc, playerID, defaultName, env)
	}
}

func (s *Server) dispatch(cc *ClientConn, playerID, defaultName string, env Envelope) {
	ack := func(payload any) {
		sendEnvelope(cc, Envelope{Type: "ack", AckID: env.AckID, Payload: mustJSON(payload)})
	}
	fail := func(err error) {
		msg := err.Error()
		if !IsClientError(err) && !errors.Is(err, errBadPayload) && !errors.Is(err, errUnknownType) {
			msg = "internal error"
		}
		ack(ErrorAck{Success: false, Error: msg})
	}

	switch env.Type {
	case "create-room":
		var p CreateRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		res, err := s.registry.CreateRoom(playerID, pick(p.PlayerName, defaultName), cc)
		if err != nil {
			fail(err)
			return
		}
		ack(res)

	case "join-room":
		var p JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		res, err := s.registry.JoinRoom(p.RoomCode, playerID, pick(p.PlayerName, defaultName), cc)
		if err != nil {
			fail(err)
			return
		}
		ack(res)

	case "reconnect-to-room":
		var p ReconnectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		res, err := s.registry.Reconnect(p.RoomCode, playerID, pick(p.PlayerName, defaultName), cc)
		if err != nil {
			fail(err)
			return
		}
		ack(res)

	case "player-ready":
		var p PlayerReadyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		canStart, err := s.registry.SetReady(playerID, p.Ready)
		if err != nil {
			fail(err)
			return
		}
		ack(ReadyAck{Success: true, CanStartNext: canStart})

	case "submit-round-results":
		var p SubmitResultsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		res, err := s.registry.SubmitResults(playerID, p.Words, p.TotalScore)
		if err != nil {
			fail(err)
			return
		}
		ack(res)

	default:
		fail(errUnknownType)
	}
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
