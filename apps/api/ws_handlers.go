package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
	"github.com/istadmins/RotamBenim-sub000/libs/suggest"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
	wsSendBuffer     = 16
)

type wsClientMessage struct {
	Type    string `json:"type"`
	Q       string `json:"q"`
	Country string `json:"country"`
	Visited string `json:"visited"`
}

// wsSession is one live connection. All writes go through send so only the
// writer goroutine touches the socket for output.
type wsSession struct {
	app    *App
	userID int64
	conn   *websocket.Conn
	store  *places.Store

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	debouncer *suggest.Debouncer

	mu     sync.Mutex
	filter places.FilterState
}

func (a *App) wsUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || a.isAllowedCORSOrigin(origin)
		},
	}
}

func (a *App) websocketHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}
	store, release, err := a.hub.Hold(c.Request.Context(), session.UserID)
	if err != nil {
		a.log.Error("failed to load places", "user_id", session.UserID, "err", err)
		a.metrics.snapshotRefreshes.WithLabelValues("error").Inc()
		writeAPIError(c, errLoadUnavailable)
		return
	}
	defer release()

	conn, err := a.wsUpgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", "user_id", session.UserID, "err", err)
		return
	}

	s := &wsSession{
		app:       a,
		userID:    session.UserID,
		conn:      conn,
		store:     store,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		debouncer: suggest.NewDebouncer(a.cfg.SuggestDebounce),
		filter:    places.DefaultFilter(),
	}
	a.log.Info("websocket connected", "user_id", session.UserID)

	unsubscribe := store.Subscribe(s.pushPlaces)
	go s.writeLoop()
	s.pushPlaces(store.All())
	s.readLoop()

	unsubscribe()
	s.debouncer.Stop()
	s.close()
	a.log.Info("websocket disconnected", "user_id", session.UserID)
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// enqueue hands data to the writer. A client too slow to drain its buffer is
// disconnected.
func (s *wsSession) enqueue(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.app.log.Error("failed to encode websocket message", "err", err)
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.app.log.Warn("websocket send buffer full, closing", "user_id", s.userID)
		s.close()
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg wsClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.sendError("invalid_payload", "Messages must be JSON")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.app.log.Warn("websocket read failed", "user_id", s.userID, "err", err)
			}
			return
		}

		switch msg.Type {
		case "query":
			s.submitQuery(msg.Q)
		case "filter":
			filter, err := places.ParseFilterState(msg.Country, msg.Visited)
			if err != nil {
				s.sendError("invalid_filter", "visited must be one of all, visited, notvisited")
				continue
			}
			s.mu.Lock()
			s.filter = filter
			s.mu.Unlock()
			s.pushPlaces(s.store.All())
		default:
			s.sendError("invalid_payload", "Unknown message type")
		}
	}
}

// submitQuery ranks after the quiet period. Results of a superseded query are
// dropped.
func (s *wsSession) submitQuery(q string) {
	s.debouncer.Do(func(tok suggest.Token) {
		results := suggest.Rank(q, s.app.gazetteer, suggest.DefaultMaxResults)
		if !tok.Current() {
			return
		}
		s.app.metrics.suggestions.WithLabelValues("ws").Inc()
		s.enqueue(map[string]any{"type": "suggestions", "query": q, "suggestions": results})
	})
}

func (s *wsSession) pushPlaces(snapshot []places.Place) {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()

	s.enqueue(map[string]any{
		"type":      "places",
		"filter":    filter,
		"groups":    places.Groups(snapshot, filter),
		"countries": places.Countries(snapshot),
		"total":     len(snapshot),
	})
}

func (s *wsSession) sendError(code, message string) {
	s.enqueue(map[string]any{"type": "error", "error": code, "message": message})
}
