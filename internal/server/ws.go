package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"column-indexer/internal/metrics"
	"column-indexer/internal/model"
	"column-indexer/internal/outline"
	"column-indexer/internal/spy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait bounds a single message write to a slow client.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsRequest is a client message. Type selects which fields apply.
type wsRequest struct {
	Type      string                `json:"type"` // index, outline, observe, detach
	Owner     string                `json:"owner,omitempty"`
	Column    string                `json:"column,omitempty"`
	Count     int                   `json:"count,omitempty"`
	Headings  []model.HeadingRecord `json:"headings,omitempty"`
	Margins   *spy.Margins          `json:"margins,omitempty"`
	Viewport  spy.Viewport          `json:"viewport"`
	Positions []spy.Position        `json:"positions,omitempty"`
}

// wsResponse is a server message. Type is one of session, index, refined,
// outline, active, error.
type wsResponse struct {
	Type     string             `json:"type"`
	Session  string             `json:"session,omitempty"`
	Column   string             `json:"column,omitempty"`
	Articles model.ArticleIndex `json:"articles,omitempty"`
	Complete bool               `json:"complete,omitempty"`
	Outline  outline.Forest     `json:"outline,omitempty"`
	Active   *spy.ActiveEvent   `json:"active,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// session is one websocket connection. Writes go through out so that
// refinements and spy events can arrive from other goroutines.
type session struct {
	id   string
	conn *websocket.Conn
	out  chan wsResponse
	done chan struct{}

	mu  sync.Mutex
	spy *spy.Spy
}

func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("server: websocket upgrade failed", "error", err)
		return
	}
	sess := &session{
		id:   uuid.New().String(),
		conn: conn,
		out:  make(chan wsResponse, 32),
		done: make(chan struct{}),
	}
	slog.Info("server: websocket session started", "session", sess.id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sess.writeLoop()
	}()

	sess.send(wsResponse{Type: "session", Session: sess.id})
	s.readLoop(c.Request.Context(), sess)

	close(sess.done)
	sess.detach()
	wg.Wait()
	_ = conn.Close()
	slog.Info("server: websocket session ended", "session", sess.id)
}

func (s *Server) readLoop(ctx context.Context, sess *session) {
	for {
		var req wsRequest
		if err := sess.conn.ReadJSON(&req); err != nil {
			slog.Debug("server: websocket read ended", "session", sess.id, "error", err)
			return
		}
		switch req.Type {
		case "index":
			s.wsIndex(ctx, sess, req)
		case "outline":
			sess.attach(req)
		case "observe":
			sess.mu.Lock()
			sp := sess.spy
			sess.mu.Unlock()
			if sp == nil {
				sess.send(wsResponse{Type: "error", Error: "observe before outline"})
				continue
			}
			sp.Observe(req.Viewport, req.Positions)
		case "detach":
			sess.detach()
		default:
			sess.send(wsResponse{Type: "error", Error: "unknown message type: " + req.Type})
		}
	}
}

func (s *Server) wsIndex(ctx context.Context, sess *session, req wsRequest) {
	key, ok := columnKey(req.Owner, req.Column)
	if !ok {
		sess.send(wsResponse{Type: "error", Error: "column must be numeric"})
		return
	}
	col := key.String()
	res := s.hub.Get(ctx, key, req.Count, func(full model.ArticleIndex) {
		sess.send(wsResponse{Type: "refined", Column: col, Articles: full, Complete: true})
	})
	sess.send(wsResponse{Type: "index", Column: col, Articles: res.Articles, Complete: res.Complete})
}

// attach replaces the session's spy with one over req.Headings and sends
// the outline.
func (sess *session) attach(req wsRequest) {
	forest := buildForest(req.Headings)
	opts := []spy.Option{}
	if req.Margins != nil {
		opts = append(opts, spy.WithMargins(*req.Margins))
	}
	sp := spy.Attach(req.Headings, forest, opts...)

	sess.mu.Lock()
	old := sess.spy
	sess.spy = sp
	sess.mu.Unlock()
	if old != nil {
		old.Detach()
		metrics.SpySessions.Dec()
	}
	metrics.SpySessions.Inc()

	go sess.forward(sp)
	sess.send(wsResponse{Type: "outline", Outline: forest})
}

func (sess *session) detach() {
	sess.mu.Lock()
	sp := sess.spy
	sess.spy = nil
	sess.mu.Unlock()
	if sp != nil {
		sp.Detach()
		metrics.SpySessions.Dec()
	}
}

// forward relays spy events until the spy is detached.
func (sess *session) forward(sp *spy.Spy) {
	for ev := range sp.Events() {
		sess.send(wsResponse{Type: "active", Active: &ev})
	}
}

func (sess *session) send(msg wsResponse) {
	select {
	case sess.out <- msg:
	case <-sess.done:
	}
}

func (sess *session) writeLoop() {
	for {
		select {
		case msg := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(msg); err != nil {
				slog.Warn("server: websocket write failed", "session", sess.id, "error", err)
				// Unblocks readLoop, which then closes done for pending senders.
				_ = sess.conn.Close()
				return
			}
		case <-sess.done:
			return
		}
	}
}
