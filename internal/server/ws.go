package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/refine"
)

// Frame types sent to WebSocket clients
const (
	FrameState            = "state"
	FrameDelta            = "delta"
	FrameDecisionRequired = "decision_required"
	FrameResult           = "result"
	FrameError            = "error"
)

// Message types accepted from WebSocket clients
const (
	MessageClaim    = "claim"
	MessageDecision = "decision"
)

const writeWait = 10 * time.Second

// frame is one server-to-client message
type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	State     refine.State    `json:"state,omitempty"`
	Stage     factcheck.Stage `json:"stage,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	Session   *sessionView    `json:"session,omitempty"`
	Result    *model.Result   `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// clientMessage is one client-to-server message
type clientMessage struct {
	Type     string `json:"type"`
	Claim    string `json:"claim,omitempty"`
	Source   string `json:"source,omitempty"`
	Action   string `json:"action,omitempty"`
	Question string `json:"question,omitempty"`
}

// wsWriter serializes writes; gorilla connections allow one concurrent writer
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(f frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(f)
}

// handleWebSocket runs one interactive session per connection. The client
// sends a claim message, then one decision message per decision_required frame.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	out := &wsWriter{conn: conn}

	var first clientMessage
	if err := conn.ReadJSON(&first); err != nil {
		return
	}
	if first.Type != MessageClaim {
		_ = out.send(frame{Type: FrameError, Error: "expected a claim message"})
		return
	}

	decisions := make(chan refine.Decision)
	go s.readDecisions(ctx, cancel, conn, out, decisions)

	var sessionID string
	observer := &refine.Observer{
		OnState: func(sess *refine.Session, st refine.State) {
			sessionID = sess.ID
			_ = out.send(frame{Type: FrameState, SessionID: sess.ID, State: st})
		},
		OnDelta: func(stage factcheck.Stage, delta string) {
			_ = out.send(frame{Type: FrameDelta, SessionID: sessionID, Stage: stage, Delta: delta})
		},
		// the next decision_required frame asks again
		OnRejected: func(sess *refine.Session, err error) {
			_ = out.send(frame{Type: FrameError, SessionID: sess.ID, Error: err.Error()})
		},
	}

	channel := refine.NewChannelDecider(decisions)
	policy := s.pipeline.Controller().Policy()
	decider := refine.DeciderFunc(func(ctx context.Context, sess *refine.Session) (refine.Decision, error) {
		view := newView(sess, policy)
		if err := out.send(frame{Type: FrameDecisionRequired, SessionID: sess.ID, Session: &view}); err != nil {
			return refine.Decision{}, err
		}
		return channel.Decide(ctx, sess)
	})

	result, err := s.pipeline.Run(ctx, model.Claim{Text: first.Claim, Source: first.Source}, decider, observer)
	if err != nil {
		_ = out.send(frame{Type: FrameError, SessionID: sessionID, Error: err.Error(), Result: result})
		return
	}
	_ = out.send(frame{Type: FrameResult, SessionID: result.SessionID, Result: result})

	out.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"),
		time.Now().Add(writeWait))
	out.mu.Unlock()
}

// readDecisions forwards decision messages until the connection closes. A
// dropped connection cancels the session.
func (s *Server) readDecisions(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out *wsWriter, decisions chan<- refine.Decision) {
	defer cancel()
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != MessageDecision {
			_ = out.send(frame{Type: FrameError, Error: "expected a decision message"})
			continue
		}
		action, err := refine.ParseAction(msg.Action)
		if err != nil {
			_ = out.send(frame{Type: FrameError, Error: err.Error()})
			continue
		}
		if action == refine.ActionCustom && strings.TrimSpace(msg.Question) == "" {
			_ = out.send(frame{Type: FrameError, Error: refine.ErrEmptyQuestion.Error()})
			continue
		}

		select {
		case decisions <- refine.Decision{Action: action, Question: msg.Question}:
		case <-ctx.Done():
			return
		}
	}
}
