package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MindCare/internal/flow"
	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Chat frame types sent by WebSocket clients.
const (
	FrameText    = "text"
	FrameChoice  = "choice"
	FrameQuit    = "quit"
	FrameRestart = "restart"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ChatFrame is one client message on the chat socket.
type ChatFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Value *int   `json:"value,omitempty"`
}

// chatSocketHandler drives a session over a WebSocket. The server first sends
// the current state as a turn, then answers every client frame with the
// resulting turn or an error envelope.
func (s *Server) chatSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, "chatSocketHandler", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Server.chatSocketHandler: upgrade failed", "error", err, "sessionID", id)
		return
	}
	defer conn.Close()
	slog.Info("Server.chatSocketHandler: client connected", "sessionID", id)

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	snapshot := flow.Turn{SessionID: id, Phase: rec.Session.Phase, Utterances: []string{}}
	if p, ok, err := s.manager.Prompt(r.Context(), id); err == nil && ok {
		snapshot.Prompt = &p
	}
	if !writeFrame(conn, models.Success(snapshot)) {
		return
	}

	for {
		var frame ChatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Server.chatSocketHandler: read error", "error", err, "sessionID", id)
			}
			return
		}
		turn, err := s.applyFrame(r, id, frame)
		var reply models.APIResponse
		if err != nil {
			if statusForError(err) == http.StatusInternalServerError {
				slog.Error("Server.chatSocketHandler: turn failed", "error", err, "sessionID", id)
				reply = models.Error("Internal server error")
			} else {
				reply = models.Error(err.Error())
			}
		} else {
			reply = models.Success(turn)
		}
		if !writeFrame(conn, reply) {
			return
		}
	}
}

var errUnknownFrame = errors.New("unknown frame type")

func (s *Server) applyFrame(r *http.Request, id string, frame ChatFrame) (flow.Turn, error) {
	ctx := r.Context()
	switch frame.Type {
	case FrameText:
		req := models.TextRequest{Text: frame.Text}
		if err := req.Validate(); err != nil {
			return flow.Turn{}, err
		}
		return s.manager.SubmitText(ctx, id, req.Text)
	case FrameChoice:
		req := models.ChoiceRequest{Value: frame.Value}
		if err := req.Validate(); err != nil {
			return flow.Turn{}, err
		}
		return s.manager.SubmitChoice(ctx, id, *req.Value)
	case FrameQuit:
		return s.manager.Quit(ctx, id)
	case FrameRestart:
		return s.manager.Restart(ctx, id)
	default:
		return flow.Turn{}, errUnknownFrame
	}
}

func writeFrame(conn *websocket.Conn, v interface{}) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		slog.Warn("Server.writeFrame: write failed", "error", err)
		return false
	}
	return true
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
