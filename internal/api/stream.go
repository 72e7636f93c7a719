package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is exchanged over the session websocket. Clients send
// commands; the server answers each with a "state" or "error" message.
type StreamMessage struct {
	Type     string              `json:"type"`
	Key      string              `json:"key,omitempty"`
	Value    models.Value        `json:"value,omitempty"`
	Values   models.FormState    `json:"values,omitempty"`
	Index    int                 `json:"index,omitempty"`
	SchemaID string              `json:"schema_id,omitempty"`
	State    *session.State      `json:"state,omitempty"`
	Result   *models.ApplyResult `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "get session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("session stream connected", "session_id", id)

	if err := sendStreamMessage(conn, StreamMessage{Type: "state", State: state}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if sendStreamMessage(conn, StreamMessage{Type: "error", Error: "invalid message format"}) != nil {
				break
			}
			continue
		}

		if err := sendStreamMessage(conn, s.applyStreamCommand(r, id, msg)); err != nil {
			break
		}
	}

	slog.Info("session stream disconnected", "session_id", id)
}

// applyStreamCommand runs one client command and builds the reply
func (s *Server) applyStreamCommand(r *http.Request, id string, msg StreamMessage) StreamMessage {
	ctx := r.Context()

	var (
		state *session.State
		err   error
	)
	switch msg.Type {
	case "set":
		state, err = s.deps.Sessions.SetValues(ctx, id, models.FormState{msg.Key: msg.Value})
	case "set_values":
		state, err = s.deps.Sessions.SetValues(ctx, id, msg.Values)
	case "clear":
		state, err = s.deps.Sessions.ClearValue(ctx, id, msg.Key)
	case "select":
		state, err = s.deps.Sessions.SelectStep(ctx, id, msg.Index)
	case "next":
		state, err = s.deps.Sessions.NextStep(ctx, id)
	case "reset":
		state, err = s.deps.Sessions.Reset(ctx, id)
	case "schema":
		state, err = s.deps.Sessions.SwitchSchema(ctx, id, msg.SchemaID)
	case "get":
		state, err = s.deps.Sessions.Get(ctx, id)
	case "apply":
		result, err := s.deps.Configurations.Apply(ctx, id)
		if err != nil {
			return StreamMessage{Type: "error", Error: err.Error()}
		}
		return StreamMessage{Type: "applied", Result: result}
	default:
		return StreamMessage{Type: "error", Error: "unknown message type: " + msg.Type}
	}

	if err != nil {
		slog.Debug("session stream command failed", "session_id", id, "type", msg.Type, "error", err)
		return StreamMessage{Type: "error", Error: err.Error()}
	}
	return StreamMessage{Type: "state", State: state}
}

func sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err)
		return err
	}
	return nil
}
