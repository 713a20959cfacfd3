package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/gradebox/internal/grader"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a message from the client. Either ExerciseID or Content
// selects what to grade.
type wsIncoming struct {
	Type       string         `json:"type"`
	ExerciseID string         `json:"exerciseId,omitempty"`
	Content    grader.Content `json:"content"`
	Code       string         `json:"code"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	Report  *gradeResponse `json:"report,omitempty"`
}

// handleGradeWebSocket grades submissions sent over the socket, streaming
// debug lines as "debug" messages and finishing each with a "report".
// Closing the socket cancels the grading in progress.
func (s *Server) handleGradeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	_, ctx, release := s.runs.Start(context.Background())
	defer release()

	incoming := make(chan wsIncoming)
	go func() {
		defer release()
		defer close(incoming)
		for {
			var msg wsIncoming
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debug("websocket read error", "error", err)
				}
				return
			}
			select {
			case incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Mutex for thread-safe writes to the WebSocket connection
	var wsMu sync.Mutex
	send := func(v wsOutgoing) {
		wsMu.Lock()
		defer wsMu.Unlock()
		wsWriteJSON(s.log, conn, v)
	}

	for msg := range incoming {
		if msg.Type != "grade" {
			send(wsOutgoing{Type: "error", Content: "invalid message"})
			continue
		}
		s.processGradeMessage(ctx, msg, send)
	}
}

func (s *Server) processGradeMessage(ctx context.Context, msg wsIncoming, send func(wsOutgoing)) {
	content := msg.Content
	if msg.ExerciseID != "" {
		ex, err := s.deps.Catalog.Get(msg.ExerciseID)
		if err != nil {
			send(wsOutgoing{Type: "error", Content: err.Error()})
			return
		}
		content = ex.Content()
	}

	debug := func(line string) {
		send(wsOutgoing{Type: "debug", Content: line})
	}

	resp, err := s.grade(ctx, msg.ExerciseID, content, msg.Code, debug)
	if err != nil {
		if ctx.Err() != nil {
			send(wsOutgoing{Type: "error", Content: "interrupted"})
		} else {
			send(wsOutgoing{Type: "error", Content: err.Error()})
		}
		return
	}
	send(wsOutgoing{Type: "report", Report: resp})
}

func wsWriteJSON(log *slog.Logger, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("websocket marshal error", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("websocket write error", "error", err)
	}
}
