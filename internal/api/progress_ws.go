package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vrpsolve/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// ProgressWSHandler streams run progress over a WebSocket at
// /v1/runs/{id}/progress/ws. The server sends a snapshot first, then
// one message per event, and a final "complete" once the run reaches a
// terminal state.
func (s *Server) ProgressWSHandler(w http.ResponseWriter, r *http.Request, runID string) {
	_, tenant := s.withTenant(r)
	run, err := s.Store.GetRun(r.Context(), tenant, runID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)

	// Reader goroutine: consume pings and detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				_ = conn.WriteJSON(wsMessage{Type: "pong"})
			}
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: "snapshot", Data: runData(run)}); err != nil {
		return
	}
	if terminalStatus(run.Status) {
		_ = conn.WriteJSON(wsMessage{Type: "complete"})
		return
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data := evt.Data
			if data == nil {
				data = map[string]any{}
			}
			data["event"] = evt.Type
			if err := conn.WriteJSON(wsMessage{Type: "event", Data: data}); err != nil {
				return
			}
			if strings.HasPrefix(evt.Type, "run.") && terminalStatus(strings.TrimPrefix(evt.Type, "run.")) {
				_ = conn.WriteJSON(wsMessage{Type: "complete"})
				return
			}
		}
	}
}

func terminalStatus(status string) bool {
	return status == model.RunCompleted || status == model.RunFailed || status == model.RunCancelled
}

func runData(run model.Run) map[string]any {
	return map[string]any{
		"runId":       run.ID,
		"status":      run.Status,
		"generations": run.Generations,
		"bestCost":    run.BestCost,
		"unassigned":  run.Unassigned,
	}
}
