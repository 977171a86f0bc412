// Package main runs a demo WebSocket client: it submits a small problem,
// then follows the run over /v1/runs/{id}/progress/ws until it finishes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

const problem = `{
  "problem": {
    "plan": {"jobs": [
      {"id": "j1", "places": [{"location": {"lat": 52.52, "lng": 13.40}, "duration": 120}], "demand": [1]},
      {"id": "j2", "places": [{"location": {"lat": 52.53, "lng": 13.41}, "duration": 120}], "demand": [1]},
      {"id": "j3", "places": [{"location": {"lat": 52.54, "lng": 13.38}, "duration": 120}], "demand": [1]}
    ]},
    "fleet": {"vehicles": [{
      "id": "v1", "profile": "car", "capacity": [10],
      "shifts": [{"start": {"time": "2024-09-05T08:00:00Z", "location": {"lat": 52.5, "lng": 13.4}},
                  "end": {"time": "2024-09-05T18:00:00Z", "location": {"lat": 52.5, "lng": 13.4}}}]
    }]}
  },
  "options": {"maxDurationMs": 5000}
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader([]byte(problem)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var solveResp struct {
		RunID  string `json:"runId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&solveResp); err != nil {
		log.Fatal(err)
	}
	if solveResp.RunID == "" {
		log.Fatal("no run id returned")
	}
	log.Printf("Run ID: %s (%s)", solveResp.RunID, solveResp.Status)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + solveResp.RunID + "/progress/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		b, _ := json.Marshal(m.Data)
		log.Printf("WS <- %s: %s", m.Type, b)
		if m.Type == "complete" {
			return
		}
	}
}
