// Package main runs a demo WebSocket client for solve events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type point struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	scenario := "demo"
	if len(os.Args) > 1 {
		scenario = os.Args[1]
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the solve event is not missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/scenarios/" + scenario + "/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	events := make(chan wsMessage)
	go func() {
		defer close(events)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Debug().Err(err).Msg("read")
				return
			}
			ev := log.Info().Str("type", m.Type)
			if len(m.Data) > 0 {
				ev = ev.RawJSON("data", m.Data)
			}
			ev.Msg("WS <-")
			events <- m
		}
	}()

	demand := make([]point, 10)
	facilities := make([]point, 10)
	for i := range demand {
		demand[i] = point{ID: fmt.Sprintf("P%d", i), Lon: 13.35 + 0.02*float64(i), Lat: 52.51 + 0.005*float64(i)}
		facilities[i] = point{ID: fmt.Sprintf("F%d", i), Lon: 13.4 + 0.01*float64(i), Lat: 52.5 + 0.005*float64(i)}
	}
	body, _ := json.Marshal(map[string]any{
		"scenario":   scenario,
		"gapLimit":   0.05,
		"demand":     demand,
		"facilities": facilities,
	})
	resp, err := http.Post(base+"/v1/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal().Err(err).Msg("solve")
	}
	defer func() { _ = resp.Body.Close() }()
	var sol struct {
		RunID    string `json:"runId"`
		Solution struct {
			Status         string   `json:"status"`
			OpenFacilities []string `json:"openFacilities"`
		} `json:"solution"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sol); err != nil {
		log.Fatal().Err(err).Msg("decode")
	}
	log.Info().Int("code", resp.StatusCode).Str("run", sol.RunID).Str("status", sol.Solution.Status).
		Strs("open", sol.Solution.OpenFacilities).Msg("solve returned")

	// Wait briefly for the solve.completed event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-events:
			if !ok || m.Type == "solve.completed" {
				return
			}
		case <-timeout:
			log.Warn().Msg("no solve event received")
			return
		}
	}
}
