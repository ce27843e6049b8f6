// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/heading"
)

const (
	wsWriteWait  = 2 * time.Second
	wsSendBuffer = 8
)

// headingHub holds the latest heading and fans it out to websocket clients.
type headingHub struct {
	mu      sync.RWMutex
	latest  heading.Reading
	have    bool
	clients map[chan heading.Reading]struct{}
}

func newHeadingHub() *headingHub {
	return &headingHub{clients: make(map[chan heading.Reading]struct{})}
}

// Set stores r and offers it to every client. Slow clients drop readings
// rather than block the MQTT callback.
func (h *headingHub) Set(r heading.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = r
	h.have = true
	for ch := range h.clients {
		select {
		case ch <- r:
		default:
		}
	}
}

func (h *headingHub) Latest() (heading.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.have
}

func (h *headingHub) subscribe() chan heading.Reading {
	ch := make(chan heading.Reading, wsSendBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *headingHub) unsubscribe(ch chan heading.Reading) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The page is served from the same box; any origin on the LAN is fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLatest serves the latest heading as JSON.
func (h *headingHub) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, ok := h.Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(latest); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleStream upgrades to a websocket and pushes every heading update,
// starting with the latest one if there is one.
func (h *headingHub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Reader goroutine only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if latest, ok := h.Latest(); ok {
		if err := writeReading(conn, latest); err != nil {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case reading := <-ch:
			if err := writeReading(conn, reading); err != nil {
				log.Printf("web: websocket write: %v", err)
				return
			}
		}
	}
}

func writeReading(conn *websocket.Conn, r heading.Reading) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(r)
}

// routes returns the web server's handler.
func (h *headingHub) routes(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/heading", h.handleLatest)
	mux.HandleFunc("/ws/heading", h.handleStream)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// headingHandler decodes heading messages from MQTT into the hub.
func headingHandler(h *headingHub) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var r heading.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("web: MQTT payload unmarshal error: %v", err)
			return
		}
		h.Set(r)
	}
}

// RunWeb subscribes to the heading topic and serves it over HTTP and
// websocket until ctx is cancelled.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	hub := newHeadingHub()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribe(client, cfg.TopicHeading, headingHandler(hub)); err != nil {
		return err
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicHeading)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           hub.routes(cfg.WebStaticDir),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web: shutdown: %v", err)
		}
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
