// Package proctor streams passively collected behavioral signals to the
// exam monitor endpoint. Reporting is strictly best-effort: a missing or
// broken monitor connection never blocks or fails the attempt.
package proctor

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Action tags client-to-monitor frames.
type Action string

const (
	ActionCheat Action = "cheat"
	ActionPing  Action = "ping"
)

// cheatFrame reports one suspicious event. Payload is a JSON document
// describing the event.
type cheatFrame struct {
	Action  Action `json:"action"`
	Payload string `json:"payload"`
}

type pingFrame struct {
	Action Action `json:"action"`
}

// tabSwitchPayload is the cheat payload for a visibility-loss event.
type tabSwitchPayload struct {
	Type     string    `json:"type"`
	ModuleID string    `json:"module_id"`
	Count    int       `json:"count"`
	At       time.Time `json:"at"`
}

// Reporter holds one monitor connection. A nil *Reporter is valid and all
// its methods are no-ops, so callers need no branching when proctoring is
// not configured.
type Reporter struct {
	moduleID string
	log      zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	dead bool
}

// Dial connects to the monitor endpoint. The bearer token travels as a
// query parameter because websocket upgrades cannot carry custom headers
// from every client.
func Dial(ctx context.Context, rawURL, token, moduleID string, log zerolog.Logger) (*Reporter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	return &Reporter{
		moduleID: moduleID,
		log:      log.With().Str("component", "proctor").Str("module_id", moduleID).Logger(),
		conn:     conn,
	}, nil
}

// write sends one frame. On the first failure the connection is marked dead
// and further writes become no-ops.
func (r *Reporter) write(frame interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead || r.conn == nil {
		return
	}
	if err := r.conn.WriteJSON(frame); err != nil {
		r.dead = true
		r.log.Warn().Err(err).Msg("Monitor connection lost, reporting disabled")
	}
}

// ReportTabSwitch forwards a visibility-loss event with the running count.
func (r *Reporter) ReportTabSwitch(count int) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(tabSwitchPayload{
		Type:     "tab_switch",
		ModuleID: r.moduleID,
		Count:    count,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return
	}
	r.write(cheatFrame{Action: ActionCheat, Payload: string(payload)})
}

// Run sends periodic heartbeats until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, every time.Duration) {
	if r == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.write(pingFrame{Action: ActionPing})
		}
	}
}

// Close shuts the monitor connection down.
func (r *Reporter) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
