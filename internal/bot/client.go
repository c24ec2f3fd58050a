package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/pkg/rps"
)

// WSEvent mirrors handler.WSEvent for client-side deserialization.
type WSEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// ErrSessionClosed is returned when the server reports the session finished.
var ErrSessionClosed = errors.New("session closed by server")

// Client is an HTTP+WebSocket client that plays one session against the
// server's Markov agent.
type Client struct {
	name      string
	baseURL   string
	token     string
	sessionID string
	wsConn    *websocket.Conn
	events    chan WSEvent
	httpC     *http.Client
	mu        sync.Mutex
	closedWS  bool
}

// NewClient creates a new bot client targeting the given server URL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 64),
		httpC:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the bot name.
func (c *Client) Name() string { return c.name }

// SessionID returns the session created by CreateSession.
func (c *Client) SessionID() string { return c.sessionID }

// CreateSession opens a session and keeps its token for later calls.
func (c *Client) CreateSession(ctx context.Context) error {
	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", map[string]string{"opponent": c.name}, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.sessionID = resp.Session.ID
	c.token = resp.Token
	log.Debug().Str("bot", c.name).Str("sessionId", c.sessionID).Msg("Bot session created")
	return nil
}

// PlayRound submits one move over HTTP.
func (c *Client) PlayRound(ctx context.Context, move rps.Move) (*model.Round, error) {
	var round model.Round
	body := map[string]string{"move": move.Letter()}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+c.sessionID+"/rounds", body, &round); err != nil {
		return nil, err
	}
	return &round, nil
}

// GetSession fetches the session as the server reports it.
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	var sess model.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+c.sessionID, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Finish ends the session and returns the persisted match.
func (c *Client) Finish(ctx context.Context) (*model.Match, error) {
	var match model.Match
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+c.sessionID+"/finish", nil, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS(ctx context.Context) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	resp.Body.Close()
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// PlayRoundWS submits one move over the WebSocket and waits for the
// matching round_played event.
func (c *Client) PlayRoundWS(ctx context.Context, move rps.Move) (*model.Round, error) {
	c.mu.Lock()
	err := c.wsConn.WriteJSON(map[string]string{"action": "play", "move": move.Letter()})
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ws write: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-c.events:
			if !ok {
				return nil, ErrSessionClosed
			}
			switch event.Type {
			case "round_played":
				if event.SessionID != c.sessionID {
					continue
				}
				var round model.Round
				if err := json.Unmarshal(event.Data, &round); err != nil {
					return nil, fmt.Errorf("decode round: %w", err)
				}
				return &round, nil
			case "error":
				var body struct {
					Error string `json:"error"`
				}
				json.Unmarshal(event.Data, &body)
				return nil, fmt.Errorf("server: %s", body.Error)
			}
		}
	}
}

// Events returns the channel of incoming WebSocket events.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closedWS
			c.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("bot", c.name).Msg("WS read error")
			}
			return
		}
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			continue
		}
		c.events <- event
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// do sends a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
