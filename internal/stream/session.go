// Package stream implements the streaming chat session client: one WebSocket
// per active chat, a tagged-message dispatch table, streamed-text
// accumulation, tool-status tracking, and reconnect with exponential backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Status is the session's connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusFailed is terminal: reconnect attempts are exhausted and only an
	// explicit Reconnect call leaves this state.
	StatusFailed Status = "failed"
)

// Sentinel errors returned by session operations.
var (
	ErrClosed       = errors.New("stream: session closed")
	ErrNotConnected = errors.New("stream: not connected")
	ErrWrongChat    = errors.New("stream: message targets a different chat")
)

// Config tunes connection behavior. Zero values take the defaults below.
type Config struct {
	WSURL                string        // WebSocket root, e.g. wss://api.example.com/ws
	HeartbeatInterval    time.Duration // default 30s
	ReconnectBase        time.Duration // default 3s
	ReconnectMax         time.Duration // default 30s
	MaxReconnectAttempts int           // default 5
	ToolDisplayDelay     time.Duration // default 2s
}

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectBase     = 3 * time.Second
	defaultReconnectMax      = 30 * time.Second
	defaultMaxReconnects     = 5
	defaultToolDisplayDelay  = 2 * time.Second
)

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.ToolDisplayDelay <= 0 {
		c.ToolDisplayDelay = defaultToolDisplayDelay
	}
}

// Callbacks are invoked by the session as protocol events arrive. All are
// optional. They are called outside the session lock, in arrival order.
type Callbacks struct {
	OnStatusChange      func(Status)
	OnChunk             func(text string)
	OnToolStatus        func([]ToolStatus)
	OnTurnComplete      func(CompletedTurn)
	OnChartGenerated    func(chartRef string)
	OnRateLimit         func(RateLimitSnapshot)
	OnRateLimitExceeded func(message string, limits RateLimitSnapshot)
	OnChatRenamed       func(chatID, title string)
	OnError             func(error)
}

// Session owns one socket connection for a single chat. All state mutation
// happens on delivery of a socket event or a timer callback; inbound frames
// are handled strictly in arrival order by a single read loop.
type Session struct {
	cfg    Config
	tokens oauth2.TokenSource
	dialer Dialer
	cb     Callbacks
	now    func() time.Time

	mu             sync.Mutex
	chatID         string
	status         Status
	conn           Conn
	ctx            context.Context
	gen            int // invalidates stale read loops and reconnect timers
	attempts       int
	buffer         strings.Builder
	streaming      bool
	chartRef       string
	toolsUsed      []string
	tools          []ToolStatus
	toolTimers     map[string]*time.Timer
	reconnectTimer *time.Timer
	hbStop         chan struct{}
	lastErr        string
	rateLimited    bool
	limits         RateLimitSnapshot
	closed         bool
}

// SessionOpts holds parameters for creating a Session.
type SessionOpts struct {
	ChatID    string // may be empty; the session stays disconnected until set
	Config    Config
	Tokens    oauth2.TokenSource
	Dialer    Dialer // optional; defaults to the gorilla/websocket dialer
	Callbacks Callbacks
}

// NewSession creates a Session.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Config.WSURL == "" {
		return nil, fmt.Errorf("stream: ws url is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("stream: token source is required")
	}
	cfg := opts.Config
	cfg.applyDefaults()
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewDialer()
	}
	return &Session{
		cfg:        cfg,
		tokens:     opts.Tokens,
		dialer:     dialer,
		cb:         opts.Callbacks,
		now:        time.Now,
		chatID:     opts.ChatID,
		status:     StatusDisconnected,
		toolTimers: make(map[string]*time.Timer),
	}, nil
}

// Connect starts a connection attempt if both a credential and a chat ID are
// available. Absence of either is not an error: the session simply stays
// disconnected. Connect is non-blocking; progress is observed via
// OnStatusChange.
func (s *Session) Connect(ctx context.Context) error {
	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil || s.status == StatusConnecting {
		s.mu.Unlock()
		return nil
	}
	if s.chatID == "" {
		s.mu.Unlock()
		return nil
	}
	tok, err := s.tokens.Token()
	if err != nil || tok.AccessToken == "" {
		s.mu.Unlock()
		log.Printf("stream: no credential available, staying disconnected")
		return nil
	}
	s.ctx = ctx
	gen := s.gen
	target := s.connectURL(tok.AccessToken)
	s.setStatusLocked(StatusConnecting, &fire)
	s.mu.Unlock()
	run(fire)

	go s.dialAndRun(ctx, gen, target)
	return nil
}

// Reconnect resets the attempt counter and retries the connection. This is
// the manual escape hatch from the terminal failed state.
func (s *Session) Reconnect() error {
	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.attempts = 0
	if s.conn == nil {
		// Invalidate any pending backoff timer or in-flight dial so the
		// manual attempt is the only one that can produce a socket.
		s.gen++
		if s.reconnectTimer != nil {
			s.reconnectTimer.Stop()
			s.reconnectTimer = nil
		}
		s.setStatusLocked(StatusDisconnected, &fire)
	}
	ctx := s.ctx
	s.mu.Unlock()
	run(fire)
	if ctx == nil {
		ctx = context.Background()
	}
	return s.Connect(ctx)
}

// SwitchChat closes the current socket with a normal-closure code, resets all
// session-local state, and connects to the new chat. Reconnect logic never
// targets the old chat afterwards.
func (s *Session) SwitchChat(ctx context.Context, chatID string) error {
	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if chatID == s.chatID && s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.stopTimersLocked()
	conn := s.conn
	s.conn = nil
	s.resetStateLocked(&fire)
	s.chatID = chatID
	s.attempts = 0
	s.setStatusLocked(StatusDisconnected, &fire)
	s.mu.Unlock()
	if conn != nil {
		conn.Close(CloseNormal, "switching chats")
	}
	run(fire)
	return s.Connect(ctx)
}

// SendMessage transmits a user turn. It fails without side effects unless
// the socket is open and chatID matches the session's current target.
// Delivery confirmation arrives asynchronously via message_received.
func (s *Session) SendMessage(chatID, text string) error {
	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn == nil || s.status != StatusConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if chatID != s.chatID {
		s.mu.Unlock()
		return ErrWrongChat
	}
	conn := s.conn
	s.resetTurnLocked(&fire)
	s.lastErr = ""
	s.rateLimited = false
	s.streaming = true
	s.mu.Unlock()
	run(fire)

	if err := conn.WriteJSON(outbound{Type: "message", Message: text}); err != nil {
		return fmt.Errorf("stream: send message: %w", err)
	}
	return nil
}

// Close tears down the session: cancels pending reconnect, heartbeat, and
// tool-removal timers, closes the socket with a normal-closure code, and
// resets all session-local state. The session cannot be reused afterwards.
func (s *Session) Close() error {
	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	s.stopTimersLocked()
	conn := s.conn
	s.conn = nil
	s.resetStateLocked(&fire)
	s.setStatusLocked(StatusDisconnected, &fire)
	s.mu.Unlock()
	if conn != nil {
		conn.Close(CloseNormal, "client closing")
	}
	run(fire)
	return nil
}

// --- accessors ---

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ChatID returns the session's current chat target.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// LastError returns the most recent user-visible error message, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Streaming reports whether an assistant turn is currently in progress.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// RateLimited reports whether the last turn was rejected for rate limiting.
func (s *Session) RateLimited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimited
}

// RateLimit returns the most recent rate-limit snapshot from the server.
func (s *Session) RateLimit() RateLimitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// ToolStatuses returns a copy of the active tool-status list.
func (s *Session) ToolStatuses() []ToolStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTools(s.tools)
}

// --- connection lifecycle ---

// connectURL builds the per-chat socket URI with the bearer credential.
func (s *Session) connectURL(token string) string {
	return fmt.Sprintf("%s/chat/%s?token=%s",
		strings.TrimRight(s.cfg.WSURL, "/"), url.PathEscape(s.chatID), url.QueryEscape(token))
}

// dialAndRun performs one dial attempt and, on success, starts the heartbeat
// and read loops for the resulting connection.
func (s *Session) dialAndRun(ctx context.Context, gen int, target string) {
	conn, err := s.dialer.Dial(ctx, target)

	var fire []func()
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			conn.Close(CloseNormal, "superseded")
		}
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			s.setStatusLocked(StatusDisconnected, &fire)
			s.mu.Unlock()
			run(fire)
			return
		}
		log.Printf("stream: chat %s dial: %v", s.chatID, err)
		s.scheduleReconnectLocked(&fire)
		s.mu.Unlock()
		run(fire)
		return
	}

	s.conn = conn
	s.attempts = 0
	hbStop := make(chan struct{})
	s.hbStop = hbStop
	s.setStatusLocked(StatusConnected, &fire)
	s.mu.Unlock()
	run(fire)

	go s.heartbeatLoop(conn, hbStop)
	s.readLoop(gen, conn)
}

// readLoop delivers inbound frames strictly in arrival order until the
// connection drops.
func (s *Session) readLoop(gen int, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}
		s.handleFrame(data)
	}
}

// heartbeatLoop sends a keep-alive ping at a fixed interval while the
// connection remains open.
func (s *Session) heartbeatLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(outbound{Type: "ping"}); err != nil {
				log.Printf("stream: heartbeat: %v", err)
				return
			}
		}
	}
}

// handleDisconnect classifies a read failure and either stops (terminal
// closure) or schedules a reconnect with exponential backoff.
func (s *Session) handleDisconnect(gen int, err error) {
	var fire []func()
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopHeartbeatLocked()
	s.conn = nil

	if isTerminalClose(err) {
		code, _ := closeCode(err)
		if code != CloseNormal {
			s.lastErr = fmt.Sprintf("connection rejected by server (code %d)", code)
			if s.cb.OnError != nil {
				msg := s.lastErr
				fire = append(fire, func() { s.cb.OnError(errors.New(msg)) })
			}
		}
		s.setStatusLocked(StatusDisconnected, &fire)
		s.mu.Unlock()
		run(fire)
		return
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		s.setStatusLocked(StatusDisconnected, &fire)
		s.mu.Unlock()
		run(fire)
		return
	}

	log.Printf("stream: chat %s connection lost: %v", s.chatID, err)
	s.scheduleReconnectLocked(&fire)
	s.mu.Unlock()
	run(fire)
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// transitions to the terminal failed state when attempts are exhausted.
func (s *Session) scheduleReconnectLocked(fire *[]func()) {
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.lastErr = fmt.Sprintf("connection lost; gave up after %d reconnect attempts", s.attempts)
		s.setStatusLocked(StatusFailed, fire)
		if s.cb.OnError != nil {
			msg := s.lastErr
			*fire = append(*fire, func() { s.cb.OnError(errors.New(msg)) })
		}
		return
	}
	s.attempts++
	delay := s.reconnectDelay(s.attempts)
	s.setStatusLocked(StatusReconnecting, fire)
	log.Printf("stream: chat %s reconnecting in %v (attempt %d/%d)",
		s.chatID, delay, s.attempts, s.cfg.MaxReconnectAttempts)

	gen := s.gen
	s.reconnectTimer = time.AfterFunc(delay, func() { s.attemptReconnect(gen) })
}

// reconnectDelay computes the backoff delay for the nth attempt:
// base × 2^(n−1), capped at the configured maximum.
func (s *Session) reconnectDelay(attempt int) time.Duration {
	delay := s.cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.ReconnectMax {
			return s.cfg.ReconnectMax
		}
	}
	if delay > s.cfg.ReconnectMax {
		return s.cfg.ReconnectMax
	}
	return delay
}

// attemptReconnect is the backoff timer callback. It re-checks the entry
// condition before dialing: the credential may have been revoked meanwhile.
func (s *Session) attemptReconnect(gen int) {
	var fire []func()
	s.mu.Lock()
	if s.closed || gen != s.gen || s.conn != nil {
		s.mu.Unlock()
		return
	}
	tok, err := s.tokens.Token()
	if err != nil || tok.AccessToken == "" {
		log.Printf("stream: chat %s credential unavailable, abandoning reconnect", s.chatID)
		s.setStatusLocked(StatusDisconnected, &fire)
		s.mu.Unlock()
		run(fire)
		return
	}
	ctx := s.ctx
	target := s.connectURL(tok.AccessToken)
	s.setStatusLocked(StatusConnecting, &fire)
	s.mu.Unlock()
	run(fire)

	if ctx == nil {
		ctx = context.Background()
	}
	s.dialAndRun(ctx, gen, target)
}

// --- state helpers (all require s.mu held) ---

func (s *Session) setStatusLocked(st Status, fire *[]func()) {
	if st == s.status {
		return
	}
	s.status = st
	if s.cb.OnStatusChange != nil {
		*fire = append(*fire, func() { s.cb.OnStatusChange(st) })
	}
}

// resetTurnLocked clears the in-progress turn: streaming buffer, tool list
// (cancelling pending removal timers), chart reference, and tools-used list.
func (s *Session) resetTurnLocked(fire *[]func()) {
	s.buffer.Reset()
	s.chartRef = ""
	s.toolsUsed = nil
	s.streaming = false
	for name, timer := range s.toolTimers {
		timer.Stop()
		delete(s.toolTimers, name)
	}
	if len(s.tools) > 0 {
		s.tools = nil
		if s.cb.OnToolStatus != nil {
			*fire = append(*fire, func() { s.cb.OnToolStatus(nil) })
		}
	}
}

// resetStateLocked returns all session-local state to empty/default.
func (s *Session) resetStateLocked(fire *[]func()) {
	s.resetTurnLocked(fire)
	s.lastErr = ""
	s.rateLimited = false
	s.limits = RateLimitSnapshot{}
}

func (s *Session) stopHeartbeatLocked() {
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
}

func (s *Session) stopTimersLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.stopHeartbeatLocked()
}

func copyTools(tools []ToolStatus) []ToolStatus {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ToolStatus, len(tools))
	copy(out, tools)
	return out
}

func run(fire []func()) {
	for _, f := range fire {
		f()
	}
}
