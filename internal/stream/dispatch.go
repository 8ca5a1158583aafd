package stream

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// handler applies one inbound message to the session. It runs with the
// session lock held and appends any callback invocations to fire, which the
// caller runs after unlocking.
type handler func(s *Session, env *envelope, fire *[]func())

// dispatchTable maps each protocol tag to its state transition. Tags absent
// from the table are logged and ignored.
var dispatchTable = map[string]handler{
	msgConnected:         handleNoop,
	msgMessageReceived:   handleNoop,
	msgPong:              handleNoop,
	msgRateLimitInfo:     handleRateLimitInfo,
	msgToolExecuting:     handleToolExecuting,
	msgToolComplete:      handleToolComplete,
	msgToolError:         handleToolError,
	msgChunk:             handleChunk,
	msgTextChunk:         handleChunk,
	msgChartGenerated:    handleChartGenerated,
	msgComplete:          handleComplete,
	msgMessageComplete:   handleComplete,
	msgRateLimit:         handleRateLimitExceeded,
	msgRateLimitExceeded: handleRateLimitExceeded,
	msgError:             handleError,
	msgChatRenamed:       handleChatRenamed,
}

// handleFrame parses and dispatches one inbound frame. Malformed payloads
// and unknown tags are logged and dropped; they never interrupt the read loop.
func (s *Session) handleFrame(data []byte) {
	env, err := parseEnvelope(data)
	if err != nil {
		log.Printf("stream: dropping malformed frame: %v", err)
		return
	}
	h, ok := dispatchTable[env.Type]
	if !ok {
		log.Printf("stream: ignoring unknown message type %q", env.Type)
		return
	}

	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	h(s, env, &fire)
	s.mu.Unlock()
	run(fire)
}

// handleNoop covers tags that carry no state change: the post-open
// confirmation, the send acknowledgment, and heartbeat replies.
func handleNoop(s *Session, env *envelope, fire *[]func()) {}

func handleRateLimitInfo(s *Session, env *envelope, fire *[]func()) {
	if env.Limits == nil {
		return
	}
	s.limits = *env.Limits
	if s.cb.OnRateLimit != nil {
		snap := s.limits
		*fire = append(*fire, func() { s.cb.OnRateLimit(snap) })
	}
}

func handleToolExecuting(s *Session, env *envelope, fire *[]func()) {
	name := env.ToolName
	if name == "" {
		return
	}
	now := s.now()

	// A repeated invocation overwrites the existing entry, cancelling any
	// pending removal from an earlier completion.
	if timer, ok := s.toolTimers[name]; ok {
		timer.Stop()
		delete(s.toolTimers, name)
	}
	if idx := findTool(s.tools, name); idx >= 0 {
		s.tools[idx].State = ToolExecuting
		s.tools[idx].ID = env.ToolID
		s.tools[idx].UpdatedAt = now
	} else {
		s.tools = append(s.tools, ToolStatus{
			Name:      name,
			ID:        env.ToolID,
			State:     ToolExecuting,
			UpdatedAt: now,
		})
	}
	if !contains(s.toolsUsed, name) {
		s.toolsUsed = append(s.toolsUsed, name)
	}
	s.fireToolStatusLocked(fire)
}

func handleToolComplete(s *Session, env *envelope, fire *[]func()) {
	idx := findTool(s.tools, env.ToolName)
	if idx < 0 {
		return
	}
	s.tools[idx].State = ToolComplete
	s.tools[idx].UpdatedAt = s.now()

	// Keep the finished status visible briefly, then drop it from the list.
	name := env.ToolName
	s.toolTimers[name] = time.AfterFunc(s.cfg.ToolDisplayDelay, func() {
		s.removeCompletedTool(name)
	})
	s.fireToolStatusLocked(fire)
}

func handleToolError(s *Session, env *envelope, fire *[]func()) {
	idx := findTool(s.tools, env.ToolName)
	if idx < 0 {
		return
	}
	s.tools[idx].State = ToolError
	s.tools[idx].UpdatedAt = s.now()
	s.fireToolStatusLocked(fire)
}

func handleChunk(s *Session, env *envelope, fire *[]func()) {
	text := env.Content
	if text == "" {
		text = env.Message
	}
	s.buffer.WriteString(text)
	s.streaming = true
	if s.cb.OnChunk != nil {
		*fire = append(*fire, func() { s.cb.OnChunk(text) })
	}
}

func handleChartGenerated(s *Session, env *envelope, fire *[]func()) {
	s.chartRef = env.ChartRef
	if s.cb.OnChartGenerated != nil {
		ref := env.ChartRef
		*fire = append(*fire, func() { s.cb.OnChartGenerated(ref) })
	}
}

func handleComplete(s *Session, env *envelope, fire *[]func()) {
	turn := CompletedTurn{
		ChatID:     s.chatID,
		Content:    s.buffer.String(),
		TokenCount: env.TokenCount,
		ToolsUsed:  append([]string(nil), s.toolsUsed...),
		ChartRef:   s.chartRef,
	}
	if s.cb.OnTurnComplete != nil {
		*fire = append(*fire, func() { s.cb.OnTurnComplete(turn) })
	}
	s.resetTurnLocked(fire)
}

func handleRateLimitExceeded(s *Session, env *envelope, fire *[]func()) {
	if env.Limits != nil {
		s.limits = *env.Limits
	}
	msg := env.Message
	if msg == "" {
		msg = "Rate limit exceeded"
	}
	if env.ResetTime > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, humanReset(time.Unix(env.ResetTime, 0), s.now()))
	}
	s.lastErr = msg
	s.rateLimited = true
	s.streaming = false
	if s.cb.OnRateLimitExceeded != nil {
		snap := s.limits
		*fire = append(*fire, func() { s.cb.OnRateLimitExceeded(msg, snap) })
	}
}

func handleError(s *Session, env *envelope, fire *[]func()) {
	msg := env.Message
	if msg == "" {
		msg = env.Content
	}
	if msg == "" {
		msg = "server reported an error"
	}
	s.lastErr = msg
	s.streaming = false
	if s.cb.OnError != nil {
		*fire = append(*fire, func() { s.cb.OnError(errors.New(msg)) })
	}
}

func handleChatRenamed(s *Session, env *envelope, fire *[]func()) {
	// Session state is untouched; the rename targets the external chat list.
	if s.cb.OnChatRenamed != nil {
		id, title := env.ChatID, env.Title
		if id == "" {
			id = s.chatID
		}
		*fire = append(*fire, func() { s.cb.OnChatRenamed(id, title) })
	}
}

// removeCompletedTool is the display-delay timer callback. The entry is only
// removed if it is still in the complete state: a fresh tool_executing for
// the same name keeps it.
func (s *Session) removeCompletedTool(name string) {
	var fire []func()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.toolTimers, name)
	idx := findTool(s.tools, name)
	if idx < 0 || s.tools[idx].State != ToolComplete {
		s.mu.Unlock()
		return
	}
	s.tools = append(s.tools[:idx], s.tools[idx+1:]...)
	s.fireToolStatusLocked(&fire)
	s.mu.Unlock()
	run(fire)
}

func (s *Session) fireToolStatusLocked(fire *[]func()) {
	if s.cb.OnToolStatus == nil {
		return
	}
	snapshot := copyTools(s.tools)
	*fire = append(*fire, func() { s.cb.OnToolStatus(snapshot) })
}

func findTool(tools []ToolStatus, name string) int {
	for i := range tools {
		if tools[i].Name == name {
			return i
		}
	}
	return -1
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
