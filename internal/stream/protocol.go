package stream

import (
	"encoding/json"
	"errors"
	"time"
)

// Inbound message types. The server may emit either alias for chunks and
// completions depending on its version; both map to the same handler.
const (
	msgConnected         = "connected"
	msgRateLimitInfo     = "rate_limit_info"
	msgMessageReceived   = "message_received"
	msgToolExecuting     = "tool_executing"
	msgToolComplete      = "tool_complete"
	msgToolError         = "tool_error"
	msgChunk             = "chunk"
	msgTextChunk         = "text_chunk"
	msgChartGenerated    = "chart_generated"
	msgComplete          = "complete"
	msgMessageComplete   = "message_complete"
	msgRateLimit         = "rate_limit"
	msgRateLimitExceeded = "rate_limit_exceeded"
	msgError             = "error"
	msgPong              = "pong"
	msgChatRenamed       = "chat_renamed"
)

// Closure codes after which no reconnect is attempted. 1000 is normal
// closure; the 4xxx codes are application-defined auth/policy rejections.
const (
	CloseNormal          = 1000
	CloseAuthFailed      = 4001
	CloseForbidden       = 4003
	ClosePolicyViolation = 4008
)

// terminalCloseCodes lists closure codes that must never trigger reconnect.
var terminalCloseCodes = map[int]bool{
	CloseNormal:          true,
	CloseAuthFailed:      true,
	CloseForbidden:       true,
	ClosePolicyViolation: true,
}

// envelope is the tagged wire format for inbound messages. Only the fields
// relevant to the tag are populated by the server.
type envelope struct {
	Type string `json:"type"`

	// tool_executing / tool_complete / tool_error
	ToolName string `json:"tool_name"`
	ToolID   string `json:"tool_id"`

	// chunk / text_chunk / error / rate_limit_exceeded / message_received
	Content string `json:"content"`
	Message string `json:"message"`

	// chart_generated
	ChartRef string `json:"chart_ref"`

	// complete / message_complete
	TokenCount int `json:"token_count"`

	// rate_limit_info / rate_limit_exceeded
	Limits    *RateLimitSnapshot `json:"limits"`
	ResetTime int64              `json:"reset_time"` // unix seconds

	// chat_renamed
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

// outbound is a client-to-server message.
type outbound struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// parseEnvelope decodes one inbound frame. A decode failure or missing tag
// is reported to the caller, which logs and drops the frame.
func parseEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, errors.New("missing type tag")
	}
	return &env, nil
}

// ToolState is the lifecycle state of one tool invocation.
type ToolState string

const (
	ToolExecuting ToolState = "executing"
	ToolComplete  ToolState = "complete"
	ToolError     ToolState = "error"
)

// ToolStatus tracks one in-flight or recently finished tool invocation
// during an assistant turn.
type ToolStatus struct {
	Name      string
	ID        string
	State     ToolState
	UpdatedAt time.Time
}

// CompletedTurn is the finalized assistant reply handed to the turn-complete
// callback.
type CompletedTurn struct {
	ChatID     string
	Content    string
	TokenCount int
	ToolsUsed  []string
	ChartRef   string
}
