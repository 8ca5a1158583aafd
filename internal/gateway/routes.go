package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dhowland/pfchat/internal/history"
	"github.com/dhowland/pfchat/internal/stream"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// switchWait bounds how long a message POST waits for the session to finish
// attaching to a different chat.
const switchWait = 5 * time.Second

// registerRoutes sets up all gateway routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/", handleIndex())
	router.GET("/api/status", handleStatus(opts.Session))
	router.GET("/api/chats", handleChats(opts.DB))
	router.GET("/api/chats/:id/messages", handleTranscript(opts.DB))
	router.POST("/api/chats/:id/messages", handleSendMessage(opts.DB, opts.Session))
	router.GET("/api/events", handleSSE(opts.Hub))
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{
			"page": "chat",
		})
	}
}

func handleStatus(sess Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     sess.Status(),
			"chat_id":    sess.ChatID(),
			"streaming":  sess.Streaming(),
			"last_error": sess.LastError(),
			"limits":     sess.RateLimit(),
		})
	}
}

func handleChats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chats, err := history.Chats(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, chats)
	}
}

func handleTranscript(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := history.Transcript(db, c.Param("id"), 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

type sendRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleSendMessage transmits a user turn over the stream session, switching
// the session to the requested chat first when needed.
func handleSendMessage(db *gorm.DB, sess Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Param("id")
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}

		if sess.ChatID() != chatID {
			if err := sess.SwitchChat(c.Request.Context(), chatID); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			if !waitConnected(c, sess) {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error": fmt.Sprintf("session not connected: %s", sess.Status()),
				})
				return
			}
		}

		if err := sess.SendMessage(chatID, req.Text); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if db != nil {
			if err := history.RecordUserTurn(db, chatID, req.Text); err != nil {
				log.Printf("gateway: record user turn: %v", err)
			}
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
	}
}

// waitConnected polls until the session reports connected, the wait budget
// runs out, or the request is cancelled.
func waitConnected(c *gin.Context, sess Session) bool {
	deadline := time.Now().Add(switchWait)
	for time.Now().Before(deadline) {
		if sess.Status() == stream.StatusConnected {
			return true
		}
		select {
		case <-c.Request.Context().Done():
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
	return sess.Status() == stream.StatusConnected
}

// handleSSE streams session events to the browser. A heartbeat keeps
// intermediaries from timing out idle connections.
func handleSSE(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case evt := <-ch:
				writeSSE(c.Writer, evt.Event, evt.Data)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
