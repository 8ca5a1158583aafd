package gateway

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dhowland/pfchat/internal/history"
	"github.com/dhowland/pfchat/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

//go:embed templates/*.html
var templatesFS embed.FS

// StartOpts holds configuration for the gateway server.
type StartOpts struct {
	DB        *gorm.DB
	Session   Session
	Hub       *Hub
	Port      int
	PruneCron string        // 5-field cron expression; empty disables pruning
	Retention time.Duration // history retention for the pruner
	Out       io.Writer
}

// Session is the part of the stream client the HTTP handlers need.
// *stream.Session satisfies it; tests inject a mock.
type Session interface {
	Status() stream.Status
	ChatID() string
	LastError() string
	Streaming() bool
	RateLimit() stream.RateLimitSnapshot
	SendMessage(chatID, text string) error
	SwitchChat(ctx context.Context, chatID string) error
}

// Start launches the gateway HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("gateway: db is required")
	}
	if opts.Session == nil {
		return fmt.Errorf("gateway: session is required")
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Port <= 0 {
		opts.Port = 8140
	}

	router, err := newRouter(opts)
	if err != nil {
		return err
	}

	if opts.PruneCron != "" {
		stopPruner, err := startPruner(opts.DB, opts.PruneCron, opts.Retention)
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		defer stopPruner()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Gateway running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with templates and routes registered.
func newRouter(opts StartOpts) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("gateway: parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts)
	return router, nil
}

// startPruner schedules history pruning on the given cron expression and
// returns a stop function.
func startPruner(db *gorm.DB, expr string, retention time.Duration) (func(), error) {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		removed, err := history.PruneOlderThan(db, retention, time.Now())
		if err != nil {
			log.Printf("gateway: prune: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("gateway: pruned %d cached messages", removed)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", expr, err)
	}
	c.Start()
	return func() { c.Stop() }, nil
}
