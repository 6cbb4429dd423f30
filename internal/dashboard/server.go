// Package dashboard serves the operator HTTP API: chat-line sessions,
// campaign submission, reports and a live campaign feed.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/channel"
	"github.com/zulandar/switchboard/internal/dispatch"
	"github.com/zulandar/switchboard/internal/report"
	"github.com/zulandar/switchboard/internal/session"
)

// DefaultPort is the dashboard listen port when none is configured.
const DefaultPort = 8090

// Sessions is the chat-line session surface the API exposes.
type Sessions interface {
	List() []session.Session
	Initiate(ctx context.Context, name string, method session.Method, phone string) (session.Session, error)
	AcknowledgeManualConfirmation(name string) (session.Session, error)
	Logout(ctx context.Context, name string) error
}

// Dispatcher submits campaigns.
type Dispatcher interface {
	Dispatch(ctx context.Context, draft channel.Draft) (*dispatch.Result, error)
}

// Reports lists campaigns and builds reports.
type Reports interface {
	ListCampaigns(ctx context.Context, ch campaign.Channel) ([]campaign.Campaign, error)
	GetReport(ctx context.Context, ch campaign.Channel, id string) (*report.Report, error)
	Download(ctx context.Context, ch campaign.Channel, id string) ([]byte, error)
}

// Templates registers and lists chat templates.
type Templates interface {
	Create(ctx context.Context, t channel.Template) (*channel.TemplateStatus, error)
	List(ctx context.Context) ([]channel.TemplateStatus, error)
}

// Feed is a source of campaign poll updates.
type Feed interface {
	Subscribe() (<-chan report.Update, func())
}

// Deps are the services behind the API. Templates and Feed are optional.
type Deps struct {
	Sessions   Sessions
	Dispatcher Dispatcher
	Reports    Reports
	Templates  Templates
	Feed       Feed
	Logger     zerolog.Logger

	// Heartbeat is the SSE keep-alive interval; defaults to 15s.
	Heartbeat time.Duration
}

func (d Deps) validate() error {
	var errs []error
	if d.Sessions == nil {
		errs = append(errs, fmt.Errorf("sessions are required"))
	}
	if d.Dispatcher == nil {
		errs = append(errs, fmt.Errorf("dispatcher is required"))
	}
	if d.Reports == nil {
		errs = append(errs, fmt.Errorf("reports are required"))
	}
	return errors.Join(errs...)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Deps
	Port int
	Out  io.Writer
}

// NewRouter builds the API router.
func NewRouter(d Deps) (*gin.Engine, error) {
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Logger))
	registerRoutes(router, &handlers{deps: d, log: d.Logger.With().Str("component", "dashboard").Logger()})
	return router, nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts.Deps)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// requestLogger logs each request at debug level.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
