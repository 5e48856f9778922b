// Package web serves the operator surface of the scanner: HTML pages for
// event selection and monitoring, a JSON API driving them, and the detection
// ingest that external radio units push sightings to.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"

	"attendance-scanner/internal/archive"
	"attendance-scanner/internal/config"
	"attendance-scanner/internal/models"
	"attendance-scanner/internal/scanner"
	"attendance-scanner/internal/session"
)

// EventAPI is the event-facing slice of the backend client.
type EventAPI interface {
	ActiveEvents(ctx context.Context) ([]models.Event, error)
	EventControl(ctx context.Context, eventID, action string) (*models.Event, error)
}

// PendingCounter reports how many records await delivery.
type PendingCounter interface {
	Count() (int, error)
}

// History is the read side of the sync archive. Optional.
type History interface {
	RecentBatches(ctx context.Context, limit int) ([]archive.BatchSummary, error)
	RecordCount(ctx context.Context, eventID string) (int, error)
}

type Server struct {
	cfg        *config.Config
	configPath string
	session    *session.EventSession
	backend    EventAPI
	source     *scanner.PushSource
	store      PendingCounter
	history    History // may be nil

	templatesDir string

	logger *slog.Logger
}

type Options struct {
	// File the config page writes to.
	ConfigPath string
	// Directory holding the HTML templates. Empty disables page rendering,
	// leaving only the JSON API (used by headless deployments and tests).
	TemplatesDir string
}

func NewServer(
	cfg *config.Config,
	sess *session.EventSession,
	backend EventAPI,
	source *scanner.PushSource,
	store PendingCounter,
	opts Options,
) *Server {
	return &Server{
		cfg:          cfg,
		configPath:   opts.ConfigPath,
		session:      sess,
		backend:      backend,
		source:       source,
		store:        store,
		templatesDir: opts.TemplatesDir,
		logger:       slog.With("component", "web"),
	}
}

// WithHistory attaches the sync archive for the history endpoint.
func (s *Server) WithHistory(h History) *Server {
	s.history = h
	return s
}

func securityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("X-XSS-Protection", "1; mode=block")

	// Dashboard state changes every few seconds, never cache it.
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Next()
}

// IPAccessControl restricts the control surface to the given CIDRs. Loopback
// is always allowed outside release mode.
func IPAccessControl(allowedCIDRs []string) gin.HandlerFunc {
	var parsedCIDRs []*net.IPNet

	if gin.Mode() != gin.ReleaseMode {
		allowedCIDRs = append(allowedCIDRs, "127.0.0.1/8", "::1/128")
	}

	for _, cidr := range allowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("invalid CIDR in allowed_networks", "cidr", cidr)
			continue
		}
		parsedCIDRs = append(parsedCIDRs, network)
	}

	return func(c *gin.Context) {
		clientIP := net.ParseIP(c.ClientIP())
		if clientIP == nil {
			slog.Warn("invalid client IP", "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		for _, cidr := range parsedCIDRs {
			if cidr.Contains(clientIP) {
				c.Next()
				return
			}
		}
		slog.Warn("IP not allowed", "ip", clientIP)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

func createRenderer(dir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()
	layout := filepath.Join(dir, "layout.html.tmpl")
	for _, page := range []string{"dashboard", "events", "config"} {
		r.AddFromFiles(page, layout, filepath.Join(dir, page+".html.tmpl"))
	}
	return r
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	if s.templatesDir != "" {
		r.HTMLRender = createRenderer(s.templatesDir)
	}

	if s.cfg.AllowedNetworks != "" {
		var allowedCIDRs []string
		for _, cidr := range strings.Split(s.cfg.AllowedNetworks, ",") {
			if cidr := strings.TrimSpace(cidr); cidr != "" {
				allowedCIDRs = append(allowedCIDRs, cidr)
			}
		}
		s.logger.Debug("enabling IP access control", "allowed_networks", allowedCIDRs)
		r.Use(IPAccessControl(allowedCIDRs))
	}
	r.Use(securityHeaders)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/", s.dashboardPage)
	r.GET("/events", s.eventsPage)
	r.GET("/config", s.configPage)
	r.GET("/qr.png", s.dashboardQR)

	api := r.Group("/api")
	{
		api.GET("/dashboard", s.apiDashboard)
		api.GET("/events", s.apiEvents)
		api.POST("/event/select", s.apiEventSelect)
		api.POST("/event/start", s.apiEventStart)
		api.POST("/event/stop", s.apiEventStop)
		api.GET("/config", s.apiConfigGet)
		api.POST("/config", s.apiConfigSet)
		api.GET("/history", s.apiHistory)
		api.POST("/detect", s.apiDetect)
	}

	return r
}

// urlFor builds an absolute URL pointing back at this server.
func urlFor(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, path)
}
