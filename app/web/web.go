// Package web implements the web server for job orders: JSON API, list page and print view
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/jobord/app/joborder"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Server represents the web server
type Server struct {
	orders         Orders
	serials        Serials
	notifier       Notifier
	templates      map[string]*template.Template
	baseURL        string // base URL path for reverse proxy (e.g., /jobs), empty for root
	hostname       string // business name shown on pages and print header
	version        string
	passwordHash   string                      // bcrypt hash for the single user, empty disables auth
	csrfProtection *http.CrossOriginProtection // csrf protection for state changing endpoints
	loginLimiter   *limiter.Limiter
	metrics        *metrics
}

// Orders is the job order repository
type Orders interface {
	List(ctx context.Context) ([]joborder.Record, error)
	Search(ctx context.Context, query string) ([]joborder.Record, error)
	Create(ctx context.Context, rec joborder.Record) (joborder.Created, error)
	Get(ctx context.Context, id string) (joborder.Record, error)
	DeleteByID(ctx context.Context, id string) error
}

// Serials provides the serial number counter
type Serials interface {
	LastSerial(ctx context.Context) int
	NextSerial(ctx context.Context) int
}

// Notifier announces created job orders
type Notifier interface {
	OnCreated(ctx context.Context, rec joborder.Record) error
}

// Config holds server configuration
type Config struct {
	Orders       Orders
	Serials      Serials
	Notifier     Notifier // optional
	BaseURL      string   // base URL path for reverse proxy (e.g., /jobs), empty for root
	Hostname     string   // business name shown on pages
	Version      string
	PasswordHash string // bcrypt hash for login (empty to disable)
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Orders == nil || cfg.Serials == nil {
		return nil, fmt.Errorf("web server initialization failed: orders and serials are required")
	}

	lmt := tollbooth.NewLimiter(5.0/60.0, nil) // 5 attempts per minute
	lmt.SetBurst(5)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessage("Too many login attempts, try again later")

	s := &Server{
		orders:         cfg.Orders,
		serials:        cfg.Serials,
		notifier:       cfg.Notifier,
		baseURL:        cfg.BaseURL,
		hostname:       cfg.Hostname,
		version:        cfg.Version,
		passwordHash:   cfg.PasswordHash,
		csrfProtection: http.NewCrossOriginProtection(),
		loginLimiter:   lmt,
		metrics:        newMetrics(),
	}

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates
	return s, nil
}

// Run starts the web server and blocks until ctx is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	// handle base URL without trailing slash - redirect to with trailing slash
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("jobord", "umputun", s.version),
		rest.Ping,
		rest.SizeLimit(256*1024),
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// must be set before any routes are defined
	if s.passwordHash != "" {
		log.Printf("[INFO] authentication enabled")
		router.Use(s.authMiddleware)
		router.HandleFunc("GET /login", s.handleLoginForm)
		router.With(s.csrfProtection.Handler, tollbooth.HTTPMiddleware(s.loginLimiter)).HandleFunc("POST /login", s.handleLogin)
		router.HandleFunc("GET /logout", s.handleLogout)
	}

	router.HandleFunc("GET /{$}", s.handleIndex)
	router.HandleFunc("GET /job-orders/{id}/print", s.handlePrint)
	router.Handle("GET /metrics", s.metrics.handler())

	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.Use(s.csrfProtection.Handler)

		api.HandleFunc("GET /config", s.handleConfig)
		api.HandleFunc("GET /schema", s.handleSchema)
		api.HandleFunc("GET /job-orders", s.handleListOrders)
		api.HandleFunc("POST /job-orders", s.handleCreateOrder)
		api.HandleFunc("DELETE /job-orders", s.handleDeleteOrder)
		api.HandleFunc("GET /job-orders/{id}", s.handleGetOrder)
		api.HandleFunc("DELETE /job-orders/{id}", s.handleDeleteOrder)
	})

	return router
}

// render executes the named template into a buffer and writes it with the given status
func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		log.Printf("[WARN] failed to execute template %s: %v", page, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses all page templates, each page is standalone
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"humanTime": s.humanTime,
		"url":       s.url,
	}

	for _, page := range []string{"index", "print", "login"} {
		tmpl, err := template.New(page + ".html").Funcs(funcMap).ParseFS(templatesFS, "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		templates[page] = tmpl
	}
	return templates, nil
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02 Jan 2006, 15:04")
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// shortVersion extracts a short version string from full version
// for version like "v1.7.0-abc1234-20241225", returns "v1.7.0"
func shortVersion(fullVer string) string {
	if fullVer == "" || fullVer == "unknown" {
		return fullVer
	}
	if idx := strings.Index(fullVer, "-"); idx > 0 {
		return fullVer[:idx]
	}
	return fullVer
}
