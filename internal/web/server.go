package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vbonduro/calscan/internal/domain"
	"github.com/vbonduro/calscan/internal/session"
)

// historyRepository is the subset of store.ScanStore the server requires.
type historyRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Scan, error)
	List(ctx context.Context, limit int) ([]*domain.Scan, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.Scan, error)
	Delete(ctx context.Context, id int64) error
}

type Server struct {
	sessions  *session.Registry
	history   historyRepository
	templates embed.FS
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	logger    *slog.Logger
}

// NewServer wires the routes. history may be nil, which disables the
// history pages.
func NewServer(sessions *session.Registry, history historyRepository, tmpl embed.FS, logger *slog.Logger) *Server {
	s := &Server{
		sessions:  sessions,
		history:   history,
		templates: tmpl,
		mux:       http.NewServeMux(),
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"kindLabel": kindLabel,
			"datetime":  func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
			"excerpt":   excerpt,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /image", s.handleSelectImage)
	s.mux.HandleFunc("GET /image", s.handleGetImage)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /recipe", s.handleRecipe)
	s.mux.HandleFunc("POST /alternative", s.handleAlternative)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /panel", s.handlePanel)
	if s.history != nil {
		s.mux.HandleFunc("GET /history", s.handleListHistory)
		s.mux.HandleFunc("GET /history/{id}", s.handleGetHistory)
		s.mux.HandleFunc("DELETE /history/{id}", s.handleDeleteHistory)
	}
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe has no write timeout short enough to cut off an AI call:
// requests carry no timeout beyond the transport default.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderPartial parses and executes a single named partial template.
// The file must contain exactly one {{define "name"}}...{{end}} block.
func (s *Server) renderPartial(w http.ResponseWriter, file string, data any) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, file)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// ParseFS registers both the file-basename template and any {{define}} blocks.
	// Find the {{define}} template: it is the one whose name is neither "" nor
	// the file basename.
	basename := file
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		basename = file[idx+1:]
	}
	for _, t := range tmpl.Templates() {
		if n := t.Name(); n != "" && n != basename {
			return t.Execute(w, data)
		}
	}
	return tmpl.ExecuteTemplate(w, basename, data)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// kindLabel is the short Polish name of a result kind for the history list.
func kindLabel(k domain.ResultKind) string {
	switch k {
	case domain.KindAnalysis:
		return "Analiza"
	case domain.KindRecipe:
		return "Przepis"
	case domain.KindAlternative:
		return "Alternatywa"
	default:
		return string(k)
	}
}

// excerpt returns the first n runes of s, with an ellipsis when cut.
func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
