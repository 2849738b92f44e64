// Package httpapi is the master's HTTP front end: it serves the static
// submission form, accepts POSTed URL lists, and renders a results page
// echoing what was submitted. The crawl pipeline itself lives in
// internal/node/master; this package only adapts HTTP requests onto it.
//
// Grounded on original_source/sem02/src/server.h's CServer (GET /, POST
// /submit with a RegisterFormCallback, a static results template with a
// substitution placeholder) reimplemented over net/http.ServeMux, the
// router shape used throughout the retrieval pack's own HTTP services.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
)

// resultPlaceholder is substituted in results.html with the rendered
// list of submitted URLs.
const resultPlaceholder = "<!-- VYSLEDKY -->"

// Submitter is the master's form-submission collaborator.
type Submitter interface {
	Submit(ctx context.Context, rawURLs string) []string
}

// Config configures where the static templates live and where the
// server listens.
type Config struct {
	DataDir string
	Addr    string
}

// DefaultAddr is the default listen address.
const DefaultAddr = "localhost:8001"

func (c Config) dataDir() string {
	if c.DataDir == "" {
		return "./data"
	}
	return c.DataDir
}

func (c Config) addr() string {
	if c.Addr == "" {
		return DefaultAddr
	}
	return c.Addr
}

// Server is the master's HTTP front end.
type Server struct {
	cfg       Config
	submitter Submitter
	logger    *zap.SugaredLogger
	httpSrv   *http.Server
}

// New builds a Server bound to submitter, which implements the actual
// crawl-dispatch-and-collect pipeline.
func New(cfg Config, submitter Submitter, logger *zap.SugaredLogger) *Server {
	s := &Server{cfg: cfg, submitter: submitter, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/submit", s.handleSubmit)

	s.httpSrv = &http.Server{
		Addr:    cfg.addr(),
		Handler: recoverMiddleware(logger)(mux),
	}
	return s
}

// ListenAndServe blocks serving HTTP until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	body, err := os.ReadFile(s.cfg.dataDir() + "/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	raw := r.FormValue("vstup")
	if strings.TrimSpace(raw) == "" {
		http.Error(w, "missing or empty vstup field", http.StatusBadRequest)
		return
	}

	submitted := s.submitter.Submit(r.Context(), raw)

	template, err := os.ReadFile(s.cfg.dataDir() + "/results.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rendered := strings.Replace(string(template), resultPlaceholder, renderList(submitted), 1)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, rendered)
}

func renderList(urls []string) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, u := range urls {
		b.WriteString("<li>")
		b.WriteString(u)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// recoverMiddleware converts a panicking handler into a 500 response
// carrying the panic's message.
func recoverMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorw("http handler panicked", "error", rec, "path", r.URL.Path)
					http.Error(w, fmt.Sprintf("%v", rec), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
