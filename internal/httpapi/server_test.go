package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type stubSubmitter struct {
	got []string
}

func (s *stubSubmitter) Submit(ctx context.Context, rawURLs string) []string {
	urls := strings.Fields(strings.ReplaceAll(rawURLs, "\n", " "))
	s.got = urls
	return urls
}

type panicSubmitter struct{}

func (panicSubmitter) Submit(ctx context.Context, rawURLs string) []string {
	panic("boom")
}

func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>form</html>"), 0o644); err != nil {
		t.Fatalf("WriteFile(index.html) error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "results.html"), []byte("<html><!-- VYSLEDKY --></html>"), 0o644); err != nil {
		t.Fatalf("WriteFile(results.html) error = %v", err)
	}
	return dir
}

func TestHandleIndexServesStaticFile(t *testing.T) {
	dir := writeDataDir(t)
	srv := New(Config{DataDir: dir}, &stubSubmitter{}, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "form") {
		t.Errorf("body = %q, want it to contain the index contents", rec.Body.String())
	}
}

func TestHandleIndexUnknownPathIs404(t *testing.T) {
	dir := writeDataDir(t)
	srv := New(Config{DataDir: dir}, &stubSubmitter{}, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSubmitMissingFieldIs400(t *testing.T) {
	dir := writeDataDir(t)
	srv := New(Config{DataDir: dir}, &stubSubmitter{}, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSubmitRendersEchoedURLs(t *testing.T) {
	dir := writeDataDir(t)
	sub := &stubSubmitter{}
	srv := New(Config{DataDir: dir}, sub, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("vstup=http%3A%2F%2Fex.com%2Fa"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<li>http://ex.com/a</li>") {
		t.Errorf("body = %q, want it to echo the submitted URL", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "VYSLEDKY") {
		t.Errorf("body = %q, want no literal placeholder token remaining", rec.Body.String())
	}
}

func TestHandlerPanicIs500WithMessage(t *testing.T) {
	dir := writeDataDir(t)
	srv := New(Config{DataDir: dir}, panicSubmitter{}, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("vstup=http%3A%2F%2Fex.com%2Fa"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("body = %q, want it to contain the panic message", rec.Body.String())
	}
}
