package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMiddlewareAndScrape(t *testing.T) {
	tel, err := New("blog-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := chi.NewRouter()
	r.Use(tel.Middleware)
	r.Get("/api/article/detail/{articleID}", func(w http.ResponseWriter, r *http.Request) {
		tel.Outcome(r.Context(), "detail", true)
		w.Write([]byte("{}"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/article/detail/1000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	scrape := httptest.NewRecorder()
	tel.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := scrape.Body.String()
	for _, want := range []string{"completed_count", "outcome_count"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output misses %q:\n%s", want, body)
		}
	}
}

func TestUnmatchedPathsShareOneLabel(t *testing.T) {
	tel, err := New("blog-test-unmatched")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := chi.NewRouter()
	r.Use(tel.Middleware)
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/wp-login.php", "/admin/scanner-x9"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}

	scrape := httptest.NewRecorder()
	tel.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()

	if !strings.Contains(body, `http_route="unmatched"`) {
		t.Errorf("scrape output misses the unmatched label:\n%s", body)
	}
	for _, path := range []string{"wp-login.php", "scanner-x9"} {
		if strings.Contains(body, path) {
			t.Errorf("raw path %q leaked into labels", path)
		}
	}
}
