package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/internal/article"
	"github.com/SergeyParamoshkin/blog/internal/logging"
	"github.com/SergeyParamoshkin/blog/internal/telemetry"
	"github.com/SergeyParamoshkin/blog/internal/upload"
)

// StaticPath is where the upload directory is served when enabled.
const StaticPath = "/image"

type Deps struct {
	Logger      *zap.SugaredLogger
	Articles    *article.API
	Uploads     *upload.Handler
	CORSOrigins []string

	// optional
	Telemetry *telemetry.Telemetry
	Limiter   *RateLimiter
	StaticDir string

	// TrustProxy enables middleware.RealIP; without it the rate limiter and
	// the logs see the TCP peer address.
	TrustProxy bool
}

func NewRouter(d Deps) chi.Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.Middleware(d.Logger))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if d.Telemetry != nil {
		r.Use(d.Telemetry.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("pong"))
		if err != nil {
			logging.FromContext(r.Context()).Errorw(err.Error())
		}
	})

	var editGuards []func(http.Handler) http.Handler
	if d.Limiter != nil {
		editGuards = append(editGuards, d.Limiter.Middleware)
	}

	r.Mount("/api/article", d.Articles.Routes(editGuards...))
	r.Post("/api/upload", d.Uploads.Upload)

	if d.StaticDir != "" {
		FileServer(r, StaticPath, http.Dir(d.StaticDir))
	}

	return r
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit any URL parameters.")
	}

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(root))
		fs.ServeHTTP(w, r)
	})
}
