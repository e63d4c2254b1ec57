//
// BLOG
// ====
// Article map backend for the blog editor: list/detail of articles stored in
// one JSON file, password gated edit and delete, and image uploads.
//
// Also pass the -routes flag to print the route docs in Markdown,
// to run yourself do: `go run . -routes`
//
// Boot the server:
// ----------------
// $ BLOG_EDIT_PASSWORD=secret go run . -config config.yaml
//
// Client requests:
// ----------------
// $ curl http://localhost:1995/api/article/list
// {"status":true,"data":[{"id":1000,"title":"Hi","author":"tianyu","timestamp":1600000000000}],"message":"请求成功"}
//
// $ curl http://localhost:1995/api/article/detail/1000
// {"status":true,"data":{"id":1000,"title":"Hi","author":"tianyu","timestamp":1600000000000,"markdownString":"# Hi"},"message":"请求成功"}
//
// $ curl -X POST -H 'Content-Type: application/json' -d '{"password":"secret","title":"sup","author":"tianyu","markdownString":"..."}' http://localhost:1995/api/article/edit/submit
// {"status":true,"data":{"id":1001},"message":"请求成功"}
//
// $ curl -X DELETE -H 'Content-Type: application/json' -d '{"password":"secret","id":1001}' http://localhost:1995/api/article/delete
// {"status":true,"data":{},"message":"操作成功"}
//
// $ curl -F file=@cat.png http://localhost:1995/api/upload
// {"status":true,"data":{"src":"http://zhuangtianyu.com/image/1600000000123.png"},"message":"请求成功"}
//
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/docgen"
	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/internal/article"
	"github.com/SergeyParamoshkin/blog/internal/config"
	"github.com/SergeyParamoshkin/blog/internal/logging"
	"github.com/SergeyParamoshkin/blog/internal/server"
	"github.com/SergeyParamoshkin/blog/internal/telemetry"
	"github.com/SergeyParamoshkin/blog/internal/upload"
)

const ServiceName = "blog"

type App struct {
	sugarLogger *zap.SugaredLogger
	config      *config.Config
}

// nolint
func main() {
	var (
		routes     = flag.Bool("routes", getEnvBool(config.EnvPrefix+"ROUTES", false), "Generate router documentation")
		debug      = flag.Bool("debug", getEnvBool(config.EnvPrefix+"DEBUG", false), "development logging")
		configPath = flag.String("config", getEnv(config.EnvPrefix+"CONFIG", ""), "path to the YAML config file")
		addr       = flag.String("addr", "", "application address, overrides the config")
		diagAddr   = flag.String("diag_addr", "", "diag address, overrides the config")
	)

	flag.Parse()

	logger, err := logging.New(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // flushes buffer, if any
	sugar := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !*routes {
			sugar.Fatalw("failed to load config", "path", *configPath, "error", err)
		}
		// route docs do not need a usable config
		def := config.Default()
		cfg = &def
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *diagAddr != "" {
		cfg.DiagAddr = *diagAddr
	}

	a := App{
		sugarLogger: sugar,
		config:      cfg,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ServiceName)
	if err != nil {
		a.sugarLogger.Panicf("failed to initialize prometheus exporter %v", err)
	}

	r, err := a.router(ctx, tel)
	if err != nil {
		a.sugarLogger.Fatalw("failed to build router", "error", err)
	}

	// Passing -routes to the program will generate docs for the above
	// router definition.
	if *routes {
		// nolint
		fmt.Println(docgen.MarkdownRoutesDoc(r, docgen.MarkdownOpts{
			ProjectPath: "github.com/SergeyParamoshkin/blog",
			Intro:       "Routes of the blog article map backend.",
		}))

		return
	}

	diagRouter := chi.NewRouter()
	diagRouter.Get("/metrics", tel.Handler().ServeHTTP)

	a.serve(ctx, r, diagRouter)
}

func (a *App) router(ctx context.Context, tel *telemetry.Telemetry) (chi.Router, error) {
	cfg := a.config

	store := article.NewFileStore(cfg.ArticleMapPath, a.sugarLogger.With("component", "store"))
	if _, err := os.Stat(cfg.ArticleMapPath); errors.Is(err, os.ErrNotExist) {
		a.sugarLogger.Warnw("article map does not exist yet, reads will fail until it is created", "path", cfg.ArticleMapPath)
	}

	var (
		storage   upload.Storage
		staticDir string
	)
	switch cfg.Upload.Backend {
	case config.BackendS3:
		s3Storage, err := upload.NewS3Storage(ctx, cfg.Upload.S3)
		if err != nil {
			return nil, err
		}
		storage = s3Storage
	default:
		disk, err := upload.NewDiskStorage(cfg.Upload.Dir)
		if err != nil {
			return nil, err
		}
		storage = disk
		if cfg.Upload.ServeStatic {
			staticDir = disk.Dir()
		}
	}

	var limiter *server.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = server.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go limiter.Run(ctx)
	}

	return server.NewRouter(server.Deps{
		Logger:      a.sugarLogger,
		Articles:    article.NewAPI(store, cfg.EditPassword, article.WithRecorder(tel)),
		Uploads:     upload.NewHandler(storage, cfg.Upload.PublicBaseURL, upload.WithRecorder(tel)),
		CORSOrigins: cfg.CORS.AllowedOrigins,
		Telemetry:   tel,
		Limiter:     limiter,
		StaticDir:   staticDir,
		TrustProxy:  cfg.TrustProxy,
	}), nil
}

func (a *App) serve(ctx context.Context, r, diag http.Handler) {
	servers := []*http.Server{
		{
			Addr:         a.config.Addr,
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		{
			Addr:    a.config.DiagAddr,
			Handler: diag,
		},
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			a.sugarLogger.Infow("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.sugarLogger.Errorw(err.Error(), "addr", srv.Addr)
			}
		}()
	}

	<-ctx.Done()
	a.sugarLogger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.sugarLogger.Errorw("shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
}
