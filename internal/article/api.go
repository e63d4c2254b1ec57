package article

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/SergeyParamoshkin/blog/internal/articlerequest"
	"github.com/SergeyParamoshkin/blog/internal/articleresponse"
	"github.com/SergeyParamoshkin/blog/internal/logging"
	"github.com/SergeyParamoshkin/blog/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Recorder observes the outcome of every handled operation.
type Recorder interface {
	Outcome(ctx context.Context, op string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Outcome(context.Context, string, bool) {}

// API serves the article endpoints on top of a Store.
type API struct {
	store    Store
	password string
	now      func() time.Time
	recorder Recorder
}

type Option func(*API)

func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

func WithRecorder(rec Recorder) Option {
	return func(a *API) {
		if rec != nil {
			a.recorder = rec
		}
	}
}

// NewAPI wires the handlers to store. password gates every mutating endpoint.
func NewAPI(store Store, password string, opts ...Option) *API {
	a := &API{
		store:    store,
		password: password,
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Routes mounts under /api/article. editGuards wrap the password protected routes.
func (a *API) Routes(editGuards ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/list", a.ListArticles)                                // GET /api/article/list
	r.With(a.ArticleCtx).Get("/detail/{articleID}", a.GetArticle) // GET /api/article/detail/1000

	r.Group(func(r chi.Router) {
		r.Use(editGuards...)
		r.Post("/edit/permission", a.CheckPermission) // POST /api/article/edit/permission
		r.Post("/edit/submit", a.SubmitArticle)       // POST /api/article/edit/submit
		r.Delete("/delete", a.DeleteArticle)          // DELETE /api/article/delete
	})

	return r
}

func (a *API) ListArticles(w http.ResponseWriter, r *http.Request) {
	m, err := a.store.FetchArticleMap(r.Context())
	if err != nil {
		a.respond(w, r, "list", articleresponse.FailList(articleresponse.MsgReadFailed))

		return
	}

	a.respond(w, r, "list", articleresponse.NewArticleListResponse(m))
}

// GetArticle returns the article loaded by ArticleCtx.
func (a *API) GetArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := ArticleFromContext(r.Context())
	if !ok {
		a.respond(w, r, "detail", articleresponse.Fail(articleresponse.MsgDetailNotFound))

		return
	}

	a.respond(w, r, "detail", articleresponse.NewArticleResponse(article))
}

func (a *API) CheckPermission(w http.ResponseWriter, r *http.Request) {
	data := &articlerequest.PermissionRequest{}
	if err := render.Bind(r, data); err != nil {
		logging.FromContext(r.Context()).Infow("permission request rejected", "error", err)
		a.respond(w, r, "permission", articleresponse.Fail(articleresponse.MsgInvalidRequest))

		return
	}

	if !a.authorized(data.Password) {
		a.respond(w, r, "permission", articleresponse.Fail(articleresponse.MsgPasswordWrong))

		return
	}

	a.respond(w, r, "permission", articleresponse.OK(articleresponse.Empty{}))
}

// SubmitArticle creates a new article when no id is sent, otherwise it
// overwrites title, author and markdown of the existing one.
func (a *API) SubmitArticle(w http.ResponseWriter, r *http.Request) {
	data := &articlerequest.SubmitRequest{}
	if err := render.Bind(r, data); err != nil {
		logging.FromContext(r.Context()).Infow("submit request rejected", "error", err)
		a.respond(w, r, "submit", articleresponse.Fail(articleresponse.MsgInvalidRequest))

		return
	}

	if !a.authorized(data.Password) {
		a.respond(w, r, "submit", articleresponse.Fail(articleresponse.MsgUnauthorized))

		return
	}

	var id int64
	err := a.store.Mutate(r.Context(), func(m model.ArticleMap) error {
		if !data.ID.Present() {
			article := model.Article{
				ID:             NextID(m),
				Title:          data.Title,
				Author:         data.Author,
				Timestamp:      a.now().UnixMilli(),
				MarkdownString: data.MarkdownString,
			}
			m[article.Key()] = article
			id = article.ID

			return nil
		}

		article, ok := m[data.ID.Key()]
		if !ok {
			return ErrNotFound
		}
		article.Title = data.Title
		article.Author = data.Author
		article.MarkdownString = data.MarkdownString
		m[data.ID.Key()] = article
		id = article.ID

		return nil
	})
	if err != nil {
		logging.FromContext(r.Context()).Warnw("submit failed", "id", int64(data.ID), "error", err)
		a.respond(w, r, "submit", articleresponse.Fail(failureMessage(err)))

		return
	}

	logging.FromContext(r.Context()).Infow("article saved", "id", id, "created", !data.ID.Present())
	a.respond(w, r, "submit", articleresponse.NewIDResponse(id))
}

// DeleteArticle removes an existing article from the map.
func (a *API) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	data := &articlerequest.DeleteRequest{}
	if err := render.Bind(r, data); err != nil {
		logging.FromContext(r.Context()).Infow("delete request rejected", "error", err)
		a.respond(w, r, "delete", articleresponse.Fail(articleresponse.MsgInvalidRequest))

		return
	}

	if !a.authorized(data.Password) {
		a.respond(w, r, "delete", articleresponse.Fail(articleresponse.MsgUnauthorized))

		return
	}

	if !data.ID.Present() {
		a.respond(w, r, "delete", articleresponse.Fail(failureMessage(ErrMissingID)))

		return
	}

	err := a.store.Mutate(r.Context(), func(m model.ArticleMap) error {
		if _, ok := m[data.ID.Key()]; !ok {
			return ErrNotFound
		}
		delete(m, data.ID.Key())

		return nil
	})
	if err != nil {
		logging.FromContext(r.Context()).Warnw("delete failed", "id", int64(data.ID), "error", err)
		a.respond(w, r, "delete", articleresponse.Fail(failureMessage(err)))

		return
	}

	logging.FromContext(r.Context()).Infow("article deleted", "id", int64(data.ID))
	env := articleresponse.OK(articleresponse.Empty{})
	env.Message = articleresponse.MsgDeleted
	a.respond(w, r, "delete", env)
}

func (a *API) authorized(password string) bool {
	if a.password == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, op string, env *articleresponse.Envelope) {
	a.recorder.Outcome(r.Context(), op, env.Status)

	if err := render.Render(w, r, env); err != nil {
		logging.FromContext(r.Context()).Errorw("render failed", "op", op, "error", err)
	}
}

func failureMessage(err error) string {
	var (
		readErr  *ReadError
		writeErr *WriteError
	)

	switch {
	case errors.As(err, &readErr):
		return articleresponse.MsgReadFailed
	case errors.As(err, &writeErr):
		return articleresponse.MsgWriteFailed
	case errors.Is(err, ErrNotFound):
		return articleresponse.MsgUnknownID
	case errors.Is(err, ErrUnauthorized):
		return articleresponse.MsgUnauthorized
	case errors.Is(err, ErrMissingID):
		return articleresponse.MsgMissingID
	default:
		return articleresponse.MsgReadFailed
	}
}
