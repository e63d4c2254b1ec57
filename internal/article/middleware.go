package article

import (
	"context"
	"net/http"

	"github.com/SergeyParamoshkin/blog/internal/articleresponse"
	"github.com/SergeyParamoshkin/blog/internal/model"
	"github.com/go-chi/chi/v5"
)

type ctxKey int8

const ctxKeyArticle ctxKey = iota

// ArticleCtx middleware is used to load an Article object from
// the URL parameters passed through as the request. In case
// the Article could not be found, we stop here and answer with a
// failure envelope.
func (a *API) ArticleCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		articleID := chi.URLParam(r, "articleID")
		if articleID == "" {
			a.respond(w, r, "detail", articleresponse.Fail(articleresponse.MsgDetailNotFound))

			return
		}

		m, err := a.store.FetchArticleMap(r.Context())
		if err != nil {
			a.respond(w, r, "detail", articleresponse.Fail(articleresponse.MsgReadFailed))

			return
		}

		article, ok := m[articleID]
		if !ok {
			a.respond(w, r, "detail", articleresponse.Fail(articleresponse.MsgDetailNotFound))

			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyArticle, article)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ArticleFromContext(ctx context.Context) (model.Article, bool) {
	article, ok := ctx.Value(ctxKeyArticle).(model.Article)

	return article, ok
}
