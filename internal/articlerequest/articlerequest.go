package articlerequest

import (
	"net/http"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

// PermissionRequest is the body of the edit permission check.
type PermissionRequest struct {
	Password string `json:"password"`
}

func (p *PermissionRequest) Bind(r *http.Request) error {
	return nil
}

// SubmitRequest creates an article when ID is absent, otherwise edits it.
type SubmitRequest struct {
	Password       string          `json:"password"`
	ID             model.ArticleID `json:"id"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	MarkdownString string          `json:"markdownString"`
}

// Bind on SubmitRequest will run after the unmarshalling is complete.
// Fields are stored exactly as sent.
func (s *SubmitRequest) Bind(r *http.Request) error {
	return nil
}

type DeleteRequest struct {
	ID       model.ArticleID `json:"id"`
	Password string          `json:"password"`
}

func (d *DeleteRequest) Bind(r *http.Request) error {
	return nil
}
