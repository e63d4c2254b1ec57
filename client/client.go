package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

type Client struct {
	http.Client
	Addr string
}

// EnvelopeError is returned when the server answers with status false.
type EnvelopeError struct {
	Message string
}

func (e *EnvelopeError) Error() string {
	return "blog: " + e.Message
}

type envelope struct {
	Status  bool            `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// SubmitInput creates an article when ID is zero, otherwise edits it.
type SubmitInput struct {
	ID             int64  `json:"id,omitempty"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	MarkdownString string `json:"markdownString"`
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Addr+"/ping", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), err
}

func (c *Client) List(ctx context.Context) ([]model.ArticleSummary, error) {
	var list []model.ArticleSummary
	err := c.call(ctx, http.MethodGet, "/api/article/list", nil, &list)

	return list, err
}

func (c *Client) Detail(ctx context.Context, id int64) (model.Article, error) {
	var article model.Article
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/article/detail/%d", id), nil, &article)

	return article, err
}

// CheckPermission reports whether password is the edit password.
func (c *Client) CheckPermission(ctx context.Context, password string) (bool, error) {
	err := c.call(ctx, http.MethodPost, "/api/article/edit/permission", map[string]string{"password": password}, nil)
	var envErr *EnvelopeError
	if errors.As(err, &envErr) {
		return false, nil
	}

	return err == nil, err
}

// Submit returns the id of the created or edited article.
func (c *Client) Submit(ctx context.Context, password string, in SubmitInput) (int64, error) {
	body := struct {
		Password string `json:"password"`
		SubmitInput
	}{Password: password, SubmitInput: in}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/article/edit/submit", body, &out); err != nil {
		return 0, err
	}

	return out.ID, nil
}

func (c *Client) Delete(ctx context.Context, password string, id int64) error {
	body := struct {
		ID       int64  `json:"id"`
		Password string `json:"password"`
	}{ID: id, Password: password}

	return c.call(ctx, http.MethodDelete, "/api/article/delete", body, nil)
}

// Upload sends content as filename and returns the public URL.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Addr+"/api/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Src string `json:"src"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}

	return out.Src, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Addr+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s (HTTP %d): %w", req.Method, req.URL.Path, resp.StatusCode, err)
	}

	if !env.Status {
		return &EnvelopeError{Message: env.Message}
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(env.Data, out)
}
