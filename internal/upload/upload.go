package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/SergeyParamoshkin/blog/internal/articleresponse"
	"github.com/SergeyParamoshkin/blog/internal/logging"
	"github.com/go-chi/render"
)

// FormField is the multipart field carrying the file.
const FormField = "file"

// maxAttempts bounds the name collision retries, one millisecond apart.
const maxAttempts = 16

// ErrExist is returned by a Storage when the name is already taken.
var ErrExist = errors.New("upload: name already taken")

// Storage persists uploaded files under a flat name.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader, contentType string, size int64) error
}

type Recorder interface {
	Outcome(ctx context.Context, op string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Outcome(context.Context, string, bool) {}

type Handler struct {
	storage  Storage
	baseURL  string
	now      func() time.Time
	recorder Recorder
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithRecorder(rec Recorder) Option {
	return func(h *Handler) {
		if rec != nil {
			h.recorder = rec
		}
	}
}

// NewHandler serves uploads into storage. Returned URLs are baseURL + file name.
func NewHandler(storage Storage, baseURL string, opts ...Option) *Handler {
	h := &Handler{
		storage:  storage,
		baseURL:  strings.TrimRight(baseURL, "/") + "/",
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Upload stores the multipart file and answers once it is fully written.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	file, header, err := r.FormFile(FormField)
	if err != nil {
		logger.Infow("upload without file", "error", err)
		h.respond(w, r, articleresponse.Fail(articleresponse.MsgUploadFailed))

		return
	}
	defer file.Close()

	ext := Extension(header.Filename)
	contentType := header.Header.Get("Content-Type")
	stamp := h.now().UnixMilli()

	var name string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if _, err = file.Seek(0, io.SeekStart); err != nil {
				break
			}
		}

		name = FileName(stamp+int64(attempt), ext)
		err = h.storage.Save(r.Context(), name, file, contentType, header.Size)
		if !errors.Is(err, ErrExist) {
			break
		}
	}
	if err != nil {
		logger.Errorw("upload failed", "file", header.Filename, "name", name, "error", err)
		h.respond(w, r, articleresponse.Fail(articleresponse.MsgUploadFailed))

		return
	}

	logger.Infow("file uploaded", "file", header.Filename, "name", name, "size", header.Size)
	h.respond(w, r, articleresponse.NewUploadResponse(h.baseURL+name))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, env *articleresponse.Envelope) {
	h.recorder.Outcome(r.Context(), "upload", env.Status)

	if err := render.Render(w, r, env); err != nil {
		logging.FromContext(r.Context()).Errorw("render failed", "op", "upload", "error", err)
	}
}

// Extension returns the text after the last dot of the base name, or "" when
// there is none or it holds anything but ASCII letters and digits.
func Extension(filename string) string {
	// browsers on windows may send the full client path
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))

	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}

	ext := base[i+1:]
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}

	return ext
}

// FileName is the stored name: epoch milliseconds plus the extension.
func FileName(stamp int64, ext string) string {
	if ext == "" {
		return fmt.Sprintf("%d", stamp)
	}

	return fmt.Sprintf("%d.%s", stamp, ext)
}
