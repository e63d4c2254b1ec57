package articleresponse

import (
	"net/http"
	"sort"

	"github.com/SergeyParamoshkin/blog/internal/model"
	"github.com/go-chi/render"
)

// Messages shown to the editor front end.
const (
	MsgOK             = "请求成功"
	MsgDeleted        = "操作成功"
	MsgReadFailed     = "文章映射关系读取失败"
	MsgWriteFailed    = "文章映射关系写入失败"
	MsgDetailNotFound = "文章详情读取失败"
	MsgPasswordWrong  = "密码验证失败"
	MsgUnauthorized   = "编辑权限校验--不通过"
	MsgMissingID      = "缺少必填参数--id"
	MsgUnknownID      = "不存在的文档 id"
	MsgInvalidRequest = "请求参数格式错误"
	MsgUploadFailed   = "文件上传失败"
	MsgTooManyRequest = "请求过于频繁"
)

// Envelope is the uniform response wrapper of every JSON endpoint.
// Failures are reported through Status, not through the HTTP status code.
type Envelope struct {
	Status  bool        `json:"status"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`

	httpStatus int
}

func (e *Envelope) Render(w http.ResponseWriter, r *http.Request) error {
	if e.httpStatus != 0 {
		render.Status(r, e.httpStatus)
	}

	return nil
}

// WithHTTPStatus overrides the default 200 response code.
func (e *Envelope) WithHTTPStatus(code int) *Envelope {
	e.httpStatus = code

	return e
}

// Empty is the {} payload.
type Empty struct{}

// IDPayload is returned by submit.
type IDPayload struct {
	ID int64 `json:"id"`
}

// UploadPayload is returned by upload.
type UploadPayload struct {
	Src string `json:"src"`
}

func OK(data interface{}) *Envelope {
	return &Envelope{Status: true, Data: data, Message: MsgOK}
}

func Fail(message string) *Envelope {
	return &Envelope{Status: false, Data: Empty{}, Message: message}
}

// FailList is the failure envelope of list endpoints, whose data is [].
func FailList(message string) *Envelope {
	return &Envelope{Status: false, Data: []model.ArticleSummary{}, Message: message}
}

func NewArticleResponse(article model.Article) *Envelope {
	return OK(article)
}

func NewIDResponse(id int64) *Envelope {
	return OK(IDPayload{ID: id})
}

func NewUploadResponse(src string) *Envelope {
	return OK(UploadPayload{Src: src})
}

// NewArticleListResponse strips markdown and orders by timestamp, newest first.
// Equal timestamps keep ascending id order.
func NewArticleListResponse(m model.ArticleMap) *Envelope {
	list := make([]model.ArticleSummary, 0, len(m))
	for _, a := range m {
		list = append(list, a.Summary())
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp > list[j].Timestamp
		}

		return list[i].ID < list[j].ID
	})

	return OK(list)
}
