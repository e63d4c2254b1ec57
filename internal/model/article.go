package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Article data model. Stored as one value of the ArticleMap document.
type Article struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	Timestamp      int64  `json:"timestamp"` // epoch milliseconds, set once on create
	MarkdownString string `json:"markdownString"`
}

// Key returns the ArticleMap key for the article.
func (a Article) Key() string {
	return strconv.FormatInt(a.ID, 10)
}

// Summary drops the markdown body for list views.
func (a Article) Summary() ArticleSummary {
	return ArticleSummary{
		ID:        a.ID,
		Title:     a.Title,
		Author:    a.Author,
		Timestamp: a.Timestamp,
	}
}

type ArticleSummary struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

// ArticleMap is the whole persisted document, keyed by the decimal article id.
type ArticleMap map[string]Article

// ArticleID is an id as sent by clients: a JSON number or a numeric string.
// The zero value means the id was absent.
type ArticleID int64

func (id *ArticleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0

		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		if s == "" {
			*id = 0

			return nil
		}

		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("article id %q is not a number", s)
		}
		*id = ArticleID(n)

		return nil
	}

	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("article id %s is not a number", b)
	}

	if n, err := num.Int64(); err == nil {
		*id = ArticleID(n)

		return nil
	}

	// 1000.0 and 1e3 name the same article as 1000
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return fmt.Errorf("article id %s is not an integer", b)
	}
	*id = ArticleID(int64(f))

	return nil
}

func (id ArticleID) Present() bool {
	return id != 0
}

func (id ArticleID) Key() string {
	return strconv.FormatInt(int64(id), 10)
}
