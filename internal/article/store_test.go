package article

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/SergeyParamoshkin/blog/internal/model"
	"github.com/google/go-cmp/cmp"
)

func TestFileStoreFetch(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		skip    bool // do not create the file
		wantErr bool
		wantLen int
	}{
		{
			name:    "valid map",
			json:    `{"1000":{"id":1000,"title":"A","author":"x","timestamp":5,"markdownString":"m"}}`,
			wantLen: 1,
		},
		{
			name:    "empty object",
			json:    `{}`,
			wantLen: 0,
		},
		{
			name:    "null document",
			json:    `null`,
			wantLen: 0,
		},
		{
			name:    "invalid json",
			json:    `{invalid json}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			json:    `[1000]`,
			wantErr: true,
		},
		{
			name:    "trailing data",
			json:    `{} {}`,
			wantErr: true,
		},
		{
			name:    "missing file",
			skip:    true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "article-map.json")
			if !tt.skip {
				if err := os.WriteFile(path, []byte(tt.json), 0o600); err != nil {
					t.Fatalf("Failed to write test file: %v", err)
				}
			}

			m, err := NewFileStore(path, nil).FetchArticleMap(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchArticleMap() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				var readErr *ReadError
				if !errors.As(err, &readErr) {
					t.Errorf("error %v is not a *ReadError", err)
				}

				return
			}

			if len(m) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(m), tt.wantLen)
			}
		})
	}
}

func TestFileStoreUpdateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "article-map.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, nil)

	want := model.ArticleMap{
		"1000": {ID: 1000, Title: "A", Author: "x", Timestamp: 5, MarkdownString: "m"},
		"1007": {ID: 1007, Title: "B", Author: "y", Timestamp: 9, MarkdownString: "n"},
	}
	if err := s.UpdateArticleMap(context.Background(), want); err != nil {
		t.Fatalf("UpdateArticleMap() error = %v", err)
	}

	got, err := s.FetchArticleMap(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600 kept", fi.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStoreUpdateWriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "article-map.json")

	err := NewFileStore(path, nil).UpdateArticleMap(context.Background(), model.ArticleMap{})

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("error = %v, want *WriteError", err)
	}
}

func TestMutateSkipsWriteOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "article-map.json")
	orig := []byte(`{"1000":{"id":1000,"title":"A","author":"x","timestamp":5,"markdownString":"m"}}`)
	if err := os.WriteFile(path, orig, 0o600); err != nil {
		t.Fatal(err)
	}

	err := NewFileStore(path, nil).Mutate(context.Background(), func(m model.ArticleMap) error {
		delete(m, "1000")

		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Mutate() error = %v, want ErrNotFound", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(orig) {
		t.Errorf("file changed:\n%s", got)
	}
}

func TestMutateSerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "article-map.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, nil)

	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.Mutate(context.Background(), func(m model.ArticleMap) error {
				a := model.Article{ID: NextID(m)}
				m[a.Key()] = a

				return nil
			})
			if err != nil {
				t.Errorf("Mutate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	m, err := s.FetchArticleMap(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(m) != writers {
		t.Fatalf("len = %d, want %d (lost writes)", len(m), writers)
	}

	for i := int64(0); i < writers; i++ {
		if _, ok := m[model.Article{ID: FirstID + i}.Key()]; !ok {
			t.Errorf("id %d missing", FirstID+i)
		}
	}
}

func TestMutateHonoursCancelWhileWaiting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "article-map.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, nil)

	// hold the writer slot
	if err := s.writer.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer s.writer.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Mutate(ctx, func(model.ArticleMap) error {
		called = true

		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Mutate() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("mutation ran without the writer slot")
	}
}

func TestMutatePreservesRecordBytes(t *testing.T) {
	const (
		html  = `{"id":1000,"title":"A","author":"x","timestamp":5,"markdownString":"<img src=\"a.png\"> & b"}`
		extra = `{"id":1001,"title":"B","author":"y","timestamp":6,"markdownString":"m","tags":["go"]}`
		drop  = `{"id":1002,"title":"C","author":"z","timestamp":7,"markdownString":"c"}`
	)

	tests := []struct {
		name   string
		mutate func(m model.ArticleMap)
		want   string
	}{
		{
			name:   "delete keeps other records",
			mutate: func(m model.ArticleMap) { delete(m, "1002") },
			want:   `{"1000":` + html + `,"1001":` + extra + `}`,
		},
		{
			name: "edit keeps unknown members and raw characters",
			mutate: func(m model.ArticleMap) {
				a := m["1001"]
				a.MarkdownString = "<p>&</p>"
				m["1001"] = a
			},
			want: `{"1000":` + html +
				`,"1001":{"id":1001,"title":"B","author":"y","timestamp":6,"markdownString":"<p>&</p>","tags":["go"]}` +
				`,"1002":` + drop + `}`,
		},
		{
			name: "create appends",
			mutate: func(m model.ArticleMap) {
				a := model.Article{ID: NextID(m), Title: "D", MarkdownString: "a < b"}
				m[a.Key()] = a
			},
			want: `{"1000":` + html + `,"1001":` + extra + `,"1002":` + drop +
				`,"1003":{"id":1003,"title":"D","author":"","timestamp":0,"markdownString":"a < b"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "article-map.json")
			doc := `{"1000":` + html + `, "1001":` + extra + `,"1002":` + drop + `}`
			if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
				t.Fatal(err)
			}

			err := NewFileStore(path, nil).Mutate(context.Background(), func(m model.ArticleMap) error {
				tt.mutate(m)

				return nil
			})
			if err != nil {
				t.Fatalf("Mutate() error = %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("file mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want int64
	}{
		{name: "empty", want: 1000},
		{name: "single", ids: []int64{1000}, want: 1001},
		{name: "gap after deletions", ids: []int64{1000, 1007}, want: 1008},
		{name: "unordered", ids: []int64{1003, 1000, 1001}, want: 1004},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.ArticleMap{}
			for _, id := range tt.ids {
				a := model.Article{ID: id}
				m[a.Key()] = a
			}

			if got := NextID(m); got != tt.want {
				t.Errorf("NextID() = %d, want %d", got, tt.want)
			}
		})
	}
}
