package article

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

// rawObject is a JSON object whose member values are kept as the bytes they
// were read from, in document order. Encoding it back writes untouched
// members unchanged.
type rawObject struct {
	keys []string
	vals map[string]json.RawMessage
}

func newRawObject() *rawObject {
	return &rawObject{vals: make(map[string]json.RawMessage)}
}

// parseRawObject reads a JSON object. A "null" document is an empty object.
func parseRawObject(data []byte) (*rawObject, error) {
	o := newRawObject()

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return o, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", tok)
		}

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		o.set(key, val)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top-level object")
	}

	return o, nil
}

// set keeps the position of an existing key and appends new ones.
func (o *rawObject) set(key string, val json.RawMessage) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = val
}

func (o *rawObject) remove(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)

	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)

			break
		}
	}
}

// encode writes the object compactly, members in order.
func (o *rawObject) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := marshalRaw(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(o.vals[key])
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// marshalRaw encodes v without HTML escaping, so "<", ">" and "&" in
// markdown are written as themselves.
func marshalRaw(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// articleMapDocument is the persisted article map: the parsed records plus
// the raw bytes they came from.
type articleMapDocument struct {
	raw      *rawObject
	articles model.ArticleMap
}

func parseArticleMapDocument(data []byte) (*articleMapDocument, error) {
	raw, err := parseRawObject(data)
	if err != nil {
		return nil, err
	}

	m := make(model.ArticleMap, len(raw.keys))
	for _, key := range raw.keys {
		var a model.Article
		if err := json.Unmarshal(raw.vals[key], &a); err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
		m[key] = a
	}

	return &articleMapDocument{raw: raw, articles: m}, nil
}

// apply brings the raw document in line with m. Records equal to what was
// read keep their bytes; changed records get their known fields replaced
// and keep any other members; new records are appended.
func (d *articleMapDocument) apply(m model.ArticleMap) error {
	for _, key := range append([]string(nil), d.raw.keys...) {
		if _, ok := m[key]; !ok {
			d.raw.remove(key)
		}
	}

	added := make([]string, 0)
	for key, a := range m {
		old, ok := d.articles[key]
		if !ok {
			added = append(added, key)

			continue
		}
		if old == a {
			continue
		}

		rec, err := patchRecord(d.raw.vals[key], a)
		if err != nil {
			return fmt.Errorf("record %q: %w", key, err)
		}
		d.raw.set(key, rec)
	}

	sortKeys(added)
	for _, key := range added {
		rec, err := patchRecord(nil, m[key])
		if err != nil {
			return fmt.Errorf("record %q: %w", key, err)
		}
		d.raw.set(key, rec)
	}

	d.articles = m

	return nil
}

func patchRecord(orig json.RawMessage, a model.Article) (json.RawMessage, error) {
	rec := newRawObject()
	if orig != nil {
		parsed, err := parseRawObject(orig)
		if err != nil {
			return nil, err
		}
		rec = parsed
	}

	fields := []struct {
		key string
		val interface{}
	}{
		{"id", a.ID},
		{"title", a.Title},
		{"author", a.Author},
		{"timestamp", a.Timestamp},
		{"markdownString", a.MarkdownString},
	}
	for _, f := range fields {
		val, err := marshalRaw(f.val)
		if err != nil {
			return nil, err
		}
		rec.set(f.key, val)
	}

	return rec.encode()
}

// sortKeys orders numeric keys by value, the rest after them lexically.
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseInt(keys[i], 10, 64)
		b, errB := strconv.ParseInt(keys[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}
