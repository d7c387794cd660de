package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	apperrors "github.com/goodfilms/picky/pkg/errors"
)

// Document is one indexable record: an id plus the text of each category.
type Document struct {
	ID     int64
	Fields map[string]string
}

// Source yields documents to index. Each is called once per category, so a
// Source must be able to replay its documents.
type Source interface {
	Each(ctx context.Context, fn func(Document) error) error
}

// MemorySource serves a fixed document list.
type MemorySource []Document

func (s MemorySource) Each(ctx context.Context, fn func(Document) error) error {
	for _, doc := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

const maxLineSize = 1 << 20

// JSONLinesSource reads one JSON object per line from a file. IDField names
// the numeric id attribute; every other attribute becomes a field.
type JSONLinesSource struct {
	Path    string
	IDField string
}

func NewJSONLinesSource(path string) *JSONLinesSource {
	return &JSONLinesSource{Path: path, IDField: "id"}
}

func (s *JSONLinesSource) Each(ctx context.Context, fn func(Document) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("opening document source: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		doc, err := s.decode(raw)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", s.Path, line, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", s.Path, err)
	}
	return nil
}

func (s *JSONLinesSource) decode(raw []byte) (Document, error) {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil {
		return Document{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	idField := s.IDField
	if idField == "" {
		idField = "id"
	}
	rawID, ok := record[idField]
	if !ok {
		return Document{}, fmt.Errorf("%w: missing %q", apperrors.ErrInvalidInput, idField)
	}
	id, err := parseID(rawID)
	if err != nil {
		return Document{}, err
	}
	doc := Document{ID: id, Fields: make(map[string]string, len(record)-1)}
	for name, value := range record {
		if name == idField {
			continue
		}
		doc.Fields[name] = fieldText(value)
	}
	return doc, nil
}

// parseID accepts a JSON number or a numeric string.
func parseID(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := n.Int64(); err == nil {
			return id, nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: id %s is not an integer", apperrors.ErrInvalidInput, raw)
}

// fieldText turns a JSON value into indexable text. Strings are used as is,
// null is empty and anything else keeps its JSON spelling.
func fieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
