// Package corpusfile reads case records from JSON, YAML or XLSX files.
package corpusfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/retrieval"
)

// Loader is a CorpusSource backed by a single file. The format follows the extension.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// LoadRecords returns the meaningful records of the given partition. Records without a
// partition belong to every partition. Documents that cannot be converted, carry an error tag
// or have no content are skipped.
func (l *Loader) LoadRecords(ctx context.Context, partition string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := ReadDocuments(l.path)
	if err != nil {
		return nil, err
	}

	records := retrieval.FilterDocuments(docs)
	out := records[:0]
	for _, rec := range records {
		if partition != "" && rec.Partition != "" && rec.Partition != partition {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadDocuments decodes the file into loosely shaped documents.
func ReadDocuments(path string) ([]map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.WrapError(domain.ErrNotFound, "read corpus", errors.New("corpus path is empty"))
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		raw, err := readFile(path)
		if err != nil {
			return nil, err
		}
		return decodeJSON(raw)
	case ".yaml", ".yml":
		raw, err := readFile(path)
		if err != nil {
			return nil, err
		}
		return decodeYAML(raw)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "read corpus", fmt.Errorf("unsupported corpus format %q", ext))
	}
}

func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrNotFound, "read corpus", err)
	}
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}
	return raw, nil
}

type envelope struct {
	Records []map[string]any `json:"records" yaml:"records"`
}

// decodeJSON accepts a bare array or an object with a "records" array.
func decodeJSON(raw []byte) ([]map[string]any, error) {
	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode json corpus", err)
	}
	return env.Records, nil
}

func decodeYAML(raw []byte) ([]map[string]any, error) {
	var docs []map[string]any
	if err := yaml.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var env envelope
	if err := yaml.Unmarshal(raw, &env); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode yaml corpus", err)
	}
	return env.Records, nil
}

// readXLSX reads the first sheet. Row one holds column names; list columns (skills,
// skill_tags) are split on commas.
func readXLSX(path string) ([]map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrNotFound, "read corpus", err)
	}
	if err != nil {
		return nil, fmt.Errorf("open xlsx corpus: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read xlsx corpus", errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	if len(rows) == 0 {
		return []map[string]any{}, nil
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	docs := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		doc := make(map[string]any, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			doc[header[i]] = cellValue(header[i], cell)
		}
		if len(doc) > 0 {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func cellValue(column, cell string) any {
	switch column {
	case domain.MetaSkills, "skill_tags":
		parts := strings.Split(cell, ",")
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return cell
	}
}
