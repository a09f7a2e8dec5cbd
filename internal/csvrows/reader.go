package csvrows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned when the file is not valid UTF-8
var ErrInvalidEncoding = errors.New("file is not valid UTF-8")

const bom = "\ufeff"

// Row is a single data row whose cells are looked up by header name
type Row struct {
	// Line is the 1-based line of the row in the source file
	Line   int
	header map[string]int
	fields []string
}

// Get returns the trimmed cell for column, or "" if the column is missing
// from the header or the row is too short to contain it.
func (r Row) Get(column string) string {
	idx, ok := r.header[column]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

// Has reports whether the header names column
func (r Row) Has(column string) bool {
	_, ok := r.header[column]
	return ok
}

// ParseFile reads a delimited file with a header line and returns its data rows
func ParseFile(filename string) ([]Row, error) {
	infile, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer infile.Close()

	return ParseReader(infile)
}

// ParseReader reads header-driven rows from r. An empty input or a lone
// header yields no rows and no error.
func ParseReader(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headerFields, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := checkEncoding(headerFields); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	header := make(map[string]int, len(headerFields))
	for idx, name := range headerFields {
		if idx == 0 {
			name = strings.TrimPrefix(name, bom)
		}
		name = strings.TrimSpace(name)
		if _, dup := header[name]; !dup {
			header[name] = idx
		}
	}

	var rows []Row
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if err := checkEncoding(fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(fields) {
			continue
		}
		rows = append(rows, Row{Line: line, header: header, fields: fields})
	}

	return rows, nil
}

func checkEncoding(fields []string) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return ErrInvalidEncoding
		}
	}
	return nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
