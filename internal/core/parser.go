package core

// parser.go turns an uploaded CSV into normalized headers and rows.
//
// The whole file is read into memory: the parsed rows are stored in the job
// record anyway, so there is nothing to gain from streaming here. Input is
// cleaned before parsing:
//
//   - A UTF-8 BOM (0xEF 0xBB 0xBF) written by Excel on Windows is removed
//   - Invalid UTF-8 sequences are replaced with U+FFFD
//
// Headers are lowercased and trimmed. Rows that are entirely empty are
// dropped, and every remaining row is padded or truncated to the header width.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// RequiredColumn is the header every import file must contain.
const RequiredColumn = "title"

// utf8BOM is the byte order mark some editors prepend to UTF-8 files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset is the parsed content of an import file.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// ParseCSV reads r to completion and returns its normalized headers and rows.
func ParseCSV(r io.Reader) (Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Dataset{}, fmt.Errorf("read file: %w", err)
	}
	return parseCSVBytes(data)
}

func parseCSVBytes(data []byte) (Dataset, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = sanitizeUTF8(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Dataset{}, ErrMissingHeaderRow
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	headers := normalizeHeaders(first)
	if !containsString(headers, RequiredColumn) {
		return Dataset{}, fmt.Errorf("%w: csv must have a %q column", ErrMissingRequiredColumn, RequiredColumn)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}

		if isEmptyRow(record) {
			continue
		}

		rows = append(rows, fitRow(record, len(headers)))
	}

	if len(rows) == 0 {
		return Dataset{}, ErrEmptyDataset
	}

	return Dataset{Headers: headers, Rows: rows}, nil
}

// normalizeHeaders lowercases and trims every header name.
func normalizeHeaders(record []string) []string {
	headers := make([]string, len(record))
	for i, h := range record {
		headers[i] = strings.ToLower(trimCell(h))
	}
	return headers
}

// fitRow right-pads with empty strings or truncates so len(row) == width.
func fitRow(record []string, width int) []string {
	if len(record) == width {
		return record
	}
	row := make([]string, width)
	copy(row, record)
	return row
}

// zipRow combines headers with a width-normalized row. When a header repeats,
// the last column wins.
func zipRow(headers, values []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(values) {
			row[h] = values[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

func trimCell(s string) string {
	return strings.TrimSpace(s)
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if trimCell(v) != "" {
			return false
		}
	}
	return true
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
